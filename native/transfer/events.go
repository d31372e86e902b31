package transfer

import (
	"encoding/hex"
	"strconv"

	"cipherex/core/types"
)

const (
	EventTypeTransferInit      = "transfer.init"
	EventTypeTransferDrafted   = "transfer.draft"
	EventTypeDraftCompleted    = "transfer.draft_completed"
	EventTypePublicKeySet      = "transfer.public_key_set"
	EventTypePasswordSet       = "transfer.password_set"
	EventTypeTransferFinished  = "transfer.finished"
	EventTypeFraudReported     = "transfer.fraud_reported"
	EventTypeFraudDecided      = "transfer.fraud_decided"
	EventTypeTransferCancelled = "transfer.cancelled"
)

// NewInitEvent is emitted when a fully-specified transfer opens.
func NewInitEvent(r *Record) *types.Event { return newRecordEvent(EventTypeTransferInit, r) }

// NewDraftedEvent is emitted when a transfer opens without a bound recipient.
func NewDraftedEvent(r *Record) *types.Event { return newRecordEvent(EventTypeTransferDrafted, r) }

// NewDraftCompletedEvent is emitted when a draft is bound to a recipient and
// public key.
func NewDraftCompletedEvent(r *Record) *types.Event {
	return newRecordEvent(EventTypeDraftCompleted, r)
}

// NewPublicKeySetEvent is emitted when a recipient supplies its public key
// outside the draft-completion path.
func NewPublicKeySetEvent(r *Record) *types.Event { return newRecordEvent(EventTypePublicKeySet, r) }

// NewPasswordSetEvent is emitted when the holder submits the encrypted
// secret.
func NewPasswordSetEvent(r *Record) *types.Event { return newRecordEvent(EventTypePasswordSet, r) }

// NewFinishedEvent is emitted once the handoff finalises and the record is
// cleared.
func NewFinishedEvent(r *Record) *types.Event { return newRecordEvent(EventTypeTransferFinished, r) }

// NewFraudReportedEvent is emitted when the recipient contests the handoff.
func NewFraudReportedEvent(r *Record) *types.Event {
	return newRecordEvent(EventTypeFraudReported, r)
}

// NewFraudDecidedEvent is emitted with the arbitration outcome. Approved
// means the report was upheld and the asset completed to the recipient.
func NewFraudDecidedEvent(r *Record, approved bool) *types.Event {
	evt := newRecordEvent(EventTypeFraudDecided, r)
	evt.Attributes["approved"] = strconv.FormatBool(approved)
	return evt
}

// NewCancelledEvent is emitted when a transfer is torn down before
// completion.
func NewCancelledEvent(r *Record) *types.Event {
	return newRecordEvent(EventTypeTransferCancelled, r)
}

func newRecordEvent(eventType string, r *Record) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["collection"] = hex.EncodeToString(r.Collection[:])
	attrs["assetId"] = strconv.FormatUint(r.AssetID, 10)
	attrs["epoch"] = strconv.FormatUint(r.EpochNumber, 10)
	attrs["initiator"] = hex.EncodeToString(r.Initiator[:])
	attrs["from"] = hex.EncodeToString(r.From[:])
	attrs["status"] = r.Status().String()
	if r.ToSet {
		attrs["to"] = hex.EncodeToString(r.To[:])
	}
	if len(r.PublicKey) > 0 {
		attrs["publicKey"] = hex.EncodeToString(r.PublicKey)
	}
	if r.Callback != "" {
		attrs["callback"] = r.Callback
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
