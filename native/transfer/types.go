package transfer

import "fmt"

// Status is the derived lifecycle position of an in-flight transfer. It is
// not stored; a record's status follows from which fields have been set.
type Status uint8

const (
	StatusNone Status = iota
	StatusDraftOpen
	StatusDraftComplete
	StatusKeyExchanged
	StatusPasswordSet
	StatusFraudReported
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusDraftOpen:
		return "draft_open"
	case StatusDraftComplete:
		return "draft_complete"
	case StatusKeyExchanged:
		return "key_exchanged"
	case StatusPasswordSet:
		return "password_set"
	case StatusFraudReported:
		return "fraud_reported"
	default:
		return "unknown"
	}
}

// Key identifies the asset a record belongs to. At most one record exists per
// key at any time.
type Key struct {
	Collection [20]byte
	AssetID    uint64
}

// Record tracks a single in-flight handoff from From to To. Terminal
// transitions (finalize, fraud decision, cancel) delete the record; presence
// of a record is the only "transfer in flight" signal.
// ToSet distinguishes an unclaimed draft from a transfer bound to the zero
// address; the zero value of To is never used as a sentinel. The epoch fields
// are captured at draft completion and seed the content randomisation
// downstream of the protocol. EpochNumber is the per-asset transfer count the
// record was opened under; key submissions quoting an older number are
// rejected.
type Record struct {
	Collection      [20]byte
	AssetID         uint64
	Initiator       [20]byte
	From            [20]byte
	To              [20]byte
	ToSet           bool
	Callback        string
	AuxData         []byte
	PublicKey       []byte
	EncryptedSecret []byte
	FraudReported   bool
	PublicKeySetAt  int64
	SecretSetAt     int64
	EpochTimestamp  int64
	EpochBlockHash  [32]byte
	EpochNumber     uint64
}

// Status derives the lifecycle position from the populated fields.
func (r *Record) Status() Status {
	switch {
	case r == nil:
		return StatusNone
	case r.FraudReported:
		return StatusFraudReported
	case len(r.EncryptedSecret) > 0:
		return StatusPasswordSet
	case len(r.PublicKey) > 0:
		return StatusKeyExchanged
	case r.ToSet:
		return StatusDraftComplete
	default:
		return StatusDraftOpen
	}
}

// Key returns the storage key for the record.
func (r *Record) Key() Key {
	if r == nil {
		return Key{}
	}
	return Key{Collection: r.Collection, AssetID: r.AssetID}
}

// Clone returns a deep copy so callers can mutate the result without
// affecting the stored instance.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	clone.AuxData = append([]byte(nil), r.AuxData...)
	clone.PublicKey = append([]byte(nil), r.PublicKey...)
	clone.EncryptedSecret = append([]byte(nil), r.EncryptedSecret...)
	return &clone
}

// SanitizeRecord validates the structural invariants a stored record must
// hold and returns a defensive copy.
func SanitizeRecord(r *Record) (*Record, error) {
	if r == nil {
		return nil, fmt.Errorf("transfer: nil record")
	}
	clone := r.Clone()
	if clone.Initiator == ([20]byte{}) {
		return nil, fmt.Errorf("transfer: record missing initiator")
	}
	if len(clone.EncryptedSecret) > 0 && len(clone.PublicKey) == 0 {
		return nil, fmt.Errorf("transfer: secret set before public key")
	}
	if clone.FraudReported && len(clone.EncryptedSecret) == 0 {
		return nil, fmt.Errorf("transfer: fraud reported before secret set")
	}
	if len(clone.PublicKey) > 0 && !clone.ToSet {
		return nil, fmt.Errorf("transfer: public key set before recipient bound")
	}
	return clone, nil
}
