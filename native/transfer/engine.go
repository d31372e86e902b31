package transfer

import (
	"errors"
	"fmt"
	"time"

	"cipherex/core/events"
	"cipherex/core/types"
	nativecommon "cipherex/native/common"
)

var (
	errNilState    = errors.New("transfer engine: state not configured")
	errNilRegistry = errors.New("transfer engine: registry source not configured")
)

const (
	transferModuleName = "transfer"

	// DefaultFinalizeTimeout is how long after the secret lands the holder
	// may force-complete an unresponsive recipient's transfer.
	DefaultFinalizeTimeout int64 = 24 * 60 * 60
	// DefaultAbandonTimeout is how long after the public key lands the
	// recipient may cancel a transfer the holder never supplied a secret
	// for.
	DefaultAbandonTimeout int64 = 24 * 60 * 60
)

// Registry is the slice of asset-ledger behaviour the state machine consumes.
// Ownership bookkeeping itself lives behind this boundary.
type Registry interface {
	Exists(assetID uint64) bool
	OwnerOf(assetID uint64) ([20]byte, error)
	IsApprovedOrOwner(caller [20]byte, assetID uint64) (bool, error)
	Transfer(from, to [20]byte, assetID uint64, data []byte) error
}

// MetadataSource is optionally implemented by registries that can hash asset
// metadata for the fraud arbiter.
type MetadataSource interface {
	MetadataHash(assetID uint64) ([32]byte, error)
}

// Callback receives terminal-transition notifications. Implementations are
// registered by name; the record stores only the name so state stays
// serialisable. Every callback observes the record already deleted.
type Callback interface {
	TransferFinished(collection [20]byte, assetID uint64) error
	TransferFraudDetected(collection [20]byte, assetID uint64, approved bool) error
	TransferCancelled(collection [20]byte, assetID uint64) error
}

// Arbiter decides contested handoffs. Decide may decline (decided=false) when
// the deployment allows deferred decisions; AlwaysDecides reports whether the
// implementation ever declines.
type Arbiter interface {
	Decide(assetID uint64, metadata [32]byte, publicKey, privateKey, encryptedSecret []byte) (decided bool, approved bool, err error)
	AlwaysDecides() bool
}

// PricingPolicy validates the opaque pricing proof attached at draft
// completion.
type PricingPolicy interface {
	Validate(collection [20]byte, assetID uint64, aux []byte) error
}

type engineState interface {
	TransferGet(key Key) (*Record, bool)
	TransferPut(*Record) error
	TransferDelete(key Key) error
	TransferCount(key Key) (uint64, error)
	TransferCountBump(key Key) (uint64, error)
}

type transferEvent struct {
	evt *types.Event
}

func (e transferEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e transferEvent) Event() *types.Event { return e.evt }

// Engine drives the per-asset transfer state machine. All mutation of
// transfer records happens here; collaborators reach the records only
// through the engine's operations and callbacks.
type Engine struct {
	state           engineState
	registryFn      func(collection [20]byte) (Registry, bool)
	emitter         events.Emitter
	nowFn           func() int64
	blockHashFn     func() [32]byte
	pauses          nativecommon.PauseView
	policy          PricingPolicy
	arbiter         Arbiter
	arbiterAddr     [20]byte
	allowDeferred   bool
	admin           [20]byte
	salesStart      int64
	finalizeTimeout int64
	abandonTimeout  int64
	callbacks       map[string]Callback
}

// NewEngine creates a transfer engine with a no-op emitter and default
// timeout windows.
func NewEngine() *Engine {
	return &Engine{
		emitter:         events.NoopEmitter{},
		nowFn:           func() int64 { return time.Now().Unix() },
		blockHashFn:     func() [32]byte { return [32]byte{} },
		finalizeTimeout: DefaultFinalizeTimeout,
		abandonTimeout:  DefaultAbandonTimeout,
		callbacks:       make(map[string]Callback),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistrySource configures asset-registry resolution per collection.
func (e *Engine) SetRegistrySource(fn func(collection [20]byte) (Registry, bool)) {
	e.registryFn = fn
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetBlockHashFunc overrides the recent-block-hash source captured into the
// transfer epoch at draft completion.
func (e *Engine) SetBlockHashFunc(fn func() [32]byte) {
	if fn == nil {
		e.blockHashFn = func() [32]byte { return [32]byte{} }
		return
	}
	e.blockHashFn = fn
}

// SetPauses configures the governance pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetPricingPolicy configures the policy consulted at draft completion.
func (e *Engine) SetPricingPolicy(p PricingPolicy) { e.policy = p }

// SetArbiter configures the fraud arbitration interface and the address
// permitted to submit deferred decisions.
func (e *Engine) SetArbiter(a Arbiter, addr [20]byte) {
	e.arbiter = a
	e.arbiterAddr = addr
}

// SetAllowDeferred enables deferred fraud decisions for the deployment. When
// disabled, ReportFraud fails outright if the arbiter cannot decide
// immediately.
func (e *Engine) SetAllowDeferred(allow bool) { e.allowDeferred = allow }

// SetAdmin configures the administrative address allowed to bypass the
// sales-start gate and adjust timeout windows.
func (e *Engine) SetAdmin(addr [20]byte) { e.admin = addr }

// ConfigureSalesStart seeds the sales-start gate at wiring time, before any
// admin is reachable. Runtime changes go through SetSalesStart.
func (e *Engine) ConfigureSalesStart(at int64) { e.salesStart = at }

// ConfigureTimeouts seeds the timeout windows at wiring time. A non-positive
// value keeps the current window.
func (e *Engine) ConfigureTimeouts(finalizeSecs, abandonSecs int64) {
	if finalizeSecs > 0 {
		e.finalizeTimeout = finalizeSecs
	}
	if abandonSecs > 0 {
		e.abandonTimeout = abandonSecs
	}
}

// SetSalesStart gates DraftTransfer until the given unix time. Zero disables
// the gate. Admin only once an admin is configured.
func (e *Engine) SetSalesStart(caller [20]byte, at int64) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.salesStart = at
	return nil
}

// SetTimeouts adjusts the finalize and abandonment windows. Admin only.
func (e *Engine) SetTimeouts(caller [20]byte, finalizeSecs, abandonSecs int64) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if finalizeSecs <= 0 || abandonSecs <= 0 {
		return fmt.Errorf("%w: timeout windows must be positive", ErrInvalidState)
	}
	e.finalizeTimeout = finalizeSecs
	e.abandonTimeout = abandonSecs
	return nil
}

// RegisterCallback makes a terminal-notification receiver addressable from
// records under the given name.
func (e *Engine) RegisterCallback(name string, cb Callback) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrUnknownCallback)
	}
	if cb == nil {
		return fmt.Errorf("%w: nil callback %q", ErrUnknownCallback, name)
	}
	e.callbacks[name] = cb
	return nil
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if e.admin == ([20]byte{}) || caller != e.admin {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(transferEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) registry(collection [20]byte) (Registry, error) {
	if e == nil || e.registryFn == nil {
		return nil, errNilRegistry
	}
	reg, ok := e.registryFn(collection)
	if !ok || reg == nil {
		return nil, ErrUnknownCollection
	}
	return reg, nil
}

func (e *Engine) loadRecord(key Key) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, ok := e.state.TransferGet(key)
	if !ok {
		return nil, ErrNotFound
	}
	return SanitizeRecord(record)
}

func (e *Engine) callback(name string) (Callback, error) {
	if name == "" {
		return nil, nil
	}
	cb, ok := e.callbacks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCallback, name)
	}
	return cb, nil
}

// Record returns a copy of the in-flight record for the asset, if any.
func (e *Engine) Record(collection [20]byte, assetID uint64) (*Record, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	record, ok := e.state.TransferGet(Key{Collection: collection, AssetID: assetID})
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// EpochNumber returns the current transfer count for the asset.
func (e *Engine) EpochNumber(collection [20]byte, assetID uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.TransferCount(Key{Collection: collection, AssetID: assetID})
}

func (e *Engine) openRecord(collection [20]byte, assetID uint64, caller [20]byte, callbackName string) (*Record, error) {
	if e.state == nil {
		return nil, errNilState
	}
	reg, err := e.registry(collection)
	if err != nil {
		return nil, err
	}
	key := Key{Collection: collection, AssetID: assetID}
	if _, exists := e.state.TransferGet(key); exists {
		return nil, ErrAlreadyExists
	}
	if !reg.Exists(assetID) {
		return nil, ErrAssetNotFound
	}
	ok, err := reg.IsApprovedOrOwner(caller, assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthorized
	}
	if _, err := e.callback(callbackName); err != nil {
		return nil, err
	}
	owner, err := reg.OwnerOf(assetID)
	if err != nil {
		return nil, err
	}
	epoch, err := e.state.TransferCountBump(key)
	if err != nil {
		return nil, err
	}
	record := &Record{
		Collection:  collection,
		AssetID:     assetID,
		Initiator:   caller,
		From:        owner,
		Callback:    callbackName,
		EpochNumber: epoch,
	}
	return record, nil
}

// InitTransfer opens a fully-specified transfer whose recipient is known
// upfront. The caller must be holder-or-approved for the asset.
func (e *Engine) InitTransfer(collection [20]byte, assetID uint64, caller, to [20]byte, data []byte, callbackName string) error {
	if err := nativecommon.Guard(e.pauses, transferModuleName); err != nil {
		return err
	}
	record, err := e.openRecord(collection, assetID, caller, callbackName)
	if err != nil {
		return err
	}
	record.To = to
	record.ToSet = true
	record.AuxData = append([]byte(nil), data...)
	if err := e.state.TransferPut(record); err != nil {
		return err
	}
	e.emit(NewInitEvent(record))
	return nil
}

// DraftTransfer opens a transfer without a recipient, to be bound later via
// CompleteTransferDraft. A configured sales-start timestamp gates the call
// for everyone but the admin.
func (e *Engine) DraftTransfer(collection [20]byte, assetID uint64, caller [20]byte, callbackName string) error {
	if err := nativecommon.Guard(e.pauses, transferModuleName); err != nil {
		return err
	}
	if e.salesStart > 0 && e.now() < e.salesStart && (e.admin == ([20]byte{}) || caller != e.admin) {
		return ErrSalesNotStarted
	}
	record, err := e.openRecord(collection, assetID, caller, callbackName)
	if err != nil {
		return err
	}
	if err := e.state.TransferPut(record); err != nil {
		return err
	}
	e.emit(NewDraftedEvent(record))
	return nil
}

// CompleteTransferDraft binds the recipient and public key to a draft. Only
// the original draft initiator may call, exactly once; any attached pricing
// proof is validated before the record mutates.
func (e *Engine) CompleteTransferDraft(collection [20]byte, assetID uint64, caller, to [20]byte, publicKey, auxData []byte) error {
	if err := nativecommon.Guard(e.pauses, transferModuleName); err != nil {
		return err
	}
	record, err := e.loadRecord(Key{Collection: collection, AssetID: assetID})
	if err != nil {
		return err
	}
	if caller != record.Initiator {
		return ErrUnauthorized
	}
	if record.ToSet {
		return fmt.Errorf("%w: draft already completed", ErrInvalidState)
	}
	if len(publicKey) == 0 {
		return ErrEmptyPublicKey
	}
	if len(auxData) > 0 && e.policy != nil {
		if err := e.policy.Validate(collection, assetID, auxData); err != nil {
			return err
		}
	}
	now := e.now()
	record.To = to
	record.ToSet = true
	record.PublicKey = append([]byte(nil), publicKey...)
	record.PublicKeySetAt = now
	record.AuxData = append([]byte(nil), auxData...)
	record.EpochTimestamp = now
	record.EpochBlockHash = e.blockHashFn()
	if err := e.state.TransferPut(record); err != nil {
		return err
	}
	e.emit(NewDraftCompletedEvent(record))
	return nil
}

// SetTransferPublicKey lets the recorded recipient supply its public key on
// the direct (non-draft) path. The expected epoch must match the current
// transfer count so keys aimed at superseded transfers are rejected.
func (e *Engine) SetTransferPublicKey(collection [20]byte, assetID uint64, caller [20]byte, publicKey []byte, expectedEpoch uint64) error {
	if err := nativecommon.Guard(e.pauses, transferModuleName); err != nil {
		return err
	}
	key := Key{Collection: collection, AssetID: assetID}
	record, err := e.loadRecord(key)
	if err != nil {
		return err
	}
	if !record.ToSet || caller != record.To {
		return ErrUnauthorized
	}
	if len(record.PublicKey) > 0 {
		return fmt.Errorf("%w: public key already set", ErrInvalidState)
	}
	if len(publicKey) == 0 {
		return ErrEmptyPublicKey
	}
	current, err := e.state.TransferCount(key)
	if err != nil {
		return err
	}
	if expectedEpoch != current {
		return fmt.Errorf("%w: expected %d, current %d", ErrEpochMismatch, expectedEpoch, current)
	}
	record.PublicKey = append([]byte(nil), publicKey...)
	record.PublicKeySetAt = e.now()
	if err := e.state.TransferPut(record); err != nil {
		return err
	}
	e.emit(NewPublicKeySetEvent(record))
	return nil
}

// ApproveTransfer records the secret encrypted under the recipient's public
// key. Only the current holder may call, once the key is set and before any
// secret lands.
func (e *Engine) ApproveTransfer(collection [20]byte, assetID uint64, caller [20]byte, encryptedSecret []byte) error {
	if err := nativecommon.Guard(e.pauses, transferModuleName); err != nil {
		return err
	}
	record, err := e.loadRecord(Key{Collection: collection, AssetID: assetID})
	if err != nil {
		return err
	}
	if record.FraudReported {
		return ErrFraudReported
	}
	if caller != record.From {
		return ErrUnauthorized
	}
	if len(record.PublicKey) == 0 {
		return fmt.Errorf("%w: public key not set", ErrInvalidState)
	}
	if len(record.EncryptedSecret) > 0 {
		return fmt.Errorf("%w: secret already set", ErrInvalidState)
	}
	if len(encryptedSecret) == 0 {
		return ErrEmptySecret
	}
	record.EncryptedSecret = append([]byte(nil), encryptedSecret...)
	record.SecretSetAt = e.now()
	if err := e.state.TransferPut(record); err != nil {
		return err
	}
	e.emit(NewPasswordSetEvent(record))
	return nil
}

// FinalizeTransfer completes the handoff. The recipient may finalize any time
// after the secret is set; the holder may force-complete once the finalize
// window past SecretSetAt has elapsed.
func (e *Engine) FinalizeTransfer(collection [20]byte, assetID uint64, caller [20]byte) error {
	if err := nativecommon.Guard(e.pauses, transferModuleName); err != nil {
		return err
	}
	key := Key{Collection: collection, AssetID: assetID}
	record, err := e.loadRecord(key)
	if err != nil {
		return err
	}
	if record.FraudReported {
		return ErrFraudReported
	}
	if len(record.EncryptedSecret) == 0 {
		return fmt.Errorf("%w: secret not set", ErrInvalidState)
	}
	switch caller {
	case record.To:
	case record.From:
		if e.now() < record.SecretSetAt+e.finalizeTimeout {
			return ErrNotExpired
		}
	default:
		return ErrUnauthorized
	}
	cb, err := e.callback(record.Callback)
	if err != nil {
		return err
	}
	reg, err := e.registry(collection)
	if err != nil {
		return err
	}
	if err := reg.Transfer(record.From, record.To, assetID, nil); err != nil {
		return err
	}
	// Clear before notifying so re-entrant reads observe the terminal
	// state.
	if err := e.state.TransferDelete(key); err != nil {
		return err
	}
	if cb != nil {
		if err := cb.TransferFinished(collection, assetID); err != nil {
			return err
		}
	}
	e.emit(NewFinishedEvent(record))
	return nil
}

// ReportFraud lets the recipient contest the handoff by revealing the private
// key. The arbiter is consulted synchronously; if it declines and deferred
// decisions are disabled the whole call fails.
func (e *Engine) ReportFraud(collection [20]byte, assetID uint64, caller [20]byte, privateKey []byte) error {
	if err := nativecommon.Guard(e.pauses, transferModuleName); err != nil {
		return err
	}
	record, err := e.loadRecord(Key{Collection: collection, AssetID: assetID})
	if err != nil {
		return err
	}
	if record.FraudReported {
		return ErrFraudReported
	}
	if !record.ToSet || caller != record.To {
		return ErrUnauthorized
	}
	if len(record.EncryptedSecret) == 0 {
		return fmt.Errorf("%w: secret not set", ErrInvalidState)
	}
	decided, approved := false, false
	if e.arbiter != nil {
		meta := e.metadataHash(collection, assetID)
		var decideErr error
		decided, approved, decideErr = e.arbiter.Decide(assetID, meta, record.PublicKey, privateKey, record.EncryptedSecret)
		if decideErr != nil {
			return decideErr
		}
	}
	record.FraudReported = true
	if decided {
		e.emit(NewFraudReportedEvent(record))
		return e.resolveFraud(record, approved)
	}
	if !e.allowDeferred {
		return ErrFraudUndecided
	}
	if err := e.state.TransferPut(record); err != nil {
		return err
	}
	e.emit(NewFraudReportedEvent(record))
	return nil
}

// ApplyFraudDecision settles a deferred fraud report. Only the registered
// arbiter address may call, and only when deferred decisions are enabled.
func (e *Engine) ApplyFraudDecision(collection [20]byte, assetID uint64, caller [20]byte, approved bool) error {
	if err := nativecommon.Guard(e.pauses, transferModuleName); err != nil {
		return err
	}
	if e.arbiterAddr == ([20]byte{}) || caller != e.arbiterAddr {
		return ErrUnauthorized
	}
	if !e.allowDeferred {
		return ErrDeferredDisabled
	}
	record, err := e.loadRecord(Key{Collection: collection, AssetID: assetID})
	if err != nil {
		return err
	}
	if !record.FraudReported {
		return ErrFraudNotReported
	}
	return e.resolveFraud(record, approved)
}

// resolveFraud applies the arbitration outcome: an upheld report completes
// the asset to the recipient alongside the refund the coordinator issues;
// a rejected report leaves the asset with the holder. The record is deleted
// either way.
func (e *Engine) resolveFraud(record *Record, approved bool) error {
	key := record.Key()
	cb, err := e.callback(record.Callback)
	if err != nil {
		return err
	}
	if approved {
		reg, err := e.registry(record.Collection)
		if err != nil {
			return err
		}
		if err := reg.Transfer(record.From, record.To, record.AssetID, nil); err != nil {
			return err
		}
	}
	if err := e.state.TransferDelete(key); err != nil {
		return err
	}
	if cb != nil {
		if err := cb.TransferFraudDetected(record.Collection, record.AssetID, approved); err != nil {
			return err
		}
	}
	e.emit(NewFraudDecidedEvent(record, approved))
	return nil
}

// CancelTransfer tears the transfer down. The holder may always cancel, the
// initiator only while the draft is unclaimed, and the recipient once the
// abandonment window past PublicKeySetAt elapses with no secret supplied.
func (e *Engine) CancelTransfer(collection [20]byte, assetID uint64, caller [20]byte) error {
	if err := nativecommon.Guard(e.pauses, transferModuleName); err != nil {
		return err
	}
	key := Key{Collection: collection, AssetID: assetID}
	record, err := e.loadRecord(key)
	if err != nil {
		return err
	}
	if record.FraudReported {
		return ErrFraudReported
	}
	switch {
	case caller == record.From:
	case caller == record.Initiator && !record.ToSet:
	case record.ToSet && caller == record.To:
		if len(record.EncryptedSecret) > 0 {
			return fmt.Errorf("%w: secret already delivered", ErrInvalidState)
		}
		if len(record.PublicKey) == 0 {
			return ErrUnauthorized
		}
		if e.now() < record.PublicKeySetAt+e.abandonTimeout {
			return ErrNotExpired
		}
	default:
		return ErrUnauthorized
	}
	cb, err := e.callback(record.Callback)
	if err != nil {
		return err
	}
	if err := e.state.TransferDelete(key); err != nil {
		return err
	}
	if cb != nil {
		if err := cb.TransferCancelled(collection, assetID); err != nil {
			return err
		}
	}
	e.emit(NewCancelledEvent(record))
	return nil
}

func (e *Engine) metadataHash(collection [20]byte, assetID uint64) [32]byte {
	reg, err := e.registry(collection)
	if err != nil {
		return [32]byte{}
	}
	if src, ok := reg.(MetadataSource); ok {
		if meta, err := src.MetadataHash(assetID); err == nil {
			return meta
		}
	}
	return [32]byte{}
}
