package assets

import (
	"encoding/hex"
	"strconv"

	"cipherex/core/events"
	"cipherex/core/types"
)

const (
	EventTypeCollectionCreated = "assets.collection_created"
	EventTypeTokenMinted       = "assets.token_minted"
	EventTypeTokenTransferred  = "assets.token_transferred"
	EventTypeContentAssigned   = "assets.content_assigned"
)

type ledgerState interface {
	CollectionGet(addr [20]byte) (*Collection, bool)
	CollectionPut(*Collection) error
	TokenGet(collection [20]byte, id uint64) (*Token, bool)
	TokenPut(*Token) error
}

type assetEvent struct {
	evt *types.Event
}

func (e assetEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e assetEvent) Event() *types.Event { return e.evt }

// Ledger is the minimal asset registry the protocol consumes: identity,
// ownership, approvals and existence. Enumeration, metadata URIs beyond a
// single string and batch minting stay outside the module.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
}

// NewLedger creates a ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetEmitter configures the event emitter. Nil resets to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt *types.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(assetEvent{evt: evt})
}

// CreateCollection registers a new collection address.
func (l *Ledger) CreateCollection(addr, creator [20]byte, name, symbol string) error {
	if _, ok := l.state.CollectionGet(addr); ok {
		return ErrCollectionExists
	}
	col := &Collection{Address: addr, Name: name, Symbol: symbol, Creator: creator}
	if err := l.state.CollectionPut(col); err != nil {
		return err
	}
	l.emit(&types.Event{Type: EventTypeCollectionCreated, Attributes: map[string]string{
		"collection": hex.EncodeToString(addr[:]),
		"name":       name,
		"symbol":     symbol,
	}})
	return nil
}

// Mint creates a token under the collection. Only the collection creator may
// mint.
func (l *Ledger) Mint(collection [20]byte, caller, owner [20]byte, id uint64, metaHash [32]byte, metaURI string) error {
	col, ok := l.state.CollectionGet(collection)
	if !ok {
		return ErrCollectionNotFound
	}
	if caller != col.Creator {
		return ErrUnauthorized
	}
	if _, ok := l.state.TokenGet(collection, id); ok {
		return ErrTokenExists
	}
	token := &Token{Collection: collection, ID: id, Owner: owner, MetaHash: metaHash, MetaURI: metaURI}
	if err := l.state.TokenPut(token); err != nil {
		return err
	}
	l.emit(&types.Event{Type: EventTypeTokenMinted, Attributes: map[string]string{
		"collection": hex.EncodeToString(collection[:]),
		"assetId":    strconv.FormatUint(id, 10),
		"owner":      hex.EncodeToString(owner[:]),
	}})
	return nil
}

// Approve grants (or clears, with the zero address) the single operator slot
// for the token. Only the owner may approve.
func (l *Ledger) Approve(collection [20]byte, caller, operator [20]byte, id uint64) error {
	token, ok := l.state.TokenGet(collection, id)
	if !ok {
		return ErrTokenNotFound
	}
	if caller != token.Owner {
		return ErrUnauthorized
	}
	token.Approved = operator
	token.ApprovedSet = operator != ([20]byte{})
	return l.state.TokenPut(token)
}

// AssignContent marks the token's hidden content as bound and records its
// hash. Only the collection creator may assign.
func (l *Ledger) AssignContent(collection [20]byte, caller [20]byte, id uint64, metaHash [32]byte) error {
	col, ok := l.state.CollectionGet(collection)
	if !ok {
		return ErrCollectionNotFound
	}
	if caller != col.Creator {
		return ErrUnauthorized
	}
	token, ok := l.state.TokenGet(collection, id)
	if !ok {
		return ErrTokenNotFound
	}
	token.ContentAssigned = true
	token.MetaHash = metaHash
	if err := l.state.TokenPut(token); err != nil {
		return err
	}
	l.emit(&types.Event{Type: EventTypeContentAssigned, Attributes: map[string]string{
		"collection": hex.EncodeToString(collection[:]),
		"assetId":    strconv.FormatUint(id, 10),
	}})
	return nil
}

// Token returns a copy of the stored token.
func (l *Ledger) Token(collection [20]byte, id uint64) (*Token, bool) {
	token, ok := l.state.TokenGet(collection, id)
	if !ok {
		return nil, false
	}
	return token.Clone(), true
}

// ContentAssigned reports whether the token's hidden content is bound.
// Satisfies the whitelist policy's content source.
func (l *Ledger) ContentAssigned(collection [20]byte, id uint64) (bool, error) {
	token, ok := l.state.TokenGet(collection, id)
	if !ok {
		return false, ErrTokenNotFound
	}
	return token.ContentAssigned, nil
}

// View returns the per-collection registry consumed by the transfer engine,
// or false when the collection is unknown.
func (l *Ledger) View(collection [20]byte) (*CollectionView, bool) {
	if _, ok := l.state.CollectionGet(collection); !ok {
		return nil, false
	}
	return &CollectionView{ledger: l, collection: collection}, true
}

// CollectionView scopes registry operations to one collection. It satisfies
// the transfer engine's Registry and MetadataSource interfaces.
type CollectionView struct {
	ledger     *Ledger
	collection [20]byte
}

func (v *CollectionView) Exists(assetID uint64) bool {
	_, ok := v.ledger.state.TokenGet(v.collection, assetID)
	return ok
}

func (v *CollectionView) OwnerOf(assetID uint64) ([20]byte, error) {
	token, ok := v.ledger.state.TokenGet(v.collection, assetID)
	if !ok {
		return [20]byte{}, ErrTokenNotFound
	}
	return token.Owner, nil
}

func (v *CollectionView) IsApprovedOrOwner(caller [20]byte, assetID uint64) (bool, error) {
	token, ok := v.ledger.state.TokenGet(v.collection, assetID)
	if !ok {
		return false, ErrTokenNotFound
	}
	if caller == token.Owner {
		return true, nil
	}
	return token.ApprovedSet && caller == token.Approved, nil
}

func (v *CollectionView) MetadataHash(assetID uint64) ([32]byte, error) {
	token, ok := v.ledger.state.TokenGet(v.collection, assetID)
	if !ok {
		return [32]byte{}, ErrTokenNotFound
	}
	return token.MetaHash, nil
}

// Transfer moves ownership and clears the approval slot. The data argument is
// carried for interface parity and ignored by the ledger.
func (v *CollectionView) Transfer(from, to [20]byte, assetID uint64, data []byte) error {
	token, ok := v.ledger.state.TokenGet(v.collection, assetID)
	if !ok {
		return ErrTokenNotFound
	}
	if token.Owner != from {
		return ErrWrongOwner
	}
	token.Owner = to
	token.Approved = [20]byte{}
	token.ApprovedSet = false
	if err := v.ledger.state.TokenPut(token); err != nil {
		return err
	}
	v.ledger.emit(&types.Event{Type: EventTypeTokenTransferred, Attributes: map[string]string{
		"collection": hex.EncodeToString(v.collection[:]),
		"assetId":    strconv.FormatUint(assetID, 10),
		"from":       hex.EncodeToString(from[:]),
		"to":         hex.EncodeToString(to[:]),
	}})
	return nil
}
