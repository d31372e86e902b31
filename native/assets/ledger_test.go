package assets

import (
	"errors"
	"testing"

	"cipherex/core/events"
)

type mockState struct {
	collections map[[20]byte]*Collection
	tokens      map[[28]byte]*Token
}

func newMockState() *mockState {
	return &mockState{
		collections: make(map[[20]byte]*Collection),
		tokens:      make(map[[28]byte]*Token),
	}
}

func tokenKey(collection [20]byte, id uint64) [28]byte {
	var key [28]byte
	copy(key[:20], collection[:])
	for i := 0; i < 8; i++ {
		key[20+i] = byte(id >> (8 * (7 - i)))
	}
	return key
}

func (m *mockState) CollectionGet(addr [20]byte) (*Collection, bool) {
	col, ok := m.collections[addr]
	if !ok {
		return nil, false
	}
	return col.Clone(), true
}

func (m *mockState) CollectionPut(col *Collection) error {
	m.collections[col.Address] = col.Clone()
	return nil
}

func (m *mockState) TokenGet(collection [20]byte, id uint64) (*Token, bool) {
	token, ok := m.tokens[tokenKey(collection, id)]
	if !ok {
		return nil, false
	}
	return token.Clone(), true
}

func (m *mockState) TokenPut(token *Token) error {
	m.tokens[tokenKey(token.Collection, token.ID)] = token.Clone()
	return nil
}

type capturingEmitter struct {
	events []string
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt.EventType())
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func newTestLedger() (*Ledger, *mockState, *capturingEmitter) {
	state := newMockState()
	emitter := &capturingEmitter{}
	ledger := NewLedger()
	ledger.SetState(state)
	ledger.SetEmitter(emitter)
	return ledger, state, emitter
}

func TestCreateCollectionAndMint(t *testing.T) {
	ledger, _, emitter := newTestLedger()
	collection := addr(0x01)
	creator := addr(0x0A)
	owner := addr(0x02)

	if err := ledger.CreateCollection(collection, creator, "Boxes", "BOX"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ledger.CreateCollection(collection, creator, "Boxes", "BOX"); !errors.Is(err, ErrCollectionExists) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	meta := [32]byte{0xAA}
	if err := ledger.Mint(collection, creator, owner, 7, meta, "ipfs://box/7"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Mint(collection, owner, owner, 8, meta, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-creator mint, got %v", err)
	}
	if err := ledger.Mint(collection, creator, owner, 7, meta, ""); !errors.Is(err, ErrTokenExists) {
		t.Fatalf("duplicate mint, got %v", err)
	}
	if err := ledger.Mint(addr(0x42), creator, owner, 1, meta, ""); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("unknown collection mint, got %v", err)
	}

	token, ok := ledger.Token(collection, 7)
	if !ok {
		t.Fatalf("token missing")
	}
	if token.Owner != owner || token.MetaHash != meta || token.MetaURI != "ipfs://box/7" {
		t.Fatalf("unexpected token %+v", token)
	}
	want := []string{EventTypeCollectionCreated, EventTypeTokenMinted}
	if len(emitter.events) != len(want) || emitter.events[0] != want[0] || emitter.events[1] != want[1] {
		t.Fatalf("events %v", emitter.events)
	}
}

func TestApproveSingleSlot(t *testing.T) {
	ledger, _, _ := newTestLedger()
	collection := addr(0x01)
	creator := addr(0x0A)
	owner := addr(0x02)
	operator := addr(0x03)

	if err := ledger.CreateCollection(collection, creator, "Boxes", "BOX"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ledger.Mint(collection, creator, owner, 1, [32]byte{}, ""); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Approve(collection, operator, operator, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner approve, got %v", err)
	}
	if err := ledger.Approve(collection, owner, operator, 1); err != nil {
		t.Fatalf("approve: %v", err)
	}

	view, ok := ledger.View(collection)
	if !ok {
		t.Fatalf("view missing")
	}
	for caller, want := range map[[20]byte]bool{owner: true, operator: true, addr(0x04): false} {
		got, err := view.IsApprovedOrOwner(caller, 1)
		if err != nil {
			t.Fatalf("approved check: %v", err)
		}
		if got != want {
			t.Fatalf("caller %x approved=%v, want %v", caller[:1], got, want)
		}
	}

	// Approving the zero address clears the slot.
	if err := ledger.Approve(collection, owner, [20]byte{}, 1); err != nil {
		t.Fatalf("clear approval: %v", err)
	}
	got, err := view.IsApprovedOrOwner(operator, 1)
	if err != nil || got {
		t.Fatalf("approval not cleared: got=%v err=%v", got, err)
	}
}

func TestViewTransferClearsApproval(t *testing.T) {
	ledger, _, _ := newTestLedger()
	collection := addr(0x01)
	creator := addr(0x0A)
	owner := addr(0x02)
	operator := addr(0x03)
	buyer := addr(0x04)

	if err := ledger.CreateCollection(collection, creator, "Boxes", "BOX"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ledger.Mint(collection, creator, owner, 1, [32]byte{}, ""); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Approve(collection, owner, operator, 1); err != nil {
		t.Fatalf("approve: %v", err)
	}

	view, _ := ledger.View(collection)
	if err := view.Transfer(operator, buyer, 1, nil); !errors.Is(err, ErrWrongOwner) {
		t.Fatalf("transfer from non-owner, got %v", err)
	}
	if err := view.Transfer(owner, buyer, 1, nil); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	token, _ := ledger.Token(collection, 1)
	if token.Owner != buyer {
		t.Fatalf("owner not moved")
	}
	if token.ApprovedSet {
		t.Fatalf("approval must clear on transfer")
	}
	ok, err := view.IsApprovedOrOwner(operator, 1)
	if err != nil || ok {
		t.Fatalf("stale operator still approved")
	}
}

func TestAssignContent(t *testing.T) {
	ledger, _, _ := newTestLedger()
	collection := addr(0x01)
	creator := addr(0x0A)
	owner := addr(0x02)

	if err := ledger.CreateCollection(collection, creator, "Boxes", "BOX"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ledger.Mint(collection, creator, owner, 1, [32]byte{}, ""); err != nil {
		t.Fatalf("mint: %v", err)
	}

	assigned, err := ledger.ContentAssigned(collection, 1)
	if err != nil || assigned {
		t.Fatalf("fresh token assigned=%v err=%v", assigned, err)
	}

	meta := [32]byte{0xBB}
	if err := ledger.AssignContent(collection, owner, 1, meta); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-creator assign, got %v", err)
	}
	if err := ledger.AssignContent(collection, creator, 1, meta); err != nil {
		t.Fatalf("assign: %v", err)
	}

	assigned, err = ledger.ContentAssigned(collection, 1)
	if err != nil || !assigned {
		t.Fatalf("assigned=%v err=%v", assigned, err)
	}
	view, _ := ledger.View(collection)
	hash, err := view.MetadataHash(1)
	if err != nil || hash != meta {
		t.Fatalf("metadata hash %x err=%v", hash, err)
	}
	if _, err := view.MetadataHash(99); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("missing token hash, got %v", err)
	}
}

func TestViewUnknownCollection(t *testing.T) {
	ledger, _, _ := newTestLedger()
	if _, ok := ledger.View(addr(0x42)); ok {
		t.Fatalf("view over unknown collection")
	}
}
