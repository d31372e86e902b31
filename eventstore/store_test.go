package eventstore

import (
	"path/filepath"
	"testing"
	"time"

	"cipherex/core/types"
)

type testEvent struct {
	evt *types.Event
}

func (e testEvent) EventType() string   { return e.evt.Type }
func (e testEvent) Event() *types.Event { return e.evt }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "events.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	store.SetNowFunc(func() time.Time { return time.Unix(1700000000, 0) })
	return store
}

func TestAppendAssignsSequence(t *testing.T) {
	store := openTestStore(t)

	for i := 1; i <= 3; i++ {
		seq, err := store.Append(testEvent{evt: &types.Event{
			Type:       "transfer.finished",
			Attributes: map[string]string{"assetId": "7"},
		}})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if seq != uint64(i) {
			t.Fatalf("expected sequence %d, got %d", i, seq)
		}
	}

	entries, err := store.Latest(2)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Sequence != 3 || entries[1].Sequence != 2 {
		t.Fatalf("unexpected order: %d, %d", entries[0].Sequence, entries[1].Sequence)
	}
	if entries[0].Attributes["assetId"] != "7" {
		t.Fatalf("attributes lost: %+v", entries[0])
	}
	if !entries[0].ObservedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected timestamp %v", entries[0].ObservedAt)
	}
}

func TestByTypeFiltersAndOrders(t *testing.T) {
	store := openTestStore(t)

	emitOne := func(eventType string) {
		t.Helper()
		if _, err := store.Append(testEvent{evt: &types.Event{Type: eventType}}); err != nil {
			t.Fatalf("append %s: %v", eventType, err)
		}
	}
	emitOne("exchange.order_placed")
	emitOne("transfer.finished")
	emitOne("exchange.order_placed")
	emitOne("exchange.order_cancelled")

	entries, err := store.ByType("exchange.order_placed", 10)
	if err != nil {
		t.Fatalf("by type: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Sequence != 3 || entries[1].Sequence != 1 {
		t.Fatalf("unexpected sequences: %d, %d", entries[0].Sequence, entries[1].Sequence)
	}

	entries, err = store.ByType("transfer.cancelled", 10)
	if err != nil {
		t.Fatalf("by type: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries for unused type, got %d", len(entries))
	}
}

func TestEmitSurvivesAfterClose(t *testing.T) {
	store := openTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Fire-and-forget path must not panic once the handle is gone.
	store.Emit(testEvent{evt: &types.Event{Type: "transfer.init"}})
	if _, err := store.Append(testEvent{evt: &types.Event{Type: "transfer.init"}}); err == nil {
		t.Fatalf("expected append error after close")
	}
}
