// Package eventstore keeps a durable, ordered index of engine events so
// operators can replay what the coordinator did without scraping logs.
package eventstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"

	"cipherex/core/events"
	"cipherex/core/types"
)

var (
	bucketEvents = []byte("events")
	bucketByType = []byte("by_type")

	// ErrClosed is returned when the store is used after Close.
	ErrClosed = errors.New("eventstore: closed")
)

// Entry is a persisted event together with its assigned sequence number.
type Entry struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	ObservedAt time.Time         `json:"observedAt"`
}

// Store is a BoltDB-backed event index. It implements events.Emitter so it
// can sit directly in the engines' emitter fan-out.
type Store struct {
	db    *bolt.DB
	nowFn func() time.Time
}

// Open initialises (and migrates) the Bolt database at path.
func Open(path string, options *bolt.Options) (*Store, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEvents, bucketByType} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, nowFn: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetNowFunc overrides the clock used to timestamp entries.
func (s *Store) SetNowFunc(now func() time.Time) {
	if s != nil && now != nil {
		s.nowFn = now
	}
}

// Emit implements events.Emitter. Emission is fire-and-forget for the
// engines, so persistence failures are swallowed here; use Append when the
// caller wants the error.
func (s *Store) Emit(evt events.Event) {
	_, _ = s.Append(evt)
}

// Append persists the event and returns its assigned sequence number.
func (s *Store) Append(evt events.Event) (uint64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	if evt == nil {
		return 0, nil
	}
	entry := Entry{Type: evt.EventType(), ObservedAt: s.nowFn().UTC()}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			entry.Attributes = make(map[string]string, len(payload.Attributes))
			for k, v := range payload.Attributes {
				entry.Attributes[k] = v
			}
		}
	}
	var seq uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)
		next, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		entry.Sequence = next
		encoded, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := bucket.Put(seqKey(next), encoded); err != nil {
			return err
		}
		seq = next
		return tx.Bucket(bucketByType).Put(typeKey(entry.Type, next), seqKey(next))
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// Latest returns up to limit entries in reverse sequence order.
func (s *Store) Latest(limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return nil, nil
	}
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketEvents).Cursor()
		for key, value := cursor.Last(); key != nil && len(entries) < limit; key, value = cursor.Prev() {
			var entry Entry
			if err := json.Unmarshal(value, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ByType returns up to limit entries of the given event type in reverse
// sequence order.
func (s *Store) ByType(eventType string, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 || eventType == "" {
		return nil, nil
	}
	prefix := append([]byte(eventType), '/')
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		eventsBucket := tx.Bucket(bucketEvents)
		cursor := tx.Bucket(bucketByType).Cursor()
		// Seek to the end of the type's key range, then walk backwards.
		key, seqRef := cursor.Seek(prefixEnd(prefix))
		if key == nil {
			key, seqRef = cursor.Last()
		} else {
			key, seqRef = cursor.Prev()
		}
		for ; key != nil && len(entries) < limit; key, seqRef = cursor.Prev() {
			if !hasPrefix(key, prefix) {
				break
			}
			raw := eventsBucket.Get(seqRef)
			if raw == nil {
				continue
			}
			var entry Entry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func typeKey(eventType string, seq uint64) []byte {
	key := make([]byte, 0, len(eventType)+9)
	key = append(key, eventType...)
	key = append(key, '/')
	return append(key, seqKey(seq)...)
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}

// prefixEnd returns the smallest key strictly greater than every key with
// the given prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return append(end, 0xFF)
}
