package events

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/renaultluk/sweat-coin/core/types"
)

var bucketJournal = []byte("journal")

// Journal is an append-only, BoltDB-backed event log. Events are keyed by a
// monotonically increasing sequence number so replay order matches emit order.
type Journal struct {
	db *bolt.DB
}

type journalRecord struct {
	Sequence   uint64            `json:"sequence"`
	RecordedAt int64             `json:"recordedAt"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// OpenJournal initialises the journal file at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketJournal)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append persists the event and returns its assigned sequence number.
func (j *Journal) Append(evt *types.Event) (uint64, error) {
	if evt == nil {
		return 0, fmt.Errorf("events: nil event")
	}
	var seq uint64
	err := j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketJournal)
		next, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		record := journalRecord{
			Sequence:   next,
			RecordedAt: time.Now().Unix(),
			Type:       evt.Type,
			Attributes: evt.Attributes,
		}
		payload, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := bucket.Put(sequenceKey(next), payload); err != nil {
			return err
		}
		seq = next
		return nil
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// Emit satisfies the Emitter interface. Persistence failures are swallowed by
// design: the journal is a downstream convenience, never a veto on the state
// transition that already happened.
func (j *Journal) Emit(evt *types.Event) {
	if j == nil {
		return
	}
	_, _ = j.Append(evt)
}

// Replay invokes fn for every stored event with sequence >= from, in append
// order. Iteration stops early if fn returns an error.
func (j *Journal) Replay(from uint64, fn func(seq uint64, evt *types.Event) error) error {
	if fn == nil {
		return fmt.Errorf("events: nil replay func")
	}
	return j.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketJournal).Cursor()
		for key, value := cursor.Seek(sequenceKey(from)); key != nil; key, value = cursor.Next() {
			var record journalRecord
			if err := json.Unmarshal(value, &record); err != nil {
				return fmt.Errorf("events: corrupt journal record %x: %w", key, err)
			}
			evt := &types.Event{Type: record.Type, Attributes: record.Attributes}
			if err := fn(record.Sequence, evt); err != nil {
				return err
			}
		}
		return nil
	})
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
