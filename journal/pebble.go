package journal

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"

	"github.com/Hawthorne001/execution-coordinator/db"
	"github.com/Hawthorne001/execution-coordinator/db/pebbledb"
)

// recordKeyPrefix namespaces journal entries within the pebble keyspace, in
// case the same store is ever shared with other data.
var recordKeyPrefix = []byte("journal/record/")

// cborRecord is the on-disk shape; a plain struct tag-less type keeps the
// encoding stable regardless of how Record gains fields later.
type cborRecord struct {
	Kind                 string
	FutureID             string
	NetworkInteractionID int
	Nonce                uint64
}

// PebbleSink is the durable journal sink backend, backed by an embedded
// pebble store. Record commits synchronously before returning, satisfying
// the "persisted before broadcast" contract.
type PebbleSink struct {
	database db.Database
	seq      atomic.Uint64
	mu       sync.Mutex
	closed   bool
}

var _ Sink = (*PebbleSink)(nil)

// OpenPebbleSink opens (creating if necessary) a pebble-backed sink at path.
func OpenPebbleSink(path string) (*PebbleSink, error) {
	pdb, err := pebbledb.New(db.Options{Path: path})
	if err != nil {
		return nil, fmt.Errorf("journal: open pebble store: %w", err)
	}
	s := &PebbleSink{database: pdb}
	s.seq.Store(s.recoverSeq())
	return s, nil
}

// recoverSeq scans existing keys to resume the append sequence after a
// restart, so newly written keys still sort after everything recovered.
func (s *PebbleSink) recoverSeq() uint64 {
	var max uint64
	_ = s.database.Iterate(recordKeyPrefix, func(k, _ []byte) bool {
		if len(k) == 8 {
			if n := binary.BigEndian.Uint64(k); n > max {
				max = n
			}
		}
		return true
	})
	return max
}

func recordKey(seq uint64) []byte {
	k := make([]byte, len(recordKeyPrefix)+8)
	copy(k, recordKeyPrefix)
	binary.BigEndian.PutUint64(k[len(recordKeyPrefix):], seq)
	return k
}

// Record implements Sink.
func (s *PebbleSink) Record(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	payload, err := cbor.Marshal(cborRecord{
		Kind:                 string(rec.Kind),
		FutureID:             rec.FutureID,
		NetworkInteractionID: rec.NetworkInteractionID,
		Nonce:                rec.Nonce,
	})
	if err != nil {
		return fmt.Errorf("journal: encode record: %w", err)
	}

	seq := s.seq.Add(1)
	tx := s.database.WriteTx()
	if err := tx.Set(recordKey(seq), payload); err != nil {
		tx.Discard()
		return fmt.Errorf("journal: stage record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: commit record: %w", err)
	}
	return nil
}

// Records implements Sink.
func (s *PebbleSink) Records(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	var out []Record
	var iterErr error
	err := s.database.Iterate(recordKeyPrefix, func(_, v []byte) bool {
		var cr cborRecord
		if err := cbor.Unmarshal(v, &cr); err != nil {
			iterErr = fmt.Errorf("journal: decode record: %w", err)
			return false
		}
		out = append(out, Record{
			Kind:                 RecordKind(cr.Kind),
			FutureID:             cr.FutureID,
			NetworkInteractionID: cr.NetworkInteractionID,
			Nonce:                cr.Nonce,
		})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("journal: iterate records: %w", err)
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return out, nil
}

// Close implements Sink.
func (s *PebbleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.database.Close()
}
