package journal

import (
	"context"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/Hawthorne001/execution-coordinator/db"
	"github.com/Hawthorne001/execution-coordinator/db/inmemory"
)

// MemorySink is a Journal Sink backend for tests: durable only within the
// lifetime of the test process, which is the contract a unit test actually
// needs.
type MemorySink struct {
	database db.Database
	mu       sync.Mutex
	seq      uint64
	closed   bool
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	idb, _ := inmemory.New(db.Options{})
	return &MemorySink{database: idb}
}

// Record implements Sink.
func (s *MemorySink) Record(_ context.Context, rec Record) error {
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

	s.seq++
	tx := s.database.WriteTx()
	if err := tx.Set(recordKey(s.seq), payload); err != nil {
		tx.Discard()
		return fmt.Errorf("journal: stage record: %w", err)
	}
	return tx.Commit()
}

// Records implements Sink.
func (s *MemorySink) Records(_ context.Context) ([]Record, error) {
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
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return out, nil
}

// Close implements Sink.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.database.Close()
}
