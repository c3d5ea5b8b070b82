// Package journal implements the journal sink: an append-only log of typed
// records used for crash recovery. The core writes exactly one record kind,
// TRANSACTION_PREPARE_SEND, before every broadcast.
package journal

import (
	"context"
	"errors"
)

// RecordKind enumerates the journal's record types. Only one exists today;
// the type exists so a future record kind doesn't require an interface
// change.
type RecordKind string

// KindTransactionPrepareSend is written by the Send Pipeline immediately
// before broadcasting, recording the nonce it is about to commit to.
const KindTransactionPrepareSend RecordKind = "TRANSACTION_PREPARE_SEND"

// Record is one journal entry.
type Record struct {
	Kind                 RecordKind
	FutureID             string
	NetworkInteractionID int
	Nonce                uint64
}

// ErrClosed is returned by Record/Records after Close.
var ErrClosed = errors.New("journal: sink closed")

// Sink is the durability contract both backends satisfy: Record returns
// only once the entry is persisted sufficiently that a post-crash replay of
// Records will observe it.
type Sink interface {
	// Record durably appends rec. It must be called, and must return,
	// before the corresponding transaction is broadcast.
	Record(ctx context.Context, rec Record) error

	// Records replays every entry written so far, in append order. Used by
	// the execution engine on restart to recover in-flight nonce
	// reservations; the core itself never calls this.
	Records(ctx context.Context) ([]Record, error)

	Close() error
}
