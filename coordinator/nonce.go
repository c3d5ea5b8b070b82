package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/Hawthorne001/execution-coordinator/rpc"
	"github.com/Hawthorne001/execution-coordinator/types"
)

// NonceAllocator is the Nonce Allocator (B). Its view of "next unused
// nonce" per sender is bookkeeping only: the actual reservation is
// completed when the Send Pipeline writes the nonce onto the interaction
// and journals it.
type NonceAllocator struct {
	rpc  RPCClient
	mu   sync.Mutex
	next map[types.Sender]uint64
}

// NewNonceAllocator returns an allocator that lazily initializes each
// sender's view from the node's pending transaction count.
func NewNonceAllocator(cli RPCClient) *NonceAllocator {
	return &NonceAllocator{rpc: cli, next: make(map[types.Sender]uint64)}
}

// GetNextNonce returns a nonce not currently held by any live interaction
// for sender, and at least the node's pending count as of the first call
// for that sender.
func (a *NonceAllocator) GetNextNonce(ctx context.Context, sender types.Sender) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n, ok := a.next[sender]
	if !ok {
		pending, err := a.rpc.GetTransactionCount(ctx, sender, rpc.Pending())
		if err != nil {
			return 0, fmt.Errorf("nonce allocator: init view for %s: %w", sender, err)
		}
		n = pending
	}
	a.next[sender] = n + 1
	return n, nil
}

// Advance raises sender's floor to at least atLeast, without allocating.
// SyncEngine.syncSender calls this every pass with the larger of the node's
// pending and latest transaction counts, so a restart (or a transaction
// sent through another process) never causes a subsequent GetNextNonce to
// reissue an already-used nonce.
func (a *NonceAllocator) Advance(sender types.Sender, atLeast uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, ok := a.next[sender]; !ok || atLeast > cur {
		a.next[sender] = atLeast
	}
}
