package coordinator

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/Hawthorne001/execution-coordinator/log"
	"github.com/Hawthorne001/execution-coordinator/rpc"
	"github.com/Hawthorne001/execution-coordinator/types"
)

// pendingEntry is one locally-tracked, unconfirmed on-chain interaction as
// seen by a sync pass.
type pendingEntry struct {
	execStateID string
	niID        int
	nonce       uint64
	txHashes    []common.Hash
}

// SyncEngine is the Nonce Sync Engine (E): reconciles the locally-tracked
// pending-transaction set with on-chain transaction counts, emitting
// reconciliation events or a blocking error.
type SyncEngine struct {
	rpc              RPCClient
	nonces           *NonceAllocator
	concurrencyLimit int
}

// NewSyncEngine returns a SyncEngine bounding cross-sender concurrency to
// concurrencyLimit (0 means unbounded). nonces may be nil, in which case the
// engine never raises an allocator's floor; pass the allocator the send
// pipeline shares with this engine to keep the two in step after a restart.
func NewSyncEngine(cli RPCClient, nonces *NonceAllocator, concurrencyLimit int) *SyncEngine {
	return &SyncEngine{rpc: cli, nonces: nonces, concurrencyLimit: concurrencyLimit}
}

// Sync reconciles every sender's locally-tracked pending interactions
// against on-chain state. Sync passes run concurrently across senders
// (bounded by concurrencyLimit); within one sender's pass the four-field
// snapshot is read once and reused for every entry, not refreshed mid-pass.
func (e *SyncEngine) Sync(
	ctx context.Context,
	state types.DeploymentState,
	module types.Module,
	accounts []types.Sender,
	defaultSender types.Sender,
	requiredConfirmations uint64,
) ([]Event, error) {
	pending := e.buildPending(state, module, accounts, defaultSender)

	senders := make([]types.Sender, 0, len(pending))
	for s := range pending {
		senders = append(senders, s)
	}
	// Deterministic sender order so a fixed set of RPC observations always
	// produces the same event ordering, independent of map iteration and
	// goroutine scheduling.
	sort.Slice(senders, func(i, j int) bool { return senders[i].Hex() < senders[j].Hex() })

	// Each sender's events land in its own slot, concatenated in sorted
	// sender order once every pass has finished.
	perSender := make([][]Event, len(senders))

	g, gctx := errgroup.WithContext(ctx)
	if e.concurrencyLimit > 0 {
		g.SetLimit(e.concurrencyLimit)
	}
	for i, sender := range senders {
		list := pending[sender]
		g.Go(func() error {
			senderEvents, err := e.syncSender(gctx, sender, list, requiredConfirmations)
			if err != nil {
				return err
			}
			perSender[i] = senderEvents
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var events []Event
	for _, senderEvents := range perSender {
		events = append(events, senderEvents...)
	}
	return events, nil
}

// syncSender reconciles one sender's pending entries against on-chain
// transaction counts and liveness of each tracked hash.
func (e *SyncEngine) syncSender(ctx context.Context, sender types.Sender, list []pendingEntry, requiredConfirmations uint64) ([]Event, error) {
	// Step 1.
	block, err := e.rpc.GetLatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: get latest block for %s: %w", sender.Hex(), err)
	}
	var safeCount *uint64
	if block+1 >= requiredConfirmations {
		safeBlockNum := block + 1 - requiredConfirmations
		sc, err := e.rpc.GetTransactionCount(ctx, sender, rpc.AtBlock(safeBlockNum))
		if err != nil {
			return nil, fmt.Errorf("sync: get safe-block tx count for %s: %w", sender.Hex(), err)
		}
		safeCount = &sc
	}

	// Steps 3-4.
	pendingCount, err := e.rpc.GetTransactionCount(ctx, sender, rpc.Pending())
	if err != nil {
		return nil, fmt.Errorf("sync: get pending tx count for %s: %w", sender.Hex(), err)
	}
	latestCount, err := e.rpc.GetTransactionCount(ctx, sender, rpc.Latest())
	if err != nil {
		return nil, fmt.Errorf("sync: get latest tx count for %s: %w", sender.Hex(), err)
	}

	// The node's counts are authoritative: if either is ahead of this
	// process's bookkeeping (e.g. after a restart, or a transaction sent
	// through another process), raise the allocator's floor so the next
	// GetNextNonce for sender never reissues an already-used nonce.
	if e.nonces != nil {
		if pendingCount > latestCount {
			e.nonces.Advance(sender, pendingCount)
		} else {
			e.nonces.Advance(sender, latestCount)
		}
	}

	// Step 5.
	hasUnconfirmed := pendingCount > 0
	if safeCount != nil {
		hasUnconfirmed = *safeCount != pendingCount
	}

	log.Debugw("sync snapshot", "sender", sender.Hex(), "latestBlock", block,
		"safeCount", safeCount, "pendingCount", pendingCount, "latestCount", latestCount)

	// Case 0.
	if len(list) == 0 {
		if hasUnconfirmed {
			return nil, &WaitingForConfirmationsError{Sender: sender, RequiredConfirmations: requiredConfirmations}
		}
		return nil, nil
	}

	var events []Event
	for _, entry := range list {
		// Step 6: still live if any of our hashes is still known.
		stillLive := false
		for _, hash := range entry.txHashes {
			_, found, err := e.rpc.GetTransaction(ctx, hash)
			if err != nil {
				return nil, fmt.Errorf("sync: get_transaction %s for %s: %w", hash.Hex(), sender.Hex(), err)
			}
			if found {
				stillLive = true
				break
			}
		}
		if stillLive {
			continue
		}

		// Step 7: classify.
		switch {
		case latestCount > entry.nonce:
			// Case 1: replaced-and-confirmed-by-user. safeCount is a
			// transaction count, so the transaction at entry.nonce is safely
			// confirmed only once safeCount exceeds it (counts are
			// 1-indexed relative to nonces).
			if safeCount != nil && *safeCount > entry.nonce {
				events = append(events, OnchainInteractionReplacedByUser{
					FutureID: entry.execStateID, NetworkInteractionID: entry.niID,
				})
			} else {
				return nil, &WaitingForNonceError{Sender: sender, Nonce: entry.nonce, RequiredConfirmations: requiredConfirmations}
			}
		case pendingCount > entry.nonce:
			// Case 2: replaced-pending-by-user.
			return nil, &WaitingForNonceError{Sender: sender, Nonce: entry.nonce, RequiredConfirmations: requiredConfirmations}
		default:
			// Case 3: genuinely dropped.
			events = append(events, OnchainInteractionDropped{
				FutureID: entry.execStateID, NetworkInteractionID: entry.niID,
			})
		}
	}

	// Step 8: Case 4, user transactions above our range. list is sorted
	// ascending by buildPending, so the max nonce is the last entry's.
	maxNonce := list[len(list)-1].nonce
	if maxNonce+1 < pendingCount && hasUnconfirmed {
		return nil, &WaitingForNonceError{Sender: sender, Nonce: pendingCount - 1, RequiredConfirmations: requiredConfirmations}
	}

	return events, nil
}

// buildPending assembles, per sender, the ascending-nonce-ordered list of
// locally-tracked unconfirmed interactions, then ensures every
// not-yet-started future's sender has an entry (possibly empty) so the
// engine also inspects senders it hasn't transacted from yet.
func (e *SyncEngine) buildPending(
	state types.DeploymentState,
	module types.Module,
	accounts []types.Sender,
	defaultSender types.Sender,
) map[types.Sender][]pendingEntry {
	pending := make(map[types.Sender][]pendingEntry)

	for _, es := range state {
		if !es.Type.TransactionProducing() || es.Status == types.StatusSuccess {
			continue
		}
		for _, ni := range es.Interactions {
			if ni.Nonce == nil {
				continue
			}
			hashes := make([]common.Hash, 0, len(ni.Transactions))
			for _, tr := range ni.Transactions {
				hashes = append(hashes, tr.Hash)
			}
			pending[es.From] = append(pending[es.From], pendingEntry{
				execStateID: es.ID,
				niID:        ni.ID,
				nonce:       *ni.Nonce,
				txHashes:    hashes,
			})
		}
	}
	for sender, list := range pending {
		l := list
		sort.Slice(l, func(i, j int) bool { return l[i].nonce < l[j].nonce })
		pending[sender] = l
	}

	if module != nil {
		for _, future := range module.Futures() {
			if _, started := state[future.ID()]; started {
				continue
			}
			sender, ok := future.ResolveFrom(accounts, defaultSender)
			if !ok {
				continue
			}
			if _, exists := pending[sender]; !exists {
				pending[sender] = []pendingEntry{}
			}
		}
	}
	return pending
}
