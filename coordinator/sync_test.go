package coordinator

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Hawthorne001/execution-coordinator/rpc"
	"github.com/Hawthorne001/execution-coordinator/types"
)

func TestSyncDropped(t *testing.T) {
	c := qt.New(t)
	sender := addr(1)

	state := types.DeploymentState{
		"f5": {ID: "f5", Type: types.KindSend, Status: types.StatusStarted, From: sender,
			Interactions: []*types.OnchainInteraction{{ID: 5, From: sender, Nonce: u64p(5)}}},
		"f6": {ID: "f6", Type: types.KindSend, Status: types.StatusStarted, From: sender,
			Interactions: []*types.OnchainInteraction{{ID: 6, From: sender, Nonce: u64p(6)}}},
	}

	fake := &fakeRPC{
		latestBlock: 100,
		txCounts: map[string]uint64{
			rpc.AtBlock(96).String(): 5,
			rpc.Pending().String():   5,
			rpc.Latest().String():    5,
		},
		transactions: map[common.Hash]bool{},
	}
	engine := NewSyncEngine(fake, nil, 0)
	events, err := engine.Sync(context.Background(), state, nil, nil, types.Sender{}, 5)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 2)
	d0, ok := events[0].(OnchainInteractionDropped)
	c.Assert(ok, qt.IsTrue)
	c.Assert(d0.FutureID, qt.Equals, "f5")
	d1, ok := events[1].(OnchainInteractionDropped)
	c.Assert(ok, qt.IsTrue)
	c.Assert(d1.FutureID, qt.Equals, "f6")
}

func TestSyncReplacedAndConfirmed(t *testing.T) {
	c := qt.New(t)
	sender := addr(1)

	state := types.DeploymentState{
		"f5": {ID: "f5", Type: types.KindSend, Status: types.StatusStarted, From: sender,
			Interactions: []*types.OnchainInteraction{{ID: 5, From: sender, Nonce: u64p(5)}}},
	}

	fake := &fakeRPC{
		latestBlock: 100,
		txCounts: map[string]uint64{
			rpc.AtBlock(96).String(): 6,
			rpc.Pending().String():   6,
			rpc.Latest().String():    6,
		},
	}
	engine := NewSyncEngine(fake, nil, 0)
	events, err := engine.Sync(context.Background(), state, nil, nil, types.Sender{}, 5)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 1)
	ev, ok := events[0].(OnchainInteractionReplacedByUser)
	c.Assert(ok, qt.IsTrue)
	c.Assert(ev.FutureID, qt.Equals, "f5")
}

func TestSyncReplacedButNotSafe(t *testing.T) {
	c := qt.New(t)
	sender := addr(1)

	state := types.DeploymentState{
		"f5": {ID: "f5", Type: types.KindSend, Status: types.StatusStarted, From: sender,
			Interactions: []*types.OnchainInteraction{{ID: 5, From: sender, Nonce: u64p(5)}}},
	}

	fake := &fakeRPC{
		latestBlock: 100,
		txCounts: map[string]uint64{
			rpc.AtBlock(96).String(): 5,
			rpc.Pending().String():   6,
			rpc.Latest().String():    6,
		},
	}
	engine := NewSyncEngine(fake, nil, 0)
	_, err := engine.Sync(context.Background(), state, nil, nil, types.Sender{}, 5)
	c.Assert(err, qt.ErrorAs, new(*WaitingForNonceError))
	wfn := err.(*WaitingForNonceError)
	c.Assert(wfn.Nonce, qt.Equals, uint64(5))
}

func TestSyncUserPendingReplacement(t *testing.T) {
	c := qt.New(t)
	sender := addr(1)

	state := types.DeploymentState{
		"f5": {ID: "f5", Type: types.KindSend, Status: types.StatusStarted, From: sender,
			Interactions: []*types.OnchainInteraction{{ID: 5, From: sender, Nonce: u64p(5)}}},
	}

	fake := &fakeRPC{
		latestBlock: 100,
		txCounts: map[string]uint64{
			rpc.AtBlock(96).String(): 5,
			rpc.Pending().String():   6,
			rpc.Latest().String():    5,
		},
	}
	engine := NewSyncEngine(fake, nil, 0)
	_, err := engine.Sync(context.Background(), state, nil, nil, types.Sender{}, 5)
	c.Assert(err, qt.ErrorAs, new(*WaitingForNonceError))
}

// fakeFuture lets a test put a sender into a sync pass without any
// started ExecutionState, exercising the buildPending module-futures path.
type fakeFuture struct {
	id     string
	sender types.Sender
}

func (f fakeFuture) ID() string { return f.id }
func (f fakeFuture) ResolveFrom(accounts []types.Sender, defaultSender types.Sender) (types.Sender, bool) {
	return f.sender, true
}

type fakeModule struct{ futures []types.Future }

func (m fakeModule) Futures() []types.Future { return m.futures }

func TestSyncAdvancesNonceAllocatorFloor(t *testing.T) {
	c := qt.New(t)
	sender := addr(1)

	fake := &fakeRPC{
		latestBlock: 100,
		txCounts: map[string]uint64{
			rpc.AtBlock(96).String(): 9,
			rpc.Pending().String():   9,
			rpc.Latest().String():    5,
		},
	}
	alloc := NewNonceAllocator(fake)
	alloc.Advance(sender, 2) // stale local view, e.g. from before a restart

	module := fakeModule{futures: []types.Future{fakeFuture{id: "f1", sender: sender}}}
	engine := NewSyncEngine(fake, alloc, 0)
	_, err := engine.Sync(context.Background(), types.DeploymentState{}, module, []types.Sender{sender}, sender, 5)
	c.Assert(err, qt.IsNil)

	next, err := alloc.GetNextNonce(context.Background(), sender)
	c.Assert(err, qt.IsNil)
	c.Assert(next, qt.Equals, uint64(9))
}

func u64p(n uint64) *uint64 { return &n }
