package coordinator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Hawthorne001/execution-coordinator/journal"
	"github.com/Hawthorne001/execution-coordinator/rpc"
	"github.com/Hawthorne001/execution-coordinator/types"
)

// fakeRPC is a scripted RPCClient double driven entirely by plain fields, in
// place of a live node. Each method consults its corresponding field; Call
// and SendTransaction also record their params (calls, sent) so a test can
// assert on what was actually asked for.
type fakeRPC struct {
	latestBlock uint64
	latestErr   error

	// txCounts maps tag.String() to the count returned for every sender.
	txCounts    map[string]uint64
	txCountsErr error

	// transactions maps hash to whether GetTransaction reports it found.
	transactions map[common.Hash]bool
	txErr        error

	callResult types.RawResult
	callErr    error
	calls      []rpc.CallParams

	estimateGas    uint64
	estimateGasErr error

	networkFees    types.NetworkFees
	networkFeesErr error

	sendHash common.Hash
	sendErr  error
	sent     []rpc.CallParams
}

var _ RPCClient = (*fakeRPC)(nil)

func (f *fakeRPC) GetLatestBlock(ctx context.Context) (uint64, error) {
	return f.latestBlock, f.latestErr
}

func (f *fakeRPC) GetTransactionCount(ctx context.Context, sender types.Sender, tag rpc.BlockTag) (uint64, error) {
	if f.txCountsErr != nil {
		return 0, f.txCountsErr
	}
	return f.txCounts[tag.String()], nil
}

func (f *fakeRPC) GetTransaction(ctx context.Context, hash common.Hash) (rpc.TransactionInfo, bool, error) {
	if f.txErr != nil {
		return rpc.TransactionInfo{}, false, f.txErr
	}
	found := f.transactions[hash]
	return rpc.TransactionInfo{Hash: hash}, found, nil
}

func (f *fakeRPC) Call(ctx context.Context, params rpc.CallParams, tag rpc.BlockTag) (types.RawResult, error) {
	f.calls = append(f.calls, params)
	if f.callErr != nil {
		return types.RawResult{}, f.callErr
	}
	return f.callResult, nil
}

func (f *fakeRPC) EstimateGas(ctx context.Context, params rpc.CallParams) (uint64, error) {
	return f.estimateGas, f.estimateGasErr
}

func (f *fakeRPC) GetNetworkFees(ctx context.Context) (types.NetworkFees, error) {
	return f.networkFees, f.networkFeesErr
}

func (f *fakeRPC) SendTransaction(ctx context.Context, params rpc.CallParams) (common.Hash, error) {
	f.sent = append(f.sent, params)
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	return f.sendHash, nil
}

// fakeSink is a journal.Sink double that records in-memory for assertions
// without touching the filesystem.
type fakeSink struct {
	records []journal.Record
	recErr  error
	closed  bool
}

var _ journal.Sink = (*fakeSink)(nil)

func (s *fakeSink) Record(ctx context.Context, rec journal.Record) error {
	if s.recErr != nil {
		return s.recErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeSink) Records(ctx context.Context) ([]journal.Record, error) {
	return s.records, nil
}

func (s *fakeSink) Close() error { s.closed = true; return nil }

// errString is a trivial error implementation for table-driven tests that
// just need a message to pattern-match against.
type errString string

func (e errString) Error() string { return string(e) }

func addr(n byte) types.Sender {
	var a common.Address
	a[19] = n
	return a
}

func hash(n byte) common.Hash {
	var h common.Hash
	h[31] = n
	return h
}

var errBoom = fmt.Errorf("boom")
