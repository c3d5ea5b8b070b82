package coordinator

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/Hawthorne001/execution-coordinator/rpc"
	"github.com/Hawthorne001/execution-coordinator/types"
)

func noopDecoder() SimulationDecoder {
	return DecodeSimulationFunc(func(types.RawResult) (error, bool) { return nil, false })
}

func TestSendForHappyPathFirstSend(t *testing.T) {
	c := qt.New(t)
	sender := addr(1)

	fake := &fakeRPC{
		txCounts:    map[string]uint64{rpc.Pending().String(): 5},
		networkFees: types.Eip1559Fees(types.NewBigIntUint64(100), types.NewBigIntUint64(2)),
		estimateGas: 21000,
		callResult:  types.RawResult{Data: nil, Reverted: false},
		sendHash:    hash(0xaa),
	}
	pipeline := NewSendPipeline(fake, NewNonceAllocator(fake), NewFeePolicy(fake), NewGasEstimator(fake, DefaultGasEstimateOpts))
	sink := &fakeSink{}

	interaction := &types.OnchainInteraction{ID: 1, From: sender}
	outcome, err := pipeline.SendFor(context.Background(), interaction, sink, noopDecoder(), "f1")
	c.Assert(err, qt.IsNil)
	c.Assert(outcome.Sent, qt.IsTrue)
	c.Assert(outcome.Nonce, qt.Equals, uint64(5))
	c.Assert(outcome.Hash, qt.Equals, hash(0xaa))
	c.Assert(outcome.Fees.MaxFeePerGas.String(), qt.Equals, "100")
	c.Assert(outcome.Fees.MaxPriorityFeePerGas.String(), qt.Equals, "2")

	c.Assert(sink.records, qt.HasLen, 1)
	c.Assert(sink.records[0].FutureID, qt.Equals, "f1")
	c.Assert(sink.records[0].Nonce, qt.Equals, uint64(5))

	c.Assert(interaction.Nonce, qt.Not(qt.IsNil))
	c.Assert(*interaction.Nonce, qt.Equals, uint64(5))
	c.Assert(interaction.Transactions, qt.HasLen, 1)
}

func TestSendForFeeBump(t *testing.T) {
	c := qt.New(t)
	sender := addr(1)
	nonce := uint64(5)

	interaction := &types.OnchainInteraction{
		ID: 1, From: sender, Nonce: &nonce,
		Transactions: []types.TransactionRecord{
			{Hash: hash(0xaa), Fees: types.Eip1559Fees(types.NewBigIntUint64(100), types.NewBigIntUint64(2))},
		},
	}

	fake := &fakeRPC{
		networkFees: types.Eip1559Fees(types.NewBigIntUint64(90), types.NewBigIntUint64(1)),
		estimateGas: 21000,
		callResult:  types.RawResult{Data: nil, Reverted: false},
		sendHash:    hash(0xbb),
	}
	pipeline := NewSendPipeline(fake, NewNonceAllocator(fake), NewFeePolicy(fake), NewGasEstimator(fake, DefaultGasEstimateOpts))
	sink := &fakeSink{}

	outcome, err := pipeline.SendFor(context.Background(), interaction, sink, noopDecoder(), "f1")
	c.Assert(err, qt.IsNil)
	c.Assert(outcome.Sent, qt.IsTrue)
	// bumped = prev*110/100 = {110, 2}; max(recommended, bumped) = {110, 2}.
	c.Assert(outcome.Fees.MaxFeePerGas.String(), qt.Equals, "110")
	c.Assert(outcome.Fees.MaxPriorityFeePerGas.String(), qt.Equals, "2")
	c.Assert(outcome.Hash, qt.Equals, hash(0xbb))
	c.Assert(interaction.Transactions, qt.HasLen, 2)
}

func TestSendForInsufficientFundsForTransfer(t *testing.T) {
	c := qt.New(t)
	sender := addr(1)
	value := types.NewBigIntUint64(1_000_000)

	fake := &fakeRPC{
		txCounts:       map[string]uint64{rpc.Pending().String(): 0},
		networkFees:    types.LegacyFees(types.NewBigIntUint64(1)),
		estimateGasErr: errString("insufficient funds for transfer"),
		// Reverted at every gas limit: the binary search cannot bracket a
		// working limit since the failure is balance-related, not
		// gas-related, so estimateGasLayered surfaces the original error.
		callResult: types.RawResult{Data: nil, Reverted: true},
	}
	pipeline := NewSendPipeline(fake, NewNonceAllocator(fake), NewFeePolicy(fake), NewGasEstimator(fake, DefaultGasEstimateOpts))
	sink := &fakeSink{}

	interaction := &types.OnchainInteraction{ID: 1, From: sender, Value: value}
	_, err := pipeline.SendFor(context.Background(), interaction, sink, noopDecoder(), "f1")
	c.Assert(err, qt.ErrorAs, new(*InsufficientFundsForTransferError))
	iferr := err.(*InsufficientFundsForTransferError)
	c.Assert(iferr.Sender, qt.Equals, sender)
	c.Assert(iferr.Amount.String(), qt.Equals, "1000000")

	// the genuine-revert binary search path and the no-fee re-simulation are
	// both transport calls against "pending"; no transaction was journaled.
	c.Assert(sink.records, qt.HasLen, 0)
}
