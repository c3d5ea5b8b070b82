package coordinator

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/Hawthorne001/execution-coordinator/types"
)

func TestFeePolicyFirstSendReturnsRecommended(t *testing.T) {
	c := qt.New(t)
	fake := &fakeRPC{networkFees: types.Eip1559Fees(types.NewBigIntUint64(100), types.NewBigIntUint64(2))}
	policy := NewFeePolicy(fake)

	fees, err := policy.NextFees(context.Background(), &types.OnchainInteraction{From: addr(1)})
	c.Assert(err, qt.IsNil)
	c.Assert(fees.MaxFeePerGas.String(), qt.Equals, "100")
}

func TestFeePolicyLegacyBump(t *testing.T) {
	c := qt.New(t)
	fake := &fakeRPC{networkFees: types.LegacyFees(types.NewBigIntUint64(5))}
	policy := NewFeePolicy(fake)

	nonce := uint64(0)
	interaction := &types.OnchainInteraction{
		From: addr(1), Nonce: &nonce,
		Transactions: []types.TransactionRecord{{Fees: types.LegacyFees(types.NewBigIntUint64(10))}},
	}
	fees, err := policy.NextFees(context.Background(), interaction)
	c.Assert(err, qt.IsNil)
	// bumped = 10*110/100 = 11, max(5, 11) = 11.
	c.Assert(fees.GasPrice.String(), qt.Equals, "11")
}

func TestFeePolicyEip1559DowngradeRejected(t *testing.T) {
	c := qt.New(t)
	fake := &fakeRPC{networkFees: types.LegacyFees(types.NewBigIntUint64(5))}
	policy := NewFeePolicy(fake)

	nonce := uint64(0)
	interaction := &types.OnchainInteraction{
		From: addr(1), Nonce: &nonce,
		Transactions: []types.TransactionRecord{{Fees: types.Eip1559Fees(types.NewBigIntUint64(100), types.NewBigIntUint64(2))}},
	}
	_, err := policy.NextFees(context.Background(), interaction)
	c.Assert(err, qt.ErrorAs, new(*Eip1559DowngradeError))
}

func TestFeePolicyNormalizesLegacyPrevOntoEip1559Market(t *testing.T) {
	c := qt.New(t)
	fake := &fakeRPC{networkFees: types.Eip1559Fees(types.NewBigIntUint64(200), types.NewBigIntUint64(5))}
	policy := NewFeePolicy(fake)

	nonce := uint64(0)
	interaction := &types.OnchainInteraction{
		From: addr(1), Nonce: &nonce,
		Transactions: []types.TransactionRecord{{Fees: types.LegacyFees(types.NewBigIntUint64(100))}},
	}
	fees, err := policy.NextFees(context.Background(), interaction)
	c.Assert(err, qt.IsNil)
	c.Assert(fees.Kind, qt.Equals, types.FeeKindEip1559)
	// bumped from legacy 100 -> 110 on both fields; recommended wins on max fee (200), bump wins on priority (110 > 5).
	c.Assert(fees.MaxFeePerGas.String(), qt.Equals, "200")
	c.Assert(fees.MaxPriorityFeePerGas.String(), qt.Equals, "110")
}
