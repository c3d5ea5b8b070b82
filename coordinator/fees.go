package coordinator

import (
	"context"
	"fmt"

	"github.com/Hawthorne001/execution-coordinator/rpc"
	"github.com/Hawthorne001/execution-coordinator/types"
)

// bumpNum/bumpDen encode the 110% replacement-bump rule:
// new = prev * 110 / 100, via integer division.
const (
	bumpNum = 110
	bumpDen = 100
)

// FeePolicy is the Fee Policy (C): computes the fees for the next send of
// an on-chain interaction, applying the replacement-bump rule on resend.
type FeePolicy struct {
	rpc RPCClient
}

// NewFeePolicy returns a FeePolicy reading recommended fees from cli.
func NewFeePolicy(cli RPCClient) *FeePolicy {
	return &FeePolicy{rpc: cli}
}

// NextFees computes the fees for the next send of interaction.
func (p *FeePolicy) NextFees(ctx context.Context, interaction *types.OnchainInteraction) (types.NetworkFees, error) {
	recommended, err := p.rpc.GetNetworkFees(ctx)
	if err != nil {
		return types.NetworkFees{}, fmt.Errorf("fee policy: get recommended fees: %w", err)
	}

	last, ok := interaction.LastTransaction()
	if !ok {
		return recommended, nil
	}
	prev := last.Fees

	if recommended.Kind == types.FeeKindLegacy && prev.Kind == types.FeeKindEip1559 {
		return types.NetworkFees{}, &Eip1559DowngradeError{Sender: interaction.From}
	}

	// Normalize prev onto recommended's market before bumping.
	prevMaxFee, prevMaxPrio := prev.MaxFeePerGas, prev.MaxPriorityFeePerGas
	if recommended.Kind == types.FeeKindEip1559 && prev.Kind == types.FeeKindLegacy {
		prevMaxFee = prev.GasPrice
		prevMaxPrio = prev.GasPrice
	}

	if recommended.Kind == types.FeeKindEip1559 {
		bumpedFee := mulFrac(prevMaxFee.MathBigInt(), bumpNum, bumpDen)
		bumpedPrio := mulFrac(prevMaxPrio.MathBigInt(), bumpNum, bumpDen)
		return types.Eip1559Fees(
			types.NewBigInt(maxBig(recommended.MaxFeePerGas.MathBigInt(), bumpedFee)),
			types.NewBigInt(maxBig(recommended.MaxPriorityFeePerGas.MathBigInt(), bumpedPrio)),
		), nil
	}

	bumpedPrice := mulFrac(prev.GasPrice.MathBigInt(), bumpNum, bumpDen)
	return types.LegacyFees(
		types.NewBigInt(maxBig(recommended.GasPrice.MathBigInt(), bumpedPrice)),
	), nil
}
