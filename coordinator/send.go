package coordinator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Hawthorne001/execution-coordinator/journal"
	"github.com/Hawthorne001/execution-coordinator/log"
	"github.com/Hawthorne001/execution-coordinator/rpc"
	"github.com/Hawthorne001/execution-coordinator/types"
)

// SimulationDecoder is the seam where the strategy engine injects ABI
// knowledge: given a raw call result, it returns a decoded
// simulation-failure error and ok=true, or ok=false when the result
// indicates success.
type SimulationDecoder interface {
	Decode(result types.RawResult) (err error, ok bool)
}

// DecodeSimulationFunc adapts a plain function to a SimulationDecoder.
type DecodeSimulationFunc func(types.RawResult) (error, bool)

// Decode implements SimulationDecoder.
func (f DecodeSimulationFunc) Decode(result types.RawResult) (error, bool) { return f(result) }

// Outcome is the result of one send attempt: either a decoded
// simulation-error result or a sent record.
type Outcome struct {
	Sent            bool
	Hash            common.Hash
	Nonce           uint64
	Fees            types.NetworkFees
	SimulationError error
}

// SendPipeline is the Send Pipeline (D): orchestrates nonce acquisition,
// fee computation, gas estimation, pre-send simulation and transmission
// for one on-chain interaction.
type SendPipeline struct {
	rpc    RPCClient
	nonces *NonceAllocator
	fees   *FeePolicy
	gas    *GasEstimator
}

// NewSendPipeline wires the pipeline's collaborators.
func NewSendPipeline(cli RPCClient, nonces *NonceAllocator, fees *FeePolicy, gas *GasEstimator) *SendPipeline {
	return &SendPipeline{rpc: cli, nonces: nonces, fees: fees, gas: gas}
}

// SendFor drives one on-chain interaction to a broadcast attempt.
// interaction is mutated in place: Nonce is set if
// absent, and a TransactionRecord is appended on a successful broadcast.
func (p *SendPipeline) SendFor(
	ctx context.Context,
	interaction *types.OnchainInteraction,
	sink journal.Sink,
	decodeSim SimulationDecoder,
	futureID string,
) (Outcome, error) {
	// Step 1: nonce ← interaction.nonce ?? allocator.get_next_nonce(sender).
	nonce, err := p.resolveNonce(ctx, interaction)
	if err != nil {
		return Outcome{}, fmt.Errorf("send pipeline: resolve nonce: %w", err)
	}

	// Step 2: fees ← C.next_fees(interaction).
	fees, err := p.fees.NextFees(ctx, interaction)
	if err != nil {
		return Outcome{}, err
	}

	// Step 3: build p = { to, from, data, value, nonce, fees, gas_limit: none }.
	params := rpc.CallParams{
		From:  interaction.From,
		To:    interaction.To,
		Data:  interaction.Data,
		Value: interaction.Value,
		Nonce: &nonce,
		Fees:  &fees,
	}

	// Step 4: estimate a gas limit for params, using the layered fallback
	// below.
	gasLimit, err := p.estimateGasLayered(ctx, interaction.From, interaction.Value, params)
	if err != nil {
		// Genuine failure: re-simulate without fees and classify/decode.
		outcome, classifyErr := p.diagnoseEstimationFailure(ctx, interaction.From, interaction.Value, params, decodeSim, err)
		return outcome, classifyErr
	}
	params.GasLimit = &gasLimit

	// Step 6: pre-send simulate against "pending".
	raw, err := p.rpc.Call(ctx, params, rpc.Pending())
	if err != nil {
		return Outcome{}, fmt.Errorf("send pipeline: pre-send simulate: %w", err)
	}
	if decoded, ok := decodeSim.Decode(raw); ok {
		return Outcome{SimulationError: decoded}, nil
	}

	// Step 7: persist intent before broadcasting, so a crash after this
	// point still lets a restart recover the nonce commitment.
	if err := sink.Record(ctx, journal.Record{
		Kind:                 journal.KindTransactionPrepareSend,
		FutureID:             futureID,
		NetworkInteractionID: interaction.ID,
		Nonce:                nonce,
	}); err != nil {
		return Outcome{}, fmt.Errorf("send pipeline: journal record: %w", err)
	}

	// Step 8: broadcast.
	hash, err := p.rpc.SendTransaction(ctx, params)
	if err != nil {
		log.Errorw(err, "send_transaction failed after journal commit",
			"sender", interaction.From.Hex(), "nonce", nonce)
		return Outcome{}, fmt.Errorf("send pipeline: send_transaction: %w", err)
	}

	interaction.Nonce = &nonce
	interaction.Transactions = append(interaction.Transactions, types.TransactionRecord{Hash: hash, Fees: fees})

	log.Infow("transaction sent", "sender", interaction.From.Hex(), "nonce", nonce, "hash", hash.Hex(), "fees", fees.String())
	return Outcome{Sent: true, Hash: hash, Nonce: nonce, Fees: fees}, nil
}

func (p *SendPipeline) resolveNonce(ctx context.Context, interaction *types.OnchainInteraction) (uint64, error) {
	if interaction.Nonce != nil {
		return *interaction.Nonce, nil
	}
	return p.nonces.GetNextNonce(ctx, interaction.From)
}

// estimateGasLayered tries a direct
// estimate_gas, falling back on failure to an eth_call binary search,
// falling back further to a fixed constant if the binary search itself
// fails for transport reasons (not if it brackets a genuine revert, which
// is surfaced to the caller for diagnosis).
func (p *SendPipeline) estimateGasLayered(ctx context.Context, sender types.Sender, value *types.BigInt, params rpc.CallParams) (uint64, error) {
	gasLimit, directErr := p.gas.Estimate(ctx, params)
	if directErr == nil {
		return gasLimit, nil
	}

	succeeds := func(ctx context.Context, limit uint64) (bool, error) {
		trial := params
		trial.GasLimit = &limit
		raw, err := p.rpc.Call(ctx, trial, rpc.Pending())
		if err != nil {
			return false, err
		}
		return !raw.Reverted, nil
	}

	limit, bracketed, bsErr := p.gas.BinarySearch(ctx, params, succeeds)
	switch {
	case bsErr != nil:
		log.Warnw("binary search gas estimation unavailable, using fallback constant",
			"sender", sender.Hex(), "error", bsErr)
		return p.gas.opts.Fallback, nil
	case !bracketed:
		return 0, directErr
	default:
		return limit, nil
	}
}

// diagnoseEstimationFailure handles a genuine estimation failure:
// re-simulate without fees (dropping them avoids the node assuming the
// block gas limit and falsely reporting insufficient balance), decode, and
// classify if undecoded.
func (p *SendPipeline) diagnoseEstimationFailure(
	ctx context.Context,
	sender types.Sender,
	value *types.BigInt,
	params rpc.CallParams,
	decodeSim SimulationDecoder,
	estimateErr error,
) (Outcome, error) {
	withoutFees := params
	withoutFees.Fees = nil

	raw, callErr := p.rpc.Call(ctx, withoutFees, rpc.Pending())
	if callErr != nil {
		return Outcome{}, classifyEstimateErr(sender, value, estimateErr)
	}
	if decoded, ok := decodeSim.Decode(raw); ok {
		return Outcome{SimulationError: decoded}, nil
	}
	return Outcome{}, classifyEstimateErr(sender, value, estimateErr)
}
