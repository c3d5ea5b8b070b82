package coordinator

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Hawthorne001/execution-coordinator/rpc"
	"github.com/Hawthorne001/execution-coordinator/types"
)

// RPCClient is the subset of the node-facing RPC client the coordinator's
// components depend on. *rpc.Client satisfies it; tests substitute a plain
// struct driven by scripted responses.
type RPCClient interface {
	GetLatestBlock(ctx context.Context) (uint64, error)
	GetTransactionCount(ctx context.Context, sender types.Sender, tag rpc.BlockTag) (uint64, error)
	GetTransaction(ctx context.Context, hash common.Hash) (rpc.TransactionInfo, bool, error)
	Call(ctx context.Context, params rpc.CallParams, tag rpc.BlockTag) (types.RawResult, error)
	EstimateGas(ctx context.Context, params rpc.CallParams) (uint64, error)
	GetNetworkFees(ctx context.Context) (types.NetworkFees, error)
	SendTransaction(ctx context.Context, params rpc.CallParams) (common.Hash, error)
}

var _ RPCClient = (*rpc.Client)(nil)
