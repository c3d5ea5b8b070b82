package rpc

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Hawthorne001/execution-coordinator/log"
	"github.com/Hawthorne001/execution-coordinator/types"
)

const (
	// defaultRetries is how many attempts a call gets on the same endpoint
	// before rotating to the next one.
	defaultRetries    = 2
	defaultRetrySleep = 200 * time.Millisecond
	defaultTimeout    = 5 * time.Second
)

// BlockTag selects the block a read is evaluated against.
type BlockTag struct {
	pending bool
	number  *big.Int // nil means "latest"
}

// Latest selects the latest mined block.
func Latest() BlockTag { return BlockTag{} }

// Pending selects the node's pending-block view (confirmed + mempool).
func Pending() BlockTag { return BlockTag{pending: true} }

// AtBlock selects a specific block number.
func AtBlock(n uint64) BlockTag { return BlockTag{number: new(big.Int).SetUint64(n)} }

func (t BlockTag) String() string {
	switch {
	case t.pending:
		return "pending"
	case t.number != nil:
		return t.number.String()
	default:
		return "latest"
	}
}

// TransactionInfo is the subset of a node's transaction view the sync
// engine needs to decide whether a transaction is still known to it.
type TransactionInfo struct {
	Hash        common.Hash
	BlockNumber *uint64 // nil while unmined
}

// CallParams describes a call or transaction to simulate, estimate, or
// send. Fees is nil when estimating without fee constraints (the
// fee-dropping re-simulation used to diagnose an estimation failure);
// GasLimit is nil until estimation completes.
type CallParams struct {
	From     types.Sender
	To       *common.Address
	Data     []byte
	Value    *types.BigInt
	Nonce    *uint64
	Fees     *types.NetworkFees
	GasLimit *uint64
}

func (p CallParams) value() *big.Int {
	if p.Value == nil {
		return big.NewInt(0)
	}
	return p.Value.MathBigInt()
}

func (p CallParams) toCallMsg() ethereum.CallMsg {
	msg := ethereum.CallMsg{
		From:  p.From,
		To:    p.To,
		Data:  p.Data,
		Value: p.value(),
	}
	if p.GasLimit != nil {
		msg.Gas = *p.GasLimit
	}
	if p.Fees != nil {
		switch p.Fees.Kind {
		case types.FeeKindEip1559:
			msg.GasFeeCap = p.Fees.MaxFeePerGas.MathBigInt()
			msg.GasTipCap = p.Fees.MaxPriorityFeePerGas.MathBigInt()
		case types.FeeKindLegacy:
			msg.GasPrice = p.Fees.GasPrice.MathBigInt()
		}
	}
	return msg
}

// Client is the coordinator's RPC client, backed by a pool of endpoints
// for one chain.
type Client struct {
	pool    *Web3Pool
	chainID uint64
}

// NewClient returns a Client drawing endpoints for chainID from pool.
func NewClient(pool *Web3Pool, chainID uint64) *Client {
	return &Client{pool: pool, chainID: chainID}
}

// retryAndCheckErr runs fn against successive endpoints: defaultRetries
// attempts per endpoint, then rotation to the next, until one succeeds or
// every endpoint registered for the chain has been tried.
func (c *Client) retryAndCheckErr(fn func(*Web3Endpoint) (any, error)) (any, error) {
	tried := make(map[string]bool)
	total := c.pool.NumberOfEndpoints(c.chainID, false)
	if total == 0 {
		return nil, fmt.Errorf("no endpoints available for chainID %d", c.chainID)
	}

	var lastErr error
	attempts := 0
	for attempts < total {
		endpoint, err := c.pool.Endpoint(c.chainID)
		if err != nil {
			return nil, fmt.Errorf("error getting endpoint for chainID %d: %w", c.chainID, err)
		}
		if tried[endpoint.URI] {
			return nil, fmt.Errorf("endpoint rotation failed for chainID %d: %w", c.chainID, lastErr)
		}
		tried[endpoint.URI] = true

		var res any
		for retry := range defaultRetries {
			res, err = fn(endpoint)
			if err == nil {
				if attempts > 0 {
					log.Infow("RPC call succeeded after endpoint switch",
						"chainID", c.chainID, "successfulURI", endpoint.URI, "endpointAttempts", attempts+1)
				}
				return res, nil
			}
			if rpcErr := ParseError(err); rpcErr != nil {
				lastErr = fmt.Errorf("%w (code: %d, data: %s)", err, rpcErr.Code, rpcErr.Data)
			} else {
				lastErr = err
			}
			if IsPermanentError(err) {
				return nil, fmt.Errorf("RPC call failed with permanent error, not retrying: %w", err)
			}
			if retry < defaultRetries-1 {
				time.Sleep(defaultRetrySleep)
			}
		}

		log.Warnw("endpoint failed after retries, switching to next",
			"chainID", c.chainID, "failedURI", endpoint.URI, "error", err)
		c.pool.DisableEndpoint(c.chainID, endpoint.URI)
		attempts++
	}

	return nil, fmt.Errorf("all endpoints exhausted for chainID %d after %d attempts: %w",
		c.chainID, attempts, lastErr)
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultTimeout)
}

// GetLatestBlock returns the latest block number.
func (c *Client) GetLatestBlock(ctx context.Context) (uint64, error) {
	res, err := c.retryAndCheckErr(func(ep *Web3Endpoint) (any, error) {
		ictx, cancel := withTimeout(ctx)
		defer cancel()
		return ep.client.BlockNumber(ictx)
	})
	if err != nil {
		return 0, err
	}
	return res.(uint64), nil
}

// GetTransactionCount returns the transaction count for sender at the given
// block tag.
func (c *Client) GetTransactionCount(ctx context.Context, sender types.Sender, tag BlockTag) (uint64, error) {
	res, err := c.retryAndCheckErr(func(ep *Web3Endpoint) (any, error) {
		ictx, cancel := withTimeout(ctx)
		defer cancel()
		if tag.pending {
			return ep.client.PendingNonceAt(ictx, sender)
		}
		return ep.client.NonceAt(ictx, sender, tag.number)
	})
	if err != nil {
		return 0, err
	}
	return res.(uint64), nil
}

// GetTransaction returns what the node currently knows about hash. found is
// false when the node has never seen it or it has dropped from its view.
func (c *Client) GetTransaction(ctx context.Context, hash common.Hash) (info TransactionInfo, found bool, err error) {
	type txLookup struct {
		info  TransactionInfo
		found bool
	}
	res, err := c.retryAndCheckErr(func(ep *Web3Endpoint) (any, error) {
		ictx, cancel := withTimeout(ctx)
		defer cancel()
		_, isPending, txErr := ep.client.TransactionByHash(ictx, hash)
		if errorsIsNotFound(txErr) {
			return txLookup{}, nil
		}
		if txErr != nil {
			return nil, txErr
		}
		result := TransactionInfo{Hash: hash}
		if !isPending {
			receipt, rErr := ep.client.TransactionReceipt(ictx, hash)
			if rErr == nil && receipt != nil {
				n := receipt.BlockNumber.Uint64()
				result.BlockNumber = &n
			}
		}
		return txLookup{info: result, found: true}, nil
	})
	if err != nil {
		return TransactionInfo{}, false, err
	}
	lookup := res.(txLookup)
	return lookup.info, lookup.found, nil
}

func errorsIsNotFound(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}

// Call simulates params against the given block tag, returning the raw
// bytes result and whether the call reverted. Revert data is not an error
// for the caller: decoding it is DecodeSimulation's job.
func (c *Client) Call(ctx context.Context, params CallParams, tag BlockTag) (types.RawResult, error) {
	res, err := c.retryAndCheckErr(func(ep *Web3Endpoint) (any, error) {
		ictx, cancel := withTimeout(ctx)
		defer cancel()
		data, callErr := ep.client.CallContract(ictx, params.toCallMsg(), tag.number)
		if callErr != nil {
			rpcErr := ParseError(callErr)
			if rpcErr != nil && len(rpcErr.Data) > 0 {
				return types.RawResult{Data: rpcErr.Data, Reverted: true}, nil
			}
			if strings.Contains(strings.ToLower(callErr.Error()), "execution reverted") {
				return types.RawResult{Data: data, Reverted: true}, nil
			}
			return nil, callErr
		}
		return types.RawResult{Data: data, Reverted: false}, nil
	})
	if err != nil {
		return types.RawResult{}, err
	}
	return res.(types.RawResult), nil
}

// EstimateGas estimates the gas limit for params, or fails with a
// diagnostic message the coordinator classifies into a typed estimation
// error (insufficient funds for transfer/deploy, or a generic failure).
func (c *Client) EstimateGas(ctx context.Context, params CallParams) (uint64, error) {
	res, err := c.retryAndCheckErr(func(ep *Web3Endpoint) (any, error) {
		ictx, cancel := withTimeout(ctx)
		defer cancel()
		return ep.client.EstimateGas(ictx, params.toCallMsg())
	})
	if err != nil {
		return 0, err
	}
	return res.(uint64), nil
}

// GetNetworkFees returns the fee market the node currently recommends. It
// prefers EIP-1559 (base fee present) and falls back to legacy.
func (c *Client) GetNetworkFees(ctx context.Context) (types.NetworkFees, error) {
	res, err := c.retryAndCheckErr(func(ep *Web3Endpoint) (any, error) {
		ictx, cancel := withTimeout(ctx)
		defer cancel()

		header, hErr := ep.client.HeaderByNumber(ictx, nil)
		if hErr != nil {
			return nil, hErr
		}
		if header.BaseFee == nil {
			gasPrice, gpErr := ep.client.SuggestGasPrice(ictx)
			if gpErr != nil {
				return nil, gpErr
			}
			return types.LegacyFees(types.NewBigInt(gasPrice)), nil
		}

		tip, tErr := ep.client.SuggestGasTipCap(ictx)
		if tErr != nil {
			return nil, tErr
		}
		maxFee := new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(2)), tip)
		return types.Eip1559Fees(types.NewBigInt(maxFee), types.NewBigInt(tip)), nil
	})
	if err != nil {
		return types.NetworkFees{}, err
	}
	return res.(types.NetworkFees), nil
}

// sendTxArgs mirrors the eth_sendTransaction JSON-RPC parameter object.
// Signing is delegated to the endpoint (node-managed key) or handled
// upstream of this client — out of scope per the coordinator's non-goals.
type sendTxArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  *hexBig         `json:"gas,omitempty"`
	GasPrice             *hexBig         `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexBig         `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexBig         `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexBig         `json:"value,omitempty"`
	Nonce                *hexBig         `json:"nonce,omitempty"`
	Data                 string          `json:"data,omitempty"`
}

type hexBig big.Int

func (h *hexBig) MarshalText() ([]byte, error) {
	return []byte("0x" + (*big.Int)(h).Text(16)), nil
}

func hb(x uint64) *hexBig { return (*hexBig)(new(big.Int).SetUint64(x)) }

func hbBig(x *big.Int) *hexBig {
	if x == nil {
		return nil
	}
	return (*hexBig)(x)
}

// SendTransaction broadcasts params and returns the resulting hash.
func (c *Client) SendTransaction(ctx context.Context, params CallParams) (common.Hash, error) {
	if params.GasLimit == nil {
		return common.Hash{}, fmt.Errorf("send_transaction: gas_limit is required")
	}
	args := sendTxArgs{
		From:  params.From,
		To:    params.To,
		Gas:   hb(*params.GasLimit),
		Value: hbBig(params.value()),
		Data:  "0x" + common.Bytes2Hex(params.Data),
	}
	if params.Nonce != nil {
		args.Nonce = hb(*params.Nonce)
	}
	if params.Fees != nil {
		switch params.Fees.Kind {
		case types.FeeKindEip1559:
			args.MaxFeePerGas = hbBig(params.Fees.MaxFeePerGas.MathBigInt())
			args.MaxPriorityFeePerGas = hbBig(params.Fees.MaxPriorityFeePerGas.MathBigInt())
		case types.FeeKindLegacy:
			args.GasPrice = hbBig(params.Fees.GasPrice.MathBigInt())
		}
	}

	res, err := c.retryAndCheckErr(func(ep *Web3Endpoint) (any, error) {
		ictx, cancel := withTimeout(ctx)
		defer cancel()
		var hash common.Hash
		if callErr := ep.rpcClient.CallContext(ictx, &hash, "eth_sendTransaction", args); callErr != nil {
			return nil, callErr
		}
		return hash, nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return res.(common.Hash), nil
}

// BlockNumber is a convenience wrapper used by callers that only need the
// raw head pointer without going through GetLatestBlock's retry wrapper
// result typing (e.g. logging).
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.GetLatestBlock(ctx)
}
