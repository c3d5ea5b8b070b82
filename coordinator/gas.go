package coordinator

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Hawthorne001/execution-coordinator/log"
	"github.com/Hawthorne001/execution-coordinator/rpc"
)

const (
	// DefaultGasFallback is the fallback gas limit used when direct
	// estimation fails and the binary-search probe itself fails with a
	// transport error.
	DefaultGasFallback = 300_000
	defaultEstimateGasTimeout = 20 * time.Second
	defaultGasCacheSize       = 1024
)

// GasEstimateOpts tunes the layered gas estimator.
type GasEstimateOpts struct {
	MinGas    uint64        // minimum possible gas limit (default 21,000)
	MaxGas    uint64        // maximum possible gas limit (default 5,000,000)
	SafetyBps int           // safety margin in basis points (default +10%, i.e. 1000)
	Timeout   time.Duration // timeout for each estimation attempt (default 20s)
	Fallback  uint64        // final fallback gas (default 300,000)
}

// DefaultGasEstimateOpts are conservative defaults suitable for mainnet-like
// chains.
var DefaultGasEstimateOpts = GasEstimateOpts{
	MinGas:    21_000,
	MaxGas:    5_000_000,
	SafetyBps: 1000,
	Timeout:   defaultEstimateGasTimeout,
	Fallback:  DefaultGasFallback,
}

func (o GasEstimateOpts) withDefaults() GasEstimateOpts {
	d := DefaultGasEstimateOpts
	if o.MinGas == 0 {
		o.MinGas = d.MinGas
	}
	if o.MaxGas == 0 {
		o.MaxGas = d.MaxGas
	}
	if o.SafetyBps == 0 {
		o.SafetyBps = d.SafetyBps
	}
	if o.Timeout == 0 {
		o.Timeout = d.Timeout
	}
	if o.Fallback == 0 {
		o.Fallback = d.Fallback
	}
	return o
}

// GasEstimator provides the layers of the estimation strategy: a direct
// estimate_gas (Estimate) and an eth_call binary search (BinarySearch), with
// the fixed Fallback constant in opts; the send pipeline chains them. Limits
// found by the binary search are cached by (to, 4-byte selector) and narrow
// the search range on repeat sends of the same interaction (e.g. across fee
// bumps); the search itself still runs.
type GasEstimator struct {
	rpc  RPCClient
	opts GasEstimateOpts
	hint *lru.Cache[string, uint64]
}

// NewGasEstimator returns an estimator reading opts (zero fields filled
// from DefaultGasEstimateOpts) and caching up to defaultGasCacheSize hints.
func NewGasEstimator(cli RPCClient, opts GasEstimateOpts) *GasEstimator {
	cache, _ := lru.New[string, uint64](defaultGasCacheSize)
	return &GasEstimator{rpc: cli, opts: opts.withDefaults(), hint: cache}
}

// Estimate returns a gas limit for params from a direct estimate_gas call,
// with the safety margin and min/max clamps applied; it returns the node's
// error when that call fails.
func (g *GasEstimator) Estimate(ctx context.Context, params rpc.CallParams) (uint64, error) {
	ictx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	if gas, err := g.rpc.EstimateGas(ictx, params); err == nil {
		return g.applySafetyMargin(gas), nil
	} else {
		log.Warnw("estimate_gas failed, falling back to binary search", "error", err)
		return 0, err
	}
}

// applySafetyMargin adds the configured buffer and clamps to [MinGas,MaxGas].
func (g *GasEstimator) applySafetyMargin(gas uint64) uint64 {
	gas += (gas * uint64(g.opts.SafetyBps)) / 10_000
	if gas < g.opts.MinGas {
		gas = g.opts.MinGas
	}
	if gas > g.opts.MaxGas {
		gas = g.opts.MaxGas
	}
	return gas
}

// BinarySearch finds the minimum gas limit in [MinGas,MaxGas] for which
// succeeds returns true, narrowing from a cached hint for (to, selector)
// when one is available.
//
// bracketed is false when even MaxGas does not succeed: the call reverts
// regardless of gas, so no limit exists and the caller should treat this as
// a genuine estimation failure rather than silently using Fallback. err is
// non-nil only for a transport-level failure of succeeds itself.
func (g *GasEstimator) BinarySearch(ctx context.Context, params rpc.CallParams, succeeds func(ctx context.Context, limit uint64) (bool, error)) (gasLimit uint64, bracketed bool, err error) {
	ictx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	key := gasKey(params.To, params.Data)
	low, high := g.opts.MinGas, g.opts.MaxGas
	if cached, ok := g.hint.Get(key); ok {
		if cached/2 > low {
			low = cached / 2
		}
		if cached*2 < high {
			high = cached * 2
		}
	}

	lowOK, err := succeeds(ictx, low)
	if err != nil {
		return 0, false, err
	}
	if lowOK {
		return g.applySafetyMargin(low), true, nil
	}
	highOK, err := succeeds(ictx, high)
	if err != nil {
		return 0, false, err
	}
	if !highOK {
		log.Warnw("gas estimation binary search failed to bracket a working limit")
		return 0, false, nil
	}
	for low+1000 < high {
		mid := (low + high) / 2
		midOK, err := succeeds(ictx, mid)
		if err != nil {
			return 0, false, err
		}
		if midOK {
			high = mid
		} else {
			low = mid + 1
		}
	}
	g.hint.Add(key, high)
	return g.applySafetyMargin(high), true, nil
}

// gasKey derives the cache key for a call: (to, 4-byte selector) when data
// carries one, otherwise a hash of the full call to still dedupe repeats of
// unusual calls (e.g. contract-creation payloads).
func gasKey(to *common.Address, data []byte) string {
	if to != nil && len(data) >= 4 {
		return to.Hex() + "|" + common.Bytes2Hex(data[:4])
	}
	h := sha256.New()
	if to != nil {
		h.Write(to.Bytes())
	}
	h.Write(data)
	return fmt.Sprintf("%x", h.Sum(nil))
}
