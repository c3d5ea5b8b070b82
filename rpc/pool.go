// Package rpc implements the coordinator's RPC client: a typed, retrying
// wrapper over one or more JSON-RPC endpoints for a single chain.
package rpc

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// endpointCooldownPeriod is how long a disabled endpoint stays out of
// rotation before being tried again.
const endpointCooldownPeriod = 5 * time.Minute

// Web3Endpoint is one JSON-RPC provider for a given chain.
type Web3Endpoint struct {
	ChainID   uint64
	URI       string
	client    *ethclient.Client
	rpcClient *gethrpc.Client
}

// Dial connects to uri and wraps it as a Web3Endpoint for chainID.
func Dial(chainID uint64, uri string) (*Web3Endpoint, error) {
	rc, err := gethrpc.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", uri, err)
	}
	return &Web3Endpoint{
		ChainID:   chainID,
		URI:       uri,
		client:    ethclient.NewClient(rc),
		rpcClient: rc,
	}, nil
}

// Web3Iterator hands out endpoints from a fixed set in round-robin order,
// placing failing endpoints in a timed cooldown instead of removing them
// permanently.
type Web3Iterator struct {
	nextIndex     int
	available     []*Web3Endpoint
	disabled      []*Web3Endpoint
	disabledUntil map[string]time.Time
	mtx           sync.Mutex
}

// NewWeb3Iterator creates an iterator over the given endpoints.
func NewWeb3Iterator(endpoints ...*Web3Endpoint) *Web3Iterator {
	if endpoints == nil {
		endpoints = make([]*Web3Endpoint, 0)
	}
	return &Web3Iterator{
		available:     endpoints,
		disabled:      make([]*Web3Endpoint, 0),
		disabledUntil: make(map[string]time.Time),
	}
}

// Available returns the number of endpoints currently in rotation.
func (it *Web3Iterator) Available() int {
	it.mtx.Lock()
	defer it.mtx.Unlock()
	return len(it.available)
}

// Disabled returns the number of endpoints currently in cooldown.
func (it *Web3Iterator) Disabled() int {
	it.mtx.Lock()
	defer it.mtx.Unlock()
	return len(it.disabled)
}

// Add registers additional endpoints, available immediately.
func (it *Web3Iterator) Add(endpoints ...*Web3Endpoint) {
	it.mtx.Lock()
	defer it.mtx.Unlock()
	it.available = append(it.available, endpoints...)
}

// Next returns the next endpoint in round-robin order.
func (it *Web3Iterator) Next() (*Web3Endpoint, error) {
	if it == nil {
		return nil, fmt.Errorf("nil Web3Iterator")
	}
	it.mtx.Lock()
	defer it.mtx.Unlock()

	l := len(it.available)
	if l == 0 {
		if len(it.disabled) > 0 {
			now := time.Now()
			var earliest time.Time
			for _, ep := range it.disabled {
				if until, ok := it.disabledUntil[ep.URI]; ok {
					if earliest.IsZero() || until.Before(earliest) {
						earliest = until
					}
				}
			}
			if !earliest.IsZero() {
				return nil, fmt.Errorf("all endpoints are in cooldown, next available in %v", earliest.Sub(now))
			}
		}
		return nil, fmt.Errorf("no registered endpoints")
	}

	current := it.available[it.nextIndex]
	if it.nextIndex++; it.nextIndex >= l {
		it.nextIndex = 0
	}
	return current, nil
}

// Disable moves uri from the available set into cooldown. If this empties
// the available set, any endpoint whose cooldown has elapsed is brought
// back; if none has, every disabled endpoint is brought back, so the
// iterator is never permanently stuck.
func (it *Web3Iterator) Disable(uri string) {
	it.mtx.Lock()
	defer it.mtx.Unlock()

	index := -1
	for i, ep := range it.available {
		if ep.URI == uri {
			index = i
			break
		}
	}
	if index == -1 {
		return
	}

	disabledEndpoint := it.available[index]
	it.available = append(it.available[:index], it.available[index+1:]...)
	it.disabled = append(it.disabled, disabledEndpoint)
	it.disabledUntil[uri] = time.Now().Add(endpointCooldownPeriod)

	if it.nextIndex == index {
		it.nextIndex++
	}

	if len(it.available) == 0 {
		now := time.Now()
		var canReEnable, stillDisabled []*Web3Endpoint
		for _, ep := range it.disabled {
			if until, ok := it.disabledUntil[ep.URI]; ok {
				if now.After(until) {
					canReEnable = append(canReEnable, ep)
					delete(it.disabledUntil, ep.URI)
				} else {
					stillDisabled = append(stillDisabled, ep)
				}
			} else {
				canReEnable = append(canReEnable, ep)
			}
		}
		if len(canReEnable) == 0 {
			for _, ep := range stillDisabled {
				delete(it.disabledUntil, ep.URI)
			}
			canReEnable, stillDisabled = stillDisabled, nil
		}
		it.available = canReEnable
		it.disabled = stillDisabled
		it.nextIndex = 0
	}

	if it.nextIndex >= len(it.available) {
		it.nextIndex = 0
	}
}

// Web3Pool groups a Web3Iterator per chain ID, so one process can serve
// several chains without its own cooldown bookkeeping colliding.
type Web3Pool struct {
	mu        sync.RWMutex
	endpoints map[uint64]*Web3Iterator
}

// NewWeb3Pool returns an empty pool; register endpoints with AddEndpoint.
func NewWeb3Pool() *Web3Pool {
	return &Web3Pool{endpoints: make(map[uint64]*Web3Iterator)}
}

// AddEndpoint registers ep for its chain, dialing lazily is the caller's
// responsibility (use Dial before calling this).
func (p *Web3Pool) AddEndpoint(ep *Web3Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	iter, ok := p.endpoints[ep.ChainID]
	if !ok {
		iter = NewWeb3Iterator()
		p.endpoints[ep.ChainID] = iter
	}
	iter.Add(ep)
}

// Endpoint returns the next endpoint to use for chainID.
func (p *Web3Pool) Endpoint(chainID uint64) (*Web3Endpoint, error) {
	p.mu.RLock()
	iter := p.endpoints[chainID]
	p.mu.RUnlock()
	if iter == nil {
		return nil, fmt.Errorf("no endpoints registered for chainID %d", chainID)
	}
	return iter.Next()
}

// DisableEndpoint puts uri on chainID's iterator into cooldown.
func (p *Web3Pool) DisableEndpoint(chainID uint64, uri string) {
	p.mu.RLock()
	iter := p.endpoints[chainID]
	p.mu.RUnlock()
	if iter == nil {
		return
	}
	iter.Disable(uri)
}

// NumberOfEndpoints reports how many endpoints are registered for chainID;
// onlyAvailable restricts the count to those currently in rotation.
func (p *Web3Pool) NumberOfEndpoints(chainID uint64, onlyAvailable bool) int {
	p.mu.RLock()
	iter := p.endpoints[chainID]
	p.mu.RUnlock()
	if iter == nil {
		return 0
	}
	if onlyAvailable {
		return iter.Available()
	}
	return iter.Available() + iter.Disabled()
}
