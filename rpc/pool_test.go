package rpc

import (
	"errors"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestEndpointSwitchingOnFailure(t *testing.T) {
	c := qt.New(t)
	pool := NewWeb3Pool()

	endpoints := []*Web3Endpoint{
		{ChainID: 1, URI: "http://endpoint1.example.com"},
		{ChainID: 1, URI: "http://endpoint2.example.com"},
		{ChainID: 1, URI: "http://endpoint3.example.com"},
	}
	pool.endpoints[1] = NewWeb3Iterator(endpoints...)

	c.Assert(pool.NumberOfEndpoints(1, true), qt.Equals, 3)

	pool.DisableEndpoint(1, "http://endpoint1.example.com")
	c.Assert(pool.NumberOfEndpoints(1, true), qt.Equals, 2)
	c.Assert(pool.NumberOfEndpoints(1, false), qt.Equals, 3)

	pool.DisableEndpoint(1, "http://endpoint2.example.com")
	c.Assert(pool.NumberOfEndpoints(1, true), qt.Equals, 1)

	// Disabling the last available endpoint resets the whole set.
	pool.DisableEndpoint(1, "http://endpoint3.example.com")
	c.Assert(pool.NumberOfEndpoints(1, true), qt.Equals, 3)
}

func TestDisableNonExistentEndpoint(t *testing.T) {
	c := qt.New(t)
	pool := NewWeb3Pool()

	endpoints := []*Web3Endpoint{
		{ChainID: 1, URI: "http://endpoint1.example.com"},
		{ChainID: 1, URI: "http://endpoint2.example.com"},
	}
	pool.endpoints[1] = NewWeb3Iterator(endpoints...)

	pool.DisableEndpoint(1, "http://nonexistent.example.com")
	c.Assert(pool.NumberOfEndpoints(1, true), qt.Equals, 2)

	pool.DisableEndpoint(999, "http://endpoint1.example.com")
	c.Assert(pool.NumberOfEndpoints(1, true), qt.Equals, 2)
}

func TestIteratorRoundRobin(t *testing.T) {
	c := qt.New(t)
	endpoints := []*Web3Endpoint{
		{ChainID: 1, URI: "http://endpoint1.example.com"},
		{ChainID: 1, URI: "http://endpoint2.example.com"},
		{ChainID: 1, URI: "http://endpoint3.example.com"},
	}
	iter := NewWeb3Iterator(endpoints...)

	for _, want := range []string{
		"http://endpoint1.example.com",
		"http://endpoint2.example.com",
		"http://endpoint3.example.com",
		"http://endpoint1.example.com",
	} {
		ep, err := iter.Next()
		c.Assert(err, qt.IsNil)
		c.Assert(ep.URI, qt.Equals, want)
	}
}

func TestIteratorDisableAndNext(t *testing.T) {
	c := qt.New(t)
	endpoints := []*Web3Endpoint{
		{ChainID: 1, URI: "http://endpoint1.example.com"},
		{ChainID: 1, URI: "http://endpoint2.example.com"},
		{ChainID: 1, URI: "http://endpoint3.example.com"},
	}
	iter := NewWeb3Iterator(endpoints...)

	ep1, err := iter.Next()
	c.Assert(err, qt.IsNil)
	c.Assert(ep1.URI, qt.Equals, "http://endpoint1.example.com")

	iter.Disable("http://endpoint2.example.com")

	ep2, err := iter.Next()
	c.Assert(err, qt.IsNil)
	c.Assert(ep2.URI, qt.Equals, "http://endpoint1.example.com")

	ep3, err := iter.Next()
	c.Assert(err, qt.IsNil)
	c.Assert(ep3.URI, qt.Equals, "http://endpoint3.example.com")
}

func TestIteratorEmptyPool(t *testing.T) {
	c := qt.New(t)
	iter := NewWeb3Iterator()

	_, err := iter.Next()
	c.Assert(err, qt.Not(qt.IsNil))
	c.Assert(iter.Available(), qt.Equals, 0)
}

func TestIteratorAllDisabled(t *testing.T) {
	c := qt.New(t)
	endpoints := []*Web3Endpoint{
		{ChainID: 1, URI: "http://endpoint1.example.com"},
		{ChainID: 1, URI: "http://endpoint2.example.com"},
	}
	iter := NewWeb3Iterator(endpoints...)

	iter.Disable("http://endpoint1.example.com")
	c.Assert(iter.Available(), qt.Equals, 1)

	iter.Disable("http://endpoint2.example.com")
	c.Assert(iter.Available(), qt.Equals, 2)
	c.Assert(iter.Disabled(), qt.Equals, 0)
}

func TestConcurrentAccess(t *testing.T) {
	c := qt.New(t)
	endpoints := []*Web3Endpoint{
		{ChainID: 1, URI: "http://endpoint1.example.com"},
		{ChainID: 1, URI: "http://endpoint2.example.com"},
		{ChainID: 1, URI: "http://endpoint3.example.com"},
	}
	iter := NewWeb3Iterator(endpoints...)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_, _ = iter.Next()
				time.Sleep(time.Microsecond)
			}
			done <- true
		}()
	}
	go func() {
		for i := 0; i < 10; i++ {
			iter.Disable("http://endpoint1.example.com")
			time.Sleep(time.Millisecond)
		}
		done <- true
	}()
	for i := 0; i < 11; i++ {
		<-done
	}
	c.Assert(iter.Available() >= 0, qt.IsTrue)
}

func TestRetryLogic(t *testing.T) {
	c := qt.New(t)
	pool := NewWeb3Pool()

	endpoints := []*Web3Endpoint{
		{ChainID: 1, URI: "http://endpoint1.example.com"},
		{ChainID: 1, URI: "http://endpoint2.example.com"},
	}
	pool.endpoints[1] = NewWeb3Iterator(endpoints...)

	client := &Client{pool: pool, chainID: 1}

	callCount := 0
	testErr := errors.New("test error")
	_, err := client.retryAndCheckErr(func(endpoint *Web3Endpoint) (any, error) {
		callCount++
		if callCount <= defaultRetries {
			return nil, testErr
		}
		return "success", nil
	})
	c.Assert(err, qt.IsNil)
	c.Assert(callCount, qt.Equals, defaultRetries+1)
}

func TestRetryAllEndpointsFail(t *testing.T) {
	c := qt.New(t)
	pool := NewWeb3Pool()

	endpoints := []*Web3Endpoint{
		{ChainID: 1, URI: "http://endpoint1.example.com"},
		{ChainID: 1, URI: "http://endpoint2.example.com"},
	}
	pool.endpoints[1] = NewWeb3Iterator(endpoints...)

	client := &Client{pool: pool, chainID: 1}

	testErr := errors.New("test error")
	_, err := client.retryAndCheckErr(func(endpoint *Web3Endpoint) (any, error) {
		return nil, testErr
	})
	c.Assert(err, qt.Not(qt.IsNil))
	c.Assert(pool.NumberOfEndpoints(1, true), qt.Equals, 2)
}

func TestNoEndpointsAvailable(t *testing.T) {
	c := qt.New(t)
	pool := NewWeb3Pool()
	client := &Client{pool: pool, chainID: 999}

	_, err := client.retryAndCheckErr(func(endpoint *Web3Endpoint) (any, error) {
		return nil, nil
	})
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestPoolInitialization(t *testing.T) {
	c := qt.New(t)
	pool := NewWeb3Pool()
	c.Assert(pool.endpoints, qt.Not(qt.IsNil))
	c.Assert(len(pool.endpoints), qt.Equals, 0)
}
