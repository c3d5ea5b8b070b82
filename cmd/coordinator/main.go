// Command coordinator is a small illustrative wiring entrypoint: it loads
// configuration, dials the configured RPC endpoints, and opens the
// configured journal backend, then runs a single sync pass against an
// empty deployment state. It is not the deployment engine itself — that
// owns the planner loop, the deployment state, and the module plan that
// would drive real calls into the coordinator package.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Hawthorne001/execution-coordinator/config"
	"github.com/Hawthorne001/execution-coordinator/coordinator"
	"github.com/Hawthorne001/execution-coordinator/journal"
	"github.com/Hawthorne001/execution-coordinator/log"
	"github.com/Hawthorne001/execution-coordinator/rpc"
	"github.com/Hawthorne001/execution-coordinator/types"
)

func main() {
	if err := run(); err != nil {
		log.Errorw(err, "coordinator exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)

	pool := rpc.NewWeb3Pool()
	for _, uri := range cfg.Web3.RPC {
		endpoint, err := rpc.Dial(cfg.Web3.ChainID, uri)
		if err != nil {
			return fmt.Errorf("dial %s: %w", uri, err)
		}
		pool.AddEndpoint(endpoint)
	}
	cli := rpc.NewClient(pool, cfg.Web3.ChainID)

	sink, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer sink.Close()

	nonces := coordinator.NewNonceAllocator(cli)
	fees := coordinator.NewFeePolicy(cli)
	gas := coordinator.NewGasEstimator(cli, coordinator.GasEstimateOpts{
		MinGas:    cfg.Gas.MinGas,
		MaxGas:    cfg.Gas.MaxGas,
		SafetyBps: cfg.Gas.SafetyBps,
		Timeout:   cfg.Gas.Timeout,
		Fallback:  cfg.Gas.Fallback,
	})
	pipeline := coordinator.NewSendPipeline(cli, nonces, fees, gas)
	syncEngine := coordinator.NewSyncEngine(cli, nonces, cfg.Sync.ConcurrencyLimit)

	_ = pipeline // wired, driven by the execution engine's planner loop

	ctx := context.Background()
	events, err := syncEngine.Sync(ctx, types.DeploymentState{}, nil, nil, types.Sender{}, cfg.Sync.RequiredConfirmations)
	if err != nil {
		return fmt.Errorf("initial sync pass: %w", err)
	}
	log.Infow("startup sync pass complete", "events", len(events))
	return nil
}

func openJournal(cfg config.JournalConfig) (journal.Sink, error) {
	switch cfg.Backend {
	case "memory":
		return journal.NewMemorySink(), nil
	default:
		return journal.OpenPebbleSink(cfg.Path)
	}
}
