package main

import (
	"context"
	"fmt"

	"github.com/oracle-committee/keeper/internal/config"
	"github.com/oracle-committee/keeper/internal/ethchain"
	"github.com/oracle-committee/keeper/internal/graph"
	"github.com/oracle-committee/keeper/internal/logging"
)

// runStartupChecks pings configured endpoints and confirms the invariants
// the main loop relies on before it ever ticks (spec §6.2): execution
// endpoints are reachable, and — when graph-backed duties are enabled —
// the subgraph has caught up to the execution chain's finalized block.
// Config-level invariants (PRICE_MAX_WAITING_TIME < PRICE_UPDATE_INTERVAL)
// are already enforced by config.Config.Validate before this runs.
func runStartupChecks(ctx context.Context, cfg *config.Config, netConsts config.NetworkConstants, chain *ethchain.Client, log *logging.Logger) error {
	header, err := chain.GetBlock(ctx, ethchain.Finalized)
	if err != nil {
		return fmt.Errorf("ping execution endpoints: %w", err)
	}

	if (netConsts.ForceExitsSupported && !cfg.SkipForceExits) || !cfg.SkipLTVUpdate {
		if cfg.GraphAPIURL == "" {
			return fmt.Errorf("GRAPH_API_URL is required when force-exit or ltv duties are enabled")
		}
		graphClient := graph.New([]string{cfg.GraphAPIURL}, cfg.GraphAPITimeout)
		if err := graphClient.CheckSynced(ctx, header.Number.Uint64()); err != nil {
			return fmt.Errorf("graph sync check: %w", err)
		}
	}

	log.Info("startup checks passed", "finalized_block", header.Number.Uint64())
	return nil
}
