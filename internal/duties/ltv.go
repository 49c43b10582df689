package duties

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/contracts"
	"github.com/oracle-committee/keeper/internal/logging"
	"github.com/oracle-committee/keeper/internal/oracles"
)

// vaultLtvUpdater is the subset of *contracts.VaultUserLtvTracker the duty
// needs.
type vaultLtvUpdater interface {
	UpdateVaultsLtv(vaults []common.Address) (contracts.TxCall, error)
}

// graphVaultFetcher is the subset of *graph.Client the duty needs.
type graphVaultFetcher interface {
	FetchPages(ctx context.Context, query string, variables map[string]interface{}, entityField string) ([]json.RawMessage, error)
}

const staleVaultsQuery = `
query VaultsNeedingLtvUpdate($delta: Float!, $first: Int!, $skip: Int!) {
  vaultUserLtvs(first: $first, skip: $skip, where: { ltvDelta_gt: $delta }) {
    vault
  }
}`

type staleVaultEntry struct {
	Vault string `json:"vault"`
}

// LTV implements the supplemental LTV-refresh duty: the subgraph tracks
// each vault's on-chain-recorded LTV drifting away from its live value as
// allocators deposit/withdraw/borrow; once the drift exceeds
// LTVPercentDelta the tracker's stale copy needs an on-chain refresh.
type LTV struct {
	tracker        vaultLtvUpdater
	graph          graphVaultFetcher
	submitter      txSubmitter
	state          *AppState
	updateInterval time.Duration
	percentDelta   float64
	log            *logging.Logger
}

// NewLTV builds the LTV-update duty.
func NewLTV(tracker *contracts.VaultUserLtvTracker, graph graphVaultFetcher, submitter txSubmitter, state *AppState, updateInterval time.Duration, percentDelta float64, log *logging.Logger) *LTV {
	return &LTV{
		tracker:        tracker,
		graph:          graph,
		submitter:      submitter,
		state:          state,
		updateInterval: updateInterval,
		percentDelta:   percentDelta,
		log:            log,
	}
}

// Run executes one tick of the LTV-update duty.
func (d *LTV) Run(ctx context.Context, _ oracles.Committee) error {
	now := time.Now().Unix()
	if lastUpdated := d.state.LTVUpdated(); lastUpdated != 0 && now-lastUpdated < int64(d.updateInterval.Seconds()) {
		d.log.Debug("ltv update still within update interval")
		return nil
	}

	vaults, err := d.staleVaults(ctx)
	if err != nil {
		return fmt.Errorf("query stale vaults: %w", err)
	}
	if len(vaults) == 0 {
		d.log.Debug("no vaults need an ltv refresh")
		d.state.SetLTVUpdated(now)
		return nil
	}

	call, err := d.tracker.UpdateVaultsLtv(vaults)
	if err != nil {
		return fmt.Errorf("encode updateVaultsLtv: %w", err)
	}

	hash, submitErr := d.submitter.Submit(ctx, call, nil)
	// Set unconditionally: the duty's job is to have attempted a refresh
	// this interval, not to guarantee the batch landed (mirrors the
	// rewards cache's unconditional clear).
	d.state.SetLTVUpdated(now)
	if submitErr != nil {
		return fmt.Errorf("submit updateVaultsLtv: %w", submitErr)
	}

	d.log.Info("submitted vault ltv refresh", "tx_hash", hash.Hex(), "vaults", len(vaults))
	return nil
}

func (d *LTV) staleVaults(ctx context.Context) ([]common.Address, error) {
	pages, err := d.graph.FetchPages(ctx, staleVaultsQuery, map[string]interface{}{"delta": d.percentDelta}, "vaultUserLtvs")
	if err != nil {
		return nil, err
	}

	vaults := make([]common.Address, 0, len(pages))
	for _, raw := range pages {
		var entry staleVaultEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("decode vault entry: %w", err)
		}
		vaults = append(vaults, common.HexToAddress(entry.Vault))
	}
	return vaults, nil
}
