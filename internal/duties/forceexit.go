package duties

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/oracle-committee/keeper/internal/contracts"
	"github.com/oracle-committee/keeper/internal/ethchain"
	"github.com/oracle-committee/keeper/internal/logging"
	"github.com/oracle-committee/keeper/internal/oracles"
)

// ExitRequest mirrors one vault exit-queue entry as tracked by the subgraph.
type ExitRequest struct {
	PositionTicket *big.Int
	Timestamp      *big.Int
	ExitQueueIndex *big.Int
	IsClaimed      bool
	IsClaimable    bool
	ExitedAssets   *big.Int
	TotalAssets    *big.Int
}

// IsFullyClaimable reports whether the entire exited position can be
// claimed in one call (partial exits settle over multiple queue rounds).
func (e ExitRequest) IsFullyClaimable() bool {
	return e.IsClaimable && e.ExitedAssets != nil && e.TotalAssets != nil && e.ExitedAssets.Cmp(e.TotalAssets) == 0
}

// LeveragePosition is one allocator's leveraged osToken position, held
// through a per-user strategy proxy contract.
type LeveragePosition struct {
	User        common.Address
	Vault       common.Address
	Proxy       common.Address
	BorrowLTV   float64
	ExitRequest *ExitRequest
}

// ID identifies a position by its (vault, user) pair, the same identity
// the borrow/vault-ltv position lists are deduplicated against.
func (p LeveragePosition) ID() string {
	return p.Vault.Hex() + "-" + p.User.Hex()
}

// OsTokenExitRequest is an osToken exit request owned by a leverage-strategy
// proxy whose LTV has drifted close to the liquidation threshold; Proxy is
// resolved to the position's user before the request is claimed.
type OsTokenExitRequest struct {
	ID          string
	Vault       common.Address
	Proxy       common.Address
	LTV         *big.Int
	ExitRequest ExitRequest
}

// canHarvestChecker is the subset of *contracts.Keeper the duty needs.
type canHarvestChecker interface {
	CanHarvest(ctx context.Context, vault common.Address, block ethchain.BlockIdentifier) (bool, error)
}

// strategyConfigReader is the subset of *contracts.StrategyRegistry the duty needs.
type strategyConfigReader interface {
	BorrowForceExitLtvPercent(ctx context.Context, strategyID [32]byte, block ethchain.BlockIdentifier) (*big.Int, error)
	VaultForceExitLtvPercent(ctx context.Context, strategyID [32]byte, block ethchain.BlockIdentifier) (*big.Int, error)
}

// liqThresholdReader is the subset of *contracts.OsTokenVaultEscrow the duty needs.
type liqThresholdReader interface {
	LiqThresholdPercent(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error)
}

// multicallClient is the subset of *contracts.Multicall the duty needs.
type multicallClient interface {
	Aggregate(ctx context.Context, calls []contracts.Call, block ethchain.BlockIdentifier) (uint64, [][]byte, error)
	AggregateTx(calls []contracts.Call) (contracts.TxCall, error)
}

// leverageStrategyOps is the subset of *contracts.LeverageStrategy the duty
// needs, satisfied directly by that type.
type leverageStrategyOps interface {
	Address() common.Address
	EncodeUpdateVaultState(vault common.Address, harvest contracts.HarvestParams) ([]byte, error)
	EncodeCanForceEnterExitQueue(vault, user common.Address) ([]byte, error)
	EncodeClaimExitedAssets(vault, user common.Address, req contracts.ExitRequest) ([]byte, error)
	EncodeForceEnterExitQueue(vault, user common.Address) ([]byte, error)
}

// proxyResolver resolves a leverage position's per-user strategy proxy to
// the leverage strategy instance that governs it (the proxy's `owner`).
type proxyResolver interface {
	ResolveLeverageStrategy(ctx context.Context, proxy common.Address, block ethchain.BlockIdentifier) (leverageStrategyOps, error)
}

// chainProxyResolver is the production proxyResolver, binding fresh
// *contracts.StrategyProxy/*contracts.LeverageStrategy wrappers per call,
// mirroring the original's per-position get_leverage_strategy_contract.
type chainProxyResolver struct{ client *ethchain.Client }

func (r *chainProxyResolver) ResolveLeverageStrategy(ctx context.Context, proxy common.Address, block ethchain.BlockIdentifier) (leverageStrategyOps, error) {
	owner, err := contracts.NewStrategyProxy(proxy, r.client).Owner(ctx, block)
	if err != nil {
		return nil, fmt.Errorf("resolve proxy owner: %w", err)
	}
	return contracts.NewLeverageStrategy(owner, r.client), nil
}

// ForceExit implements the leverage-position force-exit duty (spec §4.10):
// monitor leveraged and standalone osToken positions approaching their
// liquidation threshold and force them into the exit queue.
type ForceExit struct {
	graph            graphForceExitFetcher
	chain            finalizedBlockReader
	keeper           canHarvestChecker
	strategyRegistry strategyConfigReader
	osTokenEscrow    liqThresholdReader
	multicall        multicallClient
	proxies          proxyResolver
	submitter        txSubmitter
	state            *AppState
	updateInterval   time.Duration
	strategyID       [32]byte
	percentDelta     float64
	log              *logging.Logger
}

// graphForceExitFetcher is the subset of *graph.Client the duty needs.
type graphForceExitFetcher interface {
	FetchPages(ctx context.Context, query string, variables map[string]interface{}, entityField string) ([]json.RawMessage, error)
	RunQuery(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error
	CheckSynced(ctx context.Context, finalizedBlock uint64) error
}

// finalizedBlockReader is the subset of *ethchain.Client the duty needs for
// pinning every read of a tick to the same finalized block.
type finalizedBlockReader interface {
	GetBlock(ctx context.Context, id ethchain.BlockIdentifier) (*types.Header, error)
}

// NewForceExit builds the force-exit duty.
func NewForceExit(graph graphForceExitFetcher, keeper *contracts.Keeper, strategyRegistry *contracts.StrategyRegistry, osTokenEscrow *contracts.OsTokenVaultEscrow, multicall *contracts.Multicall, chainClient *ethchain.Client, submitter txSubmitter, state *AppState, updateInterval time.Duration, strategyID [32]byte, percentDelta float64, log *logging.Logger) *ForceExit {
	return &ForceExit{
		graph:            graph,
		chain:            chainClient,
		keeper:           keeper,
		strategyRegistry: strategyRegistry,
		osTokenEscrow:    osTokenEscrow,
		multicall:        multicall,
		proxies:          &chainProxyResolver{client: chainClient},
		submitter:        submitter,
		state:            state,
		updateInterval:   updateInterval,
		strategyID:       strategyID,
		percentDelta:     percentDelta,
		log:              log,
	}
}

// Run executes one tick of the force-exit duty.
func (d *ForceExit) Run(ctx context.Context, _ oracles.Committee) error {
	now := time.Now().Unix()
	if last := d.state.ForceExitsUpdated(); last != 0 && now-last < int64(d.updateInterval.Seconds()) {
		d.log.Debug("force exits still within update interval")
		return nil
	}

	header, err := d.chain.GetBlock(ctx, ethchain.Finalized)
	if err != nil {
		return fmt.Errorf("read finalized block: %w", err)
	}
	if err := d.graph.CheckSynced(ctx, header.Number.Uint64()); err != nil {
		return fmt.Errorf("check graph sync: %w", err)
	}
	block := ethchain.BlockIdentifier{Number: header.Number}

	var lastErr error
	if err := d.handleLeveragePositions(ctx, block); err != nil {
		lastErr = fmt.Errorf("handle leverage positions: %w", err)
	}
	if err := d.handleOsTokenExitRequests(ctx, block); err != nil {
		lastErr = fmt.Errorf("handle ostoken exit requests: %w", err)
	}

	d.state.SetForceExitsUpdated(now)
	return lastErr
}

func (d *ForceExit) handleLeveragePositions(ctx context.Context, block ethchain.BlockIdentifier) error {
	positions, err := d.fetchLeveragePositions(ctx, block)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		d.log.Debug("no risky leverage positions found")
		return nil
	}

	d.log.Info("checking leverage positions", "count", len(positions))

	harvestParams, err := d.fetchVaultHarvestParams(ctx, uniqueVaults(positions))
	if err != nil {
		return fmt.Errorf("fetch vault harvest params: %w", err)
	}

	var lastErr error
	for _, pos := range positions {
		harvest := harvestParams[pos.Vault]
		if err := d.handleLeveragePosition(ctx, pos, &harvest, block); err != nil {
			d.log.Error(err, "force-exit handling failed", "vault", pos.Vault.Hex(), "user", pos.User.Hex())
			lastErr = err
		}
	}
	return lastErr
}

func (d *ForceExit) handleLeveragePosition(ctx context.Context, pos LeveragePosition, harvest *contracts.HarvestParams, block ethchain.BlockIdentifier) error {
	strategy, err := d.proxies.ResolveLeverageStrategy(ctx, pos.Proxy, block)
	if err != nil {
		return fmt.Errorf("resolve leverage strategy: %w", err)
	}

	can, err := d.canForceEnterExitQueue(ctx, strategy, pos.Vault, pos.User, harvest, block)
	if err != nil {
		return fmt.Errorf("check can_force_enter_exit_queue: %w", err)
	}
	if !can {
		d.log.Info("leverage position cannot be force-closed, skipping", "vault", pos.Vault.Hex(), "user", pos.User.Hex())
		return nil
	}

	if pos.ExitRequest != nil && pos.ExitRequest.IsFullyClaimable() {
		if err := d.claimExitedAssets(ctx, strategy, pos.Vault, pos.User, *pos.ExitRequest, harvest, block); err != nil {
			return fmt.Errorf("claim exited assets: %w", err)
		}

		can, err = d.canForceEnterExitQueue(ctx, strategy, pos.Vault, pos.User, harvest, block)
		if err != nil {
			return fmt.Errorf("recheck can_force_enter_exit_queue: %w", err)
		}
		if !can {
			d.log.Info("leverage position cannot be force-closed after claim, skipping", "vault", pos.Vault.Hex(), "user", pos.User.Hex())
			return nil
		}
	}

	if err := d.forceEnterExitQueue(ctx, strategy, pos.Vault, pos.User, block); err != nil {
		return fmt.Errorf("force enter exit queue: %w", err)
	}
	d.log.Info("submitted force exit for leverage position", "vault", pos.Vault.Hex(), "user", pos.User.Hex())
	return nil
}

func (d *ForceExit) handleOsTokenExitRequests(ctx context.Context, block ethchain.BlockIdentifier) error {
	liqThreshold, err := d.osTokenEscrow.LiqThresholdPercent(ctx, block)
	if err != nil {
		return fmt.Errorf("read liqThresholdPercent: %w", err)
	}
	// Exit before the liquidation threshold is actually hit, per the
	// original's "adjust ltv percent to exit before liquidation".
	maxLtv := wadToFloat(liqThreshold) * (1 - d.percentDelta)

	requests, err := d.graphOsTokenExitRequests(ctx, maxLtv, block)
	if err != nil {
		return fmt.Errorf("query osToken exit requests: %w", err)
	}

	claimable := make([]OsTokenExitRequest, 0, len(requests))
	for _, r := range requests {
		if r.ExitRequest.IsClaimed || !r.ExitRequest.IsFullyClaimable() {
			continue
		}
		claimable = append(claimable, r)
	}
	if len(claimable) == 0 {
		d.log.Debug("no ostoken exit requests found")
		return nil
	}

	d.log.Info("force assets claim for osToken exit requests", "count", len(claimable))

	vaults := make([]common.Address, 0, len(claimable))
	for _, r := range claimable {
		vaults = append(vaults, r.Vault)
	}
	harvestParams, err := d.fetchVaultHarvestParams(ctx, vaults)
	if err != nil {
		return fmt.Errorf("fetch vault harvest params: %w", err)
	}

	var lastErr error
	for _, req := range claimable {
		user, err := d.graphLeveragePositionOwner(ctx, req.Proxy)
		if err != nil {
			d.log.Error(err, "resolve leverage position owner failed", "proxy", req.Proxy.Hex())
			lastErr = err
			continue
		}

		strategy, err := d.proxies.ResolveLeverageStrategy(ctx, req.Proxy, block)
		if err != nil {
			d.log.Error(err, "resolve leverage strategy failed", "proxy", req.Proxy.Hex())
			lastErr = err
			continue
		}

		harvest := harvestParams[req.Vault]
		if err := d.claimExitedAssets(ctx, strategy, req.Vault, user, req.ExitRequest, &harvest, block); err != nil {
			d.log.Error(err, "claim exited assets failed", "vault", req.Vault.Hex(), "user", user.Hex())
			lastErr = err
			continue
		}
		d.log.Info("claimed exited assets for osToken exit request", "vault", req.Vault.Hex(), "user", user.Hex())
	}
	return lastErr
}

// canForceEnterExitQueue multicalls an optional updateVaultState refresh
// alongside canForceEnterExitQueue, atomically at block.
func (d *ForceExit) canForceEnterExitQueue(ctx context.Context, strategy leverageStrategyOps, vault, user common.Address, harvest *contracts.HarvestParams, block ethchain.BlockIdentifier) (bool, error) {
	calls, updateStateIncluded, err := d.buildUpdateStateCall(ctx, strategy, vault, harvest, block)
	if err != nil {
		return false, err
	}

	canCallData, err := strategy.EncodeCanForceEnterExitQueue(vault, user)
	if err != nil {
		return false, err
	}
	calls = append(calls, contracts.Call{Target: strategy.Address(), Data: canCallData})

	_, returnData, err := d.multicall.Aggregate(ctx, calls, block)
	if err != nil {
		return false, err
	}

	idx := 0
	if updateStateIncluded {
		idx = 1
	}
	if idx >= len(returnData) {
		return false, fmt.Errorf("multicall returned %d results, expected at least %d", len(returnData), idx+1)
	}
	return new(big.Int).SetBytes(returnData[idx]).Sign() != 0, nil
}

func (d *ForceExit) claimExitedAssets(ctx context.Context, strategy leverageStrategyOps, vault, user common.Address, req ExitRequest, harvest *contracts.HarvestParams, block ethchain.BlockIdentifier) error {
	calls, _, err := d.buildUpdateStateCall(ctx, strategy, vault, harvest, block)
	if err != nil {
		return err
	}

	claimData, err := strategy.EncodeClaimExitedAssets(vault, user, contracts.ExitRequest{
		PositionTicket: req.PositionTicket,
		Timestamp:      req.Timestamp,
		ExitQueueIndex: req.ExitQueueIndex,
	})
	if err != nil {
		return err
	}
	calls = append(calls, contracts.Call{Target: strategy.Address(), Data: claimData})

	call, err := d.multicall.AggregateTx(calls)
	if err != nil {
		return err
	}

	_, err = d.submitter.Submit(ctx, call, nil)
	return err
}

func (d *ForceExit) forceEnterExitQueue(ctx context.Context, strategy leverageStrategyOps, vault, user common.Address, block ethchain.BlockIdentifier) error {
	// No updateVaultState sub-call is bundled here. The forceability check
	// above includes that update only in a read-only multicall, so vault
	// state is refreshed on-chain only when claimExitedAssets ran first.
	forceData, err := strategy.EncodeForceEnterExitQueue(vault, user)
	if err != nil {
		return err
	}
	call, err := d.multicall.AggregateTx([]contracts.Call{{Target: strategy.Address(), Data: forceData}})
	if err != nil {
		return err
	}

	_, err = d.submitter.Submit(ctx, call, nil)
	return err
}

// buildUpdateStateCall returns the optional updateVaultState sub-call when
// the vault has pending rewards, reporting whether it was included.
func (d *ForceExit) buildUpdateStateCall(ctx context.Context, strategy leverageStrategyOps, vault common.Address, harvest *contracts.HarvestParams, block ethchain.BlockIdentifier) ([]contracts.Call, bool, error) {
	if harvest == nil {
		return nil, false, nil
	}
	canHarvest, err := d.keeper.CanHarvest(ctx, vault, block)
	if err != nil {
		return nil, false, err
	}
	if !canHarvest {
		return nil, false, nil
	}
	data, err := strategy.EncodeUpdateVaultState(vault, *harvest)
	if err != nil {
		return nil, false, err
	}
	return []contracts.Call{{Target: strategy.Address(), Data: data}}, true, nil
}

func (d *ForceExit) fetchLeveragePositions(ctx context.Context, block ethchain.BlockIdentifier) ([]LeveragePosition, error) {
	borrowLtvRaw, err := d.strategyRegistry.BorrowForceExitLtvPercent(ctx, d.strategyID, block)
	if err != nil {
		return nil, fmt.Errorf("read borrowForceExitLtvPercent: %w", err)
	}
	vaultLtvRaw, err := d.strategyRegistry.VaultForceExitLtvPercent(ctx, d.strategyID, block)
	if err != nil {
		return nil, fmt.Errorf("read vaultForceExitLtvPercent: %w", err)
	}

	all, err := d.graphLeveragePositions(ctx, block)
	if err != nil {
		return nil, fmt.Errorf("query leverage positions: %w", err)
	}

	return selectRiskyPositions(all, wadToFloat(borrowLtvRaw), wadToFloat(vaultLtvRaw), func(proxies []common.Address) ([]common.Address, error) {
		return d.graphAllocatorsAboveLtv(ctx, wadToFloat(vaultLtvRaw), proxies, block)
	})
}

// selectRiskyPositions unions positions over the borrow-LTV threshold
// with positions whose underlying vault allocation is over the
// vault-LTV threshold (with liquidation-disabled vaults already filtered
// out by the allocator query), deduped by position identity, borrow-LTV
// positions taking precedence. Pure except for the allocator lookup,
// which needs a live graph round trip keyed by every position's proxy.
func selectRiskyPositions(all []LeveragePosition, borrowLtv, vaultLtv float64, fetchAllocators func([]common.Address) ([]common.Address, error)) ([]LeveragePosition, error) {
	borrowPositions := make([]LeveragePosition, 0)
	proxyToPosition := make(map[common.Address]LeveragePosition, len(all))
	proxies := make([]common.Address, 0, len(all))
	for _, pos := range all {
		proxyToPosition[pos.Proxy] = pos
		proxies = append(proxies, pos.Proxy)
		if pos.BorrowLTV > borrowLtv {
			borrowPositions = append(borrowPositions, pos)
		}
	}

	allocators, err := fetchAllocators(proxies)
	if err != nil {
		return nil, fmt.Errorf("query allocators: %w", err)
	}

	borrowIDs := make(map[string]bool, len(borrowPositions))
	for _, pos := range borrowPositions {
		borrowIDs[pos.ID()] = true
	}

	positions := append([]LeveragePosition{}, borrowPositions...)
	for _, proxy := range allocators {
		pos, ok := proxyToPosition[proxy]
		if !ok || borrowIDs[pos.ID()] {
			continue
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func uniqueVaults(positions []LeveragePosition) []common.Address {
	seen := make(map[common.Address]bool, len(positions))
	vaults := make([]common.Address, 0, len(positions))
	for _, pos := range positions {
		if seen[pos.Vault] {
			continue
		}
		seen[pos.Vault] = true
		vaults = append(vaults, pos.Vault)
	}
	return vaults
}

func wadToFloat(v *big.Int) float64 {
	f := new(big.Float).SetInt(v)
	f.Quo(f, big.NewFloat(1e18))
	out, _ := f.Float64()
	return out
}
