// Command keeper runs the oracle-committee keeper daemon: one process, no
// subcommands, wiring config load → startup checks → the scheduler loop.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/oracle-committee/keeper/internal/config"
	"github.com/oracle-committee/keeper/internal/consensus"
	"github.com/oracle-committee/keeper/internal/contracts"
	"github.com/oracle-committee/keeper/internal/duties"
	"github.com/oracle-committee/keeper/internal/ethchain"
	"github.com/oracle-committee/keeper/internal/gas"
	"github.com/oracle-committee/keeper/internal/graph"
	"github.com/oracle-committee/keeper/internal/ipfsfetch"
	"github.com/oracle-committee/keeper/internal/logging"
	"github.com/oracle-committee/keeper/internal/metrics"
	"github.com/oracle-committee/keeper/internal/oracles"
	"github.com/oracle-committee/keeper/internal/scheduler"
	"github.com/oracle-committee/keeper/internal/txsubmit"
)

// version/buildTime are stamped at build time; left as defaults here the
// way the teacher's indexer cmd does for its own unstamped builds.
var (
	version   = "dev"
	buildTime = "unknown"
)

// leverageStrategyName is the only leverage strategy StakeWise-style
// registries currently deploy; its on-chain identifier is the keccak256
// hash of this name, per original_source/src/force_exit/service.py's
// NETWORK_CONFIG.LEVERAGE_STRATEGY_ID usage.
const leverageStrategyName = "basic"

func main() {
	root := &cobra.Command{
		Use:   "keeper",
		Short: "Bridges oracle committee votes to on-chain keeper transactions",
		RunE:  run,
	}
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logging.New("keeper")

	cfg, err := config.Load()
	if err != nil {
		log.Error(err, "failed to load configuration")
		return err
	}
	if err := cfg.Validate(); err != nil {
		log.Error(err, "invalid configuration")
		return err
	}

	netConsts, ok := config.Constants(cfg.Network)
	if !ok {
		err := fmt.Errorf("unrecognized network %q", cfg.Network)
		log.Error(err, "startup failed")
		return err
	}

	metrics.AppVersion.WithLabelValues(cfg.Network).Set(1)
	metricsServer := metrics.NewServer(cfg.MetricsHost, cfg.MetricsPort)
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error(err, "metrics server failed")
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	chain, err := ethchain.Dial(ctx, cfg.ExecutionEndpoints, logging.New("execution"))
	if err != nil {
		log.Error(err, "failed to dial execution endpoints")
		return err
	}

	signer, err := ethchain.NewSigner(chain, cfg.PrivateKey, big.NewInt(netConsts.ChainID))
	if err != nil {
		log.Error(err, "failed to derive signer")
		return err
	}
	metrics.KeeperAccount.WithLabelValues(cfg.Network, signer.Address().Hex()).Set(1)

	if err := runStartupChecks(ctx, cfg, netConsts, chain, log); err != nil {
		log.Error(err, "startup checks failed")
		return err
	}

	consensusClient := consensus.New(cfg.ConsensusEndpoints, cfg.OracleTimeout, logging.New("consensus"))
	ipfsClient := ipfsfetch.New(cfg.IpfsFetchEndpoints, cfg.IpfsClientTimeout, cfg.IpfsClientRetryTimeout)
	graphClient := graph.New([]string{cfg.GraphAPIURL}, cfg.GraphAPITimeout)

	gasManager := gas.New(chain, gas.Config{
		MaxFeePerGasGwei:           float64(cfg.MaxFeePerGasGwei),
		PriorityFeeNumBlocks:       uint64(cfg.PriorityFeeNumBlocks),
		PriorityFeePercentile:      float64(cfg.PriorityFeePercentile),
		MinEffectivePriorityFeeWei: big.NewInt(cfg.MinEffectivePriorityFee),
		HighPriorityFeeFloorWei:    big.NewInt(cfg.MinEffectivePriorityFee),
	})
	submitter := txsubmit.New(signer, gasManager, cfg.AttemptsWithDefaultGas, netConsts.SecondsPerBlock, logging.New("txsubmit"))

	keeperContract := contracts.NewKeeper(common.HexToAddress(netConsts.KeeperAddress), netConsts.KeeperGenesisBlock, chain)
	merkleDistributor := contracts.NewMerkleDistributor(common.HexToAddress(netConsts.MerkleDistributorAddress), chain)
	multicall := contracts.NewMulticall(common.HexToAddress(netConsts.MulticallAddress), chain)
	vaultLtvTracker := contracts.NewVaultUserLtvTracker(common.HexToAddress(netConsts.VaultUserLtvTrackerAddr), chain)
	strategyRegistry := contracts.NewStrategyRegistry(common.HexToAddress(netConsts.StrategyRegistryAddress), chain)
	osTokenEscrow := contracts.NewOsTokenVaultEscrow(common.HexToAddress(netConsts.OsTokenVaultEscrowAddr), chain)
	priceFeedSender := contracts.NewPriceFeedSender(common.HexToAddress(netConsts.PriceFeedSenderAddress), chain)

	loader := oracles.NewLoader(keeperContract, ipfsClient, netConsts.SecondsPerBlock.Seconds())

	appState := &duties.AppState{}
	rewardsCache := duties.NewRewardsCache()

	dutyList := []scheduler.NamedDuty{
		{Name: "rewards", Duty: duties.NewRewards(keeperContract, submitter, rewardsCache, cfg.OracleTimeout, logging.New("duty.rewards"))},
		{Name: "exits", Duty: duties.NewExits(consensusClient, cfg.OracleTimeout, logging.New("duty.exits"))},
	}
	if !cfg.SkipDistributorRewards {
		dutyList = append(dutyList, scheduler.NamedDuty{
			Name: "distributor-rewards",
			Duty: duties.NewDistributor(merkleDistributor, submitter, cfg.OracleTimeout, logging.New("duty.distributor")),
		})
	}
	if netConsts.OsethPriceSupported && !cfg.SkipOsethPriceUpdate {
		l2Chain, err := ethchain.Dial(ctx, cfg.L2ExecutionEndpoints, logging.New("l2-execution"))
		if err != nil {
			log.Error(err, "failed to dial l2 execution endpoints")
			return err
		}
		targetFeed := contracts.NewPriceFeed(common.HexToAddress(netConsts.PriceFeedAddress), l2Chain)
		dutyList = append(dutyList, scheduler.NamedDuty{
			Name: "price",
			Duty: duties.NewPrice(priceFeedSender, targetFeed, submitter, appState, big.NewInt(netConsts.TargetChainID), common.HexToAddress(netConsts.TargetAddress), cfg.PriceUpdateInterval, cfg.PriceMaxWaitingTime, logging.New("duty.price")),
		})
	}
	if netConsts.ForceExitsSupported && !cfg.SkipForceExits {
		strategyID := crypto.Keccak256Hash([]byte(leverageStrategyName))
		dutyList = append(dutyList, scheduler.NamedDuty{
			Name: "force-exit",
			Duty: duties.NewForceExit(graphClient, keeperContract, strategyRegistry, osTokenEscrow, multicall, chain, submitter, appState, cfg.ForceExitsInterval, strategyID, cfg.LTVPercentDelta, logging.New("duty.forceexit")),
		})
	}
	if !cfg.SkipLTVUpdate {
		dutyList = append(dutyList, scheduler.NamedDuty{
			Name: "ltv",
			Duty: duties.NewLTV(vaultLtvTracker, graphClient, submitter, appState, cfg.LTVUpdateInterval, cfg.LTVPercentDelta, logging.New("duty.ltv")),
		})
	}

	sched := scheduler.New(loader, dutyList, chain, signer.Address(), netConsts.SecondsPerBlock, logging.New("scheduler"))

	log.Info("keeper starting", "network", cfg.Network, "version", version, "build_time", buildTime, "duties", len(dutyList))
	if err := sched.Run(ctx); err != nil {
		log.Error(err, "scheduler exited with error")
		return err
	}

	log.Info("shutting down")
	if metricsServer != nil {
		_ = metricsServer.Stop(context.Background())
	}
	return nil
}
