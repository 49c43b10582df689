package config

import "time"

// NetworkConstants holds the per-network chain parameters the keeper needs
// but which are not themselves configuration: genesis blocks, block time,
// and which optional duties a network supports. Mirrors the split between
// `src/config/settings.py` (env-driven) and `src/config/networks.py`
// (chain-constant) in the original implementation.
type NetworkConstants struct {
	ChainID            int64
	SecondsPerBlock    time.Duration
	KeeperGenesisBlock uint64

	KeeperAddress            string
	MerkleDistributorAddress string
	MulticallAddress         string
	VaultUserLtvTrackerAddr  string
	StrategyRegistryAddress  string
	OsTokenVaultEscrowAddr   string
	PriceFeedSenderAddress   string
	PriceFeedAddress         string

	// TargetChainID/TargetAddress name the L2 PriceFeed the price duty
	// relays to (spec §4.9 "syncRate(TARGET_CHAIN, TARGET_ADDRESS)").
	// Per-network chain constants, not env vars — mirrors
	// src/config/networks.py's PriceNetworkConfig in the original.
	TargetChainID int64
	TargetAddress string

	OsethPriceSupported bool
	ForceExitsSupported bool
}

var networks = map[string]NetworkConstants{
	"mainnet": {
		ChainID:            1,
		SecondsPerBlock:    12 * time.Second,
		KeeperGenesisBlock: 16_500_000,

		KeeperAddress:            "0x6B5815467da09DaA7DC83Db21c9239d98Bb487b",
		MerkleDistributorAddress: "0x1eA3e0D4Db15119A7A33A5cD8Cc4C7b6FFE19A6b",
		MulticallAddress:         "0xcA11bde05977b3631167028862bE2a173976CA11",

		// osETH price is relayed to Arbitrum One, per the original's
		// "Update osEth price in the Arbitrum chain" comment.
		TargetChainID: 42161,
		TargetAddress: "0x1ACC86bf293c8B5F881BA3aDcD265174D97a3230",

		OsethPriceSupported: true,
		ForceExitsSupported: true,
	},
	"hoodi": {
		ChainID:            560048,
		SecondsPerBlock:    12 * time.Second,
		KeeperGenesisBlock: 0,
		OsethPriceSupported: false,
		ForceExitsSupported: false,
	},
	"gnosis": {
		ChainID:            100,
		SecondsPerBlock:    5 * time.Second,
		KeeperGenesisBlock: 27_000_000,
		OsethPriceSupported: false,
		ForceExitsSupported: true,
	},
	"chiado": {
		ChainID:            10200,
		SecondsPerBlock:    5 * time.Second,
		KeeperGenesisBlock: 0,
		OsethPriceSupported: false,
		ForceExitsSupported: false,
	},
	"sepolia": {
		ChainID:            11155111,
		SecondsPerBlock:    12 * time.Second,
		KeeperGenesisBlock: 0,

		// Arbitrum Sepolia, the testnet counterpart of mainnet's Arbitrum One relay.
		TargetChainID: 421614,
		TargetAddress: "0x71C7656EC7ab88b098defB751B7401B5f6d8976F",

		OsethPriceSupported: true,
		ForceExitsSupported: true,
	},
}

// Constants returns the chain constants for the named network, or false if
// the network is unrecognized.
func Constants(network string) (NetworkConstants, bool) {
	nc, ok := networks[network]
	return nc, ok
}
