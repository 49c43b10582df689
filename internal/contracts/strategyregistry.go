package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/ethchain"
)

const strategyRegistryABI = `[
	{"type":"function","name":"getStrategyConfig","stateMutability":"view","inputs":[
		{"name":"strategyId","type":"bytes32"},{"name":"param","type":"string"}
	],"outputs":[{"type":"bytes"}]}
]`

var strategyRegistryContractABI = mustParseABI(strategyRegistryABI)

// StrategyRegistry wraps the strategy registry's per-strategy config store.
type StrategyRegistry struct{ base }

// NewStrategyRegistry builds a StrategyRegistry wrapper.
func NewStrategyRegistry(address common.Address, client *ethchain.Client) *StrategyRegistry {
	return &StrategyRegistry{newBase(address, strategyRegistryContractABI, client)}
}

// GetStrategyConfig reads a named config parameter for strategyId and
// interprets the raw bytes as a big-endian unsigned integer.
func (s *StrategyRegistry) GetStrategyConfig(ctx context.Context, strategyID [32]byte, param string, block ethchain.BlockIdentifier) (*big.Int, error) {
	var raw []byte
	if err := s.call(ctx, block, &raw, "getStrategyConfig", strategyID, param); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// BorrowForceExitLtvPercent reads the "borrowForceExitLtvPercent" parameter,
// scaled by 1e18.
func (s *StrategyRegistry) BorrowForceExitLtvPercent(ctx context.Context, strategyID [32]byte, block ethchain.BlockIdentifier) (*big.Int, error) {
	return s.GetStrategyConfig(ctx, strategyID, "borrowForceExitLtvPercent", block)
}

// VaultForceExitLtvPercent reads the "vaultForceExitLtvPercent" parameter,
// scaled by 1e18.
func (s *StrategyRegistry) VaultForceExitLtvPercent(ctx context.Context, strategyID [32]byte, block ethchain.BlockIdentifier) (*big.Int, error) {
	return s.GetStrategyConfig(ctx, strategyID, "vaultForceExitLtvPercent", block)
}
