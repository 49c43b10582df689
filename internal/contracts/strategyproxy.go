package contracts

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/ethchain"
)

const strategyProxyABI = `[
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"type":"address"}]}
]`

var strategyProxyContractABI = mustParseABI(strategyProxyABI)

// StrategyProxy wraps a leverage position's proxy contract, whose owner is
// the leverage strategy instance governing it.
type StrategyProxy struct{ base }

// NewStrategyProxy builds a StrategyProxy wrapper.
func NewStrategyProxy(address common.Address, client *ethchain.Client) *StrategyProxy {
	return &StrategyProxy{newBase(address, strategyProxyContractABI, client)}
}

// Owner resolves the leverage strategy contract address governing this proxy.
func (p *StrategyProxy) Owner(ctx context.Context, block ethchain.BlockIdentifier) (common.Address, error) {
	var owner common.Address
	err := p.call(ctx, block, &owner, "owner")
	return owner, err
}
