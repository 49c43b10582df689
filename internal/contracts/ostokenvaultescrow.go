package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/ethchain"
)

const osTokenVaultEscrowABI = `[
	{"type":"function","name":"liqThresholdPercent","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]}
]`

var osTokenVaultEscrowContractABI = mustParseABI(osTokenVaultEscrowABI)

// maxLiqThresholdPercent is the 2^64-1 sentinel meaning liquidation is
// disabled for a vault's osToken config.
var maxLiqThresholdPercent = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1))

// OsTokenVaultEscrow wraps the osToken vault escrow's liquidation threshold.
type OsTokenVaultEscrow struct{ base }

// NewOsTokenVaultEscrow builds an OsTokenVaultEscrow wrapper.
func NewOsTokenVaultEscrow(address common.Address, client *ethchain.Client) *OsTokenVaultEscrow {
	return &OsTokenVaultEscrow{newBase(address, osTokenVaultEscrowContractABI, client)}
}

// LiqThresholdPercent reads the liquidation threshold percentage.
func (o *OsTokenVaultEscrow) LiqThresholdPercent(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error) {
	var n *big.Int
	err := o.call(ctx, block, &n, "liqThresholdPercent")
	return n, err
}

// LiquidationDisabled reports whether liqThresholdPercent is the
// max-uint64 sentinel meaning liquidation is disabled for the vault.
func LiquidationDisabled(liqThresholdPercent *big.Int) bool {
	return liqThresholdPercent.Cmp(maxLiqThresholdPercent) == 0
}
