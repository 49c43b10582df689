package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/ethchain"
)

const priceFeedABI = `[
	{"type":"function","name":"latestTimestamp","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]}
]`

var priceFeedContractABI = mustParseABI(priceFeedABI)

// PriceFeed wraps the target-chain price feed the price duty keeps in sync.
type PriceFeed struct{ base }

// NewPriceFeed builds a PriceFeed wrapper against the target-chain client.
func NewPriceFeed(address common.Address, client *ethchain.Client) *PriceFeed {
	return &PriceFeed{newBase(address, priceFeedContractABI, client)}
}

// LatestTimestamp reads the timestamp of the most recent price update.
func (p *PriceFeed) LatestTimestamp(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error) {
	var n *big.Int
	err := p.call(ctx, block, &n, "latestTimestamp")
	return n, err
}
