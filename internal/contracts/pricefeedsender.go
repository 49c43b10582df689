package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/ethchain"
)

const priceFeedSenderABI = `[
	{"type":"function","name":"quoteRateSync","stateMutability":"view","inputs":[{"name":"targetChainId","type":"uint256"}],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"syncRate","stateMutability":"payable","inputs":[
		{"name":"targetChainId","type":"uint256"},{"name":"targetAddress","type":"address"}
	],"outputs":[]}
]`

var priceFeedSenderContractABI = mustParseABI(priceFeedSenderABI)

// PriceFeedSender wraps the source-chain contract that relays a price
// update to a target chain's PriceFeed for a quoted cross-chain fee.
type PriceFeedSender struct{ base }

// NewPriceFeedSender builds a PriceFeedSender wrapper.
func NewPriceFeedSender(address common.Address, client *ethchain.Client) *PriceFeedSender {
	return &PriceFeedSender{newBase(address, priceFeedSenderContractABI, client)}
}

// QuoteRateSync reads the native-token fee required to relay a rate sync
// to targetChainID.
func (p *PriceFeedSender) QuoteRateSync(ctx context.Context, targetChainID *big.Int, block ethchain.BlockIdentifier) (*big.Int, error) {
	var fee *big.Int
	err := p.call(ctx, block, &fee, "quoteRateSync", targetChainID)
	return fee, err
}

// SyncRate builds the calldata for relaying a price update to targetAddress
// on targetChainID; the caller must attach the quoted fee as the
// transaction value.
func (p *PriceFeedSender) SyncRate(targetChainID *big.Int, targetAddress common.Address) (TxCall, error) {
	return p.encode("syncRate", targetChainID, targetAddress)
}
