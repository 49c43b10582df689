package duties

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/contracts"
	"github.com/oracle-committee/keeper/internal/ethchain"
	"github.com/oracle-committee/keeper/internal/logging"
	"github.com/oracle-committee/keeper/internal/oracles"
)

// priceFeedReader is the subset of *contracts.PriceFeed the duty needs.
type priceFeedReader interface {
	LatestTimestamp(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error)
}

// rateSyncSender is the subset of *contracts.PriceFeedSender the duty needs.
type rateSyncSender interface {
	QuoteRateSync(ctx context.Context, targetChainID *big.Int, block ethchain.BlockIdentifier) (*big.Int, error)
	SyncRate(targetChainID *big.Int, targetAddress common.Address) (contracts.TxCall, error)
}

// txSubmitter is the subset of *txsubmit.Wrapper the duty needs.
type txSubmitter interface {
	Submit(ctx context.Context, call contracts.TxCall, value *big.Int) (common.Hash, error)
}

// Price implements the cross-chain price-feed sync duty (spec §4.9): relay
// the source chain's oracle-updated rate to a target-chain PriceFeed for a
// quoted cross-chain fee, rate-limited and with a propagation waiting
// window tracked in AppState.
type Price struct {
	sender         rateSyncSender
	targetFeed     priceFeedReader
	submitter      txSubmitter
	state          *AppState
	targetChainID  *big.Int
	targetAddress  common.Address
	updateInterval time.Duration
	maxWaitingTime time.Duration
	log            *logging.Logger
}

// NewPrice builds the price duty.
func NewPrice(sender *contracts.PriceFeedSender, targetFeed *contracts.PriceFeed, submitter txSubmitter, state *AppState, targetChainID *big.Int, targetAddress common.Address, updateInterval, maxWaitingTime time.Duration, log *logging.Logger) *Price {
	return &Price{
		sender:         sender,
		targetFeed:     targetFeed,
		submitter:      submitter,
		state:          state,
		targetChainID:  targetChainID,
		targetAddress:  targetAddress,
		updateInterval: updateInterval,
		maxWaitingTime: maxWaitingTime,
		log:            log,
	}
}

// Run executes one tick of the price duty.
func (d *Price) Run(ctx context.Context, _ oracles.Committee) error {
	latestTimestamp, err := d.targetFeed.LatestTimestamp(ctx, ethchain.Latest)
	if err != nil {
		return fmt.Errorf("read target-chain latest_timestamp: %w", err)
	}

	nowUnix := time.Now().Unix()
	if nowUnix-latestTimestamp.Int64() < int64(d.updateInterval.Seconds()) {
		d.log.Debug("target-chain price still within update interval")
		return nil
	}

	if waitingStarted := d.state.LastPriceUpdated(); waitingStarted != 0 {
		if nowUnix-waitingStarted < int64(d.maxWaitingTime.Seconds()) {
			d.log.Debug("waiting for target-chain price propagation")
			return nil
		}
		d.log.Warn("target-chain price did not move within max waiting time, resuming")
		d.state.ClearLastPriceUpdated()
	}

	fee, err := d.sender.QuoteRateSync(ctx, d.targetChainID, ethchain.Latest)
	if err != nil {
		return fmt.Errorf("quote rate sync fee: %w", err)
	}

	call, err := d.sender.SyncRate(d.targetChainID, d.targetAddress)
	if err != nil {
		return fmt.Errorf("encode syncRate: %w", err)
	}

	hash, err := d.submitter.Submit(ctx, call, fee)
	if err != nil {
		return fmt.Errorf("submit syncRate: %w", err)
	}

	d.state.SetLastPriceUpdated(nowUnix)
	d.log.Info("submitted cross-chain price sync", "tx_hash", hash.Hex(), "fee", fee.String())
	return nil
}
