package duties

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/oracle-committee/keeper/internal/aggregator"
	"github.com/oracle-committee/keeper/internal/contracts"
	"github.com/oracle-committee/keeper/internal/ethchain"
	"github.com/oracle-committee/keeper/internal/logging"
	"github.com/oracle-committee/keeper/internal/metrics"
	"github.com/oracle-committee/keeper/internal/oracles"
	"github.com/oracle-committee/keeper/internal/txsubmit"
)

// rewardsKeeper is the subset of *contracts.Keeper the rewards duty needs.
type rewardsKeeper interface {
	CanUpdateRewards(ctx context.Context, block ethchain.BlockIdentifier) (bool, error)
	RewardsNonce(ctx context.Context, block ethchain.BlockIdentifier) (uint64, error)
	RewardsMinOracles(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error)
	UpdateRewards(update contracts.RewardsUpdate) (contracts.TxCall, error)
}

// Rewards implements the keeper reward-update duty (spec §4.6): oracles
// vote on a merkle root of accrued rewards; the winning vote (by quorum)
// is submitted to Keeper.updateRewards.
type Rewards struct {
	keeper    rewardsKeeper
	submitter txSubmitter
	cache     *RewardsCache
	fetch     aggregator.FetchFunc[RewardVoteBody]
	log       *logging.Logger
}

// NewRewards builds the rewards duty. cache is owned by the scheduler and
// shared across ticks, per spec §4.6's cross-tick catch-up design.
func NewRewards(keeper *contracts.Keeper, submitter *txsubmit.Wrapper, cache *RewardsCache, oracleTimeout time.Duration, log *logging.Logger) *Rewards {
	return &Rewards{keeper: keeper, submitter: submitter, cache: cache, fetch: FetchRewardVote(oracleTimeout), log: log}
}

// Run executes one tick of the rewards duty.
func (d *Rewards) Run(ctx context.Context, committee oracles.Committee) error {
	canUpdate, err := d.keeper.CanUpdateRewards(ctx, ethchain.Latest)
	if err != nil {
		return fmt.Errorf("check can_update_rewards: %w", err)
	}
	if !canUpdate {
		d.log.Debug("rewards update not currently accepted by keeper")
		return nil
	}

	onChainNonce, err := d.keeper.RewardsNonce(ctx, ethchain.Latest)
	if err != nil {
		return fmt.Errorf("read rewards nonce: %w", err)
	}

	minOracles, err := d.keeper.RewardsMinOracles(ctx, ethchain.Latest)
	if err != nil {
		return fmt.Errorf("read rewards_min_oracles: %w", err)
	}
	threshold := int(minOracles.Int64())

	fresh := aggregator.FetchAll(ctx, committee, d.fetch, true)
	currentNonceVotes := make([]aggregator.Vote[RewardVoteBody], 0, len(fresh))
	for _, v := range fresh {
		if v.Nonce == int64(onChainNonce) {
			currentNonceVotes = append(currentNonceVotes, v)
			metrics.RecordOracleVote(v.OracleAddress.Hex(), v.Body.AvgRewardPerSecond, v.Body.UpdateTimestamp)
		}
	}
	d.cache.Merge(currentNonceVotes)

	var winner aggregator.Result[RewardVoteBody]
	var ok bool
	for _, bucket := range d.cache.OrderedBuckets() {
		winner, ok = aggregator.TallyWinner(bucket, nil, threshold)
		if ok {
			break
		}
	}
	if !ok {
		d.log.Debug("no rewards quorum this tick", "nonce", onChainNonce, "cache_size", d.cache.Size())
		return nil
	}

	update := contracts.RewardsUpdate{
		RewardsRoot:        winner.Body.Root,
		AvgRewardPerSecond: big.NewInt(winner.Body.AvgRewardPerSecond),
		UpdateTimestamp:    uint64(winner.Body.UpdateTimestamp),
		RewardsIpfsHash:    winner.Body.IpfsHash,
		Signatures:         winner.Signatures,
	}

	call, err := d.keeper.UpdateRewards(update)
	if err != nil {
		return fmt.Errorf("encode updateRewards: %w", err)
	}

	hash, err := d.submitter.Submit(ctx, call, nil)
	// The cache is cleared unconditionally after the submission attempt,
	// regardless of whether a receipt ever confirms it — preserved as
	// specified; see DESIGN.md open-question decision 1.
	d.cache.Clear()
	if err != nil {
		return fmt.Errorf("submit updateRewards: %w", err)
	}

	d.log.Info("submitted rewards update", "tx_hash", hash.Hex(), "nonce", onChainNonce, "update_timestamp", winner.Body.UpdateTimestamp)
	return nil
}
