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
	"github.com/oracle-committee/keeper/internal/oracles"
	"github.com/oracle-committee/keeper/internal/txsubmit"
)

// distributorContract is the subset of *contracts.MerkleDistributor the
// distributor-rewards duty needs.
type distributorContract interface {
	Nonce(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error)
	NextRewardsRootUpdateTimestamp(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error)
	RewardsMinOracles(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error)
	RewardsRoot(ctx context.Context, block ethchain.BlockIdentifier) ([32]byte, error)
	SetRewardsRoot(root [32]byte, ipfsHash string, signatures []byte) (contracts.TxCall, error)
}

// Distributor implements the distributor-rewards duty (spec §4.7):
// oracles vote on a merkle root for the MerkleDistributor contract.
type Distributor struct {
	distributor distributorContract
	submitter   txSubmitter
	fetch       aggregator.FetchFunc[DistributorRewardVoteBody]
	log         *logging.Logger
}

// NewDistributor builds the distributor-rewards duty.
func NewDistributor(distributor *contracts.MerkleDistributor, submitter *txsubmit.Wrapper, oracleTimeout time.Duration, log *logging.Logger) *Distributor {
	return &Distributor{distributor: distributor, submitter: submitter, fetch: FetchDistributorRewardVote(oracleTimeout), log: log}
}

// Run executes one tick of the distributor-rewards duty.
func (d *Distributor) Run(ctx context.Context, committee oracles.Committee) error {
	currentNonce, err := d.distributor.Nonce(ctx, ethchain.Latest)
	if err != nil {
		return fmt.Errorf("read distributor nonce: %w", err)
	}

	nextUpdateTimestamp, err := d.distributor.NextRewardsRootUpdateTimestamp(ctx, ethchain.Latest)
	if err != nil {
		return fmt.Errorf("read next_rewards_root_update_timestamp: %w", err)
	}

	threshold, err := d.distributor.RewardsMinOracles(ctx, ethchain.Latest)
	if err != nil {
		return fmt.Errorf("read distributor rewards_min_oracles: %w", err)
	}

	votes := aggregator.FetchAll(ctx, committee, d.fetch, false)
	result, ok := aggregator.TallyWinner(votes, func(v aggregator.Vote[DistributorRewardVoteBody]) bool {
		return v.Nonce == currentNonce.Int64() && v.UpdateTimestamp > nextUpdateTimestamp.Int64()
	}, int(threshold.Int64()))
	if !ok {
		d.log.Debug("no distributor-rewards quorum this tick", "nonce", currentNonce)
		return nil
	}

	currentRoot, err := d.distributor.RewardsRoot(ctx, ethchain.Latest)
	if err != nil {
		return fmt.Errorf("read current distributor rewards_root: %w", err)
	}
	if result.Body.Root == currentRoot {
		d.log.Debug("distributor rewards root already up to date")
		return nil
	}

	call, err := d.distributor.SetRewardsRoot(result.Body.Root, result.Body.IpfsHash, result.Signatures)
	if err != nil {
		return fmt.Errorf("encode setRewardsRoot: %w", err)
	}

	hash, err := d.submitter.Submit(ctx, call, nil)
	if err != nil {
		return fmt.Errorf("submit setRewardsRoot: %w", err)
	}

	d.log.Info("submitted distributor rewards root", "tx_hash", hash.Hex(), "nonce", currentNonce)
	return nil
}
