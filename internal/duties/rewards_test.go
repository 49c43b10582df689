package duties

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/oracle-committee/keeper/internal/aggregator"
	"github.com/oracle-committee/keeper/internal/contracts"
	"github.com/oracle-committee/keeper/internal/ethchain"
	"github.com/oracle-committee/keeper/internal/logging"
	"github.com/oracle-committee/keeper/internal/oracles"
)

type fakeRewardsKeeper struct {
	canUpdate  bool
	nonce      uint64
	minOracles *big.Int
	updateErr  error
	updates    []contracts.RewardsUpdate
}

func (f *fakeRewardsKeeper) CanUpdateRewards(ctx context.Context, block ethchain.BlockIdentifier) (bool, error) {
	return f.canUpdate, nil
}

func (f *fakeRewardsKeeper) RewardsNonce(ctx context.Context, block ethchain.BlockIdentifier) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeRewardsKeeper) RewardsMinOracles(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error) {
	return f.minOracles, nil
}

func (f *fakeRewardsKeeper) UpdateRewards(update contracts.RewardsUpdate) (contracts.TxCall, error) {
	f.updates = append(f.updates, update)
	return contracts.TxCall{}, f.updateErr
}

// committeeWithVotes builds a committee with one oracle per vote, each
// addressed by a distinct endpoint string the returned fetch function
// switches on.
func committeeWithVotes(votes []aggregator.Vote[RewardVoteBody]) (oracles.Committee, aggregator.FetchFunc[RewardVoteBody]) {
	byEndpoint := make(map[string]aggregator.Vote[RewardVoteBody], len(votes))
	oracleList := make([]oracles.Oracle, len(votes))
	for i, v := range votes {
		endpoint := fmt.Sprintf("oracle-%d", i)
		byEndpoint[endpoint] = v
		oracleList[i] = oracles.Oracle{Address: v.OracleAddress, Endpoints: []string{endpoint}}
	}
	fetch := func(ctx context.Context, endpoint string) (aggregator.Vote[RewardVoteBody], error) {
		return byEndpoint[endpoint], nil
	}
	return oracles.Committee{Oracles: oracleList}, fetch
}

func TestRewardsRunSubmitsOnQuorumAndClearsCache(t *testing.T) {
	keeper := &fakeRewardsKeeper{canUpdate: true, nonce: 5, minOracles: big.NewInt(2)}
	submitter := &fakeTxSubmitter{}
	cache := NewRewardsCache()

	body := RewardVoteBody{Root: [32]byte{1}, IpfsHash: "Qm", AvgRewardPerSecond: 10, UpdateTimestamp: 100}
	votes := []aggregator.Vote[RewardVoteBody]{
		{OracleAddress: common.HexToAddress("0x1"), Nonce: 5, UpdateTimestamp: 100, Signature: []byte{1}, Body: body},
		{OracleAddress: common.HexToAddress("0x2"), Nonce: 5, UpdateTimestamp: 100, Signature: []byte{2}, Body: body},
	}
	committee, fetch := committeeWithVotes(votes)

	d := &Rewards{keeper: keeper, submitter: submitter, cache: cache, fetch: fetch, log: logging.New("test")}

	err := d.Run(context.Background(), committee)
	require.NoError(t, err)
	require.Len(t, keeper.updates, 1)
	require.Equal(t, 1, submitter.calls)
	require.Zero(t, cache.Size())
}

func TestRewardsRunSkipsWhenUpdatesNotAccepted(t *testing.T) {
	keeper := &fakeRewardsKeeper{canUpdate: false}
	submitter := &fakeTxSubmitter{}
	cache := NewRewardsCache()
	committee, fetch := committeeWithVotes(nil)
	d := &Rewards{keeper: keeper, submitter: submitter, cache: cache, fetch: fetch, log: logging.New("test")}

	err := d.Run(context.Background(), committee)
	require.NoError(t, err)
	require.Zero(t, submitter.calls)
}

func TestRewardsRunNoQuorumLeavesCacheIntact(t *testing.T) {
	keeper := &fakeRewardsKeeper{canUpdate: true, nonce: 5, minOracles: big.NewInt(3)}
	submitter := &fakeTxSubmitter{}
	cache := NewRewardsCache()

	body := RewardVoteBody{Root: [32]byte{1}, UpdateTimestamp: 100}
	votes := []aggregator.Vote[RewardVoteBody]{
		{OracleAddress: common.HexToAddress("0x1"), Nonce: 5, UpdateTimestamp: 100, Body: body},
	}
	committee, fetch := committeeWithVotes(votes)
	d := &Rewards{keeper: keeper, submitter: submitter, cache: cache, fetch: fetch, log: logging.New("test")}

	err := d.Run(context.Background(), committee)
	require.NoError(t, err)
	require.Zero(t, submitter.calls)
	require.Equal(t, 1, cache.Size())
}

func TestRewardsRunIgnoresVotesForStaleNonce(t *testing.T) {
	keeper := &fakeRewardsKeeper{canUpdate: true, nonce: 5, minOracles: big.NewInt(1)}
	submitter := &fakeTxSubmitter{}
	cache := NewRewardsCache()

	body := RewardVoteBody{Root: [32]byte{1}, UpdateTimestamp: 100}
	votes := []aggregator.Vote[RewardVoteBody]{
		{OracleAddress: common.HexToAddress("0x1"), Nonce: 4, UpdateTimestamp: 100, Body: body},
	}
	committee, fetch := committeeWithVotes(votes)
	d := &Rewards{keeper: keeper, submitter: submitter, cache: cache, fetch: fetch, log: logging.New("test")}

	err := d.Run(context.Background(), committee)
	require.NoError(t, err)
	require.Zero(t, submitter.calls)
	require.Zero(t, cache.Size())
}
