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

type fakeDistributorContract struct {
	nonce               *big.Int
	nextUpdateTimestamp *big.Int
	minOracles          *big.Int
	currentRoot         [32]byte
	setRoots            [][32]byte
}

func (f *fakeDistributorContract) Nonce(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error) {
	return f.nonce, nil
}

func (f *fakeDistributorContract) NextRewardsRootUpdateTimestamp(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error) {
	return f.nextUpdateTimestamp, nil
}

func (f *fakeDistributorContract) RewardsMinOracles(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error) {
	return f.minOracles, nil
}

func (f *fakeDistributorContract) RewardsRoot(ctx context.Context, block ethchain.BlockIdentifier) ([32]byte, error) {
	return f.currentRoot, nil
}

func (f *fakeDistributorContract) SetRewardsRoot(root [32]byte, ipfsHash string, signatures []byte) (contracts.TxCall, error) {
	f.setRoots = append(f.setRoots, root)
	return contracts.TxCall{}, nil
}

func committeeWithDistributorVotes(votes []aggregator.Vote[DistributorRewardVoteBody]) (oracles.Committee, aggregator.FetchFunc[DistributorRewardVoteBody]) {
	byEndpoint := make(map[string]aggregator.Vote[DistributorRewardVoteBody], len(votes))
	oracleList := make([]oracles.Oracle, len(votes))
	for i, v := range votes {
		endpoint := fmt.Sprintf("oracle-%d", i)
		byEndpoint[endpoint] = v
		oracleList[i] = oracles.Oracle{Address: v.OracleAddress, Endpoints: []string{endpoint}}
	}
	fetch := func(ctx context.Context, endpoint string) (aggregator.Vote[DistributorRewardVoteBody], error) {
		return byEndpoint[endpoint], nil
	}
	return oracles.Committee{Oracles: oracleList}, fetch
}

func TestDistributorRunSubmitsOnQuorumAndNewRoot(t *testing.T) {
	contract := &fakeDistributorContract{
		nonce:               big.NewInt(3),
		nextUpdateTimestamp: big.NewInt(100),
		minOracles:          big.NewInt(2),
		currentRoot:         [32]byte{0xAA},
	}
	submitter := &fakeTxSubmitter{}

	body := DistributorRewardVoteBody{Root: [32]byte{0xBB}, IpfsHash: "Qm"}
	votes := []aggregator.Vote[DistributorRewardVoteBody]{
		{OracleAddress: common.HexToAddress("0x1"), Nonce: 3, UpdateTimestamp: 200, Body: body},
		{OracleAddress: common.HexToAddress("0x2"), Nonce: 3, UpdateTimestamp: 200, Body: body},
	}
	committee, fetch := committeeWithDistributorVotes(votes)

	d := &Distributor{distributor: contract, submitter: submitter, fetch: fetch, log: logging.New("test")}
	err := d.Run(context.Background(), committee)

	require.NoError(t, err)
	require.Len(t, contract.setRoots, 1)
	require.Equal(t, [32]byte{0xBB}, contract.setRoots[0])
	require.Equal(t, 1, submitter.calls)
}

func TestDistributorRunSkipsWhenRootAlreadyCurrent(t *testing.T) {
	root := [32]byte{0xCC}
	contract := &fakeDistributorContract{
		nonce:               big.NewInt(3),
		nextUpdateTimestamp: big.NewInt(100),
		minOracles:          big.NewInt(1),
		currentRoot:         root,
	}
	submitter := &fakeTxSubmitter{}

	body := DistributorRewardVoteBody{Root: root, IpfsHash: "Qm"}
	votes := []aggregator.Vote[DistributorRewardVoteBody]{
		{OracleAddress: common.HexToAddress("0x1"), Nonce: 3, UpdateTimestamp: 200, Body: body},
	}
	committee, fetch := committeeWithDistributorVotes(votes)

	d := &Distributor{distributor: contract, submitter: submitter, fetch: fetch, log: logging.New("test")}
	err := d.Run(context.Background(), committee)

	require.NoError(t, err)
	require.Zero(t, submitter.calls)
}

func TestDistributorRunNoQuorumSkips(t *testing.T) {
	contract := &fakeDistributorContract{
		nonce:               big.NewInt(3),
		nextUpdateTimestamp: big.NewInt(100),
		minOracles:          big.NewInt(2),
		currentRoot:         [32]byte{0xAA},
	}
	submitter := &fakeTxSubmitter{}

	body := DistributorRewardVoteBody{Root: [32]byte{0xBB}, IpfsHash: "Qm"}
	votes := []aggregator.Vote[DistributorRewardVoteBody]{
		{OracleAddress: common.HexToAddress("0x1"), Nonce: 3, UpdateTimestamp: 200, Body: body},
	}
	committee, fetch := committeeWithDistributorVotes(votes)

	d := &Distributor{distributor: contract, submitter: submitter, fetch: fetch, log: logging.New("test")}
	err := d.Run(context.Background(), committee)

	require.NoError(t, err)
	require.Zero(t, submitter.calls)
}

func TestDistributorRunFiltersVotesBelowUpdateTimestampFloor(t *testing.T) {
	contract := &fakeDistributorContract{
		nonce:               big.NewInt(3),
		nextUpdateTimestamp: big.NewInt(500),
		minOracles:          big.NewInt(1),
		currentRoot:         [32]byte{0xAA},
	}
	submitter := &fakeTxSubmitter{}

	body := DistributorRewardVoteBody{Root: [32]byte{0xBB}, IpfsHash: "Qm"}
	votes := []aggregator.Vote[DistributorRewardVoteBody]{
		{OracleAddress: common.HexToAddress("0x1"), Nonce: 3, UpdateTimestamp: 200, Body: body},
	}
	committee, fetch := committeeWithDistributorVotes(votes)

	d := &Distributor{distributor: contract, submitter: submitter, fetch: fetch, log: logging.New("test")}
	err := d.Run(context.Background(), committee)

	require.NoError(t, err)
	require.Zero(t, submitter.calls)
}
