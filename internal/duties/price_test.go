package duties

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/oracle-committee/keeper/internal/contracts"
	"github.com/oracle-committee/keeper/internal/ethchain"
	"github.com/oracle-committee/keeper/internal/logging"
	"github.com/oracle-committee/keeper/internal/oracles"
)

type fakePriceFeed struct {
	timestamp int64
}

func (f *fakePriceFeed) LatestTimestamp(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error) {
	return big.NewInt(f.timestamp), nil
}

type fakeRateSyncSender struct {
	fee         *big.Int
	syncCalled  bool
}

func (f *fakeRateSyncSender) QuoteRateSync(ctx context.Context, targetChainID *big.Int, block ethchain.BlockIdentifier) (*big.Int, error) {
	return f.fee, nil
}

func (f *fakeRateSyncSender) SyncRate(targetChainID *big.Int, targetAddress common.Address) (contracts.TxCall, error) {
	f.syncCalled = true
	return contracts.TxCall{To: targetAddress, Data: []byte{0x01}}, nil
}

type fakeTxSubmitter struct {
	calls int
	err   error
}

func (f *fakeTxSubmitter) Submit(ctx context.Context, call contracts.TxCall, value *big.Int) (common.Hash, error) {
	f.calls++
	if f.err != nil {
		return common.Hash{}, f.err
	}
	return common.HexToHash("0xabc"), nil
}

func TestPriceAbortsWithinUpdateInterval(t *testing.T) {
	feed := &fakePriceFeed{timestamp: time.Now().Unix()}
	sender := &fakeRateSyncSender{fee: big.NewInt(1)}
	submitter := &fakeTxSubmitter{}
	state := &AppState{}

	d := NewPrice(nil, nil, submitter, state, big.NewInt(1), common.HexToAddress("0x1"), time.Hour, time.Minute, logging.New("test"))
	d.targetFeed = feed
	d.sender = sender

	err := d.Run(context.Background(), oracles.Committee{})
	require.NoError(t, err)
	require.False(t, sender.syncCalled)
	require.Zero(t, submitter.calls)
}

func TestPriceWaitsWithinMaxWaitingTimeAfterSubmission(t *testing.T) {
	feed := &fakePriceFeed{timestamp: time.Now().Add(-2 * time.Hour).Unix()}
	sender := &fakeRateSyncSender{fee: big.NewInt(1)}
	submitter := &fakeTxSubmitter{}
	state := &AppState{}
	state.SetLastPriceUpdated(time.Now().Unix())

	d := NewPrice(nil, nil, submitter, state, big.NewInt(1), common.HexToAddress("0x1"), time.Hour, time.Hour, logging.New("test"))
	d.targetFeed = feed
	d.sender = sender

	err := d.Run(context.Background(), oracles.Committee{})
	require.NoError(t, err)
	require.False(t, sender.syncCalled)
}

func TestPriceResumesAfterMaxWaitingTimeElapses(t *testing.T) {
	feed := &fakePriceFeed{timestamp: time.Now().Add(-2 * time.Hour).Unix()}
	sender := &fakeRateSyncSender{fee: big.NewInt(7)}
	submitter := &fakeTxSubmitter{}
	state := &AppState{}
	state.SetLastPriceUpdated(time.Now().Add(-2 * time.Hour).Unix())

	d := NewPrice(nil, nil, submitter, state, big.NewInt(1), common.HexToAddress("0x1"), time.Hour, time.Hour, logging.New("test"))
	d.targetFeed = feed
	d.sender = sender

	err := d.Run(context.Background(), oracles.Committee{})
	require.NoError(t, err)
	require.True(t, sender.syncCalled)
	require.Equal(t, 1, submitter.calls)
	require.NotZero(t, state.LastPriceUpdated())
}

func TestPriceSubmitsWhenNoWaitingStateSet(t *testing.T) {
	feed := &fakePriceFeed{timestamp: time.Now().Add(-13 * time.Hour).Unix()}
	sender := &fakeRateSyncSender{fee: big.NewInt(3)}
	submitter := &fakeTxSubmitter{}
	state := &AppState{}

	d := NewPrice(nil, nil, submitter, state, big.NewInt(1), common.HexToAddress("0x1"), 12*time.Hour, time.Hour, logging.New("test"))
	d.targetFeed = feed
	d.sender = sender

	err := d.Run(context.Background(), oracles.Committee{})
	require.NoError(t, err)
	require.True(t, sender.syncCalled)
	require.Equal(t, 1, submitter.calls)
}

func TestPriceSurfacesSubmitError(t *testing.T) {
	feed := &fakePriceFeed{timestamp: time.Now().Add(-13 * time.Hour).Unix()}
	sender := &fakeRateSyncSender{fee: big.NewInt(3)}
	submitter := &fakeTxSubmitter{err: errors.New("boom")}
	state := &AppState{}

	d := NewPrice(nil, nil, submitter, state, big.NewInt(1), common.HexToAddress("0x1"), 12*time.Hour, time.Hour, logging.New("test"))
	d.targetFeed = feed
	d.sender = sender

	err := d.Run(context.Background(), oracles.Committee{})
	require.Error(t, err)
	require.Zero(t, state.LastPriceUpdated())
}
