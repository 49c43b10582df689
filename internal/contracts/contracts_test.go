package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestKeeperUpdateRewardsEncodesWithoutError(t *testing.T) {
	k := NewKeeper(common.HexToAddress("0x1"), 0, nil)
	call, err := k.UpdateRewards(RewardsUpdate{
		RewardsRoot:        [32]byte{1},
		AvgRewardPerSecond: big.NewInt(1000),
		UpdateTimestamp:    1234,
		RewardsIpfsHash:    "QmTest",
		Signatures:         []byte{0xde, 0xad},
	})
	require.NoError(t, err)
	require.Equal(t, k.Address(), call.To)
	require.NotEmpty(t, call.Data)
}

func TestMulticallAggregateTxEncodesCalls(t *testing.T) {
	m := NewMulticall(common.HexToAddress("0x2"), nil)
	call, err := m.AggregateTx([]Call{
		{Target: common.HexToAddress("0x3"), Data: []byte{0x01}},
		{Target: common.HexToAddress("0x4"), Data: []byte{0x02}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, call.Data)
}

func TestLeverageStrategyEncodeHelpers(t *testing.T) {
	l := NewLeverageStrategy(common.HexToAddress("0x5"), nil)

	_, err := l.EncodeUpdateVaultState(common.HexToAddress("0x6"), ZeroHarvestParams())
	require.NoError(t, err)

	_, err = l.EncodeCanForceEnterExitQueue(common.HexToAddress("0x6"), common.HexToAddress("0x7"))
	require.NoError(t, err)

	_, err = l.EncodeClaimExitedAssets(common.HexToAddress("0x6"), common.HexToAddress("0x7"), ExitRequest{
		PositionTicket: big.NewInt(1),
		Timestamp:      big.NewInt(2),
		ExitQueueIndex: big.NewInt(3),
	})
	require.NoError(t, err)

	_, err = l.EncodeForceEnterExitQueue(common.HexToAddress("0x6"), common.HexToAddress("0x7"))
	require.NoError(t, err)
}

func TestLiquidationDisabledSentinel(t *testing.T) {
	require.True(t, LiquidationDisabled(maxLiqThresholdPercent))
	require.False(t, LiquidationDisabled(big.NewInt(500)))
}
