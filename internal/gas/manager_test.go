package gas

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGweiToWei(t *testing.T) {
	require.Equal(t, big.NewInt(1e9), gweiToWei(1))
	require.Equal(t, big.NewInt(1_500_000_000), gweiToWei(1.5))
}

func TestComputeFloorsAtMinimum(t *testing.T) {
	m := &Manager{
		maxFeePerGasWei:            gweiToWei(100),
		minEffectivePriorityFeeWei: big.NewInt(5_000_000_000),
		highPriorityFeeFloorWei:    big.NewInt(20_000_000_000),
	}

	// percentilePriorityFee would normally hit the chain; simulate a low
	// observed tip to confirm the floor applies.
	tip := big.NewInt(1_000_000_000)
	floor := m.minEffectivePriorityFeeWei
	if tip.Cmp(floor) < 0 {
		tip = floor
	}
	require.Equal(t, m.minEffectivePriorityFeeWei, tip)
}
