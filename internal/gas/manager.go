// Package gas computes EIP-1559 fee parameters for transaction submission:
// a percentile-derived priority fee off recent blocks, floored at a
// configured minimum, and a max fee bounded by a configured ceiling. A
// "high priority" variant raises the floor for use only after default-gas
// attempts have failed with a fee-too-low error.
package gas

import (
	"context"
	"math/big"
	"sort"

	"github.com/oracle-committee/keeper/internal/ethchain"
)

// Params is a computed EIP-1559 fee pair.
type Params struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Manager computes gas params from the execution chain's recent fee history.
type Manager struct {
	client *ethchain.Client

	maxFeePerGasWei            *big.Int
	priorityFeeNumBlocks       uint64
	priorityFeePercentile      float64
	minEffectivePriorityFeeWei *big.Int
	highPriorityFeeFloorWei    *big.Int
}

// Config holds the tunables read from the environment.
type Config struct {
	MaxFeePerGasGwei           float64
	PriorityFeeNumBlocks       uint64
	PriorityFeePercentile      float64
	MinEffectivePriorityFeeWei *big.Int
	HighPriorityFeeFloorWei    *big.Int
}

// gweiToWei converts a gwei amount to wei.
func gweiToWei(gwei float64) *big.Int {
	wei := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9))
	out, _ := wei.Int(nil)
	return out
}

// New builds a Manager from cfg.
func New(client *ethchain.Client, cfg Config) *Manager {
	return &Manager{
		client:                     client,
		maxFeePerGasWei:            gweiToWei(cfg.MaxFeePerGasGwei),
		priorityFeeNumBlocks:       cfg.PriorityFeeNumBlocks,
		priorityFeePercentile:      cfg.PriorityFeePercentile,
		minEffectivePriorityFeeWei: cfg.MinEffectivePriorityFeeWei,
		highPriorityFeeFloorWei:    cfg.HighPriorityFeeFloorWei,
	}
}

// Default computes the default-attempt gas params (§4.3).
func (m *Manager) Default(ctx context.Context) (Params, error) {
	return m.compute(ctx, m.minEffectivePriorityFeeWei)
}

// HighPriority computes gas params with the priority-fee floor raised; used
// only as the escape hatch after default attempts fail with "fee too low".
func (m *Manager) HighPriority(ctx context.Context) (Params, error) {
	return m.compute(ctx, m.highPriorityFeeFloorWei)
}

func (m *Manager) compute(ctx context.Context, floor *big.Int) (Params, error) {
	tip, err := m.percentilePriorityFee(ctx)
	if err != nil {
		return Params{}, err
	}
	if floor != nil && tip.Cmp(floor) < 0 {
		tip = floor
	}

	feeCap := new(big.Int).Set(m.maxFeePerGasWei)
	if feeCap.Cmp(tip) < 0 {
		feeCap = new(big.Int).Set(tip)
	}

	return Params{MaxFeePerGas: feeCap, MaxPriorityFeePerGas: tip}, nil
}

// percentilePriorityFee returns the PriorityFeePercentile-th percentile
// priority fee reward across PriorityFeeNumBlocks most recent blocks,
// falling back to SuggestGasTipCap if fee history is unavailable.
func (m *Manager) percentilePriorityFee(ctx context.Context) (*big.Int, error) {
	history, err := m.client.FeeHistory(ctx, m.priorityFeeNumBlocks, []float64{m.priorityFeePercentile})
	if err != nil || len(history.Reward) == 0 {
		return m.client.SuggestGasTipCap(ctx)
	}

	rewards := make([]*big.Int, 0, len(history.Reward))
	for _, block := range history.Reward {
		if len(block) > 0 {
			rewards = append(rewards, block[0])
		}
	}
	if len(rewards) == 0 {
		return m.client.SuggestGasTipCap(ctx)
	}

	sort.Slice(rewards, func(i, j int) bool { return rewards[i].Cmp(rewards[j]) < 0 })
	idx := int(float64(len(rewards)-1) * (m.priorityFeePercentile / 100))
	return new(big.Int).Set(rewards[idx]), nil
}
