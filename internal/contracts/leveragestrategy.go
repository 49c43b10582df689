package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/ethchain"
)

const leverageStrategyABI = `[
	{"type":"function","name":"canForceEnterExitQueue","stateMutability":"view","inputs":[
		{"name":"vault","type":"address"},{"name":"user","type":"address"}
	],"outputs":[{"type":"bool"}]},
	{"type":"function","name":"claimExitedAssets","stateMutability":"nonpayable","inputs":[
		{"name":"vault","type":"address"},
		{"name":"user","type":"address"},
		{"name":"exitRequest","type":"tuple","components":[
			{"name":"positionTicket","type":"uint256"},
			{"name":"timestamp","type":"uint256"},
			{"name":"exitQueueIndex","type":"uint256"}
		]}
	],"outputs":[]},
	{"type":"function","name":"forceEnterExitQueue","stateMutability":"nonpayable","inputs":[
		{"name":"vault","type":"address"},{"name":"user","type":"address"}
	],"outputs":[]},
	{"type":"function","name":"updateVaultState","stateMutability":"nonpayable","inputs":[
		{"name":"vault","type":"address"},
		{"name":"harvestParams","type":"tuple","components":[
			{"name":"rewardsRoot","type":"bytes32"},
			{"name":"reward","type":"int256"},
			{"name":"unlockedMevReward","type":"int256"},
			{"name":"proof","type":"bytes32[]"}
		]}
	],"outputs":[]}
]`

var leverageStrategyContractABI = mustParseABI(leverageStrategyABI)

// HarvestParams is the merkle rewards proof required to call
// updateVaultState on a vault with pending rewards. A zero-value
// HarvestParams (all fields zero, empty proof) is valid for vaults with no
// pending rewards yet.
type HarvestParams struct {
	RewardsRoot       [32]byte
	Reward            *big.Int
	UnlockedMevReward *big.Int
	Proof             [][32]byte
}

// ZeroHarvestParams returns the sentinel params for a vault with nothing
// to harvest.
func ZeroHarvestParams() HarvestParams {
	return HarvestParams{Reward: big.NewInt(0), UnlockedMevReward: big.NewInt(0)}
}

// ExitRequest identifies a leverage position's exit-queue entry.
type ExitRequest struct {
	PositionTicket *big.Int
	Timestamp      *big.Int
	ExitQueueIndex *big.Int
}

// LeverageStrategy wraps a deployed leverage-strategy contract instance
// (one per strategy proxy, resolved at runtime per position).
type LeverageStrategy struct{ base }

// NewLeverageStrategy builds a LeverageStrategy wrapper bound to address.
func NewLeverageStrategy(address common.Address, client *ethchain.Client) *LeverageStrategy {
	return &LeverageStrategy{newBase(address, leverageStrategyContractABI, client)}
}

// CanForceEnterExitQueue reports whether user's position on vault can be
// force-entered into the exit queue at block.
func (l *LeverageStrategy) CanForceEnterExitQueue(ctx context.Context, vault, user common.Address, block ethchain.BlockIdentifier) (bool, error) {
	var can bool
	err := l.call(ctx, block, &can, "canForceEnterExitQueue", vault, user)
	return can, err
}

func harvestParamsTuple(h HarvestParams) struct {
	RewardsRoot       [32]byte
	Reward            *big.Int
	UnlockedMevReward *big.Int
	Proof             [][32]byte
} {
	return struct {
		RewardsRoot       [32]byte
		Reward            *big.Int
		UnlockedMevReward *big.Int
		Proof             [][32]byte
	}{h.RewardsRoot, h.Reward, h.UnlockedMevReward, h.Proof}
}

// EncodeUpdateVaultState packs updateVaultState calldata for use as a
// Multicall sub-call.
func (l *LeverageStrategy) EncodeUpdateVaultState(vault common.Address, harvest HarvestParams) ([]byte, error) {
	return l.rawEncode("updateVaultState", vault, harvestParamsTuple(harvest))
}

// EncodeCanForceEnterExitQueue packs canForceEnterExitQueue calldata for
// use as a Multicall sub-call.
func (l *LeverageStrategy) EncodeCanForceEnterExitQueue(vault, user common.Address) ([]byte, error) {
	return l.rawEncode("canForceEnterExitQueue", vault, user)
}

// EncodeClaimExitedAssets packs claimExitedAssets calldata for use as a
// Multicall sub-call.
func (l *LeverageStrategy) EncodeClaimExitedAssets(vault, user common.Address, req ExitRequest) ([]byte, error) {
	return l.rawEncode("claimExitedAssets", vault, user, struct {
		PositionTicket *big.Int
		Timestamp      *big.Int
		ExitQueueIndex *big.Int
	}{req.PositionTicket, req.Timestamp, req.ExitQueueIndex})
}

// EncodeForceEnterExitQueue packs forceEnterExitQueue calldata for use as a
// Multicall sub-call.
func (l *LeverageStrategy) EncodeForceEnterExitQueue(vault, user common.Address) ([]byte, error) {
	return l.rawEncode("forceEnterExitQueue", vault, user)
}
