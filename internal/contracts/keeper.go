package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/oracle-committee/keeper/internal/ethchain"
)

const keeperABI = `[
	{"type":"function","name":"updateRewards","stateMutability":"nonpayable","inputs":[{"name":"updateRewardsData","type":"tuple","components":[
		{"name":"rewardsRoot","type":"bytes32"},
		{"name":"avgRewardPerSecond","type":"uint256"},
		{"name":"updateTimestamp","type":"uint64"},
		{"name":"rewardsIpfsHash","type":"string"},
		{"name":"signatures","type":"bytes"}
	]}],"outputs":[]},
	{"type":"function","name":"rewardsNonce","stateMutability":"view","inputs":[],"outputs":[{"type":"uint64"}]},
	{"type":"function","name":"canUpdateRewards","stateMutability":"view","inputs":[],"outputs":[{"type":"bool"}]},
	{"type":"function","name":"rewardsMinOracles","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"canHarvest","stateMutability":"view","inputs":[{"name":"vault","type":"address"}],"outputs":[{"type":"bool"}]},
	{"type":"event","name":"ConfigUpdated","inputs":[{"name":"configIpfsHash","type":"string","indexed":false}],"anonymous":false}
]`

var keeperContractABI = mustParseABI(keeperABI)

// RewardsUpdate is the winning rewards vote body submitted to Keeper.updateRewards.
type RewardsUpdate struct {
	RewardsRoot        [32]byte
	AvgRewardPerSecond *big.Int
	UpdateTimestamp    uint64
	RewardsIpfsHash    string
	Signatures         []byte
}

// Keeper wraps the Keeper contract: the rewards quorum gate and the
// protocol config pointer.
type Keeper struct {
	base
	genesisBlock uint64
}

// NewKeeper builds a Keeper wrapper. genesisBlock bounds how far back
// GetLastConfigUpdateEvent scans.
func NewKeeper(address common.Address, genesisBlock uint64, client *ethchain.Client) *Keeper {
	return &Keeper{base: newBase(address, keeperContractABI, client), genesisBlock: genesisBlock}
}

// RewardsNonce reads the current rewards nonce.
func (k *Keeper) RewardsNonce(ctx context.Context, block ethchain.BlockIdentifier) (uint64, error) {
	var nonce uint64
	err := k.call(ctx, block, &nonce, "rewardsNonce")
	return nonce, err
}

// CanUpdateRewards reports whether the contract currently accepts a
// rewards update.
func (k *Keeper) CanUpdateRewards(ctx context.Context, block ethchain.BlockIdentifier) (bool, error) {
	var can bool
	err := k.call(ctx, block, &can, "canUpdateRewards")
	return can, err
}

// RewardsMinOracles reads the rewards quorum threshold.
func (k *Keeper) RewardsMinOracles(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error) {
	var n *big.Int
	err := k.call(ctx, block, &n, "rewardsMinOracles")
	return n, err
}

// CanHarvest reports whether vault has pending rewards to harvest at block.
func (k *Keeper) CanHarvest(ctx context.Context, vault common.Address, block ethchain.BlockIdentifier) (bool, error) {
	var can bool
	err := k.call(ctx, block, &can, "canHarvest", vault)
	return can, err
}

// UpdateRewards builds the calldata for submitting the winning rewards vote.
func (k *Keeper) UpdateRewards(update RewardsUpdate) (TxCall, error) {
	return k.encode("updateRewards", struct {
		RewardsRoot        [32]byte
		AvgRewardPerSecond *big.Int
		UpdateTimestamp    uint64
		RewardsIpfsHash    string
		Signatures         []byte
	}{update.RewardsRoot, update.AvgRewardPerSecond, update.UpdateTimestamp, update.RewardsIpfsHash, update.Signatures})
}

// eventsBlocksRangeSeconds mirrors the 24h backwards-scan window from
// the teacher's config window convention, converted to blocks by the
// caller via secondsPerBlock.
const eventsBlocksRangeSeconds = 24 * 60 * 60

// GetLastConfigUpdateEvent scans backwards from head in 24h/secondsPerBlock
// windows for the most recent ConfigUpdated event, stopping once the
// genesis block is crossed.
func (k *Keeper) GetLastConfigUpdateEvent(ctx context.Context, secondsPerBlock float64) (string, bool, error) {
	head, err := k.client.GetBlockNumber(ctx)
	if err != nil {
		return "", false, err
	}

	blocksRange := uint64(float64(eventsBlocksRangeSeconds) / secondsPerBlock)
	toBlock := head

	configUpdatedTopic := keeperContractABI.Events["ConfigUpdated"].ID

	for toBlock >= k.genesisBlock {
		fromBlock := k.genesisBlock
		if toBlock > blocksRange && toBlock-blocksRange > fromBlock {
			fromBlock = toBlock - blocksRange
		}

		logs, err := k.client.GetLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(fromBlock),
			ToBlock:   new(big.Int).SetUint64(toBlock),
			Addresses: []common.Address{k.address},
			Topics:    [][]common.Hash{{configUpdatedTopic}},
		})
		if err != nil {
			return "", false, err
		}
		if len(logs) > 0 {
			hash, err := decodeConfigIpfsHash(logs[len(logs)-1])
			return hash, true, err
		}

		if fromBlock == k.genesisBlock {
			break
		}
		toBlock = fromBlock - 1
	}
	return "", false, nil
}

func decodeConfigIpfsHash(log types.Log) (string, error) {
	var out struct{ ConfigIpfsHash string }
	if err := keeperContractABI.UnpackIntoInterface(&out, "ConfigUpdated", log.Data); err != nil {
		return "", err
	}
	return out.ConfigIpfsHash, nil
}
