package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/ethchain"
)

const merkleDistributorABI = `[
	{"type":"function","name":"setRewardsRoot","stateMutability":"nonpayable","inputs":[
		{"name":"rewardsRoot","type":"bytes32"},
		{"name":"rewardsIpfsHash","type":"string"},
		{"name":"signatures","type":"bytes"}
	],"outputs":[]},
	{"type":"function","name":"rewardsRoot","stateMutability":"view","inputs":[],"outputs":[{"type":"bytes32"}]},
	{"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"rewardsMinOracles","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"getNextRewardsRootUpdateTimestamp","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]}
]`

var merkleDistributorContractABI = mustParseABI(merkleDistributorABI)

// MerkleDistributor wraps the MerkleDistributor contract gating the
// distributor-rewards duty.
type MerkleDistributor struct{ base }

// NewMerkleDistributor builds a MerkleDistributor wrapper.
func NewMerkleDistributor(address common.Address, client *ethchain.Client) *MerkleDistributor {
	return &MerkleDistributor{newBase(address, merkleDistributorContractABI, client)}
}

// RewardsRoot reads the currently published rewards root.
func (m *MerkleDistributor) RewardsRoot(ctx context.Context, block ethchain.BlockIdentifier) ([32]byte, error) {
	var root [32]byte
	err := m.call(ctx, block, &root, "rewardsRoot")
	return root, err
}

// Nonce reads the current distributor nonce.
func (m *MerkleDistributor) Nonce(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error) {
	var n *big.Int
	err := m.call(ctx, block, &n, "nonce")
	return n, err
}

// RewardsMinOracles reads the distributor's quorum threshold.
func (m *MerkleDistributor) RewardsMinOracles(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error) {
	var n *big.Int
	err := m.call(ctx, block, &n, "rewardsMinOracles")
	return n, err
}

// NextRewardsRootUpdateTimestamp reads the earliest timestamp a new root
// may be submitted for.
func (m *MerkleDistributor) NextRewardsRootUpdateTimestamp(ctx context.Context, block ethchain.BlockIdentifier) (*big.Int, error) {
	var n *big.Int
	err := m.call(ctx, block, &n, "getNextRewardsRootUpdateTimestamp")
	return n, err
}

// SetRewardsRoot builds the calldata for submitting a new winning
// distributor root.
func (m *MerkleDistributor) SetRewardsRoot(root [32]byte, ipfsHash string, signatures []byte) (TxCall, error) {
	return m.encode("setRewardsRoot", root, ipfsHash, signatures)
}
