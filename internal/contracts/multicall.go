package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/ethchain"
)

const multicallABI = `[
	{"type":"function","name":"aggregate","stateMutability":"nonpayable","inputs":[{"name":"calls","type":"tuple[]","components":[
		{"name":"target","type":"address"},
		{"name":"callData","type":"bytes"}
	]}],"outputs":[{"name":"blockNumber","type":"uint256"},{"name":"returnData","type":"bytes[]"}]}
]`

var multicallContractABI = mustParseABI(multicallABI)

// Call is one sub-call batched into a Multicall.aggregate invocation.
type Call struct {
	Target common.Address
	Data   []byte
}

// Multicall batches reads (and the force-exit duty's update-state + force
// writes) atomically at one block.
type Multicall struct{ base }

// NewMulticall builds a Multicall wrapper.
func NewMulticall(address common.Address, client *ethchain.Client) *Multicall {
	return &Multicall{newBase(address, multicallContractABI, client)}
}

// Aggregate performs a read-only aggregate call at the given block,
// returning the block number it was evaluated at and each sub-call's raw
// return data in order.
func (m *Multicall) Aggregate(ctx context.Context, calls []Call, block ethchain.BlockIdentifier) (uint64, [][]byte, error) {
	packed := make([]struct {
		Target   common.Address
		CallData []byte
	}, len(calls))
	for i, c := range calls {
		packed[i].Target = c.Target
		packed[i].CallData = c.Data
	}

	var out struct {
		BlockNumber *big.Int
		ReturnData  [][]byte
	}
	if err := m.call(ctx, block, &out, "aggregate", packed); err != nil {
		return 0, nil, err
	}
	return out.BlockNumber.Uint64(), out.ReturnData, nil
}

// AggregateTx builds the calldata for submitting an aggregate call as a
// state-changing transaction (used when one of the batched sub-calls
// itself writes, e.g. claimExitedAssets or forceEnterExitQueue).
func (m *Multicall) AggregateTx(calls []Call) (TxCall, error) {
	packed := make([]struct {
		Target   common.Address
		CallData []byte
	}, len(calls))
	for i, c := range calls {
		packed[i].Target = c.Target
		packed[i].CallData = c.Data
	}
	return m.encode("aggregate", packed)
}
