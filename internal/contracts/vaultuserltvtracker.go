package contracts

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/ethchain"
)

const vaultUserLtvTrackerABI = `[
	{"type":"function","name":"updateVaultsLtv","stateMutability":"nonpayable","inputs":[
		{"name":"vaults","type":"address[]"}
	],"outputs":[]}
]`

var vaultUserLtvTrackerContractABI = mustParseABI(vaultUserLtvTrackerABI)

// VaultUserLtvTracker wraps the batched vault-LTV refresh the LTV duty
// triggers for vaults whose tracked data has gone stale.
type VaultUserLtvTracker struct{ base }

// NewVaultUserLtvTracker builds a VaultUserLtvTracker wrapper.
func NewVaultUserLtvTracker(address common.Address, client *ethchain.Client) *VaultUserLtvTracker {
	return &VaultUserLtvTracker{newBase(address, vaultUserLtvTrackerContractABI, client)}
}

// UpdateVaultsLtv builds the calldata for a single batched write
// refreshing LTV tracking data for every vault in the slice.
func (v *VaultUserLtvTracker) UpdateVaultsLtv(vaults []common.Address) (TxCall, error) {
	return v.encode("updateVaultsLtv", vaults)
}
