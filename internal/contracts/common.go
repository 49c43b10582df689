// Package contracts is a thin typed facade over the on-chain contracts the
// keeper calls: Keeper, MerkleDistributor, Multicall, VaultUserLtvTracker,
// StrategyRegistry, OsTokenVaultEscrow, LeverageStrategy, PriceFeedSender,
// and PriceFeed. Each wrapper hand-packs/unpacks its own ABI fragment via
// go-ethereum's accounts/abi rather than a fully generated binding, per the
// "thin binding" approach — bind.BoundContract's full ContractBackend
// surface (pending-state queries, gas estimation, subscriptions) is more
// than a five-duty keeper needs; we only ever Call or build calldata for
// the submission wrapper.
package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/ethchain"
)

// mustParseABI parses a minimal ABI JSON fragment, panicking on error since
// these are compile-time constants — a malformed fragment is a programmer
// error, not a runtime condition.
func mustParseABI(fragment string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(fragment))
	if err != nil {
		panic(fmt.Sprintf("contracts: invalid ABI fragment: %v", err))
	}
	return parsed
}

// TxCall is an unsigned contract invocation: a target address and
// ABI-encoded calldata, ready to be handed to the submission wrapper.
type TxCall struct {
	To   common.Address
	Data []byte
}

// base holds what every contract wrapper needs: its address, parsed ABI,
// and the execution client to read through.
type base struct {
	address common.Address
	abi     abi.ABI
	client  *ethchain.Client
}

func newBase(address common.Address, abi abi.ABI, client *ethchain.Client) base {
	return base{address: address, abi: abi, client: client}
}

// Address returns the contract's on-chain address.
func (b base) Address() common.Address { return b.address }

// call performs an eth_call against method at the block identifier's Number
// and unpacks the single return value into out. A tag-only identifier
// (Latest or Finalized) is evaluated at the latest block.
func (b base) call(ctx context.Context, block ethchain.BlockIdentifier, out interface{}, method string, args ...interface{}) error {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("%s: pack %s: %w", b.address, method, err)
	}

	var blockNumber *big.Int
	if block.Number != nil {
		blockNumber = block.Number
	}

	result, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &b.address, Data: data}, blockNumber)
	if err != nil {
		return fmt.Errorf("%s: call %s: %w", b.address, method, err)
	}

	return b.abi.UnpackIntoInterface(out, method, result)
}

// encode builds a TxCall for a write method, to be executed by the
// submission wrapper.
func (b base) encode(method string, args ...interface{}) (TxCall, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return TxCall{}, fmt.Errorf("%s: pack %s: %w", b.address, method, err)
	}
	return TxCall{To: b.address, Data: data}, nil
}

// rawEncode packs calldata for use as a Multicall sub-call, without
// wrapping it in a TxCall (Multicall's own address is the transaction
// target, not the sub-call's).
func (b base) rawEncode(method string, args ...interface{}) ([]byte, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: pack %s: %w", b.address, method, err)
	}
	return data, nil
}
