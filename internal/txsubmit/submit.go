// Package txsubmit wraps contract write calls with the keeper's gas-retry
// policy (§4.4): a bounded number of default-gas attempts that tolerate a
// "fee too low" RPC error by sleeping one block period, followed by a
// single high-priority escape-hatch attempt. At most
// ATTEMPTS_WITH_DEFAULT_GAS+1 on-chain submissions happen per call.
package txsubmit

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/contracts"
	"github.com/oracle-committee/keeper/internal/ethchain"
	"github.com/oracle-committee/keeper/internal/gas"
	"github.com/oracle-committee/keeper/internal/logging"
)

// sender is the subset of *ethchain.Signer the wrapper needs; an interface
// so tests can inject a fake without a live chain.
type sender interface {
	SendDynamicFeeTx(ctx context.Context, to common.Address, data []byte, params ethchain.TxParams) (common.Hash, error)
}

// feeEstimator is the subset of *gas.Manager the wrapper needs.
type feeEstimator interface {
	Default(ctx context.Context) (gas.Params, error)
	HighPriority(ctx context.Context) (gas.Params, error)
}

// Wrapper submits contract calls via a single signer, retrying on
// transient gas-price errors before escalating to a high-priority fee.
type Wrapper struct {
	signer              sender
	gasManager          feeEstimator
	attemptsWithDefault int
	secondsPerBlock     time.Duration
	log                 *logging.Logger
}

// New builds a submission wrapper.
func New(signer *ethchain.Signer, gasManager *gas.Manager, attemptsWithDefaultGas int, secondsPerBlock time.Duration, log *logging.Logger) *Wrapper {
	return &Wrapper{
		signer:              signer,
		gasManager:          gasManager,
		attemptsWithDefault: attemptsWithDefaultGas,
		secondsPerBlock:     secondsPerBlock,
		log:                 log,
	}
}

// Submit sends call with an optional value attached, guaranteeing at-most
// one successful on-chain submission. Receipt waiting is the caller's
// responsibility.
func (w *Wrapper) Submit(ctx context.Context, call contracts.TxCall, value *big.Int) (common.Hash, error) {
	var lastErr error

	for i := 0; i < w.attemptsWithDefault; i++ {
		params, err := w.gasManager.Default(ctx)
		if err != nil {
			return common.Hash{}, err
		}

		hash, err := w.signer.SendDynamicFeeTx(ctx, call.To, call.Data, ethchain.TxParams{
			GasFeeCap: params.MaxFeePerGas,
			GasTipCap: params.MaxPriorityFeePerGas,
			Value:     value,
		})
		if err == nil {
			return hash, nil
		}
		if !ethchain.IsTransient(err) {
			return common.Hash{}, err
		}

		lastErr = err
		w.log.Warn("transient rpc error submitting transaction, retrying", "attempt", i, "error", err.Error())
		if i < w.attemptsWithDefault-1 {
			select {
			case <-ctx.Done():
				return common.Hash{}, ctx.Err()
			case <-time.After(w.secondsPerBlock):
			}
		}
	}

	params, err := w.gasManager.HighPriority(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := w.signer.SendDynamicFeeTx(ctx, call.To, call.Data, ethchain.TxParams{
		GasFeeCap: params.MaxFeePerGas,
		GasTipCap: params.MaxPriorityFeePerGas,
		Value:     value,
	})
	if err != nil {
		w.log.Error(err, "high priority submission failed", "previous_error", lastErr)
		return common.Hash{}, err
	}
	return hash, nil
}
