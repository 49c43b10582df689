package txsubmit

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/oracle-committee/keeper/internal/contracts"
	"github.com/oracle-committee/keeper/internal/ethchain"
	"github.com/oracle-committee/keeper/internal/gas"
	"github.com/oracle-committee/keeper/internal/logging"
)

type fakeSender struct {
	calls   int
	failN   int
	failErr error
	hash    common.Hash
}

func (f *fakeSender) SendDynamicFeeTx(ctx context.Context, to common.Address, data []byte, params ethchain.TxParams) (common.Hash, error) {
	f.calls++
	if f.calls <= f.failN {
		return common.Hash{}, f.failErr
	}
	return f.hash, nil
}

type fakeGas struct{}

func (fakeGas) Default(ctx context.Context) (gas.Params, error) {
	return gas.Params{MaxFeePerGas: big.NewInt(1), MaxPriorityFeePerGas: big.NewInt(1)}, nil
}
func (fakeGas) HighPriority(ctx context.Context) (gas.Params, error) {
	return gas.Params{MaxFeePerGas: big.NewInt(2), MaxPriorityFeePerGas: big.NewInt(2)}, nil
}

func TestSubmitSucceedsOnFirstAttempt(t *testing.T) {
	sender := &fakeSender{hash: common.HexToHash("0xabc")}
	w := &Wrapper{signer: sender, gasManager: fakeGas{}, attemptsWithDefault: 3, secondsPerBlock: time.Millisecond, log: logging.New("test")}

	call := contracts.TxCall{To: common.HexToAddress("0x1"), Data: []byte{1}}
	hash, err := w.Submit(context.Background(), call, nil)
	require.NoError(t, err)
	require.Equal(t, sender.hash, hash)
	require.Equal(t, 1, sender.calls)
}

func TestSubmitRetriesTransientThenEscalates(t *testing.T) {
	sender := &fakeSender{failN: 3, failErr: ethchain.ErrTransientRpcError, hash: common.HexToHash("0xdef")}
	w := &Wrapper{signer: sender, gasManager: fakeGas{}, attemptsWithDefault: 3, secondsPerBlock: time.Millisecond, log: logging.New("test")}

	call := contracts.TxCall{To: common.HexToAddress("0x1"), Data: []byte{1}}
	hash, err := w.Submit(context.Background(), call, nil)
	require.NoError(t, err)
	require.Equal(t, sender.hash, hash)
	require.Equal(t, 4, sender.calls) // 3 default attempts + 1 high priority
}

func TestSubmitPropagatesNonTransientErrorImmediately(t *testing.T) {
	permanent := errors.New("execution reverted")
	sender := &fakeSender{failN: 99, failErr: permanent}
	w := &Wrapper{signer: sender, gasManager: fakeGas{}, attemptsWithDefault: 3, secondsPerBlock: time.Millisecond, log: logging.New("test")}

	call := contracts.TxCall{To: common.HexToAddress("0x1"), Data: []byte{1}}
	_, err := w.Submit(context.Background(), call, nil)
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, sender.calls)
}
