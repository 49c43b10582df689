package ethchain

import "errors"

// ErrTransientRpcError marks the "fee too low" class of JSON-RPC error
// (code -32010) that the transaction submission wrapper retries on.
var ErrTransientRpcError = errors.New("transient rpc error")

// transientRPCCode is the JSON-RPC error code geth-family nodes return for
// an underpriced transaction.
const transientRPCCode = -32010

// rpcCoder is implemented by go-ethereum's rpc.Error.
type rpcCoder interface {
	ErrorCode() int
}

// classifyRPCError wraps err as ErrTransientRpcError when its JSON-RPC
// error code matches the fee-too-low class; otherwise returns err as-is.
func classifyRPCError(err error) error {
	if err == nil {
		return nil
	}
	var coder rpcCoder
	if errors.As(err, &coder) && coder.ErrorCode() == transientRPCCode {
		return &wrappedTransientError{cause: err}
	}
	return err
}

type wrappedTransientError struct {
	cause error
}

func (e *wrappedTransientError) Error() string { return e.cause.Error() }
func (e *wrappedTransientError) Unwrap() error { return ErrTransientRpcError }
func (e *wrappedTransientError) Cause() error  { return e.cause }

// IsTransient reports whether err is (or wraps) a fee-too-low transient RPC error.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientRpcError)
}
