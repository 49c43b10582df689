// Package ethchain wraps the execution-layer JSON-RPC surface the keeper
// needs: balance/block reads, log scans, calls, and transaction submission
// with receipt polling. Grounded on github.com/ethereum/go-ethereum's
// ethclient.Client, which is itself the real public binding used across
// the retrieval pack's Ethereum-family repos.
package ethchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/oracle-committee/keeper/internal/logging"
	"github.com/oracle-committee/keeper/internal/retry"
)

// BlockIdentifier selects which block a read call is evaluated at.
type BlockIdentifier struct {
	Tag    string // "finalized", "latest", or "" when Number is set
	Number *big.Int
}

// Latest is the default block identifier for contract reads.
var Latest = BlockIdentifier{Tag: "latest"}

// Finalized selects the finalized execution block.
var Finalized = BlockIdentifier{Tag: "finalized"}

// Client fans out execution-layer calls across redundant endpoints.
type Client struct {
	endpoints []string
	clients   []*ethclient.Client
	log       *logging.Logger
}

// Dial connects a client for each configured endpoint. Endpoints that fail
// to dial are skipped with a logged warning — the client still operates
// over whatever subset dialed successfully.
func Dial(ctx context.Context, endpoints []string, log *logging.Logger) (*Client, error) {
	c := &Client{endpoints: endpoints, log: log}
	for _, ep := range endpoints {
		cl, err := ethclient.DialContext(ctx, ep)
		if err != nil {
			log.Warn("failed to dial execution endpoint", "endpoint", ep, "error", err.Error())
			continue
		}
		c.clients = append(c.clients, cl)
	}
	if len(c.clients) == 0 {
		return nil, fmt.Errorf("%w: no execution endpoints dialed", retry.ErrEndpointUnavailable)
	}
	return c, nil
}

// eachClient tries op against every dialed client in order, returning the
// first success.
func eachClient[T any](c *Client, op func(*ethclient.Client) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for _, cl := range c.clients {
		v, err := op(cl)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no clients available")
	}
	return zero, fmt.Errorf("%w: %w", retry.ErrEndpointUnavailable, lastErr)
}

// GetBalance returns the native-token balance of addr at the latest block.
func (c *Client) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return eachClient(c, func(cl *ethclient.Client) (*big.Int, error) {
		return cl.BalanceAt(ctx, addr, nil)
	})
}

// GetBlockNumber returns the latest execution block number.
func (c *Client) GetBlockNumber(ctx context.Context) (uint64, error) {
	return eachClient(c, func(cl *ethclient.Client) (uint64, error) {
		return cl.BlockNumber(ctx)
	})
}

// GetBlock returns the block header at the given identifier.
func (c *Client) GetBlock(ctx context.Context, id BlockIdentifier) (*types.Header, error) {
	return eachClient(c, func(cl *ethclient.Client) (*types.Header, error) {
		switch id.Tag {
		case "latest":
			return cl.HeaderByNumber(ctx, nil)
		case "finalized":
			return cl.HeaderByNumber(ctx, big.NewInt(int64(ethereumFinalizedBlockNumber)))
		default:
			return cl.HeaderByNumber(ctx, id.Number)
		}
	})
}

// ethereumFinalizedBlockNumber is go-ethereum's reserved pseudo block
// number for rpc.FinalizedBlockNumber (-3), used by HeaderByNumber callers
// that want the "finalized" tag translated to a BlockNumber argument.
const ethereumFinalizedBlockNumber = -3

// GetLogs scans for logs matching the given filter query.
func (c *Client) GetLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return eachClient(c, func(cl *ethclient.Client) ([]types.Log, error) {
		return cl.FilterLogs(ctx, q)
	})
}

// CallContract performs an eth_call against the given message at the block
// identifier (nil block means latest).
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return eachClient(c, func(cl *ethclient.Client) ([]byte, error) {
		return cl.CallContract(ctx, msg, blockNumber)
	})
}

// SendTransaction broadcasts a signed transaction and returns its hash.
// RPC errors in the "fee too low" class are classified as ErrTransientRpcError
// so the submission wrapper (§4.4) can retry on them specifically.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	_, err := eachClient(c, func(cl *ethclient.Client) (struct{}, error) {
		return struct{}{}, cl.SendTransaction(ctx, tx)
	})
	if err != nil {
		return common.Hash{}, classifyRPCError(err)
	}
	return tx.Hash(), nil
}

// WaitForReceipt polls for a transaction receipt until ctx is done.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := eachClient(c, func(cl *ethclient.Client) (*types.Receipt, error) {
			return cl.TransactionReceipt(ctx, hash)
		})
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt %s: %w", hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// receiptPollInterval is how often WaitForReceipt re-polls for inclusion.
const receiptPollInterval = 3 * time.Second

// SuggestGasTipCap asks the node for a priority-fee suggestion, used as a
// fallback when fee-history percentile computation (§4.3) is unavailable.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return eachClient(c, func(cl *ethclient.Client) (*big.Int, error) {
		return cl.SuggestGasTipCap(ctx)
	})
}

// FeeHistory returns the fee history over the last `blocks` blocks, used by
// the gas manager's percentile computation.
func (c *Client) FeeHistory(ctx context.Context, blocks uint64, rewardPercentiles []float64) (*ethereum.FeeHistory, error) {
	return eachClient(c, func(cl *ethclient.Client) (*ethereum.FeeHistory, error) {
		return cl.FeeHistory(ctx, blocks, nil, rewardPercentiles)
	})
}

// Endpoints returns the configured endpoint list (used by health checks).
func (c *Client) Endpoints() []string { return c.endpoints }
