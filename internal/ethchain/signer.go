package ethchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Signer serializes every signed transaction through a single mutex so two
// duties never race on the keeper account's nonce within a tick.
type Signer struct {
	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	client  *Client
}

// NewSigner derives the signing address from a hex-encoded private key
// (with or without the "0x" prefix).
func NewSigner(client *Client, privateKeyHex string, chainID *big.Int) (*Signer, error) {
	key, err := crypto.HexToECDSA(trim0x(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		client:  client,
	}, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Address returns the keeper's signing address.
func (s *Signer) Address() common.Address { return s.address }

// TxParams overrides the gas parameters a call is sent with. SendDynamicFeeTx
// sends a nil Value as zero and a zero GasLimit as 500,000; GasFeeCap and
// GasTipCap are used as given and are not filled in from the chain.
type TxParams struct {
	GasFeeCap *big.Int
	GasTipCap *big.Int
	GasLimit  uint64
	Value     *big.Int
}

// SendDynamicFeeTx signs and broadcasts an EIP-1559 transaction to `to`
// carrying `data`, serialized against nonce races by Signer's mutex.
func (s *Signer) SendDynamicFeeTx(ctx context.Context, to common.Address, data []byte, params TxParams) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := eachClient(s.client, func(cl *ethclient.Client) (uint64, error) {
		return cl.PendingNonceAt(ctx, s.address)
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}

	value := params.Value
	if value == nil {
		value = big.NewInt(0)
	}
	gasLimit := params.GasLimit
	if gasLimit == 0 {
		gasLimit = 500_000
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: params.GasTipCap,
		GasFeeCap: params.GasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	return s.client.SendTransaction(ctx, signed)
}
