// Package bls reconstructs a BLS12-381 signature from a threshold of
// Shamir secret-shares via Lagrange interpolation at 0 (spec §4.8).
package bls

import (
	"fmt"
	"math/big"
	"sync"

	herumi "github.com/herumi/bls-eth-go-binary/bls"
)

// subgroupOrder is the BLS12-381 scalar field modulus r.
var subgroupOrder, _ = new(big.Int).SetString("52435875175126190479447740508185965837690552500527637822603658699938581184513", 10)

var initOnce sync.Once
var initErr error

func ensureInit() error {
	initOnce.Do(func() {
		initErr = herumi.Init(herumi.BLS12_381)
		if initErr != nil {
			return
		}
		initErr = herumi.SetETHmode(herumi.EthModeDraft07)
	})
	return initErr
}

// Share is one oracle's Shamir secret-share of a validator's exit signature:
// its 0-based position in the oracle committee (the polynomial's x
// coordinate is Index+1, x=0 being reserved for the secret itself) and the
// raw 96-byte compressed G2 point the oracle signed with its share key.
type Share struct {
	Index     int
	Signature []byte
}

// Recombine reconstructs the aggregate signature from shares via Lagrange
// interpolation at 0, per spec §4.8's exact coefficient formula:
//
//	coeff_i = ∏_{j∈shares, j≠i} −(j+1)·(i−j)⁻¹ mod q
//
// where i, j range over the 0-based indices of the contributing shares.
// Callers must have already dropped duplicate/invalid share indices and
// checked len(shares) against the committee's recovery threshold.
func Recombine(shares []Share, threshold int) ([]byte, error) {
	if len(shares) < threshold {
		return nil, fmt.Errorf("bls: need %d shares, have %d", threshold, len(shares))
	}
	if err := ensureInit(); err != nil {
		return nil, fmt.Errorf("bls: init: %w", err)
	}

	indices := make([]int, len(shares))
	for k, s := range shares {
		indices[k] = s.Index
	}

	var acc herumi.G2
	first := true
	for k, s := range shares {
		coeff := LagrangeCoefficient(indices, k)
		var point herumi.G2
		if err := point.Deserialize(s.Signature); err != nil {
			return nil, fmt.Errorf("bls: deserialize share %d: %w", s.Index, err)
		}

		fr, err := frFromBigInt(coeff)
		if err != nil {
			return nil, fmt.Errorf("bls: coefficient for share %d: %w", s.Index, err)
		}

		var scaled herumi.G2
		scaled.Mul(&point, &fr)

		if first {
			acc = scaled
			first = false
			continue
		}
		acc.Add(&acc, &scaled)
	}

	return acc.Serialize(), nil
}

// LagrangeCoefficient computes coeff_i (by position k in indices, not by
// value) for the Lagrange basis polynomial evaluated at x=0, over the
// BLS12-381 subgroup order. Factored out of Recombine so the modular
// arithmetic can be property-tested independent of curve operations.
func LagrangeCoefficient(indices []int, k int) *big.Int {
	i := big.NewInt(int64(indices[k] + 1))
	num := big.NewInt(1)
	den := big.NewInt(1)

	for m, idx := range indices {
		if m == k {
			continue
		}
		j := big.NewInt(int64(idx + 1))

		num.Mul(num, new(big.Int).Neg(j))
		num.Mod(num, subgroupOrder)

		diff := new(big.Int).Sub(i, j)
		diff.Mod(diff, subgroupOrder)
		den.Mul(den, diff)
		den.Mod(den, subgroupOrder)
	}

	denInv := new(big.Int).ModInverse(den, subgroupOrder)
	coeff := new(big.Int).Mul(num, denInv)
	return coeff.Mod(coeff, subgroupOrder)
}

// frFromBigInt converts a value already reduced mod q into an Fr scalar.
func frFromBigInt(v *big.Int) (herumi.Fr, error) {
	buf := make([]byte, 32)
	v.FillBytes(buf) // big-endian, left-padded to 32 bytes
	for l, r := 0, len(buf)-1; l < r; l, r = l+1, r-1 {
		buf[l], buf[r] = buf[r], buf[l]
	}
	var fr herumi.Fr
	if err := fr.SetLittleEndian(buf); err != nil {
		return herumi.Fr{}, err
	}
	return fr, nil
}
