package aggregator

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/oracle-committee/keeper/internal/oracles"
)

type body struct {
	Root [32]byte
}

func committeeOf(n int) oracles.Committee {
	c := oracles.Committee{}
	for i := 0; i < n; i++ {
		addr := common.BigToAddress(common.Big1)
		addr[19] = byte(i + 1)
		c.Oracles = append(c.Oracles, oracles.Oracle{
			Address:   addr,
			Endpoints: []string{"https://endpoint" + string(rune('a'+i))},
		})
	}
	return c
}

func TestAggregateReturnsFalseBelowThreshold(t *testing.T) {
	committee := committeeOf(3)
	fetch := func(ctx context.Context, endpoint string) (Vote[body], error) {
		return Vote[body]{Nonce: 1, Signature: []byte{0xaa}}, nil
	}

	_, ok := Aggregate(context.Background(), committee, fetch, Options[body]{Threshold: 5})
	require.False(t, ok)
}

func TestAggregateWinnerIsMajorityBody(t *testing.T) {
	committee := committeeOf(4)
	var b1, b2 body
	b1.Root[0] = 1
	b2.Root[0] = 2

	// first three oracles' endpoints (suffixed a, b, c) vote b1; the fourth
	// (suffixed d) votes b2 — deterministic per-endpoint, no shared state.
	fetchVarying := func(ctx context.Context, endpoint string) (Vote[body], error) {
		if endpoint == committee.Oracles[3].Endpoints[0] {
			return Vote[body]{Nonce: 1, Body: b2, Signature: []byte{0xbb}}, nil
		}
		return Vote[body]{Nonce: 1, Body: b1, Signature: []byte{0xaa}}, nil
	}

	result, ok := Aggregate(context.Background(), committee, fetchVarying, Options[body]{Threshold: 3})
	require.True(t, ok)
	require.Equal(t, b1, result.Body)
	require.Len(t, result.Signatures, 3)
}

func TestAggregateFiltersBeforeTally(t *testing.T) {
	committee := committeeOf(3)
	fetch := func(ctx context.Context, endpoint string) (Vote[body], error) {
		return Vote[body]{Nonce: 1, Signature: []byte{0xaa}}, nil
	}

	_, ok := Aggregate(context.Background(), committee, fetch, Options[body]{
		Threshold: 1,
		Filter:    func(v Vote[body]) bool { return v.Nonce == 2 },
	})
	require.False(t, ok)
}

func TestResolveOracleVotePicksHighestNonce(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000042")
	o := oracles.Oracle{Address: addr, Endpoints: []string{"e1", "e2", "e3"}}
	fetch := func(ctx context.Context, endpoint string) (Vote[body], error) {
		switch endpoint {
		case "e1":
			return Vote[body]{Nonce: 1}, nil
		case "e2":
			return Vote[body]{Nonce: 3}, nil
		default:
			return Vote[body]{}, errors.New("unreachable")
		}
	}

	v, err := resolveOracleVote(context.Background(), o, fetch, false)
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, int64(3), v.Nonce)
	require.Equal(t, addr, v.OracleAddress)
}

func TestResolveOracleVoteTiebreaksByTimestamp(t *testing.T) {
	o := oracles.Oracle{Endpoints: []string{"e1", "e2"}}
	fetch := func(ctx context.Context, endpoint string) (Vote[body], error) {
		switch endpoint {
		case "e1":
			return Vote[body]{Nonce: 1, UpdateTimestamp: 100}, nil
		default:
			return Vote[body]{Nonce: 1, UpdateTimestamp: 200}, nil
		}
	}

	v, err := resolveOracleVote(context.Background(), o, fetch, true)
	require.NoError(t, err)
	require.Equal(t, int64(200), v.UpdateTimestamp)
}

func TestResolveOracleVoteAllEndpointsFailedYieldsNil(t *testing.T) {
	o := oracles.Oracle{Endpoints: []string{"e1"}}
	fetch := func(ctx context.Context, endpoint string) (Vote[body], error) {
		return Vote[body]{}, errors.New("down")
	}

	v, err := resolveOracleVote(context.Background(), o, fetch, false)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestFetchAllThenTallyWinnerMatchesAggregate(t *testing.T) {
	committee := committeeOf(4)
	var b1, b2 body
	b1.Root[0] = 1
	b2.Root[0] = 2

	fetch := func(ctx context.Context, endpoint string) (Vote[body], error) {
		if endpoint == committee.Oracles[3].Endpoints[0] {
			return Vote[body]{Nonce: 1, Body: b2, Signature: []byte{0xbb}}, nil
		}
		return Vote[body]{Nonce: 1, Body: b1, Signature: []byte{0xaa}}, nil
	}

	votes := FetchAll(context.Background(), committee, fetch, false)
	require.Len(t, votes, 4)

	result, ok := TallyWinner(votes, nil, 3)
	require.True(t, ok)
	require.Equal(t, b1, result.Body)
	require.Len(t, result.Signatures, 3)
}

func TestAddressLessMatchesBigEndianOrdering(t *testing.T) {
	low := common.HexToAddress("0x0000000000000000000000000000000000000001")
	high := common.HexToAddress("0x0000000000000000000000000000000000000002")
	require.True(t, addressLess(low, high))
	require.False(t, addressLess(high, low))
	require.False(t, addressLess(low, low))
}

// Quorum soundness (spec §8 invariant 1): Aggregate never returns ok=true
// with fewer contributing signatures than Threshold, for any mix of
// agreeing/disagreeing bodies across any committee size.
func TestQuorumSoundnessProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "n")
		threshold := rapid.IntRange(1, n).Draw(rt, "threshold")
		committee := committeeOf(n)

		agreeing := rapid.IntRange(0, n).Draw(rt, "agreeing")
		var b1, b2 body
		b1.Root[0] = 1
		b2.Root[0] = 2

		endpointOrdinal := make(map[string]byte, n)
		agreeingEndpoints := make(map[string]bool, agreeing)
		for i, o := range committee.Oracles {
			endpointOrdinal[o.Endpoints[0]] = byte(i)
			if i < agreeing {
				agreeingEndpoints[o.Endpoints[0]] = true
			}
		}
		// one-byte signature per endpoint, so signature byte length equals
		// contributor count regardless of which endpoints agree.
		fetch := func(ctx context.Context, endpoint string) (Vote[body], error) {
			if agreeingEndpoints[endpoint] {
				return Vote[body]{Nonce: 1, Body: b1, Signature: []byte{endpointOrdinal[endpoint]}}, nil
			}
			return Vote[body]{Nonce: 1, Body: b2, Signature: []byte{endpointOrdinal[endpoint]}}, nil
		}

		result, ok := Aggregate(context.Background(), committee, fetch, Options[body]{Threshold: threshold})
		if ok {
			require.GreaterOrEqual(rt, len(result.Signatures), threshold)
		}
	})
}

// Signature ordering (spec §8 invariant 2): the contributing signatures in
// a winning result are always ordered by ascending oracle address, even
// though oracles respond (and are fanned out) in arbitrary order.
func TestSignatureOrderingProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		committee := committeeOf(n) // addresses' last byte is 1..n, ascending with index
		var b body

		fetch := func(ctx context.Context, endpoint string) (Vote[body], error) {
			for _, o := range committee.Oracles {
				if o.Endpoints[0] == endpoint {
					return Vote[body]{Nonce: 1, Body: b, Signature: []byte{o.Address[19]}}, nil
				}
			}
			return Vote[body]{}, errors.New("unknown endpoint")
		}

		result, ok := Aggregate(context.Background(), committee, fetch, Options[body]{Threshold: n})
		require.True(rt, ok)
		require.Equal(rt, n, len(result.Signatures))
		for i := 1; i < len(result.Signatures); i++ {
			require.Less(rt, result.Signatures[i-1], result.Signatures[i])
		}
	})
}
