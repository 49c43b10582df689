// Package aggregator implements the vote aggregation core (spec §4.5)
// shared by every duty: per-oracle endpoint fan-out and selection, body
// tallying against a quorum threshold, and oracle-address-sorted
// signature concatenation.
package aggregator

import (
	"bytes"
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/fanout"
	"github.com/oracle-committee/keeper/internal/oracles"
)

// Vote is one oracle's claim: its signing address, the monotonic values
// used for per-endpoint selection, its signature over Body, and the body
// itself. B must be comparable so votes can be tallied by body equality.
type Vote[B comparable] struct {
	OracleAddress   common.Address
	Nonce           int64
	UpdateTimestamp int64
	Signature       []byte
	Body            B
}

// FetchFunc fetches and parses a single endpoint's vote. A non-nil error
// marks the endpoint invalid (HTTP error, bad JSON, missing/mistyped
// field) without affecting sibling endpoints.
type FetchFunc[B comparable] func(ctx context.Context, endpoint string) (Vote[B], error)

// Options configures one aggregation run.
type Options[B comparable] struct {
	// Filter drops votes that don't satisfy duty-specific preconditions
	// (e.g. nonce == on-chain nonce). Defaults to accept-all if nil.
	Filter func(Vote[B]) bool
	// Threshold is the minimum number of agreeing votes required to win.
	Threshold int
	// TiebreakByTimestamp selects, among endpoints tied on the highest
	// nonce, the one with the largest update_timestamp. The distributor
	// duty's per-endpoint selection uses nonce only and sets this false.
	TiebreakByTimestamp bool
}

// Result is a winning aggregation outcome.
type Result[B comparable] struct {
	Body       B
	Signatures []byte
}

// Aggregate fans out fetch across every oracle/endpoint in committee,
// resolves one representative vote per oracle, filters, tallies by body,
// and returns the winner plus its contributors' signatures concatenated
// in oracle-address order. ok is false if no body reached Threshold votes.
// Duties that need to bucket resolved votes before tallying (the rewards
// duty's RewardsCache, spec §4.6) call FetchAll and TallyWinner directly
// instead.
func Aggregate[B comparable](ctx context.Context, committee oracles.Committee, fetch FetchFunc[B], opts Options[B]) (Result[B], bool) {
	votes := FetchAll(ctx, committee, fetch, opts.TiebreakByTimestamp)
	return TallyWinner(votes, opts.Filter, opts.Threshold)
}

// FetchAll fans out fetch across every oracle/endpoint and resolves one
// representative vote per oracle (spec §4.5 fan-out discipline), with no
// filtering or tallying applied.
func FetchAll[B comparable](ctx context.Context, committee oracles.Committee, fetch FetchFunc[B], tiebreakByTimestamp bool) []Vote[B] {
	perOracle := fanout.Collect(committee.Oracles, func(o oracles.Oracle) (*Vote[B], error) {
		return resolveOracleVote(ctx, o, fetch, tiebreakByTimestamp)
	})

	var votes []Vote[B]
	for _, r := range perOracle {
		if r.Err != nil || r.Value == nil {
			continue
		}
		votes = append(votes, *r.Value)
	}
	return votes
}

// TallyWinner applies filter (nil accepts everything) to votes, tallies
// the survivors by body, and returns the most-agreed-on body plus its
// first Threshold contributors' signatures in ascending address order,
// iff that body reached Threshold votes (spec §4.5 selection + signature
// ordering).
func TallyWinner[B comparable](votes []Vote[B], filter func(Vote[B]) bool, threshold int) (Result[B], bool) {
	if filter == nil {
		filter = func(Vote[B]) bool { return true }
	}

	var filtered []Vote[B]
	for _, v := range votes {
		if filter(v) {
			filtered = append(filtered, v)
		}
	}

	tally := make(map[B][]Vote[B])
	for _, v := range filtered {
		tally[v.Body] = append(tally[v.Body], v)
	}

	var winner B
	var winnerVotes []Vote[B]
	best := -1
	for body, vs := range tally {
		if len(vs) > best {
			best = len(vs)
			winner = body
			winnerVotes = vs
		}
	}

	if best < threshold {
		return Result[B]{}, false
	}

	sort.Slice(winnerVotes, func(i, j int) bool {
		return addressLess(winnerVotes[i].OracleAddress, winnerVotes[j].OracleAddress)
	})

	contributors := winnerVotes[:threshold]
	var sigs bytes.Buffer
	for _, v := range contributors {
		sigs.Write(v.Signature)
	}

	return Result[B]{Body: winner, Signatures: sigs.Bytes()}, true
}

// resolveOracleVote issues a concurrent GET per endpoint and picks the
// surviving response with the highest nonce (ties broken by
// update_timestamp when tiebreakByTimestamp is set). Returns (nil, nil)
// if every endpoint errored — the oracle simply contributes nothing.
func resolveOracleVote[B comparable](ctx context.Context, o oracles.Oracle, fetch FetchFunc[B], tiebreakByTimestamp bool) (*Vote[B], error) {
	results := fanout.Collect(o.Endpoints, func(endpoint string) (Vote[B], error) {
		return fetch(ctx, endpoint)
	})

	ok := fanout.OK(results)
	if len(ok) == 0 {
		return nil, nil
	}

	best := ok[0]
	for _, v := range ok[1:] {
		if v.Nonce > best.Nonce {
			best = v
			continue
		}
		if v.Nonce == best.Nonce && tiebreakByTimestamp && v.UpdateTimestamp > best.UpdateTimestamp {
			best = v
		}
	}
	// fetch only sees the endpoint URL, not the oracle identity, so the
	// committee's address for this oracle is the source of truth here.
	best.OracleAddress = o.Address
	return &best, nil
}

// addressLess compares two addresses as big-endian unsigned integers,
// matching on-chain address comparison (spec §4.5 "Signature ordering").
func addressLess(a, b common.Address) bool {
	return new(big.Int).SetBytes(a.Bytes()).Cmp(new(big.Int).SetBytes(b.Bytes())) < 0
}
