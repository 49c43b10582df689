package duties

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/oracle-committee/keeper/internal/aggregator"
)

// RewardVoteBody is the hashable tally key for the rewards duty (spec §3
// RewardVoteBody): equality by all fields.
type RewardVoteBody struct {
	Root               [32]byte
	IpfsHash           string
	AvgRewardPerSecond int64
	UpdateTimestamp    int64
}

// DistributorRewardVoteBody is the analogous tally key for the
// distributor-rewards duty.
type DistributorRewardVoteBody struct {
	Root     [32]byte
	IpfsHash string
}

// oracleHTTP issues GETs against oracle endpoints with a fixed timeout,
// matching the "each client supports redundant endpoints with retry" shape
// used throughout internal/consensus and internal/ipfsfetch — here retry
// is per-endpoint fan-out rather than sequential, since §4.5 fans out
// every endpoint concurrently and lets the aggregator pick a winner.
type oracleHTTP struct {
	client *http.Client
}

func newOracleHTTP(timeout time.Duration) *oracleHTTP {
	return &oracleHTTP{client: &http.Client{Timeout: timeout}}
}

func (o *oracleHTTP) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("GET %s: read body: %w", url, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", url, err)
	}
	return nil
}

// rewardVoteWire is the `/` endpoint's JSON shape (spec §6).
type rewardVoteWire struct {
	Nonce              *int64  `json:"nonce"`
	UpdateTimestamp    *int64  `json:"update_timestamp"`
	Signature          *string `json:"signature"`
	Root               *string `json:"root"`
	IpfsHash           *string `json:"ipfs_hash"`
	AvgRewardPerSecond *int64  `json:"avg_reward_per_second"`
}

// FetchRewardVote builds a fetch function for the rewards duty's `/`
// endpoint. Pointer fields in the wire struct let a missing JSON key be
// distinguished from a zero value, per spec §9's "typed parse errors, not
// runtime attribute failures."
func FetchRewardVote(timeout time.Duration) aggregator.FetchFunc[RewardVoteBody] {
	http := newOracleHTTP(timeout)
	return func(ctx context.Context, endpoint string) (aggregator.Vote[RewardVoteBody], error) {
		var wire rewardVoteWire
		if err := http.get(ctx, endpoint, &wire); err != nil {
			return aggregator.Vote[RewardVoteBody]{}, err
		}
		if wire.Nonce == nil || wire.UpdateTimestamp == nil || wire.Signature == nil ||
			wire.Root == nil || wire.IpfsHash == nil || wire.AvgRewardPerSecond == nil {
			return aggregator.Vote[RewardVoteBody]{}, fmt.Errorf("%s: missing required field", endpoint)
		}

		sig, err := hexutil.Decode(*wire.Signature)
		if err != nil {
			return aggregator.Vote[RewardVoteBody]{}, fmt.Errorf("%s: decode signature: %w", endpoint, err)
		}
		root, err := decode32(*wire.Root)
		if err != nil {
			return aggregator.Vote[RewardVoteBody]{}, fmt.Errorf("%s: decode root: %w", endpoint, err)
		}

		return aggregator.Vote[RewardVoteBody]{
			Nonce:           *wire.Nonce,
			UpdateTimestamp: *wire.UpdateTimestamp,
			Signature:       sig,
			Body: RewardVoteBody{
				Root:               root,
				IpfsHash:           *wire.IpfsHash,
				AvgRewardPerSecond: *wire.AvgRewardPerSecond,
				UpdateTimestamp:    *wire.UpdateTimestamp,
			},
		}, nil
	}
}

// distributorVoteWire is the `/distributor-rewards` endpoint's JSON shape.
type distributorVoteWire struct {
	Nonce           *int64  `json:"nonce"`
	UpdateTimestamp *int64  `json:"update_timestamp"`
	Signature       *string `json:"signature"`
	Root            *string `json:"root"`
	IpfsHash        *string `json:"ipfs_hash"`
}

// FetchDistributorRewardVote builds a fetch function for the
// distributor-rewards duty's `/distributor-rewards` endpoint.
func FetchDistributorRewardVote(timeout time.Duration) aggregator.FetchFunc[DistributorRewardVoteBody] {
	http := newOracleHTTP(timeout)
	return func(ctx context.Context, endpoint string) (aggregator.Vote[DistributorRewardVoteBody], error) {
		url := strings.TrimRight(endpoint, "/") + "/distributor-rewards"
		var wire distributorVoteWire
		if err := http.get(ctx, url, &wire); err != nil {
			return aggregator.Vote[DistributorRewardVoteBody]{}, err
		}
		if wire.Nonce == nil || wire.UpdateTimestamp == nil || wire.Signature == nil || wire.Root == nil || wire.IpfsHash == nil {
			return aggregator.Vote[DistributorRewardVoteBody]{}, fmt.Errorf("%s: missing required field", url)
		}

		sig, err := hexutil.Decode(*wire.Signature)
		if err != nil {
			return aggregator.Vote[DistributorRewardVoteBody]{}, fmt.Errorf("%s: decode signature: %w", url, err)
		}
		root, err := decode32(*wire.Root)
		if err != nil {
			return aggregator.Vote[DistributorRewardVoteBody]{}, fmt.Errorf("%s: decode root: %w", url, err)
		}

		return aggregator.Vote[DistributorRewardVoteBody]{
			Nonce:           *wire.Nonce,
			UpdateTimestamp: *wire.UpdateTimestamp,
			Signature:       sig,
			Body:            DistributorRewardVoteBody{Root: root, IpfsHash: *wire.IpfsHash},
		}, nil
	}
}

// exitShareWire is one entry of the `/exits/` endpoint's JSON array.
type exitShareWire struct {
	Index              *int    `json:"index"`
	ExitSignatureShare *string `json:"exit_signature_share"`
}

// ExitShare is one oracle's signature share for one validator's exit.
type ExitShare struct {
	ValidatorIndex uint64
	ShareIndex     int
	SignatureShare []byte
}

// FetchExitShares GETs one oracle endpoint's `/exits/` list. Unlike the
// other two duties, exits are not modeled through aggregator.Aggregate
// (each validator independently needs ≥threshold shares, not a single
// tallied body) — the exits duty fans out and collects shares directly.
func FetchExitShares(ctx context.Context, http *oracleHTTP, endpoint string) ([]ExitShare, error) {
	url := strings.TrimRight(endpoint, "/") + "/exits/"
	var wire []exitShareWire
	if err := http.get(ctx, url, &wire); err != nil {
		return nil, err
	}

	shares := make([]ExitShare, 0, len(wire))
	for _, w := range wire {
		if w.Index == nil || w.ExitSignatureShare == nil {
			return nil, fmt.Errorf("%s: missing required field in exit share", url)
		}
		share, err := hexutil.Decode(*w.ExitSignatureShare)
		if err != nil {
			return nil, fmt.Errorf("%s: decode exit_signature_share: %w", url, err)
		}
		shares = append(shares, ExitShare{ValidatorIndex: uint64(*w.Index), SignatureShare: share})
	}
	return shares, nil
}

// NewOracleHTTPClient builds the shared per-oracle HTTP client used by the
// exits duty's direct fetch (the rewards/distributor duties build their
// own via FetchRewardVote/FetchDistributorRewardVote instead, since those
// are wrapped as aggregator.FetchFunc closures).
func NewOracleHTTPClient(timeout time.Duration) *oracleHTTP {
	return newOracleHTTP(timeout)
}

func decode32(hex string) ([32]byte, error) {
	var out [32]byte
	b, err := hexutil.Decode(hex)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
