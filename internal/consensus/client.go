// Package consensus wraps the beacon-node REST subset the keeper needs:
// finality checkpoints, block lookup by slot, validator status batch
// queries, fork data, and voluntary-exit submission. GET requests retry
// across every configured endpoint; POSTs try each endpoint once, per
// spec §4.1.
package consensus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/oracle-committee/keeper/internal/logging"
	"github.com/oracle-committee/keeper/internal/retry"
)

// Client fans out beacon-API calls across redundant endpoints.
type Client struct {
	endpoints []string
	http      *http.Client
	log       *logging.Logger
}

// New builds a consensus client with the given per-call timeout.
func New(endpoints []string, timeout time.Duration, log *logging.Logger) *Client {
	return &Client{
		endpoints: endpoints,
		http:      &http.Client{Timeout: timeout},
		log:       log,
	}
}

// FinalityCheckpoint is the `finalized` entry of the beacon finality
// checkpoints response.
type FinalityCheckpoint struct {
	Epoch uint64 `json:"epoch,string"`
	Root  string `json:"root"`
}

// GetFinalityCheckpoint fetches the current finalized checkpoint.
func (c *Client) GetFinalityCheckpoint(ctx context.Context) (FinalityCheckpoint, error) {
	var resp struct {
		Data struct {
			Finalized FinalityCheckpoint `json:"finalized"`
		} `json:"data"`
	}
	err := c.getJSON(ctx, "/eth/v1/beacon/states/head/finality_checkpoints", &resp)
	return resp.Data.Finalized, err
}

// BeaconBlock is the subset of a beacon block body the keeper needs.
type BeaconBlock struct {
	Slot          uint64 `json:"slot,string"`
	ExecutionHash string `json:"execution_block_hash"`
}

// ErrSlotNotProposed is returned when a slot has no proposed block (beacon
// API 404); callers MUST step backwards per spec §4.1.
var ErrSlotNotProposed = fmt.Errorf("slot not proposed")

// GetBlock returns the block at the given slot, or ErrSlotNotProposed if
// the slot was empty.
func (c *Client) GetBlock(ctx context.Context, slot uint64) (BeaconBlock, error) {
	path := fmt.Sprintf("/eth/v2/beacon/blocks/%d", slot)
	var resp struct {
		Data struct {
			Message struct {
				Slot uint64 `json:"slot,string"`
				Body struct {
					ExecutionPayload struct {
						BlockHash string `json:"block_hash"`
					} `json:"execution_payload"`
				} `json:"body"`
			} `json:"message"`
		} `json:"data"`
	}
	status, err := c.getJSONStatus(ctx, path, &resp)
	if err != nil {
		return BeaconBlock{}, err
	}
	if status == http.StatusNotFound {
		return BeaconBlock{}, ErrSlotNotProposed
	}
	return BeaconBlock{
		Slot:          resp.Data.Message.Slot,
		ExecutionHash: resp.Data.Message.Body.ExecutionPayload.BlockHash,
	}, nil
}

// ValidatorStatus is the subset of validator state the exits duty filters on.
type ValidatorStatus struct {
	Index  uint64 `json:"index,string"`
	Status string `json:"status"`
}

// GetValidatorsByIDs batch-queries validator statuses at the given state.
func (c *Client) GetValidatorsByIDs(ctx context.Context, stateID string, ids []uint64) ([]ValidatorStatus, error) {
	path := fmt.Sprintf("/eth/v1/beacon/states/%s/validators?", stateID)
	for i, id := range ids {
		if i > 0 {
			path += "&"
		}
		path += "id=" + strconv.FormatUint(id, 10)
	}
	var resp struct {
		Data []struct {
			Index  uint64 `json:"index,string"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	out := make([]ValidatorStatus, len(resp.Data))
	for i, v := range resp.Data {
		out[i] = ValidatorStatus{Index: v.Index, Status: v.Status}
	}
	return out, nil
}

// ForkData is the fork-version/epoch pair the exits duty needs to retry a
// voluntary exit against the previous fork.
type ForkData struct {
	CurrentVersion  string `json:"current_version"`
	PreviousVersion string `json:"previous_version"`
	Epoch           uint64 `json:"epoch,string"`
}

// GetForkData fetches fork data at the given state.
func (c *Client) GetForkData(ctx context.Context, stateID string) (ForkData, error) {
	var resp struct {
		Data ForkData `json:"data"`
	}
	err := c.getJSON(ctx, fmt.Sprintf("/eth/v1/beacon/states/%s/fork", stateID), &resp)
	return resp.Data, err
}

// ClientResponseError wraps a 4xx voluntary-exit submission response, the
// class the exits duty retries against the previous fork epoch for (spec
// §4.8 "retries with previous fork epoch iff current-epoch submission
// returns an HTTP client-response error").
type ClientResponseError struct {
	StatusCode int
}

func (e *ClientResponseError) Error() string {
	return fmt.Sprintf("voluntary exit submission returned client error status %d", e.StatusCode)
}

// SubmitVoluntaryExit posts a signed voluntary exit. POSTs try each
// endpoint once (no cross-endpoint retry), per spec §4.1.
func (c *Client) SubmitVoluntaryExit(ctx context.Context, epoch uint64, validatorIndex uint64, signature string) error {
	body, err := json.Marshal([]map[string]interface{}{{
		"message": map[string]interface{}{
			"epoch":           strconv.FormatUint(epoch, 10),
			"validator_index": strconv.FormatUint(validatorIndex, 10),
		},
		"signature": signature,
	}})
	if err != nil {
		return err
	}
	var lastErr error
	for _, ep := range c.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep+"/eth/v1/beacon/pool/voluntary_exits", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return &ClientResponseError{StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("voluntary exit submission returned status %d", resp.StatusCode)
	}
	return fmt.Errorf("%w: %v", retry.ErrEndpointUnavailable, lastErr)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	_, err := c.getJSONStatus(ctx, path, out)
	return err
}

// getJSONStatus GETs path across every endpoint until one succeeds,
// returning the HTTP status of whichever attempt decoded successfully
// (needed so GetBlock can distinguish 404 from other statuses).
func (c *Client) getJSONStatus(ctx context.Context, path string, out interface{}) (int, error) {
	type attempt struct {
		status int
		err    error
	}
	var last attempt
	for _, ep := range c.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep+path, nil)
		if err != nil {
			last = attempt{err: err}
			continue
		}
		resp, err := c.http.Do(req)
		if err != nil {
			last = attempt{err: err}
			continue
		}
		func() {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				last = attempt{status: http.StatusNotFound}
				return
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				last = attempt{status: resp.StatusCode, err: fmt.Errorf("status %d", resp.StatusCode)}
				return
			}
			if decErr := json.NewDecoder(resp.Body).Decode(out); decErr != nil {
				last = attempt{err: decErr}
				return
			}
			last = attempt{status: resp.StatusCode}
		}()
		if last.err == nil {
			return last.status, nil
		}
	}
	return last.status, fmt.Errorf("%w: %v", retry.ErrEndpointUnavailable, last.err)
}
