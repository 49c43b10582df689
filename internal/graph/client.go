// Package graph queries an indexed subgraph over its GraphQL HTTP endpoint,
// the same POST-JSON call shape as the teacher's faucet service broadcast
// call. Results are paginated by injecting first/skip variables until a
// page comes back short.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oracle-committee/keeper/internal/retry"
)

// pageSize is how many entities are requested per page in FetchPages.
const pageSize = 1000

// Client queries a subgraph across redundant endpoints.
type Client struct {
	endpoints []string
	http      *http.Client
}

// New builds a graph client with the given per-call timeout.
func New(endpoints []string, timeout time.Duration) *Client {
	return &Client{endpoints: endpoints, http: &http.Client{Timeout: timeout}}
}

type gqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

// RunQuery executes query with the given variables against the first
// responsive endpoint and decodes the `data` field into out.
func (c *Client) RunQuery(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}

	_, err = retry.Endpoints(c.endpoints, func(ep string) (struct{}, error) {
		data, err := c.post(ctx, ep, body)
		if err != nil {
			return struct{}{}, err
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return struct{}{}, fmt.Errorf("decode: %w", err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}

	var gr gqlResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(gr.Errors) > 0 {
		return nil, fmt.Errorf("graph errors: %s", gr.Errors[0].Message)
	}
	return gr.Data, nil
}

// FetchPages runs query repeatedly, injecting first/skip into variables,
// accumulating each page's `entityField` array until a page returns fewer
// than `first` items. The caller names the array field to collect because
// subgraph queries differ per duty (vault LTVs, exit requests, ...).
func (c *Client) FetchPages(ctx context.Context, query string, variables map[string]interface{}, entityField string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	skip := 0
	for {
		vars := make(map[string]interface{}, len(variables)+2)
		for k, v := range variables {
			vars[k] = v
		}
		vars["first"] = pageSize
		vars["skip"] = skip

		var page map[string]json.RawMessage
		if err := c.RunQuery(ctx, query, vars, &page); err != nil {
			return nil, err
		}

		raw, ok := page[entityField]
		if !ok {
			return nil, fmt.Errorf("graph response missing field %q", entityField)
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode field %q: %w", entityField, err)
		}

		all = append(all, items...)
		if len(items) < pageSize {
			return all, nil
		}
		skip += pageSize
	}
}

// ErrGraphBehind signals the subgraph's indexed head is behind the
// execution chain's finalized block; duties that depend on the graph
// must fail fast for the current tick when this is returned.
var ErrGraphBehind = fmt.Errorf("graph node behind finalized block")

// meta is the subgraph's `_meta` introspection block reporting its synced
// block number.
type meta struct {
	Meta struct {
		Block struct {
			Number uint64 `json:"number"`
		} `json:"block"`
	} `json:"_meta"`
}

const metaQuery = `{ _meta { block { number } } }`

// CheckSynced queries the subgraph's indexed head and compares it against
// finalizedBlock, returning ErrGraphBehind if the subgraph has not caught up.
func (c *Client) CheckSynced(ctx context.Context, finalizedBlock uint64) error {
	var m meta
	if err := c.RunQuery(ctx, metaQuery, nil, &m); err != nil {
		return err
	}
	if m.Meta.Block.Number < finalizedBlock {
		return fmt.Errorf("%w: synced=%d finalized=%d", ErrGraphBehind, m.Meta.Block.Number, finalizedBlock)
	}
	return nil
}
