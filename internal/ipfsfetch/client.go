// Package ipfsfetch fetches content-addressed JSON documents (protocol
// config, reward artifacts) from a list of redundant IPFS gateways, with
// exponential backoff on transient failures.
package ipfsfetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oracle-committee/keeper/internal/retry"
)

// ErrIpfsUnavailable is returned once the retry window is exhausted without
// a successful fetch from any gateway.
var ErrIpfsUnavailable = errors.New("ipfs unavailable")

// Client fetches JSON documents by CID from one of several gateways.
type Client struct {
	gateways     []string
	http         *http.Client
	retryWindow  time.Duration
	retryInitial time.Duration
}

// New builds an IPFS fetch client. timeout bounds each individual HTTP call;
// retryWindow bounds the overall backoff loop.
func New(gateways []string, timeout, retryWindow time.Duration) *Client {
	return &Client{
		gateways:     gateways,
		http:         &http.Client{Timeout: timeout},
		retryWindow:  retryWindow,
		retryInitial: 500 * time.Millisecond,
	}
}

// FetchJSON retrieves the document addressed by cid and decodes it into out.
// Failed gateway attempts are retried with exponential backoff until
// retryWindow elapses, at which point ErrIpfsUnavailable is returned.
func (c *Client) FetchJSON(ctx context.Context, cid string, out interface{}) error {
	err := retry.WithBackoff(ctx, c.retryWindow, c.retryInitial, func() error {
		return c.fetchOnce(ctx, cid, out)
	})
	if err != nil {
		return fmt.Errorf("%w: cid %s: %v", ErrIpfsUnavailable, cid, err)
	}
	return nil
}

func (c *Client) fetchOnce(ctx context.Context, cid string, out interface{}) error {
	_, err := retry.Endpoints(c.gateways, func(gw string) (struct{}, error) {
		url := gw + "/ipfs/" + cid
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return struct{}{}, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		body, err := readAndClose(resp)
		if err != nil {
			return struct{}{}, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return struct{}{}, fmt.Errorf("status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return struct{}{}, fmt.Errorf("decode: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

func readAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
