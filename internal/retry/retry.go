// Package retry wraps cenkalti/backoff/v4 with the retry policies the
// keeper's chain clients need: exponential backoff bounded by a max
// elapsed time, and a simple ordered attempt over a list of redundant
// endpoints.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrEndpointUnavailable is returned when every configured endpoint for a
// client failed.
var ErrEndpointUnavailable = errors.New("endpoint unavailable")

// WithBackoff runs op until it succeeds or maxElapsed is exhausted, using
// exponential backoff starting at initialInterval.
func WithBackoff(ctx context.Context, maxElapsed, initialInterval time.Duration, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.MaxElapsedTime = maxElapsed
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

// Endpoints tries op against each endpoint in order, returning the first
// success. All attempts failing returns a wrapped ErrEndpointUnavailable
// naming the last endpoint's failure, matching §4.1/§7's EndpointUnavailable
// error class.
func Endpoints[T any](endpoints []string, op func(endpoint string) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for _, ep := range endpoints {
		v, err := op(ep)
		if err == nil {
			return v, nil
		}
		lastErr = fmt.Errorf("endpoint %s: %w", ep, err)
	}
	if lastErr == nil {
		return zero, fmt.Errorf("%w: no endpoints configured", ErrEndpointUnavailable)
	}
	return zero, fmt.Errorf("%w: %s", ErrEndpointUnavailable, lastErr.Error())
}
