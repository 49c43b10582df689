package consensus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oracle-committee/keeper/internal/logging"
	"github.com/oracle-committee/keeper/internal/retry"
)

func newTestClient(endpoints ...string) *Client {
	return New(endpoints, 5*time.Second, logging.New("test"))
}

func TestGetFinalityCheckpointDecodesFinalizedEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/eth/v1/beacon/states/head/finality_checkpoints", r.URL.Path)
		fmt.Fprint(w, `{"data":{"finalized":{"epoch":"123","root":"0xabc"}}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	cp, err := c.GetFinalityCheckpoint(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 123, cp.Epoch)
	require.Equal(t, "0xabc", cp.Root)
}

func TestGetBlockReturnsExecutionHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/eth/v2/beacon/blocks/42", r.URL.Path)
		fmt.Fprint(w, `{"data":{"message":{"slot":"42","body":{"execution_payload":{"block_hash":"0xdead"}}}}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	block, err := c.GetBlock(context.Background(), 42)
	require.NoError(t, err)
	require.EqualValues(t, 42, block.Slot)
	require.Equal(t, "0xdead", block.ExecutionHash)
}

func TestGetBlockReturnsErrSlotNotProposedOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetBlock(context.Background(), 42)
	require.ErrorIs(t, err, ErrSlotNotProposed)
}

func TestGetValidatorsByIDsEncodesIDsAndDecodesStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/eth/v1/beacon/states/head/validators", r.URL.Path)
		require.Equal(t, "id=1&id=2", r.URL.RawQuery)
		fmt.Fprint(w, `{"data":[{"index":"1","status":"active_ongoing"},{"index":"2","status":"exited"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	statuses, err := c.GetValidatorsByIDs(context.Background(), "head", []uint64{1, 2})
	require.NoError(t, err)
	require.Equal(t, []ValidatorStatus{{Index: 1, Status: "active_ongoing"}, {Index: 2, Status: "exited"}}, statuses)
}

func TestGetForkDataDecodesVersionsAndEpoch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/eth/v1/beacon/states/head/fork", r.URL.Path)
		fmt.Fprint(w, `{"data":{"current_version":"0x01","previous_version":"0x00","epoch":"10"}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	fork, err := c.GetForkData(context.Background(), "head")
	require.NoError(t, err)
	require.Equal(t, ForkData{CurrentVersion: "0x01", PreviousVersion: "0x00", Epoch: 10}, fork)
}

func TestSubmitVoluntaryExitSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/eth/v1/beacon/pool/voluntary_exits", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.SubmitVoluntaryExit(context.Background(), 10, 42, "0xsig")
	require.NoError(t, err)
}

func TestSubmitVoluntaryExitReturnsClientResponseErrorOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.SubmitVoluntaryExit(context.Background(), 10, 42, "0xsig")
	var cre *ClientResponseError
	require.True(t, errors.As(err, &cre))
	require.Equal(t, http.StatusBadRequest, cre.StatusCode)
}

func TestSubmitVoluntaryExitDoesNotRetryAcrossEndpoints(t *testing.T) {
	var secondCalled bool
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondCalled = true
		w.WriteHeader(http.StatusOK)
	}))
	defer second.Close()

	c := newTestClient(first.URL, second.URL)
	err := c.SubmitVoluntaryExit(context.Background(), 10, 42, "0xsig")
	require.Error(t, err)
	require.False(t, secondCalled)
}

func TestGetFinalityCheckpointFallsBackAcrossEndpoints(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"finalized":{"epoch":"5","root":"0xok"}}}`)
	}))
	defer up.Close()

	c := newTestClient(down.URL, up.URL)
	cp, err := c.GetFinalityCheckpoint(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 5, cp.Epoch)
}

func TestGetFinalityCheckpointReturnsEndpointUnavailableWhenAllFail(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	c := newTestClient(down.URL)
	_, err := c.GetFinalityCheckpoint(context.Background())
	require.ErrorIs(t, err, retry.ErrEndpointUnavailable)
}
