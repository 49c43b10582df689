package duties

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/oracle-committee/keeper/internal/consensus"
	"github.com/oracle-committee/keeper/internal/logging"
	"github.com/oracle-committee/keeper/internal/oracles"
)

func exitSharesServer(t *testing.T, entries []exitShareWire) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/exits/", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(entries))
	}))
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func newExitsDuty(log *logging.Logger) *Exits {
	return &Exits{http: NewOracleHTTPClient(5 * time.Second), log: log}
}

func TestFetchSharesGroupsByValidatorIndexAndStampsShareIndex(t *testing.T) {
	sig := "0x" + fmt.Sprintf("%0192x", 1) // 96 bytes hex
	srvA := exitSharesServer(t, []exitShareWire{{Index: intPtr(10), ExitSignatureShare: strPtr(sig)}})
	defer srvA.Close()
	srvB := exitSharesServer(t, []exitShareWire{{Index: intPtr(10), ExitSignatureShare: strPtr(sig)}})
	defer srvB.Close()

	committee := oracles.Committee{
		ExitSignatureRecoverThreshold: 2,
		Oracles: []oracles.Oracle{
			{Address: common.HexToAddress("0x01"), Endpoints: []string{srvA.URL}},
			{Address: common.HexToAddress("0x02"), Endpoints: []string{srvB.URL}},
		},
	}

	d := newExitsDuty(logging.New("test"))
	byValidator := d.fetchShares(context.Background(), committee)

	require.Len(t, byValidator, 1)
	shares := byValidator[10]
	require.Len(t, shares, 2)

	gotIndices := map[int]bool{shares[0].Index: true, shares[1].Index: true}
	require.True(t, gotIndices[0])
	require.True(t, gotIndices[1])
}

func TestFetchSharesSkipsOracleWhoseEndpointsAllFail(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	committee := oracles.Committee{
		Oracles: []oracles.Oracle{{Address: common.HexToAddress("0x01"), Endpoints: []string{down.URL}}},
	}

	d := newExitsDuty(logging.New("test"))
	byValidator := d.fetchShares(context.Background(), committee)
	require.Empty(t, byValidator)
}

func consensusServer(t *testing.T, statuses map[uint64]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/validators")
		type entry struct {
			Index  string `json:"index"`
			Status string `json:"status"`
		}
		var data []entry
		for idx, s := range statuses {
			data = append(data, entry{Index: fmt.Sprintf("%d", idx), Status: s})
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{"data": data}))
	}))
}

func TestFilterActiveDropsExitedValidators(t *testing.T) {
	srv := consensusServer(t, map[uint64]string{1: "active_ongoing", 2: "exited_unslashed", 3: "withdrawal_done"})
	defer srv.Close()

	client := consensus.New([]string{srv.URL}, 5*time.Second, logging.New("test"))
	d := &Exits{consensus: client, log: logging.New("test")}

	active, err := d.filterActive(context.Background(), []uint64{1, 2, 3})
	require.NoError(t, err)
	require.True(t, active[1])
	require.False(t, active[2])
	require.False(t, active[3])
}

func TestFilterActiveChunksLargeIndexSets(t *testing.T) {
	var requestCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}}))
	}))
	defer srv.Close()

	client := consensus.New([]string{srv.URL}, 5*time.Second, logging.New("test"))
	d := &Exits{consensus: client, log: logging.New("test")}

	indices := make([]uint64, ValidatorsFetchChunkSize+1)
	for i := range indices {
		indices[i] = uint64(i)
	}

	_, err := d.filterActive(context.Background(), indices)
	require.NoError(t, err)
	require.Equal(t, 2, requestCount)
}

func TestSubmitRetriesAtPreviousForkEpochOnClientResponseError(t *testing.T) {
	const currentEpoch = 100
	const previousEpoch = 99

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == fmt.Sprintf("/eth/v1/beacon/states/%d/fork", currentEpoch*32-1):
			require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{"current_version": "0x01", "previous_version": "0x00", "epoch": fmt.Sprintf("%d", previousEpoch)},
			}))
		case r.Method == http.MethodPost:
			var body []map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			epoch := body[0]["message"].(map[string]interface{})["epoch"]
			if epoch == fmt.Sprintf("%d", currentEpoch) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			require.Equal(t, fmt.Sprintf("%d", previousEpoch), epoch)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := consensus.New([]string{srv.URL}, 5*time.Second, logging.New("test"))
	d := &Exits{consensus: client, log: logging.New("test")}

	err := d.submit(context.Background(), currentEpoch, 42, "0xdeadbeef")
	require.NoError(t, err)
}

func TestSubmitDoesNotRetryOnNonClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := consensus.New([]string{srv.URL}, 5*time.Second, logging.New("test"))
	d := &Exits{consensus: client, log: logging.New("test")}

	err := d.submit(context.Background(), 100, 42, "0xdeadbeef")
	require.Error(t, err)
}
