package duties

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/oracle-committee/keeper/internal/bls"
	"github.com/oracle-committee/keeper/internal/consensus"
	"github.com/oracle-committee/keeper/internal/fanout"
	"github.com/oracle-committee/keeper/internal/logging"
	"github.com/oracle-committee/keeper/internal/metrics"
	"github.com/oracle-committee/keeper/internal/oracles"
)

// ValidatorsFetchChunkSize bounds how many validator indices go into a
// single consensus.GetValidatorsByIDs call, grounded on
// original_source/src/config/settings.py's VALIDATORS_FETCH_CHUNK_SIZE
// default. Not part of the documented env var table (spec §6) — a fixed
// implementation constant, like RewardsCache's DefaultCacheSize.
const ValidatorsFetchChunkSize = 100

// exitedStatuses are the beacon validator statuses that make a voluntary
// exit redundant.
var exitedStatuses = map[string]bool{
	"active_exiting":      true,
	"exited_unslashed":    true,
	"exited_slashed":      true,
	"withdrawal_possible": true,
	"withdrawal_done":     true,
}

// Exits implements the exits duty (spec §4.8): recombine oracle BLS
// signature shares per validator and submit voluntary exits for
// validators whose shares reach the committee's recovery threshold.
type Exits struct {
	consensus *consensus.Client
	http      *oracleHTTP
	log       *logging.Logger
}

// NewExits builds the exits duty.
func NewExits(consensusClient *consensus.Client, oracleTimeout time.Duration, log *logging.Logger) *Exits {
	return &Exits{consensus: consensusClient, http: NewOracleHTTPClient(oracleTimeout), log: log}
}

// Run executes one tick of the exits duty.
func (d *Exits) Run(ctx context.Context, committee oracles.Committee) error {
	checkpoint, err := d.consensus.GetFinalityCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("read finality checkpoint: %w", err)
	}

	byValidator := d.fetchShares(ctx, committee)
	if len(byValidator) == 0 {
		return nil
	}

	validatorIndices := make([]uint64, 0, len(byValidator))
	for idx := range byValidator {
		validatorIndices = append(validatorIndices, idx)
	}

	active, err := d.filterActive(ctx, validatorIndices)
	if err != nil {
		return fmt.Errorf("filter validator statuses: %w", err)
	}

	var lastErr error
	for validatorIndex := range byValidator {
		if !active[validatorIndex] {
			continue
		}
		shares := byValidator[validatorIndex]
		if len(shares) < committee.ExitSignatureRecoverThreshold {
			d.log.Warn("insufficient exit shares for validator, skipping", "validator_index", validatorIndex, "have", len(shares), "need", committee.ExitSignatureRecoverThreshold)
			continue
		}

		signature, err := bls.Recombine(shares, committee.ExitSignatureRecoverThreshold)
		if err != nil {
			d.log.Error(err, "recombine exit signature failed", "validator_index", validatorIndex)
			lastErr = err
			continue
		}

		if err := d.submit(ctx, checkpoint.Epoch, validatorIndex, hexutil.Encode(signature)); err != nil {
			d.log.Error(err, "submit voluntary exit failed", "validator_index", validatorIndex)
			lastErr = err
			continue
		}

		metrics.ProcessedExits.Inc()
		d.log.Info("validator exit submitted", "validator_index", validatorIndex, "epoch", checkpoint.Epoch)
	}
	return lastErr
}

// fetchShares fans out FetchExitShares across every oracle (trying each
// oracle's endpoints in order until one answers), stamping each share with the oracle's 0-based committee position as its
// Shamir share index (spec §4.8 "share_index = oracle's committee index"),
// and groups the results by validator index.
func (d *Exits) fetchShares(ctx context.Context, committee oracles.Committee) map[uint64][]bls.Share {
	type indexedOracle struct {
		index  int
		oracle oracles.Oracle
	}
	indexed := make([]indexedOracle, len(committee.Oracles))
	for i, o := range committee.Oracles {
		indexed[i] = indexedOracle{index: i, oracle: o}
	}

	perOracle := fanout.Collect(indexed, func(io indexedOracle) ([]ExitShare, error) {
		for _, endpoint := range io.oracle.Endpoints {
			shares, err := FetchExitShares(ctx, d.http, endpoint)
			if err == nil {
				return shares, nil
			}
		}
		return nil, fmt.Errorf("oracle %s: all endpoints failed", io.oracle.Address.Hex())
	})

	byValidator := make(map[uint64][]bls.Share)
	for i, r := range perOracle {
		if r.Err != nil {
			continue
		}
		shareIndex := indexed[i].index
		for _, s := range r.Value {
			byValidator[s.ValidatorIndex] = append(byValidator[s.ValidatorIndex], bls.Share{
				Index:     shareIndex,
				Signature: s.SignatureShare,
			})
		}
	}
	return byValidator
}

// filterActive batch-queries validator statuses at the finalized state in
// chunks of ValidatorsFetchChunkSize, returning the subset that is not
// already exiting/exited/withdrawn.
func (d *Exits) filterActive(ctx context.Context, indices []uint64) (map[uint64]bool, error) {
	active := make(map[uint64]bool, len(indices))
	for start := 0; start < len(indices); start += ValidatorsFetchChunkSize {
		end := start + ValidatorsFetchChunkSize
		if end > len(indices) {
			end = len(indices)
		}
		statuses, err := d.consensus.GetValidatorsByIDs(ctx, "finalized", indices[start:end])
		if err != nil {
			return nil, err
		}
		for _, s := range statuses {
			if !exitedStatuses[s.Status] {
				active[s.Index] = true
			}
		}
	}
	return active, nil
}

// submit attempts the voluntary exit at the current fork epoch, retrying
// once at the previous fork epoch on a client-response (4xx) error — fork
// boundaries make the same signature valid against either version (spec
// §4.8 "Submission").
func (d *Exits) submit(ctx context.Context, currentEpoch uint64, validatorIndex uint64, signatureHex string) error {
	err := d.consensus.SubmitVoluntaryExit(ctx, currentEpoch, validatorIndex, signatureHex)
	if err == nil {
		return nil
	}

	var clientErr *consensus.ClientResponseError
	if !errors.As(err, &clientErr) {
		return err
	}

	previousEpoch, err := d.previousForkEpoch(ctx, currentEpoch)
	if err != nil {
		return fmt.Errorf("derive previous fork epoch: %w", err)
	}
	return d.consensus.SubmitVoluntaryExit(ctx, previousEpoch, validatorIndex, signatureHex)
}

// previousForkEpoch derives the previous fork's epoch by querying fork
// data at the last slot of epoch-1 (spec §4.8). Beacon epochs are
// 32-slot windows; the last slot of epoch e-1 is e*32-1.
func (d *Exits) previousForkEpoch(ctx context.Context, currentEpoch uint64) (uint64, error) {
	const slotsPerEpoch = 32
	lastSlotOfPreviousEpoch := currentEpoch*slotsPerEpoch - 1
	forkData, err := d.consensus.GetForkData(ctx, fmt.Sprintf("%d", lastSlotOfPreviousEpoch))
	if err != nil {
		return 0, err
	}
	return forkData.Epoch, nil
}
