// Package scheduler implements the keeper's cooperative tick loop: load the
// protocol config fresh, fan out to every enabled duty concurrently without
// letting one duty's failure cancel another, then sleep out the remainder
// of the block period. Loop shape grounded on the teacher's
// faucet/backend/pkg/monitor.BalanceMonitor ticker/select pattern.
package scheduler

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oracle-committee/keeper/internal/fanout"
	"github.com/oracle-committee/keeper/internal/logging"
	"github.com/oracle-committee/keeper/internal/metrics"
	"github.com/oracle-committee/keeper/internal/oracles"
)

// Duty is the uniform shape every duty pipeline satisfies: run one tick
// against the loaded committee, returning whatever error it hit.
type Duty interface {
	Run(ctx context.Context, committee oracles.Committee) error
}

// NamedDuty pairs a duty with the name its errors are logged under.
type NamedDuty struct {
	Name string
	Duty Duty
}

// committeeLoader is the subset of *oracles.Loader the scheduler needs.
type committeeLoader interface {
	Load(ctx context.Context) (oracles.Committee, error)
}

// balanceReader is the subset of *ethchain.Client the scheduler needs for
// the keeper_balance metric.
type balanceReader interface {
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)
}

// Scheduler drives the tick loop described in spec §4.11/§5.
type Scheduler struct {
	loader          committeeLoader
	duties          []NamedDuty
	chain           balanceReader
	keeperAddr      common.Address
	secondsPerBlock time.Duration
	emptyRetryWait  time.Duration
	log             *logging.Logger
}

// New builds a Scheduler. duties are run concurrently every tick
// that the committee loads successfully; callers build this slice from the
// static per-network gating table (spec §4.11) before calling New.
func New(loader committeeLoader, duties []NamedDuty, chain balanceReader, keeperAddr common.Address, secondsPerBlock time.Duration, log *logging.Logger) *Scheduler {
	return &Scheduler{
		loader:          loader,
		duties:          duties,
		chain:           chain,
		keeperAddr:      keeperAddr,
		secondsPerBlock: secondsPerBlock,
		emptyRetryWait:  emptyCommitteeRetryWait,
		log:             log,
	}
}

// emptyCommitteeRetryWait is the fixed sleep when a tick finds no oracle
// committee to serve (spec §4.11 step 2: "sleep 60s and continue"), or
// fails to load the protocol config at all.
const emptyCommitteeRetryWait = 60 * time.Second

// Run drives the loop until ctx is cancelled (SIGINT/SIGTERM upstream).
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		s.tick(ctx)
		if ctx.Err() != nil {
			return nil
		}

		elapsed := time.Since(start)
		sleep := s.secondsPerBlock - elapsed
		if sleep < 0 {
			sleep = 0
		}
		if err := interruptibleSleep(ctx, sleep); err != nil {
			return nil
		}
	}
}

// tick runs a single iteration: load committee, fan out duties, update the
// balance metric.
func (s *Scheduler) tick(ctx context.Context) {
	committee, err := s.loader.Load(ctx)
	if err != nil {
		if err == oracles.ErrEmptyCommittee {
			s.log.Warn("empty oracle committee, skipping tick")
		} else {
			s.log.Error(err, "failed to load protocol config")
		}
		_ = interruptibleSleep(ctx, s.emptyRetryWait)
		return
	}

	s.runDuties(ctx, committee)
	s.updateBalanceMetric(ctx)
}

// runDuties fans out every configured duty concurrently; no duty's failure
// aborts another's (spec §5 "gather that does not cancel siblings").
func (s *Scheduler) runDuties(ctx context.Context, committee oracles.Committee) {
	results := fanout.Collect(s.duties, func(nd NamedDuty) (struct{}, error) {
		return struct{}{}, nd.Duty.Run(ctx, committee)
	})
	for i, r := range results {
		if r.Err != nil {
			s.log.Error(r.Err, "duty failed", "duty", s.duties[i].Name)
		}
	}
}

func (s *Scheduler) updateBalanceMetric(ctx context.Context) {
	balance, err := s.chain.GetBalance(ctx, s.keeperAddr)
	if err != nil {
		s.log.Warn("failed to read keeper balance", "error", err.Error())
		return
	}
	balanceFloat, _ := new(big.Float).SetInt(balance).Float64()
	metrics.UpdateKeeperBalance(balanceFloat)
}

// interruptibleSleep sleeps for d, returning early with ctx.Err() if ctx is
// cancelled first (spec §5 "preemptible by shutdown signal").
func interruptibleSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
