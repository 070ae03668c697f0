/*
scheduler.go - Automated balance sweep scheduler

PURPOSE:
  Periodically retries open inconsistencies and recomputes the stored
  balance of every active employee, so accruals advance without anyone
  touching a request.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs once immediately on start
  - Overlapping runs are impossible: the next tick waits for the current run
  - Stop cancels an in-flight run and waits for it to return

USAGE:
  scheduler := NewBalanceScheduler(service, time.Hour, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Sweep endpoint (manual run)
  - leave/saga.go: Service.Sweep
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
)

// Sweeper is the part of leave.Service the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context) (leave.SweepResult, error)
}

// BalanceScheduler runs Sweep on an interval.
type BalanceScheduler struct {
	Sweeper  Sweeper
	Interval time.Duration
	Enabled  bool

	logger *slog.Logger
	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex // guards Start/Stop

	lastMu  sync.Mutex
	lastRun time.Time
}

// NewBalanceScheduler creates an enabled scheduler.
func NewBalanceScheduler(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *BalanceScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &BalanceScheduler{
		Sweeper:  sweeper,
		Interval: interval,
		Enabled:  true,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (bs *BalanceScheduler) Start() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.Enabled {
		bs.logger.Info("scheduler disabled, not starting")
		return
	}
	if bs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	bs.cancel = cancel
	bs.ticker = time.NewTicker(bs.Interval)
	bs.wg.Add(1)

	go bs.run(ctx, bs.ticker)

	bs.logger.Info("scheduler started", "interval", bs.Interval)
}

// Stop stops the scheduler and waits for an in-flight run.
func (bs *BalanceScheduler) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.ticker == nil {
		return
	}
	bs.ticker.Stop()
	bs.cancel()
	bs.wg.Wait()
	bs.ticker = nil
	bs.logger.Info("scheduler stopped")
}

func (bs *BalanceScheduler) run(ctx context.Context, ticker *time.Ticker) {
	defer bs.wg.Done()

	bs.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			bs.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (bs *BalanceScheduler) sweep(ctx context.Context) {
	res, err := bs.Sweeper.Sweep(ctx)
	bs.setLastRun(time.Now())
	if err != nil {
		if ctx.Err() == nil {
			bs.logger.Error("sweep failed", "error", err,
				"processed", res.Processed, "failed", res.Failed, "reconciled", res.Reconciled)
		}
		return
	}
	bs.logger.Info("sweep completed",
		"processed", res.Processed,
		"failed", res.Failed,
		"reconciled", res.Reconciled,
		"duration", res.Duration,
	)
}

// RunNow triggers an immediate sweep on the caller's goroutine.
func (bs *BalanceScheduler) RunNow(ctx context.Context) {
	bs.sweep(ctx)
}

// LastRun returns when the last sweep finished; zero if none has.
func (bs *BalanceScheduler) LastRun() time.Time {
	bs.lastMu.Lock()
	defer bs.lastMu.Unlock()
	return bs.lastRun
}

func (bs *BalanceScheduler) setLastRun(t time.Time) {
	bs.lastMu.Lock()
	defer bs.lastMu.Unlock()
	bs.lastRun = t
}
