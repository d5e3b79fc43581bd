package worker

import (
	"context"
	"log/slog"
	"time"
)

type farmLister interface {
	ListFarmIDs(ctx context.Context) ([]string, error)
}

type farmAnalyzer interface {
	AnalyzeFarm(ctx context.Context, farmID string) error
}

// Scheduler enqueues an analysis run for every farm on a fixed interval.
// Farms already running (lock held by another replica or a manual
// trigger) are skipped and picked up on the next tick.
type Scheduler struct {
	interval time.Duration
	farms    farmLister
	analyzer farmAnalyzer
	pool     *WorkingPool
	lock     *RunLock
}

func NewScheduler(interval time.Duration, farms farmLister, analyzer farmAnalyzer, pool *WorkingPool, lock *RunLock) *Scheduler {
	return &Scheduler{
		interval: interval,
		farms:    farms,
		analyzer: analyzer,
		pool:     pool,
		lock:     lock,
	}
}

// Run ticks until ctx is canceled. The first sweep happens one full
// interval after start; manual triggers cover the gap.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("Scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			slog.Info("Scheduler shutting down")
			return
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	ids, err := s.farms.ListFarmIDs(ctx)
	if err != nil {
		slog.Error("Scheduler failed to list farms", "error", err)
		return
	}
	slog.Info("Scheduler sweep started", "farms", len(ids))

	for _, farmID := range ids {
		if err := s.enqueue(ctx, farmID); err != nil {
			slog.Warn("Scheduler failed to enqueue farm", "farm_id", farmID, "error", err)
		}
	}
}

// Enqueue submits one farm's analysis run, guarded by the per-farm lock.
// It is shared with the manual trigger endpoint.
func (s *Scheduler) Enqueue(ctx context.Context, farmID string) error {
	return s.enqueue(ctx, farmID)
}

func (s *Scheduler) enqueue(ctx context.Context, farmID string) error {
	release, ok, err := s.lock.Acquire(ctx, farmID)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Run already in progress, skipping", "farm_id", farmID)
		return nil
	}

	err = s.pool.TrySubmit(func(jobCtx context.Context) error {
		defer release()
		return s.analyzer.AnalyzeFarm(jobCtx, farmID)
	})
	if err != nil {
		release()
		return err
	}
	return nil
}
