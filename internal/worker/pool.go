package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned when the job queue cannot accept more work.
var ErrQueueFull = errors.New("worker queue is full")

// WorkingPool runs analysis jobs on a fixed set of workers. Jobs are
// bounded by a per-job timeout and a panicking job never takes a worker
// down with it.
type WorkingPool struct {
	NumWorkers int
	jobTimeout time.Duration
	jobChan    chan Job
}

func NewWorkingPool(numWorkers, queueSize int, jobTimeout time.Duration) *WorkingPool {
	return &WorkingPool{
		NumWorkers: numWorkers,
		jobTimeout: jobTimeout,
		jobChan:    make(chan Job, queueSize),
	}
}

// TrySubmit enqueues a job without blocking; a full queue is reported to
// the caller so the trigger can be retried later.
func (p *WorkingPool) TrySubmit(job Job) error {
	select {
	case p.jobChan <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start runs the workers until ctx is canceled, then drains and stops.
func (p *WorkingPool) Start(ctx context.Context, managerWg *sync.WaitGroup) {
	defer managerWg.Done()

	var workerWg sync.WaitGroup
	for i := range p.NumWorkers {
		workerWg.Add(1)
		go p.worker(ctx, &workerWg, i+1)
	}

	<-ctx.Done()

	slog.Info("Worker pool shutdown signaled, closing job channel")
	close(p.jobChan)

	workerWg.Wait()
	slog.Info("All workers stopped")
}

func (p *WorkingPool) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()
	slog.Info("Worker started", "worker_id", id)

	for {
		select {
		case job, ok := <-p.jobChan:
			if !ok {
				slog.Info("Job channel closed, worker exiting", "worker_id", id)
				return
			}
			p.safeExecution(ctx, job, id)

		case <-ctx.Done():
			slog.Info("Context canceled, worker exiting", "worker_id", id)
			return
		}
	}
}

func (p *WorkingPool) safeExecution(ctx context.Context, job Job, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic recovered in job", "worker_id", workerID, "panic", r)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	started := time.Now()
	if err := job(jobCtx); err != nil {
		slog.Error("Job failed", "worker_id", workerID, "error", err,
			"duration", time.Since(started).Round(time.Millisecond))
		return
	}
	slog.Info("Job finished", "worker_id", workerID,
		"duration", time.Since(started).Round(time.Millisecond))
}
