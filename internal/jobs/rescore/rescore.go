// Package rescore periodically re-evaluates pending items whose spam verdict has gone stale.
package rescore

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var rescoredCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "forummod_rescore_items_total",
	Help: "number of pending items re-evaluated by the rescore job",
})

var runFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "forummod_rescore_failures_total",
	Help: "number of rescore job runs that returned an error",
})

type staleRescorer interface {
	RescoreStale(ctx context.Context, staleBefore time.Time, batchSize int) (int, error)
}

type Job struct {
	service   staleRescorer
	maxAge    time.Duration
	batchSize int
	now       func() time.Time
	logger    *zap.Logger
}

func New(service staleRescorer, maxAge time.Duration, batchSize int, logger *zap.Logger) *Job {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		service:   service,
		maxAge:    maxAge,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger,
	}
}

// Run performs one pass over the pending queue.
func (j *Job) Run(ctx context.Context) error {
	if j.service == nil {
		return nil
	}

	cutoff := j.now().Add(-j.maxAge)
	touched, err := j.service.RescoreStale(ctx, cutoff, j.batchSize)
	if touched > 0 {
		rescoredCount.Add(float64(touched))
	}
	if err != nil {
		runFailures.Inc()
		return fmt.Errorf("rescore stale verdicts: %w", err)
	}

	if touched > 0 {
		j.logger.Info("rescore stale verdicts completed", zap.Int("rescored", touched), zap.Time("cutoff", cutoff))
	}
	return nil
}

// Start runs the job every interval until ctx is done. Failed runs are logged and retried on the
// next tick.
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Warn("rescore job run failed", zap.Error(err))
			}
		}
	}
}
