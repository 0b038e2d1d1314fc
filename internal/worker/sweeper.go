package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"authflow-go/internal/metrics"

	"github.com/sirupsen/logrus"
)

// Expirer is anything that can drop its expired entries.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically submits a cleanup task per registered store to a
// worker pool.
type Sweeper struct {
	pool     *WorkerPool
	interval time.Duration
	logger   logrus.FieldLogger

	mu      sync.Mutex
	targets map[string]Expirer
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(pool *WorkerPool, interval time.Duration, logger logrus.FieldLogger) *Sweeper {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sweeper{
		pool:     pool,
		interval: interval,
		logger:   logger.WithField("component", "sweeper"),
		targets:  make(map[string]Expirer),
	}
}

// Register adds a store under name, which is also its metrics label.
func (s *Sweeper) Register(name string, target Expirer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[name] = target
}

// Start runs the sweep loop until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("sweeper: interval must be positive, got %s", s.interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("sweeper: already started")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepNow()
			}
		}
	}()
	return nil
}

// Stop ends the sweep loop and waits for it to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SweepNow queues one cleanup task per registered store and reports how many
// were accepted by the pool.
func (s *Sweeper) SweepNow() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	queued := 0
	for name, target := range s.targets {
		if s.pool.Submit(newSweepTask(name, target, s.logger)) {
			queued++
			continue
		}
		s.logger.WithField("store", name).Warn("Sweep skipped, worker queue is full")
	}
	return queued
}

func newSweepTask(name string, target Expirer, logger logrus.FieldLogger) Task {
	return TaskFunc(func(ctx context.Context) error {
		n, err := target.DeleteExpired(ctx)
		if err != nil {
			metrics.SweepsFailed.WithLabelValues(name).Inc()
			logger.WithError(err).WithField("store", name).Error("Failed to delete expired entries")
			return err
		}
		if n > 0 {
			metrics.RecordsSwept.WithLabelValues(name).Add(float64(n))
			logger.WithFields(logrus.Fields{"store": name, "deleted": n}).Debug("Deleted expired entries")
		}
		return nil
	})
}
