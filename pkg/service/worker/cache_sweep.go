package worker

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/utils/logging"
)

const DefaultSweepInterval = time.Hour

// CacheSweepWorker periodically drops stale entries from the namespace cache. The cache
// owns no timers of its own, so this worker is the only thing that calls Sweep.
type CacheSweepWorker struct {
	cache    interfaces.NamespaceCache
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

type Option func(*CacheSweepWorker)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(w *CacheSweepWorker) {
		w.now = now
	}
}

// NewCacheSweepWorker creates a worker sweeping cache every interval
func NewCacheSweepWorker(cache interfaces.NamespaceCache, interval time.Duration, opts ...Option) *CacheSweepWorker {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	w := &CacheSweepWorker{
		cache:    cache,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the sweep loop in a background goroutine
func (w *CacheSweepWorker) Start(ctx context.Context) error {
	logging.Default().Info("Namespace cache sweep worker starting",
		"interval", w.interval.String())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *CacheSweepWorker) Stop() {
	w.stopOnce.Do(func() {
		logging.Default().Info("Namespace cache sweep worker stopping")
		close(w.stopCh)
	})
	<-w.doneCh
	logging.Default().Info("Namespace cache sweep worker stopped")
}

func (w *CacheSweepWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				logging.Default().Error("Namespace cache sweep failed (will retry next interval)",
					logging.ErrAttr(err))
			}

		case <-w.stopCh:
			return

		case <-ctx.Done():
			logging.Default().Info("Namespace cache sweep worker context cancelled")
			return
		}
	}
}

func (w *CacheSweepWorker) sweep(ctx context.Context) error {
	removed, err := w.cache.Sweep(ctx, w.now())
	if err != nil {
		return goerr.Wrap(err, "failed to sweep namespace cache")
	}
	if removed > 0 {
		logging.Default().Debug("Namespace cache swept", "removed", removed)
	}
	return nil
}
