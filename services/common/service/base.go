package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/compliance_layer/internal/logging"
)

const healthCheckTimeout = 5 * time.Second

// HealthProbe reports whether a dependency is reachable.
type HealthProbe func(ctx context.Context) error

// BaseConfig contains shared configuration for all services.
type BaseConfig struct {
	ID      string
	Name    string
	Version string
	Logger  *logging.Logger
	// Probes are checked on every /health request. A failing probe marks the
	// service unhealthy.
	Probes map[string]HealthProbe
}

// BaseService provides the foundation shared by services:
// - a gorilla/mux router with standard /health and /info routes
// - safe stop channel management (sync.Once prevents double-close panic)
// - an optional hydration hook run once on Start
// - background workers that are awaited on Stop
// - a statistics provider for the /info endpoint
type BaseService struct {
	id      string
	name    string
	version string
	router  *mux.Router
	logger  *logging.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	hydrate func(context.Context) error
	statsFn func() map[string]any

	workers []func(context.Context)

	probes          map[string]HealthProbe
	healthMu        sync.RWMutex
	probeErrors     map[string]string
	lastHealthCheck time.Time
	startTime       time.Time
}

// NewBase constructs a BaseService from shared config.
func NewBase(cfg BaseConfig) *BaseService {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDefault(cfg.Name)
	}
	probes := make(map[string]HealthProbe, len(cfg.Probes))
	for name, probe := range cfg.Probes {
		if probe != nil {
			probes[name] = probe
		}
	}
	return &BaseService{
		id:          cfg.ID,
		name:        cfg.Name,
		version:     cfg.Version,
		router:      mux.NewRouter(),
		logger:      logger,
		stopCh:      make(chan struct{}),
		probes:      probes,
		probeErrors: map[string]string{},
	}
}

func (b *BaseService) ID() string              { return b.id }
func (b *BaseService) Name() string            { return b.name }
func (b *BaseService) Version() string         { return b.version }
func (b *BaseService) Router() *mux.Router     { return b.router }
func (b *BaseService) Logger() *logging.Logger { return b.logger }

// WithHydrate sets an optional hook executed during Start before workers
// are launched.
func (b *BaseService) WithHydrate(fn func(context.Context) error) *BaseService {
	b.hydrate = fn
	return b
}

// WithStats sets a statistics provider for the /info endpoint.
func (b *BaseService) WithStats(fn func() map[string]any) *BaseService {
	b.statsFn = fn
	return b
}

// AddWorker registers a background worker started after hydrate completes.
// Workers should return when ctx is done or StopChan is closed.
func (b *BaseService) AddWorker(fn func(context.Context)) *BaseService {
	b.workers = append(b.workers, fn)
	return b
}

// AddTickerWorker registers a worker that calls fn every interval until Stop.
func (b *BaseService) AddTickerWorker(interval time.Duration, fn func(context.Context) error) *BaseService {
	worker := func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					b.logger.Entry(ctx).WithError(err).Warn("worker error")
				}
			}
		}
	}
	b.workers = append(b.workers, worker)
	return b
}

// StopChan exposes the stop channel for worker goroutines.
func (b *BaseService) StopChan() <-chan struct{} {
	return b.stopCh
}

// Start runs hydrate once, then spins workers.
func (b *BaseService) Start(ctx context.Context) error {
	b.healthMu.Lock()
	if b.startTime.IsZero() {
		b.startTime = time.Now()
	}
	b.healthMu.Unlock()

	if b.hydrate != nil {
		if err := b.hydrate(ctx); err != nil {
			return fmt.Errorf("hydrate: %w", err)
		}
	}

	for _, w := range b.workers {
		worker := w
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			worker(ctx)
		}()
	}
	return nil
}

// Stop signals workers and waits for them to return. It is idempotent.
func (b *BaseService) Stop() error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	b.wg.Wait()
	return nil
}

// WorkerCount returns the number of registered workers.
func (b *BaseService) WorkerCount() int {
	return len(b.workers)
}

// CheckHealth refreshes the cached health state by running every probe.
func (b *BaseService) CheckHealth(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	failures := make(map[string]string)
	for name, probe := range b.probes {
		if err := probe(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	b.healthMu.Lock()
	b.probeErrors = failures
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()
}

// HealthStatus probes dependencies and returns "healthy" or "unhealthy".
func (b *BaseService) HealthStatus(ctx context.Context) string {
	b.CheckHealth(ctx)
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	if len(b.probeErrors) > 0 {
		return "unhealthy"
	}
	return "healthy"
}

// HealthDetails describes the most recent health state.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	names := make([]string, 0, len(b.probes))
	for name := range b.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	for _, name := range names {
		if msg, failed := b.probeErrors[name]; failed {
			checks[name] = msg
		} else {
			checks[name] = "ok"
		}
	}

	details := map[string]any{"checks": checks}
	if !b.lastHealthCheck.IsZero() {
		details["last_check"] = b.lastHealthCheck.Format(time.RFC3339)
	}
	uptime := time.Duration(0)
	if !b.startTime.IsZero() {
		uptime = time.Since(b.startTime)
	}
	details["uptime"] = uptime.Truncate(time.Second).String()
	return details
}
