// Package server exposes the gas certificate checker over HTTP and runs it
// on a cron schedule.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/compliance_layer/internal/logging"
	"github.com/R3E-Network/compliance_layer/internal/metrics"
	"github.com/R3E-Network/compliance_layer/internal/middleware"
	"github.com/R3E-Network/compliance_layer/services/common/service"
	"github.com/R3E-Network/compliance_layer/services/gaschecker"
)

const (
	ServiceID   = "gaschecker"
	ServiceName = "Gas Certificate Checker"
	Version     = "1.0.0"

	DefaultSchedule = "0 * * * *"
	DefaultTimezone = "Europe/London"

	rateLimitCleanupInterval = 10 * time.Minute

	// writeMargin covers encoding the run result after the runner returns.
	writeMargin = 5 * time.Second
)

// Config holds the collaborators and settings of the HTTP service.
type Config struct {
	Runner       *gaschecker.Runner
	Certificates gaschecker.CertificateRepository
	AuditLog     gaschecker.AuditLog
	Metrics      *metrics.Metrics
	Logger       *logging.Logger

	// Schedule is a standard five-field cron expression.
	Schedule   string
	Location   *time.Location
	RunOnStart bool

	Backend        string
	LookaheadDays  int
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int

	// RunTimeout bounds a manual run. It defaults to the runner's budget.
	RunTimeout time.Duration

	Probes map[string]service.HealthProbe
}

// Service serves the gas checker API and owns its scheduler.
type Service struct {
	*service.BaseService

	runner   *gaschecker.Runner
	certs    gaschecker.CertificateRepository
	audit    gaschecker.AuditLog
	metrics  *metrics.Metrics
	requests *service.ServiceMetrics
	limiter  *middleware.RateLimiter
	cron     *cron.Cron
	handler  http.Handler

	schedule      string
	location      *time.Location
	runOnStart    bool
	backend       string
	lookaheadDays int
	runTimeout    time.Duration
}

// New creates the service and registers its routes and scheduled job.
func New(cfg Config) (*Service, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("server: runner is required")
	}
	if cfg.Certificates == nil || cfg.AuditLog == nil {
		return nil, fmt.Errorf("server: certificate repository and audit log are required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Location == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			return nil, fmt.Errorf("load default timezone: %w", err)
		}
		cfg.Location = loc
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.LookaheadDays <= 0 {
		cfg.LookaheadDays = int(gaschecker.DefaultLookahead / (24 * time.Hour))
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 1
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = cfg.Runner.Budget()
	}

	base := service.NewBase(service.BaseConfig{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
		Logger:  cfg.Logger,
		Probes:  cfg.Probes,
	})

	s := &Service{
		BaseService:   base,
		runner:        cfg.Runner,
		certs:         cfg.Certificates,
		audit:         cfg.AuditLog,
		metrics:       cfg.Metrics,
		requests:      service.NewServiceMetrics(ServiceID),
		limiter:       middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, base.Logger()),
		schedule:      cfg.Schedule,
		location:      cfg.Location,
		runOnStart:    cfg.RunOnStart,
		backend:       cfg.Backend,
		lookaheadDays: cfg.LookaheadDays,
		runTimeout:    cfg.RunTimeout,
	}

	cronLog := cronLogger{logger: base.Logger()}
	s.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog)),
	)
	if _, err := s.cron.AddFunc(cfg.Schedule, s.scheduledRun); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	base.WithStats(s.statistics)
	base.AddWorker(s.runLimiterCleanup)
	if cfg.RunOnStart {
		base.AddWorker(func(ctx context.Context) {
			s.trigger(context.WithoutCancel(ctx), gaschecker.TriggerStartup)
		})
	}

	router := base.Router()
	router.Use(middleware.MetricsMiddleware(ServiceID, s.metrics))
	router.Use(s.requests.Middleware)
	base.RegisterStandardRoutes()
	s.registerRoutes()

	s.handler = middleware.NewAccessLog(base.Logger()).Handler(
		middleware.NewCORSMiddleware(cfg.AllowedOrigins).Handler(router),
	)
	return s, nil
}

// Handler returns the root HTTP handler. Access logging and CORS wrap the router so
// they also apply to preflight and unmatched requests.
func (s *Service) Handler() http.Handler {
	return s.handler
}

// WriteTimeout is the smallest http.Server WriteTimeout that still lets a
// manual run deliver its response, error responses included.
func (s *Service) WriteTimeout() time.Duration {
	return s.runTimeout + writeMargin
}

// NextRun reports when the scheduler fires next. It is zero before Start.
func (s *Service) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Service) statistics() map[string]any {
	stats := map[string]any{
		"certificate_set": s.runner.CertificateSet(),
		"schedule":        s.schedule,
		"timezone":        s.location.String(),
		"backend":         s.backend,
		"lookahead_days":  s.lookaheadDays,
		"run_on_start":    s.runOnStart,
		"runs":            s.runner.Stats(),
		"requests":        s.requests.Export(),
	}
	if next := s.NextRun(); !next.IsZero() {
		stats["next_run"] = next.Format(time.RFC3339)
	}
	if last := s.runner.LastResult(); last != nil {
		stats["last_run"] = map[string]any{
			"timestamp": last.Timestamp.UTC().Format(time.RFC3339),
			"trigger":   last.Trigger,
			"total":     last.TotalCertificates,
			"alerts":    len(last.Alerts),
			"counts":    last.Counts(),
			"degraded":  last.Degraded,
		}
	}
	return stats
}
