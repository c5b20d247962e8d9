package gaschecker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	svcerrors "github.com/R3E-Network/compliance_layer/internal/errors"
	"github.com/R3E-Network/compliance_layer/internal/logging"
	"github.com/R3E-Network/compliance_layer/internal/metrics"
	"github.com/R3E-Network/compliance_layer/internal/runlock"
)

// Run outcomes used as metric labels.
const (
	OutcomeSuccess  = "success"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// RunnerConfig controls timeouts and retries around one run.
type RunnerConfig struct {
	CertificateSet string
	FetchTimeout   time.Duration
	FetchRetries   int
	RetryBackoff   time.Duration
	AuditTimeout   time.Duration
	NotifyTimeout  time.Duration
	LockTimeout    time.Duration
}

func (c *RunnerConfig) applyDefaults() {
	if c.CertificateSet == "" {
		c.CertificateSet = "default"
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.FetchRetries < 0 {
		c.FetchRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}
	if c.AuditTimeout <= 0 {
		c.AuditTimeout = 10 * time.Second
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 10 * time.Second
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 30 * time.Second
	}
}

// Budget is the longest a single Run can take: the lock wait, every fetch
// attempt with its backoff, then the audit and notify deadlines.
func (c RunnerConfig) Budget() time.Duration {
	d := c.LockTimeout + time.Duration(c.FetchRetries+1)*c.FetchTimeout
	for attempt := 0; attempt < c.FetchRetries; attempt++ {
		d += c.RetryBackoff * time.Duration(1<<attempt)
	}
	return d + c.AuditTimeout + c.NotifyTimeout
}

// RunnerDeps are the collaborators of a Runner. Certificates and AuditLog are
// required.
type RunnerDeps struct {
	Certificates CertificateRepository
	AuditLog     AuditLog
	Evaluator    ComplianceEvaluator
	Locker       runlock.Locker
	Notifier     Notifier
	Metrics      *metrics.Metrics
	Logger       *logging.Logger
	Clock        func() time.Time
}

// RunStats summarises the runs executed by a Runner.
type RunStats struct {
	TotalRuns    int64      `json:"total_runs"`
	FailedRuns   int64      `json:"failed_runs"`
	SkippedRuns  int64      `json:"skipped_runs"`
	DegradedRuns int64      `json:"degraded_runs"`
	AuditErrors  int64      `json:"audit_errors"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	LastAlerts   int        `json:"last_alerts"`
	LastTrigger  Trigger    `json:"last_trigger,omitempty"`
}

// Runner executes fetch, evaluate, audit and notify for one certificate set.
type Runner struct {
	cfg       RunnerConfig
	certs     CertificateRepository
	audit     AuditLog
	evaluator ComplianceEvaluator
	locker    runlock.Locker
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *logging.Logger
	now       func() time.Time

	mu    sync.RWMutex
	stats RunStats
	last  *Result
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig, deps RunnerDeps) (*Runner, error) {
	if deps.Certificates == nil {
		return nil, fmt.Errorf("gaschecker: certificate repository is required")
	}
	if deps.AuditLog == nil {
		return nil, fmt.Errorf("gaschecker: audit log is required")
	}
	cfg.applyDefaults()

	if deps.Evaluator == nil {
		deps.Evaluator = NewEvaluator(DefaultLookahead)
	}
	if deps.Locker == nil {
		deps.Locker = runlock.NewLocalLocker()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewDefault("gaschecker")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	return &Runner{
		cfg:       cfg,
		certs:     deps.Certificates,
		audit:     deps.AuditLog,
		evaluator: deps.Evaluator,
		locker:    deps.Locker,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Clock,
	}, nil
}

// CertificateSet returns the name of the set this runner evaluates.
func (r *Runner) CertificateSet() string {
	return r.cfg.CertificateSet
}

// Budget returns the worst-case duration of one Run.
func (r *Runner) Budget() time.Duration {
	return r.cfg.Budget()
}

// Run executes one evaluation. The returned error is always a
// *svcerrors.ServiceError: DataAccess when the store could not be read,
// Unavailable when another run of the same set held the lock too long.
// Evaluation faults do not fail the run; they produce a degraded result.
func (r *Runner) Run(ctx context.Context, trigger Trigger) (*Result, error) {
	if logging.TraceID(ctx) == "" {
		ctx = logging.WithTraceID(ctx, logging.NewTraceID())
	}
	log := r.logger.Entry(ctx).WithFields(logrus.Fields{
		"trigger":         trigger,
		"certificate_set": r.cfg.CertificateSet,
	})
	started := time.Now()

	lock, err := r.acquire(ctx)
	if err != nil {
		log.WithError(err).Warn("gas checker run skipped")
		r.finish(trigger, OutcomeSkipped, started, nil, err)
		return nil, err
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			log.WithError(relErr).Warn("failed to release run lock")
		}
	}()

	log.Info("starting gas certificate checker")

	certs, err := r.fetch(ctx, log)
	if err != nil {
		log.WithError(err).Error("failed to fetch certificates")
		r.finish(trigger, OutcomeFailed, started, nil, err)
		return nil, err
	}

	result := r.evaluate(r.now(), certs, log)
	result.Trigger = trigger

	for _, alert := range result.Alerts {
		log.WithField("alert", alert).Warn("gas certificate alert")
	}
	log.WithFields(logrus.Fields{
		"total":           result.TotalCertificates,
		"valid":           result.ValidCertificates,
		"expiring_soon":   result.ExpiringSoon,
		"expired":         result.ExpiredCertificates,
		"missing_uploads": result.MissingUploads,
		"invalid":         result.InvalidCertificates,
		"degraded":        result.Degraded,
	}).Info("gas checker completed")

	r.saveAudit(ctx, result, log)
	r.notify(ctx, result, log)

	outcome := OutcomeSuccess
	if result.Degraded {
		outcome = OutcomeDegraded
	}
	r.finish(trigger, outcome, started, result, nil)
	return result, nil
}

func (r *Runner) acquire(ctx context.Context) (runlock.Lock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, r.cfg.LockTimeout)
	defer cancel()

	lock, err := r.locker.Acquire(lockCtx, "gaschecker:"+r.cfg.CertificateSet)
	if err == nil {
		return lock, nil
	}
	if errors.Is(err, runlock.ErrNotAcquired) {
		return nil, svcerrors.Unavailable(
			fmt.Sprintf("a run for certificate set %q is already in progress", r.cfg.CertificateSet), err)
	}
	return nil, svcerrors.Unavailable("run lock unavailable", err)
}

func (r *Runner) fetch(ctx context.Context, log *logrus.Entry) ([]Certificate, error) {
	for attempt := 0; ; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
		certs, err := r.certs.List(fetchCtx)
		cancel()
		if err == nil {
			return certs, nil
		}

		transient := isTransient(err) && ctx.Err() == nil
		if !transient || attempt >= r.cfg.FetchRetries {
			return nil, asDataAccess(err, transient)
		}

		if r.metrics != nil {
			r.metrics.RecordFetchRetry()
		}
		log.WithError(err).WithField("attempt", attempt+1).Warn("transient certificate fetch failure, retrying")

		select {
		case <-ctx.Done():
			return nil, asDataAccess(ctx.Err(), false)
		case <-time.After(r.cfg.RetryBackoff * time.Duration(1<<attempt)):
		}
	}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return svcerrors.IsRetryable(err)
}

func asDataAccess(err error, retryable bool) error {
	var se *svcerrors.ServiceError
	if errors.As(err, &se) && se.Code == svcerrors.CodeDataAccess {
		return se
	}
	return svcerrors.DataAccess("failed to fetch certificates", err, retryable)
}

// evaluate isolates evaluator panics into a degraded result.
func (r *Runner) evaluate(now time.Time, certs []Certificate, log *logrus.Entry) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			err := svcerrors.Evaluation("evaluation panicked", fmt.Errorf("%v", rec))
			log.WithError(err).WithField("stack", string(debug.Stack())).Error("error running gas checker")
			result = &Result{
				Timestamp:           now,
				Alerts:              []string{FailureAlert(fmt.Errorf("%v", rec))},
				CertificatesChecked: []Certificate{},
				Degraded:            true,
			}
		}
	}()
	return r.evaluator.Evaluate(now, certs)
}

func (r *Runner) saveAudit(ctx context.Context, result *Result, log *logrus.Entry) {
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.AuditTimeout)
	defer cancel()

	if err := r.audit.Save(auditCtx, result); err != nil {
		var se *svcerrors.ServiceError
		if !errors.As(err, &se) || se.Code != svcerrors.CodeAuditWrite {
			err = svcerrors.AuditWrite("failed to save gas checker results", err)
		}
		log.WithError(err).Error("error saving gas checker results")
		if r.metrics != nil {
			r.metrics.RecordAuditFailure()
		}
		r.mu.Lock()
		r.stats.AuditErrors++
		r.mu.Unlock()
		return
	}
	log.Debug("gas checker results saved to audit log")
}

func (r *Runner) notify(ctx context.Context, result *Result, log *logrus.Entry) {
	if r.notifier == nil || len(result.Alerts) == 0 {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.NotifyTimeout)
	defer cancel()

	if err := r.notifier.Notify(notifyCtx, result); err != nil {
		log.WithError(err).Warn("failed to deliver alert notification")
	}
}

func (r *Runner) finish(trigger Trigger, outcome string, started time.Time, result *Result, err error) {
	alerts := 0
	if result != nil {
		alerts = len(result.Alerts)
	}
	if r.metrics != nil {
		r.metrics.RecordRun(string(trigger), outcome, time.Since(started), alerts)
		if result != nil {
			r.metrics.SetCertificateCounts(result.Counts())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch outcome {
	case OutcomeSkipped:
		r.stats.SkippedRuns++
	case OutcomeFailed:
		r.stats.TotalRuns++
		r.stats.FailedRuns++
	case OutcomeDegraded:
		r.stats.TotalRuns++
		r.stats.DegradedRuns++
	default:
		r.stats.TotalRuns++
	}
	if err != nil {
		r.stats.LastError = err.Error()
	}
	if result != nil {
		at := result.Timestamp
		r.stats.LastRunAt = &at
		r.stats.LastAlerts = alerts
		r.stats.LastTrigger = trigger
		r.stats.LastError = ""
		r.last = result
	}
}

// Stats returns a snapshot of run statistics.
func (r *Runner) Stats() RunStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := r.stats
	if stats.LastRunAt != nil {
		at := *stats.LastRunAt
		stats.LastRunAt = &at
	}
	return stats
}

// LastResult returns the most recent completed result, or nil.
func (r *Runner) LastResult() *Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}
