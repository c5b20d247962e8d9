package server

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	svcerrors "github.com/R3E-Network/compliance_layer/internal/errors"
	"github.com/R3E-Network/compliance_layer/internal/logging"
	"github.com/R3E-Network/compliance_layer/services/gaschecker"
)

// =============================================================================
// Lifecycle
// =============================================================================

// Start starts background workers and the scheduler. With RunOnStart an
// initial evaluation runs as a worker, so Stop waits for it.
func (s *Service) Start(ctx context.Context) error {
	if err := s.BaseService.Start(ctx); err != nil {
		return err
	}
	s.cron.Start()
	s.Logger().Entry(ctx).WithFields(logrus.Fields{
		"schedule": s.schedule,
		"timezone": s.location.String(),
		"next_run": s.NextRun(),
	}).Info("gas checker scheduler started")
	return nil
}

// Stop stops the scheduler, waits for a running job and then stops workers.
func (s *Service) Stop() error {
	<-s.cron.Stop().Done()
	return s.BaseService.Stop()
}

func (s *Service) scheduledRun() {
	s.trigger(context.Background(), gaschecker.TriggerSchedule)
}

func (s *Service) trigger(ctx context.Context, trigger gaschecker.Trigger) {
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())
	if _, err := s.runner.Run(ctx, trigger); err != nil {
		log := s.Logger().Entry(ctx).WithError(err).WithField("trigger", trigger)
		if errors.Is(err, svcerrors.ErrUnavailable) {
			log.Warn("gas checker run skipped: certificate set is locked")
			return
		}
		log.Error("gas checker run failed")
	}
}

func (s *Service) runLimiterCleanup(ctx context.Context) {
	s.limiter.StartCleanup(rateLimitCleanupInterval, s.StopChan())
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Entry(context.Background()).WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Entry(context.Background()).WithError(err).WithFields(kvFields(keysAndValues)).Error("cron: " + msg)
}

func kvFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}
