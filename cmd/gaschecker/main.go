// Package main runs the gas certificate compliance checker: an HTTP API plus
// an hourly scheduled evaluation.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/compliance_layer/internal/config"
	"github.com/R3E-Network/compliance_layer/internal/database"
	"github.com/R3E-Network/compliance_layer/internal/logging"
	"github.com/R3E-Network/compliance_layer/internal/metrics"
	"github.com/R3E-Network/compliance_layer/internal/platform/migrations"
	"github.com/R3E-Network/compliance_layer/internal/runlock"
	"github.com/R3E-Network/compliance_layer/services/common/service"
	"github.com/R3E-Network/compliance_layer/services/gaschecker"
	gcpostgres "github.com/R3E-Network/compliance_layer/services/gaschecker/postgres"
	"github.com/R3E-Network/compliance_layer/services/gaschecker/server"
	gcsupabase "github.com/R3E-Network/compliance_layer/services/gaschecker/supabase"
)

const shutdownTimeout = 30 * time.Second

// stores bundles the selected backend.
type stores struct {
	certs  gaschecker.CertificateRepository
	audit  gaschecker.AuditLog
	probes map[string]service.HealthProbe
	close  func() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gaschecker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Service: server.ServiceID,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	log := logger.Entry(ctx)

	servicesCfg := config.LoadServicesConfigOrDefault(cfg.ServicesConfigPath)
	if !servicesCfg.IsEnabled(server.ServiceID) {
		log.Info("gaschecker is disabled in configuration, exiting")
		return nil
	}

	port := cfg.Port
	if port == 0 {
		port = 8080
		if settings := servicesCfg.GetSettings(server.ServiceID); settings != nil && settings.Port > 0 {
			port = settings.Port
		}
	}

	m := metrics.New()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			log.WithError(err).Warn("closing store failed")
		}
	}()

	locker, closeLocker, err := openLocker(cfg, st.probes)
	if err != nil {
		return err
	}
	defer closeLocker()

	var notifier gaschecker.Notifier
	if cfg.GasChecker.WebhookURL != "" {
		notifier = gaschecker.NewWebhookNotifier(cfg.GasChecker.WebhookURL, cfg.GasChecker.WebhookToken, server.ServiceID, 0)
	}

	runner, err := gaschecker.NewRunner(gaschecker.RunnerConfig{
		CertificateSet: cfg.GasChecker.CertificateSet,
		FetchTimeout:   cfg.GasChecker.FetchTimeout,
		FetchRetries:   cfg.GasChecker.FetchRetries,
		AuditTimeout:   cfg.GasChecker.AuditTimeout,
		LockTimeout:    cfg.GasChecker.LockTimeout,
	}, gaschecker.RunnerDeps{
		Certificates: st.certs,
		AuditLog:     st.audit,
		Evaluator:    gaschecker.NewEvaluator(cfg.GasChecker.Lookahead()),
		Locker:       locker,
		Notifier:     notifier,
		Metrics:      m,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	loc, err := cfg.GasChecker.Location()
	if err != nil {
		return err
	}

	svc, err := server.New(server.Config{
		Runner:         runner,
		Certificates:   st.certs,
		AuditLog:       st.audit,
		Metrics:        m,
		Logger:         logger,
		Schedule:       cfg.GasChecker.Cron,
		Location:       loc,
		RunOnStart:     cfg.GasChecker.RunOnStart,
		Backend:        cfg.Store.Backend,
		LookaheadDays:  cfg.GasChecker.LookaheadDays,
		AllowedOrigins: cfg.HTTP.AllowedOrigins(),
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		Probes:         st.probes,
	})
	if err != nil {
		return err
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           svc.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      svc.WriteTimeout(),
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).WithField("write_timeout", httpServer.WriteTimeout.String()).Info("gaschecker listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown error")
	}
	if err := svc.Stop(); err != nil {
		log.WithError(err).Warn("service stop error")
	}
	return runErr
}

func openStores(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*stores, error) {
	switch cfg.Store.Backend {
	case config.BackendSupabase:
		sb, err := gcsupabase.NewClient(cfg.Store.SupabaseURL, cfg.Store.SupabaseKey)
		if err != nil {
			return nil, fmt.Errorf("supabase client: %w", err)
		}
		certs := gcsupabase.NewCertificateRepository(sb, cfg.Store.CertificatesTable)
		return &stores{
			certs: certs,
			audit: gcsupabase.NewAuditRepository(sb, cfg.Store.LogsTable),
			probes: map[string]service.HealthProbe{
				"supabase": func(ctx context.Context) error {
					_, err := certs.List(ctx)
					return err
				},
			},
			close: func() error { return nil },
		}, nil

	case config.BackendPostgres:
		db, err := database.Open(ctx, cfg.Store.PostgresDSN, database.DefaultPoolConfig())
		if err != nil {
			return nil, err
		}
		if err := migrations.ApplyTables(ctx, db, cfg.Store.CertificatesTable, cfg.Store.LogsTable); err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := seedPostgres(ctx, cfg, db, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &stores{
			certs:  gcpostgres.NewCertificateStore(db, cfg.Store.CertificatesTable),
			audit:  gcpostgres.NewAuditStore(db, cfg.Store.LogsTable),
			probes: map[string]service.HealthProbe{"postgres": db.PingContext},
			close:  db.Close,
		}, nil

	default:
		var seed []gaschecker.Certificate
		if cfg.Store.SeedDemoData {
			seed = gaschecker.SeedCertificates()
		}
		store := gaschecker.NewMemoryStore(seed, 0)
		logger.Entry(ctx).WithField("certificates", len(seed)).Info("using in-memory certificate store")
		return &stores{
			certs:  store,
			audit:  store.AuditLog(),
			probes: map[string]service.HealthProbe{},
			close:  func() error { return nil },
		}, nil
	}
}

// seedPostgres loads the demonstration portfolio into an empty table. Only
// development environments are seeded.
func seedPostgres(ctx context.Context, cfg *config.Config, db *sqlx.DB, logger *logging.Logger) error {
	if !cfg.Store.SeedDemoData || !cfg.IsDevelopment() {
		return nil
	}
	certs := gcpostgres.NewCertificateStore(db, cfg.Store.CertificatesTable)
	existing, err := certs.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	seed := gaschecker.SeedCertificates()
	for i := range seed {
		if err := certs.Create(ctx, &seed[i]); err != nil {
			return fmt.Errorf("seed certificate %s: %w", seed[i].ID, err)
		}
	}
	logger.Entry(ctx).WithField("certificates", len(seed)).Info("seeded demonstration certificates")
	return nil
}

func openLocker(cfg *config.Config, probes map[string]service.HealthProbe) (runlock.Locker, func(), error) {
	if cfg.Redis.URL == "" {
		return runlock.NewLocalLocker(), func() {}, nil
	}
	rdb, err := runlock.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	probes["redis"] = func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
	return runlock.NewRedisLocker(rdb, cfg.Redis.LockTTL, runlock.WithPrefix("compliance:runlock:")), func() { _ = rdb.Close() }, nil
}
