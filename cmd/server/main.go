package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"manifestgate/internal/analyzer"
	"manifestgate/internal/analyzer/verifier"
	"manifestgate/internal/audit"
	"manifestgate/internal/governance"
	"manifestgate/internal/heuristics"
	"manifestgate/internal/platform/config"
	"manifestgate/internal/platform/httpserver"
	"manifestgate/internal/platform/logger"
	platformredis "manifestgate/internal/platform/redis"
	"manifestgate/internal/registry"
	"manifestgate/internal/risk"
	"manifestgate/internal/sandbox"
	"manifestgate/internal/scan"
	scanmetrics "manifestgate/internal/scan/metrics"
	httptransport "manifestgate/internal/transport/http"
)

// main wires dependencies and runs the server plus the scan worker pool.
// Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	tuning, err := loadTuning(cfg, log)
	if err != nil {
		return err
	}

	verifiers, err := buildVerifiers(cfg)
	if err != nil {
		return err
	}

	tickets := scan.NewMemoryTicketStore()
	submissions := scan.NewMemorySubmissionStore()
	results := scan.NewMemoryResultStore()
	approved := scan.NewMemoryApprovedStore()

	health := map[string]httptransport.HealthCheck{}

	var auditStore audit.Store = audit.NewMemoryStore()
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		if err == nil {
			err = audit.EnsureSchema(pingCtx, db)
		}
		cancel()
		if err != nil {
			return err
		}
		auditStore = audit.NewPostgresStore(db)
		health["postgres"] = db.PingContext
		log.Info("audit store using postgres")
	}

	var sink audit.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		sink = kafka
		log.Info("audit mirror enabled", "topic", cfg.KafkaTopic)
	}

	auditSvc, err := audit.NewService(ctx, auditStore, sink, log)
	if err != nil {
		return err
	}

	var queue scan.Queue = scan.NewMemoryQueue(cfg.ScanQueueSize)
	if cfg.RedisAddr != "" {
		redisClient, err := platformredis.New(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		queue = scan.NewRedisQueue(redisClient.Client, "", int64(cfg.ScanQueueSize))
		health["redis"] = redisClient.Health
		log.Info("scan queue using redis", "addr", cfg.RedisAddr)
	}

	executor, err := sandbox.New(ctx, sandbox.Config{
		Timeout:          cfg.SandboxTimeout,
		MemoryLimitBytes: cfg.SandboxMemoryBytes,
	}, log)
	if err != nil {
		return err
	}

	builder := registry.NewBuilder(approved, log)
	pipelineMetrics := scanmetrics.New()
	orchestrator := scan.NewOrchestrator(scan.OrchestratorDeps{
		Tickets:     tickets,
		Submissions: submissions,
		Results:     results,
		Approved:    approved,
		Queue:       queue,
		Analyzer:    analyzer.New(verifiers, tuning.TrustedPublishers, approved),
		Detector:    heuristics.New(tuning.LegitimateIDs),
		Scorer:      risk.New(tuning.RiskWeights, tuning.RiskThresholds, tuning.LegitimateIDs),
		Policy:      tuning.Policy,
		Audit:       auditSvc,
		Registry:    builder,
		Metrics:     pipelineMetrics,
		Logger:      log,
		Workers:     cfg.ScanWorkers,
	})
	service := scan.NewService(scan.ServiceDeps{
		Tickets:     tickets,
		Submissions: submissions,
		Results:     results,
		Approved:    approved,
		Queue:       queue,
		Audit:       auditSvc,
		Registry:    builder,
		Metrics:     pipelineMetrics,
		Logger:      log,
	})
	overrider := governance.NewOverrider(results, service, audit.NewOverrideLog(auditSvc), log)

	router := httptransport.NewRouter(httptransport.Deps{
		Scan:          service,
		Registry:      builder,
		Audit:         auditSvc,
		Overrider:     overrider,
		Sandbox:       executor,
		Components:    health,
		Logger:        log,
		JWTSigningKey: cfg.JWTSigningKey,
		DevMode:       cfg.DevMode,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting manifestgate", "addr", cfg.Addr, "workers", cfg.ScanWorkers)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := orchestrator.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func loadTuning(cfg config.Server, log *slog.Logger) (governance.File, error) {
	if cfg.PolicyPath == "" {
		return governance.DefaultFile(), nil
	}
	tuning, err := governance.LoadFile(cfg.PolicyPath)
	if err != nil {
		return governance.File{}, err
	}
	log.Info("governance policy loaded", "path", cfg.PolicyPath)
	return tuning, nil
}

func buildVerifiers(cfg config.Server) (*verifier.Registry, error) {
	var verifiers []verifier.Verifier

	if cfg.PublisherKeysPath != "" {
		keys, err := verifier.LoadEd25519Keys(cfg.PublisherKeysPath)
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, verifier.NewEd25519Verifier(keys))
	} else {
		verifiers = append(verifiers, verifier.NewEd25519Verifier(nil))
	}

	if cfg.PGPKeyringPath != "" {
		armored, err := os.ReadFile(cfg.PGPKeyringPath)
		if err != nil {
			return nil, err
		}
		pgp, err := verifier.NewPGPVerifier(string(armored))
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, pgp)
	}

	return verifier.NewRegistry(verifiers...), nil
}
