// Package control wires the supervision engine together and owns its
// lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/enrichops/overseer/internal/core/config"
	"github.com/enrichops/overseer/internal/core/domain"
	"github.com/enrichops/overseer/internal/health"
	"github.com/enrichops/overseer/internal/infra/alert"
	redisclient "github.com/enrichops/overseer/internal/infra/redis"
	"github.com/enrichops/overseer/internal/infra/storage"
	"github.com/enrichops/overseer/internal/infra/storage/memory"
	"github.com/enrichops/overseer/internal/infra/storage/postgres"
	"github.com/enrichops/overseer/internal/infra/trigger"
	"github.com/enrichops/overseer/internal/report"
	"github.com/enrichops/overseer/internal/resilience"
	"github.com/enrichops/overseer/internal/supervise"
	"github.com/enrichops/overseer/internal/supervise/check"
	"github.com/enrichops/overseer/internal/supervise/orchestrate"
	"github.com/enrichops/overseer/internal/supervise/strategy"
)

// Overseer is the main application struct that manages the engine lifecycle.
type Overseer struct {
	cfg          *config.AppConfig
	supervisor   *supervise.Supervisor
	orchestrator *orchestrate.Orchestrator
	runs         storage.RunRepository
	checks       storage.CheckRepository
	healthServer *health.Server
	reporter     *report.Generator
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOverseer creates an Overseer instance with all dependencies initialized.
func NewOverseer(cfg *config.AppConfig) (*Overseer, error) {
	log := slog.Default()

	// 1. Storage
	var runRepo storage.RunRepository
	var checkRepo storage.CheckRepository
	var db *postgres.DB
	var storePinger health.Pinger

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		runRepo = postgres.NewRunRepo(db)
		checkRepo = postgres.NewCheckRepo(db)
		storePinger = db
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		runRepo = memory.NewRunRepo(store)
		checkRepo = memory.NewCheckRepo(store)
		storePinger = memoryPinger{}
		slog.Info("Using Memory storage")
	}

	// 2. Redis (optional; required for the durable retry queue)
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
	}

	// 3. Trigger client with per-dependency circuit breakers
	breakers := resilience.NewRegistry(resilience.DefaultConfig())
	endpoints := make(map[domain.Agent]trigger.Endpoint, len(cfg.Agents))
	minYield := make(map[domain.Agent]int, len(cfg.Agents))
	for _, a := range cfg.Agents {
		endpoints[a.Name] = trigger.Endpoint{URL: a.URL, Token: a.Token}
		minYield[a.Name] = a.MinYield
	}
	triggerClient := trigger.NewClient(endpoints, cfg.Supervision.TriggerTimeout, breakers)

	// 4. Supervision pipeline
	checker := check.New(runRepo, check.Config{
		LookbackWindow: cfg.Supervision.LookbackWindow,
		TimeoutBudget:  cfg.Supervision.TimeoutBudget,
		MinYield:       minYield,
	}, log)

	engine := strategy.New(cfg.Retry.Config)

	var orchestrator *orchestrate.Orchestrator
	if !cfg.Retry.Blocking && redisClient != nil {
		orchestrator = orchestrate.NewQueued(runRepo, engine, triggerClient, redisClient, log)
	} else {
		orchestrator = orchestrate.New(runRepo, engine, triggerClient, log)
	}

	var notifier alert.Notifier
	if cfg.Alert.WebhookURL != "" {
		notifier = alert.NewWebhookNotifier(cfg.Alert.WebhookURL, cfg.Alert.Timeout, log)
	} else {
		notifier = &alert.LogNotifier{Log: log}
	}

	supervisor := supervise.New(checker, orchestrator, checkRepo, notifier, log)
	supervisor.SetRecheckAfter(cfg.Supervision.RecheckAfter)

	// 5. Health probes
	probes := []health.Probe{
		&health.StoreProbe{Store: storePinger, WarnLatency: cfg.Health.WarnLatency},
		&health.QueueDepthProbe{
			Runs:          runRepo,
			Queue:         redisClient,
			TimeoutBudget: cfg.Supervision.TimeoutBudget,
			FailureWindow: cfg.Supervision.LookbackWindow,
			WarnFailures:  cfg.Health.WarnFailures,
			CriticalStale: cfg.Health.CriticalStale,
		},
		&health.BreakerProbe{Breakers: breakers},
	}
	if redisClient != nil {
		probes = append(probes, &health.CacheProbe{
			Cache:       redisClient,
			WarnHitRate: cfg.Health.WarnHitRate,
		})
	}
	for _, api := range cfg.Health.APIs {
		probes = append(probes, health.NewAPIProbe(api))
	}
	if cfg.Health.Completeness.URL != "" {
		probes = append(probes, health.NewCompletenessProbe(
			cfg.Health.Completeness.URL,
			cfg.Health.Completeness.Token,
			cfg.Health.Completeness.WarnBelow,
			cfg.Health.Completeness.CriticalBelow,
		))
	}
	aggregator := health.NewAggregator(probes, cfg.Health.ProbeTimeout)
	healthServer := health.NewServer(aggregator, cfg.Server.Port)

	o := &Overseer{
		cfg:          cfg,
		supervisor:   supervisor,
		runs:         runRepo,
		checks:       checkRepo,
		healthServer: healthServer,
		reporter:     report.NewGenerator(runRepo),
		db:           db,
		redisClient:  redisClient,
		log:          log,
	}
	o.orchestrator = orchestrator
	o.mountHandlers()
	return o, nil
}

// Start launches the HTTP listener and background workers.
func (o *Overseer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	if o.db != nil {
		o.db.StartMetricsCollector(ctx)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.log.Error("health server stopped", "error", err)
		}
	}()

	if o.redisClient != nil && !o.cfg.Retry.Blocking {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.runQueueWorker(ctx)
		}()
	}

	if o.cfg.Supervision.Interval > 0 {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.runTicker(ctx)
		}()
	}

	o.log.Info("overseer started", "port", o.cfg.Server.Port,
		"agents", len(o.cfg.Agents), "blocking_retries", o.cfg.Retry.Blocking)
	return nil
}

// Stop shuts down the engine.
func (o *Overseer) Stop(ctx context.Context) error {
	if o.cancel != nil {
		o.cancel()
	}
	err := o.healthServer.Stop(ctx)
	o.wg.Wait()
	if o.redisClient != nil {
		_ = o.redisClient.Close()
	}
	if o.db != nil {
		_ = o.db.Close()
	}
	return err
}

// SuperviseAll runs one supervision pass over every configured agent,
// sequentially; per-agent invocations must not overlap and the engine leaves
// that ordering to its caller.
func (o *Overseer) SuperviseAll(ctx context.Context) []*domain.CheckRecord {
	records := make([]*domain.CheckRecord, 0, len(o.cfg.Agents))
	for _, a := range o.cfg.Agents {
		record, err := o.supervisor.Supervise(ctx, a.Name)
		if err != nil {
			o.log.Error("supervision failed", "agent", a.Name, "error", err)
			continue
		}
		records = append(records, record)
	}
	return records
}

// runTicker drives supervision from an internal schedule, for deployments
// without an external cron.
func (o *Overseer) runTicker(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Supervision.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.SuperviseAll(ctx)
		}
	}
}

// memoryPinger satisfies the store probe when running without a database.
type memoryPinger struct{}

func (memoryPinger) Health(context.Context) error { return nil }
