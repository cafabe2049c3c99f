// Command server runs both bridge domains in one process: the control
// domain's operation API and the execution domain's dispatcher, joined by
// the configured relay. With Kafka brokers configured the domains talk
// through Redpanda/Kafka topics; without them an in-process relay keeps
// the full loop runnable on a laptop.
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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	controlhandler "vaultbridge/internal/control/handler"
	controlmetrics "vaultbridge/internal/control/metrics"
	"vaultbridge/internal/control/roles"
	"vaultbridge/internal/control/service"
	"vaultbridge/internal/control/store/accounts"
	"vaultbridge/internal/control/store/pending"
	"vaultbridge/internal/control/store/statecache"
	"vaultbridge/internal/control/ws"
	"vaultbridge/internal/execution/dedup"
	"vaultbridge/internal/execution/dispatcher"
	exechandler "vaultbridge/internal/execution/handler"
	execmetrics "vaultbridge/internal/execution/metrics"
	"vaultbridge/internal/execution/mirror"
	"vaultbridge/internal/execution/store/position"
	"vaultbridge/internal/execution/store/strategies"
	"vaultbridge/internal/execution/vault"
	"vaultbridge/internal/jwtauth"
	"vaultbridge/internal/platform/config"
	"vaultbridge/internal/platform/httpserver"
	"vaultbridge/internal/platform/logger"
	platformmetrics "vaultbridge/internal/platform/metrics"
	"vaultbridge/internal/platform/postgres"
	platformredis "vaultbridge/internal/platform/redis"
	"vaultbridge/internal/relay"
	"vaultbridge/internal/relay/inproc"
	"vaultbridge/internal/relay/kafka"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/platform/audit"
	"vaultbridge/pkg/platform/audit/publisher"
	auditmemory "vaultbridge/pkg/platform/audit/store/memory"
	auditpostgres "vaultbridge/pkg/platform/audit/store/postgres"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(logger.ParseLevel(cfg.LogLevel))

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openPostgres(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Control-domain stores.
	var (
		pendingStore pending.Store
		accountStore accounts.Store
		authority    roles.Authority
		cacheStore   statecache.Store
		auditStore   audit.Store
	)
	if db != nil {
		pendingStore = pending.NewPostgres(db)
		accountStore = accounts.NewPostgres(db)
		authority = roles.NewPostgres(db)
		auditStore = auditpostgres.NewStore(db)
	} else {
		pendingStore = pending.NewMemory()
		accountStore = accounts.NewMemory()
		authority = roles.NewMemory()
		auditStore = auditmemory.NewInMemoryStore()
	}
	if redisClient != nil {
		cacheStore = statecache.NewRedis(redisClient.Client)
	} else {
		cacheStore = statecache.NewMemory()
	}

	// Execution-domain stores.
	var (
		strategyStore strategies.Store
		positionStore position.Store
		deliveredSet  dedup.Store
		memoryDedup   *dedup.MemoryStore
	)
	if db != nil {
		strategyStore = strategies.NewPostgres(db)
		positionStore = position.NewPostgres(db)
	} else {
		strategyStore = strategies.NewMemory()
		positionStore = position.NewMemory()
	}
	if redisClient != nil {
		deliveredSet = dedup.NewRedis(redisClient.Client, dedup.WithRedisTTL(cfg.Relay.DedupTTL))
	} else {
		memoryDedup = dedup.NewMemory(dedup.WithTTL(cfg.Relay.DedupTTL))
		deliveredSet = memoryDedup
	}

	auditPub := publisher.NewPublisher(auditStore, publisher.WithAsyncBuffer(256))
	defer auditPub.Close()

	httpMetrics := platformmetrics.New()
	ctrlMetrics := controlmetrics.New()
	execMetrics := execmetrics.New()

	hub := ws.NewHub(log)

	g, gctx := errgroup.WithContext(ctx)

	// Relay wiring. Handlers are registered below once both sides exist.
	var (
		controlClient relay.Client
		execClient    relay.Client
		local         *inproc.Relay
	)
	useKafka := len(cfg.Relay.Brokers) > 0
	if useKafka {
		if err := kafka.EnsureTopics(ctx, cfg.Relay.Brokers, cfg.Relay.TopicPrefix); err != nil {
			return err
		}
		kc, err := kafka.NewClient(cfg.Relay.Brokers, cfg.Relay.TopicPrefix,
			id.DomainControl, cfg.Relay.ExpectedControlAddress)
		if err != nil {
			return err
		}
		defer kc.Close()
		ke, err := kafka.NewClient(cfg.Relay.Brokers, cfg.Relay.TopicPrefix,
			id.DomainExecution, cfg.Relay.ExpectedExecutionAddress)
		if err != nil {
			return err
		}
		defer ke.Close()
		controlClient, execClient = kc, ke
	} else {
		local = inproc.New(log)
		controlClient = local.Client(id.DomainControl, cfg.Relay.ExpectedControlAddress)
		execClient = local.Client(id.DomainExecution, cfg.Relay.ExpectedExecutionAddress)
	}

	svc := service.New(
		pendingStore, cacheStore, accountStore, authority, controlClient, log,
		service.WithAudit(auditPub),
		service.WithMetrics(ctrlMetrics),
		service.WithStatusHub(hub),
		service.WithSendTimeout(cfg.Relay.SendTimeout),
		service.WithStaleAfter(cfg.Ledger.StaleAfter),
		service.WithExpectedExecutionAddress(cfg.Relay.ExpectedExecutionAddress),
	)

	authMirror := mirror.New()
	disp := dispatcher.New(
		strategyStore, positionStore, authMirror, deliveredSet,
		vault.NewStatic(), execClient, log,
		dispatcher.WithExpectedOrigin(cfg.Relay.ExpectedControlAddress),
		dispatcher.WithMetrics(execMetrics),
	)

	if useKafka {
		confirmations, err := kafka.NewReceiver(cfg.Relay.Brokers, cfg.Relay.TopicPrefix,
			"vaultbridge-control", id.DomainControl, svc.OnConfirmation, log)
		if err != nil {
			return err
		}
		operations, err := kafka.NewReceiver(cfg.Relay.Brokers, cfg.Relay.TopicPrefix,
			"vaultbridge-execution", id.DomainExecution, disp.OnDelivery, log)
		if err != nil {
			return err
		}
		g.Go(func() error { return confirmations.Run(gctx) })
		g.Go(func() error { return operations.Run(gctx) })
	} else {
		local.Subscribe(id.DomainControl, svc.OnConfirmation)
		local.Subscribe(id.DomainExecution, disp.OnDelivery)
	}

	syncer := mirror.NewSyncer(authMirror, authority, log,
		mirror.WithSyncInterval(cfg.Mirror.SyncInterval),
		mirror.WithMetrics(execMetrics),
	)
	reconciler := service.NewReconciler(svc, cfg.Ledger.ReconcileInterval,
		cfg.Ledger.ReconcileBatchSize, log)

	jwt := jwtauth.NewService(cfg.HTTP.JWTSigningKey, "vaultbridge")

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	controlhandler.New(svc, hub, jwt, log, httpMetrics, cfg.Ledger.StaleAfter).Register(router)
	exechandler.New(strategyStore, positionStore, authMirror, jwt, log).Register(router)

	srv := httpserver.New(cfg.HTTP.Addr, router)

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })
	g.Go(func() error {
		syncer.Run(gctx)
		return nil
	})
	if memoryDedup != nil {
		g.Go(func() error {
			memoryDedup.RunCleanup(gctx, time.Hour)
			return nil
		})
	}

	g.Go(func() error {
		log.Info("vaultbridge listening", "addr", cfg.HTTP.Addr, "kafka", useKafka, "postgres", db != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openPostgres(cfg config.Config) (*sql.DB, error) {
	if cfg.Postgres.DSN == "" {
		return nil, nil
	}
	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		return nil, err
	}

	schemas := []string{
		pending.Schema,
		accounts.Schema,
		roles.Schema,
		strategies.Schema,
		position.Schema,
		auditpostgres.Schema,
	}
	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}
