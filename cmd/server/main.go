package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"attest/internal/audit"
	"attest/internal/authtoken"
	"attest/internal/capability"
	"attest/internal/drafts"
	"attest/internal/ledger/service"
	ledgerstore "attest/internal/ledger/store"
	"attest/internal/platform/config"
	"attest/internal/platform/httpserver"
	"attest/internal/platform/logger"
	"attest/internal/platform/metrics"
	"attest/internal/platform/postgres"
	"attest/internal/tenantguard"
	transporthttp "attest/internal/transport/http"
)

const (
	outboxInterval  = 2 * time.Second
	shutdownTimeout = 10 * time.Second
	auditTopicParts = 3
	sinkBuffer      = 1024
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	guard := tenantguard.New()

	var (
		evidenceStore ledgerstore.Store
		auditStore    audit.Store
		txRunner      service.StoreTx
		auditSink     chan audit.Event
		sqlDB         *sql.DB
	)
	if cfg.PostgresDSN != "" {
		opened, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer opened.Close()
		if err := postgres.EnsureSchema(ctx, opened); err != nil {
			log.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		sqlDB = opened
		evidenceStore = ledgerstore.NewPostgres(opened)
		auditStore = audit.NewPostgres(opened)
		txRunner = newPostgresStoreTx(opened)
		log.Info("ledger backend: postgres")
	} else {
		memAudit := audit.NewInMemory()
		if len(cfg.KafkaBrokers) > 0 {
			auditSink = make(chan audit.Event, sinkBuffer)
			memAudit = memAudit.WithSink(auditSink)
		}
		evidenceStore = ledgerstore.NewInMemory()
		auditStore = memAudit
		log.Info("ledger backend: in-memory")
	}

	opts := []service.Option{service.WithLogger(log), service.WithMetrics(m)}
	if txRunner != nil {
		opts = append(opts, service.WithTx(txRunner))
	}
	ledger := service.New(guard, evidenceStore, auditStore, opts...)

	var draftStore drafts.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		draftStore = drafts.NewRedisStore(client)
		log.Info("draft backend: redis", "addr", cfg.RedisAddr)
	} else {
		draftStore = drafts.NewInMemory()
		log.Info("draft backend: in-memory")
	}
	draftService := drafts.NewService(guard, draftStore, ledger, cfg.DraftTTL)

	registry := capability.NewRegistry()
	jwtService := authtoken.NewJWTService(cfg.JWTSigningKey, "attest", "attest")

	router := transporthttp.NewRouter(transporthttp.Deps{
		Evidence:     transporthttp.NewEvidenceHandler(ledger, log),
		Drafts:       transporthttp.NewDraftsHandler(draftService, log),
		Capabilities: transporthttp.NewCapabilityHandler(registry),
		Auth:         jwtService,
		Logger:       log,
		Metrics:      m,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("failed to build kafka publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		if err := publisher.EnsureTopic(ctx, auditTopicParts, 1); err != nil {
			log.Error("failed to ensure audit topic", "topic", cfg.AuditTopic, "error", err)
			os.Exit(1)
		}
		if sqlDB != nil {
			worker := audit.NewOutboxWorker(sqlDB, publisher, log, outboxInterval)
			g.Go(func() error { return worker.Run(ctx) })
		} else {
			worker := audit.NewChannelWorker(publisher, log, auditSink)
			g.Go(func() error { return worker.Run(ctx) })
		}
		log.Info("audit publisher: kafka", "topic", cfg.AuditTopic)
	} else {
		log.Info("audit publisher: disabled")
	}

	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
