package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-platform/internal/audit"
	"payment-platform/internal/auth"
	"payment-platform/internal/config"
	"payment-platform/internal/events"
	"payment-platform/internal/fraud"
	"payment-platform/internal/httpapi"
	"payment-platform/internal/idempotency"
	"payment-platform/internal/journal"
	"payment-platform/internal/paylink"
	"payment-platform/internal/payment"
	"payment-platform/internal/store"
	"payment-platform/internal/wallet"
	"payment-platform/internal/worker"
	"payment-platform/pkg/logger"
	"payment-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A .env file is optional; deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn(".env load failed", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	st := store.New(db, cfg.DB.StoreTimeout)
	if err := st.Migrate(rootCtx); err != nil {
		log.Error("schema migration failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	signer, err := journal.NewSigner([]byte(cfg.Payments.JournalSecret))
	if err != nil {
		log.Error("journal signer init failed", "err", err)
		os.Exit(1)
	}

	publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:       cfg.Kafka.Brokers,
		EventsTopic:   cfg.Kafka.EventsTopic,
		WebhooksTopic: cfg.Kafka.WebhooksTopic,
	})
	if err != nil {
		log.Error("kafka publisher init failed", "err", err)
		os.Exit(1)
	}
	defer publisher.Close()

	guard := idempotency.NewGuard(idempotency.NewRedisStore(rdb), cfg.Payments.IdempotencyTTL, 2*time.Second)
	gate := fraud.WithTimeout(fraud.NewRulesGate(fraud.NewRedisCounter(rdb), fraud.RulesConfig{}), cfg.Payments.FraudTimeout)

	orchestrator := payment.NewOrchestrator(payment.Deps{
		Runner:   st.Payments(),
		Guard:    guard,
		Gate:     gate,
		Events:   publisher,
		Webhooks: publisher,
		Ledger:   wallet.NewLedger(),
		Journal:  journal.New(signer),
	}, payment.Config{
		HoldCap:        cfg.Payments.FraudHoldCapMinor,
		RefundWindow:   cfg.Payments.RefundWindow,
		PaymentTTL:     cfg.Payments.PaymentTTL,
		IdempotencyTTL: cfg.Payments.IdempotencyTTL,
	})

	handlers := httpapi.Handlers{
		Payments: orchestrator,
		Links:    paylink.NewIssuer(st.Links(), orchestrator, cfg.Payments.LinkBaseURL),
		Audit:    audit.NewService(st.Audit()),
	}
	// The cap TTL only matters if a process dies holding slots.
	inflight := httpapi.InflightCap(utils.NewConcurrencyCap(rdb, "payments:inflight:", cfg.App.MaxInflightPerUser, time.Minute))

	janitor := worker.NewJanitor(orchestrator, guard, cfg.App.JanitorInterval, log)
	go janitor.Start(rootCtx)
	defer janitor.Stop()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		Handlers: handlers,
		AuthMW:   auth.RequireAccessToken(authManager),
		Inflight: inflight,
		Ready: func(ctx context.Context) error {
			if err := st.Ping(ctx); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
