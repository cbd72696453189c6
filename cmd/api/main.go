package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rentledger/auth"
	"rentledger/bank"
	"rentledger/config"
	"rentledger/db"
	"rentledger/dispute"
	"rentledger/escrow"
	"rentledger/fees"
	"rentledger/httpapi"
	"rentledger/logger"
	"rentledger/metrics"
	"rentledger/receipts"
	"rentledger/registry"
	"rentledger/subsidy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("load config: %v", err)
	}

	logger.Init(cfg.Server.Env, cfg.Log.Level)
	log := logger.Get()
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedule, err := fees.NewSchedule(cfg.Escrow.PlatformFeePercent, cfg.Escrow.RentFeePercent)
	if err != nil {
		log.Fatal("build fee schedule", zap.Error(err))
	}

	var (
		agreementStore escrow.Store
		propertyStore  registry.Store
		receiptStore   receipts.Store
		userRepo       auth.Repository
	)
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			log.Fatal("bootstrap database pool", zap.Error(err))
		}
		defer pool.Close()
		agreementStore = escrow.NewPGStore(pool)
		propertyStore = registry.NewPGStore(pool)
		receiptStore = receipts.NewPGStore(pool)
		userRepo = auth.NewRepository(pool)
	default:
		agreementStore = escrow.NewMemoryStore()
		propertyStore = registry.NewMemoryStore()
		receiptStore = receipts.NewMemoryStore()
		userRepo = auth.NewMemoryRepository()
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	propertyRegistry := registry.NewRegistry(propertyStore, cfg.Escrow.ListingFee)
	bankLedger := bank.NewLedger()

	receiptLedger := receipts.NewLedger(receiptStore).WithLogger(log)
	if err := receiptLedger.Authorize(escrow.Actor(cfg.Escrow.ReceiptIssuer)); err != nil {
		log.Fatal("authorize receipt issuer", zap.Error(err))
	}

	subsidyPool := subsidy.NewPool()
	if cfg.Subsidy.Seed > 0 {
		if err := subsidyPool.Fund(ctx, cfg.Subsidy.Seed); err != nil {
			log.Fatal("seed subsidy pool", zap.Error(err))
		}
	}

	escrowService := escrow.NewService(agreementStore, propertyRegistry, bankLedger, receiptLedger, schedule).
		WithPolicy(escrow.Policy{
			DisputePeriod:        cfg.Escrow.DisputePeriod,
			DefaultGracePeriod:   cfg.Escrow.GracePeriod,
			OverdueCheckCooldown: cfg.Escrow.OverdueCheckCooldown,
			SubsidyAllowance:     cfg.Subsidy.Allowance,
			Issuer:               escrow.Actor(cfg.Escrow.ReceiptIssuer),
			PlatformAccount:      escrow.Actor(cfg.Escrow.PlatformAccount),
		}).
		WithSubsidy(subsidyPool).
		WithLogger(log).
		WithMetrics(m)

	arbitrator := dispute.NewArbitrator(agreementStore, bankLedger, schedule).
		WithPlatformAccount(escrow.Actor(cfg.Escrow.PlatformAccount)).
		WithLogger(log).
		WithMetrics(m)

	server := httpapi.NewServer(httpapi.Deps{
		Escrow:         escrowService,
		Disputes:       arbitrator,
		Auth:           auth.NewService(userRepo, cfg.JWT.SigningKey),
		Registry:       propertyRegistry,
		Receipts:       receiptLedger,
		Subsidy:        subsidyPool,
		Bank:           bankLedger,
		Schedule:       schedule,
		Log:            log,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("store", cfg.Store.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown", zap.Error(err))
	}
}
