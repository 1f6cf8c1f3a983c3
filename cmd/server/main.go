package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/auction-settlement/internal/config"
	cronrunner "github.com/iliyamo/auction-settlement/internal/cron"
	"github.com/iliyamo/auction-settlement/internal/database"
	"github.com/iliyamo/auction-settlement/internal/dispatch"
	"github.com/iliyamo/auction-settlement/internal/handler"
	"github.com/iliyamo/auction-settlement/internal/lease"
	"github.com/iliyamo/auction-settlement/internal/logger"
	"github.com/iliyamo/auction-settlement/internal/middleware"
	"github.com/iliyamo/auction-settlement/internal/notify"
	"github.com/iliyamo/auction-settlement/internal/payment"
	"github.com/iliyamo/auction-settlement/internal/queue"
	"github.com/iliyamo/auction-settlement/internal/repository"
	"github.com/iliyamo/auction-settlement/internal/router"
	"github.com/iliyamo/auction-settlement/internal/settlement"
	"github.com/iliyamo/auction-settlement/internal/sweep"
)

func main() {
	cfg := config.Load()
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	store := repository.NewSQLStore(db)

	rdb, err := config.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		zl.Warn("redis unavailable; rate limiting off, in-process sweep lease", zap.Error(err))
	}
	var locker lease.Locker = lease.NewLocalLocker()
	if rdb != nil {
		defer rdb.Close()
		locker = lease.NewRedisLocker(rdb, cfg.Settlement.LeasePrefix)
	}

	if cfg.StripeSecretKey == "" {
		zl.Warn("STRIPE_SECRET_KEY is empty; captures will fail and be recorded as payment_failed")
	}
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.Currency, zl)

	var sink dispatch.Sink = dispatch.NotifierSink{Notifier: notify.NewLogNotifier(zl)}
	if cfg.AMQPURL != "" {
		pub := queue.NewPublisher(cfg.AMQPURL, zl)
		defer pub.Close()
		sink = pub
	}
	sc := cfg.Settlement
	dispatcher := dispatch.New(sink, zl, dispatch.Options{
		Buffer:  sc.DispatchBuffer,
		Workers: sc.DispatchWorkers,
		Timeout: sc.DispatchTimeout,
	})
	defer dispatcher.Close()

	engine := settlement.NewEngine(store, gateway, dispatcher, zl, settlement.Config{
		TimerGrace:     sc.TimerGrace,
		CaptureTimeout: sc.CaptureTimeout,
		UnitTimeout:    sc.UnitTimeout,
	})
	auctions := sweep.NewAuctionSweeper(store, engine, locker, zl, sweep.Config{
		Grace:     sc.SweepGrace,
		BatchSize: sc.SweepBatchSize,
		Budget:    sc.SweepBudget,
	})
	autoConfirm := sweep.NewAutoConfirmSweeper(store, engine, locker, zl, sweep.AutoConfirmConfig{
		After:     sc.AutoConfirmAfter,
		BatchSize: sc.SweepBatchSize,
		Budget:    sc.SweepBudget,
	})

	cr := cronrunner.New(zl, ctx)
	if _, err := cr.Add("auction-sweep", sc.SweepSchedule, func(ctx context.Context) {
		if _, err := auctions.Run(ctx); err != nil {
			zl.Error("auction sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	if _, err := cr.Add("auto-confirm-sweep", sc.AutoConfirmSchedule, func(ctx context.Context) {
		if _, err := autoConfirm.Run(ctx); err != nil {
			zl.Error("auto-confirm sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	cr.Start()
	defer cr.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	router.RegisterRoutes(e, db)
	router.RegisterSettlement(e, handler.NewSettlementHandler(engine, store, zl), cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, zl))
	router.RegisterInternal(e, handler.NewSweepHandler(auctions, autoConfirm, zl), cfg.SweepSecretHash)
	router.RegisterWebhooks(e, handler.NewWebhookHandler(gateway, engine, zl))

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
