// Package main запускает HTTP-сервер сервиса обслуживания столиков.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/tableside/internal/catalog"
	"github.com/mmeshcher/tableside/internal/config"
	"github.com/mmeshcher/tableside/internal/handler"
	"github.com/mmeshcher/tableside/internal/lock"
	"github.com/mmeshcher/tableside/internal/middleware"
	"github.com/mmeshcher/tableside/internal/notify"
	"github.com/mmeshcher/tableside/internal/payment"
	"github.com/mmeshcher/tableside/internal/payout"
	"github.com/mmeshcher/tableside/internal/repository"
	"github.com/mmeshcher/tableside/internal/service"
)

const lockTTL = 10 * time.Second

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory store")
		repo = repository.NewMemoryRepository()
	}

	opts := service.Options{
		Verifier:           payment.NewStripeVerifier(cfg.StripeWebhookSecret),
		Logger:             logger,
		PlatformFeePercent: cfg.PlatformFeePercent,
	}

	if cfg.CatalogServiceAddress != "" {
		opts.Catalog = catalog.NewClient(cfg.CatalogServiceAddress)
	}
	if payouts := payout.NewClient(cfg.PayoutSystemAddress); payouts.Configured() {
		opts.Payouts = payouts
	} else {
		sugar.Warn("PAYOUT_SYSTEM_ADDRESS is empty, withdrawals stay pending")
	}

	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer rdb.Close()
		opts.Locker = lock.NewRedis(rdb, lockTTL)
	} else {
		opts.Locker = lock.NewLocal()
	}

	broker := notify.NewBroker()
	publishers := notify.Fanout{broker}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafka.Close()
		publishers = append(publishers, kafka)
	}
	opts.Publisher = publishers

	svc := service.NewService(repo, opts)
	defer svc.Close()

	if cfg.JWTSecret == "" {
		sugar.Warn("JWT_SECRET is empty, every token will be rejected")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, broker)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая синхронизация заявок на вывод с системой выплат
	g.Go(func() error {
		svc.StartPayoutUpdates(ctx)
		return nil
	})

	// Доставка событий из outbox
	g.Go(func() error {
		svc.StartOutboxRelay(ctx, cfg.OutboxInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting tableside server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
