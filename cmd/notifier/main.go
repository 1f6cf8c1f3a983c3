// Command notifier consumes settlement side effects from RabbitMQ and
// delivers them through the notification boundary.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iliyamo/auction-settlement/internal/config"
	"github.com/iliyamo/auction-settlement/internal/logger"
	"github.com/iliyamo/auction-settlement/internal/notify"
	"github.com/iliyamo/auction-settlement/internal/queue"
)

func main() {
	cfg := config.LoadNotifierConfig()
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := queue.NewConsumer(cfg.AMQPURL, notify.NewLogNotifier(zl), zl)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zl.Fatal("consumer stopped", zap.Error(err))
	}
	zl.Info("consumer stopped")
}
