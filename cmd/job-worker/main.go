// Package main 异步任务执行器入口（job-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"credits-gateway/internal/application/billing"
	"credits-gateway/internal/config"
	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/infrastructure/messaging"
	"credits-gateway/internal/wire"
	"credits-gateway/pkg/logger"
	"credits-gateway/pkg/tracer"
)

const (
	dlqCheckInterval = time.Minute
	dlqAlertLength   = 100
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName:    "job-worker",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
		Enabled:        cfg.Observability.Tracing.Enabled,
		Insecure:       cfg.Observability.Tracing.Insecure,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	registerHandlers(worker.Consumer, worker.Events)

	if err := worker.Consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go worker.Consumer.MonitorDLQ(ctx, dlqCheckInterval, dlqAlertLength)

	if interval := cfg.Jobs.SubscriptionCheckInterval; interval > 0 {
		go runSubscriptionSweep(ctx, worker.Accounts, interval)
	}

	log := logger.FromContext(ctx)
	log.Info("job-worker started", "stream", cfg.Messaging.RedisStream.Stream)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("job-worker shutting down")
	worker.Consumer.Stop()
	cancel()
}

func registerHandlers(consumer *messaging.Consumer, events *billing.EventProcessor) {
	consumer.RegisterHandler(entity.BillingEventWebhookReceived, func(ctx context.Context, msg *messaging.Message) error {
		return events.HandleWebhookReceived(ctx, msg.Payload)
	})
	consumer.RegisterHandler(entity.BillingEventCreditGranted, func(ctx context.Context, msg *messaging.Message) error {
		return events.HandleCreditGranted(ctx, msg.Payload)
	})
	consumer.RegisterHandler(entity.BillingEventDebitFailed, func(ctx context.Context, msg *messaging.Message) error {
		return events.HandleDebitFailed(ctx, msg.Payload)
	})
}

// runSubscriptionSweep 定时触发订阅过期检查，与 /api/subscription-check 等价
func runSubscriptionSweep(ctx context.Context, accounts *billing.AccountService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := accounts.SweepSubscriptions(ctx); err != nil {
				logger.Error(ctx, "subscription sweep failed", err)
			}
		}
	}
}
