// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"
	"os"
	"strings"

	"credits-gateway/internal/application/billing"
	"credits-gateway/internal/config"
	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
	"credits-gateway/internal/infrastructure/ledger"
	"credits-gateway/internal/infrastructure/llm"
	"credits-gateway/internal/infrastructure/messaging"
	"credits-gateway/internal/infrastructure/persistence/memory"
	"credits-gateway/internal/infrastructure/persistence/postgres"
	"credits-gateway/internal/infrastructure/persistence/redis"
	"credits-gateway/internal/interfaces/http/handler"
	"credits-gateway/internal/interfaces/http/middleware"
	"credits-gateway/internal/interfaces/http/router"
	"credits-gateway/pkg/logger"
)

// 订单去重后端
const (
	DedupBackendRedis    = "redis"
	DedupBackendPostgres = "postgres"
	DedupBackendMemory   = "memory"
)

// Worker job-worker 依赖容器
type Worker struct {
	Consumer *messaging.Consumer
	Events   *billing.EventProcessor
	Accounts *billing.AccountService
}

// ProvidePostgresClient 未启用时返回 nil
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	if !cfg.Database.Postgres.Enabled {
		return nil, func() {}, nil
	}
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 未启用时返回 nil
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

func ProvideLedger(cfg *config.Config) service.Ledger {
	return ledger.NewClient(&cfg.Ledger)
}

// ProvideBalanceCache 没有 Redis 时每次回源账本
func ProvideBalanceCache(cfg *config.Config, client *redis.Client) billing.BalanceCache {
	if client == nil {
		return billing.NopBalanceCache{}
	}
	return redis.NewBalanceCache(client, cfg.Ledger.BalanceCacheTTL)
}

// ProvideRateLimiter 没有 Redis 时不限流
func ProvideRateLimiter(client *redis.Client) middleware.RateLimiter {
	if client == nil {
		return nil
	}
	return redis.NewRateLimiter(client)
}

// ProvideMessagingProducer 未启用 stream 时返回 nil
func ProvideMessagingProducer(cfg *config.Config, client *redis.Client) *messaging.Producer {
	if client == nil || !cfg.Messaging.RedisStream.Enabled {
		return nil
	}
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(client.Redis(), int64(maxLen))
}

func ProvideBillingEventPublisher(cfg *config.Config, producer *messaging.Producer) service.BillingEventPublisher {
	if producer == nil {
		return service.NopPublisher{}
	}
	return messaging.NewStreamPublisher(producer, billingStream(cfg))
}

// ProvideReceiptStore 按 webhook.dedup.backend 选择去重存储
func ProvideReceiptStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client, pg *postgres.Client) (service.ReceiptStore, error) {
	dedup := cfg.Webhook.Dedup
	switch strings.ToLower(dedup.Backend) {
	case DedupBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("webhook dedup backend %q requires cache.redis.enabled", dedup.Backend)
		}
		return redis.NewReceiptStore(redisClient, dedup.KeyPrefix, dedup.TTL), nil
	case DedupBackendPostgres:
		if pg == nil {
			return nil, fmt.Errorf("webhook dedup backend %q requires database.postgres.enabled", dedup.Backend)
		}
		return postgres.NewReceiptRepository(pg), nil
	case DedupBackendMemory, "":
		logger.Warn(ctx, "webhook dedup uses process memory, duplicates across instances are not detected")
		return memory.NewReceiptStore(dedup.TTL), nil
	default:
		return nil, fmt.Errorf("unknown webhook dedup backend %q", dedup.Backend)
	}
}

func ProvideChatProvider(ctx context.Context, factory *llm.Factory) (service.ChatProvider, error) {
	return factory.Default(ctx)
}

func ProvideCostCalculator(cfg *config.Config) *billing.CostCalculator {
	return billing.NewCostCalculator(billing.Pricing{
		InputPerMillion:  cfg.Billing.Pricing.InputPerMillion,
		OutputPerMillion: cfg.Billing.Pricing.OutputPerMillion,
	})
}

func ProvideDeductionOrchestrator(
	cfg *config.Config,
	provider service.ChatProvider,
	ledger service.Ledger,
	calc *billing.CostCalculator,
	cache billing.BalanceCache,
	publisher service.BillingEventPublisher,
) *billing.DeductionOrchestrator {
	return billing.NewDeductionOrchestrator(provider, ledger, calc, cache, publisher, billing.DeductionConfig{
		ProviderTimeout:  cfg.LLM.Timeout,
		DebitDescription: cfg.Billing.DebitDescription,
	})
}

func ProvidePackageCatalog(cfg *config.Config) *billing.PackageCatalog {
	packages := make([]entity.CreditPackage, 0, len(cfg.Billing.Packages))
	for _, p := range cfg.Billing.Packages {
		packages = append(packages, entity.CreditPackage{
			Key:      p.Key,
			Keyword:  p.Keyword,
			Credits:  p.Credits,
			USDValue: p.USDValue,
		})
	}
	return billing.NewPackageCatalog(packages, cfg.Billing.CreditsPerUSD)
}

func ProvidePurchaseIngester(
	cfg *config.Config,
	catalog *billing.PackageCatalog,
	ledger service.Ledger,
	receipts service.ReceiptStore,
	publisher service.BillingEventPublisher,
	cache billing.BalanceCache,
) *billing.PurchaseIngester {
	return billing.NewPurchaseIngester(
		billing.NewSignatureVerifier(cfg.Webhook.Secret, cfg.Webhook.SignaturePrefix),
		catalog, ledger, receipts, publisher, cache,
		billing.PurchaseConfig{
			Source:          cfg.Webhook.Source,
			AsyncWebhookLog: cfg.Messaging.RedisStream.Enabled,
		},
	)
}

func ProvideAccountService(cfg *config.Config, ledger service.Ledger, cache billing.BalanceCache) *billing.AccountService {
	return billing.NewAccountService(ledger, cache, cfg.Billing.DebitDescription)
}

func ProvideAdminService(cfg *config.Config, ledger service.Ledger) *billing.AdminService {
	return billing.NewAdminService(billing.NewAdminGuard(cfg.Security.AdminKey), ledger)
}

func ProvideCreditAdjuster(cfg *config.Config, ledger service.Ledger, cache billing.BalanceCache, publisher service.BillingEventPublisher) *billing.CreditAdjuster {
	return billing.NewCreditAdjuster(billing.NewAdminGuard(cfg.Security.AdminKey), ledger, cache, publisher)
}

func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, redisClient *redis.Client) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version, pg, redisClient)
}

func ProvideWebhookHandler(cfg *config.Config, ingester *billing.PurchaseIngester) *handler.WebhookHandler {
	return handler.NewWebhookHandler(ingester, cfg.Webhook.SignatureHeader, cfg.Server.HTTP.MaxBodyBytes)
}

func ProvideSubscriptionHandler(cfg *config.Config, accounts *billing.AccountService) *handler.SubscriptionHandler {
	return handler.NewSubscriptionHandler(billing.NewCronGuard(cfg.Security.CronSecret), accounts)
}

func ProvideRouter(cfg *config.Config, handlers *router.Handlers, limiter middleware.RateLimiter) *router.Router {
	return router.New(cfg, handlers, limiter)
}

// ProvideConsumer job-worker 必须有 Redis
func ProvideConsumer(cfg *config.Config, client *redis.Client) (*messaging.Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("job-worker requires cache.redis.enabled")
	}
	rs := cfg.Messaging.RedisStream
	return messaging.NewConsumer(client.Redis(), messaging.ConsumerConfig{
		Stream:        billingStream(cfg),
		Group:         messaging.LedgerSyncGroup(rs.ConsumerGroupPrefix),
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff:       messaging.BackoffFromConfig(rs.RetryBackoff),
	}), nil
}

func billingStream(cfg *config.Config) messaging.Stream {
	if cfg.Messaging.RedisStream.Stream == "" {
		return messaging.StreamBillingEvents
	}
	return messaging.Stream(cfg.Messaging.RedisStream.Stream)
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
