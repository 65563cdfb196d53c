//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"credits-gateway/internal/application/billing"
	"credits-gateway/internal/config"
	"credits-gateway/internal/infrastructure/llm"
	"credits-gateway/internal/infrastructure/persistence/postgres"
	"credits-gateway/internal/interfaces/http/handler"
	"credits-gateway/internal/interfaces/http/router"
)

// InitializeApp 初始化 api-gateway（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		StorageSet,
		MessagingSet,
		BillingSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWorker 初始化 job-worker
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		ProvideRedisClient,
		ProvideLedger,
		ProvideBalanceCache,
		ProvideAccountService,
		billing.NewEventProcessor,
		ProvideConsumer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializePostgresOnly 仅初始化 PostgreSQL（用于 bootstrap）
func InitializePostgresOnly(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	wire.Build(ProvidePostgresClient)
	return nil, nil, nil
}

// StorageSet 可选的 Postgres / Redis 及其派生组件
var StorageSet = wire.NewSet(
	ProvidePostgresClient,
	ProvideRedisClient,
	ProvideBalanceCache,
	ProvideRateLimiter,
	ProvideReceiptStore,
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	ProvideBillingEventPublisher,
)

// BillingSet 计费用例
var BillingSet = wire.NewSet(
	ProvideLedger,
	llm.NewFactory,
	ProvideChatProvider,
	ProvideCostCalculator,
	ProvideDeductionOrchestrator,
	ProvidePackageCatalog,
	ProvidePurchaseIngester,
	ProvideAccountService,
	ProvideAdminService,
	ProvideCreditAdjuster,
	billing.NewLicenseRedeemer,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewChatHandler,
	handler.NewUserHandler,
	ProvideWebhookHandler,
	ProvideSubscriptionHandler,
	handler.NewAdminHandler,
	wire.Struct(new(router.Handlers), "*"),
	ProvideRouter,
)
