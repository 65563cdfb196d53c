// Package config 提供配置加载和管理功能
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Ledger        LedgerConfig        `yaml:"ledger" mapstructure:"ledger"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Billing       BillingConfig       `yaml:"billing" mapstructure:"billing"`
	Webhook       WebhookConfig       `yaml:"webhook" mapstructure:"webhook"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Jobs          JobsConfig          `yaml:"jobs" mapstructure:"jobs"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	// MaxBodyBytes 请求体上限（webhook 需要读取原始字节）
	MaxBodyBytes int64 `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// LedgerConfig 外部账本服务配置
type LedgerConfig struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// BalanceCacheTTL 余额查询缓存时长，0 表示不缓存
	BalanceCacheTTL time.Duration `yaml:"balance_cache_ttl" mapstructure:"balance_cache_ttl"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// Provider 当前使用的提供商：anthropic / openai
	Provider string `yaml:"provider" mapstructure:"provider"`
	// Timeout 单次调用上限，必须小于 server.http.write_timeout
	Timeout   time.Duration             `yaml:"timeout" mapstructure:"timeout"`
	Providers map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	// APIVersion Messages API 的 anthropic-version 头
	APIVersion string `yaml:"api_version" mapstructure:"api_version"`
}

// BillingConfig 计费配置
type BillingConfig struct {
	Pricing          PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	CreditsPerUSD    float64         `yaml:"credits_per_usd" mapstructure:"credits_per_usd"`
	DebitDescription string          `yaml:"debit_description" mapstructure:"debit_description"`
	Packages         []PackageConfig `yaml:"packages" mapstructure:"packages"`
}

// PricingConfig 每百万 token 单价（USD）
type PricingConfig struct {
	InputPerMillion  float64 `yaml:"input_per_million" mapstructure:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million" mapstructure:"output_per_million"`
}

// PackageConfig 积分套餐，按声明顺序匹配
type PackageConfig struct {
	Key      string  `yaml:"key" mapstructure:"key"`
	Keyword  string  `yaml:"keyword" mapstructure:"keyword"`
	Credits  int64   `yaml:"credits" mapstructure:"credits"`
	USDValue float64 `yaml:"usd_value" mapstructure:"usd_value"`
}

// WebhookConfig 支付回调配置
type WebhookConfig struct {
	// Secret 为空时关闭签名校验
	Secret          string      `yaml:"secret" mapstructure:"secret"`
	SignatureHeader string      `yaml:"signature_header" mapstructure:"signature_header"`
	SignaturePrefix string      `yaml:"signature_prefix" mapstructure:"signature_prefix"`
	Source          string      `yaml:"source" mapstructure:"source"`
	Dedup           DedupConfig `yaml:"dedup" mapstructure:"dedup"`
}

// DedupConfig 订单去重配置
type DedupConfig struct {
	// Backend: redis / postgres / memory
	Backend   string        `yaml:"backend" mapstructure:"backend"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// DSN 返回 PostgreSQL 连接串
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// Addr 返回 host:port
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	Enabled             bool          `yaml:"enabled" mapstructure:"enabled"`
	Stream              string        `yaml:"stream" mapstructure:"stream"`
	MaxLen              int           `yaml:"max_len" mapstructure:"max_len"`
	ConsumerGroupPrefix string        `yaml:"consumer_group_prefix" mapstructure:"consumer_group_prefix"`
	BlockTimeout        time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval       time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit          int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff        BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// JobsConfig 后台任务配置
type JobsConfig struct {
	// SubscriptionCheckInterval 订阅过期检查间隔，0 表示关闭
	SubscriptionCheckInterval time.Duration `yaml:"subscription_check_interval" mapstructure:"subscription_check_interval"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	AdminKey   string          `yaml:"admin_key" mapstructure:"admin_key"`
	CronSecret string          `yaml:"cron_secret" mapstructure:"cron_secret"`
	RateLimit  RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS       CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 限流配置（滑动窗口）
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Requests int           `yaml:"requests" mapstructure:"requests"`
	Window   time.Duration `yaml:"window" mapstructure:"window"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// Validate 校验跨字段约束
func (c *Config) Validate() error {
	var errs []error

	if c.Ledger.BaseURL == "" {
		errs = append(errs, errors.New("ledger.base_url is required"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	// 预留余量：上游超时必须能在服务端写超时之前返回 504
	if c.Server.HTTP.WriteTimeout > 0 && c.LLM.Timeout >= c.Server.HTTP.WriteTimeout {
		errs = append(errs, fmt.Errorf("llm.timeout (%s) must be shorter than server.http.write_timeout (%s)",
			c.LLM.Timeout, c.Server.HTTP.WriteTimeout))
	}
	if _, ok := c.LLM.Providers[c.LLM.Provider]; !ok {
		errs = append(errs, fmt.Errorf("llm.providers has no entry for provider %q", c.LLM.Provider))
	}
	if c.Billing.Pricing.InputPerMillion < 0 || c.Billing.Pricing.OutputPerMillion < 0 {
		errs = append(errs, errors.New("billing.pricing rates must not be negative"))
	}
	if c.Billing.CreditsPerUSD <= 0 {
		errs = append(errs, errors.New("billing.credits_per_usd must be positive"))
	}
	if len(c.Billing.Packages) == 0 {
		errs = append(errs, errors.New("billing.packages must not be empty"))
	}
	for i, p := range c.Billing.Packages {
		if p.Keyword == "" || p.Credits <= 0 {
			errs = append(errs, fmt.Errorf("billing.packages[%d] needs keyword and positive credits", i))
		}
	}
	switch c.Webhook.Dedup.Backend {
	case "redis":
		if !c.Cache.Redis.Enabled {
			errs = append(errs, errors.New("webhook.dedup.backend=redis requires cache.redis.enabled"))
		}
	case "postgres":
		if !c.Database.Postgres.Enabled {
			errs = append(errs, errors.New("webhook.dedup.backend=postgres requires database.postgres.enabled"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown webhook.dedup.backend %q", c.Webhook.Dedup.Backend))
	}
	if c.Messaging.RedisStream.Enabled && !c.Cache.Redis.Enabled {
		errs = append(errs, errors.New("messaging.redis_stream.enabled requires cache.redis.enabled"))
	}
	if c.Security.RateLimit.Enabled && !c.Cache.Redis.Enabled {
		errs = append(errs, errors.New("security.rate_limit.enabled requires cache.redis.enabled"))
	}

	return errors.Join(errs...)
}
