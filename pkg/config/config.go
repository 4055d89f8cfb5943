// Package config 提供 TOML 配置加载、环境变量覆盖与配置校验
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 行情服务配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`

	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig 读接口按客户端 IP 限流
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	QPS     float64 `mapstructure:"qps"`
	Burst   int     `mapstructure:"burst"`
}

// GRPCConfig gRPC 服务配置
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig 快照库配置
type DatabaseConfig struct {
	// 驱动：mysql, postgres, memory
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogEnabled      bool          `mapstructure:"log_enabled"`
	// 慢查询阈值
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
	AutoMigrate        bool          `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxPoolSize  int           `mapstructure:"max_pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr 返回 host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
	// 写入重试次数
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// 快照更新事件 topic
	SnapshotTopic string `mapstructure:"snapshot_topic"`
	// 连接失败事件 topic
	StreamFailedTopic string `mapstructure:"stream_failed_topic"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// 独立 Prometheus 端口，0 表示仅挂在 HTTP 服务的 /metrics 上
	Port int    `mapstructure:"port"`
	Path string `mapstructure:"path"`
}

// StreamConfig 行情 WebSocket 订阅配置
type StreamConfig struct {
	BaseURL      string   `mapstructure:"base_url"`
	StreamSuffix string   `mapstructure:"stream_suffix"`
	Symbols      []string `mapstructure:"symbols"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	// 单次读超时，超时视为连接丢失
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	BackoffJitter     float64       `mapstructure:"backoff_jitter"`
	// 连续失败上限，超过后进入 Failed
	MaxAttempts int `mapstructure:"max_attempts"`
	// 连接保持超过该时长后重置失败计数
	StableAfter time.Duration `mapstructure:"stable_after"`

	// 全局建连速率（次/秒）
	DialRate  float64 `mapstructure:"dial_rate"`
	DialBurst int     `mapstructure:"dial_burst"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CacheConfig 最新价缓存配置
type CacheConfig struct {
	// 后端：memory, redis
	Backend       string        `mapstructure:"backend"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// SnapshotConfig 快照策略配置
type SnapshotConfig struct {
	// 变动阈值（小数，0.01 即 1%）
	Threshold string `mapstructure:"threshold"`
	// 快照价格来源：mid, bid
	PriceSource    string        `mapstructure:"price_source"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`

	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout"`
}

// ThresholdDecimal 解析阈值
func (c SnapshotConfig) ThresholdDecimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Threshold))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid snapshot threshold %q: %w", c.Threshold, err)
	}
	return d, nil
}

// Load 从 TOML 文件加载配置，文件不存在时使用默认值，支持 APP_ 前缀环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.GRPC.Port < 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
	}

	if c.HTTP.RateLimit.Enabled && (c.HTTP.RateLimit.QPS <= 0 || c.HTTP.RateLimit.Burst <= 0) {
		return fmt.Errorf("http rate_limit qps and burst must be positive when enabled")
	}

	switch c.Database.Driver {
	case "memory":
	case "mysql", "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.Cache.TTL)
	}

	if c.Stream.BaseURL == "" {
		return fmt.Errorf("stream base_url is required")
	}
	if c.Stream.MaxAttempts < 0 {
		return fmt.Errorf("stream max_attempts must not be negative")
	}
	if c.Stream.InitialBackoff <= 0 || c.Stream.MaxBackoff < c.Stream.InitialBackoff {
		return fmt.Errorf("invalid stream backoff: initial=%s max=%s", c.Stream.InitialBackoff, c.Stream.MaxBackoff)
	}
	if c.Stream.ShutdownTimeout <= 0 {
		return fmt.Errorf("stream shutdown_timeout must be positive, got %s", c.Stream.ShutdownTimeout)
	}
	if c.Stream.BackoffJitter < 0 || c.Stream.BackoffJitter > 1 {
		return fmt.Errorf("stream backoff_jitter must be within [0,1]")
	}

	threshold, err := c.Snapshot.ThresholdDecimal()
	if err != nil {
		return err
	}
	if threshold.IsNegative() {
		return fmt.Errorf("snapshot threshold must not be negative")
	}
	switch c.Snapshot.PriceSource {
	case "mid", "bid":
	default:
		return fmt.Errorf("unsupported snapshot price_source: %s", c.Snapshot.PriceSource)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "marketdata")
	v.SetDefault("version", "dev")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.rate_limit.enabled", false)
	v.SetDefault("http.rate_limit.qps", 50.0)
	v.SetDefault("http.rate_limit.burst", 100)

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", "1s")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "marketdata")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", "100ms")
	v.SetDefault("kafka.write_timeout", "5s")
	v.SetDefault("kafka.snapshot_topic", "marketdata.snapshot.updated")
	v.SetDefault("kafka.stream_failed_topic", "marketdata.stream.failed")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/marketdata.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 0)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("stream.base_url", "wss://stream.binance.com:9443/ws")
	v.SetDefault("stream.stream_suffix", "@bookTicker")
	v.SetDefault("stream.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("stream.handshake_timeout", "10s")
	v.SetDefault("stream.read_timeout", "60s")
	v.SetDefault("stream.initial_backoff", "1s")
	v.SetDefault("stream.max_backoff", "30s")
	v.SetDefault("stream.backoff_multiplier", 2.0)
	v.SetDefault("stream.backoff_jitter", 0.5)
	v.SetDefault("stream.max_attempts", 10)
	v.SetDefault("stream.stable_after", "30s")
	v.SetDefault("stream.dial_rate", 5.0)
	v.SetDefault("stream.dial_burst", 5)
	v.SetDefault("stream.shutdown_timeout", "10s")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.key_prefix", "price:latest:")
	v.SetDefault("cache.ttl", "60s")
	v.SetDefault("cache.sweep_interval", "30s")

	v.SetDefault("snapshot.threshold", "0.01")
	v.SetDefault("snapshot.price_source", "mid")
	v.SetDefault("snapshot.persist_timeout", "2s")
	v.SetDefault("snapshot.breaker_max_failures", 5)
	v.SetDefault("snapshot.breaker_open_timeout", "30s")
}
