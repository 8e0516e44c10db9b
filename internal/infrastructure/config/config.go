package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Billing   BillingConfig
	Stripe    StripeConfig
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address of the Redis server
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// Queue backends
const (
	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"
)

// Payment gateways
const (
	GatewayStripe = "stripe"
	GatewayNone   = "none"
)

// BillingConfig holds the recurring billing engine settings
type BillingConfig struct {
	CronEnabled          bool
	CronSchedule         string // standard 5-field cron expression
	BatchSize            int    // draft orders loaded per cron run
	DispatchTTL          time.Duration
	WorkerCount          int
	PollInterval         time.Duration
	TaskTimeout          time.Duration
	TransientRetryDelay  time.Duration
	MaxTransientAttempts int
	LockTTL              time.Duration
	QueueBackend         string // memory, redis
	QueueKeyPrefix       string
	Gateway              string // stripe, none
	// Manual cron runs allowed per client within CronRunRateWindow
	CronRunRateLimit  int
	CronRunRateWindow time.Duration
}

// StripeConfig holds Stripe API settings
type StripeConfig struct {
	SecretKey  string
	BackendURL string // overrides the API endpoint, e.g. stripe-mock
	Timeout    time.Duration
}

// KafkaConfig holds the dunning notification producer settings
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
	MetricsInterval   time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with BILLING_ prefix (e.g., BILLING_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Billing: BillingConfig{
			CronEnabled:          v.GetBool("billing.cron_enabled"),
			CronSchedule:         v.GetString("billing.cron_schedule"),
			BatchSize:            v.GetInt("billing.batch_size"),
			DispatchTTL:          v.GetDuration("billing.dispatch_ttl"),
			WorkerCount:          v.GetInt("billing.worker_count"),
			PollInterval:         v.GetDuration("billing.poll_interval"),
			TaskTimeout:          v.GetDuration("billing.task_timeout"),
			TransientRetryDelay:  v.GetDuration("billing.transient_retry_delay"),
			MaxTransientAttempts: v.GetInt("billing.max_transient_attempts"),
			LockTTL:              v.GetDuration("billing.lock_ttl"),
			QueueBackend:         v.GetString("billing.queue_backend"),
			QueueKeyPrefix:       v.GetString("billing.queue_key_prefix"),
			Gateway:              v.GetString("billing.gateway"),
			CronRunRateLimit:     v.GetInt("billing.cron_run_rate_limit"),
			CronRunRateWindow:    v.GetDuration("billing.cron_run_rate_window"),
		},
		Stripe: StripeConfig{
			SecretKey:  v.GetString("stripe.secret_key"),
			BackendURL: v.GetString("stripe.backend_url"),
			Timeout:    v.GetDuration("stripe.timeout"),
		},
		Kafka: KafkaConfig{
			Enabled:      v.GetBool("kafka.enabled"),
			Brokers:      v.GetStringSlice("kafka.brokers"),
			Topic:        v.GetString("kafka.topic"),
			BatchTimeout: v.GetDuration("kafka.batch_timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "recurring-billing"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "billing"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Store-ID"}
	}

	// Billing defaults
	if cfg.Billing.CronSchedule == "" {
		cfg.Billing.CronSchedule = "*/5 * * * *"
	}
	if cfg.Billing.BatchSize == 0 {
		cfg.Billing.BatchSize = 500
	}
	if cfg.Billing.DispatchTTL == 0 {
		cfg.Billing.DispatchTTL = 24 * time.Hour
	}
	if cfg.Billing.WorkerCount == 0 {
		cfg.Billing.WorkerCount = 4
	}
	if cfg.Billing.PollInterval == 0 {
		cfg.Billing.PollInterval = 2 * time.Second
	}
	if cfg.Billing.TaskTimeout == 0 {
		cfg.Billing.TaskTimeout = 2 * time.Minute
	}
	if cfg.Billing.TransientRetryDelay == 0 {
		cfg.Billing.TransientRetryDelay = time.Minute
	}
	if cfg.Billing.MaxTransientAttempts == 0 {
		cfg.Billing.MaxTransientAttempts = 10
	}
	if cfg.Billing.LockTTL == 0 {
		cfg.Billing.LockTTL = 5 * time.Minute
	}
	if cfg.Billing.QueueBackend == "" {
		cfg.Billing.QueueBackend = QueueBackendMemory
	}
	if cfg.Billing.QueueKeyPrefix == "" {
		cfg.Billing.QueueKeyPrefix = "billing:queue:"
	}
	if cfg.Billing.Gateway == "" {
		cfg.Billing.Gateway = GatewayStripe
	}
	if cfg.Billing.CronRunRateLimit == 0 {
		cfg.Billing.CronRunRateLimit = 6
	}
	if cfg.Billing.CronRunRateWindow == 0 {
		cfg.Billing.CronRunRateWindow = time.Minute
	}
	if cfg.Stripe.Timeout == 0 {
		cfg.Stripe.Timeout = 30 * time.Second
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "billing.dunning-notifications"
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 50 * time.Millisecond
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "recurring-billing"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 15 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if err := c.Billing.validate(); err != nil {
		return err
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka.enabled is true")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Billing.Gateway == GatewayStripe && c.Stripe.SecretKey == "" {
			return fmt.Errorf("stripe.secret_key is required in production")
		}
		if c.Billing.Gateway == GatewayNone {
			return fmt.Errorf("billing.gateway cannot be 'none' in production")
		}
		if c.Billing.QueueBackend == QueueBackendMemory {
			return fmt.Errorf("billing.queue_backend cannot be 'memory' in production (tasks would not survive restarts)")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

func (b *BillingConfig) validate() error {
	if _, err := cron.ParseStandard(b.CronSchedule); err != nil {
		return fmt.Errorf("billing.cron_schedule %q is invalid: %w", b.CronSchedule, err)
	}
	switch b.QueueBackend {
	case QueueBackendMemory, QueueBackendRedis:
	default:
		return fmt.Errorf("billing.queue_backend must be %q or %q, got %q", QueueBackendMemory, QueueBackendRedis, b.QueueBackend)
	}
	switch b.Gateway {
	case GatewayStripe, GatewayNone:
	default:
		return fmt.Errorf("billing.gateway must be %q or %q, got %q", GatewayStripe, GatewayNone, b.Gateway)
	}
	if b.WorkerCount < 0 {
		return fmt.Errorf("billing.worker_count cannot be negative")
	}
	if b.BatchSize < 0 {
		return fmt.Errorf("billing.batch_size cannot be negative")
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
