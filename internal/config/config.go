package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	RabbitMQ       RabbitMQConfig       `yaml:"rabbitmq"`
	Redis          RedisConfig          `yaml:"redis"`
	Gateway        GatewayConfig        `yaml:"gateway"`
	LMS            LMSConfig            `yaml:"lms"`
	Incubator      IncubatorConfig      `yaml:"incubator"`
	Email          EmailConfig          `yaml:"email"`
	Logging        LoggingConfig        `yaml:"logging"`
	App            AppConfig            `yaml:"app"`
	Worker         WorkerConfig         `yaml:"worker"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// RedisConfig holds the realtime channel configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

// GatewayConfig holds payment gateway settings
type GatewayConfig struct {
	BaseURL       string        `yaml:"base_url"`
	SecretKey     string        `yaml:"secret_key"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Timeout       time.Duration `yaml:"timeout"`
}

// LMSConfig holds LMS API settings
type LMSConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// IncubatorConfig holds talent-incubator API settings
type IncubatorConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// EmailConfig holds SendGrid settings
type EmailConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	PrefetchCount     int           `yaml:"prefetch_count"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// ReconciliationConfig holds the self-healing thresholds and schedules.
type ReconciliationConfig struct {
	// PendingAge is how old a pending payment must be before the poller
	// re-verifies it (lost-webhook safety net).
	PendingAge time.Duration `yaml:"pending_age"`
	// AbandonAge is how old a pending payment must be before cleanup
	// cancels it and drops its enrollment.
	AbandonAge time.Duration `yaml:"abandon_age"`
	// StalledAfter is how long a running job may go without a worker
	// heartbeat before the scheduler requeues it.
	StalledAfter    time.Duration `yaml:"stalled_after"`
	PollSpec        string        `yaml:"poll_spec"`
	CleanupSpec     string        `yaml:"cleanup_spec"`
	PeriodicSpec    string        `yaml:"periodic_sync_spec"`
	PromoteInterval time.Duration `yaml:"promote_interval"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Secrets live in the environment; the file carries ${VAR} references.
	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Reconciliation.PendingAge <= 0 {
		c.Reconciliation.PendingAge = 15 * time.Minute
	}
	if c.Reconciliation.AbandonAge <= 0 {
		c.Reconciliation.AbandonAge = 72 * time.Hour
	}
	if c.Reconciliation.StalledAfter <= 0 {
		c.Reconciliation.StalledAfter = 2 * time.Minute
	}
	if c.Reconciliation.PollSpec == "" {
		c.Reconciliation.PollSpec = "*/15 * * * *"
	}
	if c.Reconciliation.CleanupSpec == "" {
		c.Reconciliation.CleanupSpec = "0 3 * * *"
	}
	if c.Reconciliation.PeriodicSpec == "" {
		c.Reconciliation.PeriodicSpec = "@every 1m"
	}
	if c.Reconciliation.PromoteInterval <= 0 {
		c.Reconciliation.PromoteInterval = 5 * time.Second
	}
}

// ValidateAPIConfig checks the configuration the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Gateway.WebhookSecret == "" {
		return fmt.Errorf("gateway webhook secret is required")
	}

	return c.validateShared()
}

// ValidateWorkerConfig checks the configuration the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.PrefetchCount <= 0 {
		return fmt.Errorf("worker prefetch_count must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker heartbeat_interval must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Gateway.SecretKey == "" {
		return fmt.Errorf("gateway secret key is required")
	}

	if c.LMS.BaseURL == "" {
		return fmt.Errorf("lms base_url is required")
	}

	return c.validateShared()
}

func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	return nil
}
