package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "enrollment_db", cfg.Database.Database)
				assert.Equal(t, "enrollment_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "enrollment-api-service", cfg.App.Name)
				assert.Equal(t, "whsec_test", cfg.Gateway.WebhookSecret)
			}
		})
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_live_from_env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "gateway:\n  secret_key: ${PAYSTACK_SECRET_KEY}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk_live_from_env", cfg.Gateway.SecretKey)
}

func TestLoad_AppliesReconciliationDefaults(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Reconciliation.PendingAge)
	assert.Equal(t, 72*time.Hour, cfg.Reconciliation.AbandonAge)
	assert.Equal(t, 2*time.Minute, cfg.Reconciliation.StalledAfter)
	assert.Equal(t, "*/15 * * * *", cfg.Reconciliation.PollSpec)
	assert.Equal(t, "0 3 * * *", cfg.Reconciliation.CleanupSpec)
	assert.Equal(t, "@every 1m", cfg.Reconciliation.PeriodicSpec)
	assert.Equal(t, 5*time.Second, cfg.Reconciliation.PromoteInterval)
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080},
			Database: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "enrollment_db",
			},
			RabbitMQ: RabbitMQConfig{
				Host: "localhost",
				Port: 5672,
				Exchange: ExchangeConfig{
					Name: "enrollment_exchange",
				},
			},
			Gateway: GatewayConfig{
				SecretKey:     "sk_test_abc",
				WebhookSecret: "whsec_test",
			},
		}
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "missing webhook secret",
			mutate:    func(c *Config) { c.Gateway.WebhookSecret = "" },
			wantErr:   true,
			errString: "webhook secret is required",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "enrollment_db",
			},
			RabbitMQ: RabbitMQConfig{
				Host: "localhost",
				Port: 5672,
				Exchange: ExchangeConfig{
					Name: "enrollment_exchange",
				},
			},
			Gateway: GatewayConfig{
				SecretKey: "sk_test_abc",
			},
			LMS: LMSConfig{
				BaseURL: "http://localhost:8081",
			},
			Worker: WorkerConfig{
				Concurrency:       4,
				PrefetchCount:     8,
				JobTimeout:        2 * time.Minute,
				HeartbeatInterval: 30 * time.Second,
				ShutdownTimeout:   30 * time.Second,
			},
		}
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "concurrency must be greater than 0",
		},
		{
			name:      "zero prefetch count",
			mutate:    func(c *Config) { c.Worker.PrefetchCount = 0 },
			wantErr:   true,
			errString: "prefetch_count must be greater than 0",
		},
		{
			name:      "zero job timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = 0 },
			wantErr:   true,
			errString: "job_timeout must be greater than 0",
		},
		{
			name:      "zero heartbeat interval",
			mutate:    func(c *Config) { c.Worker.HeartbeatInterval = 0 },
			wantErr:   true,
			errString: "heartbeat_interval must be greater than 0",
		},
		{
			name:      "missing gateway secret key",
			mutate:    func(c *Config) { c.Gateway.SecretKey = "" },
			wantErr:   true,
			errString: "gateway secret key is required",
		},
		{
			name:      "missing lms base url",
			mutate:    func(c *Config) { c.LMS.BaseURL = "" },
			wantErr:   true,
			errString: "lms base_url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with missing webhook secret", func(t *testing.T) {
		cfg, err := Load("testdata/missing_webhook_secret.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "webhook secret is required")
	})
}
