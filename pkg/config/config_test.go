package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "localhost", cfg.MQTTBroker)
	assert.Equal(t, 1883, cfg.MQTTPort)
	assert.Equal(t, "localhost", cfg.RedisHost)
	assert.Equal(t, 6379, cfg.RedisPort)
	assert.Equal(t, 5432, cfg.PostgresPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2, cfg.FetchConcurrency)
	assert.Equal(t, 0, cfg.AnalysisConcurrency)
	assert.Equal(t, 30*time.Minute, cfg.HistoryCacheTTL)
	assert.Equal(t, 0.5, cfg.DefaultPrior)
	assert.Equal(t, 0.8, cfg.DefaultProbabilityThreshold)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WATSON_MQTT_BROKER", "broker.local")
	t.Setenv("WATSON_MQTT_PORT", "8883")
	t.Setenv("WATSON_FETCH_CONCURRENCY", "4")
	t.Setenv("WATSON_HISTORY_CACHE_TTL_MIN", "60")
	t.Setenv("WATSON_DEFAULT_PRIOR", "0.3")
	t.Setenv("WATSON_LATITUDE", "52.52")

	cfg := NewConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, "broker.local", cfg.MQTTBroker)
	assert.Equal(t, 8883, cfg.MQTTPort)
	assert.Equal(t, 4, cfg.FetchConcurrency)
	assert.Equal(t, time.Hour, cfg.HistoryCacheTTL)
	assert.Equal(t, 0.3, cfg.DefaultPrior)
	assert.Equal(t, 52.52, cfg.Latitude)
}

func TestLoadFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WATSON_MQTT_PORT", "not-a-port")
	t.Setenv("WATSON_DEFAULT_PRIOR", "lots")

	cfg := NewConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, 1883, cfg.MQTTPort)
	assert.Equal(t, 0.5, cfg.DefaultPrior)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing broker", func(c *Config) { c.MQTTBroker = "" }, "MQTT broker"},
		{"bad mqtt port", func(c *Config) { c.MQTTPort = 70000 }, "MQTT port"},
		{"missing redis host", func(c *Config) { c.RedisHost = "" }, "Redis host"},
		{"missing postgres host", func(c *Config) { c.PostgresHost = "" }, "Postgres host"},
		{"zero fetch concurrency", func(c *Config) { c.FetchConcurrency = 0 }, "fetch concurrency"},
		{"negative analysis concurrency", func(c *Config) { c.AnalysisConcurrency = -1 }, "analysis concurrency"},
		{"prior at zero", func(c *Config) { c.DefaultPrior = 0 }, "prior"},
		{"prior at one", func(c *Config) { c.DefaultPrior = 1 }, "prior"},
		{"threshold above one", func(c *Config) { c.DefaultProbabilityThreshold = 1.1 }, "threshold"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestAddressHelpers(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTAddress())
	assert.Equal(t, "localhost:6379", cfg.RedisAddress())
	assert.Contains(t, cfg.PostgresConnectionString(), "host=localhost")
	assert.Contains(t, cfg.PostgresConnectionString(), "sslmode=disable")
}
