package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// Config holds the configuration for a W.A.T.S.O.N. agent
type Config struct {
	// MQTT configuration
	MQTTBroker   string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTClientID string

	// Redis configuration
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Postgres configuration (Home Assistant recorder database)
	PostgresHost               string
	PostgresPort               int
	PostgresUser               string
	PostgresPassword           string
	PostgresDB                 string
	PostgresSSLMode            string
	PostgresMaxConnections     int
	PostgresMaxIdleConnections int
	PostgresConnMaxLifetime    time.Duration

	// Service configuration
	ServiceName string
	HealthPort  int
	LogLevel    string

	// Analysis configuration
	FetchConcurrency    int
	AnalysisConcurrency int // 0 means derive from CPU count
	HistoryCacheTTL     time.Duration

	// Period generation configuration (daylight labeling)
	Latitude  float64
	Longitude float64

	// Simulation defaults
	DefaultPrior                float64
	DefaultProbabilityThreshold float64
	DefaultSampleIntervalMin    int
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBroker:    "localhost",
		MQTTPort:      1883,
		MQTTUser:      "",
		MQTTPassword:  "",
		MQTTClientID:  "",
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		PostgresHost:               "localhost",
		PostgresPort:               5432,
		PostgresUser:               "homeassistant",
		PostgresPassword:           "",
		PostgresDB:                 "homeassistant",
		PostgresSSLMode:            "disable",
		PostgresMaxConnections:     10,
		PostgresMaxIdleConnections: 2,
		PostgresConnMaxLifetime:    30 * time.Minute,

		ServiceName: "watson-agent",
		HealthPort:  8080,
		LogLevel:    "info",

		FetchConcurrency:    2,
		AnalysisConcurrency: 0,
		HistoryCacheTTL:     30 * time.Minute,

		// Helsinki coordinates by default, same as the sensor fleet
		Latitude:  60.1695,
		Longitude: 24.9354,

		DefaultPrior:                0.5,
		DefaultProbabilityThreshold: 0.8,
		DefaultSampleIntervalMin:    5,
	}
}

// LoadFromEnv loads configuration from environment variables with WATSON_ prefix
func (c *Config) LoadFromEnv() {
	// MQTT configuration
	if v := os.Getenv("WATSON_MQTT_BROKER"); v != "" {
		c.MQTTBroker = v
	}
	if v := os.Getenv("WATSON_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.MQTTPort = port
		}
	}
	if v := os.Getenv("WATSON_MQTT_USER"); v != "" {
		c.MQTTUser = v
	}
	if v := os.Getenv("WATSON_MQTT_PASSWORD"); v != "" {
		c.MQTTPassword = v
	}
	if v := os.Getenv("WATSON_MQTT_CLIENT_ID"); v != "" {
		c.MQTTClientID = v
	}

	// Redis configuration
	if v := os.Getenv("WATSON_REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := os.Getenv("WATSON_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.RedisPort = port
		}
	}
	if v := os.Getenv("WATSON_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("WATSON_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.RedisDB = db
		}
	}

	// Postgres configuration
	if v := os.Getenv("WATSON_POSTGRES_HOST"); v != "" {
		c.PostgresHost = v
	}
	if v := os.Getenv("WATSON_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.PostgresPort = port
		}
	}
	if v := os.Getenv("WATSON_POSTGRES_USER"); v != "" {
		c.PostgresUser = v
	}
	if v := os.Getenv("WATSON_POSTGRES_PASSWORD"); v != "" {
		c.PostgresPassword = v
	}
	if v := os.Getenv("WATSON_POSTGRES_DB"); v != "" {
		c.PostgresDB = v
	}
	if v := os.Getenv("WATSON_POSTGRES_SSL_MODE"); v != "" {
		c.PostgresSSLMode = v
	}
	if v := os.Getenv("WATSON_POSTGRES_MAX_CONNECTIONS"); v != "" {
		if max, err := strconv.Atoi(v); err == nil {
			c.PostgresMaxConnections = max
		}
	}

	// Service configuration
	if v := os.Getenv("WATSON_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("WATSON_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HealthPort = port
		}
	}
	if v := os.Getenv("WATSON_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	// Analysis configuration
	if v := os.Getenv("WATSON_FETCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FetchConcurrency = n
		}
	}
	if v := os.Getenv("WATSON_ANALYSIS_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AnalysisConcurrency = n
		}
	}
	if v := os.Getenv("WATSON_HISTORY_CACHE_TTL_MIN"); v != "" {
		if min, err := strconv.Atoi(v); err == nil {
			c.HistoryCacheTTL = time.Duration(min) * time.Minute
		}
	}

	// Period generation configuration
	if v := os.Getenv("WATSON_LATITUDE"); v != "" {
		if lat, err := strconv.ParseFloat(v, 64); err == nil {
			c.Latitude = lat
		}
	}
	if v := os.Getenv("WATSON_LONGITUDE"); v != "" {
		if lon, err := strconv.ParseFloat(v, 64); err == nil {
			c.Longitude = lon
		}
	}

	// Simulation defaults
	if v := os.Getenv("WATSON_DEFAULT_PRIOR"); v != "" {
		if prior, err := strconv.ParseFloat(v, 64); err == nil {
			c.DefaultPrior = prior
		}
	}
	if v := os.Getenv("WATSON_DEFAULT_PROBABILITY_THRESHOLD"); v != "" {
		if threshold, err := strconv.ParseFloat(v, 64); err == nil {
			c.DefaultProbabilityThreshold = threshold
		}
	}
	if v := os.Getenv("WATSON_DEFAULT_SAMPLE_INTERVAL_MIN"); v != "" {
		if min, err := strconv.Atoi(v); err == nil {
			c.DefaultSampleIntervalMin = min
		}
	}
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags() {
	// MQTT flags
	pflag.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	pflag.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	pflag.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	pflag.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	pflag.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Redis flags
	pflag.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname")
	pflag.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	pflag.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	pflag.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")

	// Postgres flags
	pflag.StringVar(&c.PostgresHost, "postgres-host", c.PostgresHost, "Postgres hostname")
	pflag.IntVar(&c.PostgresPort, "postgres-port", c.PostgresPort, "Postgres port")
	pflag.StringVar(&c.PostgresUser, "postgres-user", c.PostgresUser, "Postgres username")
	pflag.StringVar(&c.PostgresPassword, "postgres-password", c.PostgresPassword, "Postgres password")
	pflag.StringVar(&c.PostgresDB, "postgres-db", c.PostgresDB, "Postgres database name")
	pflag.StringVar(&c.PostgresSSLMode, "postgres-ssl-mode", c.PostgresSSLMode, "Postgres SSL mode")

	// Service flags
	pflag.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	pflag.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	pflag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")

	// Analysis flags
	pflag.IntVar(&c.FetchConcurrency, "fetch-concurrency", c.FetchConcurrency, "Maximum concurrent history fetches")
	pflag.IntVar(&c.AnalysisConcurrency, "analysis-concurrency", c.AnalysisConcurrency, "Maximum concurrent analysis tasks (0 = derive from CPU count)")
	pflag.DurationVar(&c.HistoryCacheTTL, "history-cache-ttl", c.HistoryCacheTTL, "TTL for cached entity history")

	// Period generation flags
	pflag.Float64Var(&c.Latitude, "latitude", c.Latitude, "Geographic latitude for daylight period generation")
	pflag.Float64Var(&c.Longitude, "longitude", c.Longitude, "Geographic longitude for daylight period generation")

	// Simulation flags
	pflag.Float64Var(&c.DefaultPrior, "default-prior", c.DefaultPrior, "Default Bayesian prior probability")
	pflag.Float64Var(&c.DefaultProbabilityThreshold, "default-probability-threshold", c.DefaultProbabilityThreshold, "Default ON/OFF probability threshold")
	pflag.IntVar(&c.DefaultSampleIntervalMin, "default-sample-interval-min", c.DefaultSampleIntervalMin, "Default simulation sampling interval in minutes")

	pflag.Parse()
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT broker is required")
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("Redis host is required")
	}
	if c.RedisPort <= 0 || c.RedisPort > 65535 {
		return fmt.Errorf("Redis port must be between 1 and 65535")
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("Postgres host is required")
	}
	if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
		return fmt.Errorf("Postgres port must be between 1 and 65535")
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("fetch concurrency must be positive")
	}
	if c.AnalysisConcurrency < 0 {
		return fmt.Errorf("analysis concurrency must not be negative")
	}
	if c.DefaultPrior <= 0 || c.DefaultPrior >= 1 {
		return fmt.Errorf("default prior must be strictly between 0 and 1")
	}
	if c.DefaultProbabilityThreshold <= 0 || c.DefaultProbabilityThreshold > 1 {
		return fmt.Errorf("default probability threshold must be in (0, 1]")
	}
	if c.DefaultSampleIntervalMin <= 0 {
		return fmt.Errorf("default sample interval must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresConnectionString returns the lib/pq connection string
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode)
}
