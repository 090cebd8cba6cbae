package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Feed     Feed     `mapstructure:"feed"`
	Tracker  Tracker  `mapstructure:"tracker"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Feed holds the configuration for the market data feed.
type Feed struct {
	Mode           string  `mapstructure:"mode"` // "live" or "replay"
	GatewayURL     string  `mapstructure:"gateway_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	RateCacheTTLMs int     `mapstructure:"rate_cache_ttl_ms"`
	RequestTimeout int     `mapstructure:"request_timeout"` // seconds per gateway call
	ReplaySeed     int64   `mapstructure:"replay_seed"`
}

// Tracker holds the timing knobs for the two background loops.
// All values are in seconds.
type Tracker struct {
	ReconcileInterval int `mapstructure:"reconcile_interval"`
	ValuationInterval int `mapstructure:"valuation_interval"`
	ErrorBackoff      int `mapstructure:"error_backoff"`
	OpTimeout         int `mapstructure:"op_timeout"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("feed.mode", "replay")
	viper.SetDefault("feed.gateway_url", "http://127.0.0.1:8194")
	viper.SetDefault("feed.rate_limit", 20) // requests per second
	viper.SetDefault("feed.rate_limit_burst", 5)
	viper.SetDefault("feed.rate_cache_ttl_ms", 500)
	viper.SetDefault("feed.request_timeout", 10)
	viper.SetDefault("tracker.reconcile_interval", 30)
	viper.SetDefault("tracker.valuation_interval", 1)
	viper.SetDefault("tracker.error_backoff", 5)
	viper.SetDefault("tracker.op_timeout", 10)
	viper.SetDefault("server.port", 8765)
	viper.SetDefault("database.dsn", "file:fx_trades.db?_busy_timeout=10000")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
