package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Analysis    AnalysisConfig  `mapstructure:"analysis"`
	Causality   CausalityConfig `mapstructure:"causality"`
	Forecast    ForecastConfig  `mapstructure:"forecast"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AnalysisConfig covers the alignment window, derived features and the
// correlation engine.
type AnalysisConfig struct {
	Entities              []string `mapstructure:"entities"`
	FeatureSeries         []string `mapstructure:"feature_series"`
	LookbackWindow        string   `mapstructure:"lookback_window"`
	SamplingInterval      string   `mapstructure:"sampling_interval"`
	MaxStaleness          string   `mapstructure:"max_staleness"`
	CorrelationMinSamples int      `mapstructure:"correlation_min_samples"`
	HistoryRetention      int      `mapstructure:"history_retention"`
	DeriveFeatures        bool     `mapstructure:"derive_features"`
	IndicatorPeriod       int      `mapstructure:"indicator_period"`
}

type CausalityConfig struct {
	MaxLag          int      `mapstructure:"max_lag"`
	Alpha           float64  `mapstructure:"alpha"`
	MaxDiffAttempts int      `mapstructure:"max_diff_attempts"`
	Targets         []string `mapstructure:"targets"`
}

type ForecastConfig struct {
	Horizon        int      `mapstructure:"horizon"`
	SeasonalPeriod int      `mapstructure:"seasonal_period"`
	OrderPolicy    string   `mapstructure:"order_policy"` // "fixed" or "grid"
	FixedAR        int      `mapstructure:"fixed_ar"`
	FixedDiff      int      `mapstructure:"fixed_diff"`
	FixedSeasonal  int      `mapstructure:"fixed_seasonal"`
	MaxAR          int      `mapstructure:"max_ar"`
	MaxDiff        int      `mapstructure:"max_diff"`
	MaxSeasonal    int      `mapstructure:"max_seasonal"`
	Coverage       float64  `mapstructure:"coverage"`
	FitTimeout     string   `mapstructure:"fit_timeout"`
	Exogenous      []string `mapstructure:"exogenous"`
	MaxConcurrency int      `mapstructure:"max_concurrency"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CronSpec string `mapstructure:"cron_spec"`
}

type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	for _, field := range []struct {
		name, value string
	}{
		{"analysis.lookback_window", c.Analysis.LookbackWindow},
		{"analysis.sampling_interval", c.Analysis.SamplingInterval},
		{"analysis.max_staleness", c.Analysis.MaxStaleness},
		{"forecast.fit_timeout", c.Forecast.FitTimeout},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", field.name, err)
		}
	}

	if c.Causality.Alpha <= 0 || c.Causality.Alpha >= 1 {
		return fmt.Errorf("causality.alpha must be in (0, 1), got %v", c.Causality.Alpha)
	}
	if c.Causality.MaxLag < 1 {
		return fmt.Errorf("causality.max_lag must be >= 1, got %d", c.Causality.MaxLag)
	}
	if c.Forecast.Coverage <= 0 || c.Forecast.Coverage >= 1 {
		return fmt.Errorf("forecast.coverage must be in (0, 1), got %v", c.Forecast.Coverage)
	}
	if c.Forecast.Horizon < 1 {
		return fmt.Errorf("forecast.horizon must be >= 1, got %d", c.Forecast.Horizon)
	}
	if policy := c.Forecast.OrderPolicy; policy != "fixed" && policy != "grid" {
		return fmt.Errorf("forecast.order_policy must be \"fixed\" or \"grid\", got %q", policy)
	}
	if c.Analysis.HistoryRetention < 1 {
		return fmt.Errorf("analysis.history_retention must be >= 1, got %d", c.Analysis.HistoryRetention)
	}
	return nil
}

// LookbackDuration returns the parsed lookback window.
func (c *AnalysisConfig) LookbackDuration() time.Duration {
	d, _ := time.ParseDuration(c.LookbackWindow)
	return d
}

// IntervalDuration returns the parsed sampling interval.
func (c *AnalysisConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.SamplingInterval)
	return d
}

// StalenessDuration returns the parsed carry-forward staleness bound.
func (c *AnalysisConfig) StalenessDuration() time.Duration {
	d, _ := time.ParseDuration(c.MaxStaleness)
	return d
}

// FitTimeoutDuration returns the parsed per-entity fit timeout.
func (c *ForecastConfig) FitTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.FitTimeout)
	return d
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Set database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "trendlens")
	viper.SetDefault("database.sslmode", "disable")

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Analysis window and correlation
	viper.SetDefault("analysis.entities", []string{})
	viper.SetDefault("analysis.feature_series", []string{})
	viper.SetDefault("analysis.lookback_window", "720h")
	viper.SetDefault("analysis.sampling_interval", "1h")
	viper.SetDefault("analysis.max_staleness", "6h")
	viper.SetDefault("analysis.correlation_min_samples", 10)
	viper.SetDefault("analysis.history_retention", 10)
	viper.SetDefault("analysis.derive_features", true)
	viper.SetDefault("analysis.indicator_period", 14)

	// Causality
	viper.SetDefault("causality.max_lag", 5)
	viper.SetDefault("causality.alpha", 0.05)
	viper.SetDefault("causality.max_diff_attempts", 2)
	viper.SetDefault("causality.targets", []string{})

	// Forecast
	viper.SetDefault("forecast.horizon", 24)
	viper.SetDefault("forecast.seasonal_period", 24)
	viper.SetDefault("forecast.order_policy", "grid")
	viper.SetDefault("forecast.fixed_ar", 2)
	viper.SetDefault("forecast.fixed_diff", 0)
	viper.SetDefault("forecast.fixed_seasonal", 1)
	viper.SetDefault("forecast.max_ar", 3)
	viper.SetDefault("forecast.max_diff", 1)
	viper.SetDefault("forecast.max_seasonal", 1)
	viper.SetDefault("forecast.coverage", 0.95)
	viper.SetDefault("forecast.fit_timeout", "30s")
	viper.SetDefault("forecast.exogenous", []string{})
	viper.SetDefault("forecast.max_concurrency", 4)

	// Scheduler
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.cron_spec", "0 * * * *")

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
}
