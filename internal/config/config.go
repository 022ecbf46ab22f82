package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Exchange  ExchangeConfig
	Arbitrage ArbitrageConfig
	Scheduler SchedulerConfig
	Audit     AuditConfig
	Log       LogConfig
}

// ExchangeConfig defines the exchange connection settings.
type ExchangeConfig struct {
	Name             string `mapstructure:"name"`
	Testnet          bool   `mapstructure:"testnet"`
	APIKey           string `mapstructure:"api_key"`
	APISecret        string `mapstructure:"api_secret"`
	RequestTimeoutMS int    `mapstructure:"request_timeout_ms"`
}

// RequestTimeout bounds every single network call.
func (e ExchangeConfig) RequestTimeout() time.Duration {
	return time.Duration(e.RequestTimeoutMS) * time.Millisecond
}

// ArbitrageConfig defines the arbitrage-related settings.
type ArbitrageConfig struct {
	QuoteCurrency      string   `mapstructure:"quote_currency"`
	BridgeAsset        string   `mapstructure:"bridge_asset"`
	ExcludedBases      []string `mapstructure:"excluded_bases"`
	MinProfitThreshold float64  `mapstructure:"min_profit_threshold"`
	TakerFeeRate       float64  `mapstructure:"taker_fee_rate"`
	CapitalAllocation  float64  `mapstructure:"capital_allocation"`
	FillTolerance      float64  `mapstructure:"fill_tolerance"`
	PriceTolerance     float64  `mapstructure:"price_tolerance"`
}

// SchedulerConfig defines the scan loop pacing.
type SchedulerConfig struct {
	ScanIntervalMS  int `mapstructure:"scan_interval_ms"`
	TriangleDelayMS int `mapstructure:"triangle_delay_ms"`
}

func (s SchedulerConfig) ScanInterval() time.Duration {
	return time.Duration(s.ScanIntervalMS) * time.Millisecond
}

func (s SchedulerConfig) TriangleDelay() time.Duration {
	return time.Duration(s.TriangleDelayMS) * time.Millisecond
}

// AuditConfig defines where audit records are written.
type AuditConfig struct {
	CSVPath       string `mapstructure:"csv_path"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	LogDetections bool   `mapstructure:"log_detections"`
}

// LogConfig defines console logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("exchange.name", "binance")
	v.SetDefault("exchange.testnet", true)
	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.api_secret", "")
	v.SetDefault("exchange.request_timeout_ms", 5000)

	v.SetDefault("arbitrage.quote_currency", "USDT")
	v.SetDefault("arbitrage.bridge_asset", "BTC")
	v.SetDefault("arbitrage.excluded_bases", []string{})
	v.SetDefault("arbitrage.min_profit_threshold", 0.001)
	v.SetDefault("arbitrage.taker_fee_rate", 0.001)
	v.SetDefault("arbitrage.capital_allocation", 20.0)
	v.SetDefault("arbitrage.fill_tolerance", 0.001)
	v.SetDefault("arbitrage.price_tolerance", 0.05)

	v.SetDefault("scheduler.scan_interval_ms", 10000)
	v.SetDefault("scheduler.triangle_delay_ms", 200)

	v.SetDefault("audit.csv_path", "arbitrage_log.csv")
	v.SetDefault("audit.postgres_dsn", "")
	v.SetDefault("audit.log_detections", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment apply.
func LoadConfig(path string) (config Config, err error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}
	config.Arbitrage.QuoteCurrency = strings.ToUpper(config.Arbitrage.QuoteCurrency)
	config.Arbitrage.BridgeAsset = strings.ToUpper(config.Arbitrage.BridgeAsset)
	for i, b := range config.Arbitrage.ExcludedBases {
		config.Arbitrage.ExcludedBases[i] = strings.ToUpper(b)
	}

	err = config.Validate()
	return
}

// Validate rejects configurations the engine cannot trade with.
func (c Config) Validate() error {
	a := c.Arbitrage
	switch {
	case a.QuoteCurrency == "" || a.BridgeAsset == "":
		return errors.New("quote_currency and bridge_asset are required")
	case a.QuoteCurrency == a.BridgeAsset:
		return fmt.Errorf("bridge_asset must differ from quote_currency (%s)", a.QuoteCurrency)
	case a.CapitalAllocation <= 0:
		return fmt.Errorf("capital_allocation must be positive, got %v", a.CapitalAllocation)
	case a.TakerFeeRate < 0 || a.TakerFeeRate >= 1:
		return fmt.Errorf("taker_fee_rate out of range: %v", a.TakerFeeRate)
	case a.FillTolerance < 0 || a.PriceTolerance < 0:
		return errors.New("fill_tolerance and price_tolerance must not be negative")
	case c.Scheduler.ScanIntervalMS <= 0:
		return fmt.Errorf("scan_interval_ms must be positive, got %d", c.Scheduler.ScanIntervalMS)
	case c.Scheduler.TriangleDelayMS < 0:
		return fmt.Errorf("triangle_delay_ms must not be negative, got %d", c.Scheduler.TriangleDelayMS)
	case c.Exchange.RequestTimeoutMS <= 0:
		return fmt.Errorf("request_timeout_ms must be positive, got %d", c.Exchange.RequestTimeoutMS)
	case c.Audit.CSVPath == "":
		return errors.New("audit.csv_path is required")
	}
	return nil
}
