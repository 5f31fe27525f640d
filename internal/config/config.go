// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Blacklist  BlacklistConfig  `mapstructure:"blacklist"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// ExchangeConfig holds exchange gateway configuration.
type ExchangeConfig struct {
	RESTURL        string        `mapstructure:"rest_url"`
	WebSocketURL   string        `mapstructure:"websocket_url"`
	APIKey         string        `mapstructure:"api_key"`
	APISecret      string        `mapstructure:"api_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RequestsPerMin int           `mapstructure:"requests_per_min"`
}

// EngineConfig holds the analysis and execution parameters.
type EngineConfig struct {
	BaseCurrencies    []string      `mapstructure:"base_currencies"`
	FiatCurrencies    []string      `mapstructure:"fiat_currencies"`
	CurrencyBlacklist []string      `mapstructure:"currency_blacklist"`
	MinProfitPct      float64       `mapstructure:"min_profit_pct"`
	VolumePercent     float64       `mapstructure:"volume_percent"`
	MaxDepth          int           `mapstructure:"max_depth"`
	DryRun            bool          `mapstructure:"dry_run"`
	TakerFee          float64       `mapstructure:"taker_fee"`
	SafetyMargin      float64       `mapstructure:"safety_margin"`
	AbsoluteMinimum   float64       `mapstructure:"absolute_minimum"`
	OrderBookDepth    int           `mapstructure:"order_book_depth"`
	ScanInterval      time.Duration `mapstructure:"scan_interval"`
	WarmupDelay       time.Duration `mapstructure:"warmup_delay"`
	HitCooldown       time.Duration `mapstructure:"hit_cooldown"`
	OrderPollInterval time.Duration `mapstructure:"order_poll_interval"`
	OrderFillTimeout  time.Duration `mapstructure:"order_fill_timeout"`
}

// StreamConfig holds order-book stream lifecycle parameters.
type StreamConfig struct {
	ReconnectBackoff     time.Duration `mapstructure:"reconnect_backoff"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	HealthyAge           time.Duration `mapstructure:"healthy_age"`
}

// SupervisorConfig holds engine restart behaviour.
type SupervisorConfig struct {
	RestartCooldown time.Duration `mapstructure:"restart_cooldown"`
}

// TelegramConfig holds the operator console credentials.
type TelegramConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Token       string        `mapstructure:"token"`
	ChatID      string        `mapstructure:"chat_id"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	PrometheusEnabled bool `mapstructure:"prometheus_enabled"`
	PrometheusPort    int  `mapstructure:"prometheus_port"`
	HealthPort        int  `mapstructure:"health_port"`
}

// BlacklistConfig holds the persistent blacklist location.
type BlacklistConfig struct {
	Path string `mapstructure:"path"`
}

// MinProfitPctDecimal returns the profit threshold as decimal.Decimal.
func (c *EngineConfig) MinProfitPctDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfitPct)
}

// VolumePercentDecimal returns the volume percentage as decimal.Decimal.
func (c *EngineConfig) VolumePercentDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.VolumePercent)
}

// TakerFeeDecimal returns the taker fee as decimal.Decimal.
func (c *EngineConfig) TakerFeeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.TakerFee)
}

// SafetyMarginDecimal returns the safety margin as decimal.Decimal.
func (c *EngineConfig) SafetyMarginDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.SafetyMargin)
}

// AbsoluteMinimumDecimal returns the minimum tradable notional as decimal.Decimal.
func (c *EngineConfig) AbsoluteMinimumDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.AbsoluteMinimum)
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("TRIARB")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "TRIARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "TRIARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "TRIARB_LOG_LEVEL", "LOG_LEVEL")

	// Exchange
	v.BindEnv("exchange.rest_url", "TRIARB_EXCHANGE_REST_URL", "EXCHANGE_REST_URL")
	v.BindEnv("exchange.websocket_url", "TRIARB_EXCHANGE_WS_URL", "EXCHANGE_WS_URL")
	v.BindEnv("exchange.api_key", "TRIARB_EXCHANGE_API_KEY", "BINANCE_API_KEY")
	v.BindEnv("exchange.api_secret", "TRIARB_EXCHANGE_API_SECRET", "BINANCE_API_SECRET")

	// Engine
	v.BindEnv("engine.min_profit_pct", "TRIARB_MIN_PROFIT_PCT")
	v.BindEnv("engine.volume_percent", "TRIARB_VOLUME_PERCENT")
	v.BindEnv("engine.max_depth", "TRIARB_MAX_DEPTH")
	v.BindEnv("engine.dry_run", "TRIARB_DRY_RUN")

	// Telegram
	v.BindEnv("telegram.token", "TRIARB_TELEGRAM_TOKEN", "TELEGRAM_TOKEN")
	v.BindEnv("telegram.chat_id", "TRIARB_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")

	// Telemetry
	v.BindEnv("telemetry.prometheus_port", "TRIARB_PROMETHEUS_PORT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "triarb")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Exchange defaults
	v.SetDefault("exchange.rest_url", "https://api.binance.com")
	v.SetDefault("exchange.websocket_url", "wss://stream.binance.com:9443")
	v.SetDefault("exchange.request_timeout", "60s")
	v.SetDefault("exchange.requests_per_min", 1100)

	// Engine defaults
	v.SetDefault("engine.base_currencies", []string{"USDT", "USDC"})
	v.SetDefault("engine.fiat_currencies", []string{
		"BRL", "EUR", "GBP", "USD", "TRY", "ARS", "COP", "UAH",
		"PLN", "RON", "ZAR", "NGN", "JPY", "MXN", "CZK",
	})
	v.SetDefault("engine.currency_blacklist", []string{})
	v.SetDefault("engine.min_profit_pct", 0.3)
	v.SetDefault("engine.volume_percent", 100)
	v.SetDefault("engine.max_depth", 3)
	v.SetDefault("engine.dry_run", true)
	v.SetDefault("engine.taker_fee", 0.001)
	v.SetDefault("engine.safety_margin", 0.95)
	v.SetDefault("engine.absolute_minimum", 10)
	v.SetDefault("engine.order_book_depth", 100)
	v.SetDefault("engine.scan_interval", "1s")
	v.SetDefault("engine.warmup_delay", "500ms")
	v.SetDefault("engine.hit_cooldown", "60s")
	v.SetDefault("engine.order_poll_interval", "500ms")
	v.SetDefault("engine.order_fill_timeout", "60s")

	// Stream defaults
	v.SetDefault("stream.reconnect_backoff", "10s")
	v.SetDefault("stream.max_reconnect_attempts", 5)
	v.SetDefault("stream.healthy_age", "10s")

	// Supervisor defaults
	v.SetDefault("supervisor.restart_cooldown", "15s")

	// Telegram defaults
	v.SetDefault("telegram.enabled", true)
	v.SetDefault("telegram.poll_timeout", "30s")

	// Telemetry defaults
	v.SetDefault("telemetry.prometheus_enabled", true)
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.health_port", 8081)

	// Blacklist defaults
	v.SetDefault("blacklist.path", "persistent_blacklist.json")
}

// MinRouteDepth is the minimum number of legs in an analysable cycle.
// A two-leg round trip through the same market is never an opportunity.
const MinRouteDepth = 3

// MaxRouteDepth bounds the cycle enumeration.
const MaxRouteDepth = 5

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Engine.BaseCurrencies) == 0 {
		return fmt.Errorf("engine.base_currencies cannot be empty")
	}
	if c.Engine.VolumePercent <= 0 || c.Engine.VolumePercent > 100 {
		return fmt.Errorf("engine.volume_percent must be in (0,100], got %v", c.Engine.VolumePercent)
	}
	if c.Engine.MaxDepth < MinRouteDepth || c.Engine.MaxDepth > MaxRouteDepth {
		return fmt.Errorf("engine.max_depth must be in [%d,%d], got %d", MinRouteDepth, MaxRouteDepth, c.Engine.MaxDepth)
	}
	if c.Engine.TakerFee < 0 || c.Engine.TakerFee >= 1 {
		return fmt.Errorf("engine.taker_fee must be in [0,1), got %v", c.Engine.TakerFee)
	}
	if c.Engine.OrderBookDepth <= 0 {
		return fmt.Errorf("engine.order_book_depth must be positive")
	}
	if !c.Engine.DryRun && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("exchange.api_key and exchange.api_secret are required outside dry-run")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.token and telegram.chat_id are required when telegram.enabled")
	}
	return nil
}
