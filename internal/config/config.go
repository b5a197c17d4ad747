package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/Bilal2742/Crypto-bot/internal/logging"
)

var (
	// ErrMissingRequired is returned when a required credential is absent.
	ErrMissingRequired = errors.New("config: missing required value")
	// ErrInvalid is returned when a value is present but unusable.
	ErrInvalid = errors.New("config: invalid value")
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Binance   BinanceConfig   `mapstructure:"binance"`
	Health    HealthConfig    `mapstructure:"health"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Shutdown  ShutdownConfig  `mapstructure:"shutdown"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// TelegramConfig holds bot credentials and delivery settings.
type TelegramConfig struct {
	BotToken        string        `mapstructure:"bot_token"`
	ChatID          string        `mapstructure:"chat_id"`
	BotName         string        `mapstructure:"bot_name"`
	APIBase         string        `mapstructure:"api_base"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	CommandsEnabled bool          `mapstructure:"commands_enabled"`
	PollTimeout     time.Duration `mapstructure:"poll_timeout"`
	Announce        bool          `mapstructure:"announce"`
}

// FeedConfig describes the exchange ticker stream.
type FeedConfig struct {
	URL              string        `mapstructure:"url"`
	ReceiveTimeout   time.Duration `mapstructure:"receive_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	QuoteAssets      []string      `mapstructure:"quote_assets"`
	Symbols          []string      `mapstructure:"symbols"`
	BufferSize       int           `mapstructure:"buffer_size"`
}

// ReconnectConfig is the retry policy around the feed.
type ReconnectConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase float64       `mapstructure:"backoff_base"`
	BackoffUnit time.Duration `mapstructure:"backoff_unit"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
}

// AlertsConfig defines per-horizon thresholds and routing.
type AlertsConfig struct {
	// Thresholds maps a horizon label such as "5m" to a percent-change threshold.
	Thresholds    map[string]float64 `mapstructure:"thresholds"`
	Cooldown      time.Duration      `mapstructure:"cooldown"`
	Resolution    time.Duration      `mapstructure:"resolution"`
	QueueSize     int                `mapstructure:"queue_size"`
	ChartEnabled  bool               `mapstructure:"chart_enabled"`
	ChartInterval string             `mapstructure:"chart_interval"`
	ChartPoints   int                `mapstructure:"chart_points"`
}

// BinanceConfig covers the REST client used for chart history.
type BinanceConfig struct {
	RESTBaseURL string `mapstructure:"rest_base_url"`
	APIKey      string `mapstructure:"api_key"`
	SecretKey   string `mapstructure:"secret_key"`
}

// HealthConfig governs the periodic status report.
type HealthConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	AlertRetention time.Duration `mapstructure:"alert_retention"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Path       string `mapstructure:"path"`
}

// ShutdownConfig bounds the graceful shutdown sequence.
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("PUMPWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Per-horizon overrides work through PUMPWATCH_ALERTS_THRESHOLDS_5M and
	// friends; ALERT_THRESHOLDS replaces the whole set.
	if raw, ok := os.LookupEnv("ALERT_THRESHOLDS"); ok {
		thresholds, err := ParseThresholds(raw)
		if err != nil {
			return nil, err
		}
		cfg.Alerts.Thresholds = thresholds
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// bindLegacyEnv keeps the plain variable names used by earlier deployments.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("telegram.bot_token", "PUMPWATCH_TELEGRAM_BOT_TOKEN", "TELEGRAM_TOKEN")
	_ = v.BindEnv("telegram.chat_id", "PUMPWATCH_TELEGRAM_CHAT_ID", "CHAT_ID")
	_ = v.BindEnv("telegram.bot_name", "PUMPWATCH_TELEGRAM_BOT_NAME", "BOT_NAME")
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pumpwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.bot_name", "Crypto Pump Bot")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.request_timeout", "10s")
	v.SetDefault("telegram.commands_enabled", true)
	v.SetDefault("telegram.poll_timeout", "10s")
	v.SetDefault("telegram.announce", true)

	v.SetDefault("feed.url", "wss://stream.binance.com:9443/ws/!ticker@arr")
	v.SetDefault("feed.receive_timeout", "45s")
	v.SetDefault("feed.handshake_timeout", "10s")
	v.SetDefault("feed.ping_interval", "30s")
	v.SetDefault("feed.quote_assets", []string{"USDT"})
	v.SetDefault("feed.symbols", []string{})
	v.SetDefault("feed.buffer_size", 4096)

	v.SetDefault("reconnect.max_attempts", 10)
	v.SetDefault("reconnect.backoff_base", 2.0)
	v.SetDefault("reconnect.backoff_unit", "1s")
	v.SetDefault("reconnect.backoff_cap", "300s")

	v.SetDefault("alerts.thresholds", map[string]float64{"5m": 5.0, "15m": 10.0, "1h": 50.0})
	v.SetDefault("alerts.cooldown", "15m")
	v.SetDefault("alerts.resolution", "1s")
	v.SetDefault("alerts.queue_size", 64)
	v.SetDefault("alerts.chart_enabled", true)
	v.SetDefault("alerts.chart_interval", "1m")
	v.SetDefault("alerts.chart_points", 90)

	v.SetDefault("binance.rest_base_url", "https://api.binance.com")

	v.SetDefault("health.interval", "1h")
	v.SetDefault("health.alert_retention", "720h")

	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x70756d70))

	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("shutdown.timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			stringToThresholdsHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// stringToThresholdsHookFunc decodes "5m=5,15m=10" into map[string]float64,
// which is how thresholds arrive from the environment.
func stringToThresholdsHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(map[string]float64{}) {
			return data, nil
		}
		return ParseThresholds(data.(string))
	}
}

// ParseThresholds parses a comma separated list of label=percent pairs.
func ParseThresholds(raw string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		label, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: threshold %q must look like 5m=5.0", ErrInvalid, part)
		}
		pct, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: threshold %q: %v", ErrInvalid, part, err)
		}
		out[strings.TrimSpace(label)] = pct
	}
	return out, nil
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return fmt.Errorf("%w: telegram.bot_token (set TELEGRAM_TOKEN)", ErrMissingRequired)
	}
	if strings.TrimSpace(c.Telegram.ChatID) == "" {
		return fmt.Errorf("%w: telegram.chat_id (set CHAT_ID)", ErrMissingRequired)
	}
	if c.Feed.URL == "" {
		return fmt.Errorf("%w: feed.url must be set", ErrInvalid)
	}
	if c.Feed.ReceiveTimeout <= 0 {
		return fmt.Errorf("%w: feed.receive_timeout must be greater than zero", ErrInvalid)
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("%w: reconnect.max_attempts must be greater than zero", ErrInvalid)
	}
	if c.Reconnect.BackoffBase < 1 {
		return fmt.Errorf("%w: reconnect.backoff_base must be at least 1", ErrInvalid)
	}
	if c.Reconnect.BackoffUnit <= 0 || c.Reconnect.BackoffCap < c.Reconnect.BackoffUnit {
		return fmt.Errorf("%w: reconnect.backoff_cap must be >= backoff_unit > 0", ErrInvalid)
	}
	if len(c.Alerts.Thresholds) == 0 {
		return fmt.Errorf("%w: alerts.thresholds needs at least one horizon", ErrInvalid)
	}
	for label, pct := range c.Alerts.Thresholds {
		if pct <= 0 {
			return fmt.Errorf("%w: alerts.thresholds[%s] must be positive", ErrInvalid, label)
		}
	}
	if c.Alerts.Cooldown < 0 {
		return fmt.Errorf("%w: alerts.cooldown cannot be negative", ErrInvalid)
	}
	if c.Health.Interval <= 0 {
		return fmt.Errorf("%w: health.interval must be greater than zero", ErrInvalid)
	}
	if c.Shutdown.Timeout <= 0 {
		return fmt.Errorf("%w: shutdown.timeout must be greater than zero", ErrInvalid)
	}
	return nil
}
