// Package config defines the ledgerd configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// Config is the root configuration. Fields come from a TOML file and are then
// overridden by LEDGER_* environment variables.
type Config struct {
	Fetch        FetchConfig    `toml:"fetch"`
	Store        StoreConfig    `toml:"store"`
	Tariff       TariffConfig   `toml:"tariff"`
	Profit       ProfitConfig   `toml:"profit"`
	Gateway      GatewayConfig  `toml:"gateway"`
	Postgres     PostgresConfig `toml:"postgres"`
	SQLite       SQLiteConfig   `toml:"sqlite"`
	Redis        RedisConfig    `toml:"redis"`
	S3           S3Config       `toml:"s3"`
	Notify       NotifyConfig   `toml:"notify"`
	Server       ServerConfig   `toml:"server"`
	Sellers      []SellerConfig `toml:"sellers"`
	Mode         string         `toml:"mode"`
	LogLevel     string         `toml:"log_level"`
	SyncInterval duration       `toml:"sync_interval"`
}

// FetchConfig tunes each seller's fetch queue.
type FetchConfig struct {
	MaxConcurrency int      `toml:"max_concurrency"`
	MaxRetries     int      `toml:"max_retries"`
	BaseDelay      duration `toml:"base_delay"`
	MaxDelay       duration `toml:"max_delay"`
	RatePerSecond  float64  `toml:"rate_per_second"`
	RateBurst      int      `toml:"rate_burst"`
}

// StoreConfig tunes the marketplace data store.
type StoreConfig struct {
	ProductsTTL   duration `toml:"products_ttl"`
	OrdersTTL     duration `toml:"orders_ttl"`
	OrderLookback duration `toml:"order_lookback"`
	// SnapshotTTL bounds Redis snapshots; only used with redis enabled.
	SnapshotTTL duration `toml:"snapshot_ttl"`
}

// TariffConfig tunes the tariff resolver.
type TariffConfig struct {
	BatchSize int      `toml:"batch_size"`
	CacheTTL  duration `toml:"cache_ttl"`
}

// ProfitConfig tunes the profitability engine and report runs.
type ProfitConfig struct {
	DefaultTaxRate float64            `toml:"default_tax_rate"`
	TaxRates       map[string]float64 `toml:"tax_rates"`
	// ReportDays is the trailing window a report run covers.
	ReportDays int `toml:"report_days"`
}

// GatewayConfig points at the hosted marketplace-data function.
type GatewayConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
	// FixturePath serves data from a JSON fixture instead of the gateway.
	FixturePath string `toml:"fixture_path"`
}

// PostgresConfig holds the cost-price database settings.
type PostgresConfig struct {
	Enabled        bool     `toml:"enabled"`
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// RedisConfig holds the snapshot cache, tariff cache and lock settings.
type RedisConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	DialTimeout duration `toml:"dial_timeout"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	KeyPrefix   string   `toml:"key_prefix"`
	LockTTL     duration `toml:"lock_ttl"`
}

// S3Config holds the report archive settings.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig configures advisory delivery. Channels without credentials are
// skipped.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// SQLiteConfig selects a local database file. PostgreSQL wins when both are
// enabled.
type SQLiteConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ServerConfig controls the status API, which runs in sync mode only.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// SellerConfig is one seller session.
type SellerConfig struct {
	ID           string   `toml:"id"`
	Marketplaces []string `toml:"marketplaces"`
}

// MarketplaceIDs returns the seller's marketplaces, all of them when none are
// listed.
func (s SellerConfig) MarketplaceIDs() []domain.Marketplace {
	if len(s.Marketplaces) == 0 {
		return append([]domain.Marketplace(nil), domain.Marketplaces...)
	}
	out := make([]domain.Marketplace, 0, len(s.Marketplaces))
	for _, m := range s.Marketplaces {
		out = append(out, domain.ParseMarketplace(m))
	}
	return out
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the configuration used for anything the file leaves out.
func Defaults() Config {
	return Config{
		Fetch: FetchConfig{
			MaxConcurrency: 3,
			MaxRetries:     3,
			BaseDelay:      duration{500 * time.Millisecond},
			MaxDelay:       duration{10 * time.Second},
		},
		Store: StoreConfig{
			ProductsTTL:   duration{10 * time.Minute},
			OrdersTTL:     duration{5 * time.Minute},
			OrderLookback: duration{90 * 24 * time.Hour},
			SnapshotTTL:   duration{24 * time.Hour},
		},
		Tariff: TariffConfig{
			BatchSize: 200,
			CacheTTL:  duration{time.Hour},
		},
		Profit: ProfitConfig{
			DefaultTaxRate: 0.04,
			TaxRates:       map[string]float64{},
			ReportDays:     30,
		},
		Gateway: GatewayConfig{
			Timeout: duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "postgres",
			User:           "postgres",
			SSLMode:        "disable",
			PoolMaxConns:   10,
			PoolMinConns:   1,
			ConnectTimeout: duration{10 * time.Second},
			RunMigrations:  true,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    10,
			MaxRetries:  3,
			DialTimeout: duration{5 * time.Second},
			KeyPrefix:   "ledger",
			LockTTL:     duration{10 * time.Minute},
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "marketledger-reports",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"tariffs_estimated", "fetch_failed", "inventory_loss", "report_ready"},
		},
		SQLite: SQLiteConfig{
			Path: "ledger.db",
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Mode:         "sync",
		LogLevel:     "info",
		SyncInterval: duration{10 * time.Minute},
	}
}

var validModes = map[string]bool{
	"sync":   true,
	"report": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: sync, report)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if strings.EqualFold(c.Mode, "sync") && c.SyncInterval.Duration <= 0 {
		errs = append(errs, "sync_interval must be positive in sync mode")
	}

	if len(c.Sellers) == 0 {
		errs = append(errs, "sellers: at least one seller is required")
	}
	seen := make(map[string]bool, len(c.Sellers))
	for i, s := range c.Sellers {
		if strings.TrimSpace(s.ID) == "" {
			errs = append(errs, fmt.Sprintf("sellers[%d]: id must not be empty", i))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Sprintf("sellers[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		for _, mp := range s.MarketplaceIDs() {
			if !mp.Known() {
				errs = append(errs, fmt.Sprintf("sellers[%d]: unknown marketplace %q", i, mp))
			}
		}
	}

	if c.Fetch.MaxConcurrency < 1 {
		errs = append(errs, "fetch: max_concurrency must be >= 1")
	}
	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, "fetch: max_retries must be >= 0")
	}
	if c.Fetch.RatePerSecond < 0 {
		errs = append(errs, "fetch: rate_per_second must be >= 0")
	}
	if c.Tariff.BatchSize < 1 {
		errs = append(errs, "tariff: batch_size must be >= 1")
	}

	if c.Profit.DefaultTaxRate < 0 || c.Profit.DefaultTaxRate >= 1 {
		errs = append(errs, fmt.Sprintf("profit: default_tax_rate must be in [0, 1), got %g", c.Profit.DefaultTaxRate))
	}
	for mp, r := range c.Profit.TaxRates {
		if !domain.ParseMarketplace(mp).Known() {
			errs = append(errs, fmt.Sprintf("profit: tax_rates: unknown marketplace %q", mp))
		}
		if r < 0 || r >= 1 {
			errs = append(errs, fmt.Sprintf("profit: tax_rates.%s must be in [0, 1), got %g", mp, r))
		}
	}
	if strings.EqualFold(c.Mode, "report") && c.Profit.ReportDays < 1 {
		errs = append(errs, "profit: report_days must be >= 1 in report mode")
	}

	if c.Gateway.FixturePath == "" && strings.TrimSpace(c.Gateway.BaseURL) == "" {
		errs = append(errs, "gateway: base_url must be set (or gateway.fixture_path)")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if c.SQLite.Enabled && !c.Postgres.Enabled && strings.TrimSpace(c.SQLite.Path) == "" {
		errs = append(errs, "sqlite: path must be set")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// TaxRates returns the per-marketplace overrides keyed by marketplace.
func (c *Config) TaxRates() map[domain.Marketplace]float64 {
	out := make(map[domain.Marketplace]float64, len(c.Profit.TaxRates))
	for mp, r := range c.Profit.TaxRates {
		out[domain.ParseMarketplace(mp)] = r
	}
	return out
}
