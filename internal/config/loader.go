package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over Defaults, then applies LEDGER_*
// environment overrides. An empty path skips the file. The result is not
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and per-deploy settings
// without touching the file. Unset or empty variables leave the value alone.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Fetch.MaxConcurrency, "LEDGER_FETCH_MAX_CONCURRENCY")
	setInt(&cfg.Fetch.MaxRetries, "LEDGER_FETCH_MAX_RETRIES")
	setDuration(&cfg.Fetch.BaseDelay, "LEDGER_FETCH_BASE_DELAY")
	setDuration(&cfg.Fetch.MaxDelay, "LEDGER_FETCH_MAX_DELAY")
	setFloat64(&cfg.Fetch.RatePerSecond, "LEDGER_FETCH_RATE_PER_SECOND")
	setInt(&cfg.Fetch.RateBurst, "LEDGER_FETCH_RATE_BURST")

	setDuration(&cfg.Store.ProductsTTL, "LEDGER_STORE_PRODUCTS_TTL")
	setDuration(&cfg.Store.OrdersTTL, "LEDGER_STORE_ORDERS_TTL")
	setDuration(&cfg.Store.OrderLookback, "LEDGER_STORE_ORDER_LOOKBACK")

	setInt(&cfg.Tariff.BatchSize, "LEDGER_TARIFF_BATCH_SIZE")
	setDuration(&cfg.Tariff.CacheTTL, "LEDGER_TARIFF_CACHE_TTL")

	setFloat64(&cfg.Profit.DefaultTaxRate, "LEDGER_PROFIT_DEFAULT_TAX_RATE")
	setInt(&cfg.Profit.ReportDays, "LEDGER_PROFIT_REPORT_DAYS")

	setStr(&cfg.Gateway.BaseURL, "LEDGER_GATEWAY_BASE_URL")
	setStr(&cfg.Gateway.APIKey, "LEDGER_GATEWAY_API_KEY")
	setDuration(&cfg.Gateway.Timeout, "LEDGER_GATEWAY_TIMEOUT")
	setStr(&cfg.Gateway.FixturePath, "LEDGER_GATEWAY_FIXTURE_PATH")

	setBool(&cfg.Postgres.Enabled, "LEDGER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "LEDGER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "LEDGER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LEDGER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LEDGER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LEDGER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LEDGER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LEDGER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LEDGER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LEDGER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LEDGER_POSTGRES_RUN_MIGRATIONS")

	setBool(&cfg.Redis.Enabled, "LEDGER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LEDGER_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "LEDGER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "LEDGER_REDIS_KEY_PREFIX")

	setBool(&cfg.S3.Enabled, "LEDGER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "LEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "LEDGER_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "LEDGER_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "LEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LEDGER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LEDGER_S3_FORCE_PATH_STYLE")

	setStr(&cfg.Notify.TelegramToken, "LEDGER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LEDGER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LEDGER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LEDGER_NOTIFY_EVENTS")

	setBool(&cfg.SQLite.Enabled, "LEDGER_SQLITE_ENABLED")
	setStr(&cfg.SQLite.Path, "LEDGER_SQLITE_PATH")

	setBool(&cfg.Server.Enabled, "LEDGER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LEDGER_SERVER_PORT")

	// LEDGER_SELLER replaces the seller list with a single seller.
	if id := os.Getenv("LEDGER_SELLER"); id != "" {
		s := SellerConfig{ID: id}
		setStringSlice(&s.Marketplaces, "LEDGER_MARKETPLACES")
		cfg.Sellers = []SellerConfig{s}
	}

	setStr(&cfg.Mode, "LEDGER_MODE")
	setStr(&cfg.LogLevel, "LEDGER_LOG_LEVEL")
	setDuration(&cfg.SyncInterval, "LEDGER_SYNC_INTERVAL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
