package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

const sample = `
mode = "report"
sync_interval = "2m"

[gateway]
base_url = "https://example.supabase.co"
api_key = "file-key"

[profit]
report_days = 7
[profit.tax_rates]
uzum = 0.12

[[sellers]]
id = "acme"
marketplaces = ["Yandex", "uzum"]

[[sellers]]
id = "beta"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMergesDefaultsFileAndEnv(t *testing.T) {
	t.Setenv("LEDGER_GATEWAY_API_KEY", "env-key")
	t.Setenv("LEDGER_FETCH_MAX_CONCURRENCY", "5")
	t.Setenv("LEDGER_FETCH_BASE_DELAY", "250ms")

	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Mode != "report" || cfg.SyncInterval.Duration != 2*time.Minute {
		t.Errorf("mode=%q interval=%v", cfg.Mode, cfg.SyncInterval.Duration)
	}
	if cfg.Gateway.APIKey != "env-key" {
		t.Errorf("api key = %q, want env override", cfg.Gateway.APIKey)
	}
	if cfg.Fetch.MaxConcurrency != 5 || cfg.Fetch.BaseDelay.Duration != 250*time.Millisecond {
		t.Errorf("fetch = %+v", cfg.Fetch)
	}
	if cfg.Tariff.BatchSize != 200 || cfg.Store.ProductsTTL.Duration != 10*time.Minute {
		t.Errorf("defaults lost: tariff=%+v store=%+v", cfg.Tariff, cfg.Store)
	}
	if got := cfg.TaxRates()[domain.MarketplaceUzum]; got != 0.12 {
		t.Errorf("uzum tax rate = %v", got)
	}

	acme := cfg.Sellers[0].MarketplaceIDs()
	if len(acme) != 2 || acme[0] != domain.MarketplaceYandex {
		t.Errorf("acme marketplaces = %v", acme)
	}
	if beta := cfg.Sellers[1].MarketplaceIDs(); len(beta) != len(domain.Marketplaces) {
		t.Errorf("beta marketplaces = %v, want all", beta)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, sample+"\n[gateway.extra]\nfoo = 1\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown keys") {
		t.Fatalf("err = %v, want unknown keys", err)
	}
}

func TestLoadSingleSellerFromEnv(t *testing.T) {
	t.Setenv("LEDGER_SELLER", "solo")
	t.Setenv("LEDGER_MARKETPLACES", "ozon, wildberries")
	t.Setenv("LEDGER_GATEWAY_FIXTURE_PATH", "testdata/fixture.json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(cfg.Sellers) != 1 || cfg.Sellers[0].ID != "solo" {
		t.Fatalf("sellers = %+v", cfg.Sellers)
	}
	if got := cfg.Sellers[0].Marketplaces; len(got) != 2 || got[1] != "wildberries" {
		t.Errorf("marketplaces = %v", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Defaults()
		c.Gateway.BaseURL = "https://example.supabase.co"
		c.Sellers = []SellerConfig{{ID: "acme"}}
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"bad mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "unknown log_level"},
		{"no sellers", func(c *Config) { c.Sellers = nil }, "at least one seller"},
		{"duplicate seller", func(c *Config) { c.Sellers = append(c.Sellers, SellerConfig{ID: "acme"}) }, "duplicate id"},
		{"unknown marketplace", func(c *Config) { c.Sellers[0].Marketplaces = []string{"amazon"} }, "unknown marketplace"},
		{"no gateway", func(c *Config) { c.Gateway.BaseURL = "" }, "gateway: base_url"},
		{"fixture instead of gateway", func(c *Config) { c.Gateway.BaseURL = ""; c.Gateway.FixturePath = "f.json" }, ""},
		{"tax out of range", func(c *Config) { c.Profit.TaxRates = map[string]float64{"ozon": 1.5} }, "tax_rates.ozon"},
		{"zero concurrency", func(c *Config) { c.Fetch.MaxConcurrency = 0 }, "max_concurrency"},
		{"s3 without bucket", func(c *Config) { c.S3.Enabled = true; c.S3.Bucket = "" }, "s3: bucket"},
		{"postgres pool", func(c *Config) { c.Postgres.Enabled = true; c.Postgres.PoolMinConns = 50 }, "pool_min_conns"},
		{"half telegram", func(c *Config) { c.Notify.TelegramToken = "t" }, "telegram_chat_id"},
		{"sqlite path", func(c *Config) { c.SQLite.Enabled = true; c.SQLite.Path = " " }, "sqlite: path"},
		{"server port", func(c *Config) { c.Server.Port = 0 }, "server: port"},
		{"sync interval", func(c *Config) { c.SyncInterval.Duration = 0 }, "sync_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestRedactedConfig(t *testing.T) {
	c := Defaults()
	c.Gateway.APIKey = "secret"
	c.Postgres.Password = "pw"
	c.Notify.Events = []string{"report_ready"}

	r := RedactedConfig(&c)
	if r.Gateway.APIKey != redacted || r.Postgres.Password != redacted {
		t.Errorf("secrets not redacted: %+v %+v", r.Gateway, r.Postgres)
	}
	if r.Redis.Password != "" {
		t.Errorf("empty secret should stay empty, got %q", r.Redis.Password)
	}
	r.Notify.Events[0] = "changed"
	if c.Notify.Events[0] != "report_ready" {
		t.Error("redacted copy shares the events slice")
	}
	if c.Gateway.APIKey != "secret" {
		t.Error("original mutated")
	}
}
