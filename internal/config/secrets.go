package config

import "maps"

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Gateway.APIKey)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Profit.TaxRates = maps.Clone(cfg.Profit.TaxRates)
	out.Sellers = make([]SellerConfig, len(cfg.Sellers))
	for i, s := range cfg.Sellers {
		out.Sellers[i] = SellerConfig{ID: s.ID, Marketplaces: append([]string(nil), s.Marketplaces...)}
	}
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
