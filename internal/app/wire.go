package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/marketledger/internal/blob/s3"
	"github.com/alanyoungcy/marketledger/internal/cache/redis"
	"github.com/alanyoungcy/marketledger/internal/config"
	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/notify"
	"github.com/alanyoungcy/marketledger/internal/platform/fixture"
	"github.com/alanyoungcy/marketledger/internal/platform/gateway"
	"github.com/alanyoungcy/marketledger/internal/session"
	"github.com/alanyoungcy/marketledger/internal/store/memory"
	"github.com/alanyoungcy/marketledger/internal/store/postgres"
	"github.com/alanyoungcy/marketledger/internal/store/sqlite"
)

// Dependencies is the infrastructure shared by every seller session.
// Optional parts stay nil when their backend is disabled.
type Dependencies struct {
	Provider   domain.MarketplaceProvider
	CostStore  domain.CostPriceStore
	AuditStore domain.AuditStore

	Snapshots   domain.SnapshotCache
	TariffCache domain.TariffCache
	LockManager domain.LockManager

	Archiver session.Archiver
	Notifier *notify.Notifier
}

// Wire builds Dependencies from cfg. The returned cleanup releases them in
// reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- Marketplace provider ---
	if cfg.Gateway.FixturePath != "" {
		p, err := fixture.Load(cfg.Gateway.FixturePath)
		if err != nil {
			return fail(fmt.Errorf("wire: fixture: %w", err))
		}
		logger.WarnContext(ctx, "serving marketplace data from fixture", slog.String("path", cfg.Gateway.FixturePath))
		deps.Provider = p
	} else {
		deps.Provider = gateway.New(gateway.Config{
			BaseURL: cfg.Gateway.BaseURL,
			APIKey:  cfg.Gateway.APIKey,
			Timeout: cfg.Gateway.Timeout.Duration,
		})
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Postgres.DSN,
			Host:           cfg.Postgres.Host,
			Port:           cfg.Postgres.Port,
			Database:       cfg.Postgres.Database,
			User:           cfg.Postgres.User,
			Password:       cfg.Postgres.Password,
			SSLMode:        cfg.Postgres.SSLMode,
			MaxConns:       cfg.Postgres.PoolMaxConns,
			MinConns:       cfg.Postgres.PoolMinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.CostStore = postgres.NewCostPriceStore(pg.Pool())
		deps.AuditStore = postgres.NewAuditStore(pg.Pool())
	} else if cfg.SQLite.Enabled {
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		logger.InfoContext(ctx, "using local sqlite store", slog.String("path", cfg.SQLite.Path))
		deps.CostStore = sqlite.NewCostPriceStore(db)
		deps.AuditStore = sqlite.NewAuditStore(db)
	} else {
		logger.WarnContext(ctx, "no database configured, cost prices are kept in memory")
		deps.CostStore = memory.NewCostPriceStore()
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			MaxRetries:  cfg.Redis.MaxRetries,
			DialTimeout: cfg.Redis.DialTimeout.Duration,
			TLSEnabled:  cfg.Redis.TLSEnabled,
			KeyPrefix:   cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.Snapshots = redis.NewSnapshotCache(rc, cfg.Store.SnapshotTTL.Duration)
		deps.TariffCache = redis.NewTariffCache(rc)
		deps.LockManager = redis.NewLockManager(rc)
	}

	// --- S3 report archive ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := sc.Health(ctx); err != nil {
			logger.WarnContext(ctx, "report bucket not reachable yet", slog.String("error", err.Error()))
		}
		deps.Archiver = s3blob.NewReportArchiver(s3blob.NewWriter(sc, cfg.S3.Prefix), deps.AuditStore, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
