package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	s3blob "github.com/OneAIgency/carbondesk/internal/blob/s3"
	"github.com/OneAIgency/carbondesk/internal/cache/redis"
	"github.com/OneAIgency/carbondesk/internal/crypto"
	"github.com/OneAIgency/carbondesk/internal/domain"
	"github.com/OneAIgency/carbondesk/internal/executor"
	"github.com/OneAIgency/carbondesk/internal/feed"
	"github.com/OneAIgency/carbondesk/internal/notify"
	"github.com/OneAIgency/carbondesk/internal/platform/registry"
	"github.com/OneAIgency/carbondesk/internal/preview"
	"github.com/OneAIgency/carbondesk/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Registry    *registry.Client
	MarketSync  *feed.MarketDataSync
	PriceFeed   *feed.PriceFeedSync
	Previews    *preview.Reconciler
	Coordinator *executor.Coordinator

	// Optional infrastructure; nil when the corresponding backend is
	// disabled in config.
	SignalBus      domain.SignalBus
	BookCache      domain.OrderBookCache
	PriceCache     domain.PriceCache
	ExecutionStore domain.ExecutionStore
	TradeStore     domain.TradeStore
	Archiver       *s3blob.Archiver

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func (a *App) Wire(ctx context.Context) (*Dependencies, func(), error) {
	cfg := a.cfg
	logger := a.logger

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Registry client (signed REST + price WebSocket) ---
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:           cfg.Registry.APISecret,
		EncryptedSecretPath: cfg.Registry.EncryptedSecretPath,
		Password:            cfg.Registry.SecretPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: registry secret: %w", err)
	}
	auth := &crypto.HMACAuth{
		Key:        cfg.Registry.APIKey,
		Secret:     secret,
		Passphrase: cfg.Registry.Passphrase,
	}
	deps.Registry = registry.NewClient(registry.ClientConfig{
		BaseURL: cfg.Registry.BaseURL,
		Timeout: cfg.Registry.Timeout.Duration,
	}, auth)

	var dialer feed.StreamDialer
	if cfg.Registry.WSURL != "" {
		dialer = registry.NewPriceDialer(cfg.Registry.WSURL)
	}

	// --- Redis (snapshot cache + signal bus) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.BookCache = redis.NewOrderBookCache(redisClient)
		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- PostgreSQL (audit log + trade history) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.ExecutionStore = postgres.NewExecutionStore(pool)
		deps.TradeStore = postgres.NewTradeStore(pool)
	}

	// --- Sync loops ---
	deps.MarketSync = feed.NewMarketDataSync(
		deps.Registry,
		feed.MarketDataConfig{
			CertificateType: domain.CertificateType(cfg.Sync.CertificateType),
			Interval:        cfg.Sync.Interval.Duration,
			TradeLimit:      cfg.Sync.TradeLimit,
		},
		deps.BookCache,
		deps.SignalBus,
		deps.TradeStore,
		logger,
	)
	deps.PriceFeed = feed.NewPriceFeedSync(
		deps.Registry,
		dialer,
		deps.PriceCache,
		deps.SignalBus,
		feed.PriceFeedConfig{
			PollInterval:      cfg.Sync.PollInterval.Duration,
			SocketSettleDelay: cfg.Sync.SocketSettleDelay.Duration,
		},
		logger,
	)

	// --- S3 archival ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		var tradeSource s3blob.TradeArchiveSource
		if cfg.Postgres.Enabled {
			tradeSource = deps.TradeStore.(s3blob.TradeArchiveSource)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			tradeSource,
			deps.MarketSync,
			s3blob.ArchiverConfig{
				Interval:       cfg.Archive.Interval.Duration,
				TradeRetention: time.Duration(cfg.Archive.TradeRetentionDays) * 24 * time.Hour,
				BatchLimit:     cfg.Archive.BatchLimit,
			},
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Execution pipeline ---
	deps.Previews = preview.NewReconciler(deps.Registry, logger)
	deps.Coordinator = executor.NewCoordinator(
		deps.Registry,
		deps.MarketSync,
		deps.Previews,
		deps.ExecutionStore,
		&executionAnnouncer{bus: deps.SignalBus, alerts: deps.Notifier},
		logger,
	)

	return deps, cleanup, nil
}

// executionAnnouncer fans execution events out to the signal bus, where the
// browser hub picks them up, and to the operator notifier.
type executionAnnouncer struct {
	bus    domain.SignalBus // optional
	alerts *notify.Notifier
}

func (e *executionAnnouncer) Notify(ctx context.Context, event, title, message string) error {
	var busErr error
	if e.bus != nil {
		payload, err := json.Marshal(map[string]string{
			"event":   event,
			"title":   title,
			"message": message,
		})
		if err == nil {
			busErr = e.bus.Publish(ctx, feed.ChannelExecutions, payload)
		}
	}
	return errors.Join(busErr, e.alerts.Notify(ctx, event, title, message))
}
