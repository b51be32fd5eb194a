package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"
	"golang.org/x/time/rate"

	"github.com/nfrund/gobychat/internal/auth"
	"github.com/nfrund/gobychat/internal/chat"
	"github.com/nfrund/gobychat/internal/config"
	"github.com/nfrund/gobychat/internal/database"
	"github.com/nfrund/gobychat/internal/domain"
	"github.com/nfrund/gobychat/internal/metrics"
	"github.com/nfrund/gobychat/internal/presence"
	"github.com/nfrund/gobychat/internal/pubsub"
	"github.com/nfrund/gobychat/internal/storage"
	"github.com/nfrund/gobychat/internal/websocket"
)

type stores struct {
	users    domain.UserRepository
	messages domain.MessageRepository
}

// mirror wraps the optional Redis mirror so the container can hold a nil.
type mirror struct {
	*presence.RedisMirror
}

func providePrometheus(do.Injector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, nil
}

func provideMetrics(i do.Injector) (*metrics.Metrics, error) {
	return metrics.New(do.MustInvoke[*prometheus.Registry](i)), nil
}

func provideStores(ctx context.Context, i do.Injector) (*stores, error) {
	cfg := do.MustInvoke[*config.Config](i)
	lc := do.MustInvoke[*lifecycle](i)

	switch cfg.StorageBackend {
	case config.BackendSurreal:
		db, err := database.NewDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		lc.onClose("surrealdb", func(ctx context.Context) error { return db.Close(ctx) })
		if err := database.Migrate(ctx, db); err != nil {
			return nil, err
		}
		lc.addHealth("surrealdb", func(ctx context.Context) error { return database.Ping(ctx, db) })
		return &stores{
			users:    database.NewSurrealUserStore(db),
			messages: database.NewSurrealMessageStore(db),
		}, nil

	case config.BackendBadger:
		b, err := storage.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		lc.onClose("badger", func(context.Context) error { return b.Close() })
		slog.Info("Opened Badger store", "path", cfg.BadgerPath)
		return &stores{users: b.Users(), messages: b.Messages()}, nil

	case config.BackendMemory:
		slog.Warn("Using in-memory storage; data is lost on restart")
		return &stores{users: storage.NewMemoryUserStore(), messages: storage.NewMemoryMessageStore()}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func provideBus(ctx context.Context, i do.Injector) (*pubsub.WatermillBridge, error) {
	cfg := do.MustInvoke[*config.Config](i)
	lc := do.MustInvoke[*lifecycle](i)

	tracer, shutdown, err := pubsub.SetupOTel(ctx, pubsub.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		ServiceName: cfg.TracingServiceName,
		ZipkinURL:   cfg.TracingZipkinURL,
	})
	if err != nil {
		return nil, err
	}
	lc.onClose("tracing", shutdown)

	bus := pubsub.NewWatermillBridge(pubsub.WithTracer(tracer))
	lc.onClose("bus", func(context.Context) error { return bus.Close() })
	return bus, nil
}

func provideTokens(i do.Injector) (*auth.TokenManager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL), nil
}

func provideAccounts(i do.Injector) (*auth.Service, error) {
	st, err := do.Invoke[*stores](i)
	if err != nil {
		return nil, err
	}
	return auth.NewService(st.users, do.MustInvoke[*auth.TokenManager](i)), nil
}

func provideRegistry(i do.Injector) (*websocket.Registry, error) {
	return websocket.NewRegistry(do.MustInvoke[*metrics.Metrics](i)), nil
}

func provideDirectory(i do.Injector) (*chat.Directory, error) {
	st, err := do.Invoke[*stores](i)
	if err != nil {
		return nil, err
	}
	return chat.NewDirectory(st.users), nil
}

func provideDispatcher(i do.Injector) (*chat.Dispatcher, error) {
	cfg := do.MustInvoke[*config.Config](i)
	st, err := do.Invoke[*stores](i)
	if err != nil {
		return nil, err
	}
	return chat.NewDispatcher(st.messages, do.MustInvoke[*websocket.Registry](i),
		chat.WithMaxPayloadBytes(cfg.MaxPayloadBytes),
		chat.WithMetrics(do.MustInvoke[*metrics.Metrics](i)),
	), nil
}

func provideBroadcaster(i do.Injector) (*presence.Broadcaster, error) {
	bus, err := do.Invoke[*pubsub.WatermillBridge](i)
	if err != nil {
		return nil, err
	}
	return presence.NewBroadcaster(do.MustInvoke[*websocket.Registry](i),
		presence.WithPublisher(bus),
		presence.WithMetrics(do.MustInvoke[*metrics.Metrics](i)),
	), nil
}

func provideMirror(ctx context.Context, i do.Injector) (*mirror, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.RedisAddr == "" {
		return &mirror{}, nil
	}
	lc := do.MustInvoke[*lifecycle](i)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.onClose("redis", func(context.Context) error { return client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	lc.addHealth("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	slog.Info("Mirroring presence to Redis", "addr", cfg.RedisAddr, "ttl", cfg.PresenceTTL)

	return &mirror{presence.NewRedisMirror(client, do.MustInvoke[*websocket.Registry](i), cfg.PresenceTTL)}, nil
}

func provideBridge(i do.Injector) (*websocket.Bridge, error) {
	cfg := do.MustInvoke[*config.Config](i)
	accounts, err := do.Invoke[*auth.Service](i)
	if err != nil {
		return nil, err
	}
	return websocket.NewBridge(
		do.MustInvoke[*websocket.Registry](i),
		accounts,
		do.MustInvoke[*chat.Dispatcher](i),
		do.MustInvoke[*chat.Directory](i),
		websocket.Options{
			SendBuffer:         cfg.WSSendBuffer,
			MessageRate:        rate.Limit(cfg.WSMessageRate),
			MessageBurst:       cfg.WSMessageBurst,
			ReadLimit:          int64(cfg.MaxPayloadBytes) * 4,
			AllowedOrigins:     cfg.AllowedOrigins,
			InsecureSkipVerify: !cfg.IsProduction() && len(cfg.AllowedOrigins) == 0,
		},
	), nil
}
