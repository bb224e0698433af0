package daemon

import (
	"context"

	"github.com/matheus3301/sbc/internal/api"
	"github.com/matheus3301/sbc/internal/backend"
	"github.com/matheus3301/sbc/internal/bus"
	"github.com/matheus3301/sbc/internal/config"
	"github.com/matheus3301/sbc/internal/conversation"
	"github.com/matheus3301/sbc/internal/lock"
	"github.com/matheus3301/sbc/internal/logging"
	"github.com/matheus3301/sbc/internal/metrics"
	"github.com/matheus3301/sbc/internal/profile"
	"github.com/matheus3301/sbc/internal/reconcile"
	"github.com/matheus3301/sbc/internal/store"
	"github.com/matheus3301/sbc/internal/transcript"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
	// Config, when set, replaces the layered profile configuration.
	Config *config.Config
	// Logger, when set, replaces the profile log file.
	Logger *zap.Logger
	// Log tunes the profile log file.
	Log logging.Options
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideLock,
			provideStore,
			provideBackend,
			provideManager,
			provideMirror,
			provideChatService,
			provideMetrics,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, p.Log)
}

func provideConfig(p Params, logger *zap.Logger) (*config.Config, error) {
	cfg := p.Config
	if cfg == nil {
		var err error
		cfg, err = profile.Config(p.ProfileName)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Info("configuration loaded",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.Int64("user_id", cfg.Identity.UserID),
		zap.Bool("token", cfg.Backend.Token != ""))
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore depends on the lock so two daemons never share a cache.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.CacheDBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBackend(cfg *config.Config, logger *zap.Logger) (*backend.Client, error) {
	return backend.New(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		FeedURL: cfg.Backend.FeedURL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout.Duration,
		Logger:  logger,
	})
}

func self(cfg *config.Config) transcript.Identity {
	return transcript.Identity{UserID: cfg.Identity.UserID, Name: cfg.Identity.Username}
}

func provideManager(cfg *config.Config, client *backend.Client, db *store.DB, b *bus.Bus, logger *zap.Logger) *conversation.Manager {
	return conversation.NewManager(conversation.Deps{
		Backend:           client,
		Cache:             db,
		Bus:               b,
		Logger:            logger,
		Self:              self(cfg),
		SendTimeout:       cfg.Chat.SendTimeout.Duration,
		SyncTimeout:       cfg.Chat.SyncTimeout.Duration,
		ReconnectInterval: cfg.Feed.ReconnectInterval.Duration,
		ReconnectBurst:    cfg.Feed.ReconnectBurst,
	})
}

func provideMirror(db *store.DB, b *bus.Bus, logger *zap.Logger) *reconcile.Mirror {
	return reconcile.NewMirror(db, b, logger)
}

func provideChatService(p Params, cfg *config.Config, client *backend.Client, m *conversation.Manager, db *store.DB, b *bus.Bus) *api.ChatService {
	return api.NewChatService(api.Options{
		Profile:      p.ProfileName,
		DefaultGroup: cfg.Chat.DefaultGroup,
		Self:         self(cfg),
		BackendURL:   client.BaseURL(),
	}, m, db, b)
}

func provideMetrics(cfg *config.Config, logger *zap.Logger) *metrics.Server {
	return metrics.NewServer(cfg.Daemon.MetricsAddr, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, cfg *config.Config, manager *conversation.Manager, mirror *reconcile.Mirror, ms *metrics.Server, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := ms.Start(); err != nil {
				return err
			}

			// Mirror confirmed transcript entries into the cache.
			mirror.Start(ctx)

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if group := cfg.Chat.DefaultGroup; group != "" {
				go func() {
					if _, err := manager.Open(ctx, group); err != nil {
						logger.Warn("failed to open default group", zap.String("conversation", group), zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			manager.Shutdown()
			mirror.Stop()
			srv.Stop(stopCtx)
			if err := ms.Stop(stopCtx); err != nil {
				logger.Warn("error stopping metrics server", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
