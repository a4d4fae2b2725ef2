package daemon

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bazaarhq/inbox/internal/api"
	"github.com/bazaarhq/inbox/internal/bus"
	"github.com/bazaarhq/inbox/internal/compose"
	"github.com/bazaarhq/inbox/internal/config"
	"github.com/bazaarhq/inbox/internal/guest"
	"github.com/bazaarhq/inbox/internal/identity"
	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/bazaarhq/inbox/internal/localstate"
	"github.com/bazaarhq/inbox/internal/lock"
	"github.com/bazaarhq/inbox/internal/logging"
	"github.com/bazaarhq/inbox/internal/metrics"
	"github.com/bazaarhq/inbox/internal/poll"
	"github.com/bazaarhq/inbox/internal/profile"
	"github.com/bazaarhq/inbox/internal/remote"
	"github.com/bazaarhq/inbox/internal/status"
	"github.com/bazaarhq/inbox/internal/store"
	intsync "github.com/bazaarhq/inbox/internal/sync"
	"github.com/bazaarhq/inbox/internal/watermark"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile passed to the fx module. Empty paths
// fall back to the profile's defaults under ~/.bazaar.
type Params struct {
	Profile    string
	Dir        string // optional override for testing
	SocketPath string
	ConfigPath string
}

func (p Params) dir() string {
	if p.Dir != "" {
		return p.Dir
	}
	return profile.Dir(p.Profile)
}

func (p Params) socketPath() string {
	if p.SocketPath != "" {
		return p.SocketPath
	}
	return filepath.Join(p.dir(), "daemon.sock")
}

func (p Params) configPath() string {
	if p.ConfigPath != "" {
		return p.ConfigPath
	}
	return profile.ConfigPath()
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideIdentity,
			provideRemote,
			providePoller,
			provideWatermarks,
			provideGuests,
			provideComposers,
			provideSyncEngine,
			provideHealth,
			provideService,
			provideMetrics,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.LoadOrDefault(p.configPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(filepath.Join(p.dir(), "logs", "inboxd.log"), p.Profile, logging.ParseLevel(cfg.LogLevel))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("dir", p.dir()))
	l, err := lock.Acquire(p.dir())
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is never opened by a second
// daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := filepath.Join(p.dir(), "inbox.db")
	db, result, err := store.OpenMigrated(dbPath)
	if err != nil {
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

func provideIdentity(cfg *config.Config, logger *zap.Logger) (inbox.Identity, error) {
	me, err := identity.FromToken(cfg.Remote.AccessToken)
	if err != nil {
		return "", err
	}
	if me == "" {
		logger.Info("no access token configured, running as guest")
	} else {
		logger.Info("identity resolved", zap.String("identity", string(me)))
	}
	return me, nil
}

func provideRemote(cfg *config.Config, logger *zap.Logger) (*remote.Client, error) {
	return remote.NewClient(remote.Config{
		Addr:        cfg.Remote.Addr,
		DialTimeout: cfg.Remote.DialTimeout.Duration,
		CallTimeout: cfg.Remote.CallTimeout.Duration,
		AccessToken: cfg.Remote.AccessToken,
	}, logger.Named("remote"))
}

func providePoller(client *remote.Client, me inbox.Identity, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *poll.Poller {
	return poll.New(client, me, poll.Config{
		InboxInterval:  cfg.Poll.InboxInterval.Duration,
		ThreadInterval: cfg.Poll.ThreadInterval.Duration,
		Scope:          cfg.Scope(),
	}, b, logger.Named("poll"))
}

func provideWatermarks(db *store.DB, b *bus.Bus, logger *zap.Logger) *watermark.Store {
	return watermark.New(store.NewStateBackend(db), b, logger.Named("watermark"))
}

// provideGuests keeps the guest name in memory: it lasts as long as the
// daemon process, which is the session.
func provideGuests(logger *zap.Logger) *guest.Resolver {
	return guest.NewResolver(localstate.NewMemory(), logger.Named("guest"))
}

func provideComposers(me inbox.Identity, guests *guest.Resolver, client *remote.Client, poller *poll.Poller, b *bus.Bus, logger *zap.Logger) *compose.Registry {
	return compose.NewRegistry(me, guests, client, poller.Refresh, b, logger)
}

func provideSyncEngine(db *store.DB, me inbox.Identity, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, me, b, logger.Named("sync"))
}

func provideHealth(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideService(p Params, poller *poll.Poller, marks *watermark.Store, composers *compose.Registry, guests *guest.Resolver, health *status.Machine, db *store.DB, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(api.Deps{
		Profile:    p.Profile,
		Poller:     poller,
		Watermarks: marks,
		Composers:  composers,
		Guests:     guests,
		Health:     health,
		DB:         db,
		Bus:        b,
		Logger:     logger.Named("api"),
	})
}

func provideMetrics(b *bus.Bus, svc *api.Service, poller *poll.Poller) *metrics.Collector {
	return metrics.New(b, metrics.Gauges{
		Unread: svc.Unread,
		Stale:  func() bool { return poller.Inbox().Stale },
	})
}

func registerLifecycle(
	lc fx.Lifecycle,
	cfg *config.Config,
	srv *Server,
	lk *lock.Lock,
	db *store.DB,
	client *remote.Client,
	poller *poll.Poller,
	engine *intsync.Engine,
	health *status.Machine,
	me inbox.Identity,
	collector *metrics.Collector,
	logger *zap.Logger,
) {
	var metricsSrv *metrics.Server
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if n, err := engine.WarmStart(poller); err != nil {
				logger.Warn("warm start failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("seeded inbox from cache", zap.Int("messages", n))
				_ = health.Transition(status.Warm, fmt.Sprintf("%d cached messages", n))
			}
			if me == "" {
				// Guests have no inbox to poll.
				_ = health.Transition(status.Ready, "guest")
			}

			// Subscribers first so the first poll is observed.
			engine.Start(context.Background())
			collector.Start(context.Background())
			health.Start(context.Background())

			if cfg.Metrics.Addr != "" {
				ready := func() bool {
					st, _ := health.Current()
					return st == status.Ready
				}
				metricsSrv = metrics.NewServer(cfg.Metrics.Addr, metrics.NewRouter(collector, ready), logger.Named("metrics"))
				metricsSrv.Start()
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			poller.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			health.Stop()
			poller.Stop()
			srv.Stop(ctx)
			if metricsSrv != nil {
				if err := metricsSrv.Stop(ctx); err != nil {
					logger.Warn("metrics server shutdown", zap.Error(err))
				}
			}
			collector.Stop()
			engine.Stop()
			if err := client.Close(); err != nil {
				logger.Warn("error closing remote client", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
