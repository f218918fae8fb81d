// Package daemon composes the sync core into a long-running process: config,
// logging, session lock, push channel, and the coordinator engine, wired
// through fx.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/scribblechat/scribble/internal/bus"
	"github.com/scribblechat/scribble/internal/config"
	"github.com/scribblechat/scribble/internal/lock"
	"github.com/scribblechat/scribble/internal/logging"
	"github.com/scribblechat/scribble/internal/push"
	"github.com/scribblechat/scribble/internal/rest"
	"github.com/scribblechat/scribble/internal/session"
	"github.com/scribblechat/scribble/internal/status"
	intsync "github.com/scribblechat/scribble/internal/sync"
	"github.com/scribblechat/scribble/internal/typing"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	ConfigPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideTracker,
			provideAPI,
			providePushManager,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) *config.Config {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Default()
	}
	return cfg
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideTracker(b *bus.Bus) *typing.Tracker {
	return typing.NewTracker(b, typing.DefaultIdleTimeout)
}

func provideAPI(cfg *config.Config) *rest.Client {
	return rest.NewClient(cfg.ServerURL, nil)
}

func providePushManager(cfg *config.Config, m *status.Machine, logger *zap.Logger) *push.Manager {
	return push.NewManager(push.NewWebsocketDialer(cfg.SocketURL), m, logger)
}

func provideEngine(api *rest.Client, p *push.Manager, t *typing.Tracker, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(api, p, t, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, engine *intsync.Engine, cfg *config.Config, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if cfg.Email == "" || cfg.Password == "" {
				logger.Info("no credentials configured, waiting for interactive login")
				return nil
			}
			// Unattended login; the engine connects the push channel and
			// fetches conversations on success.
			go func() {
				if _, err := engine.Login(context.Background(), cfg.Email, cfg.Password); err != nil {
					logger.Error("configured login failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			engine.Logout()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
