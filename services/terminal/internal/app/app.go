package app

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/kds/pkg"
	"github.com/appetiteclub/kds/pkg/remote"
	"github.com/appetiteclub/kds/services/terminal/internal/archive"
	"github.com/appetiteclub/kds/services/terminal/internal/cache"
	"github.com/appetiteclub/kds/services/terminal/internal/events"
	"github.com/appetiteclub/kds/services/terminal/internal/mongo"
	"github.com/appetiteclub/kds/services/terminal/internal/reload"
	"github.com/appetiteclub/kds/services/terminal/internal/sqlite"
	"github.com/appetiteclub/kds/services/terminal/internal/store"
	"github.com/appetiteclub/kds/services/terminal/internal/submit"
	"github.com/appetiteclub/kds/services/terminal/internal/terminal"
	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/middleware"
)

const (
	AppName    = "kds-terminal"
	AppVersion = "0.1.0"
)

// App encapsulates the terminal sync daemon
type App struct {
	config *aqm.Config
	logger aqm.Logger
	micro  *aqm.Micro
}

func New(config *aqm.Config, logger aqm.Logger) (*App, error) {
	return &App{
		config: config,
		logger: logger,
	}, nil
}

// Initialize sets up all dependencies and components
func (a *App) Initialize(ctx context.Context) error {
	opts, err := LoadOptions(a.config)
	if err != nil {
		return err
	}

	var lifecycles []interface{}

	// Local response cache
	responses, cacheLifecycle, err := a.openCache(opts)
	if err != nil {
		return err
	}
	if cacheLifecycle != nil {
		lifecycles = append(lifecycles, cacheLifecycle)
	}

	st := store.New(nil, a.logger)
	rc := remote.NewClient(opts.RemoteURL, nil, a.logger)
	client := cache.NewClient(rc, responses, st, a.logger)

	scheduler := reload.NewScheduler(func(ctx context.Context) error {
		_, err := client.RefreshState(ctx)
		return err
	}, reload.WithLogger(a.logger))

	pipeline := submit.NewPipeline(st, rc, client, a.logger)
	merger := archive.NewMerger(st, rc, a.logger)

	coord := terminal.NewCoordinator(terminal.Deps{
		Store:    st,
		Remote:   rc,
		Submit:   pipeline,
		Loader:   client,
		Reloader: scheduler,
		Archive:  merger,
	}, a.logger)

	callListPoller := terminal.NewCallListPoller(st, client, opts.CallListInterval, a.logger)
	timeSyncPoller := terminal.NewTimeSyncPoller(coord, opts.TimeSyncInterval, a.logger)

	channel := events.NewChannel(opts.EventsURL, events.NewWebsocketDialer(5*time.Second), st, scheduler, client, a.logger)

	handler := terminal.NewHandler(st, coord, pipeline, callListPoller, a.logger)

	// Warm from the cache, then go to the network. Failures leave the
	// terminal on cached data until the next push or reload.
	warmLifecycle := aqm.LifecycleHooks{
		OnStart: func(ctx context.Context) error {
			if err := client.Warm(ctx); err != nil {
				a.logger.Info("failed to warm from cache", "error", err)
			}
			if _, err := client.LoadMenu(ctx, false); err != nil {
				a.logger.Info("initial menu load failed", "error", err)
			}
			if _, err := client.LoadState(ctx, true); err != nil {
				a.logger.Info("initial state load failed", "error", err)
			}
			return nil
		},
	}
	lifecycles = append(lifecycles, st, warmLifecycle)

	if opts.NATSURL != "" {
		publisher, err := pkg.NewNATSPublisher(opts.NATSURL)
		if err != nil {
			return err
		}
		relay := terminal.NewRelay(st, publisher, opts.NATSTopic, opts.TerminalID, a.logger)
		publisherLifecycle := aqm.LifecycleHooks{
			OnStop: func(context.Context) error { return publisher.Close() },
		}
		lifecycles = append(lifecycles, publisherLifecycle, relay)
	}

	lifecycles = append(lifecycles, channel, callListPoller, timeSyncPoller)

	shutdownLifecycle := aqm.LifecycleHooks{
		OnStop: func(context.Context) error {
			scheduler.Close()
			coord.Close()
			client.Close()
			return nil
		},
	}
	lifecycles = append(lifecycles, shutdownLifecycle)

	// Setup middleware
	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      a.logger,
		DisableCORS: true,
	})

	options := []aqm.Option{
		aqm.WithConfig(a.config),
		aqm.WithLogger(a.logger),
		aqm.WithHTTPMiddleware(stack...),
		aqm.WithHTTPServerModules("web.port", handler),
		aqm.WithLifecycle(lifecycles...),
		aqm.WithHealthChecks(AppName),
	}

	a.micro = aqm.NewMicro(options...)
	a.logger.Info("terminal initialized",
		"terminal_id", opts.TerminalID,
		"remote", opts.RemoteURL,
		"cache", opts.CacheBackend,
	)
	return nil
}

// openCache returns the configured response cache and, when the backend
// holds a connection, the lifecycle that owns it.
func (a *App) openCache(opts Options) (cache.ResponseCache, interface{}, error) {
	switch opts.CacheBackend {
	case BackendMemory:
		return cache.NewMemory(), nil, nil
	case BackendMongo:
		repo := mongo.NewResponseRepo(a.config, a.logger)
		return repo, repo, nil
	default:
		c, err := sqlite.Open(opts.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		closer := aqm.LifecycleHooks{
			OnStop: func(context.Context) error { return c.Close() },
		}
		return c, closer, nil
	}
}

// Run starts the application
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("Starting %s(%s)", AppName, AppVersion)
	if err := a.micro.Run(ctx); err != nil {
		return err
	}
	a.logger.Infof("%s(%s) stopped", AppName, AppVersion)
	return nil
}
