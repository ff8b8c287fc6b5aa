// Package app is the composition root: it loads config, wires every service
// together and owns the process life cycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stargazerbot/internal/commands"
	"stargazerbot/internal/config"
	"stargazerbot/internal/dispatch"
	"stargazerbot/internal/eventbus"
	"stargazerbot/internal/metrics"
	"stargazerbot/internal/reporter"
	"stargazerbot/internal/runtime/supervisor"
	"stargazerbot/internal/storage"
	"stargazerbot/internal/stream"
	"stargazerbot/internal/subscribers"
	tgadapter "stargazerbot/internal/transport/telegram/adapter"
	"stargazerbot/pkg/logx"
)

type App struct {
	cfgMgr *config.ConfigManager
	logSvc *logx.Service
	log    logx.Logger

	adapter  *tgadapter.Adapter
	backend  *subscribers.Client
	bus      eventbus.Bus
	metrics  *metrics.Metrics
	store    storage.Store
	stream   *stream.Service
	reporter *reporter.Service

	metricsAddr string

	sup *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgMgr := config.NewConfigManager(cfgPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return nil, err
	}
	adapter, err := tgadapter.New(tgadapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole(cfg.Logging.Level))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}, adapter)
	logSvc.SetTelegramTarget(cfg.Telegram.GroupLog)
	cfgMgr.SetLogger(log.With(logx.String("comp", "config")))

	backend, err := subscribers.New(subscribers.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.M2MToken,
	}, log.With(logx.String("comp", "subscribers")))
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	bus := eventbus.New()

	var (
		m           *metrics.Metrics
		metricsAddr string
		dispHooks   dispatch.Hooks
		streamHooks stream.Hooks
	)
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsAddr = strings.TrimSpace(cfg.Metrics.Addr)
		if metricsAddr == "" {
			metricsAddr = "127.0.0.1:9090"
		}
		dispHooks = m.DispatchHooks()
		streamHooks = m.StreamHooks()
	}

	dispatcher := dispatch.New(dispatch.Config{
		SendRatePerSec: cfg.Dispatch.SendRatePerSec,
	}, adapter, backend, bus, log.With(logx.String("comp", "dispatch")), dispHooks)

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	reportChat := cfg.Report.ChatID
	if reportChat == 0 {
		reportChat = cfg.Telegram.GroupLog
	}
	rep := reporter.New(reporter.Config{
		Enabled:  cfg.Report.Enabled,
		Schedule: cfg.Report.Schedule,
		ChatID:   reportChat,
	}, store, bus, adapter, log.With(logx.String("comp", "reporter")))

	reconnect, err := config.ParseDurationField("stream.reconnect_delay", cfg.Stream.ReconnectDelay)
	if err != nil {
		return nil, err
	}
	streamSvc := stream.New(stream.Config{
		URL:            cfg.Stream.URL,
		Workers:        cfg.Dispatch.Workers,
		ReconnectDelay: reconnect,
	}, dispatcher, log.With(logx.String("comp", "stream")), streamHooks)

	cmds := commands.New(commands.Config{
		FrontendURL: cfg.Backend.FrontendURL,
	}, adapter, backend, log.With(logx.String("comp", "commands")))
	cmds.Install()

	return &App{
		cfgMgr:      cfgMgr,
		logSvc:      logSvc,
		log:         log,
		adapter:     adapter,
		backend:     backend,
		bus:         bus,
		metrics:     m,
		store:       store,
		stream:      streamSvc,
		reporter:    rep,
		metricsAddr: metricsAddr,
	}, nil
}

// Logger exposes the root logger for the binary.
func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(false),
	)

	if err := a.adapter.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("start telegram: %w", err)
	}

	a.sup.Go("stream.run", a.stream.Run)
	a.sup.Go("reporter.run", a.reporter.Run)
	a.sup.Go("config.watch", a.cfgMgr.Watch)
	a.sup.Go0("config.apply", a.applyConfigUpdates)

	if a.metrics != nil {
		addr := a.metricsAddr
		a.sup.Go("metrics.serve", func(c context.Context) error {
			return a.metrics.Serve(c, addr, a.log.With(logx.String("comp", "metrics")))
		})
	}

	a.log.Info("started")
	return nil
}

// applyConfigUpdates reacts to hot reloads. Only the logging sinks and the
// operator chat change at runtime; everything else needs a restart.
func (a *App) applyConfigUpdates(ctx context.Context) {
	ch := a.cfgMgr.Subscribe(4)
	defer a.cfgMgr.Unsubscribe(ch)

	prev := a.cfgMgr.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok || cfg == nil {
				return
			}
			changed, attrs := config.SummarizeConfigChange(prev, cfg)
			if len(changed) > 0 {
				a.log.Info("config changed",
					append([]logx.Field{logx.Strings("sections", changed)}, attrs...)...)
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
				Telegram: logx.TelegramConfig{
					Enabled:    cfg.Logging.Telegram.Enabled,
					MinLevel:   cfg.Logging.Telegram.MinLevel,
					RatePerSec: cfg.Logging.Telegram.RatePerSec,
				},
			})
			a.logSvc.SetTelegramTarget(cfg.Telegram.GroupLog)
			prev = cfg
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup != nil {
		a.sup.Cancel()
		wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_ = a.sup.Wait(wctx)
		cancel()
	}
	_ = a.adapter.Stop(ctx)
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logSvc.Close()
	return nil
}
