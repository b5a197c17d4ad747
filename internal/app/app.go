package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bilal2742/Crypto-bot/internal/alerting"
	"github.com/Bilal2742/Crypto-bot/internal/commands"
	"github.com/Bilal2742/Crypto-bot/internal/config"
	"github.com/Bilal2742/Crypto-bot/internal/evaluator"
	"github.com/Bilal2742/Crypto-bot/internal/feed"
	"github.com/Bilal2742/Crypto-bot/internal/health"
	"github.com/Bilal2742/Crypto-bot/internal/history"
	"github.com/Bilal2742/Crypto-bot/internal/metrics"
	"github.com/Bilal2742/Crypto-bot/internal/reconnect"
	"github.com/Bilal2742/Crypto-bot/internal/scheduler"
	"github.com/Bilal2742/Crypto-bot/internal/storage"
	"github.com/Bilal2742/Crypto-bot/internal/supervisor"
)

// ErrInstanceLocked is returned when another instance holds the alert lock.
var ErrInstanceLocked = errors.New("another instance is already alerting")

type namedUnit struct {
	name string
	run  supervisor.RunFunc
}

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNotifier() *alerting.TelegramNotifier {
	cfg := a.Config.Telegram
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.APIBase, cfg.RequestTimeout, a.Logger)
}

func (a *App) newHistory() *history.Binance {
	return history.NewBinance(history.Options{
		BaseURL:   a.Config.Binance.RESTBaseURL,
		APIKey:    a.Config.Binance.APIKey,
		SecretKey: a.Config.Binance.SecretKey,
		Interval:  a.Config.Alerts.ChartInterval,
		Limit:     a.Config.Alerts.ChartPoints,
	}, a.Logger)
}

func (a *App) newEvaluator(recorder *metrics.Recorder) (*evaluator.Evaluator, error) {
	horizons, err := evaluator.ParseHorizons(a.Config.Alerts.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return evaluator.New(evaluator.Options{
		Horizons:   horizons,
		Cooldown:   a.Config.Alerts.Cooldown,
		Resolution: a.Config.Alerts.Resolution,
		Metrics:    recorder,
	}, a.Logger)
}

func (a *App) policy() reconnect.Policy {
	return reconnect.Policy{
		MaxAttempts: a.Config.Reconnect.MaxAttempts,
		Base:        a.Config.Reconnect.BackoffBase,
		Unit:        a.Config.Reconnect.BackoffUnit,
		Cap:         a.Config.Reconnect.BackoffCap,
	}
}

// openStore returns nil without error when no DSN is configured.
func (a *App) openStore(ctx context.Context) (*storage.Store, error) {
	if a.Config.Database.DSN == "" {
		return nil, nil
	}
	return storage.Open(ctx, a.Config.Database)
}

// Run executes the long-running alert service until a signal arrives or a
// unit fails.
func (a *App) Run(ctx context.Context) error {
	recorder := metrics.New()

	ev, err := a.newEvaluator(recorder)
	if err != nil {
		return err
	}

	sup := supervisor.New(supervisor.Options{
		ShutdownTimeout: a.Config.Shutdown.Timeout,
		Signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}, a.Logger)

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	var (
		recorderStore alerting.AlertRecorder
		prunerStore   health.AlertPruner
	)
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	} else {
		sup.OnRelease("store", func() error { store.Close(); return nil })

		unlock, acquired, err := store.TryAdvisoryLock(ctx, a.Config.Database.AdvisoryLockKey)
		if err != nil {
			sup.Shutdown()
			return err
		}
		if !acquired {
			sup.Shutdown()
			return ErrInstanceLocked
		}
		sup.OnRelease("advisory_lock", func() error { unlock(); return nil })
		recorderStore, prunerStore = store, store
	}

	receiver := feed.NewReceiver(feed.Options{
		URL:              a.Config.Feed.URL,
		HandshakeTimeout: a.Config.Feed.HandshakeTimeout,
		PingInterval:     a.Config.Feed.PingInterval,
		Symbols:          a.Config.Feed.Symbols,
		QuoteAssets:      a.Config.Feed.QuoteAssets,
	}, a.Logger)
	stream := reconnect.New(receiver, reconnect.Options{
		Policy:         a.policy(),
		ReceiveTimeout: a.Config.Feed.ReceiveTimeout,
		Metrics:        recorder,
	}, a.Logger)

	var points alerting.PointSource
	if a.Config.Alerts.ChartEnabled {
		points = a.newHistory()
	}
	notifier := a.newNotifier()
	sup.OnRelease("notifier", notifier.Close)
	dispatcher := alerting.NewDispatcher(notifier, alerting.DispatcherOptions{
		ChatID:      a.Config.Telegram.ChatID,
		BotName:     a.Config.Telegram.BotName,
		Charts:      a.Config.Alerts.ChartEnabled,
		ChartPoints: a.Config.Alerts.ChartPoints,
		History:     points,
		Store:       recorderStore,
		Metrics:     recorder,
		Timeout:     a.Config.Telegram.RequestTimeout * 3,
	}, a.Logger)

	reporter := health.NewReporter(health.Options{
		BotName:   a.Config.Telegram.BotName,
		Interval:  a.Config.Health.Interval,
		Retention: a.Config.Health.AlertRetention,
	}, health.Sources{
		Stream:         stream.Status,
		TrackedSymbols: ev.TrackedSymbols,
		Dispatch:       dispatcher.Stats,
		Store:          prunerStore,
	}, a.Logger)
	sched, err := scheduler.New(scheduler.Options{Name: "health", Interval: a.Config.Health.Interval, AlignToStart: true}, a.Logger)
	if err != nil {
		sup.Shutdown()
		return err
	}

	ticks := make(chan feed.Tick, a.Config.Feed.BufferSize)
	alerts := make(chan evaluator.Alert, a.Config.Alerts.QueueSize)

	units := []namedUnit{
		{"stream", func(ctx context.Context) error { return stream.Run(ctx, ticks) }},
		{"evaluator", func(ctx context.Context) error { return ev.Run(ctx, ticks, alerts) }},
		{"dispatcher", func(ctx context.Context) error { return dispatcher.Run(ctx, alerts) }},
		{"health", func(ctx context.Context) error { return sched.Run(ctx, reporter.Tick) }},
	}

	if a.Config.Telegram.CommandsEnabled {
		listener, err := commands.NewListener(commands.Options{
			Token:       a.Config.Telegram.BotToken,
			APIBase:     a.Config.Telegram.APIBase,
			ChatID:      a.Config.Telegram.ChatID,
			BotName:     a.Config.Telegram.BotName,
			PollTimeout: a.Config.Telegram.PollTimeout,
		}, func() string {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return reporter.Render(ctx)
		}, a.Logger)
		if err != nil {
			// The alert path does not depend on the listener.
			a.Logger.Warn().Err(err).Msg("command listener disabled")
		} else {
			units = append(units, namedUnit{"commands", listener.Run})
		}
	}

	if a.Config.Metrics.ListenAddr != "" {
		srv := metrics.NewServer(a.Config.Metrics.ListenAddr, a.Config.Metrics.Path, recorder, a.Logger)
		units = append(units, namedUnit{"metrics", srv.Run})
	}

	for _, u := range units {
		if err := sup.Add(u.name, u.run); err != nil {
			sup.Shutdown()
			return err
		}
	}

	if a.Config.Telegram.Announce {
		a.announce(ctx, notifier, ev.Horizons())
	}

	a.Logger.Info().
		Str("feed", receiver.URL()).
		Int("horizons", len(ev.Horizons())).
		Dur("cooldown", a.Config.Alerts.Cooldown).
		Int("max_retries", a.Config.Reconnect.MaxAttempts).
		Msg("starting alert service")

	err = sup.Run(ctx)
	if err != nil {
		a.Logger.Error().Err(err).Msg("alert service terminated with error")
		return err
	}
	a.Logger.Info().Msg("alert service stopped")
	return nil
}

func (a *App) announce(ctx context.Context, notifier alerting.Notifier, horizons []evaluator.Horizon) {
	ctx, cancel := context.WithTimeout(ctx, a.Config.Telegram.RequestTimeout)
	defer cancel()
	if err := notifier.SendText(ctx, a.Config.Telegram.ChatID, alerting.RenderAnnounce(a.Config.Telegram.BotName, horizons)); err != nil {
		a.Logger.Warn().Err(err).Msg("startup announcement failed")
	}
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Symbol string
}

// ChartOptions configure the chart command.
type ChartOptions struct {
	Symbol   string
	Interval string
	Points   int
	PNGPath  string
}
