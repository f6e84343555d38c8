package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"zone-alerts/internal/alerting"
	"zone-alerts/internal/config"
	"zone-alerts/internal/evaluator"
	"zone-alerts/internal/market"
	"zone-alerts/internal/scheduler"
	"zone-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting.Telegram
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.MaxAttempts, cfg.RequestTimeout, a.Logger)
}

func (a *App) newQuotes() *market.Quotes {
	return market.NewQuotes(market.QuoteOptions{
		BaseURL:   a.Config.Market.QuoteBaseURL,
		Timeout:   a.Config.Market.RequestTimeout,
		UserAgent: a.Config.Market.UserAgent,
	}, a.Logger)
}

func (a *App) marketHours() (market.Hours, error) {
	return market.NewHours(a.Config.Market.Timezone, a.Config.Market.SessionOpen, a.Config.Market.SessionClose)
}

func (a *App) newZoneEvaluator(store storage.ZoneStore, notifier alerting.Notifier) (*evaluator.ZoneEvaluator, error) {
	hours, err := a.marketHours()
	if err != nil {
		return nil, err
	}
	return evaluator.NewZoneEvaluator(store, a.newQuotes(), notifier, evaluator.ZoneOptions{
		Hours:         hours,
		DefaultSuffix: a.Config.Market.DefaultSuffix,
		ApproachPct:   a.Config.Zones.ApproachPct,
	}, a.Logger), nil
}

func (a *App) newTradeEvaluator(store storage.TradeStore, notifier alerting.Notifier) (*evaluator.TradeEvaluator, error) {
	hours, err := a.marketHours()
	if err != nil {
		return nil, err
	}
	resetAfter, err := market.ParseClock(a.Config.Trades.ResetAfter)
	if err != nil {
		return nil, err
	}
	return evaluator.NewTradeEvaluator(store, a.newQuotes(), notifier, evaluator.TradeOptions{
		Hours:         hours,
		DefaultSuffix: a.Config.Market.DefaultSuffix,
		ApproachPct:   a.Config.Trades.ApproachPct,
		Cooldown:      a.Config.Trades.Cooldown,
		ResetAfter:    resetAfter,
	}, a.Logger), nil
}

// CheckZones runs one zone evaluation pass with a scoped store handle.
func (a *App) CheckZones(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier := a.newNotifier()
	ev, err := a.newZoneEvaluator(store, notifier)
	if err != nil {
		return err
	}

	if err := ev.Run(ctx); err != nil {
		a.reportFailure(ctx, notifier, fmt.Sprintf("⚠️ Error in zone check: %v", err))
		return err
	}
	return nil
}

// CheckTrades runs one trade evaluation pass with a scoped store handle.
func (a *App) CheckTrades(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier := a.newNotifier()
	ev, err := a.newTradeEvaluator(store, notifier)
	if err != nil {
		return err
	}

	if err := ev.Run(ctx); err != nil {
		a.reportFailure(ctx, notifier, fmt.Sprintf("⚠️ Error in trade check: %v", err))
		return err
	}
	return nil
}

// Watch runs both evaluators on the configured interval until interrupted.
// Overlap with another watcher instance is prevented by the advisory lock.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier := a.newNotifier()
	zones, err := a.newZoneEvaluator(store, notifier)
	if err != nil {
		return err
	}
	trades, err := a.newTradeEvaluator(store, notifier)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToInterval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	lockKey := a.Config.Scheduler.AdvisoryLockKey

	a.Logger.Info().Msg("starting watch loop")
	err = sched.Run(ctx, func(ctx context.Context, tick time.Time) error {
		unlock, acquired, err := a.acquireLock(ctx, store, lockKey)
		if err != nil {
			return err
		}
		if !acquired {
			a.Logger.Debug().Time("tick", tick).Msg("skip tick, advisory lock held elsewhere")
			return nil
		}
		if unlock != nil {
			defer unlock()
		}

		if err := zones.Run(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("zone check failed")
			a.reportFailure(ctx, notifier, fmt.Sprintf("⚠️ Error in zone check: %v", err))
		}
		if err := trades.Run(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("trade check failed")
			a.reportFailure(ctx, notifier, fmt.Sprintf("⚠️ Error in trade check: %v", err))
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.Logger.Info().Msg("watch loop stopped")
	return nil
}

func (a *App) acquireLock(ctx context.Context, locker storage.AdvisoryLocker, key int64) (func(), bool, error) {
	if key == 0 || locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := locker.TryAdvisoryLock(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// reportFailure sends one best-effort failure notification. A delivery
// failure here is logged and never re-reported, so a transport outage
// cannot cascade into further notifications.
func (a *App) reportFailure(ctx context.Context, notifier alerting.Notifier, msg string) {
	if notifier == nil {
		return
	}
	if err := notifier.Send(ctx, msg); err != nil {
		a.Logger.Error().Err(err).Msg("failed to deliver failure notification")
	}
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Zones  bool
	Trades bool
}
