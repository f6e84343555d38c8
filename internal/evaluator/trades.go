package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"zone-alerts/internal/alerting"
	"zone-alerts/internal/market"
	"zone-alerts/internal/storage"
)

// TradeOptions parameterise the open-trade evaluator.
type TradeOptions struct {
	Hours         market.Hours
	DefaultSuffix string
	ApproachPct   float64
	Cooldown      time.Duration
	ResetAfter    market.Clock
}

// TradeEvaluator checks open trades against session lows. Unlike the zone
// rules, the trade rules form a priority chain: at most one branch fires
// per record per pass, and the cooldown suppresses all of them.
type TradeEvaluator struct {
	store      storage.TradeStore
	quotes     market.QuoteSource
	notifier   alerting.Notifier
	hours      market.Hours
	suffix     string
	approach   decimal.Decimal
	cooldown   time.Duration
	resetAfter market.Clock
	logger     zerolog.Logger
	now        func() time.Time
}

// NewTradeEvaluator constructs a trade evaluator.
func NewTradeEvaluator(store storage.TradeStore, quotes market.QuoteSource, notifier alerting.Notifier, opts TradeOptions, logger zerolog.Logger) *TradeEvaluator {
	approach := decimal.NewFromFloat(opts.ApproachPct)
	if !approach.IsPositive() {
		approach = decimal.NewFromFloat(0.02)
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Minute
	}

	return &TradeEvaluator{
		store:      store,
		quotes:     quotes,
		notifier:   notifier,
		hours:      opts.Hours,
		suffix:     opts.DefaultSuffix,
		approach:   approach,
		cooldown:   cooldown,
		resetAfter: opts.ResetAfter,
		logger:     logger.With().Str("component", "trade_evaluator").Logger(),
		now:        time.Now,
	}
}

// Run performs one evaluation pass over all open trades.
func (e *TradeEvaluator) Run(ctx context.Context) error {
	now := e.now()
	if !e.hours.IsOpen(now) {
		e.logger.Info().Msg("outside market hours, skipping trade check")
		return nil
	}

	trades, err := e.store.ListOpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("load open trades: %w", err)
	}
	if len(trades) == 0 {
		e.logger.Info().Msg("no open trades found")
		return nil
	}

	symbols := make([]string, 0, len(trades))
	for _, trade := range trades {
		if trade.Symbol == "" {
			continue
		}
		symbols = append(symbols, trade.Symbol)
	}
	symbols = market.UniqueSymbols(symbols, e.suffix)
	e.logger.Info().Int("trades", len(trades)).Strs("symbols", symbols).Msg("checking trades")

	lows, err := e.quotes.DayLows(ctx, symbols)
	if err != nil {
		// A failed batch is not fatal: records simply find no price and
		// are skipped this pass.
		e.logger.Error().Err(err).Msg("batched day-low fetch failed")
		e.reportBestEffort(ctx, fmt.Sprintf("⚠️ Error fetching price data for trades: %v", err))
		lows = nil
	}

	for _, trade := range trades {
		if err := e.evaluate(ctx, trade, lows, now); err != nil {
			e.logger.Error().Err(err).Str("symbol", trade.Symbol).Int64("trade_id", trade.ID).Msg("error processing trade")
			e.reportBestEffort(ctx, fmt.Sprintf("⚠️ Error processing trade %s: %v", trade.Symbol, err))
		}
	}

	return nil
}

func (e *TradeEvaluator) evaluate(ctx context.Context, trade storage.Trade, lows map[string]decimal.Decimal, now time.Time) error {
	if trade.Symbol == "" || !trade.EntryPrice.IsPositive() {
		e.logger.Warn().Int64("trade_id", trade.ID).Msg("skipping malformed trade record")
		return nil
	}

	symbol := market.PatchSymbol(trade.Symbol, e.suffix)
	low, ok := lows[symbol]
	if !ok {
		e.logger.Info().Str("symbol", trade.Symbol).Msg("skipping trade, no price data")
		return nil
	}

	// Cooldown precedes every threshold check and suppresses all alert
	// types uniformly.
	if trade.LastAlertTime != nil && now.Sub(*trade.LastAlertTime) < e.cooldown {
		e.logger.Debug().Str("symbol", trade.Symbol).Time("last_alert", *trade.LastAlertTime).Msg("trade in cooldown, skipping")
		return nil
	}

	local := now.In(e.hours.Location)
	distance := trade.EntryPrice.Sub(low).Abs().Div(trade.EntryPrice)

	switch {
	case !trade.AlertSent && distance.IsPositive() && distance.LessThanOrEqual(e.approach):
		msg := fmt.Sprintf("📶 *%s* trade approaching entry\nEntry: ₹%s\nDay Low: ₹%s",
			trade.Symbol, trade.EntryPrice.StringFixed(2), low.StringFixed(2))
		if err := e.notifier.Send(ctx, msg); err != nil {
			return fmt.Errorf("send approaching alert: %w", err)
		}
		if err := e.store.MarkTradeAlertSent(ctx, trade.ID, now); err != nil {
			return fmt.Errorf("mark trade alert sent: %w", err)
		}

	case !trade.EntryAlertSent && low.LessThanOrEqual(trade.EntryPrice):
		msg := fmt.Sprintf("🎯 *%s* trade entry hit!\nEntry: ₹%s\nDay Low: ₹%s",
			trade.Symbol, trade.EntryPrice.StringFixed(2), low.StringFixed(2))
		if err := e.notifier.Send(ctx, msg); err != nil {
			return fmt.Errorf("send entry alert: %w", err)
		}
		if err := e.store.MarkTradeEntrySent(ctx, trade.ID, now); err != nil {
			return fmt.Errorf("mark trade entry sent: %w", err)
		}

	case trade.AlertSent && !trade.EntryAlertSent && e.resetAfter.AtOrAfter(local):
		// End-of-day reset: entry never hit, so allow a fresh
		// approaching alert next session. No notification.
		if err := e.store.ResetTradeAlert(ctx, trade.ID, now); err != nil {
			return fmt.Errorf("reset trade alert: %w", err)
		}
		e.logger.Info().Str("symbol", trade.Symbol).Msg("trade alert flag reset for next session")
	}

	return nil
}

// reportBestEffort sends a failure notification without letting a delivery
// failure cascade into another notification.
func (e *TradeEvaluator) reportBestEffort(ctx context.Context, msg string) {
	if err := e.notifier.Send(ctx, msg); err != nil {
		e.logger.Error().Err(err).Msg("failed to deliver failure notification")
	}
}
