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

// ZoneOptions parameterise the demand-zone evaluator.
type ZoneOptions struct {
	Hours         market.Hours
	DefaultSuffix string
	ApproachPct   float64
}

// ZoneEvaluator checks fresh demand zones against session lows. The three
// zone rules are independent: a single pass may send an approaching alert,
// an entry alert, and an invalidation for the same record.
type ZoneEvaluator struct {
	store    storage.ZoneStore
	quotes   market.QuoteSource
	notifier alerting.Notifier
	hours    market.Hours
	suffix   string
	approach decimal.Decimal
	logger   zerolog.Logger
	now      func() time.Time
}

// NewZoneEvaluator constructs a zone evaluator.
func NewZoneEvaluator(store storage.ZoneStore, quotes market.QuoteSource, notifier alerting.Notifier, opts ZoneOptions, logger zerolog.Logger) *ZoneEvaluator {
	approach := decimal.NewFromFloat(opts.ApproachPct)
	if !approach.IsPositive() {
		approach = decimal.NewFromFloat(0.03)
	}

	return &ZoneEvaluator{
		store:    store,
		quotes:   quotes,
		notifier: notifier,
		hours:    opts.Hours,
		suffix:   opts.DefaultSuffix,
		approach: approach,
		logger:   logger.With().Str("component", "zone_evaluator").Logger(),
		now:      time.Now,
	}
}

// Run performs one evaluation pass over all fresh zones.
func (e *ZoneEvaluator) Run(ctx context.Context) error {
	if !e.hours.IsOpen(e.now()) {
		e.logger.Info().Msg("outside market hours, skipping zone check")
		return nil
	}

	zones, err := e.store.ListFreshZones(ctx)
	if err != nil {
		return fmt.Errorf("load fresh zones: %w", err)
	}
	if len(zones) == 0 {
		e.logger.Info().Msg("no fresh zones found")
		return nil
	}

	tickers := make([]string, 0, len(zones))
	for _, zone := range zones {
		tickers = append(tickers, zone.Ticker)
	}
	symbols := market.UniqueSymbols(tickers, e.suffix)
	e.logger.Info().Int("zones", len(zones)).Strs("symbols", symbols).Msg("checking zones")

	lows := e.collectDayLows(ctx, symbols)

	for _, zone := range zones {
		symbol := market.PatchSymbol(zone.Ticker, e.suffix)
		low, ok := lows[symbol]
		if !ok {
			e.logger.Info().Str("ticker", zone.Ticker).Msg("skipping zone, no price data")
			continue
		}
		if err := e.evaluate(ctx, zone, low); err != nil {
			e.logger.Error().Err(err).Str("zone_id", zone.ZoneID).Msg("error processing zone")
		}
	}

	return nil
}

// collectDayLows fetches one session low per symbol, dropping symbols that
// fail so one bad ticker never aborts the batch.
func (e *ZoneEvaluator) collectDayLows(ctx context.Context, symbols []string) map[string]decimal.Decimal {
	lows := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		low, err := e.quotes.DayLow(ctx, symbol)
		if err != nil {
			e.logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to fetch day low")
			continue
		}
		e.logger.Info().Str("symbol", symbol).Str("day_low", low.StringFixed(2)).Msg("fetched day low")
		lows[symbol] = low
	}
	return lows
}

func (e *ZoneEvaluator) evaluate(ctx context.Context, zone storage.Zone, low decimal.Decimal) error {
	if zone.ProximalLine.IsZero() {
		return fmt.Errorf("zone %s has zero proximal line", zone.ZoneID)
	}

	if !zone.ZoneAlertSent {
		distance := zone.ProximalLine.Sub(low).Abs().Div(zone.ProximalLine)
		if distance.IsPositive() && distance.LessThanOrEqual(e.approach) {
			msg := fmt.Sprintf("📶 *%s* zone approaching entry\nZone ID: `%s`\nProximal: ₹%s\nDay Low: ₹%s",
				zone.Ticker, zone.ZoneID, zone.ProximalLine.StringFixed(2), low.StringFixed(2))
			if err := e.notifier.Send(ctx, msg); err != nil {
				return fmt.Errorf("send approaching alert: %w", err)
			}
			if err := e.store.MarkZoneAlertSent(ctx, zone.ID); err != nil {
				return fmt.Errorf("mark zone alert sent: %w", err)
			}
		}
	}

	if !zone.ZoneEntrySent && low.LessThanOrEqual(zone.ProximalLine) {
		msg := fmt.Sprintf("🎯 *%s* zone entry hit!\nZone ID: `%s`\nProximal: ₹%s\nDay Low: ₹%s",
			zone.Ticker, zone.ZoneID, zone.ProximalLine.StringFixed(2), low.StringFixed(2))
		if err := e.notifier.Send(ctx, msg); err != nil {
			return fmt.Errorf("send entry alert: %w", err)
		}
		if err := e.store.MarkZoneEntrySent(ctx, zone.ID); err != nil {
			return fmt.Errorf("mark zone entry sent: %w", err)
		}
	}

	if low.LessThan(zone.DistalLine) {
		msg := fmt.Sprintf("🛑 *%s* zone breached distal!\nZone ID: `%s`\nDistal: ₹%s\nDay Low: ₹%s\n⚠️ Marking as no longer fresh",
			zone.Ticker, zone.ZoneID, zone.DistalLine.StringFixed(2), low.StringFixed(2))
		if err := e.notifier.Send(ctx, msg); err != nil {
			return fmt.Errorf("send breach alert: %w", err)
		}
		if err := e.store.InvalidateZone(ctx, zone.ID); err != nil {
			return fmt.Errorf("invalidate zone: %w", err)
		}
		e.logger.Info().Str("ticker", zone.Ticker).Str("zone_id", zone.ZoneID).Msg("zone marked not fresh")
	}

	return nil
}
