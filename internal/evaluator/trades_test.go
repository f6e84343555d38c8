package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"zone-alerts/internal/market"
	"zone-alerts/internal/storage"
)

func newTradeTestEvaluator(store *fakeTradeStore, quotes *staticQuotes, notifier *fakeNotifier, at time.Time) *TradeEvaluator {
	ev := NewTradeEvaluator(store, quotes, notifier, TradeOptions{
		Hours:         sessionHours(),
		DefaultSuffix: ".NS",
		ApproachPct:   0.02,
		Cooldown:      30 * time.Minute,
		ResetAfter:    market.Clock{Hour: 15, Minute: 30},
	}, zerolog.Nop())
	ev.now = func() time.Time { return at }
	return ev
}

func openTrade(id int64, symbol string, entry decimal.Decimal) storage.Trade {
	return storage.Trade{ID: id, Symbol: symbol, EntryPrice: entry, Status: "OPEN"}
}

func TestTradeApproachingTakesPriority(t *testing.T) {
	store := &fakeTradeStore{trades: []storage.Trade{
		openTrade(1, "TCS", decimal.NewFromInt(100)),
	}}
	// 98.5 is within 2% of entry and also at-or-below it; only the
	// higher-priority approaching branch may fire.
	quotes := &staticQuotes{lows: map[string]decimal.Decimal{"TCS.NS": decimal.NewFromFloat(98.5)}}
	notifier := &fakeNotifier{}

	ev := newTradeTestEvaluator(store, quotes, notifier, midSession())
	if err := ev.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "approaching entry") {
		t.Fatalf("expected only the approaching alert, got %v", notifier.messages)
	}
	if !store.trades[0].AlertSent {
		t.Fatal("alert flag should be set")
	}
	if store.trades[0].EntryAlertSent {
		t.Fatal("entry branch must not co-fire with approaching")
	}
	if store.trades[0].LastAlertTime == nil {
		t.Fatal("alert must refresh the cooldown timestamp")
	}
}

func TestTradeEntryHitWhenApproachingAlreadySent(t *testing.T) {
	trade := openTrade(1, "TCS", decimal.NewFromInt(100))
	trade.AlertSent = true
	store := &fakeTradeStore{trades: []storage.Trade{trade}}
	quotes := &staticQuotes{lows: map[string]decimal.Decimal{"TCS.NS": decimal.NewFromFloat(99.5)}}
	notifier := &fakeNotifier{}

	ev := newTradeTestEvaluator(store, quotes, notifier, midSession())
	if err := ev.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "entry hit") {
		t.Fatalf("expected the entry alert, got %v", notifier.messages)
	}
	if !store.trades[0].EntryAlertSent {
		t.Fatal("entry flag should be set")
	}
}

func TestTradeCooldownSuppressesAllAlerts(t *testing.T) {
	now := midSession()
	recent := now.Add(-10 * time.Minute)
	trade := openTrade(1, "TCS", decimal.NewFromInt(100))
	trade.LastAlertTime = &recent
	store := &fakeTradeStore{trades: []storage.Trade{trade}}
	quotes := &staticQuotes{lows: map[string]decimal.Decimal{"TCS.NS": decimal.NewFromFloat(98.5)}}
	notifier := &fakeNotifier{}

	ev := newTradeTestEvaluator(store, quotes, notifier, now)
	if err := ev.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(notifier.messages) != 0 {
		t.Fatalf("cooldown must suppress every alert type, got %v", notifier.messages)
	}
	if store.trades[0].AlertSent || store.trades[0].EntryAlertSent {
		t.Fatalf("no flags may change during cooldown: %+v", store.trades[0])
	}
}

func TestTradeCooldownExpiredAllowsAlert(t *testing.T) {
	now := midSession()
	stale := now.Add(-45 * time.Minute)
	trade := openTrade(1, "TCS", decimal.NewFromInt(100))
	trade.LastAlertTime = &stale
	store := &fakeTradeStore{trades: []storage.Trade{trade}}
	quotes := &staticQuotes{lows: map[string]decimal.Decimal{"TCS.NS": decimal.NewFromFloat(98.5)}}
	notifier := &fakeNotifier{}

	ev := newTradeTestEvaluator(store, quotes, notifier, now)
	if err := ev.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(notifier.messages) != 1 {
		t.Fatalf("expired cooldown must not suppress, got %v", notifier.messages)
	}
}

func TestTradeEndOfDayResetSendsNoNotification(t *testing.T) {
	trade := openTrade(1, "TCS", decimal.NewFromInt(100))
	trade.AlertSent = true
	store := &fakeTradeStore{trades: []storage.Trade{trade}}
	// Low well away from entry so neither threshold branch matches.
	quotes := &staticQuotes{lows: map[string]decimal.Decimal{"TCS.NS": decimal.NewFromInt(150)}}
	notifier := &fakeNotifier{}

	// 15:30 falls inside the closing minute of the session.
	closing := time.Date(2024, 1, 10, 15, 30, 10, 0, time.UTC)
	ev := newTradeTestEvaluator(store, quotes, notifier, closing)
	if err := ev.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(notifier.messages) != 0 {
		t.Fatalf("the reset must be silent, got %v", notifier.messages)
	}
	if store.trades[0].AlertSent {
		t.Fatal("alert flag should be reset for the next session")
	}
	if store.resets != 1 {
		t.Fatalf("expected exactly one reset, got %d", store.resets)
	}
	if store.trades[0].LastAlertTime == nil {
		t.Fatal("reset must refresh the cooldown timestamp")
	}
}

func TestTradeNoResetWhenEntryAlreadyHit(t *testing.T) {
	trade := openTrade(1, "TCS", decimal.NewFromInt(100))
	trade.AlertSent = true
	trade.EntryAlertSent = true
	store := &fakeTradeStore{trades: []storage.Trade{trade}}
	quotes := &staticQuotes{lows: map[string]decimal.Decimal{"TCS.NS": decimal.NewFromInt(150)}}
	notifier := &fakeNotifier{}

	closing := time.Date(2024, 1, 10, 15, 30, 10, 0, time.UTC)
	ev := newTradeTestEvaluator(store, quotes, notifier, closing)
	if err := ev.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if store.resets != 0 {
		t.Fatal("entry-hit trades keep their state at end of day")
	}
	if !store.trades[0].AlertSent {
		t.Fatal("alert flag must survive when entry was hit")
	}
}

func TestTradeResetRuleAtOrAfterThreshold(t *testing.T) {
	reset := market.Clock{Hour: 15, Minute: 30}
	if reset.AtOrAfter(time.Date(2024, 1, 10, 15, 29, 0, 0, time.UTC)) {
		t.Fatal("reset must not trigger before 15:30")
	}
	if !reset.AtOrAfter(time.Date(2024, 1, 10, 15, 31, 0, 0, time.UTC)) {
		t.Fatal("reset must trigger at 15:31")
	}
}

func TestTradeBatchFetchFailureSkipsRecords(t *testing.T) {
	store := &fakeTradeStore{trades: []storage.Trade{
		openTrade(1, "TCS", decimal.NewFromInt(100)),
		openTrade(2, "INFY", decimal.NewFromInt(200)),
	}}
	quotes := &staticQuotes{batchErr: errors.New("quote api down")}
	notifier := &fakeNotifier{}

	ev := newTradeTestEvaluator(store, quotes, notifier, midSession())
	if err := ev.Run(context.Background()); err != nil {
		t.Fatalf("a batch failure must not abort the run: %v", err)
	}

	// One failure report, no per-record alerts, no state changes.
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "Error fetching price data") {
		t.Fatalf("expected one failure report, got %v", notifier.messages)
	}
	for _, trade := range store.trades {
		if trade.AlertSent || trade.EntryAlertSent {
			t.Fatalf("no record may change state without prices: %+v", trade)
		}
	}
}

func TestTradeMalformedRecordSkipped(t *testing.T) {
	store := &fakeTradeStore{trades: []storage.Trade{
		openTrade(1, "", decimal.NewFromInt(100)),
		openTrade(2, "BAD", decimal.Zero),
		openTrade(3, "TCS", decimal.NewFromInt(100)),
	}}
	quotes := &staticQuotes{lows: map[string]decimal.Decimal{"TCS.NS": decimal.NewFromFloat(98.5)}}
	notifier := &fakeNotifier{}

	ev := newTradeTestEvaluator(store, quotes, notifier, midSession())
	if err := ev.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "TCS") {
		t.Fatalf("only the healthy trade may alert, got %v", notifier.messages)
	}
}

func TestTradeIdempotentRerun(t *testing.T) {
	store := &fakeTradeStore{trades: []storage.Trade{
		openTrade(1, "TCS", decimal.NewFromInt(100)),
	}}
	quotes := &staticQuotes{lows: map[string]decimal.Decimal{"TCS.NS": decimal.NewFromFloat(98.5)}}
	notifier := &fakeNotifier{}

	ev := newTradeTestEvaluator(store, quotes, notifier, midSession())
	if err := ev.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if err := ev.Run(context.Background()); err != nil {
		t.Fatalf("rerun failed: %v", err)
	}

	// The second pass lands inside the cooldown refreshed by the first.
	if len(notifier.messages) != 1 {
		t.Fatalf("back-to-back runs must not duplicate alerts, got %v", notifier.messages)
	}
}
