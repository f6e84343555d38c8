package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"zone-alerts/internal/market"
	"zone-alerts/internal/storage"
)

type fakeNotifier struct {
	messages []string
	err      error
}

func (f *fakeNotifier) Send(ctx context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, text)
	return nil
}

type staticQuotes struct {
	lows     map[string]decimal.Decimal
	batchErr error
}

func (s *staticQuotes) DayLow(ctx context.Context, symbol string) (decimal.Decimal, error) {
	low, ok := s.lows[symbol]
	if !ok {
		return decimal.Decimal{}, market.ErrNoData
	}
	return low, nil
}

func (s *staticQuotes) DayLows(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		if low, ok := s.lows[symbol]; ok {
			out[symbol] = low
		}
	}
	return out, nil
}

type fakeZoneStore struct {
	zones   []storage.Zone
	listErr error
}

func (f *fakeZoneStore) ListFreshZones(ctx context.Context) ([]storage.Zone, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	fresh := make([]storage.Zone, 0, len(f.zones))
	for _, zone := range f.zones {
		if zone.Freshness > 0 {
			fresh = append(fresh, zone)
		}
	}
	return fresh, nil
}

func (f *fakeZoneStore) MarkZoneAlertSent(ctx context.Context, id int64) error {
	return f.mutate(id, func(z *storage.Zone) { z.ZoneAlertSent = true })
}

func (f *fakeZoneStore) MarkZoneEntrySent(ctx context.Context, id int64) error {
	return f.mutate(id, func(z *storage.Zone) { z.ZoneEntrySent = true })
}

func (f *fakeZoneStore) InvalidateZone(ctx context.Context, id int64) error {
	return f.mutate(id, func(z *storage.Zone) {
		z.Freshness = 0
		z.TradeScore = 0
	})
}

func (f *fakeZoneStore) mutate(id int64, apply func(*storage.Zone)) error {
	for i := range f.zones {
		if f.zones[i].ID == id {
			apply(&f.zones[i])
			return nil
		}
	}
	return fmt.Errorf("zone %d not found", id)
}

type fakeTradeStore struct {
	trades  []storage.Trade
	resets  int
	listErr error
}

func (f *fakeTradeStore) ListOpenTrades(ctx context.Context) ([]storage.Trade, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	open := make([]storage.Trade, 0, len(f.trades))
	for _, trade := range f.trades {
		if trade.Status == "OPEN" {
			open = append(open, trade)
		}
	}
	return open, nil
}

func (f *fakeTradeStore) MarkTradeAlertSent(ctx context.Context, id int64, at time.Time) error {
	return f.mutate(id, func(tr *storage.Trade) {
		tr.AlertSent = true
		stamp := at
		tr.LastAlertTime = &stamp
	})
}

func (f *fakeTradeStore) MarkTradeEntrySent(ctx context.Context, id int64, at time.Time) error {
	return f.mutate(id, func(tr *storage.Trade) {
		tr.EntryAlertSent = true
		stamp := at
		tr.LastAlertTime = &stamp
	})
}

func (f *fakeTradeStore) ResetTradeAlert(ctx context.Context, id int64, at time.Time) error {
	f.resets++
	return f.mutate(id, func(tr *storage.Trade) {
		tr.AlertSent = false
		stamp := at
		tr.LastAlertTime = &stamp
	})
}

func (f *fakeTradeStore) mutate(id int64, apply func(*storage.Trade)) error {
	for i := range f.trades {
		if f.trades[i].ID == id {
			apply(&f.trades[i])
			return nil
		}
	}
	return fmt.Errorf("trade %d not found", id)
}

func sessionHours() market.Hours {
	return market.Hours{
		Location: time.UTC,
		Open:     market.Clock{Hour: 9, Minute: 15},
		Close:    market.Clock{Hour: 15, Minute: 30},
	}
}

// Wednesday, mid-session.
func midSession() time.Time {
	return time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
}
