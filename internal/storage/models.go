package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Zone is a persisted demand-zone watch record. Freshness above zero marks
// the zone as actionable; a distal breach permanently zeroes it.
type Zone struct {
	ID            int64
	Ticker        string
	ZoneID        string
	ProximalLine  decimal.Decimal
	DistalLine    decimal.Decimal
	Freshness     float64
	TradeScore    float64
	ZoneAlertSent bool
	ZoneEntrySent bool
}

// Trade is a persisted open-trade watch record. The alert flags plus
// LastAlertTime carry the duplicate-suppression state.
type Trade struct {
	ID             int64
	Symbol         string
	EntryPrice     decimal.Decimal
	Status         string
	AlertSent      bool
	EntryAlertSent bool
	LastAlertTime  *time.Time
}
