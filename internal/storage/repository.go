package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	listFreshZonesSQL = `SELECT
        id,
        ticker,
        zone_id,
        proximal_line,
        distal_line,
        freshness,
        trade_score,
        zone_alert_sent,
        zone_entry_sent
    FROM demand_zones
    WHERE freshness > 0
    ORDER BY id;`

	markZoneAlertSentSQL = `UPDATE demand_zones
    SET zone_alert_sent = TRUE
    WHERE id = $1;`

	markZoneEntrySentSQL = `UPDATE demand_zones
    SET zone_entry_sent = TRUE
    WHERE id = $1;`

	invalidateZoneSQL = `UPDATE demand_zones
    SET freshness = 0, trade_score = 0
    WHERE id = $1;`

	listOpenTradesSQL = `SELECT
        id,
        symbol,
        entry_price,
        status,
        alert_sent,
        entry_alert_sent,
        last_alert_time
    FROM trades
    WHERE status = 'OPEN'
    ORDER BY id;`

	markTradeAlertSentSQL = `UPDATE trades
    SET alert_sent = TRUE, last_alert_time = $2
    WHERE id = $1;`

	markTradeEntrySentSQL = `UPDATE trades
    SET entry_alert_sent = TRUE, last_alert_time = $2
    WHERE id = $1;`

	resetTradeAlertSQL = `UPDATE trades
    SET alert_sent = FALSE, last_alert_time = $2
    WHERE id = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ZoneStore defines the zone-record operations the evaluator needs.
type ZoneStore interface {
	ListFreshZones(ctx context.Context) ([]Zone, error)
	MarkZoneAlertSent(ctx context.Context, id int64) error
	MarkZoneEntrySent(ctx context.Context, id int64) error
	InvalidateZone(ctx context.Context, id int64) error
}

// TradeStore defines the trade-record operations the evaluator needs.
type TradeStore interface {
	ListOpenTrades(ctx context.Context) ([]Trade, error)
	MarkTradeAlertSent(ctx context.Context, id int64, at time.Time) error
	MarkTradeEntrySent(ctx context.Context, id int64, at time.Time) error
	ResetTradeAlert(ctx context.Context, id int64, at time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to demand zones and trades.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ListFreshZones returns every zone record that is still actionable.
func (s *Store) ListFreshZones(ctx context.Context) ([]Zone, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listFreshZonesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list fresh zones: %w", queryErr)
	}
	defer rows.Close()

	zones := make([]Zone, 0)
	for rows.Next() {
		zone, scanErr := scanZone(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		zones = append(zones, zone)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return zones, nil
}

// MarkZoneAlertSent flips the approaching-alert flag for one zone.
func (s *Store) MarkZoneAlertSent(ctx context.Context, id int64) error {
	return s.execByID(ctx, markZoneAlertSentSQL, "mark zone alert sent", id)
}

// MarkZoneEntrySent flips the entry-alert flag for one zone.
func (s *Store) MarkZoneEntrySent(ctx context.Context, id int64) error {
	return s.execByID(ctx, markZoneEntrySentSQL, "mark zone entry sent", id)
}

// InvalidateZone permanently stales a breached zone.
func (s *Store) InvalidateZone(ctx context.Context, id int64) error {
	return s.execByID(ctx, invalidateZoneSQL, "invalidate zone", id)
}

// ListOpenTrades returns every trade record with OPEN status.
func (s *Store) ListOpenTrades(ctx context.Context) ([]Trade, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listOpenTradesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list open trades: %w", queryErr)
	}
	defer rows.Close()

	trades := make([]Trade, 0)
	for rows.Next() {
		trade, scanErr := scanTrade(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		trades = append(trades, trade)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return trades, nil
}

// MarkTradeAlertSent flips the approaching-alert flag and refreshes the
// cooldown timestamp for one trade.
func (s *Store) MarkTradeAlertSent(ctx context.Context, id int64, at time.Time) error {
	return s.execByIDAt(ctx, markTradeAlertSentSQL, "mark trade alert sent", id, at)
}

// MarkTradeEntrySent flips the entry-alert flag and refreshes the cooldown
// timestamp for one trade.
func (s *Store) MarkTradeEntrySent(ctx context.Context, id int64, at time.Time) error {
	return s.execByIDAt(ctx, markTradeEntrySentSQL, "mark trade entry sent", id, at)
}

// ResetTradeAlert clears the approaching-alert flag at end of day so a
// fresh alert can fire next session.
func (s *Store) ResetTradeAlert(ctx context.Context, id int64, at time.Time) error {
	return s.execByIDAt(ctx, resetTradeAlertSQL, "reset trade alert", id, at)
}

func (s *Store) execByID(ctx context.Context, query, action string, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, query, id)
	if execErr != nil {
		return fmt.Errorf("%s: %w", action, execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) execByIDAt(ctx context.Context, query, action string, id int64, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, query, id, at)
	if execErr != nil {
		return fmt.Errorf("%s: %w", action, execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func scanZone(rows pgx.Rows) (Zone, error) {
	var (
		zone        Zone
		proximalStr string
		distalStr   string
	)

	if err := rows.Scan(
		&zone.ID,
		&zone.Ticker,
		&zone.ZoneID,
		&proximalStr,
		&distalStr,
		&zone.Freshness,
		&zone.TradeScore,
		&zone.ZoneAlertSent,
		&zone.ZoneEntrySent,
	); err != nil {
		return Zone{}, err
	}

	proximal, err := decimal.NewFromString(proximalStr)
	if err != nil {
		return Zone{}, fmt.Errorf("parse proximal line: %w", err)
	}
	distal, err := decimal.NewFromString(distalStr)
	if err != nil {
		return Zone{}, fmt.Errorf("parse distal line: %w", err)
	}

	zone.ProximalLine = proximal
	zone.DistalLine = distal
	return zone, nil
}

func scanTrade(rows pgx.Rows) (Trade, error) {
	var (
		trade     Trade
		entryStr  string
		lastAlert sql.NullTime
	)

	if err := rows.Scan(
		&trade.ID,
		&trade.Symbol,
		&entryStr,
		&trade.Status,
		&trade.AlertSent,
		&trade.EntryAlertSent,
		&lastAlert,
	); err != nil {
		return Trade{}, err
	}

	entry, err := decimal.NewFromString(entryStr)
	if err != nil {
		return Trade{}, fmt.Errorf("parse entry price: %w", err)
	}
	trade.EntryPrice = entry

	if lastAlert.Valid {
		at := lastAlert.Time
		trade.LastAlertTime = &at
	}
	return trade, nil
}

var (
	_ ZoneStore      = (*Store)(nil)
	_ TradeStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
