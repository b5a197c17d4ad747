package storage

import (
	"context"
	_ "embed"
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

//go:embed schema.sql
var schemaSQL string

const (
	insertAlertSQL = `INSERT INTO alerts (
        symbol,
        horizon,
        percent_change,
        threshold_pct,
        price,
        reference_price,
        triggered_at,
        delivered,
        delivery_error
    ) VALUES (
        $1,$2,$3::numeric,$4::numeric,$5::numeric,$6::numeric,$7,$8,$9
    )
    ON CONFLICT (symbol, horizon, triggered_at) DO UPDATE
    SET delivered      = EXCLUDED.delivered,
        delivery_error = EXCLUDED.delivery_error
    RETURNING id, created_at;`

	selectAlertColumns = `SELECT
        id,
        symbol,
        horizon,
        percent_change::text,
        threshold_pct::text,
        price::text,
        reference_price::text,
        triggered_at,
        delivered,
        delivery_error,
        created_at
    FROM alerts`

	listRecentAlertsSQL = selectAlertColumns + `
    ORDER BY triggered_at DESC
    LIMIT $1;`

	listSymbolAlertsSQL = selectAlertColumns + `
    WHERE symbol = $1
    ORDER BY triggered_at DESC
    LIMIT $2;`

	countAlertsSinceSQL   = `SELECT COUNT(*) FROM alerts WHERE triggered_at >= $1;`
	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	ListSymbolAlerts(ctx context.Context, symbol string, limit int) ([]AlertRecord, error)
	CountAlertsSince(ctx context.Context, since time.Time) (int64, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store persists alerts in PostgreSQL.
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

// EnsureSchema creates the alerts table and indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a session advisory lock on a dedicated
// connection and returns a release func.
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
		// Best effort: the lock also dies with the session.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// InsertAlert persists an alert; re-inserting the same trigger updates its
// delivery outcome.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	var deliveryErr any
	if alert.DeliveryError != nil {
		deliveryErr = *alert.DeliveryError
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Symbol,
		alert.Horizon,
		alert.PercentChange.String(),
		alert.ThresholdPct.String(),
		alert.Price.String(),
		alert.ReferencePrice.String(),
		alert.TriggeredAt.UTC(),
		alert.Delivered,
		deliveryErr,
	)

	rec := alert
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	return collectAlerts(rows, limit)
}

// ListSymbolAlerts lists the latest alerts for one symbol.
func (s *Store) ListSymbolAlerts(ctx context.Context, symbol string, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSymbolAlertsSQL, symbol, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list %s alerts: %w", symbol, queryErr)
	}
	return collectAlerts(rows, limit)
}

// CountAlertsSince counts alerts triggered at or after since.
func (s *Store) CountAlertsSince(ctx context.Context, since time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAlertsSinceSQL, since.UTC()).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count alerts: %w", scanErr)
	}
	return count, nil
}

// DeleteAlertsBefore deletes historical alerts and reports how many went.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan.UTC())
	if execErr != nil {
		return 0, fmt.Errorf("delete alerts before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func collectAlerts(rows pgx.Rows, limit int) ([]AlertRecord, error) {
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var rec AlertRecord
	var changeStr, thresholdStr, priceStr, refStr string
	if err := row.Scan(
		&rec.ID,
		&rec.Symbol,
		&rec.Horizon,
		&changeStr,
		&thresholdStr,
		&priceStr,
		&refStr,
		&rec.TriggeredAt,
		&rec.Delivered,
		&rec.DeliveryError,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var err error
	if rec.PercentChange, err = parseDecimal("percent change", changeStr); err != nil {
		return AlertRecord{}, err
	}
	if rec.ThresholdPct, err = parseDecimal("threshold pct", thresholdStr); err != nil {
		return AlertRecord{}, err
	}
	if rec.Price, err = parseDecimal("price", priceStr); err != nil {
		return AlertRecord{}, err
	}
	if rec.ReferencePrice, err = parseDecimal("reference price", refStr); err != nil {
		return AlertRecord{}, err
	}
	return rec, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}
