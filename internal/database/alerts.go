package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stockeye-telegram-bot/internal/types"
)

// normalizeCondition folds the legacy condition spellings onto the
// canonical pair.
func normalizeCondition(c string) string {
	switch c {
	case "above":
		return types.ConditionGTE
	case "below":
		return types.ConditionLTE
	}
	return c
}

// ListActivePriceAlerts returns all active alerts of active users with
// the user and stock columns joined in.
func (s *Store) ListActivePriceAlerts(ctx context.Context) ([]types.PriceAlert, error) {
	query := `
	SELECT a.id, a.user_id, a.symbol,
	       a.target_price, a.condition, a.change_percent, a.change_direction,
	       a.notify_on_disclosure, a.interval_hours, a.last_notified_at,
	       a.notification_count, a.repeat_mode,
	       u.chat_id, s.name
	FROM price_alerts a
	JOIN users u ON u.id = a.user_id
	JOIN stocks s ON s.symbol = a.symbol
	WHERE a.is_active = 1 AND u.is_active = 1;`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []types.PriceAlert
	for rows.Next() {
		var (
			a               types.PriceAlert
			target          sql.NullFloat64
			condition       sql.NullString
			changePercent   sql.NullFloat64
			changeDirection sql.NullString
			lastNotified    sql.NullTime
			repeatMode      sql.NullString
			chatID          sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Symbol,
			&target, &condition, &changePercent, &changeDirection,
			&a.NotifyOnDisclosure, &a.IntervalHours, &lastNotified,
			&a.NotificationCount, &repeatMode,
			&chatID, &a.StockName); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		if target.Valid {
			v := target.Float64
			a.TargetPrice = &v
		}
		a.Condition = normalizeCondition(condition.String)
		if changePercent.Valid {
			v := changePercent.Float64
			a.ChangePercent = &v
		}
		a.ChangeDirection = changeDirection.String
		if lastNotified.Valid {
			t := lastNotified.Time
			a.LastNotifiedAt = &t
		}
		a.RepeatMode = repeatMode.String
		if chatID.Valid {
			v := chatID.Int64
			a.UserChatID = &v
		}
		a.IsActive = true
		a.UserActive = true
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ListDistinctWatchedStocks groups disclosure subscribers per symbol.
// Symbols without an issuer code are left out; the disclosure source
// cannot be queried for them.
func (s *Store) ListDistinctWatchedStocks(ctx context.Context) ([]types.WatchedStock, error) {
	query := `
	SELECT a.symbol, s.name, s.corp_code, a.user_id
	FROM price_alerts a
	JOIN users u ON u.id = a.user_id
	JOIN stocks s ON s.symbol = a.symbol
	WHERE a.is_active = 1 AND u.is_active = 1
	  AND a.notify_on_disclosure = 1 AND s.corp_code IS NOT NULL
	ORDER BY a.symbol, a.user_id;`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query watched stocks: %w", err)
	}
	defer rows.Close()

	var (
		watched []types.WatchedStock
		current *types.WatchedStock
	)
	for rows.Next() {
		var (
			symbol, name, corpCode string
			userID                 int64
		)
		if err := rows.Scan(&symbol, &name, &corpCode, &userID); err != nil {
			return nil, fmt.Errorf("failed to scan watched stock row: %w", err)
		}
		if current == nil || current.Symbol != symbol {
			watched = append(watched, types.WatchedStock{Symbol: symbol, Name: name, CorpCode: corpCode})
			current = &watched[len(watched)-1]
		}
		if len(current.UserIDs) == 0 || current.UserIDs[len(current.UserIDs)-1] != userID {
			current.UserIDs = append(current.UserIDs, userID)
		}
	}
	return watched, rows.Err()
}

// GetAlert fetches a single alert row without joins.
func (s *Store) GetAlert(ctx context.Context, alertID int64) (*types.PriceAlert, error) {
	query := `
	SELECT id, user_id, symbol, target_price, condition, change_percent, change_direction,
	       notify_on_disclosure, is_active, interval_hours, last_notified_at,
	       notification_count, repeat_mode
	FROM price_alerts WHERE id = ?;`

	var (
		a               types.PriceAlert
		target          sql.NullFloat64
		condition       sql.NullString
		changePercent   sql.NullFloat64
		changeDirection sql.NullString
		lastNotified    sql.NullTime
		repeatMode      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, alertID).Scan(&a.ID, &a.UserID, &a.Symbol,
		&target, &condition, &changePercent, &changeDirection,
		&a.NotifyOnDisclosure, &a.IsActive, &a.IntervalHours, &lastNotified,
		&a.NotificationCount, &repeatMode)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert %d not found", alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert %d: %w", alertID, err)
	}
	if target.Valid {
		v := target.Float64
		a.TargetPrice = &v
	}
	a.Condition = normalizeCondition(condition.String)
	if changePercent.Valid {
		v := changePercent.Float64
		a.ChangePercent = &v
	}
	a.ChangeDirection = changeDirection.String
	if lastNotified.Valid {
		t := lastNotified.Time
		a.LastNotifiedAt = &t
	}
	a.RepeatMode = repeatMode.String
	return &a, nil
}

// RecordNotificationFired stamps the delivery state of one alert: sets
// last_notified_at and increments notification_count in one transaction.
func (s *Store) RecordNotificationFired(ctx context.Context, alertID int64, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		UPDATE price_alerts
		SET last_notified_at = ?, notification_count = notification_count + 1, updated_at = ?
		WHERE id = ?;`, at, at, alertID)
		if err != nil {
			return fmt.Errorf("failed to record notification for alert %d: %w", alertID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("alert %d not found", alertID)
		}
		return nil
	})
}

// SetAlertActive toggles an alert. Used for repeat_mode=once retirement
// and admin deactivation.
func (s *Store) SetAlertActive(ctx context.Context, alertID int64, active bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		UPDATE price_alerts SET is_active = ?, updated_at = ? WHERE id = ?;`,
			active, time.Now().UTC(), alertID)
		if err != nil {
			return fmt.Errorf("failed to toggle alert %d: %w", alertID, err)
		}
		return nil
	})
}

// CreateAlert inserts a new alert row. This is the contract the external
// CRUD adapter sits on; the core itself never creates alerts.
func (s *Store) CreateAlert(ctx context.Context, a *types.PriceAlert) error {
	if a.IntervalHours < 1 {
		a.IntervalHours = 24
	}
	if err := a.Validate(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		INSERT INTO price_alerts
			(user_id, symbol, target_price, condition, change_percent, change_direction,
			 notify_on_disclosure, is_active, interval_hours, repeat_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			a.UserID, a.Symbol,
			nullFloat(a.TargetPrice), nullString(normalizeCondition(a.Condition)),
			nullFloat(a.ChangePercent), nullString(a.ChangeDirection),
			a.NotifyOnDisclosure, a.IsActive, a.IntervalHours, nullString(a.RepeatMode))
		if err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
		a.ID, err = res.LastInsertId()
		return err
	})
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
