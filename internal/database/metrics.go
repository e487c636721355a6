package database

import (
	"context"
	"database/sql"
	"fmt"
)

// SaveMetric persists one counter value so it survives restarts.
func (s *Store) SaveMetric(ctx context.Context, name string, value float64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO metrics (metric_name, label_key, label_value, metric_value)
		VALUES (?, NULL, NULL, ?);`, name, value)
		if err != nil {
			return fmt.Errorf("failed to save metric %s: %w", name, err)
		}
		return nil
	})
}

// GetMetric loads a persisted counter value, defaulting to 0.
func (s *Store) GetMetric(ctx context.Context, name string) (float64, error) {
	var value float64
	err := s.db.QueryRowContext(ctx, `
	SELECT metric_value FROM metrics
	WHERE metric_name = ? AND label_key IS NULL AND label_value IS NULL;`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get metric %s: %w", name, err)
	}
	return value, nil
}
