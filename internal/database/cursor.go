package database

import (
	"context"
	"database/sql"
	"fmt"
)

// DisclosureCursor returns the last-seen watermark for an issuer, or the
// empty string when the issuer has never been polled.
func (s *Store) DisclosureCursor(ctx context.Context, corpCode string) (string, error) {
	var lastSeen string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_seen FROM disclosure_cursors WHERE corp_code = ?;`, corpCode).Scan(&lastSeen)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query disclosure cursor for %s: %w", corpCode, err)
	}
	return lastSeen, nil
}

// UpdateDisclosureCursor advances the watermark. The update is monotonic:
// an older timestamp never overwrites a newer one.
func (s *Store) UpdateDisclosureCursor(ctx context.Context, corpCode, lastSeen string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO disclosure_cursors (corp_code, last_seen) VALUES (?, ?)
		ON CONFLICT(corp_code) DO UPDATE SET last_seen = excluded.last_seen
		WHERE excluded.last_seen > disclosure_cursors.last_seen;`,
			corpCode, lastSeen)
		if err != nil {
			return fmt.Errorf("failed to update disclosure cursor for %s: %w", corpCode, err)
		}
		return nil
	})
}
