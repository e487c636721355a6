package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"stockeye-telegram-bot/internal/types"
)

// LatestCloseForSymbols bulk-fetches the most recent close per symbol in
// a single query. Symbols with no price rows are absent from the map.
func (s *Store) LatestCloseForSymbols(ctx context.Context, symbols []string) (map[string]types.ClosePrice, error) {
	out := make(map[string]types.ClosePrice, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(symbols))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(symbols))
	for i, sym := range symbols {
		args[i] = sym
	}

	query := fmt.Sprintf(`
	SELECT p.symbol, p.date, p.close
	FROM daily_prices p
	JOIN (
		SELECT symbol, MAX(date) AS max_date
		FROM daily_prices
		WHERE symbol IN (%s)
		GROUP BY symbol
	) m ON m.symbol = p.symbol AND m.max_date = p.date;`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest closes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			symbol string
			cp     types.ClosePrice
		)
		if err := rows.Scan(&symbol, &cp.Date, &cp.Close); err != nil {
			return nil, fmt.Errorf("failed to scan close row: %w", err)
		}
		out[symbol] = cp
	}
	return out, rows.Err()
}

// PreviousCloseBefore returns the close of the last trading day strictly
// before date. ok is false when no earlier row exists.
func (s *Store) PreviousCloseBefore(ctx context.Context, symbol, date string) (close float64, ok bool, err error) {
	query := `
	SELECT close FROM daily_prices
	WHERE symbol = ? AND date < ?
	ORDER BY date DESC LIMIT 1;`

	err = s.db.QueryRowContext(ctx, query, symbol, date).Scan(&close)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query previous close for %s: %w", symbol, err)
	}
	return close, true, nil
}

// UpsertDailyPrice writes one OHLCV bar. The market-data ingestor is the
// producer; the core only needs this for seeding and range refreshes.
func (s *Store) UpsertDailyPrice(ctx context.Context, p types.DailyPrice) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO daily_prices (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?);`,
			p.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume)
		if err != nil {
			return fmt.Errorf("failed to upsert daily price %s/%s: %w", p.Symbol, p.Date, err)
		}
		return nil
	})
}
