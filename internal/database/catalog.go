package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stockeye-telegram-bot/internal/types"
)

// UpsertUser creates or refreshes a user row. Users appear on first
// external contact and are never deleted by the core.
func (s *Store) UpsertUser(ctx context.Context, u types.User) error {
	role := u.Role
	if role == "" {
		role = types.RoleUser
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, chat_id, role, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chat_id = excluded.chat_id,
			role = excluded.role,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at;`,
			u.ID, nullInt(u.ChatID), role, u.IsActive, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to upsert user %d: %w", u.ID, err)
		}
		return nil
	})
}

// ChatIDForUser resolves the chat identity of a user. found is false
// when no user row exists at all.
func (s *Store) ChatIDForUser(ctx context.Context, userID int64) (chatID *int64, found bool, err error) {
	var (
		id     sql.NullInt64
		active bool
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT chat_id, is_active FROM users WHERE id = ?;`, userID).Scan(&id, &active)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query chat id for user %d: %w", userID, err)
	}
	if !active || !id.Valid {
		return nil, true, nil
	}
	v := id.Int64
	return &v, true, nil
}

// UpsertStock creates or refreshes one catalogue row.
func (s *Store) UpsertStock(ctx context.Context, st types.Stock) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO stocks (symbol, name, market, corp_code)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			market = excluded.market,
			corp_code = COALESCE(excluded.corp_code, stocks.corp_code);`,
			st.Symbol, st.Name, st.Market, nullStrPtr(st.CorpCode))
		if err != nil {
			return fmt.Errorf("failed to upsert stock %s: %w", st.Symbol, err)
		}
		return nil
	})
}

// UpdateStockCorpCodes bulk-updates issuer codes from the corporate
// identifier source. Returns the number of catalogue rows touched.
func (s *Store) UpdateStockCorpCodes(ctx context.Context, codes map[string]string) (int, error) {
	updated := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE stocks SET corp_code = ? WHERE symbol = ?;`)
		if err != nil {
			return fmt.Errorf("failed to prepare corp code update: %w", err)
		}
		defer stmt.Close()

		for symbol, corpCode := range codes {
			res, err := stmt.ExecContext(ctx, corpCode, symbol)
			if err != nil {
				return fmt.Errorf("failed to update corp code for %s: %w", symbol, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			updated += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func nullInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullStrPtr(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
