package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockeye-telegram-bot/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func ptrF(v float64) *float64 { return &v }
func ptrI(v int64) *int64     { return &v }
func ptrS(v string) *string   { return &v }

func seedUserAndStock(t *testing.T, store *Store, userID int64, chatID *int64, symbol, name string, corpCode *string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertUser(ctx, types.User{ID: userID, ChatID: chatID, IsActive: true}))
	require.NoError(t, store.UpsertStock(ctx, types.Stock{Symbol: symbol, Name: name, Market: "KOSPI", CorpCode: corpCode}))
}

func TestListActivePriceAlerts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedUserAndStock(t, store, 1, ptrI(123), "005930", "삼성전자", nil)
	require.NoError(t, store.UpsertUser(ctx, types.User{ID: 2, IsActive: false}))

	active := &types.PriceAlert{
		UserID: 1, Symbol: "005930",
		TargetPrice: ptrF(80000), Condition: "above", // legacy spelling
		IsActive: true,
	}
	require.NoError(t, store.CreateAlert(ctx, active))

	inactive := &types.PriceAlert{
		UserID: 1, Symbol: "005930",
		TargetPrice: ptrF(90000), Condition: types.ConditionGTE,
		IsActive: false,
	}
	require.NoError(t, store.CreateAlert(ctx, inactive))

	inactiveUser := &types.PriceAlert{
		UserID: 2, Symbol: "005930",
		TargetPrice: ptrF(70000), Condition: types.ConditionLTE,
		IsActive: true,
	}
	require.NoError(t, store.CreateAlert(ctx, inactiveUser))

	alerts, err := store.ListActivePriceAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, active.ID, a.ID)
	assert.Equal(t, types.ConditionGTE, a.Condition, "legacy condition spelling should normalize")
	assert.Equal(t, "삼성전자", a.StockName)
	require.NotNil(t, a.UserChatID)
	assert.Equal(t, int64(123), *a.UserChatID)
	assert.Equal(t, 24, a.IntervalHours)
	assert.Nil(t, a.LastNotifiedAt)
}

func TestListDistinctWatchedStocks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedUserAndStock(t, store, 1, ptrI(11), "005930", "삼성전자", ptrS("00126380"))
	seedUserAndStock(t, store, 2, ptrI(22), "000660", "SK하이닉스", nil)
	require.NoError(t, store.UpsertUser(ctx, types.User{ID: 3, ChatID: ptrI(33), IsActive: true}))

	for _, a := range []*types.PriceAlert{
		{UserID: 1, Symbol: "005930", NotifyOnDisclosure: true, IsActive: true},
		{UserID: 3, Symbol: "005930", NotifyOnDisclosure: true, IsActive: true},
		{UserID: 2, Symbol: "000660", NotifyOnDisclosure: true, IsActive: true}, // no corp code
		{UserID: 1, Symbol: "005930", TargetPrice: ptrF(80000), Condition: types.ConditionGTE, IsActive: true},
	} {
		require.NoError(t, store.CreateAlert(ctx, a))
	}

	watched, err := store.ListDistinctWatchedStocks(ctx)
	require.NoError(t, err)
	require.Len(t, watched, 1, "symbols without corp code are skipped")

	ws := watched[0]
	assert.Equal(t, "005930", ws.Symbol)
	assert.Equal(t, "00126380", ws.CorpCode)
	assert.ElementsMatch(t, []int64{1, 3}, ws.UserIDs)
}

func TestLatestCloseForSymbols(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, p := range []types.DailyPrice{
		{Symbol: "005930", Date: "2025-01-01", Close: 79000},
		{Symbol: "005930", Date: "2025-01-02", Close: 81000},
		{Symbol: "000660", Date: "2025-01-02", Close: 190000},
	} {
		require.NoError(t, store.UpsertDailyPrice(ctx, p))
	}

	closes, err := store.LatestCloseForSymbols(ctx, []string{"005930", "000660", "035720"})
	require.NoError(t, err)
	require.Len(t, closes, 2, "symbols without rows are absent")
	assert.Equal(t, types.ClosePrice{Date: "2025-01-02", Close: 81000}, closes["005930"])
	assert.Equal(t, types.ClosePrice{Date: "2025-01-02", Close: 190000}, closes["000660"])

	empty, err := store.LatestCloseForSymbols(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPreviousCloseBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, p := range []types.DailyPrice{
		{Symbol: "005930", Date: "2025-01-01", Close: 100},
		{Symbol: "005930", Date: "2025-01-02", Close: 106},
	} {
		require.NoError(t, store.UpsertDailyPrice(ctx, p))
	}

	prev, ok, err := store.PreviousCloseBefore(ctx, "005930", "2025-01-02")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100.0, prev)

	_, ok, err = store.PreviousCloseBefore(ctx, "005930", "2025-01-01")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordNotificationFired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedUserAndStock(t, store, 1, ptrI(11), "005930", "삼성전자", nil)
	a := &types.PriceAlert{UserID: 1, Symbol: "005930", TargetPrice: ptrF(80000), Condition: types.ConditionGTE, IsActive: true}
	require.NoError(t, store.CreateAlert(ctx, a))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.RecordNotificationFired(ctx, a.ID, now))
	require.NoError(t, store.RecordNotificationFired(ctx, a.ID, now.Add(time.Hour)))

	got, err := store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.NotificationCount)
	require.NotNil(t, got.LastNotifiedAt)
	assert.True(t, got.LastNotifiedAt.After(now), "last_notified_at should advance")

	assert.Error(t, store.RecordNotificationFired(ctx, 9999, now))
}

func TestDisclosureCursorMonotonic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cursor, err := store.DisclosureCursor(ctx, "00126380")
	require.NoError(t, err)
	assert.Equal(t, "", cursor)

	require.NoError(t, store.UpdateDisclosureCursor(ctx, "00126380", "20250102100000"))
	require.NoError(t, store.UpdateDisclosureCursor(ctx, "00126380", "20250101090000")) // older, ignored

	cursor, err = store.DisclosureCursor(ctx, "00126380")
	require.NoError(t, err)
	assert.Equal(t, "20250102100000", cursor)

	require.NoError(t, store.UpdateDisclosureCursor(ctx, "00126380", "20250103110000"))
	cursor, err = store.DisclosureCursor(ctx, "00126380")
	require.NoError(t, err)
	assert.Equal(t, "20250103110000", cursor)
}

func TestChatIDForUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertUser(ctx, types.User{ID: 1, ChatID: ptrI(123), IsActive: true}))
	require.NoError(t, store.UpsertUser(ctx, types.User{ID: 2, IsActive: true}))
	require.NoError(t, store.UpsertUser(ctx, types.User{ID: 3, ChatID: ptrI(333), IsActive: false}))

	chatID, found, err := store.ChatIDForUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, chatID)
	assert.Equal(t, int64(123), *chatID)

	chatID, found, err = store.ChatIDForUser(ctx, 2)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Nil(t, chatID, "user without chat identity")

	chatID, found, err = store.ChatIDForUser(ctx, 3)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Nil(t, chatID, "deactivated user is unreachable")

	_, found, err = store.ChatIDForUser(ctx, 42)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpdateStockCorpCodes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertStock(ctx, types.Stock{Symbol: "005930", Name: "삼성전자"}))
	require.NoError(t, store.UpsertStock(ctx, types.Stock{Symbol: "000660", Name: "SK하이닉스"}))

	updated, err := store.UpdateStockCorpCodes(ctx, map[string]string{
		"005930": "00126380",
		"035720": "00258801", // not in catalogue
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	watchedReady, err := store.ListDistinctWatchedStocks(ctx)
	require.NoError(t, err)
	assert.Empty(t, watchedReady)
}

func TestCreateAlertValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUserAndStock(t, store, 1, ptrI(11), "005930", "삼성전자", nil)

	err := store.CreateAlert(ctx, &types.PriceAlert{UserID: 1, Symbol: "005930", IsActive: true})
	assert.Error(t, err, "alert with no condition is rejected")

	err = store.CreateAlert(ctx, &types.PriceAlert{
		UserID: 1, Symbol: "005930",
		ChangePercent: ptrF(5), IsActive: true,
	})
	assert.Error(t, err, "change percent without direction is rejected")
}

func TestMetricsPersistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v, err := store.GetMetric(ctx, "alerts_triggered")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	require.NoError(t, store.SaveMetric(ctx, "alerts_triggered", 17))
	v, err = store.GetMetric(ctx, "alerts_triggered")
	require.NoError(t, err)
	assert.Equal(t, 17.0, v)
}
