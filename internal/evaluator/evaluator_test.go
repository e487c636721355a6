package evaluator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockeye-telegram-bot/internal/bus"
	"stockeye-telegram-bot/internal/database"
	"stockeye-telegram-bot/internal/types"
)

type fixture struct {
	store *database.Store
	bus   *bus.MemoryBus
	eval  *Evaluator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mb := bus.NewMemory()
	e := New(store, mb, time.Hour)
	e.now = func() time.Time { return time.Date(2025, 1, 2, 16, 0, 0, 0, time.UTC) }
	return &fixture{store: store, bus: mb, eval: e}
}

func (f *fixture) seedUser(t *testing.T, id int64, chatID *int64) {
	t.Helper()
	require.NoError(t, f.store.UpsertUser(context.Background(), types.User{ID: id, ChatID: chatID, IsActive: true}))
}

func (f *fixture) seedStock(t *testing.T, symbol, name string) {
	t.Helper()
	require.NoError(t, f.store.UpsertStock(context.Background(), types.Stock{Symbol: symbol, Name: name, Market: "KOSPI"}))
}

func (f *fixture) seedPrice(t *testing.T, symbol, date string, close float64) {
	t.Helper()
	require.NoError(t, f.store.UpsertDailyPrice(context.Background(), types.DailyPrice{Symbol: symbol, Date: date, Close: close}))
}

func (f *fixture) fetch(t *testing.T, userID int64, symbol string) (string, bool) {
	t.Helper()
	body, ok, err := f.bus.Fetch(context.Background(), bus.Key(userID, symbol))
	require.NoError(t, err)
	return body, ok
}

func pf(v float64) *float64 { return &v }
func pi(v int64) *int64     { return &v }

func TestTargetPriceAlertFires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, 1, pi(100))
	f.seedStock(t, "005930", "삼성전자")
	f.seedPrice(t, "005930", "2025-01-02", 81000)

	a := &types.PriceAlert{
		UserID: 1, Symbol: "005930",
		TargetPrice: pf(80000), Condition: types.ConditionGTE,
		RepeatMode: types.RepeatDaily, IsActive: true,
	}
	require.NoError(t, f.store.CreateAlert(ctx, a))

	require.NoError(t, f.eval.Tick(ctx))

	body, ok := f.fetch(t, 1, "005930")
	require.True(t, ok, "notification should be published")
	assert.Contains(t, body, "목표가 도달")
	assert.Contains(t, body, "80000")
	assert.Contains(t, body, "81000")
	assert.Contains(t, body, "삼성전자")

	got, err := f.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NotificationCount)
	require.NotNil(t, got.LastNotifiedAt)
	assert.True(t, got.IsActive, "daily alert stays active")
}

func TestCooldownSuppressesRefire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, 1, pi(100))
	f.seedStock(t, "005930", "삼성전자")
	f.seedPrice(t, "005930", "2025-01-02", 81000)

	a := &types.PriceAlert{
		UserID: 1, Symbol: "005930",
		TargetPrice: pf(80000), Condition: types.ConditionGTE,
		RepeatMode: types.RepeatDaily, IntervalHours: 24, IsActive: true,
	}
	require.NoError(t, f.store.CreateAlert(ctx, a))

	require.NoError(t, f.eval.Tick(ctx))
	first, ok := f.fetch(t, 1, "005930")
	require.True(t, ok)

	// Second tick inside the 24h interval, undelivered entry still queued.
	f.eval.now = func() time.Time { return time.Date(2025, 1, 2, 18, 0, 0, 0, time.UTC) }
	require.NoError(t, f.eval.Tick(ctx))

	body, ok := f.fetch(t, 1, "005930")
	require.True(t, ok, "the pending entry survives the cooled-down tick")
	assert.Equal(t, first, body)

	got, err := f.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NotificationCount, "cooldown suppresses the second publish")

	// Past the interval the alert fires again.
	f.eval.now = func() time.Time { return time.Date(2025, 1, 3, 17, 0, 0, 0, time.UTC) }
	require.NoError(t, f.eval.Tick(ctx))

	got, err = f.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.NotificationCount)
}

func TestChangePercentAlertFires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, 1, pi(100))
	f.seedStock(t, "005930", "삼성전자")
	f.seedPrice(t, "005930", "2025-01-01", 100000)
	f.seedPrice(t, "005930", "2025-01-02", 106000)

	a := &types.PriceAlert{
		UserID: 1, Symbol: "005930",
		ChangePercent: pf(5), ChangeDirection: types.DirectionUp,
		RepeatMode: types.RepeatDaily, IsActive: true,
	}
	require.NoError(t, f.store.CreateAlert(ctx, a))

	require.NoError(t, f.eval.Tick(ctx))

	body, ok := f.fetch(t, 1, "005930")
	require.True(t, ok)
	assert.Contains(t, body, "5.0% up")
	assert.Contains(t, body, "6.00%")
}

func TestChangePercentNoPreviousClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, 1, pi(100))
	f.seedStock(t, "005930", "삼성전자")
	f.seedPrice(t, "005930", "2025-01-02", 106000)

	a := &types.PriceAlert{
		UserID: 1, Symbol: "005930",
		ChangePercent: pf(5), ChangeDirection: types.DirectionUp,
		RepeatMode: types.RepeatDaily, IsActive: true,
	}
	require.NoError(t, f.store.CreateAlert(ctx, a))

	require.NoError(t, f.eval.Tick(ctx))
	_, ok := f.fetch(t, 1, "005930")
	assert.False(t, ok, "single data point has no reference close")
}

func TestAbsoluteConditionDominates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, 1, pi(100))
	f.seedStock(t, "005930", "삼성전자")
	f.seedPrice(t, "005930", "2025-01-01", 100000)
	f.seedPrice(t, "005930", "2025-01-02", 106000)

	a := &types.PriceAlert{
		UserID: 1, Symbol: "005930",
		TargetPrice: pf(105000), Condition: types.ConditionGTE,
		ChangePercent: pf(5), ChangeDirection: types.DirectionUp,
		RepeatMode: types.RepeatDaily, IsActive: true,
	}
	require.NoError(t, f.store.CreateAlert(ctx, a))

	require.NoError(t, f.eval.Tick(ctx))

	body, ok := f.fetch(t, 1, "005930")
	require.True(t, ok)
	assert.Contains(t, body, "목표가 도달", "target-price message wins when both conditions hit")
	assert.NotContains(t, body, "변동률")

	got, err := f.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.NotificationCount, "one publish per tick even with both conditions met")
}

func TestFiredAlertWithoutChatIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, 1, nil)
	f.seedStock(t, "005930", "삼성전자")
	f.seedPrice(t, "005930", "2025-01-02", 81000)

	a := &types.PriceAlert{
		UserID: 1, Symbol: "005930",
		TargetPrice: pf(80000), Condition: types.ConditionGTE,
		RepeatMode: types.RepeatDaily, IsActive: true,
	}
	require.NoError(t, f.store.CreateAlert(ctx, a))

	require.NoError(t, f.eval.Tick(ctx))

	_, ok := f.fetch(t, 1, "005930")
	assert.False(t, ok)

	got, err := f.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.NotificationCount, "nothing published means nothing recorded")
	assert.Nil(t, got.LastNotifiedAt)
}

func TestOneShotAlertRetiresAfterFiring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, 1, pi(100))
	f.seedStock(t, "005930", "삼성전자")
	f.seedPrice(t, "005930", "2025-01-02", 81000)

	a := &types.PriceAlert{
		UserID: 1, Symbol: "005930",
		TargetPrice: pf(80000), Condition: types.ConditionGTE,
		RepeatMode: types.RepeatOnce, IsActive: true,
	}
	require.NoError(t, f.store.CreateAlert(ctx, a))

	require.NoError(t, f.eval.Tick(ctx))

	_, ok := f.fetch(t, 1, "005930")
	require.True(t, ok)

	got, err := f.store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive, "one-shot alert deactivates after firing")

	require.NoError(t, f.bus.Ack(ctx, bus.Key(1, "005930")))
	require.NoError(t, f.eval.Tick(ctx))
	_, ok = f.fetch(t, 1, "005930")
	assert.False(t, ok)
}

func TestMissingPriceDataSkipsAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, 1, pi(100))
	f.seedStock(t, "005930", "삼성전자")
	// No daily prices at all.

	a := &types.PriceAlert{
		UserID: 1, Symbol: "005930",
		TargetPrice: pf(80000), Condition: types.ConditionGTE,
		RepeatMode: types.RepeatDaily, IsActive: true,
	}
	require.NoError(t, f.store.CreateAlert(ctx, a))

	require.NoError(t, f.eval.Tick(ctx))
	_, ok := f.fetch(t, 1, "005930")
	assert.False(t, ok)
}

func TestLTEAlertFires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, 1, pi(100))
	f.seedStock(t, "005930", "삼성전자")
	f.seedPrice(t, "005930", "2025-01-02", 70000)

	a := &types.PriceAlert{
		UserID: 1, Symbol: "005930",
		TargetPrice: pf(70000), Condition: types.ConditionLTE,
		RepeatMode: types.RepeatDaily, IsActive: true,
	}
	require.NoError(t, f.store.CreateAlert(ctx, a))

	require.NoError(t, f.eval.Tick(ctx))
	body, ok := f.fetch(t, 1, "005930")
	require.True(t, ok, "boundary equality satisfies lte")
	assert.Contains(t, body, "70000")
}
