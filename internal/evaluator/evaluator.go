// Package evaluator implements the periodic price-alert evaluation tick:
// bulk price fetch, cooldown enforcement, condition checks, publish and
// delivery-state bookkeeping.
package evaluator

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"stockeye-telegram-bot/internal/bus"
	"stockeye-telegram-bot/internal/database"
	"stockeye-telegram-bot/internal/metrics"
	"stockeye-telegram-bot/internal/types"
)

type Evaluator struct {
	store *database.Store
	bus   bus.Bus
	ttl   time.Duration

	now func() time.Time

	invalidMu     sync.Mutex
	invalidLogged map[int64]struct{}
}

func New(store *database.Store, b bus.Bus, ttl time.Duration) *Evaluator {
	return &Evaluator{
		store:         store,
		bus:           b,
		ttl:           ttl,
		now:           time.Now,
		invalidLogged: make(map[int64]struct{}),
	}
}

// Tick runs one full evaluation pass. A store failure while loading
// alerts or bulk prices aborts the tick; a failure on a single alert is
// logged and the remaining alerts still run.
func (e *Evaluator) Tick(ctx context.Context) error {
	alerts, err := e.store.ListActivePriceAlerts(ctx)
	if err != nil {
		return errors.Wrap(err, "could not load active alerts")
	}
	metrics.ActiveAlerts.Set(float64(len(alerts)))
	if len(alerts) == 0 {
		return nil
	}

	closes, err := e.store.LatestCloseForSymbols(ctx, distinctSymbols(alerts))
	if err != nil {
		return errors.Wrap(err, "could not bulk-load latest closes")
	}

	now := e.now()
	for i := range alerts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.AlertsEvaluated.Inc()
		if err := e.evaluate(ctx, &alerts[i], closes, now); err != nil {
			log.Errorf("alert %d evaluation failed: %v", alerts[i].ID, err)
		}
	}
	return nil
}

func (e *Evaluator) evaluate(ctx context.Context, a *types.PriceAlert, closes map[string]types.ClosePrice, now time.Time) error {
	if err := a.Validate(); err != nil {
		e.logInvalidOnce(a.ID, err)
		return nil
	}

	if a.InCooldown(now) {
		metrics.CooldownSkips.Inc()
		log.Debugf("alert %d in cooldown until %v", a.ID,
			a.LastNotifiedAt.Add(time.Duration(a.IntervalHours)*time.Hour))
		return nil
	}

	cp, ok := closes[a.Symbol]
	if !ok {
		log.Debugf("no price data for %s, skipping alert %d", a.Symbol, a.ID)
		return nil
	}

	body, fired, err := e.check(ctx, a, cp)
	if err != nil {
		return err
	}
	if !fired {
		return nil
	}

	if a.UserChatID == nil {
		log.Debugf("alert %d fired but user %d has no chat id", a.ID, a.UserID)
		return nil
	}

	key := bus.Key(a.UserID, a.Symbol)
	if err := e.bus.Publish(ctx, key, body, e.ttl); err != nil {
		metrics.PublishFailures.Inc()
		return errors.Wrapf(err, "could not publish %s", key)
	}
	if err := e.store.RecordNotificationFired(ctx, a.ID, now); err != nil {
		return errors.Wrapf(err, "could not record delivery state for alert %d", a.ID)
	}
	if a.RepeatMode == types.RepeatOnce {
		if err := e.store.SetAlertActive(ctx, a.ID, false); err != nil {
			log.Errorf("failed to retire one-shot alert %d: %v", a.ID, err)
		}
	}
	metrics.AlertsTriggered.Inc()
	log.Infof("alert %d fired for user %d on %s", a.ID, a.UserID, a.Symbol)
	return nil
}

// check evaluates the alert conditions against the latest close. The
// absolute check dominates: an alert fires at most once per tick.
func (e *Evaluator) check(ctx context.Context, a *types.PriceAlert, cp types.ClosePrice) (body string, fired bool, err error) {
	if a.TargetPrice != nil {
		hit := false
		switch a.Condition {
		case types.ConditionGTE:
			hit = cp.Close >= *a.TargetPrice
		case types.ConditionLTE:
			hit = cp.Close <= *a.TargetPrice
		}
		if hit {
			return renderTargetHit(a, cp.Close), true, nil
		}
	}

	if a.ChangePercent != nil {
		prev, ok, err := e.store.PreviousCloseBefore(ctx, a.Symbol, cp.Date)
		if err != nil {
			return "", false, err
		}
		if !ok || prev == 0 {
			return "", false, nil
		}
		rate := (cp.Close - prev) / prev * 100
		if (a.ChangeDirection == types.DirectionUp && rate >= *a.ChangePercent) ||
			(a.ChangeDirection == types.DirectionDown && rate <= *a.ChangePercent) {
			return renderChangeHit(a, rate, cp.Close), true, nil
		}
	}
	return "", false, nil
}

func (e *Evaluator) logInvalidOnce(alertID int64, err error) {
	e.invalidMu.Lock()
	defer e.invalidMu.Unlock()
	if _, seen := e.invalidLogged[alertID]; seen {
		return
	}
	e.invalidLogged[alertID] = struct{}{}
	log.Errorf("invalid alert configuration, treating as disabled: %v", err)
}

func distinctSymbols(alerts []types.PriceAlert) []string {
	seen := make(map[string]struct{}, len(alerts))
	var symbols []string
	for _, a := range alerts {
		if _, ok := seen[a.Symbol]; ok {
			continue
		}
		seen[a.Symbol] = struct{}{}
		symbols = append(symbols, a.Symbol)
	}
	return symbols
}
