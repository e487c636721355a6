// Package ingestor polls the disclosure source for every watched issuer,
// diffs against the per-issuer cursor and fans the new filings out to
// the subscribers' bus keys.
package ingestor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"stockeye-telegram-bot/internal/bus"
	"stockeye-telegram-bot/internal/dart"
	"stockeye-telegram-bot/internal/database"
	"stockeye-telegram-bot/internal/metrics"
	"stockeye-telegram-bot/internal/types"
)

// Source is the pull side of the disclosure service.
type Source interface {
	ListDisclosures(ctx context.Context, corpCode string) ([]dart.Disclosure, error)
}

const defaultWorkers = 16

type Ingestor struct {
	store   *database.Store
	bus     bus.Bus
	source  Source
	workers int
	ttl     time.Duration

	// callTimeout bounds one poll of one issuer.
	callTimeout time.Duration
}

func New(store *database.Store, b bus.Bus, source Source, workers int, ttl time.Duration) *Ingestor {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Ingestor{
		store:       store,
		bus:         b,
		source:      source,
		workers:     workers,
		ttl:         ttl,
		callTimeout: 15 * time.Second,
	}
}

// Tick polls every watched issuer once with a bounded fan-out. Failures
// are per-issuer: one bad poll never interrupts the rest of the tick and
// never advances that issuer's cursor.
func (g *Ingestor) Tick(ctx context.Context) error {
	watched, err := g.store.ListDistinctWatchedStocks(ctx)
	if err != nil {
		return errors.Wrap(err, "could not load watched stocks")
	}
	if len(watched) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, g.workers)
	for _, ws := range watched {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(ws types.WatchedStock) {
			defer wg.Done()
			defer func() { <-sem }()
			g.pollIssuer(ctx, ws)
		}(ws)
	}
	wg.Wait()
	return ctx.Err()
}

func (g *Ingestor) pollIssuer(ctx context.Context, ws types.WatchedStock) {
	metrics.DisclosurePolls.Inc()

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	items, err := g.source.ListDisclosures(callCtx, ws.CorpCode)
	if err != nil {
		metrics.DisclosurePollFailures.Inc()
		log.Warnf("disclosure poll failed for %s (%s): %v", ws.Symbol, ws.CorpCode, err)
		return
	}

	if len(items) == 0 {
		// Coalesces on the bus: repeated empty polls keep a single
		// status entry per subscriber.
		g.publishAll(ctx, ws, renderNoDisclosures(ws))
		return
	}

	cursor, err := g.store.DisclosureCursor(ctx, ws.CorpCode)
	if err != nil {
		log.Errorf("cursor load failed for %s: %v", ws.CorpCode, err)
		return
	}

	newer := make([]dart.Disclosure, 0, len(items))
	for _, it := range items {
		if it.CursorKey() > cursor {
			newer = append(newer, it)
		}
	}
	if len(newer) == 0 {
		return
	}
	sort.Slice(newer, func(i, j int) bool { return newer[i].CursorKey() < newer[j].CursorKey() })

	if !g.publishAll(ctx, ws, renderDisclosures(ws, newer)) {
		// A failed publish leaves the cursor alone so the next tick
		// re-attempts the same filings.
		return
	}
	metrics.DisclosuresPublished.Add(float64(len(ws.UserIDs)))

	latest := newer[len(newer)-1].CursorKey()
	if err := g.store.UpdateDisclosureCursor(ctx, ws.CorpCode, latest); err != nil {
		log.Errorf("cursor update failed for %s: %v", ws.CorpCode, err)
	}
}

func (g *Ingestor) publishAll(ctx context.Context, ws types.WatchedStock, body string) bool {
	ok := true
	for _, userID := range ws.UserIDs {
		key := bus.Key(userID, ws.Symbol)
		if err := g.bus.Publish(ctx, key, body, g.ttl); err != nil {
			metrics.PublishFailures.Inc()
			log.Errorf("failed to publish %s: %v", key, err)
			ok = false
		}
	}
	return ok
}
