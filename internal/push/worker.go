// Package push drains the notification bus into the chat transport.
package push

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"stockeye-telegram-bot/internal/bus"
	"stockeye-telegram-bot/internal/metrics"
	"stockeye-telegram-bot/internal/telegram"
)

// Transport is the outbound chat side. Permanent failures are reported
// through telegram.PermanentError; anything else is treated as
// transient and retried on a later scan.
type Transport interface {
	Send(chatID int64, text string) error
}

// UserDirectory resolves bus recipients to chat identities.
type UserDirectory interface {
	ChatIDForUser(ctx context.Context, userID int64) (chatID *int64, found bool, err error)
}

type Worker struct {
	bus       bus.Bus
	users     UserDirectory
	transport Transport
	interval  time.Duration
}

func New(b bus.Bus, users UserDirectory, transport Transport, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{bus: b, users: users, transport: transport, interval: interval}
}

// Run scans and delivers until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	log.Info("push worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("push worker stopped")
			return
		case <-ticker.C:
			w.DrainOnce(ctx)
		}
	}
}

// DrainOnce performs a single scan-and-deliver pass and returns the
// number of delivered messages. Delivery is at-least-once: a key is
// acked only after a successful send or a permanent failure.
func (w *Worker) DrainOnce(ctx context.Context) int {
	keys, err := w.bus.Scan(ctx, bus.Pattern())
	if err != nil {
		log.Errorf("bus scan failed: %v", err)
		return 0
	}

	delivered := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return delivered
		}
		if w.deliver(ctx, key) {
			delivered++
		}
	}
	return delivered
}

func (w *Worker) deliver(ctx context.Context, key string) bool {
	body, ok, err := w.bus.Fetch(ctx, key)
	if err != nil {
		log.Errorf("bus fetch failed for %s: %v", key, err)
		return false
	}
	if !ok {
		// Expired or acked between scan and fetch.
		return false
	}

	userID, _, err := bus.ParseKey(key)
	if err != nil {
		log.Errorf("dropping undeliverable entry: %v", err)
		w.ack(ctx, key)
		return false
	}

	chatID, found, err := w.users.ChatIDForUser(ctx, userID)
	if err != nil {
		// Store trouble is transient; leave the entry for the next scan.
		log.Errorf("chat lookup failed for user %d: %v", userID, err)
		return false
	}
	switch {
	case !found:
		// Scheduler completion messages are keyed by the admin chat
		// itself rather than a user row.
		id := userID
		chatID = &id
	case chatID == nil:
		log.Warnf("user %d has no reachable chat, dropping %s", userID, key)
		w.ack(ctx, key)
		return false
	}

	if err := w.transport.Send(*chatID, body); err != nil {
		metrics.PushFailures.Inc()
		if telegram.IsPermanent(err) {
			log.Errorf("permanent delivery failure for chat %d, dropping %s: %v", *chatID, key, err)
			w.ack(ctx, key)
			return false
		}
		log.Warnf("transient delivery failure for chat %d, will retry %s: %v", *chatID, key, err)
		return false
	}

	metrics.PushDelivered.Inc()
	w.ack(ctx, key)
	return true
}

func (w *Worker) ack(ctx context.Context, key string) {
	if err := w.bus.Ack(ctx, key); err != nil {
		log.Errorf("ack failed for %s: %v", key, err)
	}
}
