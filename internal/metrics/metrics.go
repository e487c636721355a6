// Package metrics holds the process-wide prometheus collectors for the
// alert pipeline. A few cumulative counters are persisted through the
// store so totals survive restarts.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"

	"stockeye-telegram-bot/internal/database"
)

var (
	AlertsEvaluated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stockeye",
		Subsystem: "evaluator",
		Name:      "alerts_evaluated",
		Help:      "The total number of alert evaluations",
	})
	AlertsTriggered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stockeye",
		Subsystem: "evaluator",
		Name:      "alerts_triggered",
		Help:      "The total number of alerts that fired and were published",
	})
	CooldownSkips = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stockeye",
		Subsystem: "evaluator",
		Name:      "cooldown_skips",
		Help:      "The total number of evaluations skipped by cooldown",
	})
	ActiveAlerts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stockeye",
		Subsystem: "evaluator",
		Name:      "active_alerts",
		Help:      "The number of active alerts seen on the last tick",
	})
	PublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stockeye",
		Subsystem: "bus",
		Name:      "publish_failures",
		Help:      "The total number of failed bus publishes",
	})
	DisclosurePolls = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stockeye",
		Subsystem: "ingestor",
		Name:      "disclosure_polls",
		Help:      "The total number of per-issuer disclosure polls",
	})
	DisclosurePollFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stockeye",
		Subsystem: "ingestor",
		Name:      "disclosure_poll_failures",
		Help:      "The total number of failed per-issuer disclosure polls",
	})
	DisclosuresPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stockeye",
		Subsystem: "ingestor",
		Name:      "disclosures_published",
		Help:      "The total number of disclosure notifications published",
	})
	PushDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stockeye",
		Subsystem: "push",
		Name:      "delivered",
		Help:      "The total number of notifications delivered to the chat transport",
	})
	PushFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stockeye",
		Subsystem: "push",
		Name:      "failures",
		Help:      "The total number of failed delivery attempts",
	})
)

func init() {
	prometheus.MustRegister(
		AlertsEvaluated, AlertsTriggered, CooldownSkips, ActiveAlerts,
		PublishFailures,
		DisclosurePolls, DisclosurePollFailures, DisclosuresPublished,
		PushDelivered, PushFailures,
	)
}

// persisted is the subset of counters reloaded at startup.
var persisted = map[string]prometheus.Counter{
	"alerts_triggered":      AlertsTriggered,
	"disclosures_published": DisclosuresPublished,
	"push_delivered":        PushDelivered,
}

// LoadFromStore re-applies persisted counter totals after a restart.
func LoadFromStore(ctx context.Context, store *database.Store) {
	for name, counter := range persisted {
		value, err := store.GetMetric(ctx, name)
		if err != nil {
			log.Warnf("failed to load metric %s: %v", name, err)
			continue
		}
		counter.Add(value)
	}
	log.Debug("metrics loaded from database")
}

// SaveToStore persists the current counter totals.
func SaveToStore(ctx context.Context, store *database.Store) {
	for name, counter := range persisted {
		if err := store.SaveMetric(ctx, name, counterValue(counter)); err != nil {
			log.Warnf("failed to save metric %s: %v", name, err)
		}
	}
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		log.Warnf("failed to read counter value: %v", err)
		return 0
	}
	return m.GetCounter().GetValue()
}
