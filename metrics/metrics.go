// Package metrics implements the optional Prometheus exporter: a
// bus-wide listener recording event counts, plan outcomes, and
// duck/unduck balance violations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

const namespace = "cantinaos"

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_total",
			Help:      "Total number of events delivered by the bus, by topic.",
		},
		[]string{"topic"},
	)

	plansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Total number of plans, by layer and terminal status.",
		},
		[]string{"layer", "status"},
	)

	plansActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plans_active",
			Help:      "Number of currently active plans, by layer.",
		},
		[]string{"layer"},
	)

	duckBalanceViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duck_balance_violations_total",
			Help:      "Number of times a plan ended with an unbalanced duck that required a forced unduck.",
		},
	)

	commentaryMissedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dj_commentary_missed_total",
			Help:      "Number of DJ-mode transitions that fell back to crossfade-only because commentary was not cached in time.",
		},
	)
)

// Register adds every collector to reg. Call once per registry;
// registering the collectors twice on the same registry returns
// client_golang's AlreadyRegisteredError rather than panicking.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		eventsTotal, plansTotal, plansActive,
		duckBalanceViolationsTotal, commentaryMissedTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Listener records bus events as Prometheus metrics. It has no lifecycle
// of its own: callers subscribe Listener.Handle to every topic they want
// counted, typically via bus.Bus.Subscribe on a synthetic "metrics"
// owner, or per-topic for the plan/duck topics below.
type Listener struct{}

// NewListener constructs a Listener.
func NewListener() *Listener { return &Listener{} }

// Handle records generic per-topic counts plus the plan/duck-specific
// metrics below when the payload type matches.
func (l *Listener) Handle(ev *bus.Event) {
	eventsTotal.WithLabelValues(string(ev.Topic)).Inc()

	switch p := ev.Payload.(type) {
	case *schema.PlanStartedPayload:
		plansActive.WithLabelValues(string(p.Layer)).Inc()
	case *schema.PlanEndedPayload:
		plansActive.WithLabelValues(string(p.Layer)).Dec()
		plansTotal.WithLabelValues(string(p.Layer), string(p.Status)).Inc()
	case *schema.CommentaryMissedPayload:
		commentaryMissedTotal.Inc()
	}
}

// RecordForcedUnduck increments the duck-balance-violation counter. Called
// by the Timeline Executor on the rare path where PLAN_ENDED forces an
// unduck the plan itself never emitted.
func RecordForcedUnduck() {
	duckBalanceViolationsTotal.Inc()
}
