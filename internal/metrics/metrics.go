// Package metrics exposes engine activity as Prometheus metrics.
//
// A Collector owns its registry, so several engines (or tests) never share
// counters. Install it with engine.WithHooks(c.Hooks()), chained with any
// other hooks through engine.ChainHooks.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/stagehand/internal/engine"
)

const namespace = "stagehand"

// Collector counts picks and job settlements per manager.
type Collector struct {
	registry *prometheus.Registry

	picks     *prometheus.CounterVec
	entered   *prometheus.CounterVec
	exited    *prometheus.CounterVec
	jobs      *prometheus.CounterVec
	lastSeq   *prometheus.GaugeVec
	itemsSent *prometheus.CounterVec
}

// New creates a collector with a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		// Labels: manager
		picks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "picks_total",
			Help:      "Rule evaluations per manager",
		}, []string{"manager"}),

		// Labels: manager
		entered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rules_entered_total",
			Help:      "Rules that started matching",
		}, []string{"manager"}),

		// Labels: manager
		exited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rules_exited_total",
			Help:      "Rules that stopped matching",
		}, []string{"manager"}),

		// Labels: manager, outcome (applied, superseded, failed)
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_total",
			Help:      "Settled transition jobs by outcome",
		}, []string{"manager", "outcome"}),

		// Labels: manager
		lastSeq: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "last_settled_seq",
			Help:      "Logical clock value of the most recently settled job",
		}, []string{"manager"}),

		// Labels: manager, direction (in, out)
		itemsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "applied_items_total",
			Help:      "Transition items carried by applied jobs",
		}, []string{"manager", "direction"}),
	}
}

// Registry returns the collector's registry, for serving or gathering.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Hooks returns engine hooks feeding the collector.
func (c *Collector) Hooks() engine.Hooks {
	return engine.Hooks{
		OnPick:   c.onPick,
		OnSettle: c.onSettle,
	}
}

func (c *Collector) onPick(_ context.Context, e *engine.PickEvent) {
	c.picks.WithLabelValues(e.Manager).Inc()
	c.entered.WithLabelValues(e.Manager).Add(float64(len(e.Enter)))
	c.exited.WithLabelValues(e.Manager).Add(float64(len(e.Exit)))
}

func (c *Collector) onSettle(_ context.Context, e *engine.SettleEvent) {
	manager := e.Job.Manager
	c.jobs.WithLabelValues(manager, string(e.Outcome)).Inc()
	c.lastSeq.WithLabelValues(manager).Set(float64(e.Job.Seq))
	if e.Outcome == engine.OutcomeApplied {
		c.itemsSent.WithLabelValues(manager, "in").Add(float64(len(e.Job.Transition.In)))
		c.itemsSent.WithLabelValues(manager, "out").Add(float64(len(e.Job.Transition.Out)))
	}
}

// WriteTextfile writes the current metrics in the Prometheus text format,
// suitable for the node exporter's textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
