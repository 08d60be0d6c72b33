// Package telemetry records cycle-level counters and pushes them to an
// optional Prometheus Pushgateway. A one-shot payload cannot be scraped,
// so the push model is the right fit when operators want cycle metrics.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"

	"github.com/kestrelmon/kestrel/internal/engine"
)

// Cycle aggregates counters for a single monitoring cycle.
type Cycle struct {
	registry *prometheus.Registry
	pusher   *push.Pusher
	logger   *zap.Logger

	checksRun       prometheus.Counter
	checksSkipped   prometheus.Counter
	checksFailed    prometheus.Counter
	ingestFailures  prometheus.Counter
	persistFailures prometheus.Counter
}

// NewCycle creates the cycle counters. gatewayURL may be empty, in which
// case Push is a no-op and the counters only serve tests and logs.
func NewCycle(gatewayURL, job, monitorID string, logger *zap.Logger) *Cycle {
	registry := prometheus.NewRegistry()

	c := &Cycle{
		registry: registry,
		logger:   logger,
		checksRun: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_checks_run_total",
			Help: "Checks executed during the cycle.",
		}),
		checksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_checks_skipped_total",
			Help: "Checks skipped because they were disabled or not due.",
		}),
		checksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_checks_failed_total",
			Help: "Checks whose execution returned an error.",
		}),
		ingestFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_ingest_failures_total",
			Help: "Primary sink deliveries that failed.",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_state_persist_failures_total",
			Help: "Schedule state writes that failed.",
		}),
	}
	registry.MustRegister(c.checksRun, c.checksSkipped, c.checksFailed, c.ingestFailures, c.persistFailures)

	if gatewayURL != "" {
		c.pusher = push.New(gatewayURL, job).
			Gatherer(registry).
			Grouping("monitor_id", monitorID)
	}
	return c
}

// Observe folds a cycle summary into the counters.
func (c *Cycle) Observe(sum engine.Summary) {
	c.checksRun.Add(float64(sum.Run))
	c.checksSkipped.Add(float64(sum.Skipped))
	c.checksFailed.Add(float64(sum.Failed))
	c.ingestFailures.Add(float64(sum.IngestFailures))
	c.persistFailures.Add(float64(sum.PersistFailures))
}

// Push sends the counters to the Pushgateway when one is configured.
func (c *Cycle) Push(ctx context.Context) error {
	if c.pusher == nil {
		return nil
	}
	if err := c.pusher.PushContext(ctx); err != nil {
		return err
	}
	c.logger.Debug("cycle metrics pushed")
	return nil
}
