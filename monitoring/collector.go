package monitoring

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sarchlab/magicbot/hooking"
	"github.com/sarchlab/magicbot/scheduler"
	"github.com/sarchlab/magicbot/statemachine"
)

// Collector turns scheduler and state machine events into Prometheus
// metrics. It is a hook for the scheduler and the machines, and a failure
// sink for the scheduler.
type Collector struct {
	ticks           prometheus.Counter
	tickDuration    prometheus.Histogram
	executeDuration *prometheus.HistogramVec
	failures        *prometheus.CounterVec
	transitions     *prometheus.CounterVec
}

// NewCollector creates the metrics under the given namespace.
func NewCollector(namespace string) *Collector {
	buckets := prometheus.ExponentialBuckets(0.0001, 2, 12)

	return &Collector{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Control cycles run.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one control cycle.",
			Buckets:   buckets,
		}),
		executeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "execute_duration_seconds",
			Help:      "Time spent in the execute step of a component.",
			Buckets:   buckets,
		}, []string{"component"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "failures_total",
			Help:      "Contained component failures.",
		}, []string{"component", "panicked"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statemachine",
			Name:      "transitions_total",
			Help:      "States entered by state machines.",
		}, []string{"machine", "state"}),
	}
}

// Register adds all metrics to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, m := range []prometheus.Collector{
		c.ticks,
		c.tickDuration,
		c.executeDuration,
		c.failures,
		c.transitions,
	} {
		if err := reg.Register(m); err != nil {
			return err
		}
	}

	return nil
}

// Func updates the metrics for scheduler and state machine hook positions.
func (c *Collector) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case scheduler.HookPosAfterTick:
		c.ticks.Inc()
		if spent, ok := ctx.Detail.(time.Duration); ok {
			c.tickDuration.Observe(spent.Seconds())
		}
	case scheduler.HookPosAfterExecute:
		name, _ := ctx.Item.(string)
		if spent, ok := ctx.Detail.(time.Duration); ok {
			c.executeDuration.WithLabelValues(name).Observe(spent.Seconds())
		}
	case statemachine.HookPosStateEnter:
		machine := ""
		if m, ok := ctx.Domain.(interface{ Name() string }); ok {
			machine = m.Name()
		}

		state, _ := ctx.Item.(string)
		c.transitions.WithLabelValues(machine, state).Inc()
	}
}

// Report counts a failure.
func (c *Collector) Report(f scheduler.Failure) {
	panicked := false

	var execErr *scheduler.ComponentExecutionError
	if errors.As(f.Err, &execErr) {
		panicked = execErr.Panicked
	}

	c.failures.WithLabelValues(f.Component, strconv.FormatBool(panicked)).Inc()
}
