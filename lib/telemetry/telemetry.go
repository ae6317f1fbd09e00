// Package telemetry exports session events as Prometheus metrics.
package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lucask07/instrbuilder"
)

const namespace = "instrbuilder"

// Noop returns a collector that discards all events.
func Noop() instrbuilder.Collector {
	return noop{}
}

type noop struct{}

func (noop) ObserveCommand(string, string, instrbuilder.Op, time.Duration, error) {}
func (noop) ObserveWarning(string, string, instrbuilder.Warning) {}
func (noop) ObserveTest(string, string, instrbuilder.TestResult) {}

// PrometheusCollector counts commands, warnings and self-test results.
type PrometheusCollector struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
	warnings *prometheus.CounterVec
	tests    *prometheus.CounterVec
}

// NewPrometheusCollector registers the metrics with reg. Metrics already
// registered by an earlier call are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var (
		c   PrometheusCollector
		err error
	)
	c.commands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Number of instrument commands by direction and result.",
	}, []string{"instrument", "command", "op", "result"}))
	if err != nil {
		return nil, err
	}
	c.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "command_duration_seconds",
		Help:      "Round trip time of instrument commands.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"instrument", "op"}))
	if err != nil {
		return nil, err
	}
	c.warnings, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "warnings_total",
		Help:      "Number of recovered range, lookup and conversion problems.",
	}, []string{"instrument", "command", "kind"}))
	if err != nil {
		return nil, err
	}
	c.tests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "self_tests_total",
		Help:      "Number of command self-tests by result.",
	}, []string{"instrument", "result"}))
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return c, fmt.Errorf("existing collector has type %T", are.ExistingCollector)
			}
			return existing, nil
		}
		return c, err
	}
	return c, nil
}

// ObserveCommand implements instrbuilder.Collector.
func (c *PrometheusCollector) ObserveCommand(instrument, command string, op instrbuilder.Op, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.commands.WithLabelValues(instrument, command, string(op), result).Inc()
	c.duration.WithLabelValues(instrument, string(op)).Observe(d.Seconds())
}

// ObserveWarning implements instrbuilder.Collector.
func (c *PrometheusCollector) ObserveWarning(instrument, command string, w instrbuilder.Warning) {
	c.warnings.WithLabelValues(instrument, command, string(w)).Inc()
}

// ObserveTest implements instrbuilder.Collector.
func (c *PrometheusCollector) ObserveTest(instrument, _ string, r instrbuilder.TestResult) {
	c.tests.WithLabelValues(instrument, r.String()).Inc()
}
