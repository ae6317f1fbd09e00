package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/lucask07/instrbuilder"
)

func TestNoopCollector(t *testing.T) {
	c := Noop()
	require.NotNil(t, c)
	c.ObserveCommand("osc", "freq", instrbuilder.OpGet, time.Millisecond, nil)
	c.ObserveWarning("osc", "freq", instrbuilder.WarnRange)
	c.ObserveTest("osc", "freq", instrbuilder.Passed)
}

func TestPrometheusCollectorRegistersAndReuses(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	c.ObserveCommand("osc", "freq", instrbuilder.OpSet, 2*time.Millisecond, nil)
	c.ObserveCommand("osc", "freq", instrbuilder.OpSet, 2*time.Millisecond, errors.New("timeout"))
	c.ObserveWarning("osc", "freq", instrbuilder.WarnRange)
	c.ObserveTest("osc", "freq", instrbuilder.Passed)

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, c.commands, again.commands)
	again.ObserveTest("osc", "gain", instrbuilder.Passed)

	families := gather(t, reg)
	require.Len(t, families["instrbuilder_commands_total"].Metric, 2)
	requireCounterValue(t, families["instrbuilder_warnings_total"], 1)
	requireCounterValue(t, families["instrbuilder_self_tests_total"], 2)

	hist := families["instrbuilder_command_duration_seconds"]
	require.Len(t, hist.Metric, 1)
	require.Equal(t, uint64(2), hist.Metric[0].Histogram.GetSampleCount())
}

func TestSessionReportsToCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	table := instrbuilder.NewTable(instrbuilder.MustCommand(instrbuilder.CommandSpec{
		Name:        "gain",
		SetTemplate: "GAIN {value}",
		Getter:      true,
		Setter:      true,
		Converter:   instrbuilder.DefaultConverters()["float"],
		Limits:      instrbuilder.Limits{0, 10},
	}))
	s, err := instrbuilder.NewSession(table, nil, instrbuilder.WithName("amp"), instrbuilder.WithCollector(c))
	require.NoError(t, err)
	require.NoError(t, s.Set("gain", 12, nil))

	families := gather(t, reg)
	requireCounterValue(t, families["instrbuilder_commands_total"], 1)
	requireCounterValue(t, families["instrbuilder_warnings_total"], 1)
}

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

func requireCounterValue(t *testing.T, mf *dto.MetricFamily, value float64) {
	t.Helper()
	require.NotNil(t, mf)
	require.Len(t, mf.Metric, 1)
	require.NotNil(t, mf.Metric[0].Counter)
	require.Equal(t, value, mf.Metric[0].Counter.GetValue())
}
