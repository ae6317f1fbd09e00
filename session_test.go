// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrbuilder

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// recorder is a Transport that logs every command and answers queries from
// replies, falling back to reply.
type recorder struct {
	writes  []string
	asks    []string
	reply   string
	replies map[string]string
	err     error
	closed  bool
}

func (r *recorder) Write(cmd string) error {
	r.writes = append(r.writes, cmd)
	return r.err
}

func (r *recorder) Ask(cmd string) (string, error) {
	r.asks = append(r.asks, cmd)
	if v, ok := r.replies[cmd]; ok {
		return v, r.err
	}
	return r.reply, r.err
}

func (r *recorder) Close() error {
	r.closed = true
	return nil
}

type countingCollector struct {
	commands map[Op]int
	warnings map[Warning]int
	tests    map[TestResult]int
}

func newCountingCollector() *countingCollector {
	return &countingCollector{commands: map[Op]int{}, warnings: map[Warning]int{}, tests: map[TestResult]int{}}
}

func (c *countingCollector) ObserveCommand(_, _ string, op Op, _ time.Duration, _ error) {
	c.commands[op]++
}

func (c *countingCollector) ObserveWarning(_, _ string, w Warning) { c.warnings[w]++ }

func (c *countingCollector) ObserveTest(_, _ string, r TestResult) { c.tests[r]++ }

func testTable(t *testing.T) *Table {
	t.Helper()
	conv := DefaultConverters()
	return NewTable(
		MustCommand(CommandSpec{Name: "id", SetTemplate: "*IDN", Getter: true, Converter: conv["str"], Subsystem: "system"}),
		MustCommand(CommandSpec{
			Name: "freq", SetTemplate: "FREQ {value}", Getter: true, Setter: true,
			Converter: conv["float"], Limits: Limits{0, 1e6}, Doc: "output frequency", IsConfig: true,
		}),
		MustCommand(CommandSpec{
			Name: "speed", SetTemplate: "FILT:SPE", Getter: true, Setter: true,
			Converter: conv["int"], Lookup: Lookup{{"SLOW", 0}, {"FAST", 1}}, Limits: Limits{"SLOW", "FAST"},
		}),
		MustCommand(CommandSpec{
			Name: "gain", SetTemplate: "GAIN", Getter: true, Setter: true,
			Converter: conv["int"], Limits: Limits{0, 10},
		}),
		MustCommand(CommandSpec{
			Name: "trigger_level", SetTemplate: ":TRIG:LEV {value}, CHAN{chan}", Getter: true, Setter: true,
			Converter: conv["float"], Limits: Limits{-5, 5}, Subsystem: "trigger",
		}),
		MustCommand(CommandSpec{Name: "reset", SetTemplate: "*RST", Setter: true, Subsystem: "system"}),
		MustCommand(CommandSpec{Name: "trigger", SetTemplate: "*TRG", Setter: true, Subsystem: "trigger"}),
	)
}

func TestOfflineSetGet(t *testing.T) {
	var out bytes.Buffer
	s, err := NewSession(testTable(t), nil, WithOutput(&out))
	require.NoError(t, err)
	require.True(t, s.Unconnected())
	require.Equal(t, SimulatedReply, s.VendorID())

	require.NoError(t, s.Set("freq", 1000.0, nil))
	v, err := s.Get("freq", nil)
	require.NoError(t, err)
	require.Equal(t, 1000.0, v)
	require.Contains(t, out.String(), "FREQ 1000.0")

	// unrecorded getters return the simulator reply
	v, err = s.Get("gain", nil)
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestLookupRoundTrip(t *testing.T) {
	rec := &recorder{reply: "0"}
	s, err := NewSession(testTable(t), rec, Unconnected())
	require.NoError(t, err)

	require.NoError(t, s.Set("speed", "FAST", nil))
	require.Equal(t, []string{"FILT:SPE 1"}, rec.writes)
	recorded, ok := s.SimulatedValue("speed")
	require.True(t, ok)
	require.Equal(t, 1, recorded)

	v, err := s.Get("speed", nil)
	require.NoError(t, err)
	require.Equal(t, "FAST", v)
}

func TestLookupMissReturnsValue(t *testing.T) {
	var logs bytes.Buffer
	coll := newCountingCollector()
	rec := &recorder{reply: "5\n"}
	s, err := NewSession(testTable(t), rec, WithLogger(zerolog.New(&logs)), WithCollector(coll))
	require.NoError(t, err)

	v, err := s.Get("speed", nil)
	require.NoError(t, err)
	require.Equal(t, 5, v)
	require.Contains(t, logs.String(), "not in the lookup table")
	require.Equal(t, 1, coll.warnings[WarnLookup])
}

func TestOutOfRangeSetStillTransmits(t *testing.T) {
	var logs bytes.Buffer
	coll := newCountingCollector()
	rec := &recorder{}
	var out bytes.Buffer
	s, err := NewSession(testTable(t), rec, WithLogger(zerolog.New(&logs)), WithCollector(coll), WithOutput(&out))
	require.NoError(t, err)

	require.NoError(t, s.Set("gain", 50, nil))
	require.Contains(t, out.String(), "gain value 50 is out of range")
	require.Equal(t, []string{"GAIN 50"}, rec.writes)
	require.Contains(t, logs.String(), "out of range")
	require.Contains(t, logs.String(), `"command":"gain"`)
	require.Equal(t, 1, coll.warnings[WarnRange])
	require.Equal(t, 1, coll.commands[OpSet])

	require.False(t, s.CheckSetRange("gain", 11))
	require.True(t, s.CheckSetRange("gain", 10))
	require.True(t, s.CheckSetRange("reset", "anything"))
}

func TestConversionFailureYieldsNil(t *testing.T) {
	var logs bytes.Buffer
	rec := &recorder{reply: "OVERLOAD"}
	s, err := NewSession(testTable(t), rec, WithLogger(zerolog.New(&logs)))
	require.NoError(t, err)

	v, err := s.Get("freq", nil)
	require.NoError(t, err)
	require.Nil(t, v)
	require.Contains(t, logs.String(), "unexpected type")
	require.Contains(t, logs.String(), "OVERLOAD")
}

func TestCapabilityViolation(t *testing.T) {
	rec := &recorder{}
	s, err := NewSession(testTable(t), rec)
	require.NoError(t, err)

	_, err = s.Get("reset", nil)
	require.ErrorIs(t, err, ErrCapability)
	require.Empty(t, rec.asks[1:])

	err = s.Set("id", "x", nil)
	require.ErrorIs(t, err, ErrCapability)
	require.Empty(t, rec.writes)

	_, err = s.Get("nope", nil)
	require.ErrorIs(t, err, ErrUnknownCommand)
}

func TestSetWithoutValue(t *testing.T) {
	rec := &recorder{}
	s, err := NewSession(testTable(t), rec)
	require.NoError(t, err)

	require.NoError(t, s.Set("reset", nil, nil))
	require.Equal(t, []string{"*RST"}, rec.writes)
}

func TestConfigsFillTemplates(t *testing.T) {
	rec := &recorder{reply: "0.5"}
	s, err := NewSession(testTable(t), rec)
	require.NoError(t, err)

	require.NoError(t, s.Set("trigger_level", 0.25, Configs{"chan": 2}))
	require.Equal(t, []string{":TRIG:LEV 0.25, CHAN2"}, rec.writes)

	v, err := s.Get("trigger_level", Configs{"chan": 2})
	require.NoError(t, err)
	require.Equal(t, 0.5, v)
	require.Equal(t, ":TRIG:LEV?, CHAN2", rec.asks[len(rec.asks)-1])

	_, err = s.Get("trigger_level", nil)
	require.ErrorIs(t, err, ErrMissingConfig)
}

func TestVendorID(t *testing.T) {
	rec := &recorder{replies: map[string]string{"*IDN?": "KEYSIGHT,DSOX3034T,MY1234\r\n"}}
	s, err := NewSession(testTable(t), rec, WithName("osc"))
	require.NoError(t, err)
	require.Equal(t, "KEYSIGHT,DSOX3034T,MY1234", s.VendorID())
	require.Equal(t, "osc", s.Name())
	require.Equal(t, []string{"*IDN?"}, rec.asks)

	// a failing id query leaves the session usable
	rec = &recorder{err: errors.New("timeout")}
	s, err = NewSession(testTable(t), rec)
	require.NoError(t, err)
	require.Empty(t, s.VendorID())
}

func TestCustomGetterAndSetter(t *testing.T) {
	var got []any
	rec := &recorder{}
	s, err := NewSession(testTable(t), rec,
		WithCustomGetter("freq", func(c Configs) (any, error) { return []byte("image"), nil }),
		WithCustomSetter("gain", func(v any, c Configs) error {
			got = append(got, v)
			return nil
		}),
	)
	require.NoError(t, err)

	v, err := s.Get("freq", nil)
	require.NoError(t, err)
	require.Equal(t, []byte("image"), v)

	require.NoError(t, s.Set("gain", 3, nil))
	require.Equal(t, []any{3}, got)
	require.Empty(t, rec.writes)

	// the table passed in is left untouched
	c, _ := testTable(t).Command("freq")
	require.Equal(t, Templated, c.Kind())

	_, err = NewSession(testTable(t), rec, WithCustomGetter("missing", nil))
	require.ErrorIs(t, err, ErrUnknownCommand)
}

func TestSimulatedValues(t *testing.T) {
	s, err := NewSession(testTable(t), nil, WithSimulatedValue("gain", 4))
	require.NoError(t, err)

	v, err := s.Get("gain", nil)
	require.NoError(t, err)
	require.Equal(t, 4, v)

	require.NoError(t, s.Set("gain", nil, nil))
	_, ok := s.SimulatedValue("gain")
	require.False(t, ok)

	s.Simulate("freq", 12.5)
	v, err = s.Get("freq", nil)
	require.NoError(t, err)
	require.Equal(t, 12.5, v)
}

func TestReadCommError(t *testing.T) {
	s, err := NewSession(testTable(t), nil)
	require.NoError(t, err)
	bad, err := s.ReadCommError()
	require.NoError(t, err)
	require.False(t, bad)

	table := testTable(t)
	table.Add(MustCommand(CommandSpec{
		Name: CommErrorCommand, SetTemplate: "SYST:ERR", Getter: true,
		Converter: DefaultConverters()["keysight_error"],
	}))
	rec := &recorder{replies: map[string]string{"SYST:ERR?": `+0,"No error"`}}
	s, err = NewSession(table, rec)
	require.NoError(t, err)
	bad, err = s.ReadCommError()
	require.NoError(t, err)
	require.False(t, bad)

	rec.replies["SYST:ERR?"] = `-410,"Query INTERRUPTED"`
	bad, err = s.ReadCommError()
	require.NoError(t, err)
	require.True(t, bad)
}

func TestLogAllGettersAndSnapshot(t *testing.T) {
	s, err := NewSession(testTable(t), nil)
	require.NoError(t, err)
	s.Simulate("freq", 250.0)

	var buf bytes.Buffer
	readings, err := s.LogAllGetters(&buf)
	// trigger_level needs a channel and cannot be read without one
	require.ErrorIs(t, err, ErrMissingConfig)
	names := make([]string, 0, len(readings))
	for _, r := range readings {
		names = append(names, r.Command)
	}
	require.Equal(t, []string{"id", "freq", "speed", "gain"}, names)
	require.Contains(t, buf.String(), "freq = 250.0")
	require.Contains(t, buf.String(), "Instrument = not named")

	snap, err := s.ConfigSnapshot()
	require.NoError(t, err)
	require.Equal(t, []Reading{{Command: "freq", Value: 250.0}}, snap)
}

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	s, err := NewSession(testTable(t), nil, WithOutput(&out))
	require.NoError(t, err)
	out.Reset()

	require.NoError(t, s.Help("speed"))
	require.Contains(t, out.String(), "Help for command")
	require.Contains(t, out.String(), "Returns: int")
	require.Contains(t, out.String(), "{'SLOW': 0, 'FAST': 1}")
	require.Contains(t, out.String(), "Allowable range is: [0, 1]")

	out.Reset()
	require.NoError(t, s.Help("trigger_level"))
	require.Contains(t, out.String(), "in subsystem: trigger")
	require.Contains(t, out.String(), "configuration dictionary with keys: chan")

	out.Reset()
	require.NoError(t, s.HelpAll("trigger"))
	require.Contains(t, out.String(), "trigger_level")
	require.NotContains(t, out.String(), "freq")

	out.Reset()
	require.NoError(t, s.HelpAll())
	require.Contains(t, out.String(), UnassignedSubsystem)
	require.Contains(t, out.String(), "output frequency")

	require.ErrorIs(t, s.Help("nope"), ErrUnknownCommand)
	require.Equal(t, []string{"id", "freq", "speed", "gain", "trigger_level", "reset", "trigger"}, s.ListCommands())
}

func TestClose(t *testing.T) {
	rec := &recorder{}
	s, err := NewSession(testTable(t), rec)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.True(t, rec.closed)
}

func TestAskBlock(t *testing.T) {
	var out bytes.Buffer
	s, err := NewSession(testTable(t), nil, WithOutput(&out))
	require.NoError(t, err)
	data, err := s.AskBlock(":DISP:DATA? PNG, ON")
	require.NoError(t, err)
	require.Equal(t, []byte(SimulatedReply), data)
	require.Contains(t, out.String(), ":DISP:DATA? PNG, ON")

	s, err = NewSession(testTable(t), &recorder{})
	require.NoError(t, err)
	_, err = s.AskBlock(":DISP:DATA? PNG, ON")
	require.ErrorIs(t, err, ErrCapability)
}
