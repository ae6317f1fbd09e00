// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrbuilder

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lucask07/instrbuilder/lib/cmdlog"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// DefaultSessionName names sessions opened without WithName.
const DefaultSessionName = "not named"

// Session binds a command table to a transport. It is not safe for
// concurrent use; instrument buses accept one exchange at a time.
type Session struct {
	name        string
	table       *Table
	transport   Transport
	log         zerolog.Logger
	out         io.Writer
	collector   Collector
	unconnected bool
	simulated   map[string]any
	vendorID    string

	optErr error
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithName sets the instrument name used in logs and metrics.
func WithName(name string) SessionOption {
	return func(s *Session) { s.name = name }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// WithOutput sets where Help, HelpAll and TestAll write. The default
// discards the output.
func WithOutput(w io.Writer) SessionOption {
	return func(s *Session) { s.out = w }
}

// WithCollector sets the event collector.
func WithCollector(c Collector) SessionOption {
	return func(s *Session) { s.collector = c }
}

// Unconnected marks the transport as simulated. Values passed to Set are
// recorded and returned by later calls to Get.
func Unconnected() SessionOption {
	return func(s *Session) { s.unconnected = true }
}

// WithCustomGetter makes the command called name call fn on Get.
func WithCustomGetter(name string, fn GetterFunc) SessionOption {
	return func(s *Session) {
		c, ok := s.table.Command(name)
		if !ok {
			s.optErr = multierr.Append(s.optErr, fmt.Errorf("custom getter %s: %w", name, ErrUnknownCommand))
			return
		}
		s.table.replace(c.WithCustomGetter(fn))
	}
}

// WithCustomSetter makes the command called name call fn on Set.
func WithCustomSetter(name string, fn SetterFunc) SessionOption {
	return func(s *Session) {
		c, ok := s.table.Command(name)
		if !ok {
			s.optErr = multierr.Append(s.optErr, fmt.Errorf("custom setter %s: %w", name, ErrUnknownCommand))
			return
		}
		s.table.replace(c.WithCustomSetter(fn))
	}
}

// WithSimulatedValue records v as the value Get returns for name while the
// session is unconnected.
func WithSimulatedValue(name string, v any) SessionOption {
	return func(s *Session) { s.simulated[name] = v }
}

// NewSession returns a session for the commands of table talking over t.
// A nil t selects a Simulator writing to the session output and implies
// Unconnected. The identification string is read once through the "id"
// command when the table has one.
func NewSession(table *Table, t Transport, opts ...SessionOption) (*Session, error) {
	s := &Session{
		name:      DefaultSessionName,
		table:     table.clone(),
		transport: t,
		log:       zerolog.Nop(),
		out:       io.Discard,
		collector: noopCollector{},
		simulated: map[string]any{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.optErr != nil {
		return nil, s.optErr
	}
	if s.transport == nil {
		s.transport = NewSimulator(s.out)
		s.unconnected = true
	}
	s.log = s.log.With().Str("instrument", s.name).Logger()

	if c, ok := s.table.Command("id"); ok && c.Getter() {
		id, err := s.Get("id", nil)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Msg("id command not returned by instrument")
		case id != nil:
			s.vendorID = strings.TrimSpace(FormatValue(id))
		}
	}
	s.log.Info().Str("id", s.vendorID).Bool("unconnected", s.unconnected).Msg("opened instrument")
	return s, nil
}

func (t *Table) clone() *Table {
	if t == nil {
		return NewTable()
	}
	return NewTable(t.Commands()...)
}

func (s *Session) Name() string { return s.name }

// VendorID returns the identification string read when the session was
// opened, or "" when the instrument did not return one.
func (s *Session) VendorID() string { return s.vendorID }

func (s *Session) Unconnected() bool { return s.unconnected }

func (s *Session) Table() *Table { return s.table }

func (s *Session) Len() int { return s.table.Len() }

func (s *Session) command(name string) (*Command, error) {
	c, ok := s.table.Command(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownCommand)
	}
	return c, nil
}

// Get reads the command called name. Responses that fail conversion are
// logged and reported as a nil value without error. Values found in the
// command lookup are returned as their label.
func (s *Session) Get(name string, configs Configs) (any, error) {
	c, err := s.command(name)
	if err != nil {
		return nil, err
	}
	if !c.Getter() {
		s.log.Error().Str("command", name).Msg("command is not a getter")
		return nil, fmt.Errorf("get %s: %w", name, ErrCapability)
	}

	start := time.Now()
	if fn := c.CustomGetter(); c.Kind() == Custom && fn != nil {
		v, err := fn(configs)
		s.collector.ObserveCommand(s.name, name, OpGet, time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", name, err)
		}
		return v, nil
	}

	q, err := c.GetTemplate().Format(configs)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	raw, err := s.transport.Ask(q)
	s.collector.ObserveCommand(s.name, name, OpGet, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	if s.unconnected {
		if v, ok := s.simulated[name]; ok {
			raw = FormatValue(v)
		}
	}

	conv := c.Converter()
	val, err := conv.Convert(raw)
	if err != nil {
		s.log.Warn().Err(err).
			Str("command", name).
			Str("raw", raw).
			Str("expects", conv.Name).
			Msg("getter returned unexpected type")
		s.collector.ObserveWarning(s.name, name, WarnConversion)
		return nil, nil
	}
	if lookup := c.Lookup(); len(lookup) > 0 {
		if label, ok := lookup.Label(val); ok {
			return label, nil
		}
		s.log.Warn().
			Str("command", name).
			Str("value", FormatValue(val)).
			Str("lookup", lookup.String()).
			Msg("value not in the lookup table")
		cmdlog.Warning(s.out, "%s value %s not in the lookup table %s", name, FormatValue(val), lookup)
		s.collector.ObserveWarning(s.name, name, WarnLookup)
	}
	return val, nil
}

// Set writes value to the command called name. A lookup label is
// translated to its wire value and checked against the command limits; an
// out of range value is logged and sent anyway. A nil value sends the bare
// command, as for "*RST".
func (s *Session) Set(name string, value any, configs Configs) error {
	c, err := s.command(name)
	if err != nil {
		return err
	}
	if !c.Setter() {
		s.log.Error().Str("command", name).Msg("command is not a setter")
		return fmt.Errorf("set %s: %w", name, ErrCapability)
	}

	if value != nil {
		if wire, ok := c.Lookup().Wire(value); ok {
			value = wire
		}
		s.checkRange(c, value)
	}
	if s.unconnected {
		if value == nil {
			delete(s.simulated, name)
		} else {
			s.simulated[name] = value
		}
	}

	start := time.Now()
	if fn := c.CustomSetter(); c.Kind() == Custom && fn != nil {
		err := fn(value, configs)
		s.collector.ObserveCommand(s.name, name, OpSet, time.Since(start), err)
		if err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
		return nil
	}

	values := make(map[string]any, len(configs)+1)
	for k, v := range configs {
		values[k] = v
	}
	values[ValueKey] = value
	cmd, err := c.SetTemplate().Format(values)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	if value == nil {
		cmd = strings.TrimRight(cmd, " \t\r\n")
	}
	err = s.transport.Write(cmd)
	s.collector.ObserveCommand(s.name, name, OpSet, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// CheckSetRange reports whether value is within the limits of the command
// called name, logging a warning when it is not.
func (s *Session) CheckSetRange(name string, value any) bool {
	c, err := s.command(name)
	if err != nil {
		s.log.Error().Err(err).Msg("range check")
		return false
	}
	return s.checkRange(c, value)
}

func (s *Session) checkRange(c *Command, value any) bool {
	if c.Limits().Contains(value) {
		return true
	}
	s.log.Warn().
		Str("command", c.Name()).
		Str("value", FormatValue(value)).
		Stringer("limits", c.Limits()).
		Msg("value is out of range")
	cmdlog.Warning(s.out, "%s value %s is out of range %s", c.Name(), FormatValue(value), c.Limits())
	s.collector.ObserveWarning(s.name, c.Name(), WarnRange)
	return false
}

// Simulate records v as the value Get returns for name while the session is
// unconnected. A nil v removes the recorded value.
func (s *Session) Simulate(name string, v any) {
	if v == nil {
		delete(s.simulated, name)
		return
	}
	s.simulated[name] = v
}

// SimulatedValue returns the value recorded for name.
func (s *Session) SimulatedValue(name string) (any, bool) {
	v, ok := s.simulated[name]
	return v, ok
}

// CommErrorCommand is the getter that reports instrument communication
// errors.
const CommErrorCommand = "comm_error"

// ReadCommError reads the comm_error command. Instruments without one never
// report an error.
func (s *Session) ReadCommError() (bool, error) {
	if _, ok := s.table.Command(CommErrorCommand); !ok {
		return false, nil
	}
	v, err := s.Get(CommErrorCommand, nil)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

// Reading is the value of one getter.
type Reading struct {
	Command string
	Value   any
}

// LogAllGetters reads every getter that needs no inputs. When w is not nil
// the readings are written to it, one "name = value" line each. Failed reads
// are skipped and their errors combined.
func (s *Session) LogAllGetters(w io.Writer) ([]Reading, error) {
	readings, err := s.readAll(func(c *Command) bool {
		return c.GetterInputs() == 0
	})
	if w != nil {
		fmt.Fprintf(w, "Time = %d\n", time.Now().Unix())
		fmt.Fprintf(w, "Instrument = %s\n", s.name)
		for _, r := range readings {
			fmt.Fprintf(w, "%s = %s\n", r.Command, FormatValue(r.Value))
		}
	}
	return readings, err
}

// ConfigSnapshot reads every configuration getter, typically at the start
// and end of an experiment.
func (s *Session) ConfigSnapshot() ([]Reading, error) {
	return s.readAll(func(c *Command) bool {
		return c.IsConfig() && len(c.GetKeys()) == 0
	})
}

func (s *Session) readAll(want func(*Command) bool) ([]Reading, error) {
	var (
		readings []Reading
		errs     error
	)
	for _, c := range s.table.Commands() {
		if !c.Getter() || !want(c) {
			continue
		}
		v, err := s.Get(c.Name(), nil)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		readings = append(readings, Reading{Command: c.Name(), Value: v})
	}
	return readings, errs
}

// AskBlock sends cmd and reads a binary block response, for commands that
// return screen captures or waveforms.
func (s *Session) AskBlock(cmd string) ([]byte, error) {
	ba, ok := s.transport.(BlockAsker)
	if !ok {
		return nil, fmt.Errorf("binary read %q: %w", cmd, ErrCapability)
	}
	return ba.AskBlock(cmd)
}

// Close closes the transport when it holds resources.
func (s *Session) Close() error {
	if c, ok := s.transport.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
