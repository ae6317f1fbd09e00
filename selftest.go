// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrbuilder

import (
	"fmt"
	"math"
	"slices"

	"github.com/lucask07/instrbuilder/lib/cmdlog"
	"go.uber.org/multierr"
)

// AllowedDeviation is the relative difference tolerated between a float
// value that was set and the value read back.
const AllowedDeviation = 0.02

// TestResult is the outcome of exercising one command.
type TestResult int

const (
	Failed TestResult = iota
	Passed
	NotTested
)

func (r TestResult) String() string {
	switch r {
	case Failed:
		return "Failed"
	case Passed:
		return "Passed"
	case NotTested:
		return "NotTested"
	}
	return fmt.Sprintf("TestResult(%d)", int(r))
}

// TestOptions parameterize TestCommand.
type TestOptions struct {
	// SetValues are written and read back in turn. When nil the first two
	// limits are used.
	SetValues []any
	// GetConfigs and SetConfigs fill the extra template placeholders. A
	// command is not tested unless they supply as many entries as its
	// templates have placeholders.
	GetConfigs Configs
	SetConfigs Configs
}

// tester accumulates the outcome of one TestCommand run.
type tester struct {
	s         *Session
	commError bool
	errs      error
}

func (t *tester) check(err error) {
	if err != nil {
		t.commError = true
		t.errs = multierr.Append(t.errs, err)
		return
	}
	bad, err := t.s.ReadCommError()
	if err != nil {
		t.errs = multierr.Append(t.errs, err)
	}
	t.commError = t.commError || bad || err != nil
}

// TestCommand exercises the command called name and reports whether the
// instrument flagged a communication error or read back a different value
// than was set. Getter and setter commands are set to each test value and
// read back; setter-only commands are set without a value, or to their first
// and last allowed values when they have more than two; getter-only commands
// are read once. I/O errors do not stop the sequence; they fail the test and
// are returned combined.
func (s *Session) TestCommand(name string, opts TestOptions) (TestResult, error) {
	c, err := s.command(name)
	if err != nil {
		return Failed, err
	}
	r, err := s.testCommand(c, opts)
	s.collector.ObserveTest(s.name, name, r)
	return r, err
}

func (s *Session) testCommand(c *Command, opts TestOptions) (TestResult, error) {
	log := s.log.With().Str("command", c.Name()).Logger()
	if len(c.GetKeys()) != len(opts.GetConfigs) || len(c.SetKeys()) != len(opts.SetConfigs) {
		log.Info().
			Strs("get_keys", c.GetKeys()).
			Strs("set_keys", c.SetKeys()).
			Msg("skipping test: a configuration input is required")
		return NotTested, nil
	}

	t := &tester{s: s}
	switch {
	case c.Getter() && c.Setter():
		_, err := s.Get(c.Name(), opts.GetConfigs)
		t.check(err)
		values := opts.SetValues
		if values == nil {
			if len(c.Limits()) < 2 {
				log.Info().Msg("skipping test of setter: limits are missing")
				return NotTested, nil
			}
			values = []any{c.Limits()[0], c.Limits()[1]}
		}
		for _, v := range values {
			t.check(s.Set(c.Name(), v, opts.SetConfigs))
			got, err := s.Get(c.Name(), opts.GetConfigs)
			t.check(err)
			if err != nil {
				continue
			}
			if t.deviates(c, v, got) {
				t.commError = true
			}
		}

	case c.Setter():
		switch limits := c.Limits(); {
		case limits == nil:
			t.check(s.Set(c.Name(), nil, opts.SetConfigs))
		case len(limits) > 2:
			for _, v := range []any{limits[0], limits[len(limits)-1]} {
				t.check(s.Set(c.Name(), v, opts.SetConfigs))
			}
		default:
			log.Info().Msg("skipping test of setter")
			return NotTested, nil
		}

	case c.Getter():
		_, err := s.Get(c.Name(), opts.GetConfigs)
		t.check(err)

	default:
		log.Info().Msg("command is neither a setter nor a getter, cannot test")
		return NotTested, nil
	}

	if t.commError {
		return Failed, t.errs
	}
	return Passed, t.errs
}

// deviates compares a value read back with the value that was set, both at
// the wire level.
func (t *tester) deviates(c *Command, set, got any) bool {
	if w, ok := c.Lookup().Wire(set); ok {
		set = w
	}
	if w, ok := c.Lookup().Wire(got); ok {
		got = w
	}
	bad := !Equal(got, set)
	if c.Converter().Float {
		sf, okSet := toFloat(set)
		gf, okGot := toFloat(got)
		if okSet && okGot && sf != 0 {
			bad = math.Abs((gf-sf)/sf) > AllowedDeviation
		}
	}
	if bad {
		ev := t.s.log.Warn().
			Str("command", c.Name()).
			Str("set", FormatValue(set)).
			Str("got", FormatValue(got))
		if c.Converter().Float {
			ev = ev.Float64("allowed_deviation", AllowedDeviation)
		}
		ev.Msg("get vs. set difference")
	}
	return bad
}

// TestSkip selects the commands TestAll leaves alone.
type TestSkip struct {
	Subsystems []string
	Commands   []string
}

// DefaultTestSkip skips the setup, status and system subsystems and the
// fast_transfer and reset commands, which change instrument state in ways a
// read-back test cannot check.
func DefaultTestSkip() TestSkip {
	return TestSkip{
		Subsystems: []string{"setup", "status", "system"},
		Commands:   []string{"fast_transfer", "reset"},
	}
}

func (k TestSkip) skips(c *Command) bool {
	return slices.Contains(k.Subsystems, c.Subsystem()) || slices.Contains(k.Commands, c.Name())
}

// TestOutcome is the result of one command in a TestReport.
type TestOutcome struct {
	Command string
	Result  TestResult
	Err     error
}

// TestReport lists TestAll outcomes in table order.
type TestReport []TestOutcome

// Result returns the outcome for command.
func (r TestReport) Result(command string) (TestResult, bool) {
	for _, o := range r {
		if o.Command == command {
			return o.Result, true
		}
	}
	return NotTested, false
}

// Count returns how many commands ended with result.
func (r TestReport) Count(result TestResult) int {
	n := 0
	for _, o := range r {
		if o.Result == result {
			n++
		}
	}
	return n
}

// TestAll runs TestCommand with default options on every command not
// skipped and writes a summary to the session output.
func (s *Session) TestAll(skip TestSkip) (TestReport, error) {
	var (
		report TestReport
		errs   error
	)
	for _, c := range s.table.Commands() {
		if skip.skips(c) {
			continue
		}
		fmt.Fprintf(s.out, "Testing %s\n", cmdlog.NameStyle.Render(c.Name()))
		r, err := s.TestCommand(c.Name(), TestOptions{})
		report = append(report, TestOutcome{Command: c.Name(), Result: r, Err: err})
		errs = multierr.Append(errs, err)
		fmt.Fprintf(s.out, "Result for %s = %s\n", c.Name(), r)
	}

	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, cmdlog.Divider)
	fmt.Fprintln(s.out, "Command Test Results:")
	for _, o := range report {
		fmt.Fprintf(s.out, "  %-24s %s\n", o.Command, o.Result)
	}
	fmt.Fprintf(s.out, "%d passed, %d failed, %d not tested\n",
		report.Count(Passed), report.Count(Failed), report.Count(NotTested))
	return report, errs
}
