// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instruments

import (
	"fmt"
	"sort"

	"github.com/lucask07/instrbuilder"
)

const (
	DefaultProfile   = "TestInstrument"
	DefaultCSVFolder = "tester"
)

// Profile adapts a session to an instrument model: its default name and
// the commands it implements with more than one exchange.
type Profile struct {
	Name        string
	DefaultName string
	setup       func(in *Instrument, table *instrbuilder.Table, unconnected bool) []instrbuilder.SessionOption
}

var profiles = map[string]Profile{}

func register(p Profile) { profiles[p.Name] = p }

func init() {
	register(Profile{Name: "TestInstrument", DefaultName: "tester"})
	register(Profile{Name: "SCPI", DefaultName: instrbuilder.DefaultSessionName})
	register(Profile{Name: "RigolPowerSupply", DefaultName: "pwr"})
	register(Profile{Name: "AgilentFunctionGen", DefaultName: "fg"})
	register(Profile{Name: "KeysightFunctionGen", DefaultName: "fg"})
	register(Profile{Name: "KeysightSMU", DefaultName: "smu"})
	register(Profile{Name: "RigolOscilloscope", DefaultName: "osc", setup: screenCapture(":DISP:DATA? PNG, ON")})
	register(Profile{Name: "KeysightOscilloscope", DefaultName: "osc", setup: screenCapture(":DISP:DATA? PNG, COL")})
	register(Profile{Name: "KeysightMSOX3000", DefaultName: "osc", setup: screenCapture(":DISP:DATA? PNG, COL")})
	register(Profile{Name: "SRSLockIn", DefaultName: "lia", setup: lockIn})
	register(Profile{Name: "KeysightMultimeter", DefaultName: "dmm", setup: multimeter})
}

// Lookup returns the profile called name.
func Lookup(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// Profiles returns the sorted profile names.
func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// getter returns a custom getter option for name, or nothing when the
// table lacks the command.
func getter(table *instrbuilder.Table, name string, fn instrbuilder.GetterFunc) []instrbuilder.SessionOption {
	if _, ok := table.Command(name); !ok {
		return nil
	}
	return []instrbuilder.SessionOption{instrbuilder.WithCustomGetter(name, fn)}
}

func blockGetter(in *Instrument, query string) instrbuilder.GetterFunc {
	return func(instrbuilder.Configs) (any, error) {
		return in.AskBlock(query)
	}
}

func screenCapture(query string) func(*Instrument, *instrbuilder.Table, bool) []instrbuilder.SessionOption {
	return func(in *Instrument, table *instrbuilder.Table, _ bool) []instrbuilder.SessionOption {
		return getter(table, "display_data", blockGetter(in, query))
	}
}

func lockIn(_ *Instrument, table *instrbuilder.Table, unconnected bool) []instrbuilder.SessionOption {
	if _, ok := table.Command("ch1_disp"); !ok || !unconnected {
		return nil
	}
	return []instrbuilder.SessionOption{instrbuilder.WithSimulatedValue("ch1_disp", "1,0\r")}
}

func multimeter(in *Instrument, table *instrbuilder.Table, _ bool) []instrbuilder.SessionOption {
	var opts []instrbuilder.SessionOption
	opts = append(opts, getter(table, "hardcopy", blockGetter(in, "HCOP:SDUM:DATA?"))...)
	opts = append(opts, getter(table, "burst_volt", func(c instrbuilder.Configs) (any, error) {
		return burstVolt(in, burstConfig(c, false))
	})...)
	opts = append(opts, getter(table, "burst_volt_timer", func(c instrbuilder.Configs) (any, error) {
		return burstVolt(in, burstConfig(c, true))
	})...)
	return opts
}

// burst holds the settings of a triggered burst of DC voltage readings.
// With timer set, samples are paced by the sample timer.
type burst struct {
	readsPerTrigger any
	aperture        any
	trigSource      string
	trigCount       any
	trigSlope       any
	voltRange       any
	trigDelay       any
	timer           bool
	sampleTimer     any
	repeats         int
}

func burstConfig(c instrbuilder.Configs, timer bool) burst {
	b := burst{
		readsPerTrigger: 1,
		aperture:        1e-3,
		trigSource:      "BUS",
		trigCount:       1,
		trigSlope:       "POS",
		repeats:         1,
	}
	if timer {
		b.timer = true
		b.readsPerTrigger = 256
		b.aperture = 20e-6
		b.trigSource = "EXT"
		b.trigDelay = 0
		b.sampleTimer = 0.4096e-3
		b.repeats = 16
	}
	pick := func(key string, dst *any) {
		if v, ok := c[key]; ok {
			*dst = v
		}
	}
	pick("reads_per_trigger", &b.readsPerTrigger)
	pick("aperture", &b.aperture)
	pick("trig_count", &b.trigCount)
	pick("trig_slope", &b.trigSlope)
	pick("volt_range", &b.voltRange)
	pick("trig_delay", &b.trigDelay)
	pick("sample_timer", &b.sampleTimer)
	if v, ok := c["trig_source"]; ok {
		b.trigSource = instrbuilder.FormatValue(v)
	}
	if v, ok := c["repeats"].(int); ok && v > 0 {
		b.repeats = v
	}
	return b
}

// steps runs a sequence of session calls, stopping at the first error.
type steps struct {
	s   *instrbuilder.Session
	err error
}

func (st *steps) set(name string, v any, c instrbuilder.Configs) {
	if st.err == nil {
		st.err = st.s.Set(name, v, c)
	}
}

func (st *steps) get(name string) any {
	if st.err != nil {
		return nil
	}
	v, err := st.s.Get(name, nil)
	st.err = err
	return v
}

// burstVolt configures the multimeter for b, then arms, triggers and
// fetches b.repeats times, returning all readings.
func burstVolt(in *Instrument, b burst) ([]float64, error) {
	st := &steps{s: in.Session}
	dc := instrbuilder.Configs{"ac_dc": "DC"}

	st.set("volt_aperture", b.aperture, nil)
	st.set("trig_source", b.trigSource, nil)
	if b.trigSource == "EXT" {
		st.set("trig_slope", b.trigSlope, nil)
	}
	if b.timer {
		st.set("volt_autozero_dc", 0, nil)
	}
	st.set("trig_count", b.trigCount, nil)
	st.set("sample_count", b.readsPerTrigger, nil)
	if b.voltRange != nil {
		st.set("volt_range_auto", 0, dc)
		st.set("volt_range", b.voltRange, dc)
	}
	if b.timer {
		st.set("sample_source", "TIM", nil)
		st.set("sample_timer", b.sampleTimer, nil)
	}
	if b.trigDelay != nil {
		st.set("trig_delay", b.trigDelay, nil)
	}

	var readings []float64
	for i := 0; i < b.repeats && st.err == nil; i++ {
		st.set("initialize", nil, nil)
		if b.trigSource == "BUS" {
			st.set("trig", nil, nil)
		}
		switch v := st.get("fetch").(type) {
		case []float64:
			readings = append(readings, v...)
		case nil:
		default:
			return readings, fmt.Errorf("fetch returned %T", v)
		}
	}
	if st.err != nil {
		return readings, fmt.Errorf("burst: %w", st.err)
	}
	return readings, nil
}
