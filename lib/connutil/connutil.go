// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package connutil opens the transport named by an instrument address and
// falls back to simulation when the instrument cannot be reached.
package connutil

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/lucask07/instrbuilder"
	"github.com/lucask07/instrbuilder/lib/cmdlog"
	"github.com/lucask07/instrbuilder/lib/find"
	"github.com/lucask07/instrbuilder/lib/prologix"
	"github.com/lucask07/instrbuilder/lib/serialport"
	"github.com/lucask07/instrbuilder/lib/sysconfig"
	"github.com/lucask07/instrbuilder/lib/visa"
)

// Address kinds.
const (
	KindSerial   = "serial"
	KindPrologix = "prologix"
	KindVISA     = "visa"
)

const (
	prologixBaud = 115200
	defaultPAD   = 4
)

// Address says how to reach an instrument. An empty Resource means the
// instrument is not attached.
type Address struct {
	Kind       string
	Resource   string
	Connection sysconfig.Connection
}

// FromConfig builds the address of a configured instrument.
func FromConfig(inst sysconfig.Instrument) (Address, error) {
	kind, addr, err := inst.Endpoint()
	if err != nil {
		return Address{}, err
	}
	return Address{Kind: kind, Resource: addr, Connection: inst.Connection}, nil
}

type options struct {
	log         zerolog.Logger
	out         io.Writer
	suggestions func() []string
	trace       io.Writer
}

// Option configures Open.
type Option func(*options)

func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = l } }

// WithOutput sets where the simulation banner is printed.
func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

// WithSuggestions replaces the port suggestions shown when a serial
// instrument cannot be opened.
func WithSuggestions(fn func() []string) Option { return func(o *options) { o.suggestions = fn } }

// WithTrace logs every exchange with the instrument to w. A traced
// transport does not read binary blocks.
func WithTrace(w io.Writer) Option { return func(o *options) { o.trace = w } }

// Open opens the transport for a. When a is empty or the instrument cannot
// be opened, Open prints a banner and returns a nil transport with
// unconnected set, so the session simulates the instrument. Only an
// unknown address kind is an error.
func Open(a Address, opts ...Option) (t instrbuilder.Transport, unconnected bool, err error) {
	o := options{log: zerolog.Nop(), out: io.Discard, suggestions: find.Suggestions}
	for _, opt := range opts {
		opt(&o)
	}

	if a.Resource == "" {
		banner(o.out)
		return nil, true, nil
	}
	switch a.Kind {
	case KindSerial:
		t, err = openSerial(a, o.log)
	case KindPrologix:
		t, err = openPrologix(a, o.log)
	case KindVISA:
		t, err = visa.Open(a.Resource, visa.WithTimeout(timeout(a.Connection, visa.DefaultTimeout)), visa.WithLogger(o.log))
	default:
		return nil, false, fmt.Errorf("unknown address kind %q", a.Kind)
	}
	if err != nil {
		o.log.Warn().Err(err).Str("kind", a.Kind).Str("address", a.Resource).Msg("instrument not found")
		lines := []string{fmt.Sprintf("%s address not found: %s", a.Kind, a.Resource)}
		if a.Kind != KindVISA {
			lines = append(lines, "Possible serial addresses:")
			for _, s := range o.suggestions() {
				lines = append(lines, "    "+s)
			}
		}
		cmdlog.Banner(o.out, lines...)
		banner(o.out)
		return nil, true, nil
	}
	if o.trace != nil {
		t = cmdlog.Trace(t, o.trace)
	}
	return t, false, nil
}

func banner(w io.Writer) {
	cmdlog.Banner(w,
		"Running in debug mode without instrument attached",
		"All commands sent to the instrument will be printed.",
		fmt.Sprintf("Unless a simulated value is set, getters will always return %s", instrbuilder.SimulatedReply),
	)
}

func timeout(c sysconfig.Connection, def time.Duration) time.Duration {
	if c.Timeout.Duration > 0 {
		return c.Timeout.Duration
	}
	return def
}

func openSerial(a Address, log zerolog.Logger) (*serialport.Port, error) {
	c := a.Connection
	opts := []serialport.Option{
		serialport.WithLogger(log),
		serialport.WithReadTimeout(timeout(c, serialport.DefaultReadTimeout)),
	}
	if c.BaudRate > 0 {
		opts = append(opts, serialport.WithBaudRate(c.BaudRate))
	}
	if c.Terminator != "" {
		opts = append(opts, serialport.WithTerminator(c.Terminator))
	}
	if c.EOL != "" {
		opts = append(opts, serialport.WithEOL(c.EOL))
	}
	if c.InitWrite != "" {
		opts = append(opts, serialport.WithInitWrite(c.InitWrite))
	}
	return serialport.Open(a.Resource, opts...)
}

func openPrologix(a Address, log zerolog.Logger) (*prologix.Controller, error) {
	c := a.Connection
	baud := prologixBaud
	if c.BaudRate > 0 {
		baud = c.BaudRate
	}
	port, err := serial.Open(a.Resource, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(timeout(c, 30*time.Second)); err != nil {
		port.Close()
		return nil, err
	}

	opts := []prologix.ControllerOption{prologix.WithLogger(log)}
	if c.WriteDelay.Duration > 0 {
		opts = append(opts, prologix.WithWriteDelay(c.WriteDelay.Duration))
	}
	if c.GPIBSecondary != 0 {
		opts = append(opts, prologix.WithSecondaryAddress(c.GPIBSecondary))
	}
	gpib, err := prologix.NewController(port, primaryAddress(c), false, opts...)
	if err != nil {
		port.Close()
		return nil, err
	}
	return gpib, nil
}

// Flags holds command line connection settings.
type Flags struct {
	Kind     string
	Resource string
	GpibPAD  int
	GpibSAD  int
	Baud     int
	Delay    time.Duration
}

// AddFlags registers the connection flags on fs. It is to be called
// before fs.Parse. The default prologix port is guessed from the attached
// USB adapters.
func (f *Flags) AddFlags(fs *flag.FlagSet) {
	if f.Resource == "" {
		if tty, err := find.Find(find.PrologixFilter); err == nil {
			f.Kind, f.Resource = KindPrologix, "/dev/"+tty
		}
	}
	if f.Kind == "" {
		f.Kind = KindSerial
	}
	if f.GpibPAD == 0 {
		f.GpibPAD = defaultPAD
	}
	fs.StringVar(&f.Kind, "kind", f.Kind, "address kind: serial, prologix or visa")
	fs.StringVar(&f.Resource, "addr", f.Resource, "serial port or VISA resource; empty to simulate")
	fs.IntVar(&f.GpibPAD, "pad", f.GpibPAD, "GPIB primary address for the device")
	fs.IntVar(&f.GpibSAD, "sad", f.GpibSAD, "GPIB secondary address for the device (0 for none)")
	fs.IntVar(&f.Baud, "baud", f.Baud, "serial baud rate (0 for the transport default)")
	fs.DurationVar(&f.Delay, "delay", f.Delay, "delay between prologix writes")
}

// Address is to be called after the flags are parsed.
func (f *Flags) Address() Address {
	pad := f.GpibPAD
	return Address{
		Kind:     f.Kind,
		Resource: f.Resource,
		Connection: sysconfig.Connection{
			BaudRate:      f.Baud,
			GPIBAddress:   &pad,
			GPIBSecondary: f.GpibSAD,
			WriteDelay:    sysconfig.Duration{Duration: f.Delay},
		},
	}
}

// primaryAddress is the configured GPIB primary address, or the default
// when none is configured.
func primaryAddress(c sysconfig.Connection) int {
	if c.GPIBAddress == nil {
		return defaultPAD
	}
	return *c.GPIBAddress
}
