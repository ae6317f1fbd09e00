// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package instruments opens instrument sessions from the system
// configuration or from an explicit address, applying the profile of the
// instrument model.
package instruments

import (
	"fmt"
	"path/filepath"

	"github.com/lucask07/instrbuilder"
	"github.com/lucask07/instrbuilder/lib/cmdtable"
	"github.com/lucask07/instrbuilder/lib/connutil"
	"github.com/lucask07/instrbuilder/lib/sysconfig"
)

// Instrument is an open session together with the profile it was opened
// with.
type Instrument struct {
	*instrbuilder.Session
	Profile string
}

type openOptions struct {
	name       string
	profile    string
	csvFolder  string
	cmdName    string
	lookupName string
	session    []instrbuilder.SessionOption
	conn       []connutil.Option
	loader     []cmdtable.Option
}

// OpenOption configures OpenByName and OpenByAddress.
type OpenOption func(*openOptions)

// WithName overrides the session name.
func WithName(name string) OpenOption { return func(o *openOptions) { o.name = name } }

// WithProfile selects the instrument profile for OpenByAddress.
func WithProfile(profile string) OpenOption { return func(o *openOptions) { o.profile = profile } }

// WithCSVFolder selects the command table folder for OpenByAddress.
func WithCSVFolder(folder string) OpenOption { return func(o *openOptions) { o.csvFolder = folder } }

// WithTableNames sets the command and lookup file names for OpenByAddress.
func WithTableNames(cmdName, lookupName string) OpenOption {
	return func(o *openOptions) { o.cmdName, o.lookupName = cmdName, lookupName }
}

func WithSessionOptions(opts ...instrbuilder.SessionOption) OpenOption {
	return func(o *openOptions) { o.session = append(o.session, opts...) }
}

func WithConnOptions(opts ...connutil.Option) OpenOption {
	return func(o *openOptions) { o.conn = append(o.conn, opts...) }
}

func WithLoaderOptions(opts ...cmdtable.Option) OpenOption {
	return func(o *openOptions) { o.loader = append(o.loader, opts...) }
}

func newOpenOptions(opts []OpenOption) openOptions {
	o := openOptions{
		profile:    DefaultProfile,
		csvFolder:  DefaultCSVFolder,
		cmdName:    sysconfig.DefaultCmdName,
		lookupName: sysconfig.DefaultLookupName,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// OpenByName opens the instrument called name in cfg.
func OpenByName(cfg sysconfig.Config, name string, opts ...OpenOption) (*Instrument, error) {
	inst, err := cfg.Instrument(name)
	if err != nil {
		return nil, err
	}
	addr, err := connutil.FromConfig(inst)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", name, err)
	}
	o := newOpenOptions(append([]OpenOption{WithName(name)}, opts...))
	if inst.Profile != "" {
		o.profile = inst.Profile
	}
	cmdPath, lookupPath := cfg.TableFiles(inst.CSVFolder)
	return open(addr, cmdPath, lookupPath, o)
}

// OpenByAddress opens the instrument at addr with the command tables below
// csvDir. Without options it opens the tester tables with the
// TestInstrument profile; an empty addr simulates the instrument.
func OpenByAddress(addr connutil.Address, csvDir string, opts ...OpenOption) (*Instrument, error) {
	o := newOpenOptions(opts)
	dir := filepath.Join(csvDir, o.csvFolder)
	return open(addr, filepath.Join(dir, o.cmdName), filepath.Join(dir, o.lookupName), o)
}

func open(addr connutil.Address, cmdPath, lookupPath string, o openOptions) (*Instrument, error) {
	p, ok := Lookup(o.profile)
	if !ok {
		return nil, fmt.Errorf("unknown instrument profile %q", o.profile)
	}
	table, err := cmdtable.LoadFiles(cmdPath, lookupPath, o.loader...)
	if err != nil {
		return nil, err
	}
	t, unconnected, err := connutil.Open(addr, o.conn...)
	if err != nil {
		return nil, err
	}
	name := o.name
	if name == "" {
		name = p.DefaultName
	}

	in := &Instrument{Profile: p.Name}
	sopts := []instrbuilder.SessionOption{instrbuilder.WithName(name)}
	if p.setup != nil {
		sopts = append(sopts, p.setup(in, table, unconnected)...)
	}
	sopts = append(sopts, o.session...)
	s, err := instrbuilder.NewSession(table, t, sopts...)
	if err != nil {
		if t != nil {
			if c, ok := t.(interface{ Close() error }); ok {
				c.Close()
			}
		}
		return nil, err
	}
	in.Session = s
	return in, nil
}

// OpenRegisters opens a register session for the register map file at
// path.
func OpenRegisters(path string, bus instrbuilder.RegisterBus, iface instrbuilder.Interface, opts ...instrbuilder.RegisterOption) (*instrbuilder.RegisterSession, error) {
	regs, err := cmdtable.LoadRegisterFile(path)
	if err != nil {
		return nil, err
	}
	return instrbuilder.NewRegisterSession(regs, bus, iface, opts...)
}

// ADA2200 opens the ADA2200 synchronous demodulator over SPI using the
// register map below csvDir. A nil bus simulates the chip.
func ADA2200(csvDir string, bus instrbuilder.RegisterBus, opts ...instrbuilder.RegisterOption) (*instrbuilder.RegisterSession, error) {
	opts = append([]instrbuilder.RegisterOption{instrbuilder.WithRegisterName("ADA2200")}, opts...)
	return OpenRegisters(filepath.Join(csvDir, "ada2200", "registers.csv"), bus, instrbuilder.SPI, opts...)
}
