// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrbuilder

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Access is the read/write mode of a register.
type Access int

const (
	AccessUnset Access = iota
	ReadOnly
	WriteOnly
	ReadWrite
)

// ParseAccess parses the register map spellings R, W and R/W.
func ParseAccess(s string) Access {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "R":
		return ReadOnly
	case "W":
		return WriteOnly
	case "R/W", "RW":
		return ReadWrite
	}
	return AccessUnset
}

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "R"
	case WriteOnly:
		return "W"
	case ReadWrite:
		return "R/W"
	}
	return ""
}

func (a Access) readable() bool { return a == ReadOnly || a == ReadWrite }
func (a Access) writable() bool { return a == WriteOnly || a == ReadWrite }

// Register is one named register of a device.
type Register struct {
	Name     string
	Address  uint16
	Access   Access
	IsConfig bool
}

// RegisterSession reads and writes the named registers of an SPI, I2C or
// Modbus device. Like Session it is not safe for concurrent use.
type RegisterSession struct {
	name      string
	regs      []Register
	index     map[string]int
	bus       RegisterBus
	iface     Interface
	slave     uint8
	log       zerolog.Logger
	collector Collector
}

// RegisterOption configures a RegisterSession.
type RegisterOption func(*RegisterSession)

// WithSlaveAddress sets the device address on a shared bus.
func WithSlaveAddress(addr uint8) RegisterOption {
	return func(r *RegisterSession) { r.slave = addr }
}

// WithRegisterLogger sets the logger. The default discards everything.
func WithRegisterLogger(l zerolog.Logger) RegisterOption {
	return func(r *RegisterSession) { r.log = l }
}

// WithRegisterName sets the device name used in logs and metrics.
func WithRegisterName(name string) RegisterOption {
	return func(r *RegisterSession) { r.name = name }
}

// WithRegisterCollector sets the event collector.
func WithRegisterCollector(c Collector) RegisterOption {
	return func(r *RegisterSession) { r.collector = c }
}

// NewRegisterSession returns a session for regs on bus. A nil bus selects
// an in-memory RegisterSimulator. A register name given twice keeps the
// first position and the last definition.
func NewRegisterSession(regs []Register, bus RegisterBus, iface Interface, opts ...RegisterOption) (*RegisterSession, error) {
	r := &RegisterSession{
		name:      DefaultSessionName,
		index:     map[string]int{},
		bus:       bus,
		iface:     iface,
		log:       zerolog.Nop(),
		collector: noopCollector{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.bus == nil {
		r.bus = NewRegisterSimulator(nil)
	}
	for _, reg := range regs {
		if reg.Name == "" {
			return nil, fmt.Errorf("register at 0x%02x has no name", reg.Address)
		}
		if i, ok := r.index[reg.Name]; ok {
			r.regs[i] = reg
			continue
		}
		r.index[reg.Name] = len(r.regs)
		r.regs = append(r.regs, reg)
	}
	r.log = r.log.With().Str("device", r.name).Stringer("interface", iface).Logger()
	return r, nil
}

// Registers returns the registers in map order.
func (r *RegisterSession) Registers() []Register {
	return append([]Register(nil), r.regs...)
}

func (r *RegisterSession) register(name string) (Register, error) {
	i, ok := r.index[name]
	if !ok {
		return Register{}, fmt.Errorf("register %s: %w", name, ErrUnknownCommand)
	}
	return r.regs[i], nil
}

// Get reads the register called name. Registers must be readable.
func (r *RegisterSession) Get(name string) (int, error) {
	reg, err := r.register(name)
	if err != nil {
		return 0, err
	}
	if !reg.Access.readable() {
		r.log.Error().Str("register", name).Msg("register is not readable")
		return 0, fmt.Errorf("get %s: %w", name, ErrCapability)
	}
	start := time.Now()
	v, err := r.bus.ReadRegister(r.iface, reg.Address, r.slave)
	r.collector.ObserveCommand(r.name, name, OpGet, time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", name, err)
	}
	return v, nil
}

// Set writes value to the register called name. Read-only registers and
// registers without a configured mode are refused.
func (r *RegisterSession) Set(name string, value int) error {
	reg, err := r.register(name)
	if err != nil {
		return err
	}
	switch {
	case reg.Access == ReadOnly:
		r.log.Error().Str("register", name).Msg("register is read-only")
		return fmt.Errorf("set %s: %w", name, ErrReadOnly)
	case !reg.Access.writable():
		r.log.Error().Str("register", name).Msg("register does not have R/W configured")
		return fmt.Errorf("set %s: %w", name, ErrAccessUnset)
	}
	start := time.Now()
	err = r.bus.WriteRegister(r.iface, reg.Address, r.slave, value)
	r.collector.ObserveCommand(r.name, name, OpSet, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// ConfigSnapshot reads every readable configuration register.
func (r *RegisterSession) ConfigSnapshot() ([]Reading, error) {
	var (
		readings []Reading
		errs     error
	)
	for _, reg := range r.regs {
		if !reg.IsConfig || !reg.Access.readable() {
			continue
		}
		v, err := r.Get(reg.Name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		readings = append(readings, Reading{Command: reg.Name, Value: v})
	}
	return readings, errs
}
