// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrbuilder

import (
	"fmt"
	"io"
	"sync"

	"github.com/lucask07/instrbuilder/lib/cmdlog"
)

// Transport carries ASCII commands to an instrument.
type Transport interface {
	// Write sends cmd.
	Write(cmd string) error
	// Ask sends cmd and blocks until the instrument replies.
	Ask(cmd string) (string, error)
}

// BlockAsker is implemented by transports that can return binary replies,
// such as screen images or waveform blocks.
type BlockAsker interface {
	AskBlock(cmd string) ([]byte, error)
}

// SimulatedReply is what a Simulator answers to every query.
const SimulatedReply = "7"

// Simulator stands in for an instrument that is not attached. Every command
// is echoed to its writer and every query returns SimulatedReply.
type Simulator struct {
	w io.Writer
}

// NewSimulator returns a Simulator echoing to w. A nil w discards the echo.
func NewSimulator(w io.Writer) *Simulator {
	if w == nil {
		w = io.Discard
	}
	return &Simulator{w: w}
}

func (s *Simulator) Write(cmd string) error {
	cmdlog.Command(s.w, cmd)
	return nil
}

func (s *Simulator) Ask(cmd string) (string, error) {
	cmdlog.Command(s.w, cmd)
	return SimulatedReply, nil
}

// AskBlock returns SimulatedReply as bytes.
func (s *Simulator) AskBlock(cmd string) ([]byte, error) {
	cmdlog.Command(s.w, cmd)
	return []byte(SimulatedReply), nil
}

// Interface identifies the bus of a register-addressed device.
type Interface int

const (
	SPI Interface = iota
	I2C
	Modbus
)

func (i Interface) String() string {
	switch i {
	case SPI:
		return "SPI"
	case I2C:
		return "I2C"
	case Modbus:
		return "Modbus"
	}
	return fmt.Sprintf("Interface(%d)", int(i))
}

// RegisterBus reads and writes device registers.
type RegisterBus interface {
	ReadRegister(iface Interface, addr uint16, slave uint8) (int, error)
	WriteRegister(iface Interface, addr uint16, slave uint8, data int) error
}

type regKey struct {
	iface Interface
	slave uint8
	addr  uint16
}

// RegisterSimulator is an in-memory RegisterBus. Unwritten registers read
// as zero.
type RegisterSimulator struct {
	mu   sync.Mutex
	regs map[regKey]int
	w    io.Writer
}

// NewRegisterSimulator returns an empty RegisterSimulator echoing accesses
// to w. A nil w discards the echo.
func NewRegisterSimulator(w io.Writer) *RegisterSimulator {
	if w == nil {
		w = io.Discard
	}
	return &RegisterSimulator{regs: map[regKey]int{}, w: w}
}

func (r *RegisterSimulator) ReadRegister(iface Interface, addr uint16, slave uint8) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmdlog.Command(r.w, fmt.Sprintf("%s read 0x%02x@%d", iface, addr, slave))
	return r.regs[regKey{iface, slave, addr}], nil
}

func (r *RegisterSimulator) WriteRegister(iface Interface, addr uint16, slave uint8, data int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmdlog.Command(r.w, fmt.Sprintf("%s write 0x%02x@%d = %d", iface, addr, slave, data))
	r.regs[regKey{iface, slave, addr}] = data
	return nil
}
