// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package modbusreg maps register sessions onto Modbus holding registers,
// over TCP or RTU.
package modbusreg

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	"github.com/lucask07/instrbuilder"
)

const DefaultTimeout = 5 * time.Second

// Client is the subset of Modbus operations the bus needs.
type Client interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
}

// Bus is an instrbuilder.RegisterBus backed by a Modbus client. The slave
// address of each access selects the Modbus unit.
type Bus struct {
	mu       sync.Mutex
	client   Client
	setSlave func(id byte)
	close    func() error
	log      zerolog.Logger
}

var _ instrbuilder.RegisterBus = (*Bus)(nil)

// Option configures a Bus.
type Option func(*settings)

type settings struct {
	timeout  time.Duration
	baudRate int
	parity   string
	log      zerolog.Logger
}

func WithTimeout(d time.Duration) Option { return func(s *settings) { s.timeout = d } }

// WithBaudRate sets the RTU line speed.
func WithBaudRate(baud int) Option { return func(s *settings) { s.baudRate = baud } }

// WithParity sets the RTU parity: "N", "E" or "O".
func WithParity(p string) Option { return func(s *settings) { s.parity = p } }

func WithLogger(l zerolog.Logger) Option { return func(s *settings) { s.log = l } }

func newSettings(opts []Option) settings {
	s := settings{timeout: DefaultTimeout, baudRate: 19200, parity: "E", log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// DialTCP connects to a Modbus TCP server at addr (host:port).
func DialTCP(addr string, opts ...Option) (*Bus, error) {
	s := newSettings(opts)
	handler := modbus.NewTCPClientHandler(addr)
	handler.Timeout = s.timeout
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	s.log.Info().Str("addr", addr).Msg("modbus tcp connected")
	b := New(modbus.NewClient(handler), func(id byte) { handler.SlaveId = id }, s.log)
	b.close = handler.Close
	return b, nil
}

// OpenRTU opens a Modbus RTU line on the serial device port.
func OpenRTU(port string, opts ...Option) (*Bus, error) {
	s := newSettings(opts)
	handler := modbus.NewRTUClientHandler(port)
	handler.BaudRate = s.baudRate
	handler.DataBits = 8
	handler.Parity = s.parity
	handler.StopBits = 1
	handler.Timeout = s.timeout
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("open %s: %w", port, err)
	}
	s.log.Info().Str("port", port).Int("baud", s.baudRate).Msg("modbus rtu open")
	b := New(modbus.NewClient(handler), func(id byte) { handler.SlaveId = id }, s.log)
	b.close = handler.Close
	return b, nil
}

// New wraps client. setSlave selects the unit before each request.
func New(client Client, setSlave func(id byte), log zerolog.Logger) *Bus {
	if setSlave == nil {
		setSlave = func(byte) {}
	}
	return &Bus{client: client, setSlave: setSlave, log: log}
}

func (b *Bus) ReadRegister(iface instrbuilder.Interface, addr uint16, slave uint8) (int, error) {
	if iface != instrbuilder.Modbus {
		return 0, fmt.Errorf("modbus bus cannot serve %s", iface)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setSlave(slave)
	res, err := b.client.ReadHoldingRegisters(addr, 1)
	if err != nil {
		return 0, fmt.Errorf("read register 0x%04x@%d: %w", addr, slave, err)
	}
	if len(res) < 2 {
		return 0, fmt.Errorf("read register 0x%04x@%d: short response % x", addr, slave, res)
	}
	v := int(binary.BigEndian.Uint16(res))
	b.log.Debug().Uint16("addr", addr).Uint8("slave", slave).Int("value", v).Msg("modbus read")
	return v, nil
}

func (b *Bus) WriteRegister(iface instrbuilder.Interface, addr uint16, slave uint8, data int) error {
	if iface != instrbuilder.Modbus {
		return fmt.Errorf("modbus bus cannot serve %s", iface)
	}
	if data < 0 || data > 0xffff {
		return fmt.Errorf("register value %d does not fit 16 bits", data)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setSlave(slave)
	if _, err := b.client.WriteSingleRegister(addr, uint16(data)); err != nil {
		return fmt.Errorf("write register 0x%04x@%d: %w", addr, slave, err)
	}
	b.log.Debug().Uint16("addr", addr).Uint8("slave", slave).Int("value", data).Msg("modbus write")
	return nil
}

// Close closes the connection opened by DialTCP or OpenRTU.
func (b *Bus) Close() error {
	if b.close != nil {
		return b.close()
	}
	return nil
}
