// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package serialport is an instrbuilder transport for RS-232 instruments.
package serialport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// Defaults match the SRS lock-in amplifiers.
const (
	DefaultBaudRate    = 9600
	DefaultTerminator  = " \n"
	DefaultEOL         = "\r"
	DefaultReadTimeout = 2 * time.Second
)

// Port sends commands over a serial line and reads responses up to an end
// of line sequence.
type Port struct {
	rw          io.ReadWriter
	mode        serial.Mode
	terminator  string
	eol         []byte
	initWrite   string
	readTimeout time.Duration
	log         zerolog.Logger
}

// Option configures a Port.
type Option func(*Port)

func WithBaudRate(baud int) Option { return func(p *Port) { p.mode.BaudRate = baud } }

func WithParity(parity serial.Parity) Option { return func(p *Port) { p.mode.Parity = parity } }

func WithDataBits(bits int) Option { return func(p *Port) { p.mode.DataBits = bits } }

// WithTerminator sets the sequence appended to every command.
func WithTerminator(t string) Option { return func(p *Port) { p.terminator = t } }

// WithEOL sets the sequence that ends a response.
func WithEOL(eol string) Option { return func(p *Port) { p.eol = []byte(eol) } }

// WithInitWrite sends cmd once the port is open, for instruments that need
// to be switched to remote mode first.
func WithInitWrite(cmd string) Option { return func(p *Port) { p.initWrite = cmd } }

// WithReadTimeout bounds the wait for each response byte.
func WithReadTimeout(d time.Duration) Option { return func(p *Port) { p.readTimeout = d } }

func WithLogger(l zerolog.Logger) Option { return func(p *Port) { p.log = l } }

func newPort(opts []Option) *Port {
	p := &Port{
		mode: serial.Mode{
			BaudRate: DefaultBaudRate,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		},
		terminator:  DefaultTerminator,
		eol:         []byte(DefaultEOL),
		readTimeout: DefaultReadTimeout,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open opens the serial device name.
func Open(name string, opts ...Option) (*Port, error) {
	p := newPort(opts)
	sp, err := serial.Open(name, &p.mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := sp.SetReadTimeout(p.readTimeout); err != nil {
		sp.Close()
		return nil, err
	}
	if err := sp.ResetInputBuffer(); err != nil {
		sp.Close()
		return nil, err
	}
	p.rw = sp
	p.log.Info().Str("port", name).Int("baud", p.mode.BaudRate).Msg("serial port open")
	if err := p.init(); err != nil {
		sp.Close()
		return nil, err
	}
	return p, nil
}

// New wraps an already open connection.
func New(rw io.ReadWriter, opts ...Option) (*Port, error) {
	p := newPort(opts)
	p.rw = rw
	if err := p.init(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Port) init() error {
	if p.initWrite == "" {
		return nil
	}
	return p.Write(p.initWrite)
}

// Write sends cmd followed by the terminator.
func (p *Port) Write(cmd string) error {
	p.log.Debug().Str("cmd", cmd).Msg("serial write")
	_, err := io.WriteString(p.rw, cmd+p.terminator)
	return err
}

// Ask writes cmd and reads the response. The response ends at the end of
// line sequence, which is kept, or when a read times out.
func (p *Port) Ask(cmd string) (string, error) {
	if err := p.Write(cmd); err != nil {
		return "", err
	}
	line, err := p.readLine()
	p.log.Debug().Str("cmd", cmd).Str("resp", line).Msg("serial ask")
	return line, err
}

func (p *Port) readLine() (string, error) {
	var line []byte
	b := make([]byte, 1)
	for {
		n, err := p.rw.Read(b)
		if n > 0 {
			line = append(line, b[0])
			if bytes.HasSuffix(line, p.eol) {
				break
			}
			continue
		}
		// a timed out serial read returns 0, nil
		if err == nil || errors.Is(err, io.EOF) {
			break
		}
		return string(line), err
	}
	return string(line), nil
}

// Close closes the underlying port when it is an io.Closer.
func (p *Port) Close() error {
	if c, ok := p.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
