// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package prologix drives a GPIB instrument through a Prologix (or AR488)
// USB/serial GPIB controller and exposes it as an instrbuilder transport.
package prologix

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gotmc/query"
	"github.com/rs/zerolog"

	"github.com/lucask07/instrbuilder/lib/block"
)

// Controller drives one GPIB instrument through a Prologix (or AR488)
// USB adapter acting as controller-in-charge.
type Controller struct {
	rw               io.ReadWriter
	r                *bufio.Reader
	log              zerolog.Logger
	primaryAddr      int
	hasSecondaryAddr bool
	secondaryAddr    int
	auto             bool
	usbTerm          byte
	eotChar          byte
	readTimeout      time.Duration
	writeDelay       time.Duration
	lastWrite        time.Time
	ar488            bool // compatibility with Arduino AR488; see WithAR488
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// NewController creates a GPIB controller-in-charge for the instrument at
// addr behind the Prologix attached to rw. Enable clear to send the
// Selected Device Clear (SDC) message to the GPIB address.
func NewController(rw io.ReadWriter, addr int, clear bool, opts ...ControllerOption) (*Controller, error) {
	c := Controller{
		rw:          rw,
		r:           bufio.NewReader(rw),
		log:         zerolog.Nop(),
		primaryAddr: addr,
		usbTerm:     '\n',
		eotChar:     '\n',
		readTimeout: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&c)
	}

	if !isPrimaryAddressValid(c.primaryAddr) {
		return nil, fmt.Errorf("invalid primary address %d (must be 0-30)", c.primaryAddr)
	}
	addrCmd := fmt.Sprintf("addr %d", c.primaryAddr)
	if c.hasSecondaryAddr {
		if !isSecondaryAddressValid(c.secondaryAddr) {
			return nil, fmt.Errorf("invalid secondary address %d (must be 96-126)", c.secondaryAddr)
		}
		addrCmd = fmt.Sprintf("addr %d %d", c.primaryAddr, c.secondaryAddr)
	}

	var cmds []string
	if !c.ar488 {
		cmds = append(cmds,
			"verbose 0", // turn off verbosity if on
			"savecfg 0", // do not save configuration parameters in EPROM
		)
	}
	cmds = append(cmds,
		addrCmd,
		"mode 1", // controller mode
		"auto 0", // no read-after-write; address instrument to listen
		"eoi 1",  // assert EOI with last character
		"eos 0",  // GPIB termination CR+LF
		fmt.Sprintf("read_tmo_ms %d", c.readTimeout.Milliseconds()),
		fmt.Sprintf("eot_char %d", c.eotChar),
		"eot_enable 1",
	)
	if !c.ar488 {
		cmds = append(cmds, "savecfg 1")
	}
	if clear {
		cmds = append(cmds, "clr")
	}
	for _, cmd := range cmds {
		if err := c.CommandController(cmd); err != nil {
			return nil, err
		}
	}
	c.log.Debug().Str("addr", addrCmd).Msg("prologix configured")
	return &c, nil
}

// WithSecondaryAddress addresses the instrument with a secondary address
// (96-126).
func WithSecondaryAddress(addr int) ControllerOption {
	return func(c *Controller) {
		c.hasSecondaryAddr = true
		c.secondaryAddr = addr
	}
}

// WithLogger logs controller commands and responses at debug level.
func WithLogger(l zerolog.Logger) ControllerOption { return func(c *Controller) { c.log = l } }

// WithAR488 slightly alters the init commands, for compatibility with the
// Arduino-based AR488: 'verbose 0' is not sent and savecfg is not toggled.
func WithAR488() ControllerOption { return func(c *Controller) { c.ar488 = true } }

// WithWriteDelay spaces consecutive writes at least d apart.
func WithWriteDelay(d time.Duration) ControllerOption {
	return func(c *Controller) { c.writeDelay = d }
}

// WithReadTimeout sets the controller read timeout (1-3000 ms).
func WithReadTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.readTimeout = d }
}

func (c *Controller) write(s string) error {
	if c.writeDelay > 0 {
		if wait := c.writeDelay - time.Since(c.lastWrite); wait > 0 {
			time.Sleep(wait)
		}
		defer func() { c.lastWrite = time.Now() }()
	}
	_, err := io.WriteString(c.rw, s)
	return err
}

// Write sends cmd to the instrument at the current GPIB address. Leading
// and trailing whitespace is removed before the USB terminator is appended.
func (c *Controller) Write(cmd string) error {
	cmd = fmt.Sprintf("%s%c", strings.TrimSpace(cmd), c.usbTerm)
	c.log.Debug().Str("cmd", cmd).Msg("gpib write")
	return c.write(cmd)
}

// Command formats according to a format specifier and sends the result to
// the instrument.
func (c *Controller) Command(format string, a ...any) error {
	if a != nil {
		format = fmt.Sprintf(format, a...)
	}
	return c.Write(format)
}

// Query sends cmd to the instrument and reads its response, including the
// EOT character. When data from host is received over USB, the Prologix
// controller removes all non-escaped LF, CR and ESC characters and appends
// the GPIB terminator set by `eos` before sending the data to instruments.
func (c *Controller) Query(cmd string) (string, error) {
	if err := c.Write(cmd); err != nil {
		return "", fmt.Errorf("error writing command: %w", err)
	}
	if err := c.requestRead(); err != nil {
		return "", err
	}
	s, err := c.r.ReadString(c.eotChar)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	c.log.Debug().Str("cmd", cmd).Str("resp", s).Msg("gpib query")
	return s, err
}

// Ask is Query with the EOT character removed.
func (c *Controller) Ask(cmd string) (string, error) {
	s, err := c.Query(cmd)
	return strings.TrimSuffix(s, string(c.eotChar)), err
}

// AskBlock sends cmd and reads an IEEE 488.2 block response, for example a
// screen capture.
func (c *Controller) AskBlock(cmd string) ([]byte, error) {
	if err := c.Write(cmd); err != nil {
		return nil, fmt.Errorf("error writing command: %w", err)
	}
	if err := c.requestRead(); err != nil {
		return nil, err
	}
	return block.Read(c.r)
}

// requestRead tells the controller to read when read-after-write is off.
func (c *Controller) requestRead() error {
	if c.auto {
		return nil
	}
	if err := c.write(fmt.Sprintf("++read eoi%c", c.usbTerm)); err != nil {
		return fmt.Errorf("error sending `++read eoi` command: %w", err)
	}
	return nil
}

// CommandController sends a ++ command, which the adapter consumes instead of
// forwarding it over GPIB.
func (c *Controller) CommandController(cmd string) error {
	cmd = fmt.Sprintf("++%s%c", strings.ToLower(strings.TrimSpace(cmd)), c.usbTerm)
	c.log.Debug().Str("cmd", cmd).Msg("controller command")
	return c.write(cmd)
}

// QueryController sends a ++ command and returns the adapter's trimmed reply.
func (c *Controller) QueryController(cmd string) (string, error) {
	if err := c.CommandController(cmd); err != nil {
		return "", err
	}
	s, err := c.r.ReadString(c.eotChar)
	c.log.Debug().Str("cmd", cmd).Str("resp", s).Msg("controller query")
	if errors.Is(err, io.EOF) && s != "" {
		err = nil
	}
	return strings.TrimSpace(s), err
}

// Close returns the instrument to front panel control and closes the
// underlying connection when it is an io.Closer.
func (c *Controller) Close() error {
	err := c.FrontPanel(true)
	if closer, ok := c.rw.(io.Closer); ok {
		if cerr := closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// controllerQuerier routes query.Querier calls to the controller itself.
type controllerQuerier struct{ c *Controller }

func (q controllerQuerier) Query(cmd string) (string, error) { return q.c.QueryController(cmd) }

// Version returns the controller version string.
func (c *Controller) Version() (string, error) {
	return query.String(controllerQuerier{c}, "ver")
}

// ReadAfterWrite reports whether the controller reads automatically after
// each write.
func (c *Controller) ReadAfterWrite() (bool, error) {
	auto, err := query.Int(controllerQuerier{c}, "auto")
	return auto != 0, err
}

// SetReadAfterWrite enables or disables read-after-write.
func (c *Controller) SetReadAfterWrite(enable bool) error {
	arg := 0
	if enable {
		arg = 1
	}
	if err := c.CommandController(fmt.Sprintf("auto %d", arg)); err != nil {
		return err
	}
	c.auto = enable
	return nil
}

// ReadTimeout returns the controller read timeout.
func (c *Controller) ReadTimeout() (time.Duration, error) {
	ms, err := query.Int(controllerQuerier{c}, "read_tmo_ms")
	return time.Duration(ms) * time.Millisecond, err
}

// ServiceRequest reports whether the SRQ line is asserted.
func (c *Controller) ServiceRequest() (bool, error) {
	srq, err := query.Int(controllerQuerier{c}, "srq")
	return srq != 0, err
}

// ClearDevice sends the Selected Device Clear (SDC) message.
func (c *Controller) ClearDevice() error { return c.CommandController("clr") }

// FrontPanel enables (local) or disables (remote) front panel control.
func (c *Controller) FrontPanel(local bool) error {
	if local {
		return c.CommandController("loc")
	}
	return c.CommandController("llo")
}

// GpibTerm selects what the adapter appends to instrument commands (++eos).
type GpibTerm int

const (
	AppendCRLF GpibTerm = iota
	AppendCR
	AppendLF
	AppendNothing
)

var gpibTermDesc = map[GpibTerm]string{
	AppendCRLF:    "CR+LF",
	AppendCR:      "CR",
	AppendLF:      "LF",
	AppendNothing: "none",
}

func (term GpibTerm) String() string {
	return gpibTermDesc[term]
}

// GPIBTermination returns the terminator appended to instrument commands.
func (c *Controller) GPIBTermination() (GpibTerm, error) {
	eos, err := query.Int(controllerQuerier{c}, "eos")
	return GpibTerm(eos), err
}

// SetGPIBTermination sets the terminator appended to instrument commands.
func (c *Controller) SetGPIBTermination(term GpibTerm) error {
	return c.CommandController(fmt.Sprintf("eos %d", term))
}

func isPrimaryAddressValid(addr int) bool {
	return addr >= 0 && addr <= 30
}

func isSecondaryAddressValid(addr int) bool {
	return addr >= 96 && addr <= 126
}
