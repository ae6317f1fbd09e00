// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package visa opens instruments by VISA resource name. Raw socket
// resources (TCPIP0::host::port::SOCKET) are handled directly; USB, GPIB
// and VXI-11 resources need NI-VISA and a build with -tags visa.
package visa

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lucask07/instrbuilder/lib/block"
)

const DefaultTimeout = 5 * time.Second

// ErrNoNative is returned for resources that need NI-VISA when the binary
// was built without it.
var ErrNoNative = errors.New("resource needs NI-VISA: rebuild with -tags visa")

// Resource is a parsed VISA resource name.
type Resource struct {
	Name  string
	Iface string // TCPIP, USB, GPIB, ASRL
	Board int
	Host  string
	Port  int
	Class string // INSTR or SOCKET
}

// ParseResource splits a VISA resource name.
func ParseResource(name string) (Resource, error) {
	parts := strings.Split(strings.TrimSpace(name), "::")
	if len(parts) < 2 {
		return Resource{}, fmt.Errorf("invalid resource name %q", name)
	}
	r := Resource{Name: name, Class: strings.ToUpper(parts[len(parts)-1])}
	head := strings.ToUpper(parts[0])
	for _, iface := range []string{"TCPIP", "USB", "GPIB", "ASRL"} {
		if strings.HasPrefix(head, iface) {
			r.Iface = iface
			if digits := head[len(iface):]; digits != "" {
				b, err := strconv.Atoi(digits)
				if err != nil {
					return Resource{}, fmt.Errorf("invalid board in %q", name)
				}
				r.Board = b
			}
			break
		}
	}
	if r.Iface == "" {
		return Resource{}, fmt.Errorf("unknown interface in %q", name)
	}
	if r.Class == "SOCKET" {
		if r.Iface != "TCPIP" || len(parts) != 4 {
			return Resource{}, fmt.Errorf("invalid socket resource %q", name)
		}
		port, err := strconv.Atoi(parts[2])
		if err != nil {
			return Resource{}, fmt.Errorf("invalid port in %q", name)
		}
		r.Host, r.Port = parts[1], port
	} else if r.Iface == "TCPIP" {
		r.Host = parts[1]
	}
	return r, nil
}

// Conn is a transport to a VISA instrument.
type Conn interface {
	Write(cmd string) error
	Ask(cmd string) (string, error)
	AskBlock(cmd string) ([]byte, error)
	Close() error
}

type options struct {
	timeout time.Duration
	log     zerolog.Logger
}

// Option configures Open.
type Option func(*options)

func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = l } }

// Open opens the instrument at resource name.
func Open(name string, opts ...Option) (Conn, error) {
	o := options{timeout: DefaultTimeout, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	r, err := ParseResource(name)
	if err != nil {
		return nil, err
	}
	if r.Class == "SOCKET" {
		return DialSocket(net.JoinHostPort(r.Host, strconv.Itoa(r.Port)), o.timeout, o.log)
	}
	return openNative(r, o)
}

// Socket talks to an instrument over a raw TCP socket, newline terminated.
type Socket struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
	log     zerolog.Logger
}

// DialSocket connects to addr (host:port).
func DialSocket(addr string, timeout time.Duration, log zerolog.Logger) (*Socket, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	log.Info().Str("addr", addr).Msg("socket open")
	return &Socket{conn: conn, r: bufio.NewReader(conn), timeout: timeout, log: log}, nil
}

func (s *Socket) deadline() {
	if s.timeout > 0 {
		s.conn.SetDeadline(time.Now().Add(s.timeout))
	}
}

func (s *Socket) Write(cmd string) error {
	s.deadline()
	s.log.Debug().Str("cmd", cmd).Msg("socket write")
	_, err := io.WriteString(s.conn, cmd+"\n")
	return err
}

// Ask writes cmd and returns the response line without its newline.
func (s *Socket) Ask(cmd string) (string, error) {
	if err := s.Write(cmd); err != nil {
		return "", err
	}
	line, err := s.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read response to %q: %w", cmd, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// AskBlock writes cmd and reads an IEEE 488.2 block response.
func (s *Socket) AskBlock(cmd string) ([]byte, error) {
	if err := s.Write(cmd); err != nil {
		return nil, err
	}
	return block.Read(s.r)
}

func (s *Socket) Close() error { return s.conn.Close() }
