// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

//go:build visa

package visa

import (
	"bytes"
	"fmt"
	"strings"

	vi "github.com/jpoirier/visa"

	"github.com/lucask07/instrbuilder/lib/block"
)

const readSize = 1 << 20

// Native is an NI-VISA session.
type Native struct {
	name  string
	instr vi.Object
	rm    vi.Session
	o     options
}

func openNative(r Resource, o options) (Conn, error) {
	rm, status := vi.OpenDefaultRM()
	if status < vi.SUCCESS {
		return nil, fmt.Errorf("could not open a session to the VISA resource manager: %v", status)
	}
	instr, status := rm.Open(r.Name, vi.NULL, vi.NULL)
	if status < vi.SUCCESS {
		rm.Close()
		return nil, fmt.Errorf("open %s: VISA status %v", r.Name, status)
	}
	o.log.Info().Str("resource", r.Name).Msg("visa open")
	return &Native{name: r.Name, instr: instr, rm: rm, o: o}, nil
}

func (n *Native) Write(cmd string) error {
	b := []byte(cmd + "\n")
	n.o.log.Debug().Str("cmd", cmd).Msg("visa write")
	if _, status := n.instr.Write(b, uint32(len(b))); status < vi.SUCCESS {
		return fmt.Errorf("write %q to %s: VISA status %v", cmd, n.name, status)
	}
	return nil
}

func (n *Native) read() ([]byte, error) {
	b, _, status := n.instr.Read(readSize)
	if status < vi.SUCCESS {
		return nil, fmt.Errorf("read from %s: VISA status %v", n.name, status)
	}
	return b, nil
}

func (n *Native) Ask(cmd string) (string, error) {
	if err := n.Write(cmd); err != nil {
		return "", err
	}
	b, err := n.read()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func (n *Native) AskBlock(cmd string) ([]byte, error) {
	if err := n.Write(cmd); err != nil {
		return nil, err
	}
	b, err := n.read()
	if err != nil {
		return nil, err
	}
	return block.Read(bytes.NewReader(b))
}

func (n *Native) Close() error {
	n.instr.Close()
	n.rm.Close()
	return nil
}
