// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package prologix

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lucask07/instrbuilder"
	"github.com/lucask07/instrbuilder/lib/block"
)

// bus is an in-memory Prologix: writes are recorded and reads come from
// the canned replies.
type bus struct {
	sent    bytes.Buffer
	replies *strings.Reader
	closed  bool
}

func newBus(replies string) *bus { return &bus{replies: strings.NewReader(replies)} }

func (b *bus) Write(p []byte) (int, error) { return b.sent.Write(p) }
func (b *bus) Read(p []byte) (int, error) { return b.replies.Read(p) }

func (b *bus) Close() error {
	b.closed = true
	return nil
}

func (b *bus) lines() []string {
	return strings.Split(strings.TrimSuffix(b.sent.String(), "\n"), "\n")
}

var (
	_ instrbuilder.Transport  = (*Controller)(nil)
	_ instrbuilder.BlockAsker = (*Controller)(nil)
)

func TestNewControllerInit(t *testing.T) {
	tests := []struct {
		name string
		opts []ControllerOption
		want []string
	}{
		{
			name: "prologix",
			want: []string{"++verbose 0", "++savecfg 0", "++addr 4", "++mode 1", "++auto 0", "++eoi 1", "++eos 0",
				"++read_tmo_ms 500", "++eot_char 10", "++eot_enable 1", "++savecfg 1"},
		},
		{
			name: "ar488 with secondary",
			opts: []ControllerOption{WithAR488(), WithSecondaryAddress(101), WithReadTimeout(time.Second)},
			want: []string{"++addr 4 101", "++mode 1", "++auto 0", "++eoi 1", "++eos 0",
				"++read_tmo_ms 1000", "++eot_char 10", "++eot_enable 1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBus("")
			_, err := NewController(b, 4, false, tt.opts...)
			require.NoError(t, err)
			require.Equal(t, tt.want, b.lines())
		})
	}
}

func TestNewControllerAddressValidation(t *testing.T) {
	_, err := NewController(newBus(""), 31, false)
	require.ErrorContains(t, err, "invalid primary address")
	_, err = NewController(newBus(""), 4, false, WithSecondaryAddress(12))
	require.ErrorContains(t, err, "invalid secondary address")

	b := newBus("")
	_, err = NewController(b, 4, true)
	require.NoError(t, err)
	require.Equal(t, "++clr", b.lines()[len(b.lines())-1])
}

func TestWriteAndAsk(t *testing.T) {
	b := newBus("KEYSIGHT,33220A\n")
	c, err := NewController(b, 6, false)
	require.NoError(t, err)
	b.sent.Reset()

	require.NoError(t, c.Write("  OUTP OFF \n"))
	require.NoError(t, c.Command("APPL:SIN %d,%.1f", 100, 0.5))
	id, err := c.Ask("*IDN?")
	require.NoError(t, err)
	require.Equal(t, "KEYSIGHT,33220A", id)
	require.Equal(t, []string{"OUTP OFF", "APPL:SIN 100,0.5", "*IDN?", "++read eoi"}, b.lines())
}

func TestReadAfterWriteSkipsRead(t *testing.T) {
	b := newBus("1\n+1.0\n")
	c, err := NewController(b, 6, false)
	require.NoError(t, err)
	require.NoError(t, c.SetReadAfterWrite(true))
	auto, err := c.ReadAfterWrite()
	require.NoError(t, err)
	require.True(t, auto)

	b.sent.Reset()
	v, err := c.Ask("VOLT?")
	require.NoError(t, err)
	require.Equal(t, "+1.0", v)
	require.Equal(t, []string{"VOLT?"}, b.lines())
}

func TestAskBlock(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n")
	b := newBus(string(block.Encode(png)) + "\n")
	c, err := NewController(b, 7, false)
	require.NoError(t, err)
	data, err := c.AskBlock(":DISP:DATA? PNG, COL")
	require.NoError(t, err)
	require.Equal(t, png, data)
}

func TestControllerQueries(t *testing.T) {
	b := newBus("Prologix GPIB-USB Controller version 6.101\n500\n0\n3\n")
	c, err := NewController(b, 7, false)
	require.NoError(t, err)

	ver, err := c.Version()
	require.NoError(t, err)
	require.Equal(t, "Prologix GPIB-USB Controller version 6.101", ver)

	tmo, err := c.ReadTimeout()
	require.NoError(t, err)
	require.Equal(t, 500*time.Millisecond, tmo)

	srq, err := c.ServiceRequest()
	require.NoError(t, err)
	require.False(t, srq)

	term, err := c.GPIBTermination()
	require.NoError(t, err)
	require.Equal(t, AppendNothing, term)
	require.Equal(t, "none", term.String())
}

func TestWriteDelay(t *testing.T) {
	b := newBus("")
	c, err := NewController(b, 7, false, WithWriteDelay(5*time.Millisecond), WithAR488())
	require.NoError(t, err)
	start := time.Now()
	require.NoError(t, c.Write("A"))
	require.NoError(t, c.Write("B"))
	require.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestClose(t *testing.T) {
	b := newBus("")
	c, err := NewController(b, 7, false)
	require.NoError(t, err)
	require.NoError(t, c.ClearDevice())
	require.NoError(t, c.FrontPanel(false))
	require.NoError(t, c.Close())
	require.True(t, b.closed)
	lines := b.lines()
	require.Equal(t, []string{"++clr", "++llo", "++loc"}, lines[len(lines)-3:])
}
