// Package cmdlog renders instrument traffic and help text for the console.
package cmdlog

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	CmdStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	R1Style        = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	R2Style        = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	NameStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	SubsystemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	WarnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Divider separates sections of console output.
var Divider = strings.Repeat("=", 80)

func isASCII(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool {
		switch {
		case r < 7:
			return true
		case r > 6 && r < 14:
			return false
		case r > 13 && r < 32:
			return true
		case r > 127:
			return true
		}
		return false
	})
}

// Response formats an instrument reply for display: printable replies are
// quoted, short binary replies are quoted with a hex dump and long binary
// replies are hex only.
func Response(a string) string {
	a = strings.TrimSuffix(a, "\n")
	if len(a) == 1 && a[0] == 0xff {
		// some instruments reply 0xff when the last command has no result
		a = ""
	}
	switch {
	case len(a) == 0:
		return R1Style.Render("<no response>")
	case isASCII(a):
		return fmt.Sprintf("[%d] %q", len(a), a)
	case len(a) < 32:
		return fmt.Sprintf("[%d] %q (% 2x)", len(a), a, []byte(a))
	}
	return fmt.Sprintf("[%d] % 2x", len(a), []byte(a))
}

// Command writes a sent command.
func Command(w io.Writer, cmd string) {
	fmt.Fprintln(w, CmdStyle.Render(cmd))
}

// Banner writes lines between two dividers.
func Banner(w io.Writer, lines ...string) {
	fmt.Fprintln(w, Divider)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	fmt.Fprintln(w, Divider)
}

// Warning writes a highlighted warning line.
func Warning(w io.Writer, format string, a ...any) {
	fmt.Fprintln(w, WarnStyle.Render("Warning: "+fmt.Sprintf(format, a...)))
}

// Conn is the write/ask pair traced by Trace.
type Conn interface {
	Write(cmd string) error
	Ask(cmd string) (string, error)
}

type tracer struct {
	Conn
	w io.Writer
}

// Trace returns a Conn that writes every exchange with c to w.
func Trace(c Conn, w io.Writer) Conn {
	return &tracer{Conn: c, w: w}
}

func (t *tracer) Write(cmd string) error {
	err := t.Conn.Write(cmd)
	if err != nil {
		fmt.Fprintf(t.w, "cmd %s: error %s\n", CmdStyle.Render(cmd), err)
		return err
	}
	fmt.Fprintf(t.w, "%s()\n", CmdStyle.Render(cmd))
	return nil
}

func (t *tracer) Ask(cmd string) (string, error) {
	a, err := t.Conn.Ask(cmd)
	if err != nil {
		fmt.Fprintf(t.w, "query %s: error %s\n", CmdStyle.Render(cmd), err)
		return a, err
	}
	fmt.Fprintf(t.w, "%s: %s\n", CmdStyle.Render(cmd), R2Style.Render(Response(a)))
	return a, nil
}
