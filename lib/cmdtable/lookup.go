package cmdtable

import (
	"io"
	"strconv"
	"strings"

	"github.com/lucask07/instrbuilder"
)

// LookupRow is one row of a lookup table.
type LookupRow struct {
	Line int
	// Command owns the row. It is blank on continuation rows until
	// ForwardFill runs.
	Command string
	Label   any
	Wire    any
}

// ReadLookups reads the rows of a lookup table. Labels that look numeric
// are parsed as float64; wire values as int, float64 or string.
func ReadLookups(r io.Reader) ([]LookupRow, error) {
	records, err := readRecords(r, "command", "name", "value")
	if err != nil {
		return nil, err
	}
	rows := make([]LookupRow, 0, len(records))
	for _, rec := range records {
		cmd := rec.get("command")
		if cmd == "nan" {
			cmd = ""
		}
		rows = append(rows, LookupRow{
			Line:    rec.line,
			Command: cmd,
			Label:   parseLabel(rec.get("name")),
			Wire:    instrbuilder.ParseScalar(rec.get("value")),
		})
	}
	return rows, nil
}

func parseLabel(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// ForwardFill returns a copy of rows where every blank Command takes the
// Command of the row before it. Rows before the first named row stay blank.
func ForwardFill(rows []LookupRow) []LookupRow {
	out := make([]LookupRow, len(rows))
	current := ""
	for i, r := range rows {
		if c := strings.TrimSpace(r.Command); c != "" {
			current = c
		}
		r.Command = current
		out[i] = r
	}
	return out
}

// GroupLookups builds one lookup per command from forward-filled rows,
// keeping row order. Rows without a command are ignored.
func GroupLookups(rows []LookupRow) map[string]instrbuilder.Lookup {
	groups := map[string]instrbuilder.Lookup{}
	for _, r := range rows {
		if r.Command == "" {
			continue
		}
		groups[r.Command] = groups[r.Command].Set(r.Label, r.Wire)
	}
	return groups
}
