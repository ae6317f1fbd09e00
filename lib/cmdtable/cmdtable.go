// Package cmdtable loads instrument command tables, lookup tables and
// register maps from CSV files.
//
// A command table has a header row naming its columns:
//
//	name, ascii_str, ascii_str_get, getter, getter_type, setter,
//	setter_type, setter_range, doc, subsystem, getter_inputs,
//	setter_inputs, is_config
//
// Only name and ascii_str are required. Tables may add the boolean
// columns returns_image and returns_array. The optional lookup table has the
// columns command, name and value; the command column only needs to be
// filled on the first row of each group.
package cmdtable

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/lucask07/instrbuilder"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

type loader struct {
	strict     bool
	converters instrbuilder.Converters
	log        zerolog.Logger
	errs       error
}

// Option configures loading.
type Option func(*loader)

// WithStrict turns the problems that are otherwise logged and defaulted
// into errors: unrecognized boolean spellings, malformed ranges, unknown
// getter types, duplicate command names and lookup rows without a command.
// Every problem found is reported.
func WithStrict() Option {
	return func(l *loader) { l.strict = true }
}

// WithConverters sets the conversions getter_type names resolve against.
// The default is instrbuilder.DefaultConverters().
func WithConverters(c instrbuilder.Converters) Option {
	return func(l *loader) { l.converters = c }
}

// WithLogger sets the logger for warnings. The default discards them.
func WithLogger(log zerolog.Logger) Option {
	return func(l *loader) { l.log = log }
}

func newLoader(opts []Option) *loader {
	l := &loader{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	if l.converters == nil {
		l.converters = instrbuilder.DefaultConverters()
	}
	return l
}

// problem logs a recoverable table problem, or records it in strict mode.
func (l *loader) problem(line int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.strict {
		l.errs = multierr.Append(l.errs, fmt.Errorf("line %d: %s", line, msg))
		return
	}
	l.log.Warn().Int("line", line).Msg(msg)
}

func (l *loader) bool(line int, column, s string) bool {
	v, known := parseBool(s)
	if !known {
		l.problem(line, "%s %q is not a boolean, using false", column, s)
	}
	return v
}

// LoadFiles loads the command table at cmdPath and the lookup table at
// lookupPath. An empty or missing lookup file means no lookups.
func LoadFiles(cmdPath, lookupPath string, opts ...Option) (*instrbuilder.Table, error) {
	cmds, err := os.Open(cmdPath)
	if err != nil {
		return nil, err
	}
	defer cmds.Close()

	var lookups io.Reader
	if lookupPath != "" {
		f, err := os.Open(lookupPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			defer f.Close()
			lookups = f
		}
	}
	t, err := Load(cmds, lookups, opts...)
	if err != nil {
		var errs error
		for _, e := range multierr.Errors(err) {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", cmdPath, e))
		}
		return nil, errs
	}
	return t, nil
}

// Load reads a command table and an optional lookup table.
func Load(commands, lookups io.Reader, opts ...Option) (*instrbuilder.Table, error) {
	l := newLoader(opts)

	groups := map[string]instrbuilder.Lookup{}
	if lookups != nil {
		rows, err := ReadLookups(lookups)
		if err != nil {
			return nil, fmt.Errorf("lookup table: %w", err)
		}
		rows = ForwardFill(rows)
		for _, r := range rows {
			if r.Command == "" {
				l.problem(r.Line, "lookup row %v precedes the first command name, dropped", r.Label)
			}
		}
		groups = GroupLookups(rows)
	}

	records, err := readRecords(commands, "name", "ascii_str")
	if err != nil {
		return nil, err
	}
	table := instrbuilder.NewTable()
	for _, rec := range records {
		c, err := l.command(rec, groups)
		if err != nil {
			return nil, err
		}
		if table.Add(c) {
			l.problem(rec.line, "duplicate command %s replaces the earlier definition", c.Name())
		}
	}
	for name := range groups {
		if _, ok := table.Command(name); !ok {
			l.log.Warn().Str("command", name).Msg("lookup group has no command")
		}
	}
	if l.errs != nil {
		return nil, l.errs
	}
	return table, nil
}

func (l *loader) command(rec record, groups map[string]instrbuilder.Lookup) (*instrbuilder.Command, error) {
	name := rec.get("name")
	if name == "" {
		return nil, fmt.Errorf("line %d: empty command name", rec.line)
	}

	getterType := rec.get("getter_type")
	conv, known := l.converters.Resolve(getterType)
	if !known && getterType != "" && getterType != "nan" {
		l.problem(rec.line, "unknown getter_type %q for %s, using %s", getterType, name, conv.Name)
	}

	limits, err := ParseLimits(rec.get("setter_range"))
	if err != nil {
		l.problem(rec.line, "setter_range %q for command %s not of proper form: %v", rec.get("setter_range"), name, err)
		limits = nil
	}

	spec := instrbuilder.CommandSpec{
		Name:         name,
		SetTemplate:  rec.raw("ascii_str"),
		GetTemplate:  rec.raw("ascii_str_get"),
		Getter:       l.bool(rec.line, "getter", rec.get("getter")),
		Setter:       l.bool(rec.line, "setter", rec.get("setter")),
		Converter:    conv,
		SetterType:   rec.get("setter_type"),
		Limits:       limits,
		Lookup:       groups[name],
		Doc:          rec.get("doc"),
		Subsystem:    rec.get("subsystem"),
		GetterInputs: l.count(rec, "getter_inputs"),
		SetterInputs: l.count(rec, "setter_inputs"),
		IsConfig:     l.bool(rec.line, "is_config", rec.get("is_config")),
		ReturnsImage: l.bool(rec.line, "returns_image", rec.get("returns_image")),
		ReturnsArray: conv.Array || l.bool(rec.line, "returns_array", rec.get("returns_array")),
	}
	if strings.TrimSpace(spec.GetTemplate) == "" || strings.TrimSpace(spec.GetTemplate) == "nan" {
		spec.GetTemplate = ""
	}
	if spec.Subsystem == "nan" {
		spec.Subsystem = ""
	}
	c, err := instrbuilder.NewCommand(spec)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", rec.line, err)
	}
	return c, nil
}

// count parses an input count column. Blank cells give -1, which commands
// replace with their default.
func (l *loader) count(rec record, column string) int {
	s := rec.get(column)
	if s == "" || s == "nan" {
		return -1
	}
	switch v := instrbuilder.ParseScalar(s).(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	l.problem(rec.line, "%s %q is not a number", column, s)
	return -1
}

var (
	trueSpellings  = []string{"True", "T", "TRUE", "true"}
	falseSpellings = []string{"False", "F", "FALSE", "false"}
)

// ParseBool reports whether s is one of the spellings True, T, TRUE or
// true. Anything else, including unrecognized tokens, is false.
func ParseBool(s string) bool {
	v, _ := parseBool(s)
	return v
}

// parseBool also reports whether s was a known spelling. Blank cells are
// known and false.
func parseBool(s string) (v, known bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "nan" {
		return false, true
	}
	for _, t := range trueSpellings {
		if s == t {
			return true, true
		}
	}
	for _, f := range falseSpellings {
		if s == f {
			return false, true
		}
	}
	return false, false
}

// record is one CSV row addressed by column name.
type record struct {
	line   int
	fields []string
	cols   map[string]int
}

// raw returns the untrimmed cell of column, or "" when absent.
func (r record) raw(column string) string {
	i, ok := r.cols[column]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

// get returns the trimmed cell of column.
func (r record) get(column string) string {
	return strings.TrimSpace(r.raw(column))
}

func (r record) empty() bool {
	for _, f := range r.fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// readRecords reads a CSV table with a header row. Header names are trimmed
// and blank rows skipped.
func readRecords(r io.Reader, required ...string) ([]record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var out []record
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		rec := record{line: line, fields: fields, cols: cols}
		if rec.empty() {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// LoadRegisters reads a register map with the columns name, address,
// read_write and is_config. Addresses may be decimal or 0x hexadecimal.
func LoadRegisters(r io.Reader) ([]instrbuilder.Register, error) {
	records, err := readRecords(r, "name", "address")
	if err != nil {
		return nil, err
	}
	var (
		regs []instrbuilder.Register
		errs error
	)
	for _, rec := range records {
		addr, err := strconv.ParseUint(rec.get("address"), 0, 16)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("line %d: address %q: %w", rec.line, rec.get("address"), err))
			continue
		}
		regs = append(regs, instrbuilder.Register{
			Name:     rec.get("name"),
			Address:  uint16(addr),
			Access:   instrbuilder.ParseAccess(rec.get("read_write")),
			IsConfig: ParseBool(rec.get("is_config")),
		})
	}
	if errs != nil {
		return nil, errs
	}
	return regs, nil
}

// LoadRegisterFile reads the register map at path.
func LoadRegisterFile(path string) ([]instrbuilder.Register, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	regs, err := LoadRegisters(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return regs, nil
}
