package cmdtable

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucask07/instrbuilder"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestLoadFiles(t *testing.T) {
	table, err := LoadFiles(filepath.Join("testdata", "commands.csv"), filepath.Join("testdata", "lookup.csv"))
	require.NoError(t, err)
	require.Equal(t, []string{"id", "trigger", "freq", "filter"}, table.Names())

	id, _ := table.Command("id")
	require.True(t, id.Getter())
	require.False(t, id.Setter())
	require.Equal(t, "str", id.Converter().Name)
	require.Equal(t, "*IDN?", id.GetTemplate().String())
	require.Equal(t, "system", id.Subsystem())
	require.Equal(t, 0, id.GetterInputs())
	require.Equal(t, 1, id.SetterInputs())

	trg, _ := table.Command("trigger")
	require.False(t, trg.Getter())
	require.True(t, trg.Setter())
	require.Equal(t, 0, trg.SetterInputs())
	require.Nil(t, trg.Limits())
	require.Equal(t, instrbuilder.DefaultConverterName, trg.Converter().Name)

	freq, _ := table.Command("freq")
	require.True(t, freq.Getter())
	require.True(t, freq.Setter())
	require.Equal(t, "FREQ {value}", freq.SetTemplate().String())
	require.Equal(t, instrbuilder.Limits{0, 1e6}, freq.Limits())
	require.True(t, freq.IsConfig())
	require.Empty(t, freq.Lookup())

	filter, _ := table.Command("filter")
	require.Equal(t, instrbuilder.Lookup{{Label: "SLOW", Wire: 0}, {Label: "FAST", Wire: 1}}, filter.Lookup())
	require.Equal(t, instrbuilder.Limits{0, 1}, filter.Limits())
	require.Empty(t, filter.Subsystem())
}

func TestLoadFilesWithoutLookups(t *testing.T) {
	table, err := LoadFiles(filepath.Join("testdata", "commands.csv"), filepath.Join("testdata", "missing.csv"))
	require.NoError(t, err)
	filter, _ := table.Command("filter")
	require.Empty(t, filter.Lookup())
	require.Equal(t, instrbuilder.Limits{"SLOW", "FAST"}, filter.Limits())

	_, err = LoadFiles(filepath.Join("testdata", "missing.csv"), "")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLookupForwardFill(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "lookup.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := ReadLookups(f)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	require.Equal(t, "", rows[1].Command)

	filled := ForwardFill(rows)
	owners := make([]string, 0, len(filled))
	for _, r := range filled {
		owners = append(owners, r.Command)
	}
	require.Equal(t, []string{"filter", "filter", "harmonic", "harmonic", "harmonic"}, owners)
	require.Equal(t, "", rows[1].Command, "input rows are not modified")

	groups := GroupLookups(filled)
	require.Len(t, groups, 2)
	require.Equal(t, instrbuilder.Lookup{
		{Label: 1.0, Wire: 1.0},
		{Label: 2.0, Wire: 2},
		{Label: 3.0, Wire: "THIRD"},
	}, groups["harmonic"])
}

func TestOrphanLookupRows(t *testing.T) {
	cmds := "name,ascii_str,getter,getter_type,setter\nvolt,VOLT,True,int,True\n"
	lookups, err := os.ReadFile(filepath.Join("testdata", "orphans.csv"))
	require.NoError(t, err)

	var logs bytes.Buffer
	table, err := Load(strings.NewReader(cmds), bytes.NewReader(lookups), WithLogger(zerolog.New(&logs)))
	require.NoError(t, err)
	volt, _ := table.Command("volt")
	require.Equal(t, instrbuilder.Lookup{{Label: "LOW", Wire: 0}}, volt.Lookup())
	require.Contains(t, logs.String(), "precedes the first command name")

	_, err = Load(strings.NewReader(cmds), bytes.NewReader(lookups), WithStrict())
	require.ErrorContains(t, err, "precedes the first command name")
}

func TestPermissiveAndStrict(t *testing.T) {
	path := filepath.Join("testdata", "sloppy.csv")

	var logs bytes.Buffer
	table, err := LoadFiles(path, "", WithLogger(zerolog.New(&logs)))
	require.NoError(t, err)
	require.Equal(t, []string{"volt", "curr"}, table.Names())

	volt, _ := table.Command("volt")
	require.Equal(t, "VOLT:LEV {value}", volt.SetTemplate().String(), "last duplicate wins")
	require.Equal(t, instrbuilder.Limits{0, 20}, volt.Limits())
	curr, _ := table.Command("curr")
	require.Equal(t, instrbuilder.DefaultConverterName, curr.Converter().Name)
	require.Nil(t, curr.Limits())

	for _, want := range []string{"not a boolean", "not of proper form", "unknown getter_type", "duplicate command"} {
		require.Contains(t, logs.String(), want)
	}

	_, err = LoadFiles(path, "", WithStrict())
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 4)
}

func TestCustomConverters(t *testing.T) {
	conv := instrbuilder.DefaultConverters()
	conv.Register(instrbuilder.Converter{Name: "quaternion", Convert: func(raw string) (any, error) { return raw, nil }})
	_, err := LoadFiles(filepath.Join("testdata", "sloppy.csv"), "", WithConverters(conv))
	require.NoError(t, err)
}

func TestMissingColumns(t *testing.T) {
	_, err := Load(strings.NewReader("name,getter\nid,True\n"), nil)
	require.ErrorContains(t, err, "ascii_str")
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"True", "T", "TRUE", "true", " True "} {
		require.True(t, ParseBool(s), s)
	}
	for _, s := range []string{"False", "F", "false", "", "yes", "1", "tRuE"} {
		require.False(t, ParseBool(s), s)
	}
}

func TestParseLimits(t *testing.T) {
	tests := []struct {
		in   string
		want instrbuilder.Limits
	}{
		{"", nil},
		{"None", nil},
		{"[0, 10]", instrbuilder.Limits{0, 10}},
		{"(-6, 6)", instrbuilder.Limits{-6, 6}},
		{"[2e-9, 500.5]", instrbuilder.Limits{2e-9, 500.5}},
		{"['POS', 'NEG', 'EITHER']", instrbuilder.Limits{"POS", "NEG", "EITHER"}},
		{`["On (1)", "Off"]`, instrbuilder.Limits{"On (1)", "Off"}},
		{"[True, False]", instrbuilder.Limits{true, false}},
		{"{1, 2, 5}", instrbuilder.Limits{1, 2, 5}},
	}
	for _, tc := range tests {
		got, err := ParseLimits(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"[0, 10", "[volts, 2]", "{'a': 1}"} {
		_, err := ParseLimits(bad)
		require.Error(t, err, bad)
	}
}

func TestLoadRegisters(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "registers.csv"))
	require.NoError(t, err)
	defer f.Close()

	regs, err := LoadRegisters(f)
	require.NoError(t, err)
	require.Equal(t, []instrbuilder.Register{
		{Name: "chip_type", Address: 0x06, Access: instrbuilder.ReadOnly},
		{Name: "filter0", Address: 17, Access: instrbuilder.ReadWrite, IsConfig: true},
		{Name: "dac", Address: 0x30, Access: instrbuilder.WriteOnly},
	}, regs)

	_, err = LoadRegisters(strings.NewReader("name,address\nx,0xGG\n"))
	require.Error(t, err)
}

func TestStrictErrorsNameFile(t *testing.T) {
	path := filepath.Join("testdata", "sloppy.csv")
	_, err := LoadFiles(path, "", WithStrict())
	require.Error(t, err)
	for _, e := range multierr.Errors(err) {
		require.ErrorContains(t, e, path)
	}
}
