package sysconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".instrbuilder", DefaultFileName)

	cfg := Default("/lab/instruments")
	require.NoError(t, cfg.AddInstrument("osc", Instrument{
		Address:   map[string]string{"visa": "USB0::0x0957::0x17A9::MY52160418::INSTR"},
		CSVFolder: "keysight/oscilloscope/MSOX3000",
		Profile:   "KeysightOscilloscope",
	}))
	require.NoError(t, cfg.AddInstrument("lia", Instrument{
		Address:   map[string]string{"serial": "/dev/ttyUSB0"},
		CSVFolder: "srs/SR810",
		Connection: Connection{
			BaudRate: 19200,
			EOL:      "\r",
			Timeout:  Duration{500 * time.Millisecond},
		},
	}))
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, got)

	cmds, lookup := got.TableFiles(got.Instruments["lia"].CSVFolder)
	require.Equal(t, filepath.Join("/lab/instruments", "srs/SR810", "commands.csv"), cmds)
	require.Equal(t, filepath.Join("/lab/instruments", "srs/SR810", "lookup.csv"), lookup)
}

func TestSaveKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)

	first := Default("/a")
	require.NoError(t, Save(path, first))
	second := Default("/b")
	require.NoError(t, Save(path, second))

	backup, err := Load(filepath.Join(dir, "config_backup.yaml"))
	require.NoError(t, err)
	require.Equal(t, "/a", backup.CSVDirectory)

	current, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/b", current.CSVDirectory)
}

func TestLoadDefaultsAndDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
csv_directory: /lab
instruments:
  dmm:
    address:
      prologix: /dev/ttyACM0
    csv_folder: keysight/dmm
    connection:
      gpib_address: 22
      write_delay: 100ms
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultCmdName, cfg.CmdName)
	require.Equal(t, DefaultLookupName, cfg.LookupName)

	dmm, err := cfg.Instrument("dmm")
	require.NoError(t, err)
	kind, addr, err := dmm.Endpoint()
	require.NoError(t, err)
	require.Equal(t, "prologix", kind)
	require.Equal(t, "/dev/ttyACM0", addr)
	require.NotNil(t, dmm.Connection.GPIBAddress)
	require.Equal(t, 22, *dmm.Connection.GPIBAddress)
	require.Equal(t, 100*time.Millisecond, dmm.Connection.WriteDelay.Duration)

	_, err = cfg.Instrument("osc")
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("connection:\n  timeout: soon\ninstruments:\n  x:\n    connection:\n      timeout: soon\n"), 0o644))
	_, err = Load(path)
	require.ErrorContains(t, err, "parse duration")
}

func TestAddInstrumentValidates(t *testing.T) {
	var cfg Config
	require.Error(t, cfg.AddInstrument("", Instrument{}))
	require.Error(t, cfg.AddInstrument("x", Instrument{Address: map[string]string{"visa": "a", "serial": "b"}}))
	require.NoError(t, cfg.AddInstrument("x", Instrument{}))
	require.Contains(t, cfg.Instruments, "x")
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("HOME", "/home/lab")
	p, err := DefaultPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/home/lab", ".instrbuilder", "config.yaml"), p)
}
