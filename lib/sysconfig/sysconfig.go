// Package sysconfig reads and writes the system configuration file that
// names the instruments of a bench, where their command tables live and how
// to reach them.
//
// An example file:
//
//	csv_directory: /home/lab/instrbuilder/instruments
//	cmd_name: commands.csv
//	lookup_name: lookup.csv
//	logging:
//	  level: info
//	  format: text
//	instruments:
//	  osc:
//	    address:
//	      visa: USB0::0x0957::0x17A9::MY52160418::INSTR
//	    csv_folder: keysight/oscilloscope/MSOX3000
//	    profile: KeysightOscilloscope
//	  lia:
//	    address:
//	      serial: /dev/ttyUSB0
//	    csv_folder: srs/SR810
//	    profile: SRSLockIn
//	    connection:
//	      baud_rate: 19200
//	      eol: "\r"
package sysconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCmdName    = "commands.csv"
	DefaultLookupName = "lookup.csv"
	DefaultFileName   = "config.yaml"
	homeDir           = ".instrbuilder"
)

// Duration wraps time.Duration to support YAML strings like "500ms".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// LokiConfig configures optional Loki log shipping.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels,omitempty"`
}

// LoggingConfig selects the log level and format ("json" or "text").
type LoggingConfig struct {
	Level  string     `yaml:"level,omitempty"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki,omitempty"`
}

// Connection holds transport settings. Zero values take the transport
// defaults; GPIBAddress is a pointer because primary address 0 is valid.
type Connection struct {
	BaudRate      int      `yaml:"baud_rate,omitempty"`
	Terminator    string   `yaml:"terminator,omitempty"`
	EOL           string   `yaml:"eol,omitempty"`
	InitWrite     string   `yaml:"init_write,omitempty"`
	Timeout       Duration `yaml:"timeout,omitempty"`
	GPIBAddress   *int     `yaml:"gpib_address,omitempty"`
	GPIBSecondary int      `yaml:"gpib_secondary,omitempty"`
	WriteDelay    Duration `yaml:"write_delay,omitempty"`
}

// Instrument is one named instrument.
type Instrument struct {
	// Address maps a single transport kind (serial, prologix or visa) to
	// the port or resource name.
	Address    map[string]string `yaml:"address"`
	CSVFolder  string            `yaml:"csv_folder"`
	Profile    string            `yaml:"profile,omitempty"`
	Connection Connection        `yaml:"connection,omitempty"`
}

// Endpoint returns the single transport kind and address of i.
func (i Instrument) Endpoint() (kind, addr string, err error) {
	switch len(i.Address) {
	case 0:
		return "", "", nil
	case 1:
		for k, v := range i.Address {
			return k, v, nil
		}
	}
	kinds := make([]string, 0, len(i.Address))
	for k := range i.Address {
		kinds = append(kinds, k)
	}
	return "", "", fmt.Errorf("multiple address kinds: %s", strings.Join(kinds, ", "))
}

// Config is the system configuration.
type Config struct {
	CSVDirectory string                `yaml:"csv_directory"`
	CmdName      string                `yaml:"cmd_name"`
	LookupName   string                `yaml:"lookup_name"`
	Logging      LoggingConfig         `yaml:"logging,omitempty"`
	Instruments  map[string]Instrument `yaml:"instruments,omitempty"`
}

// Default returns a configuration reading command tables from csvDir.
func Default(csvDir string) Config {
	return Config{
		CSVDirectory: csvDir,
		CmdName:      DefaultCmdName,
		LookupName:   DefaultLookupName,
		Logging:      LoggingConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath returns ~/.instrbuilder/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, homeDir, DefaultFileName), nil
}

// Load reads the configuration at path. Missing file names take their
// defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.CmdName == "" {
		cfg.CmdName = DefaultCmdName
	}
	if cfg.LookupName == "" {
		cfg.LookupName = DefaultLookupName
	}
	return cfg, nil
}

// Save writes cfg to path. An existing file is first renamed to
// <name>_backup.yaml.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		backup := strings.TrimSuffix(path, filepath.Ext(path)) + "_backup.yaml"
		if err := os.Rename(path, backup); err != nil {
			return fmt.Errorf("backup %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// AddInstrument adds or replaces the instrument called name.
func (c *Config) AddInstrument(name string, inst Instrument) error {
	if name == "" {
		return errors.New("instrument name is empty")
	}
	if _, _, err := inst.Endpoint(); err != nil {
		return fmt.Errorf("instrument %s: %w", name, err)
	}
	if c.Instruments == nil {
		c.Instruments = map[string]Instrument{}
	}
	c.Instruments[name] = inst
	return nil
}

// Instrument returns the instrument called name.
func (c Config) Instrument(name string) (Instrument, error) {
	inst, ok := c.Instruments[name]
	if !ok {
		return Instrument{}, fmt.Errorf("%s is not a named instrument in the configuration file", name)
	}
	return inst, nil
}

// TableFiles returns the command and lookup table paths of a folder below
// the CSV directory.
func (c Config) TableFiles(folder string) (cmdPath, lookupPath string) {
	dir := filepath.Join(c.CSVDirectory, folder)
	return filepath.Join(dir, c.CmdName), filepath.Join(dir, c.LookupName)
}
