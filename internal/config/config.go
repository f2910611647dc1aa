// Package config loads the shelf layout: which rows exist, which jars are
// assigned to them, and which physical sensor watches which row. Runtime
// knobs (poll interval, broker, addresses) stay on the command line; this
// file describes the installation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/jar-tracker/internal/eventlog"
	"github.com/sweeney/jar-tracker/internal/hub"
	"github.com/sweeney/jar-tracker/internal/serial"
)

// Row is one monitored shelf row and its assigned jars, in shelf order.
type Row struct {
	ID   int      `yaml:"id"`
	Jars []string `yaml:"jars"`
}

// Serial describes the sensor unit's port.
type Serial struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// Config is the full shelf configuration.
type Config struct {
	Serial Serial `yaml:"serial"`
	Rows   []Row  `yaml:"rows"`
	// Sensors maps the two physical sensors to row ids; 0 disables a sensor.
	Sensors     []int `yaml:"sensors"`
	LogCapacity int   `yaml:"log_capacity"`
	HubBuffer   int   `yaml:"hub_buffer"`
}

// Default returns the configuration of the reference installation:
// two rows, sensor A on row 1 and sensor B on row 2.
func Default() Config {
	return Config{
		Serial: Serial{Port: serial.DefaultPort, Baud: serial.DefaultBaud},
		Rows: []Row{
			{ID: 1, Jars: []string{"H004040", "H004041"}},
			{ID: 2, Jars: []string{"R0244", "R0245", "R0246", "R0247", "R47376", "R47346", "R47347"}},
		},
		Sensors:     []int{1, 2},
		LogCapacity: eventlog.DefaultCapacity,
		HubBuffer:   hub.DefaultBufferSize,
	}
}

// Load reads the yaml file at path over the defaults. An empty path yields
// the defaults unchanged. The result is always validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if len(c.Rows) == 0 {
		return fmt.Errorf("config: no rows defined")
	}
	seen := make(map[int]bool, len(c.Rows))
	for _, r := range c.Rows {
		if r.ID < 1 {
			return fmt.Errorf("config: row id %d: ids start at 1", r.ID)
		}
		if seen[r.ID] {
			return fmt.Errorf("config: duplicate row id %d", r.ID)
		}
		seen[r.ID] = true
	}
	if len(c.Sensors) > 2 {
		return fmt.Errorf("config: %d sensor mappings, the unit has 2 sensors", len(c.Sensors))
	}
	for i, row := range c.Sensors {
		if row == 0 {
			continue
		}
		if !seen[row] {
			return fmt.Errorf("config: sensor %d mapped to unknown row %d", i+1, row)
		}
	}
	if c.LogCapacity < 0 {
		return fmt.Errorf("config: negative log capacity")
	}
	if c.HubBuffer < 0 {
		return fmt.Errorf("config: negative hub buffer")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("config: serial baud must be positive")
	}
	return nil
}

// RowIDs returns the configured row ids in declaration order.
func (c Config) RowIDs() []int {
	ids := make([]int, 0, len(c.Rows))
	for _, r := range c.Rows {
		ids = append(ids, r.ID)
	}
	return ids
}

// RowJars returns the jar assignment table.
func (c Config) RowJars() map[int][]string {
	out := make(map[int][]string, len(c.Rows))
	for _, r := range c.Rows {
		out[r.ID] = append([]string(nil), r.Jars...)
	}
	return out
}

// SensorRows returns the sensor→row mapping as a fixed pair.
func (c Config) SensorRows() [2]int {
	var out [2]int
	copy(out[:], c.Sensors)
	return out
}
