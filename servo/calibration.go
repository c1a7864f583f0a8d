// calibration.go - servo calibration definitions and persistence
package servo

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Calibration is the persisted definition of one servo unit. The JSON
// schema matches the servo definition files kept by the controlling
// host, keyed by servo name.
type Calibration struct {
	Name         string `json:"name"`
	Pin          int    `json:"pin"`
	ControllerID int    `json:"controller_id"`
	Min          int    `json:"min"`
	Max          int    `json:"max"`
	Inverted     bool   `json:"inverted"`
	AutoDetachMs int    `json:"auto_detach_ms"`
	LastPosition int    `json:"last_position"`

	// PowerPin is the relay pin of the unit's power group. It is stored
	// with the unit but switching it is the host's job.
	PowerPin int `json:"power_pin,omitempty"`
}

// Config converts the calibration to the runtime configuration consumed
// by Configure.
func (c *Calibration) Config() Config {
	return Config{
		Name:         c.Name,
		Pin:          c.Pin,
		ControllerID: c.ControllerID,
		Min:          c.Min,
		Max:          c.Max,
		Inverted:     c.Inverted,
		AutoDetach:   time.Duration(c.AutoDetachMs) * time.Millisecond,
		LastPosition: c.LastPosition,
	}
}

// Validate checks the calibration parameters.
func (c *Calibration) Validate() error {
	cfg := c.Config()
	return cfg.Validate()
}

// Clone creates a copy of the calibration.
func (c *Calibration) Clone() *Calibration {
	clone := *c
	return &clone
}

// String returns a one-line summary of the calibration.
func (c *Calibration) String() string {
	direction := "normal"
	if c.Inverted {
		direction = "inverted"
	}
	return fmt.Sprintf("%s: pin %d range[%d-%d] %s autoDetach=%dms lastPos=%d",
		c.Name, c.Pin, c.Min, c.Max, direction, c.AutoDetachMs, c.LastPosition)
}

// LoadCalibrations loads servo definitions from a JSON file keyed by
// servo name. Entries without an explicit name inherit their key.
func LoadCalibrations(filename string) (map[string]*Calibration, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}

	var cals map[string]*Calibration
	if err := json.Unmarshal(data, &cals); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file: %w", err)
	}

	for name, cal := range cals {
		if cal.Name == "" {
			cal.Name = name
		}
		if err := cal.Validate(); err != nil {
			return nil, fmt.Errorf("calibration %q: %w", name, err)
		}
	}
	return cals, nil
}

// SaveCalibrations writes servo definitions to a JSON file.
func SaveCalibrations(filename string, cals map[string]*Calibration) error {
	data, err := json.MarshalIndent(cals, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode calibrations: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	return nil
}
