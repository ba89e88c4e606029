package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/danmuck/atbench/internal/rules"
)

// ParseLimitsYAML decodes a limits document:
//
//	Battery voltage: {min: 4900, max: 5100}
//	Network monitor:
//	  - {field: rsrp_dbm, min: -106}
//	  - {field: reg_status, equals: 1}
func ParseLimitsYAML(data []byte) (rules.Set, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: limits yaml: %v", ErrInvalidConfig, err)
	}
	set, err := rules.ParseLimits(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return set, nil
}

// MarshalLimitsYAML renders set in the form ParseLimitsYAML reads.
func MarshalLimitsYAML(set rules.Set) ([]byte, error) {
	return yaml.Marshal(set.Map())
}

// ExampleLimits are the production thresholds for an nRF9160 board with
// modem firmware 1.3.7.
func ExampleLimits() map[string]any {
	return map[string]any{
		"Battery voltage":   map[string]any{"min": 4900, "max": 5100},
		"Modem temperature": map[string]any{"max": 30},
		"Network monitor": []any{
			map[string]any{"field": "rsrp_dbm", "min": -106},
			map[string]any{"field": "snr_db", "min": 15},
			map[string]any{"field": "reg_status", "equals": 1},
		},
		"Network registration": map[string]any{"equals": 1},
		"Manufacturer":         map[string]any{"equals": "Nordic Semiconductor ASA"},
		"Firmware version":     map[string]any{"equals": "mfw_nrf9160_1.3.7"},
		"Model":                map[string]any{"equals": "nRF9160-SICA"},
	}
}
