package parsers

import "fmt"

// BuiltinConfig tunes the built-in parsers whose thresholds vary by modem
// firmware.
type BuiltinConfig struct {
	RSRPOffset int64
	MinRSRP    int64
}

func DefaultBuiltinConfig() BuiltinConfig {
	return BuiltinConfig{
		RSRPOffset: 140,
		MinRSRP:    -110,
	}
}

// DefaultCommands is the standard modem self-test list.
func DefaultCommands() []string {
	return []string{
		"AT+CFUN=1",
		"AT+CEREG?",
		"AT+CGMI",
		"AT+CGMR",
		"AT+CGMM",
		"AT+CGSN",
		"AT+CIMI",
		"AT%XICCID",
		"AT%XMONITOR",
		"AT%XVBAT",
		"AT%XTEMP?",
		"AT%XSYSTEMMODE?",
		"AT+CFUN=0",
	}
}

// RegisterBuiltins adds the nRF91 AT parsers to r.
func RegisterBuiltins(r *Registry, cfg BuiltinConfig) error {
	builtins := []struct {
		command string
		name    string
		fn      Func
	}{
		{"AT+CFUN=1", "Modem functional", PassIfOK},
		{"AT+CFUN=0", "Modem functional", PassIfOK},
		{"AT+CEREG?", "Network registration", Registration},
		{"AT+CGMI", "Manufacturer", Verbatim},
		{"AT+CGMR", "Firmware version", Verbatim},
		{"AT+CGMM", "Model", Verbatim},
		{"AT+CGSN", "IMEI", Verbatim},
		{"AT+CIMI", "IMSI", Verbatim},
		{"AT%XICCID", "ICCID", VerbatimAfter(":")},
		{"AT%XMONITOR", "Network monitor", XMonitor(cfg.RSRPOffset, cfg.MinRSRP)},
		{"AT%XVBAT", "Battery voltage", BatteryVoltage},
		{"AT%XTEMP?", "Modem temperature", ModemTemperature},
		{"AT%XSYSTEMMODE?", "System mode", SystemMode},
	}
	for _, b := range builtins {
		if err := r.Register(b.command, b.name, b.fn); err != nil {
			return fmt.Errorf("register builtin %s: %w", b.command, err)
		}
	}
	return nil
}

// NewDefaultRegistry returns a registry holding the built-in parsers.
func NewDefaultRegistry(cfg BuiltinConfig) (*Registry, error) {
	r := NewRegistry()
	if err := RegisterBuiltins(r, cfg); err != nil {
		return nil, err
	}
	return r, nil
}
