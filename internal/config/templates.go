package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/atbench/internal/parsers"
)

// DefaultFile renders Default as an on-disk document with example limits.
func DefaultFile() File {
	cfg := Default()
	return File{
		Transport: transportFile{
			Kind:        string(cfg.Transport.Kind),
			Port:        cfg.Transport.Serial.Port,
			Baud:        cfg.Transport.Serial.BaudRate,
			ReadTimeout: cfg.Transport.Serial.ReadTimeout.String(),
			SSH: sshFile{
				Port:          cfg.Transport.SSH.Port,
				Timeout:       cfg.Transport.SSH.Timeout.String(),
				Command:       cfg.Transport.SSH.Command,
				DialAttempts:  cfg.Transport.SSH.Retry.Attempts,
				RetryDelay:    cfg.Transport.SSH.Retry.InitialDelay.String(),
				RetryMaxDelay: cfg.Transport.SSH.Retry.MaxDelay.String(),
			},
			SimLatency: (5 * time.Millisecond).String(),
		},
		Terminal: terminalFile{
			ChunkSize:    cfg.Terminal.Limits.MaxChunk,
			PollInterval: cfg.Terminal.PollInterval.String(),
			StopTimeout:  cfg.Terminal.StopTimeout.String(),
		},
		Batch: batchFile{
			Commands:      parsers.DefaultCommands(),
			Timeout:       cfg.Batch.Timeout.String(),
			Dwell:         cfg.Batch.Dwell.String(),
			WarmupCommand: cfg.Batch.WarmupCommand,
			WarmupDelay:   cfg.Batch.WarmupDelay.String(),
		},
		Parsers: parsersFile{
			RSRPOffset: cfg.Parsers.RSRPOffset,
			MinRSRP:    cfg.Parsers.MinRSRP,
		},
		Limits: ExampleLimits(),
		Report: reportFile{
			Highlight: cfg.Report.Highlight,
			CSV:       "results.csv",
		},
		Certs: certsFile{
			SecTag:       cfg.Certs.SecTag,
			RootCA:       "certs/ca.crt",
			ClientCert:   "certs/client.crt",
			ClientKey:    "certs/client.key",
			ModemOff:     cfg.Certs.ModemOff,
			ModemOffWait: cfg.Certs.ModemOffWait.String(),
			Timeout:      cfg.Certs.Timeout.String(),
			Dwell:        cfg.Certs.Dwell.String(),
		},
		Status: statusFile{
			CorsOrigins: []string{"http://localhost:3000"},
		},
		Hooks: hooksFile{
			Reset: []string{"probe-rs", "reset", "--chip", "nRF9160_xxAA"},
		},
	}
}

// Template returns the station config template.
func Template() (string, error) {
	b, err := toml.Marshal(DefaultFile())
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return templateHeader + string(b), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

var templateHeader = strings.TrimLeft(`
# atbench station config
# transport.kind: serial | ssh | simulate
# Durations use Go syntax (500ms, 2s). limits keys are result display names.

`, "\n")
