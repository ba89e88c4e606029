package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/atbench/internal/parsers"
	"github.com/danmuck/atbench/internal/protocol/frame"
	"github.com/danmuck/atbench/internal/rules"
	"github.com/danmuck/atbench/internal/terminal"
	"github.com/danmuck/atbench/internal/transport"
)

var ErrInvalidConfig = errors.New("config: invalid")

// BatchConfig drives the AT test step.
type BatchConfig struct {
	Commands      []string
	Timeout       time.Duration
	Dwell         time.Duration
	WarmupCommand string
	WarmupDelay   time.Duration
}

// ReportConfig selects report outputs. Empty paths disable an output.
type ReportConfig struct {
	Highlight  bool
	JSONPath   string
	CSVPath    string
	SQLitePath string
}

// CertsConfig drives the credential write step.
type CertsConfig struct {
	SecTag       int64
	RootCA       string
	ClientCert   string
	ClientKey    string
	ModemOff     string
	ModemOffWait time.Duration
	Timeout      time.Duration
	Dwell        time.Duration
}

// StatusConfig enables the HTTP status server when Addr is set.
type StatusConfig struct {
	Addr        string
	CorsOrigins []string
}

// HooksConfig holds external commands run around the station steps.
type HooksConfig struct {
	Reset       []string
	ResetOnExit bool
}

// Config is the resolved station configuration.
type Config struct {
	Transport transport.Config
	Terminal  terminal.Config
	Console   bool
	Batch     BatchConfig
	Parsers   parsers.BuiltinConfig
	Limits    rules.Set
	Report    ReportConfig
	Certs     CertsConfig
	Status    StatusConfig
	Hooks     HooksConfig
}

// Default returns the station defaults for an nRF9160 over a local serial
// bridge.
func Default() Config {
	serial := transport.DefaultSerialConfig()
	serial.Port = "/dev/ttyACM0"
	return Config{
		Transport: transport.Config{
			Kind:   transport.KindSerial,
			Serial: serial,
			SSH: transport.SSHConfig{
				Port:    "22",
				Timeout: 10 * time.Second,
				Command: "socat - /dev/ttyACM0,raw,echo=0,b115200",
				Retry:   transport.DefaultBackoffConfig(),
			},
		},
		Terminal: terminal.DefaultConfig(),
		Batch: BatchConfig{
			Commands:      parsers.DefaultCommands(),
			Timeout:       2 * time.Second,
			Dwell:         2 * time.Second,
			WarmupCommand: "AT+CFUN=1",
			WarmupDelay:   3 * time.Second,
		},
		Parsers: parsers.DefaultBuiltinConfig(),
		Limits:  rules.Set{},
		Report:  ReportConfig{Highlight: true},
		Certs: CertsConfig{
			SecTag:       16842753,
			ModemOff:     "AT+CFUN=0",
			ModemOffWait: 3 * time.Second,
			Timeout:      5 * time.Second,
			Dwell:        4 * time.Second,
		},
	}
}

type transportFile struct {
	Kind          string  `toml:"kind"`
	Port          string  `toml:"port"`
	Baud          int     `toml:"baud"`
	ReadTimeout   string  `toml:"read_timeout"`
	SSH           sshFile `toml:"ssh"`
	SimLatency    string  `toml:"sim_latency"`
	SimReadChunks int     `toml:"sim_read_size"`
}

type sshFile struct {
	Host          string   `toml:"host"`
	Port          string   `toml:"port"`
	User          string   `toml:"user"`
	Key           string   `toml:"key"`
	PassphraseEnv string   `toml:"passphrase_env"`
	KnownHosts    string   `toml:"known_hosts"`
	Insecure      bool     `toml:"insecure"`
	Timeout       string   `toml:"timeout"`
	Command       string   `toml:"command"`
	Args          []string `toml:"args"`
	DialAttempts  int      `toml:"dial_attempts"`
	RetryDelay    string   `toml:"retry_delay"`
	RetryMaxDelay string   `toml:"retry_max_delay"`
}

type terminalFile struct {
	ChunkSize    int    `toml:"chunk_size"`
	PollInterval string `toml:"poll_interval"`
	StopTimeout  string `toml:"stop_timeout"`
	Console      bool   `toml:"console"`
}

type batchFile struct {
	Commands      []string `toml:"commands"`
	Timeout       string   `toml:"timeout"`
	Dwell         string   `toml:"dwell"`
	WarmupCommand string   `toml:"warmup_command"`
	WarmupDelay   string   `toml:"warmup_delay"`
}

type parsersFile struct {
	RSRPOffset int64 `toml:"rsrp_offset_dbm"`
	MinRSRP    int64 `toml:"min_rsrp_dbm"`
}

type reportFile struct {
	Highlight bool   `toml:"highlight"`
	JSON      string `toml:"json"`
	CSV       string `toml:"csv"`
	SQLite    string `toml:"sqlite"`
}

type certsFile struct {
	SecTag       int64  `toml:"sec_tag"`
	RootCA       string `toml:"root_ca"`
	ClientCert   string `toml:"client_cert"`
	ClientKey    string `toml:"client_key"`
	ModemOff     string `toml:"modem_off_command"`
	ModemOffWait string `toml:"modem_off_wait"`
	Timeout      string `toml:"timeout"`
	Dwell        string `toml:"dwell"`
}

type statusFile struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

type hooksFile struct {
	Reset       []string `toml:"reset"`
	ResetOnExit bool     `toml:"reset_on_exit"`
}

// File is the on-disk TOML document.
type File struct {
	Transport  transportFile  `toml:"transport"`
	Terminal   terminalFile   `toml:"terminal"`
	Batch      batchFile      `toml:"batch"`
	Parsers    parsersFile    `toml:"parsers"`
	LimitsFile string         `toml:"limits_file"`
	Limits     map[string]any `toml:"limits"`
	Report     reportFile     `toml:"report"`
	Certs      certsFile      `toml:"certs"`
	Status     statusFile     `toml:"status"`
	Hooks      hooksFile      `toml:"hooks"`
}

// Load overlays the keys defined in path onto Default. A limits_file is
// resolved relative to path and its rules replace same-named [limits]
// entries.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			if len(k) > 0 && k[0] == "limits" {
				continue
			}
			keys = append(keys, k.String())
		}
		if len(keys) > 0 {
			return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
		}
	}

	o := overlay{meta: meta}
	o.setStr(&cfg.Transport.Kind, raw.Transport.Kind, "transport", "kind")
	o.setStr(&cfg.Transport.Serial.Port, raw.Transport.Port, "transport", "port")
	o.setInt(&cfg.Transport.Serial.BaudRate, raw.Transport.Baud, "transport", "baud")
	o.setDur(&cfg.Transport.Serial.ReadTimeout, raw.Transport.ReadTimeout, "transport", "read_timeout")
	o.setDur(&cfg.Transport.Simulate.Latency, raw.Transport.SimLatency, "transport", "sim_latency")
	o.setInt(&cfg.Transport.Simulate.ReadSize, raw.Transport.SimReadChunks, "transport", "sim_read_size")

	ssh := &cfg.Transport.SSH
	o.setStr(&ssh.Host, raw.Transport.SSH.Host, "transport", "ssh", "host")
	o.setStr(&ssh.Port, raw.Transport.SSH.Port, "transport", "ssh", "port")
	o.setStr(&ssh.User, raw.Transport.SSH.User, "transport", "ssh", "user")
	o.setStr(&ssh.KeyPath, raw.Transport.SSH.Key, "transport", "ssh", "key")
	o.setStr(&ssh.KnownHostsPath, raw.Transport.SSH.KnownHosts, "transport", "ssh", "known_hosts")
	o.setBool(&ssh.InsecureSkipHostKeyChecking, raw.Transport.SSH.Insecure, "transport", "ssh", "insecure")
	o.setDur(&ssh.Timeout, raw.Transport.SSH.Timeout, "transport", "ssh", "timeout")
	o.setStr(&ssh.Command, raw.Transport.SSH.Command, "transport", "ssh", "command")
	o.setInt(&ssh.Retry.Attempts, raw.Transport.SSH.DialAttempts, "transport", "ssh", "dial_attempts")
	o.setDur(&ssh.Retry.InitialDelay, raw.Transport.SSH.RetryDelay, "transport", "ssh", "retry_delay")
	o.setDur(&ssh.Retry.MaxDelay, raw.Transport.SSH.RetryMaxDelay, "transport", "ssh", "retry_max_delay")
	if meta.IsDefined("transport", "ssh", "args") {
		ssh.Args = append([]string(nil), raw.Transport.SSH.Args...)
	}
	if env := strings.TrimSpace(raw.Transport.SSH.PassphraseEnv); env != "" {
		ssh.Passphrase = []byte(os.Getenv(env))
	}

	o.setInt(&cfg.Terminal.Limits.MaxChunk, raw.Terminal.ChunkSize, "terminal", "chunk_size")
	o.setDur(&cfg.Terminal.PollInterval, raw.Terminal.PollInterval, "terminal", "poll_interval")
	o.setDur(&cfg.Terminal.StopTimeout, raw.Terminal.StopTimeout, "terminal", "stop_timeout")
	o.setBool(&cfg.Console, raw.Terminal.Console, "terminal", "console")

	if meta.IsDefined("batch", "commands") {
		cfg.Batch.Commands = normalizeCommands(raw.Batch.Commands)
	}
	o.setDur(&cfg.Batch.Timeout, raw.Batch.Timeout, "batch", "timeout")
	o.setDur(&cfg.Batch.Dwell, raw.Batch.Dwell, "batch", "dwell")
	o.setStr(&cfg.Batch.WarmupCommand, raw.Batch.WarmupCommand, "batch", "warmup_command")
	o.setDur(&cfg.Batch.WarmupDelay, raw.Batch.WarmupDelay, "batch", "warmup_delay")

	o.setInt64(&cfg.Parsers.RSRPOffset, raw.Parsers.RSRPOffset, "parsers", "rsrp_offset_dbm")
	o.setInt64(&cfg.Parsers.MinRSRP, raw.Parsers.MinRSRP, "parsers", "min_rsrp_dbm")

	o.setBool(&cfg.Report.Highlight, raw.Report.Highlight, "report", "highlight")
	o.setStr(&cfg.Report.JSONPath, raw.Report.JSON, "report", "json")
	o.setStr(&cfg.Report.CSVPath, raw.Report.CSV, "report", "csv")
	o.setStr(&cfg.Report.SQLitePath, raw.Report.SQLite, "report", "sqlite")

	o.setInt64(&cfg.Certs.SecTag, raw.Certs.SecTag, "certs", "sec_tag")
	o.setStr(&cfg.Certs.RootCA, raw.Certs.RootCA, "certs", "root_ca")
	o.setStr(&cfg.Certs.ClientCert, raw.Certs.ClientCert, "certs", "client_cert")
	o.setStr(&cfg.Certs.ClientKey, raw.Certs.ClientKey, "certs", "client_key")
	o.setStr(&cfg.Certs.ModemOff, raw.Certs.ModemOff, "certs", "modem_off_command")
	o.setDur(&cfg.Certs.ModemOffWait, raw.Certs.ModemOffWait, "certs", "modem_off_wait")
	o.setDur(&cfg.Certs.Timeout, raw.Certs.Timeout, "certs", "timeout")
	o.setDur(&cfg.Certs.Dwell, raw.Certs.Dwell, "certs", "dwell")

	o.setStr(&cfg.Status.Addr, raw.Status.Addr, "status", "addr")
	if meta.IsDefined("status", "cors_origins") {
		cfg.Status.CorsOrigins = append([]string(nil), raw.Status.CorsOrigins...)
	}

	if meta.IsDefined("hooks", "reset") {
		cfg.Hooks.Reset = normalizeCommands(raw.Hooks.Reset)
	}
	o.setBool(&cfg.Hooks.ResetOnExit, raw.Hooks.ResetOnExit, "hooks", "reset_on_exit")

	if o.err != nil {
		return Config{}, o.err
	}

	if len(raw.Limits) > 0 {
		set, err := rules.ParseLimits(raw.Limits)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		cfg.Limits = set
	}
	if lf := strings.TrimSpace(raw.LimitsFile); lf != "" {
		if !filepath.IsAbs(lf) {
			lf = filepath.Join(filepath.Dir(path), lf)
		}
		set, err := LoadLimitsFile(lf)
		if err != nil {
			return Config{}, err
		}
		cfg.Limits = cfg.Limits.Merge(set)
	}
	resolvePaths(&cfg, filepath.Dir(path))

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolvePaths makes credential paths relative to the config directory.
func resolvePaths(cfg *Config, dir string) {
	for _, p := range []*string{&cfg.Certs.RootCA, &cfg.Certs.ClientCert, &cfg.Certs.ClientKey} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Validate checks cross-field constraints.
func Validate(cfg Config) error {
	switch cfg.Transport.Kind {
	case transport.KindSerial:
		if strings.TrimSpace(cfg.Transport.Serial.Port) == "" {
			return fmt.Errorf("%w: transport.port is required for serial", ErrInvalidConfig)
		}
	case transport.KindSSH:
		if strings.TrimSpace(cfg.Transport.SSH.Host) == "" {
			return fmt.Errorf("%w: transport.ssh.host is required for ssh", ErrInvalidConfig)
		}
		if strings.TrimSpace(cfg.Transport.SSH.Command) == "" {
			return fmt.Errorf("%w: transport.ssh.command is required for ssh", ErrInvalidConfig)
		}
	case transport.KindSimulate:
	default:
		return fmt.Errorf("%w: transport.kind %q (want serial|ssh|simulate)", ErrInvalidConfig, cfg.Transport.Kind)
	}
	if cfg.Terminal.Limits.MaxChunk < 0 || cfg.Terminal.Limits.MaxChunk > frame.DefaultLimits().MaxChunk {
		return fmt.Errorf("%w: terminal.chunk_size must be in 1..%d", ErrInvalidConfig, frame.DefaultLimits().MaxChunk)
	}
	if len(cfg.Batch.Commands) == 0 {
		return fmt.Errorf("%w: batch.commands is empty", ErrInvalidConfig)
	}
	if cfg.Batch.Timeout <= 0 {
		return fmt.Errorf("%w: batch.timeout must be positive", ErrInvalidConfig)
	}
	if cfg.Batch.Dwell < 0 || cfg.Batch.WarmupDelay < 0 {
		return fmt.Errorf("%w: batch delays must not be negative", ErrInvalidConfig)
	}
	if cfg.Certs.Timeout <= 0 {
		return fmt.Errorf("%w: certs.timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// LoadLimitsFile reads validation rules from a YAML document keyed by result
// display name.
func LoadLimitsFile(path string) (rules.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	return ParseLimitsYAML(data)
}

func normalizeCommands(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		if v := strings.TrimSpace(c); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// overlay copies decoded fields onto defaults when their key is present.
type overlay struct {
	meta toml.MetaData
	err  error
}

func (o *overlay) setStr(dst any, v string, key ...string) {
	if !o.meta.IsDefined(key...) {
		return
	}
	v = strings.TrimSpace(v)
	switch d := dst.(type) {
	case *string:
		*d = v
	case *transport.Kind:
		*d = transport.Kind(strings.ToLower(v))
	}
}

func (o *overlay) setInt(dst *int, v int, key ...string) {
	if o.meta.IsDefined(key...) {
		*dst = v
	}
}

func (o *overlay) setInt64(dst *int64, v int64, key ...string) {
	if o.meta.IsDefined(key...) {
		*dst = v
	}
}

func (o *overlay) setBool(dst *bool, v bool, key ...string) {
	if o.meta.IsDefined(key...) {
		*dst = v
	}
}

func (o *overlay) setDur(dst *time.Duration, v string, key ...string) {
	if o.err != nil || !o.meta.IsDefined(key...) {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		o.err = fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, strings.Join(key, "."), err)
		return
	}
	*dst = d
}
