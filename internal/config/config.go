package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort   string
	LogLevel  string
	LogFormat string

	// StreamTransport selects the event source: "sse" or "nats".
	StreamTransport string

	// BackendMode is "direct" or "gateway"; the matching base URL must be
	// set.
	BackendMode    string
	BackendBaseURL string
	GatewayBaseURL string
	BackendToken   string

	NATSURL           string
	NATSSubjectPrefix string

	CompletedGrace time.Duration
	ErrorGrace     time.Duration
	CancelledGrace time.Duration
	SweepInterval  time.Duration
	SweepCutoff    time.Duration
	AbortTimeout   time.Duration
}

func defaults() Config {
	return Config{
		APIPort:   "8080",
		LogLevel:  "info",
		LogFormat: "json",

		StreamTransport: "sse",

		BackendMode:    "direct",
		BackendBaseURL: "http://localhost:9000",
		GatewayBaseURL: "",

		NATSURL:           "nats://localhost:4222",
		NATSSubjectPrefix: "extraction.events",

		CompletedGrace: 5 * time.Second,
		ErrorGrace:     10 * time.Second,
		CancelledGrace: 3 * time.Second,
		SweepInterval:  5 * time.Minute,
		SweepCutoff:    30 * time.Minute,
		AbortTimeout:   10 * time.Second,
	}
}

// Load resolves configuration as defaults < config file < environment.
// The file path comes from CONFIG_FILE; a missing or unreadable file is an
// error because pointing at a file is an explicit request.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type fileConfig struct {
	APIPort   string `yaml:"api_port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	StreamTransport string `yaml:"stream_transport"`

	BackendMode    string `yaml:"backend_mode"`
	BackendBaseURL string `yaml:"backend_base_url"`
	GatewayBaseURL string `yaml:"gateway_base_url"`
	BackendToken   string `yaml:"backend_token"`

	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`

	CompletedGrace string `yaml:"completed_grace"`
	ErrorGrace     string `yaml:"error_grace"`
	CancelledGrace string `yaml:"cancelled_grace"`
	SweepInterval  string `yaml:"sweep_interval"`
	SweepCutoff    string `yaml:"sweep_cutoff"`
	AbortTimeout   string `yaml:"abort_timeout"`
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	setStr(&c.APIPort, file.APIPort)
	setStr(&c.LogLevel, file.LogLevel)
	setStr(&c.LogFormat, file.LogFormat)
	setStr(&c.StreamTransport, file.StreamTransport)
	setStr(&c.BackendMode, file.BackendMode)
	setStr(&c.BackendBaseURL, file.BackendBaseURL)
	setStr(&c.GatewayBaseURL, file.GatewayBaseURL)
	setStr(&c.BackendToken, file.BackendToken)
	setStr(&c.NATSURL, file.NATSURL)
	setStr(&c.NATSSubjectPrefix, file.NATSSubjectPrefix)

	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{file.CompletedGrace, &c.CompletedGrace},
		{file.ErrorGrace, &c.ErrorGrace},
		{file.CancelledGrace, &c.CancelledGrace},
		{file.SweepInterval, &c.SweepInterval},
		{file.SweepCutoff, &c.SweepCutoff},
		{file.AbortTimeout, &c.AbortTimeout},
	} {
		if err := setDuration(d.dst, d.raw); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	envStr(&c.APIPort, "API_PORT")
	envStr(&c.LogLevel, "LOG_LEVEL")
	envStr(&c.LogFormat, "LOG_FORMAT")
	envStr(&c.StreamTransport, "STREAM_TRANSPORT")
	envStr(&c.BackendMode, "BACKEND_MODE")
	envStr(&c.BackendBaseURL, "BACKEND_BASE_URL")
	envStr(&c.GatewayBaseURL, "GATEWAY_BASE_URL")
	envStr(&c.BackendToken, "BACKEND_TOKEN")
	envStr(&c.NATSURL, "NATS_URL")
	envStr(&c.NATSSubjectPrefix, "NATS_SUBJECT_PREFIX")

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"COMPLETED_GRACE", &c.CompletedGrace},
		{"ERROR_GRACE", &c.ErrorGrace},
		{"CANCELLED_GRACE", &c.CancelledGrace},
		{"SWEEP_INTERVAL", &c.SweepInterval},
		{"SWEEP_CUTOFF", &c.SweepCutoff},
		{"ABORT_TIMEOUT", &c.AbortTimeout},
	} {
		if err := setDuration(d.dst, os.Getenv(d.key)); err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
	}
	return nil
}

func setStr(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func envStr(dst *string, key string) {
	setStr(dst, os.Getenv(key))
}

func setDuration(dst *time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = parsed
	return nil
}
