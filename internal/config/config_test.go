package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CONFIG_FILE", "API_PORT", "LOG_LEVEL", "LOG_FORMAT",
		"STREAM_TRANSPORT", "BACKEND_MODE", "BACKEND_BASE_URL",
		"GATEWAY_BASE_URL", "BACKEND_TOKEN", "NATS_URL", "NATS_SUBJECT_PREFIX",
		"COMPLETED_GRACE", "ERROR_GRACE", "CANCELLED_GRACE",
		"SWEEP_INTERVAL", "SWEEP_CUTOFF", "ABORT_TIMEOUT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StreamTransport != "sse" {
		t.Fatalf("expected default transport sse, got %q", cfg.StreamTransport)
	}
	if cfg.CompletedGrace != 5*time.Second || cfg.ErrorGrace != 10*time.Second || cfg.CancelledGrace != 3*time.Second {
		t.Fatalf("unexpected default grace periods: %v/%v/%v", cfg.CompletedGrace, cfg.ErrorGrace, cfg.CancelledGrace)
	}
	if cfg.SweepInterval != 5*time.Minute || cfg.SweepCutoff != 30*time.Minute {
		t.Fatalf("unexpected default sweep timing: %v/%v", cfg.SweepInterval, cfg.SweepCutoff)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STREAM_TRANSPORT", "nats")
	t.Setenv("BACKEND_MODE", "gateway")
	t.Setenv("GATEWAY_BASE_URL", "https://gw.internal")
	t.Setenv("ERROR_GRACE", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StreamTransport != "nats" || cfg.BackendMode != "gateway" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.ErrorGrace != 30*time.Second {
		t.Fatalf("expected 30s error grace, got %v", cfg.ErrorGrace)
	}
}

func TestLoadFileOverlayAndEnvPrecedence(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "tracker.yaml")
	content := "api_port: \"9999\"\nstream_transport: nats\nsweep_cutoff: 1h\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STREAM_TRANSPORT", "sse") // env wins over file

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIPort != "9999" {
		t.Fatalf("file overlay not applied, port %q", cfg.APIPort)
	}
	if cfg.SweepCutoff != time.Hour {
		t.Fatalf("expected 1h sweep cutoff from file, got %v", cfg.SweepCutoff)
	}
	if cfg.StreamTransport != "sse" {
		t.Fatalf("env should win over file, got %q", cfg.StreamTransport)
	}
}

func TestLoadRejectsMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("SWEEP_CUTOFF", "thirty minutes")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}
