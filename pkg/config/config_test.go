package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scada.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.StationID == 0 {
		t.Fatalf("default station_id must be non-zero")
	}
	if cfg.Link.LinkTimeout() < cfg.Link.ConnectTimeout() {
		t.Fatalf("default link timeout shorter than connect timeout")
	}
	if len(cfg.Channels) == 0 {
		t.Fatalf("expected a default channel")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
app_name: reactor-plc
station_id: 42
auth_key: "hunter2"
log:
  level: debug
  format: json
channels:
  - kind: UDP
    listen: ":17000"
link:
  connect_timeout_ms: 1000
  link_timeout_ms: 8000
  supervisor_addr: "10.0.0.1:16000"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppName != "reactor-plc" || cfg.StationID != 42 || cfg.AuthKey != "hunter2" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log section not applied: %+v", cfg.Log)
	}
	if len(cfg.Channels) != 1 || cfg.Channels[0].Kind != "udp" {
		t.Fatalf("channel kind should be normalized, got %+v", cfg.Channels)
	}
	if cfg.Link.SupervisorAddr != "10.0.0.1:16000" {
		t.Fatalf("supervisor_addr not applied: %+v", cfg.Link)
	}
	// unset keys keep their defaults
	if cfg.Link.TickIntervalMS != Default().Link.TickIntervalMS {
		t.Fatalf("tick interval default lost: %d", cfg.Link.TickIntervalMS)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SCADA_LOG_LEVEL", "warn")
	t.Setenv("SCADA_STATION_ID", "9")
	cfg, err := Load(writeConfig(t, "app_name: x\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("env log level not applied: %q", cfg.Log.Level)
	}
	if cfg.StationID != 9 {
		t.Fatalf("env station id not applied: %d", cfg.StationID)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad log level", "log:\n  level: loud\n"},
		{"zero station id", "station_id: 0\n"},
		{"link shorter than connect", "link:\n  connect_timeout_ms: 5000\n  link_timeout_ms: 100\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLinkDurations(t *testing.T) {
	link := LinkConfig{ConnectTimeoutMS: 1500, LinkTimeoutMS: 25000, TickIntervalMS: 250, CloseGraceMS: 2000}
	if link.ConnectTimeout().Milliseconds() != 1500 {
		t.Fatalf("ConnectTimeout = %v", link.ConnectTimeout())
	}
	if link.LinkTimeout().Milliseconds() != 25000 {
		t.Fatalf("LinkTimeout = %v", link.LinkTimeout())
	}
	if link.TickInterval().Milliseconds() != 250 {
		t.Fatalf("TickInterval = %v", link.TickInterval())
	}
	if link.CloseGrace().Milliseconds() != 2000 {
		t.Fatalf("CloseGrace = %v", link.CloseGrace())
	}
}
