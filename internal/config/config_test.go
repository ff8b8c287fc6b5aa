package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
telegram:
  token: "123:abc"
logging:
  level: info
  console: true
backend:
  base_url: "https://backend.example"
  m2m_token: "secret"
  frontend_url: "https://front.example"
stream:
  url: "wss://backend.example/events"
  reconnect_delay: "5s"
dispatch:
  workers: 4
  send_rate_per_sec: 25
storage:
  driver: file
  path: ./deliveries.jsonl
report:
  enabled: true
  schedule: "0 9 * * *"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	m := NewConfigManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Dispatch.Workers != 4 || cfg.Dispatch.SendRatePerSec != 25 {
		t.Fatalf("dispatch = %+v", cfg.Dispatch)
	}
	if cfg.Stream.URL != "wss://backend.example/events" {
		t.Fatalf("stream url = %q", cfg.Stream.URL)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get() did not return committed config")
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	m := NewConfigManager(writeConfig(t, "config.yaml", validYAML+"\nmystery: 1\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "999:zzz")
	t.Setenv("WORKERS", "17")
	t.Setenv("MESSAGE_WS", "wss://override.example/ws")

	m := NewConfigManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "999:zzz" {
		t.Fatalf("token = %q, env override lost", cfg.Telegram.Token)
	}
	if cfg.Dispatch.Workers != 17 {
		t.Fatalf("workers = %d, want 17", cfg.Dispatch.Workers)
	}
	if cfg.Stream.URL != "wss://override.example/ws" {
		t.Fatalf("stream url = %q", cfg.Stream.URL)
	}
}

func TestBadWorkersEnv(t *testing.T) {
	t.Setenv("WORKERS", "lots")
	m := NewConfigManager(writeConfig(t, "config.yaml", validYAML))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for non-numeric WORKERS")
	}
}

func TestValidateMissingToken(t *testing.T) {
	cfg := &Config{}
	cfg.Backend.BaseURL = "https://b"
	cfg.Backend.M2MToken = "t"
	cfg.Stream.URL = "wss://s"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing-token error")
	}
}

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("x", "10s"); err != nil || d.Seconds() != 10 {
		t.Fatalf("d=%v err=%v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty should be zero, got d=%v err=%v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("garbage duration accepted")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	old := &Config{}
	cur := &Config{}
	cur.Dispatch.Workers = 10
	cur.Logging.Level = "debug"

	changed, _ := SummarizeConfigChange(old, cur)
	want := map[string]bool{"dispatch": true, "logging": true}
	if len(changed) != 2 {
		t.Fatalf("changed = %v", changed)
	}
	for _, c := range changed {
		if !want[c] {
			t.Fatalf("unexpected section %q in %v", c, changed)
		}
	}
}
