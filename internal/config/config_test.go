package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv(ConfigPathEnvVar, "")
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("CHAT_AUTH_JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Presence.Policy != "multi" {
		t.Errorf("Presence.Policy = %q", cfg.Presence.Policy)
	}
	if cfg.Presence.Timeout != 90*time.Second {
		t.Errorf("Presence.Timeout = %s", cfg.Presence.Timeout)
	}
	if cfg.Rooms.Store != "memory" {
		t.Errorf("Rooms.Store = %q", cfg.Rooms.Store)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "chat.yaml")
	yaml := `
server:
  addr: ":9000"
presence:
  policy: single
  timeout: 2s
  sweep_interval: 500ms
auth:
  jwt_secret: "` + testSecret + `"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("CHAT_SERVER_ADDR", ":9100")
	t.Setenv("CHAT_PRESENCE_SWEEP_INTERVAL", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":9100" {
		t.Errorf("env should override file: Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Presence.Policy != "single" {
		t.Errorf("Presence.Policy = %q, want single", cfg.Presence.Policy)
	}
	if cfg.Presence.Timeout != 2*time.Second {
		t.Errorf("Presence.Timeout = %s, want 2s", cfg.Presence.Timeout)
	}
	if cfg.Presence.SweepInterval != 250*time.Millisecond {
		t.Errorf("Presence.SweepInterval = %s, want 250ms", cfg.Presence.SweepInterval)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	isolate(t)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() without a jwt secret expected error")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("error = %v, want jwt_secret complaint", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad policy", func(c *Config) { c.Presence.Policy = "many" }, "presence.policy"},
		{"sweep slower than timeout", func(c *Config) { c.Presence.SweepInterval = 2 * c.Presence.Timeout }, "sweep_interval"},
		{"unknown room store", func(c *Config) { c.Rooms.Store = "etcd" }, "rooms.store"},
		{"cluster without url", func(c *Config) { c.Cluster.Enabled = true; c.Cluster.NATSURL = "" }, "nats_url"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Auth.JWTSecret = testSecret
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"CHAT_PRESENCE_SWEEP_INTERVAL": "presence.sweep_interval",
		"CHAT_ROOMS_REDIS_ADDR":        "rooms.redis_addr",
		"CHAT_STORE_DSN":               "store.dsn",
		"CHAT_UNKNOWN_THING":           "",
		"CHAT_SERVER_":                 "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}
