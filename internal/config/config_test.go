package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("board", pflag.ContinueOnError)
	Flags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	data := t.TempDir()
	t.Setenv("XDG_DATA_HOME", data)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if want := filepath.Join(data, "clientboard", "board.db"); cfg.DBPath != want {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, want)
	}
	if cfg.Latency != 300*time.Millisecond || cfg.Jitter != 100*time.Millisecond {
		t.Fatalf("latency = %v ± %v", cfg.Latency, cfg.Jitter)
	}
	if cfg.Bus != BusLocal || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_Precedence(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	dir := t.TempDir()
	file := filepath.Join(dir, "board.yaml")
	yaml := "latency: 1s\npoll_interval: 2s\nlog_level: debug\nbus: redis\nredis_addr: cache:6379\n"
	if err := os.WriteFile(file, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOARD_LATENCY", "50ms")

	cfg, err := Load(newFlags(t, "--config", file, "--db", "/tmp/custom.db", "--log-level", "warn"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"flag over file", cfg.LogLevel, "warn"},
		{"env over file", cfg.Latency, 50 * time.Millisecond},
		{"file over default", cfg.PollInterval, 2 * time.Second},
		{"file only", cfg.RedisAddr, "cache:6379"},
		{"flag only", cfg.DBPath, "/tmp/custom.db"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_MissingExplicitConfig(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	if _, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"))); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	base := Config{Bus: BusLocal, PollInterval: time.Second}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(*Config) {}, false},
		{"unknown bus", func(c *Config) { c.Bus = "kafka" }, true},
		{"negative jitter", func(c *Config) { c.Jitter = -time.Millisecond }, true},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, true},
		{"redis without addr", func(c *Config) { c.Bus = BusRedis }, true},
		{"redis with addr", func(c *Config) { c.Bus = BusRedis; c.RedisAddr = "localhost:6379" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
