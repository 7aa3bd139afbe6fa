package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kioku.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB != "kioku.db" {
		t.Errorf("DB = %q, want kioku.db", cfg.DB)
	}
	if cfg.Addr != "localhost:8484" {
		t.Errorf("Addr = %q, want localhost:8484", cfg.Addr)
	}
	if cfg.Scheduler.DesiredRetention != 0.9 {
		t.Errorf("DesiredRetention = %f, want 0.9", cfg.Scheduler.DesiredRetention)
	}
	if cfg.Scheduler.MaximumInterval != 36500 {
		t.Errorf("MaximumInterval = %d, want 36500", cfg.Scheduler.MaximumInterval)
	}
	want := []time.Duration{time.Minute, 10 * time.Minute}
	if len(cfg.Scheduler.LearningSteps) != len(want) {
		t.Fatalf("LearningSteps = %v, want %v", cfg.Scheduler.LearningSteps, want)
	}
	for i := range want {
		if cfg.Scheduler.LearningSteps[i] != want[i] {
			t.Errorf("LearningSteps[%d] = %v, want %v", i, cfg.Scheduler.LearningSteps[i], want[i])
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
db: /var/lib/kioku/cards.db
addr: 0.0.0.0:9000
sources:
  - /srv/notes
scheduler:
  desired_retention: 0.85
  maximum_interval: 365
  learning_steps: ["5m", "30m", "2h"]
`)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB != "/var/lib/kioku/cards.db" {
		t.Errorf("DB = %q", cfg.DB)
	}
	if cfg.Addr != "0.0.0.0:9000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0] != "/srv/notes" {
		t.Errorf("Sources = %v", cfg.Sources)
	}
	if cfg.Scheduler.DesiredRetention != 0.85 {
		t.Errorf("DesiredRetention = %f, want 0.85", cfg.Scheduler.DesiredRetention)
	}
	if cfg.Scheduler.MaximumInterval != 365 {
		t.Errorf("MaximumInterval = %d, want 365", cfg.Scheduler.MaximumInterval)
	}
	steps := cfg.Scheduler.LearningSteps
	if len(steps) != 3 || steps[0] != 5*time.Minute || steps[2] != 2*time.Hour {
		t.Errorf("LearningSteps = %v", steps)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "addr: 0.0.0.0:9000\n")
	t.Setenv("KIOKU_ADDR", "127.0.0.1:7000")
	t.Setenv("KIOKU_SCHEDULER__DESIRED_RETENTION", "0.8")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:7000" {
		t.Errorf("Addr = %q, want the env value", cfg.Addr)
	}
	if cfg.Scheduler.DesiredRetention != 0.8 {
		t.Errorf("DesiredRetention = %f, want 0.8 from env", cfg.Scheduler.DesiredRetention)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("KIOKU_DB", "env.db")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "kioku.db", "")
	if err := flags.Parse([]string{"--db", "flag.db"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB != "flag.db" {
		t.Errorf("DB = %q, want the flag value", cfg.DB)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad addr", "addr: not-an-address\n"},
		{"retention above one", "scheduler:\n  desired_retention: 1.5\n"},
		{"zero maximum interval", "scheduler:\n  maximum_interval: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.yaml)
			if _, err := Load(path, nil); err == nil {
				t.Error("Load accepted an invalid configuration")
			}
		})
	}
}

func TestEnvToKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"KIOKU_DB", "db"},
		{"KIOKU_SCHEDULER__DESIRED_RETENTION", "scheduler.desired_retention"},
		{"KIOKU_SCHEDULER__MAXIMUM_INTERVAL", "scheduler.maximum_interval"},
	}
	for _, tt := range tests {
		if got := envToKey(tt.in); got != tt.want {
			t.Errorf("envToKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
