package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesFileEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
server:
  port: "9000"
redis:
  addr: "localhost:6379"
engine:
  question_time: 15s
  scoring: linear
  max_time_bonus: 5
  early_close: true
leaderboard:
  ttl: 30s
admins: ["1", "2"]
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ADMIN_IDS", "42, 43")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Fatalf("expected port from file, got %s", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Fatalf("expected env override, got %s", cfg.Redis.Addr)
	}
	if len(cfg.Admins) != 2 || cfg.Admins[0] != "42" || cfg.Admins[1] != "43" {
		t.Fatalf("expected admins from env, got %v", cfg.Admins)
	}
	if cfg.Engine.Scoring != "linear" || !cfg.Engine.EarlyClose || cfg.Engine.MaxTimeBonus != 5 {
		t.Fatalf("unexpected engine section %+v", cfg.Engine)
	}
	if cfg.Engine.BasePoints != 10 || cfg.Leaderboard.Size != 10 || cfg.Engine.GradingRetries != 3 {
		t.Fatalf("expected defaults, got %+v / %+v", cfg.Engine, cfg.Leaderboard)
	}
	if got := TTLDuration(cfg.Engine.QuestionTime, 10*time.Second); got != 15*time.Second {
		t.Fatalf("expected 15s question time, got %s", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port == "" || cfg.Log.Level == "" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := TTLDuration("bogus", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for invalid input, got %s", got)
	}
	if got := TTLDuration("2m", time.Minute); got != 2*time.Minute {
		t.Fatalf("expected 2m, got %s", got)
	}
}
