package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseConfig() AppConfig {
	return AppConfig{
		Port:     8080,
		GridSize: 13,
		CanvasW:  600,
		CanvasH:  600,
		MinScore: 0.4,
	}
}

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg := baseConfig()
	path := writeEnv(t, "PORT=9000\nGRID_SIZE=19\nMIN_SCORE=0.25\nDEBUG=true\nOUTPUT_DIR=/tmp/runs\n")
	if err := LoadEnv(path, &cfg); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if cfg.Port != 9000 || cfg.GridSize != 19 || cfg.MinScore != 0.25 || !cfg.Debug || cfg.OutputDir != "/tmp/runs" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.CanvasW != 600 {
		t.Fatalf("unrelated field changed: %v", cfg.CanvasW)
	}
}

func TestLoadEnvMissingFileKeepsDefaults(t *testing.T) {
	cfg := baseConfig()
	if err := LoadEnv(filepath.Join(t.TempDir(), "absent.env"), &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Port != 8080 || cfg.GridSize != 13 {
		t.Fatalf("defaults changed: %+v", cfg)
	}
}

func TestLoadEnvRateOverridesReachDurations(t *testing.T) {
	cfg := baseConfig()
	cfg.UIRate = 0.1
	cfg.IdleAfter = 5
	path := writeEnv(t, "UI_RATE=0.5\nIDLE_AFTER=2\n")
	if err := LoadEnv(path, &cfg); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := cfg.UIRateDuration(); got != 500*time.Millisecond {
		t.Fatalf("UIRateDuration = %v, want 500ms", got)
	}
	if got := cfg.IdleAfterDuration(); got != 2*time.Second {
		t.Fatalf("IdleAfterDuration = %v, want 2s", got)
	}
}

func TestLoadEnvRejectsBadGridSize(t *testing.T) {
	cfg := baseConfig()
	path := writeEnv(t, "GRID_SIZE=10\n")
	if err := LoadEnv(path, &cfg); err == nil {
		t.Fatal("grid size 10 should be rejected")
	}
}

func TestLoadEnvIgnoresMalformedNumbers(t *testing.T) {
	cfg := baseConfig()
	path := writeEnv(t, "PORT=not-a-number\n")
	if err := LoadEnv(path, &cfg); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("malformed PORT changed config: %d", cfg.Port)
	}
}

func TestValidGridSize(t *testing.T) {
	for _, n := range []int{7, 13, 19} {
		if !ValidGridSize(n) {
			t.Fatalf("ValidGridSize(%d) = false", n)
		}
	}
	for _, n := range []int{0, 1, 8, 20, -7} {
		if ValidGridSize(n) {
			t.Fatalf("ValidGridSize(%d) = true", n)
		}
	}
}
