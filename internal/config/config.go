// Package config holds the runtime configuration. Defaults come from
// flags; a .env file, when present, overrides them so deployments can
// be tuned without changing the launch command.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port     int
	Endpoint string

	GridSize int
	CanvasW  float64
	CanvasH  float64

	MinScore     float64
	IoUThreshold float64

	Debug        bool
	DebugAcqRate float64
	UIRate       float64
	IdleAfter    float64

	OutputDir   string
	RawLog      bool
	RawLogDir   string
	StorePath   string
	CascadeFile string
	ModelFile   string
	ModelCfg    string
	ModelAPI    string

	IngestLogEvery int
	IngestFallback bool
}

// UIRateDuration returns UIRate (seconds) as a duration.
func (c AppConfig) UIRateDuration() time.Duration {
	return time.Duration(c.UIRate * float64(time.Second))
}

// IdleAfterDuration returns IdleAfter (seconds) as a duration.
func (c AppConfig) IdleAfterDuration() time.Duration {
	return time.Duration(c.IdleAfter * float64(time.Second))
}

// ValidGridSize reports whether n is one of the supported grid
// densities.
func ValidGridSize(n int) bool {
	switch n {
	case 7, 13, 19:
		return true
	}
	return false
}

// LoadEnv overlays values from the .env file at path onto cfg.
// A missing file is not an error; a malformed one is.
func LoadEnv(path string, cfg *AppConfig) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	envInt(env, "PORT", &cfg.Port)
	envStr(env, "ENDPOINT", &cfg.Endpoint)
	envInt(env, "GRID_SIZE", &cfg.GridSize)
	envFloat(env, "CANVAS_W", &cfg.CanvasW)
	envFloat(env, "CANVAS_H", &cfg.CanvasH)
	envFloat(env, "MIN_SCORE", &cfg.MinScore)
	envFloat(env, "IOU_THRESHOLD", &cfg.IoUThreshold)
	envBool(env, "DEBUG", &cfg.Debug)
	envFloat(env, "DEBUG_ACQ_RATE", &cfg.DebugAcqRate)
	envFloat(env, "UI_RATE", &cfg.UIRate)
	envFloat(env, "IDLE_AFTER", &cfg.IdleAfter)
	envStr(env, "OUTPUT_DIR", &cfg.OutputDir)
	envBool(env, "RAW_LOG", &cfg.RawLog)
	envStr(env, "RAW_LOG_DIR", &cfg.RawLogDir)
	envStr(env, "STORE_PATH", &cfg.StorePath)
	envStr(env, "CASCADE_FILE", &cfg.CascadeFile)
	envStr(env, "MODEL_FILE", &cfg.ModelFile)
	envStr(env, "MODEL_CFG", &cfg.ModelCfg)
	envStr(env, "MODEL_API", &cfg.ModelAPI)
	envInt(env, "INGEST_LOG_EVERY", &cfg.IngestLogEvery)
	envBool(env, "INGEST_FALLBACK", &cfg.IngestFallback)

	if !ValidGridSize(cfg.GridSize) {
		return fmt.Errorf("unsupported grid size %d (want 7, 13 or 19)", cfg.GridSize)
	}
	return nil
}

func envStr(env map[string]string, key string, dst *string) {
	if v, ok := env[key]; ok && v != "" {
		*dst = v
	}
}

func envInt(env map[string]string, key string, dst *int) {
	if v, ok := env[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(env map[string]string, key string, dst *float64) {
	if v, ok := env[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(env map[string]string, key string, dst *bool) {
	if v, ok := env[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
