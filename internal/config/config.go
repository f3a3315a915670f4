package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "exploreedit.yaml"

// Config captures the editor's runtime and logging settings (§6.3).
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig governs scheduling and the model the native engine loads.
// SnapshotFreq, PredictMain and PredictAlt map directly onto
// scheduler.Config and editor.Config.
type EngineConfig struct {
	ModelPath    string `yaml:"model_path"`
	SnapshotFreq int    `yaml:"snapshot_freq"`
	PredictMain  int    `yaml:"predict_main"`
	PredictAlt   int    `yaml:"predict_alt"`
}

// LoggingConfig controls where diagnostic output goes.
type LoggingConfig struct {
	ToFile bool `yaml:"to_file"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			SnapshotFreq: 10,
			PredictMain:  6,
			PredictAlt:   4,
		},
	}
}

// Resolve loads configuration from file (APP_CONFIG env var, or
// ./exploreedit.yaml if present) and then applies environment overrides.
func Resolve() (Config, error) {
	cfg := Default()

	path := strings.TrimSpace(os.Getenv("APP_CONFIG"))
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	} else if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("provided APP_CONFIG file %q not found", path)
	}

	if path != "" {
		loaded, err := loadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = merge(cfg, loaded)
	}

	applyEnvOverrides(&cfg)

	if cfg.Engine.SnapshotFreq < 1 {
		return cfg, fmt.Errorf("engine.snapshot_freq must be >= 1, got %d", cfg.Engine.SnapshotFreq)
	}
	if cfg.Engine.PredictMain < 0 || cfg.Engine.PredictAlt < 0 {
		return cfg, errors.New("engine.predict_main and engine.predict_alt must be >= 0")
	}

	return cfg, nil
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %q: %w", path, err)
	}

	return cfg, nil
}

// merge overlays non-zero override values onto the base config.
func merge(base, override Config) Config {
	result := base

	if override.Engine.ModelPath != "" {
		result.Engine.ModelPath = override.Engine.ModelPath
	}
	if override.Engine.SnapshotFreq != 0 {
		result.Engine.SnapshotFreq = override.Engine.SnapshotFreq
	}
	if override.Engine.PredictMain != 0 {
		result.Engine.PredictMain = override.Engine.PredictMain
	}
	if override.Engine.PredictAlt != 0 {
		result.Engine.PredictAlt = override.Engine.PredictAlt
	}
	if override.Logging.ToFile {
		result.Logging.ToFile = true
	}

	return result
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("APP_NATIVE_MODEL")); v != "" {
		cfg.Engine.ModelPath = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_SNAPSHOT_FREQ")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.SnapshotFreq = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_PREDICT_MAIN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.PredictMain = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_PREDICT_ALT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.PredictAlt = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_LOG_TO_FILE")); v != "" {
		cfg.Logging.ToFile = v == "1" || strings.EqualFold(v, "true")
	}
}
