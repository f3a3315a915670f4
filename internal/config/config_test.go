package config

import "testing"

func TestMergeOverridesNonZeroFields(t *testing.T) {
	base := Config{}
	base.Engine.ModelPath = "base.gguf"
	base.Engine.SnapshotFreq = 10
	base.Engine.PredictMain = 6
	base.Engine.PredictAlt = 4

	override := Config{}
	override.Engine.SnapshotFreq = 20

	result := merge(base, override)
	if result.Engine.SnapshotFreq != 20 {
		t.Errorf("SnapshotFreq = %d, want 20", result.Engine.SnapshotFreq)
	}
	if result.Engine.ModelPath != "base.gguf" {
		t.Errorf("ModelPath lost on merge: got %q", result.Engine.ModelPath)
	}
	if result.Engine.PredictMain != 6 || result.Engine.PredictAlt != 4 {
		t.Errorf("unrelated fields disturbed: PredictMain=%d PredictAlt=%d", result.Engine.PredictMain, result.Engine.PredictAlt)
	}
}

func TestMergeLeavesZeroOverridesAlone(t *testing.T) {
	base := Config{}
	base.Engine.PredictAlt = 4
	override := Config{}

	result := merge(base, override)
	if result.Engine.PredictAlt != 4 {
		t.Errorf("PredictAlt = %d, want 4 (zero override must not clobber base)", result.Engine.PredictAlt)
	}
}

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	d := Default()
	if d.Engine.SnapshotFreq != 10 {
		t.Errorf("default SnapshotFreq = %d, want 10", d.Engine.SnapshotFreq)
	}
	if d.Engine.PredictMain != 6 {
		t.Errorf("default PredictMain = %d, want 6", d.Engine.PredictMain)
	}
	if d.Engine.PredictAlt != 4 {
		t.Errorf("default PredictAlt = %d, want 4", d.Engine.PredictAlt)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("APP_SNAPSHOT_FREQ", "7")
	t.Setenv("APP_PREDICT_MAIN", "3")
	t.Setenv("APP_LOG_TO_FILE", "true")

	cfg := Default()
	applyEnvOverrides(&cfg)

	if cfg.Engine.SnapshotFreq != 7 {
		t.Errorf("SnapshotFreq = %d, want 7", cfg.Engine.SnapshotFreq)
	}
	if cfg.Engine.PredictMain != 3 {
		t.Errorf("PredictMain = %d, want 3", cfg.Engine.PredictMain)
	}
	if !cfg.Logging.ToFile {
		t.Error("expected APP_LOG_TO_FILE=true to enable file logging")
	}
}
