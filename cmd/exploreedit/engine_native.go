//go:build native

package main

import (
	"fmt"

	"exploreedit/internal/config"
	"exploreedit/internal/engine"
	"exploreedit/internal/engine/llamaengine"
)

// buildEngine loads the GGUF model named in cfg.Engine.ModelPath through
// the native llama.cpp binding.
func buildEngine(cfg config.Config) (engine.Engine, func() error, error) {
	if cfg.Engine.ModelPath == "" {
		return nil, nil, fmt.Errorf("engine.model_path is required for a native build")
	}
	eng, err := llamaengine.New(llamaengine.Options{ModelPath: cfg.Engine.ModelPath})
	if err != nil {
		return nil, nil, err
	}
	return eng, eng.Close, nil
}
