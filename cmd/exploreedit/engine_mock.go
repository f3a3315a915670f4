//go:build !native

package main

import (
	"exploreedit/internal/config"
	"exploreedit/internal/engine"
	"exploreedit/internal/engine/mockengine"
)

// buildEngine returns the deterministic byte-vocabulary engine used when
// the binary is built without the native llama.cpp bindings. It never
// fails: there is no model file to miss.
func buildEngine(cfg config.Config) (engine.Engine, func() error, error) {
	return mockengine.New(), func() error { return nil }, nil
}
