//go:build native

// Package llamaengine adapts the cgo llama.cpp binding in internal/native
// to the engine.Engine contract, so a real GGUF model can drive the token
// tree exactly like mockengine does in tests.
package llamaengine

import (
	"context"
	"fmt"
	"sync"

	"exploreedit/internal/engine"
	"exploreedit/internal/native"
)

// Engine runs inference through a loaded GGUF model and context.
//
// Snapshot is a simplification: the binding exposes no call to serialize
// or restore KV cache state, only to clear or truncate it. SaveState
// therefore always returns an error, so the scheduler never captures a
// snapshot against this engine. The only snapshot LoadState ever sees is
// the root's, which carries no data: LoadState clears the KV cache for it,
// which is exactly the empty state a replay from the root starts from.
// Any non-empty snapshot is rejected with an error after the cache is
// cleared.
type Engine struct {
	model *native.Model
	ctx   *native.Context

	mu sync.Mutex
}

// Options configures model and context construction.
type Options struct {
	ModelPath string
	Model     native.ModelOptions
	Context   native.ContextOptions
}

// New loads the model and opens an inference context.
func New(opts Options) (*Engine, error) {
	native.BackendInit()

	model, err := native.LoadModel(opts.ModelPath, opts.Model)
	if err != nil {
		return nil, fmt.Errorf("llamaengine: %w: %w", engine.ErrModelLoad, err)
	}

	ctxOpts := opts.Context
	if ctxOpts.NCtx == 0 {
		ctxOpts = native.DefaultContextOptions()
	}
	ctx, err := native.NewContext(model, ctxOpts)
	if err != nil {
		model.Close()
		return nil, fmt.Errorf("llamaengine: %w: %w", engine.ErrModelLoad, err)
	}

	return &Engine{model: model, ctx: ctx}, nil
}

// Close releases the context and model.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ctx.Close(); err != nil {
		return err
	}
	return e.model.Close()
}

func (e *Engine) Tokenize(text string, addBOS bool) ([]int32, error) {
	return e.model.Tokenize(text, addBOS, true)
}

func (e *Engine) Detokenize(tok int32) ([]byte, error) {
	return []byte(e.model.TokenToPiece(tok)), nil
}

// Forward feeds batch in order against the context's running KV cache and
// returns logits for every entry that requested them, in batch order.
// The scheduler always hands it a contiguous chain starting at the
// context's current position (§4.2.3), so no position juggling is needed
// beyond what Context.EvalLogitsAll already does.
func (e *Engine) Forward(ctx context.Context, batch []engine.BatchEntry) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(batch) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := make([]int32, len(batch))
	for i, b := range batch {
		tokens[i] = b.Token
	}

	if err := e.ctx.EvalLogitsAll(tokens); err != nil {
		return nil, fmt.Errorf("llamaengine: forward: %w", err)
	}

	vocabSize := e.VocabSize()

	out := make([][]float32, 0, len(batch))
	for i, b := range batch {
		if !b.LogitsRequested {
			continue
		}
		dist := e.ctx.GetLogitsAt(int32(i), int32(vocabSize))
		if dist == nil {
			return nil, fmt.Errorf("llamaengine: forward: no logits at batch index %d", i)
		}
		cp := make([]float32, len(dist))
		copy(cp, dist)
		out = append(out, cp)
	}
	return out, nil
}

func (e *Engine) StateSize() int {
	return 0
}

// SaveState always fails: see the Engine doc comment.
func (e *Engine) SaveState() ([]byte, error) {
	return nil, fmt.Errorf("llamaengine: KV snapshot capture is not supported by this binding")
}

// LoadState resets the KV cache. Empty data (the root's snapshot) is
// restored exactly by that; it cannot restore arbitrary prior state.
func (e *Engine) LoadState(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx.ClearKV()
	if len(data) == 0 {
		return nil
	}
	return fmt.Errorf("llamaengine: KV snapshot restore is not supported by this binding")
}

func (e *Engine) VocabSize() int {
	return int(e.model.VocabSize())
}

func (e *Engine) BOSToken() int32 {
	return e.model.TokenBOS()
}
