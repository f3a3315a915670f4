// Package engine defines the inference-engine contract the scheduler and
// tree reconciliation depend on, independent of any concrete backend.
package engine

import (
	"context"
	"errors"
)

// ErrModelLoad is wrapped by a backend's constructor when the underlying
// model or context fails to load.
var ErrModelLoad = errors.New("engine: model load failed")

// ErrPassFailure is wrapped by the scheduler when a forward pass's engine
// call fails, distinguishing an engine-side failure from a purged job.
var ErrPassFailure = errors.New("engine: forward pass failed")

// BatchEntry is one position of a forward pass: a token fed at a given
// tree depth, optionally asking the engine to make its resulting logits
// readable.
type BatchEntry struct {
	Token           int32
	Depth           int
	LogitsRequested bool
}

// Engine is the minimal contract a backend must satisfy: tokenization,
// a KV-cache-advancing forward pass, and opaque state snapshotting.
type Engine interface {
	Tokenize(text string, addBOS bool) ([]int32, error)
	Detokenize(tok int32) ([]byte, error)

	// Forward advances the cache through batch in order and returns the
	// logit vector for every entry with LogitsRequested set, in batch
	// order (so len(result) == count of requested entries).
	Forward(ctx context.Context, batch []BatchEntry) ([][]float32, error)

	StateSize() int
	SaveState() ([]byte, error)
	LoadState(data []byte) error

	VocabSize() int
	BOSToken() int32
}
