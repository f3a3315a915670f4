// Package mockengine provides the deterministic greedy-argmax engine used
// by the scheduler and tree tests described in the testable-properties
// scenarios: a fixed 256-entry byte vocabulary and a logit function whose
// argmax is always the byte following whatever was last fed, wrapping
// around. No real model weights are involved.
package mockengine

import (
	"context"
	"fmt"

	"exploreedit/internal/engine"
)

// VocabSize is the number of distinct tokens the mock understands: every
// byte value.
const VocabSize = 256

// bosToken is a sentinel outside the byte range.
const bosToken int32 = 256

// Engine is a stateful mock: its only piece of state is the last token it
// was fed, which is exactly what its fixed logit function needs and
// exactly what SaveState/LoadState round-trip.
type Engine struct {
	last int32
}

// New returns a mock engine positioned at an empty context.
func New() *Engine {
	return &Engine{last: -1}
}

func (e *Engine) Tokenize(text string, addBOS bool) ([]int32, error) {
	var toks []int32
	if addBOS {
		toks = append(toks, bosToken)
	}
	for i := 0; i < len(text); i++ {
		toks = append(toks, int32(text[i]))
	}
	return toks, nil
}

func (e *Engine) Detokenize(tok int32) ([]byte, error) {
	if tok == bosToken {
		return nil, nil
	}
	if tok < 0 || tok >= VocabSize {
		return nil, fmt.Errorf("mockengine: token %d out of vocab range", tok)
	}
	return []byte{byte(tok)}, nil
}

func (e *Engine) VocabSize() int  { return VocabSize }
func (e *Engine) BOSToken() int32 { return bosToken }
func (e *Engine) StateSize() int  { return 4 }

func (e *Engine) SaveState() ([]byte, error) {
	u := uint32(e.last)
	return []byte{byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}, nil
}

func (e *Engine) LoadState(data []byte) error {
	if len(data) != 4 {
		return fmt.Errorf("mockengine: bad state size %d", len(data))
	}
	e.last = int32(uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]))
	return nil
}

// Forward feeds batch through the mock cache in order, updating last as
// it goes, and returns a logit vector per requested position predicting
// whatever token follows the one just fed.
func (e *Engine) Forward(ctx context.Context, batch []engine.BatchEntry) ([][]float32, error) {
	var out [][]float32
	for _, b := range batch {
		if b.Token != bosToken {
			e.last = b.Token
		}
		if b.LogitsRequested {
			out = append(out, e.logitsAfter(e.last))
		}
	}
	return out, nil
}

func (e *Engine) logitsAfter(prev int32) []float32 {
	target := prev + 1
	if prev < 0 {
		target = 0
	}
	target = ((target % VocabSize) + VocabSize) % VocabSize

	logits := make([]float32, VocabSize)
	for t := 0; t < VocabSize; t++ {
		dist := t - int(target)
		if dist < 0 {
			dist = -dist
		}
		logits[t] = -float32(dist)
	}
	return logits
}
