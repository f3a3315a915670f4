package tokentree

import "strings"

// Callbacks are the UI-facing notifications emitted by the core, mirroring
// the teacher's preference for a struct-of-function-fields over a heavy
// observer interface (compare runtime.StreamCallback in the ambient stack).
// Any or all fields may be left nil; emission is skipped in that case.
type Callbacks struct {
	// OnInvalidate reports a byte range whose colouring/annotation should
	// be cleared.
	OnInvalidate func(from, to int)
	// OnLogit reports the byte range covered by a newly scored token and
	// its normalised logit (<= 0; 0 = argmax).
	OnLogit func(from, to int, logitMinusMax float32)
	// OnPredictionsChanged signals that above/selected/below prediction
	// strings should be refetched.
	OnPredictionsChanged func()
	// OnTailReplace reports that the document suffix starting at from
	// should be replaced with text.
	OnTailReplace func(from int, text string)
}

func (c Callbacks) invalidate(from, to int) {
	if c.OnInvalidate != nil {
		c.OnInvalidate(from, to)
	}
}

func (c Callbacks) logit(from, to int, v float32) {
	if c.OnLogit != nil {
		c.OnLogit(from, to, v)
	}
}

func (c Callbacks) predictionsChanged() {
	if c.OnPredictionsChanged != nil {
		c.OnPredictionsChanged()
	}
}

func (c Callbacks) tailReplace(from int, text string) {
	if c.OnTailReplace != nil {
		c.OnTailReplace(from, text)
	}
}

// Tokenizer is the minimal slice of the inference engine contract that the
// tree needs for reconciliation: turning edited text into tokens and
// turning a token back into the bytes it contributes to the document. It
// is declared locally (rather than importing the engine package) so that
// any engine implementation — mock or native — satisfies it structurally.
type Tokenizer interface {
	Tokenize(text string, addBOS bool) ([]int32, error)
	Detokenize(tok int32) ([]byte, error)
}

// Tree is the root-rooted arborescence of Nodes.
type Tree struct {
	Root *Node
	cb   Callbacks
}

// New constructs a tree with a sentinel root carrying rootSnapshot (the
// engine's initial KV-cache state, generally "just after BOS" or empty)
// and bosToken, the engine's real BOS token id. Root.Tok must hold this
// value (not a placeholder like 0) so that Rebuild's prefix-match against
// a re-tokenised anchor recognises Root itself as already representing
// BOS, instead of allocating a phantom child node for it.
func New(rootSnapshot *Snapshot, bosToken int32, cb Callbacks) *Tree {
	root := &Node{
		Tok:        bosToken,
		Str:        nil,
		StrSize:    0,
		BasePos:    0,
		Depth:      0,
		IsAccepted: true,
		Snapshot:   rootSnapshot,
	}
	return &Tree{Root: root, cb: cb}
}

// Callbacks returns the tree's registered UI callbacks.
func (t *Tree) Callbacks() Callbacks { return t.cb }

// PosToNode returns the node on the selected path that ends at or spans p,
// i.e. whose range (BasePos, BasePos+StrSize] contains p: the token just
// before a cursor at p (the root when p is 0). It walks the selected path from the root, accumulating
// StrSize, skipping over zero-width continuation-byte nodes even once the
// accumulated offset reaches p (so it never stops mid-codepoint), then
// returns the parent of the first overshooting node.
func (t *Tree) PosToNode(p int) *Node {
	offs := 0
	cur := t.Root
	for cur == t.Root || offs < p || cur.StrSize == 0 {
		offs += cur.StrSize
		if len(cur.Children) == 0 {
			return cur
		}
		cur = cur.Children[cur.Sel]
	}
	return cur.Parent
}

// PosToWordNode walks back from the anchor used by PosToNode through
// parents until a node whose Str contains a space (or the root) is
// reached. It is the anchor used for re-tokenisation: starting from a word
// boundary prevents splitting multi-byte tokens and maximises prefix
// reuse.
func (t *Tree) PosToWordNode(p int) *Node {
	offs := 0
	cur := t.Root
	skippedHop := false
	for offs < p {
		offs += cur.StrSize
		if len(cur.Children) == 0 {
			skippedHop = true
			break
		}
		cur = cur.Children[cur.Sel]
	}
	if !skippedHop && cur.Parent != nil {
		cur = cur.Parent
	}
	for cur.Parent != nil && !strings.Contains(string(cur.Str), " ") {
		if skippedHop {
			skippedHop = false
			continue
		}
		cur = cur.Parent
	}
	return cur
}

// Render concatenates Str along the selected path starting at node
// (inclusive), stopping at end-of-tree, after maxTokens nodes, or at the
// first unaccepted node unless includePredictions is set. maxTokens <= 0
// means unbounded.
func (t *Tree) Render(node *Node, maxTokens int, includePredictions bool) string {
	var b strings.Builder
	cur := node
	count := 0
	for cur != nil {
		if maxTokens > 0 && count >= maxTokens {
			break
		}
		if !includePredictions && !cur.IsAccepted {
			break
		}
		b.Write(cur.Str)
		count++
		cur = cur.SelectedChild()
	}
	return b.String()
}
