// Package tokentree implements the core data structure of the exploratory
// editor: a root-rooted arborescence of token nodes representing both the
// committed document and the model's unaccepted lateral predictions.
package tokentree

import "unicode/utf8"

// Snapshot is an opaque, immutable capture of the inference engine's KV
// cache state at a specific tree node. It is safe to share by reference
// across many nodes; Go's garbage collector retires it once the last
// referencing node is gone, which is exactly the "lifetime = longest
// holder" rule called for by the node invariants.
type Snapshot struct {
	// ID is a correlation id for structured logging, not part of the
	// engine contract itself.
	ID string
	// Data is the opaque engine-owned state blob.
	Data []byte
}

// Node is one token in the document or one of its predicted continuations
// (a "TTE" in the original design notes).
type Node struct {
	Tok int32
	Str []byte

	// StrSize is the number of document bytes this node contributes. See
	// computeStrSize for the continuation-byte rule.
	StrSize int

	BasePos int
	Depth   int

	Children []*Node
	Sel      int
	Parent   *Node

	IsAccepted bool

	HasLogit bool
	Logit    float32
	MaxLogit float32

	Snapshot *Snapshot
}

// newNode builds a node for token tok whose engine-supplied bytes are str,
// placed at depth/basePos under parent. It does not link the node into
// parent.Children; callers splice it in themselves so that reconciliation
// code can decide where in the slice it goes.
func newNode(parent *Node, tok int32, str []byte, depth, basePos int) *Node {
	return &Node{
		Tok:        tok,
		Str:        str,
		StrSize:    computeStrSize(str),
		BasePos:    basePos,
		Depth:      depth,
		Parent:     parent,
		IsAccepted: true,
	}
}

// computeStrSize implements the §3.1 rule: a prefix path's summed StrSize
// equals the byte length of the longest valid-UTF-8 prefix of the path's
// concatenated Str bytes. A node whose Str is itself valid UTF-8 (the
// common case — one token, one or more whole codepoints) contributes its
// full length. A node whose Str is a fragment of a split codepoint
// contributes 1 if it begins a codepoint, 0 if it is a continuation byte.
func computeStrSize(str []byte) int {
	if len(str) == 0 {
		return 0
	}
	if utf8.Valid(str) {
		return len(str)
	}
	if str[0]&0xC0 == 0x80 {
		return 0
	}
	return 1
}

// SelectedChild returns the child on the currently selected branch, or nil
// if this node has no children.
func (n *Node) SelectedChild() *Node {
	if n == nil || len(n.Children) == 0 {
		return nil
	}
	return n.Children[n.Sel]
}

// ClearChildren drops all children (and, transitively, their snapshots and
// descendants) by unlinking them. Go's GC reclaims anything no longer
// reachable; there is no explicit free step as in the original arena
// design.
func (n *Node) ClearChildren() {
	n.Children = nil
	n.Sel = 0
}

// AppendChild appends a new child and, if it is the first child, selects
// it.
func (n *Node) AppendChild(c *Node) {
	c.Parent = n
	n.Children = append(n.Children, c)
}

// ChildTokens returns the token ids of all children, used by BRANCH to
// build the vocabulary exclude set.
func (n *Node) ChildTokens() []int32 {
	toks := make([]int32, len(n.Children))
	for i, c := range n.Children {
		toks[i] = c.Tok
	}
	return toks
}

// NewPredictionChild builds an unaccepted child of parent for token tok
// whose engine-supplied bytes are str, with logit and maxLogit already
// stamped (PREDICT/BRANCH always have a logit in hand before creating the
// node). It does not link the child into parent.Children; callers use
// AppendChild themselves.
func NewPredictionChild(parent *Node, tok int32, str []byte, logit, maxLogit float32) *Node {
	return &Node{
		Tok:        tok,
		Str:        str,
		StrSize:    computeStrSize(str),
		BasePos:    parent.BasePos + parent.StrSize,
		Depth:      parent.Depth + 1,
		IsAccepted: false,
		HasLogit:   true,
		Logit:      logit,
		MaxLogit:   maxLogit,
	}
}
