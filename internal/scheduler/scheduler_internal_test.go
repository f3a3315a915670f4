package scheduler

import (
	"testing"

	"exploreedit/internal/engine/mockengine"
	"exploreedit/internal/tokentree"
	"exploreedit/internal/workqueue"
)

// chainOf builds root -> n1 -> n2 -> ... -> nDepth, each accepted, with
// only the root carrying a snapshot.
func chainOf(depth int) *tokentree.Tree {
	tr := tokentree.New(&tokentree.Snapshot{ID: "root"}, mockengine.New().BOSToken(), tokentree.Callbacks{})
	cur := tr.Root
	for i := 1; i <= depth; i++ {
		child := &tokentree.Node{
			Tok:        int32(i),
			Str:        []byte{byte(i)},
			StrSize:    1,
			BasePos:    i - 1,
			Depth:      i,
			IsAccepted: true,
			Parent:     cur,
		}
		cur.Children = []*tokentree.Node{child}
		cur.Sel = 0
		cur = child
	}
	return tr
}

func TestPrepareBatchSingleStepWhenCtxAdjacent(t *testing.T) {
	tr := chainOf(5)
	target := tr.Root.Children[0]
	s := New(tr, workqueue.New(), mockengine.New(), Config{SnapshotFreq: 10})
	s.ctxState = target.Parent

	batch, workBase, snap := s.prepareBatch(target)
	if len(batch) != 1 || batch[0].node != target {
		t.Fatalf("expected a single-entry batch of target, got %+v", batch)
	}
	if !batch[0].logitsRequested {
		t.Fatal("expected logits requested on the only batch position")
	}
	if workBase != target {
		t.Fatalf("expected work base to be target, got %+v", workBase)
	}
	if snap != nil {
		t.Fatal("expected no snapshot restore needed when ctx is already adjacent")
	}
}

func TestPrepareBatchReplaysFromNearestSnapshot(t *testing.T) {
	tr := chainOf(8)
	// find the deepest node (depth 8)
	deepest := tr.Root
	for len(deepest.Children) > 0 {
		deepest = deepest.Children[0]
	}
	s := New(tr, workqueue.New(), mockengine.New(), Config{SnapshotFreq: 10})
	s.ctxState = nil // force a replay: only the root carries a snapshot

	batch, workBase, snap := s.prepareBatch(deepest)
	if workBase != tr.Root {
		t.Fatalf("expected work base to be the snapshot-owning root, got depth %d", workBase.Depth)
	}
	if snap == nil {
		t.Fatal("expected a snapshot to restore from")
	}
	if len(batch) != deepest.Depth+1 {
		t.Fatalf("expected batch to replay root..deepest (%d entries), got %d", deepest.Depth+1, len(batch))
	}
	if batch[0].node != tr.Root {
		t.Fatalf("expected replay to start at root, got depth %d", batch[0].node.Depth)
	}
	if batch[len(batch)-1].node != deepest {
		t.Fatal("expected replay to end at the requested target")
	}
	if !batch[len(batch)-1].logitsRequested {
		t.Fatal("expected the final batch position to always request logits")
	}
}

func TestPrepareBatchBoundedBySnapshotFreq(t *testing.T) {
	// With a snapshot every 3 depths and snapshots placed at every third
	// node, a replay from the nearest snapshot should never exceed
	// snapshot_freq tokens.
	tr := tokentree.New(&tokentree.Snapshot{ID: "root"}, mockengine.New().BOSToken(), tokentree.Callbacks{})
	cur := tr.Root
	const freq = 3
	const total = 10
	var nodes []*tokentree.Node
	for i := 1; i <= total; i++ {
		child := &tokentree.Node{
			Tok: int32(i), Str: []byte{byte(i)}, StrSize: 1,
			BasePos: i - 1, Depth: i, IsAccepted: true, Parent: cur,
		}
		if i%freq == 0 {
			child.Snapshot = &tokentree.Snapshot{ID: "s"}
		}
		cur.Children = []*tokentree.Node{child}
		cur.Sel = 0
		cur = child
		nodes = append(nodes, child)
	}

	s := New(tr, workqueue.New(), mockengine.New(), Config{SnapshotFreq: freq})
	s.ctxState = nil

	target := nodes[total-1]
	batch, _, _ := s.prepareBatch(target)
	if len(batch) > freq {
		t.Fatalf("replay batch length %d exceeds snapshot_freq %d", len(batch), freq)
	}
}

func TestArgmaxExcluding(t *testing.T) {
	dist := []float32{1, 5, 9, 3}
	if got := argmaxExcluding(dist, nil); got != 2 {
		t.Fatalf("argmax = %d, want 2", got)
	}
	if got := argmaxExcluding(dist, []int32{2}); got != 1 {
		t.Fatalf("argmax excluding 2 = %d, want 1", got)
	}
}
