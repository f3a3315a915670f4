package scheduler_test

import (
	"context"
	"testing"
	"time"

	"exploreedit/internal/engine/mockengine"
	"exploreedit/internal/scheduler"
	"exploreedit/internal/tokentree"
	"exploreedit/internal/workqueue"
)

func drainFully(t *testing.T, s *scheduler.Scheduler, q *workqueue.Queue, ctx context.Context) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !q.Empty() || s.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler did not drain within the test deadline")
		}
		if !s.Drain(ctx) {
			time.Sleep(time.Millisecond)
		}
	}
}

func TestPredictCreatesUnacceptedChild(t *testing.T) {
	ctx := context.Background()
	eng := mockengine.New()
	tr := tokentree.New(&tokentree.Snapshot{ID: "root"}, eng.BOSToken(), tokentree.Callbacks{})
	q := workqueue.New()
	s := scheduler.New(tr, q, eng, scheduler.Config{SnapshotFreq: 10, PredictMain: 2, PredictAlt: 1})

	q.Enqueue(workqueue.Predict, tr.Root, 0)
	s.TryStart(ctx)
	drainFully(t, s, q, ctx)

	if len(tr.Root.Children) == 0 {
		t.Fatal("expected PREDICT to create at least one child")
	}
	sc := tr.Root.SelectedChild()
	if sc.IsAccepted {
		t.Fatal("PREDICT's created child must be unaccepted")
	}
}

func TestBranchWidthAndDistinctTokens(t *testing.T) {
	ctx := context.Background()
	eng := mockengine.New()
	tr := tokentree.New(&tokentree.Snapshot{ID: "root"}, eng.BOSToken(), tokentree.Callbacks{})
	q := workqueue.New()
	s := scheduler.New(tr, q, eng, scheduler.Config{SnapshotFreq: 10, PredictMain: 0, PredictAlt: 0})

	q.Enqueue(workqueue.Branch, tr.Root, 0)
	s.TryStart(ctx)
	drainFully(t, s, q, ctx)

	if len(tr.Root.Children) < tr.Root.Sel+2 {
		t.Fatalf("BRANCH width postcondition violated: %d children, sel=%d", len(tr.Root.Children), tr.Root.Sel)
	}
	seen := map[int32]bool{}
	for _, c := range tr.Root.Children {
		if seen[c.Tok] {
			t.Fatalf("BRANCH produced duplicate token %d among children", c.Tok)
		}
		seen[c.Tok] = true
	}
}

func TestScorePropagatesDownAcceptedChain(t *testing.T) {
	ctx := context.Background()
	eng := mockengine.New()
	tr := tokentree.New(&tokentree.Snapshot{ID: "root"}, eng.BOSToken(), tokentree.Callbacks{})
	q := workqueue.New()
	s := scheduler.New(tr, q, eng, scheduler.Config{SnapshotFreq: 10})

	if err := tr.Rebuild(tr.Root, "AB", 0, 0, eng); err != nil {
		t.Fatal(err)
	}

	q.Enqueue(workqueue.Score, tr.Root, 0)
	s.TryStart(ctx)
	drainFully(t, s, q, ctx)

	var chain []*tokentree.Node
	for cur := tr.Root.SelectedChild(); cur != nil && cur.IsAccepted; cur = cur.SelectedChild() {
		if !cur.HasLogit {
			t.Fatalf("expected accepted node at depth %d to have a logit after SCORE propagation", cur.Depth)
		}
		if cur.Logit > cur.MaxLogit {
			t.Fatalf("monotonic scoring violated: logit %f > max_logit %f", cur.Logit, cur.MaxLogit)
		}
		chain = append(chain, cur)
	}
	if len(chain) < 2 {
		t.Fatalf("expected at least the two tokenized bytes on the accepted chain, got %d nodes", len(chain))
	}
	last := chain[len(chain)-1]
	if string(last.Str) != "B" {
		t.Fatalf("expected the deepest accepted node to be %q, got %q", "B", last.Str)
	}
}

func TestPurgeDuringInFlightPassDiscardsResult(t *testing.T) {
	ctx := context.Background()
	eng := mockengine.New()
	tr := tokentree.New(&tokentree.Snapshot{ID: "root"}, eng.BOSToken(), tokentree.Callbacks{})
	q := workqueue.New()
	s := scheduler.New(tr, q, eng, scheduler.Config{SnapshotFreq: 10})

	q.Enqueue(workqueue.Predict, tr.Root, 0)
	s.TryStart(ctx) // launches the pass, busy=true
	if !s.Busy() {
		t.Fatal("expected a pass to be in flight immediately after TryStart")
	}
	q.Purge(0) // simulate a rapid second request invalidating the first

	drainFully(t, s, q, ctx)

	if len(tr.Root.Children) != 0 {
		t.Fatal("expected the purged PREDICT pass's result to be discarded")
	}
}
