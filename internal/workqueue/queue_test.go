package workqueue

import (
	"testing"

	"exploreedit/internal/tokentree"
)

func node(depth int) *tokentree.Node {
	return &tokentree.Node{Depth: depth}
}

func TestEnqueueFIFO(t *testing.T) {
	q := New()
	a, b := node(0), node(1)
	q.Enqueue(Score, a, 0)
	q.Enqueue(Predict, b, 4)

	h, ok := q.Head()
	if !ok || h.Target != a || h.Kind != Score {
		t.Fatalf("expected head to be the first-enqueued SCORE job, got %+v", h)
	}
	q.PopHead()
	h, ok = q.Head()
	if !ok || h.Target != b || h.Kind != Predict {
		t.Fatalf("expected head to be the PREDICT job after popping, got %+v", h)
	}
}

func TestInjectAtHeadWhenIdle(t *testing.T) {
	q := New()
	q.Enqueue(Predict, node(0), 4)
	urgent := node(0)
	q.Inject(Score, urgent, 0, false)

	h, _ := q.Head()
	if h.Target != urgent || h.Kind != Score {
		t.Fatalf("expected injected job at head when idle, got %+v", h)
	}
}

func TestInjectAfterInFlightHeadWhenBusy(t *testing.T) {
	q := New()
	inFlight := node(0)
	tail := node(1)
	q.Enqueue(Predict, inFlight, 4)
	q.Enqueue(Predict, tail, 4)

	urgent := node(0)
	q.Inject(Score, urgent, 0, true)

	if q.Len() != 3 {
		t.Fatalf("expected 3 jobs after inject, got %d", q.Len())
	}
	h, _ := q.Head()
	if h.Target != inFlight {
		t.Fatalf("inject must not disturb the in-flight head, got %+v", h)
	}
	q.PopHead()
	h, _ = q.Head()
	if h.Target != urgent {
		t.Fatalf("expected the injected job immediately after the in-flight head, got %+v", h)
	}
	q.PopHead()
	h, _ = q.Head()
	if h.Target != tail {
		t.Fatalf("expected the original tail job last, got %+v", h)
	}
}

func TestPurgeMarksHeadInvalidAndDropsDeepEntries(t *testing.T) {
	q := New()
	head := node(5)
	shallow := node(2)
	deep := node(6)
	q.Enqueue(Score, head, 0)
	q.Enqueue(Predict, shallow, 4)
	q.Enqueue(Branch, deep, 4)

	q.Purge(4)

	if !q.HeadInvalid() {
		t.Fatal("expected head (depth 5 >= startDepth 4) to be marked invalid")
	}
	if q.Len() != 2 {
		t.Fatalf("expected the deep non-head entry to be dropped, len=%d", q.Len())
	}
	q.DropInvalidHead()
	h, ok := q.Head()
	if !ok || h.Target != shallow {
		t.Fatalf("expected the shallow entry to survive purge, got %+v ok=%v", h, ok)
	}
}

func TestPurgeLeavesShallowHeadValid(t *testing.T) {
	q := New()
	head := node(1)
	q.Enqueue(Score, head, 0)
	q.Purge(4)
	if q.HeadInvalid() {
		t.Fatal("head shallower than startDepth must not be invalidated")
	}
}

func TestPurgePredictionsKeepsHeadAndScoreJobs(t *testing.T) {
	q := New()
	headPredict := node(0)
	score := node(1)
	predict := node(2)
	branch := node(3)
	q.Enqueue(Predict, headPredict, 4)
	q.Enqueue(Score, score, 0)
	q.Enqueue(Predict, predict, 4)
	q.Enqueue(Branch, branch, 4)

	q.PurgePredictions()

	if q.Len() != 2 {
		t.Fatalf("expected head + SCORE job to survive, got %d entries", q.Len())
	}
	h, _ := q.Head()
	if h.Target != headPredict {
		t.Fatal("PurgePredictions must never remove the head even if it is a PREDICT job")
	}
	q.PopHead()
	h, _ = q.Head()
	if h.Target != score {
		t.Fatalf("expected the SCORE job to survive PurgePredictions, got %+v", h)
	}
}
