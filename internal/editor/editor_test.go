package editor_test

import (
	"context"
	"testing"
	"time"

	"exploreedit/internal/editor"
	"exploreedit/internal/engine/mockengine"
	"exploreedit/internal/tokentree"
)

func waitIdle(t *testing.T, a *editor.Adapter, ctx context.Context) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !a.Idle() {
		if time.Now().After(deadline) {
			t.Fatal("editor did not settle within the test deadline")
		}
		if !a.Tick(ctx) {
			time.Sleep(time.Millisecond)
		}
	}
}

func TestInsertThenRequestAltsProducesPredictions(t *testing.T) {
	ctx := context.Background()
	var tailFrom int
	var tailText string
	cb := tokentree.Callbacks{
		OnTailReplace: func(from int, text string) { tailFrom, tailText = from, text },
	}
	a := editor.New(mockengine.New(), editor.Config{SnapshotFreq: 10, PredictMain: 2, PredictAlt: 1}, cb)

	if err := a.Insert(ctx, 0, "AB"); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, a, ctx)

	a.RequestAltsAt(ctx, 2)
	waitIdle(t, a, ctx)

	root := a.Tree().Root
	node := root
	for len(node.Children) > 0 && node.SelectedChild().IsAccepted {
		node = node.SelectedChild()
	}
	if len(node.Children) == 0 {
		t.Fatal("expected RequestAltsAt to produce at least one lateral prediction")
	}
	_ = tailFrom
	_ = tailText
}

func TestAltCommitAdvancesCursorPastCommittedToken(t *testing.T) {
	ctx := context.Background()
	a := editor.New(mockengine.New(), editor.Config{SnapshotFreq: 10, PredictMain: 1, PredictAlt: 1}, tokentree.Callbacks{})

	if err := a.Insert(ctx, 0, "A"); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, a, ctx)

	a.RequestAltsAt(ctx, 1)
	waitIdle(t, a, ctx)

	before := a.AltCommit(ctx, 1)
	waitIdle(t, a, ctx)
	if before <= 1 {
		t.Fatalf("expected AltCommit to advance the cursor past the committed token, got %d", before)
	}
}
