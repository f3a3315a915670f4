// Package editor wires the token tree, work queue, scheduler and engine
// together behind the editing operations a UI actually calls: insert,
// erase, cursor movement and the lateral-alternative commands.
package editor

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"

	"exploreedit/internal/engine"
	"exploreedit/internal/scheduler"
	"exploreedit/internal/sessionlog"
	"exploreedit/internal/telemetry"
	"exploreedit/internal/tokentree"
	"exploreedit/internal/workqueue"
)

// Config is the editor-facing subset of the external configuration (§6.3).
type Config struct {
	SnapshotFreq int
	PredictMain  int
	PredictAlt   int
}

// Adapter is the single entry point a UI (TUI, server, whatever) drives.
// Every exported method runs on the caller's goroutine, which must be the
// same goroutine for every call — it is the "editor thread" of §5.
type Adapter struct {
	tree  *tokentree.Tree
	queue *workqueue.Queue
	sched *scheduler.Scheduler
	eng   engine.Engine
	cfg   Config

	sessionLog *sessionlog.Log
	telemetry  *telemetry.Recorder
	passSeq    int64
}

// Option configures optional side-channel recorders on an Adapter.
type Option func(*Adapter)

// WithSessionLog appends every accepted commit to an audit trail.
func WithSessionLog(l *sessionlog.Log) Option {
	return func(a *Adapter) { a.sessionLog = l }
}

// WithTelemetry records per-pass scheduler statistics for later analysis.
func WithTelemetry(r *telemetry.Recorder) Option {
	return func(a *Adapter) { a.telemetry = r }
}

// New builds an adapter over a fresh, empty document.
func New(eng engine.Engine, cfg Config, cb tokentree.Callbacks, opts ...Option) *Adapter {
	rootSnap := &tokentree.Snapshot{ID: "initial"}
	if data, err := eng.SaveState(); err == nil {
		rootSnap.Data = data
	}
	tree := tokentree.New(rootSnap, eng.BOSToken(), cb)
	q := workqueue.New()
	sc := scheduler.New(tree, q, eng, scheduler.Config{
		SnapshotFreq: cfg.SnapshotFreq,
		PredictMain:  cfg.PredictMain,
		PredictAlt:   cfg.PredictAlt,
	})
	a := &Adapter{tree: tree, queue: q, sched: sc, eng: eng, cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.telemetry != nil {
		rec := a.telemetry
		sc.OnPassComplete = func(stats scheduler.PassStats) {
			a.passSeq++
			_ = rec.RecordPass(context.Background(), telemetry.PassStats{
				Seq:            a.passSeq,
				JobKind:        stats.JobKind,
				BatchSize:      stats.BatchSize,
				SnapshotTaken:  stats.SnapshotTaken,
				DurationMicros: stats.DurationMicros,
			})
		}
	}
	return a
}

// Tick lets the scheduler observe at most one completed pass and react to
// it; callers invoke this once per event-loop iteration (§5: the editor
// thread polls completion, it never blocks on the engine).
func (a *Adapter) Tick(ctx context.Context) bool {
	return a.sched.Drain(ctx)
}

// Tree exposes the underlying tree read-only access for renderers.
func (a *Adapter) Tree() *tokentree.Tree { return a.tree }

// Idle reports whether the scheduler has no pass in flight and nothing
// queued — useful for tests and for deciding whether to keep polling Tick.
func (a *Adapter) Idle() bool { return !a.sched.Busy() && a.queue.Empty() }

// Insert lays new text into the document at pos.
func (a *Adapter) Insert(ctx context.Context, pos int, text string) error {
	anchor := a.tree.PosToWordNode(pos)
	tail := a.tree.Render(anchor, 0, false)
	newTail := tail[:pos-anchor.BasePos] + text + tail[pos-anchor.BasePos:]
	if err := a.tree.Rebuild(anchor, newTail, pos+len(text), len(text), a.eng); err != nil {
		return err
	}
	a.enqueueScoreOnAnchor(anchor)
	a.sched.TryStart(ctx)
	return nil
}

// Erase removes the document's [from, to) byte range.
func (a *Adapter) Erase(ctx context.Context, from, to int) error {
	anchor := a.tree.PosToWordNode(from)
	tail := a.tree.Render(anchor, 0, false)
	cut := from - anchor.BasePos
	cutTo := to - anchor.BasePos
	newTail := tail[:cut] + tail[cutTo:]
	if err := a.tree.Rebuild(anchor, newTail, from, from-to, a.eng); err != nil {
		return err
	}
	a.enqueueScoreOnAnchor(anchor)
	a.sched.TryStart(ctx)
	return nil
}

func (a *Adapter) enqueueScoreOnAnchor(anchor *tokentree.Node) {
	target := anchor
	if anchor.Parent != nil {
		target = anchor.Parent
	}
	a.queue.Enqueue(workqueue.Score, target, 0)
}

// RequestAltsAt kicks off lateral exploration at pos: a BRANCH to
// guarantee a runner-up alternative, and a PREDICT to keep the ghost text
// extending, both serviced ahead of any pending background work.
func (a *Adapter) RequestAltsAt(ctx context.Context, pos int) {
	node := a.tree.PosToNode(pos)
	a.queue.PurgePredictions()
	a.queue.Inject(workqueue.Branch, node, a.cfg.PredictAlt, a.sched.Busy())
	a.queue.Inject(workqueue.Predict, node, a.cfg.PredictMain, a.sched.Busy())
	a.sched.TryStart(ctx)
}

// AltNext advances the selection at pos to the next lateral alternative,
// if room, and schedules its downstream scoring/branching.
func (a *Adapter) AltNext(ctx context.Context, pos int) {
	node := a.tree.PosToNode(pos)
	if node.Sel+1 >= len(node.Children) {
		return
	}
	node.Sel++
	a.afterSelChange(ctx, node)
}

// AltPrev is the symmetric counterpart of AltNext.
func (a *Adapter) AltPrev(ctx context.Context, pos int) {
	node := a.tree.PosToNode(pos)
	if node.Sel <= 0 {
		return
	}
	node.Sel--
	a.afterSelChange(ctx, node)
}

func (a *Adapter) afterSelChange(ctx context.Context, node *tokentree.Node) {
	sc := node.SelectedChild()
	a.tree.Actualize(sc)
	a.queue.Enqueue(workqueue.Score, sc, 0)
	a.queue.Inject(workqueue.Branch, node, a.cfg.PredictAlt, a.sched.Busy())
	a.sched.TryStart(ctx)
}

// AltCommit accepts the child currently selected at pos and returns the
// byte offset just past it, skipping any UTF-8 continuation tokens so the
// cursor never lands mid-codepoint.
func (a *Adapter) AltCommit(ctx context.Context, pos int) int {
	node := a.tree.PosToNode(pos)
	sc := node.SelectedChild()
	if sc == nil {
		return pos
	}
	sc.IsAccepted = true
	a.tree.Actualize(sc)
	a.sched.TryStart(ctx)

	if a.sessionLog != nil {
		_ = a.sessionLog.RecordCommit(ctx, uuid.NewString(), sc.BasePos, sc.Tok, string(sc.Str))
	}

	cur := sc
	for len(cur.Children) > 0 {
		next := cur.SelectedChild()
		if next.StrSize == 0 && len(next.Str) > 0 {
			cur = next
			continue
		}
		break
	}
	return cur.BasePos + cur.StrSize
}

// AltBack walks the cursor back one accepted node from pos, skipping over
// UTF-8 continuation-byte tokens, and returns the resulting byte offset.
func (a *Adapter) AltBack(pos int) int {
	node := a.tree.PosToNode(pos)
	if pos == node.BasePos && node.Parent != nil {
		node = node.Parent
	}
	for node.Parent != nil && utf8ContinuationOnly(node.Str) {
		node = node.Parent
	}
	return node.BasePos
}

func utf8ContinuationOnly(str []byte) bool {
	return len(str) > 0 && !utf8.Valid(str) && str[0]&0xC0 == 0x80
}

// Alt describes one lateral alternative at a branch point, for a renderer
// to lay out as a strip of choices around the selected path.
type Alt struct {
	Text          string
	LogitMinusMax float32
	Selected      bool
	Accepted      bool
}

// Alternatives lists the lateral children at pos, in tree order.
func (a *Adapter) Alternatives(pos int) []Alt {
	node := a.tree.PosToNode(pos)
	alts := make([]Alt, len(node.Children))
	for i, c := range node.Children {
		var diff float32
		if c.HasLogit {
			diff = c.Logit - c.MaxLogit
		}
		alts[i] = Alt{Text: string(c.Str), LogitMinusMax: diff, Selected: i == node.Sel, Accepted: c.IsAccepted}
	}
	return alts
}

// GhostText returns the predicted continuation at pos that has not yet
// been accepted into the document — the tail a renderer would dim or
// colour by confidence.
func (a *Adapter) GhostText(pos int) string {
	node := a.tree.PosToNode(pos)
	full := a.tree.Render(node, 0, true)
	accepted := a.tree.Render(node, 0, false)
	if len(full) > len(accepted) {
		return full[len(accepted):]
	}
	return ""
}
