// Package scheduler drains the work queue against an inference engine: a
// single-consumer loop on the editor goroutine that launches at most one
// forward pass at a time on a dedicated inference goroutine and applies
// its results back to the token tree.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"exploreedit/internal/assert"
	"exploreedit/internal/engine"
	"exploreedit/internal/tokentree"
	"exploreedit/internal/workqueue"
)

// Config mirrors the external configuration surface (§6.3): how sparsely
// to snapshot, and how deep background prediction runs by default.
type Config struct {
	SnapshotFreq int
	PredictMain  int
	PredictAlt   int
}

// PassStats describes one completed forward pass, for callers that want
// to record telemetry without the scheduler depending on a storage
// backend itself.
type PassStats struct {
	JobKind        string
	BatchSize      int
	SnapshotTaken  bool
	DurationMicros int64
}

type batchPos struct {
	node            *tokentree.Node
	logitsRequested bool
}

type passOutcome struct {
	job      workqueue.Job
	workBase *tokentree.Node
	target   *tokentree.Node
	batch    []batchPos
	logits   [][]float32
	err      error
	elapsed  time.Duration
}

// Scheduler owns the work queue, the tree it mutates, and the engine
// handle. All of its methods except the inference goroutine body run on
// the editor goroutine; Drain is how that goroutine observes a completed
// pass.
type Scheduler struct {
	Tree   *tokentree.Tree
	Queue  *workqueue.Queue
	Engine engine.Engine
	Cfg    Config

	busy     bool
	ctxState *tokentree.Node
	done     chan passOutcome

	// OnPassComplete, if set, is invoked on the editor goroutine after each
	// real forward pass has been applied to the tree. It lets a caller wire
	// in telemetry without the scheduler importing a storage backend.
	OnPassComplete func(PassStats)
}

// New builds a scheduler whose engine cache is assumed to already sit
// "after" the tree's root (the common post-BOS starting state).
func New(tree *tokentree.Tree, q *workqueue.Queue, eng engine.Engine, cfg Config) *Scheduler {
	return &Scheduler{
		Tree:     tree,
		Queue:    q,
		Engine:   eng,
		Cfg:      cfg,
		ctxState: tree.Root,
		done:     make(chan passOutcome, 1),
	}
}

// Busy reports whether a pass is currently in flight.
func (s *Scheduler) Busy() bool { return s.busy }

// TryStart drains the head of the queue: popping an invalid head, running
// the fast path when no pass is needed, or launching one asynchronous
// forward pass and returning immediately.
func (s *Scheduler) TryStart(ctx context.Context) {
	if s.busy {
		return
	}
	s.Queue.DropInvalidHead()
	if s.Queue.Empty() {
		return
	}
	head, _ := s.Queue.Head()

	if s.fastPathSkip(head) {
		// Pop first so that work injected by the completion lands right
		// after the finished job instead of ahead of it.
		s.Queue.PopHead()
		s.completeFastPath(head)
		s.TryStart(ctx)
		return
	}

	batch, workBase, snap := s.prepareBatch(head.Target)
	s.busy = true
	go s.runPass(ctx, head, workBase, head.Target, batch, snap)
}

// Drain observes at most one completed pass per call, applying its
// results to the tree and re-entering TryStart. It returns false without
// blocking if no pass has finished.
func (s *Scheduler) Drain(ctx context.Context) bool {
	select {
	case out := <-s.done:
		s.busy = false
		if s.Queue.HeadInvalid() {
			// The job was purged while its pass was in flight: results
			// are discarded and the cache position is unknown, so the
			// next pass is forced to replay from a snapshot.
			s.ctxState = nil
			s.Queue.DropInvalidHead()
		} else if out.err != nil {
			s.ctxState = nil
			s.Queue.PopHead()
		} else {
			s.ctxState = out.target
			s.Queue.PopHead()
			s.completePass(out)
		}
		s.TryStart(ctx)
		return true
	default:
		return false
	}
}

func (s *Scheduler) fastPathSkip(job workqueue.Job) bool {
	switch job.Kind {
	case workqueue.Predict:
		return len(job.Target.Children) > 0
	case workqueue.Branch:
		return len(job.Target.Children) > job.Target.Sel+1
	case workqueue.Score:
		if len(job.Target.Children) == 0 {
			return true
		}
		sc := job.Target.SelectedChild()
		return sc == nil || sc.HasLogit
	}
	return false
}

// completeFastPath applies the same per-kind completion guarantee as a
// real pass would, without any engine involvement, for jobs whose
// postcondition already holds.
func (s *Scheduler) completeFastPath(job workqueue.Job) {
	switch job.Kind {
	case workqueue.Score:
		sc := job.Target.SelectedChild()
		if sc != nil && sc.IsAccepted && sc.HasLogit {
			s.emitLogit(sc)
			s.Queue.Enqueue(workqueue.Score, sc, job.DepthBudget)
		}
	case workqueue.Predict:
		sc := job.Target.SelectedChild()
		if sc != nil && job.DepthBudget > 0 {
			s.Queue.Inject(workqueue.Predict, sc, job.DepthBudget-1, s.busy)
		}
	case workqueue.Branch:
		s.scheduleBranchChildren(job.Target)
	}
}

// prepareBatch implements §4.2.3. It returns the batch to feed, the node
// that will become the new work base, and (if a snapshot restore is
// needed) the snapshot to load before feeding the batch.
func (s *Scheduler) prepareBatch(target *tokentree.Node) ([]batchPos, *tokentree.Node, *tokentree.Snapshot) {
	// Root carries no token of its own; scoring/predicting directly on an
	// empty document feeds BOS as the sole batch entry. The cache is
	// already positioned there when ctxState == Root; otherwise (e.g.
	// after a purge or a failed pass reset ctxState to nil) the engine's
	// position is unknown and must be restored from Root's own snapshot,
	// exactly as the non-root path restores from its nearest ancestor.
	if target == s.Tree.Root {
		if s.ctxState == target {
			return []batchPos{{node: target, logitsRequested: true}}, target, nil
		}
		return []batchPos{{node: target, logitsRequested: true}}, target, target.Snapshot
	}
	if s.ctxState == target.Parent {
		return []batchPos{{node: target, logitsRequested: true}}, target, nil
	}

	var chain []*tokentree.Node
	cur := target.Parent
	for cur != nil && cur.Snapshot == nil {
		chain = append(chain, cur)
		cur = cur.Parent
	}
	p := cur
	if p == nil {
		p = s.Tree.Root
	}
	chain = append(chain, p)

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	chain = append(chain, target)

	batch := make([]batchPos, len(chain))
	for i, n := range chain {
		last := i == len(chain)-1
		needsLogit := last
		if sc := n.SelectedChild(); sc != nil && !sc.HasLogit {
			needsLogit = true
		}
		batch[i] = batchPos{node: n, logitsRequested: needsLogit}
	}
	return batch, p, p.Snapshot
}

func (s *Scheduler) runPass(ctx context.Context, job workqueue.Job, workBase, target *tokentree.Node, batch []batchPos, snap *tokentree.Snapshot) {
	start := time.Now()
	if snap != nil {
		if err := s.Engine.LoadState(snap.Data); err != nil {
			s.done <- passOutcome{job: job, err: fmt.Errorf("%w: snapshot restore: %w", engine.ErrPassFailure, err)}
			return
		}
	}
	entries := make([]engine.BatchEntry, len(batch))
	for i, b := range batch {
		tok := b.node.Tok
		if b.node == s.Tree.Root {
			tok = s.Engine.BOSToken()
		}
		entries[i] = engine.BatchEntry{Token: tok, Depth: b.node.Depth, LogitsRequested: b.logitsRequested}
	}
	logits, err := s.Engine.Forward(ctx, entries)
	if err != nil {
		err = fmt.Errorf("%w: %w", engine.ErrPassFailure, err)
	}
	s.done <- passOutcome{job: job, workBase: workBase, target: target, batch: batch, logits: logits, err: err, elapsed: time.Since(start)}
}

func (s *Scheduler) completePass(out passOutcome) {
	k := 0
	var targetDist []float32
	for _, bp := range out.batch {
		if !bp.logitsRequested {
			continue
		}
		assert.That(k < len(out.logits), "completePass: engine returned %d logit rows for %d requested positions", len(out.logits), requestedCount(out.batch))
		dist := out.logits[k]
		k++
		if bp.node == out.target {
			targetDist = dist
			continue
		}
		s.stampSelectedChild(bp.node, dist)
	}

	snapshotTaken := false
	if s.Cfg.SnapshotFreq > 0 && (out.workBase.Depth%s.Cfg.SnapshotFreq)+len(out.batch) >= s.Cfg.SnapshotFreq {
		if data, err := s.Engine.SaveState(); err == nil {
			out.target.Snapshot = &tokentree.Snapshot{ID: uuid.NewString(), Data: data}
			snapshotTaken = true
		}
	}

	switch out.job.Kind {
	case workqueue.Score:
		s.completeScore(out.job, targetDist)
	case workqueue.Predict:
		s.completePredict(out.job, targetDist)
	case workqueue.Branch:
		s.completeBranch(out.job, targetDist)
	}

	if s.OnPassComplete != nil {
		s.OnPassComplete(PassStats{
			JobKind:        out.job.Kind.String(),
			BatchSize:      len(out.batch),
			SnapshotTaken:  snapshotTaken,
			DurationMicros: out.elapsed.Microseconds(),
		})
	}
}

func (s *Scheduler) stampSelectedChild(node *tokentree.Node, dist []float32) {
	sc := node.SelectedChild()
	if sc == nil || !sc.IsAccepted || sc.HasLogit {
		return
	}
	s.stampChild(sc, dist)
	s.emitLogit(sc)
}

func (s *Scheduler) stampChild(child *tokentree.Node, dist []float32) {
	child.MaxLogit = maxOf(dist)
	inRange := int(child.Tok) >= 0 && int(child.Tok) < len(dist)
	assert.That(inRange, "stampChild: token %d out of logit range [0,%d)", child.Tok, len(dist))
	if inRange {
		child.Logit = dist[child.Tok]
	}
	child.HasLogit = true
}

func (s *Scheduler) emitLogit(n *tokentree.Node) {
	cb := s.Tree.Callbacks()
	if cb.OnLogit != nil {
		cb.OnLogit(n.BasePos, n.BasePos+n.StrSize, n.Logit-n.MaxLogit)
	}
}

func (s *Scheduler) completeScore(job workqueue.Job, dist []float32) {
	target := job.Target
	for _, c := range target.Children {
		if !c.HasLogit && dist != nil {
			s.stampChild(c, dist)
		}
	}
	sc := target.SelectedChild()
	if sc != nil && sc.IsAccepted && sc.HasLogit {
		s.emitLogit(sc)
		s.Queue.Enqueue(workqueue.Score, sc, job.DepthBudget)
	}
}

func (s *Scheduler) completePredict(job workqueue.Job, dist []float32) {
	target := job.Target
	tok := argmaxExcluding(dist, nil)
	str, _ := s.Engine.Detokenize(tok)
	child := tokentree.NewPredictionChild(target, tok, str, dist[tok], maxOf(dist))
	target.AppendChild(child)
	target.Sel = len(target.Children) - 1

	cb := s.Tree.Callbacks()
	if cb.OnPredictionsChanged != nil {
		cb.OnPredictionsChanged()
	}
	if job.DepthBudget > 0 {
		s.Queue.Inject(workqueue.Predict, child, job.DepthBudget-1, s.busy)
	}
}

func (s *Scheduler) completeBranch(job workqueue.Job, dist []float32) {
	target := job.Target
	for len(target.Children) < target.Sel+2 {
		exclude := target.ChildTokens()
		tok := argmaxExcluding(dist, exclude)
		str, _ := s.Engine.Detokenize(tok)
		child := tokentree.NewPredictionChild(target, tok, str, dist[tok], maxOf(dist))
		target.AppendChild(child)
	}
	cb := s.Tree.Callbacks()
	if cb.OnPredictionsChanged != nil {
		cb.OnPredictionsChanged()
	}
	s.scheduleBranchChildren(target)
}

// scheduleBranchChildren enqueues the deeper PREDICT exploration around
// the selected child once BRANCH's width postcondition holds: the
// selected sibling is injected ahead of background work, the lateral
// siblings are left to run behind it.
func (s *Scheduler) scheduleBranchChildren(target *tokentree.Node) {
	if target.Sel < len(target.Children) {
		s.Queue.Inject(workqueue.Predict, target.Children[target.Sel], s.Cfg.PredictMain, s.busy)
	}
	if target.Sel-1 >= 0 && target.Sel-1 < len(target.Children) {
		s.Queue.Enqueue(workqueue.Predict, target.Children[target.Sel-1], s.Cfg.PredictAlt)
	}
	if target.Sel+1 < len(target.Children) {
		s.Queue.Enqueue(workqueue.Predict, target.Children[target.Sel+1], s.Cfg.PredictAlt)
	}
}

func requestedCount(batch []batchPos) int {
	n := 0
	for _, bp := range batch {
		if bp.logitsRequested {
			n++
		}
	}
	return n
}

func maxOf(dist []float32) float32 {
	m := float32(-1e30)
	for _, v := range dist {
		if v > m {
			m = v
		}
	}
	return m
}

func argmaxExcluding(dist []float32, exclude []int32) int32 {
	excluded := make(map[int32]bool, len(exclude))
	for _, t := range exclude {
		excluded[t] = true
	}
	best := int32(0)
	bestV := float32(-1e30)
	found := false
	for t, v := range dist {
		if excluded[int32(t)] {
			continue
		}
		if !found || v > bestV {
			bestV = v
			best = int32(t)
			found = true
		}
	}
	return best
}
