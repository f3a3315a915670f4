// Package workqueue implements the FIFO work queue that the scheduler
// drains: SCORE, PREDICT and BRANCH jobs targeting token-tree nodes.
package workqueue

import "exploreedit/internal/tokentree"

// Kind identifies the job type.
type Kind int

const (
	Score Kind = iota
	Predict
	Branch
)

func (k Kind) String() string {
	switch k {
	case Score:
		return "SCORE"
	case Predict:
		return "PREDICT"
	case Branch:
		return "BRANCH"
	default:
		return "UNKNOWN"
	}
}

// Job is one entry in the work queue.
type Job struct {
	Kind        Kind
	Target      *tokentree.Node
	DepthBudget int
}

// Queue is a FIFO of Jobs with head-priority semantics: the head entry may
// be marked invalid without removal, so an in-flight pass can finish and
// be discarded atomically.
type Queue struct {
	jobs        []Job
	headInvalid bool
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Len returns the number of queued jobs (including an invalidated head).
func (q *Queue) Len() int { return len(q.jobs) }

// Empty reports whether the queue has no jobs.
func (q *Queue) Empty() bool { return len(q.jobs) == 0 }

// HeadInvalid reports whether the current head has been marked invalid.
func (q *Queue) HeadInvalid() bool { return q.headInvalid }

// Head returns the front job without removing it.
func (q *Queue) Head() (Job, bool) {
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	return q.jobs[0], true
}

// DropInvalidHead removes the head and clears the invalid flag if the head
// was marked invalid; it is a no-op otherwise.
func (q *Queue) DropInvalidHead() {
	if q.headInvalid && len(q.jobs) > 0 {
		q.jobs = q.jobs[1:]
	}
	q.headInvalid = false
}

// PopHead removes the head unconditionally, clearing the invalid flag.
func (q *Queue) PopHead() {
	if len(q.jobs) > 0 {
		q.jobs = q.jobs[1:]
	}
	q.headInvalid = false
}

// Enqueue appends a job to be executed after everything else.
func (q *Queue) Enqueue(kind Kind, target *tokentree.Node, depthBudget int) {
	q.jobs = append(q.jobs, Job{Kind: kind, Target: target, DepthBudget: depthBudget})
}

// Inject inserts a job to run as soon as possible: immediately after the
// currently-executing head if busy is true (a pass is in flight), or at
// the very head of the queue otherwise. This puts user-triggered work
// ahead of background exploration without disturbing an in-flight pass.
func (q *Queue) Inject(kind Kind, target *tokentree.Node, depthBudget int, busy bool) {
	job := Job{Kind: kind, Target: target, DepthBudget: depthBudget}
	if !busy {
		q.jobs = append([]Job{job}, q.jobs...)
		return
	}
	if len(q.jobs) == 0 {
		q.jobs = append(q.jobs, job)
		return
	}
	rest := append([]Job{}, q.jobs[1:]...)
	q.jobs = append([]Job{q.jobs[0], job}, rest...)
}

// Purge marks the head invalid if its target's depth is >= startDepth, and
// removes all non-head entries at depth >= startDepth.
func (q *Queue) Purge(startDepth int) {
	if len(q.jobs) == 0 {
		return
	}
	if q.jobs[0].Target.Depth >= startDepth {
		q.headInvalid = true
	}
	kept := q.jobs[:1]
	for _, j := range q.jobs[1:] {
		if j.Target.Depth < startDepth {
			kept = append(kept, j)
		}
	}
	q.jobs = kept
}

// PurgePredictions removes all non-head PREDICT/BRANCH entries — used
// when the cursor moves, since the old exploration frontier is obsolete.
func (q *Queue) PurgePredictions() {
	if len(q.jobs) == 0 {
		return
	}
	kept := q.jobs[:1]
	for _, j := range q.jobs[1:] {
		if j.Kind != Predict && j.Kind != Branch {
			kept = append(kept, j)
		}
	}
	q.jobs = kept
}
