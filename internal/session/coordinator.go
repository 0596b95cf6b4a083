// Package session reconciles a reviewer's pending decisions into a
// submission and owns the per-session progress counter. The contract that
// matters here: a failed submission leaves every piece of reviewer-visible
// state exactly as it was, so no work is ever lost.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/poliscope/poliscope/internal/ledger"
	"github.com/poliscope/poliscope/internal/model"
	"github.com/poliscope/poliscope/internal/queue"
)

// Submitter is the backend surface the coordinator posts batches to
type Submitter interface {
	SubmitEvaluations(ctx context.Context, items []model.Evaluation) error
}

// Result reports what a submission did
type Result struct {
	SessionComplete bool  // The goal was reached by this submission
	Skipped         bool  // Empty ledger; queue advanced without a network call
	Submitted       int   // Evaluations sent
	Completed       int   // Session progress after this call
	AdvanceErr      error // The batch was accepted but the queue could not move on
}

// Coordinator converts the ledger into a submission, calls the backend, and
// commits the queue advance and progress increment only on success
type Coordinator struct {
	submitter Submitter
	queue     *queue.Manager
	progress  *Progress
	goal      int

	mu       sync.Mutex
	inFlight bool
}

// NewCoordinator wires a coordinator to its collaborators
func NewCoordinator(submitter Submitter, q *queue.Manager, progress *Progress, goal int) *Coordinator {
	if goal <= 0 {
		goal = 1
	}
	return &Coordinator{
		submitter: submitter,
		queue:     q,
		progress:  progress,
		goal:      goal,
	}
}

// Goal returns the fixed session goal
func (c *Coordinator) Goal() int {
	return c.goal
}

// Completed returns the current progress count
func (c *Coordinator) Completed() int {
	return c.progress.Count()
}

// EndSession clears the session-scoped progress record
func (c *Coordinator) EndSession() {
	c.progress.End()
}

// Submit sends the ledger's pending decisions upstream. A submission already
// in flight makes this a no-op. An empty ledger is a skip: the queue
// advances, progress does not move, nothing is sent. On a submission failure
// the ledger is untouched and the queue does not advance. On success the
// ledger resets and the queue advances, except when this submission reached
// the goal, in which case the queue deliberately stays put. A queue advance
// that fails after the backend accepted the batch is not a submission error;
// it is reported through Result.AdvanceErr with a nil error.
func (c *Coordinator) Submit(ctx context.Context, led *ledger.Ledger) (Result, error) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return Result{}, nil
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	items := led.Submission()
	if len(items) == 0 {
		if err := c.queue.Advance(ctx); err != nil {
			return Result{Skipped: true, Completed: c.progress.Count()}, fmt.Errorf("advance after skip: %w", err)
		}
		led.Reset()
		return Result{Skipped: true, Completed: c.progress.Count()}, nil
	}

	if err := c.submitter.SubmitEvaluations(ctx, items); err != nil {
		// Ledger and queue stay exactly as the reviewer left them
		return Result{}, fmt.Errorf("submit: %w", err)
	}

	count := c.progress.Increment(c.goal)
	led.Reset()

	if count >= c.goal {
		// No advance: a fresh subject must not flash behind the
		// session-complete transition
		return Result{SessionComplete: true, Submitted: len(items), Completed: count}, nil
	}

	if err := c.queue.Advance(ctx); err != nil {
		// The batch is committed upstream; only the queue move failed
		return Result{Submitted: len(items), Completed: count, AdvanceErr: fmt.Errorf("advance after submit: %w", err)}, nil
	}
	return Result{Submitted: len(items), Completed: count}, nil
}
