// Package ledger tracks a reviewer's pending, not-yet-submitted decisions
// against the facts of the subject currently under review. The original
// fetched facts are never mutated; the ledger is folded over them to produce
// the effective view and, eventually, the submission payload.
package ledger

import (
	"fmt"
	"sync"

	"github.com/poliscope/poliscope/internal/model"
)

// Decision is the explicit three-state pending verdict on a fact. A missing
// entry and an explicitly cleared one are both DecisionNone; there is no
// ambiguity between "no decision" and "decision toggled back off".
type Decision int

const (
	DecisionNone Decision = iota
	DecisionAccepted
	DecisionRejected
)

func (d Decision) String() string {
	switch d {
	case DecisionAccepted:
		return "accepted"
	case DecisionRejected:
		return "rejected"
	default:
		return "none"
	}
}

// ReviewFact is one fact annotated with its effective pending state
type ReviewFact struct {
	Fact     *model.Fact
	Decision Decision
	Authored bool // Reviewer-authored in this session
}

// Ledger holds pending decisions for one subject. It is owned by a single
// review surface; the mutex only covers overlapping async readers (queue
// callbacks, submission) on the same session.
type Ledger struct {
	mu        sync.Mutex
	decisions map[string]Decision
	order     []string // Insertion order of decided keys, for deterministic submission
	created   []*model.Fact
}

// New returns an empty ledger
func New() *Ledger {
	return &Ledger{
		decisions: make(map[string]Decision),
	}
}

// Decide applies an accept or reject to the fact with the given key.
// Applying the decision a fact already carries clears it (toggle-off);
// applying the opposite decision overwrites it. DecisionNone clears
// unconditionally.
func (l *Ledger) Decide(key string, d Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.decisions[key]
	if d == DecisionNone || current == d {
		l.clearLocked(key)
		return
	}
	if current == DecisionNone {
		l.order = append(l.order, key)
	}
	l.decisions[key] = d
}

// Decision returns the effective pending state for a key
func (l *Ledger) Decision(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.decisions[key]
}

// Create appends a reviewer-authored fact with an implicit accept. The fact
// must carry a locally generated key.
func (l *Ledger) Create(f model.Fact) error {
	if !f.IsReviewerAuthored() {
		return fmt.Errorf("created fact %q must carry a locally generated key", f.Key)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range l.created {
		if c.Key == f.Key {
			return fmt.Errorf("fact %q already created", f.Key)
		}
	}

	copied := f
	l.created = append(l.created, &copied)
	l.order = append(l.order, f.Key)
	l.decisions[f.Key] = DecisionAccepted
	return nil
}

// Remove deletes a created fact from the effective list entirely, leaving no
// residue in the submission. It fails for keys that do not correspond to a
// still-present created fact.
func (l *Ledger) Remove(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i, c := range l.created {
		if c.Key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("fact %q was not created in this session", key)
	}

	l.created = append(l.created[:idx], l.created[idx+1:]...)
	l.clearLocked(key)
	return nil
}

// Created returns the reviewer-authored facts still present
func (l *Ledger) Created() []*model.Fact {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*model.Fact, len(l.created))
	copy(out, l.created)
	return out
}

// Empty reports whether the ledger holds no pending decisions at all
func (l *Ledger) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.decisions) == 0 && len(l.created) == 0
}

// Reset drops all pending state, for reuse on the next subject
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = make(map[string]Decision)
	l.order = nil
	l.created = nil
}

// Materialize folds the ledger over the original fetched facts: originals
// come back annotated with their effective state, created-and-not-removed
// facts are appended, removed facts are gone. Original fact pointers are
// passed through untouched so unchanged facts keep their identity across
// repeated folds.
func (l *Ledger) Materialize(original []*model.Fact) []ReviewFact {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ReviewFact, 0, len(original)+len(l.created))
	for _, f := range original {
		out = append(out, ReviewFact{
			Fact:     f,
			Decision: l.decisions[f.Key],
		})
	}
	for _, f := range l.created {
		out = append(out, ReviewFact{
			Fact:     f,
			Decision: l.decisions[f.Key],
			Authored: true,
		})
	}
	return out
}

// Submission maps every key carrying a pending decision to a payload line,
// in the order the decisions were first made. Created facts appear through
// their implicit accept; removed ones were already scrubbed from the order.
func (l *Ledger) Submission() []model.Evaluation {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.Evaluation, 0, len(l.order))
	for _, key := range l.order {
		d, ok := l.decisions[key]
		if !ok || d == DecisionNone {
			continue
		}
		out = append(out, model.Evaluation{
			ID:         key,
			IsAccepted: d == DecisionAccepted,
		})
	}
	return out
}

// clearLocked removes a key's decision and its slot in the order.
// Caller holds l.mu.
func (l *Ledger) clearLocked(key string) {
	delete(l.decisions, key)
	for i, k := range l.order {
		if k == key {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}
