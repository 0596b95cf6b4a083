package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/poliscope/poliscope/internal/client"
	"github.com/poliscope/poliscope/internal/ledger"
	"github.com/poliscope/poliscope/internal/model"
	"github.com/poliscope/poliscope/internal/queue"
)

// stubFetcher serves an endless supply of distinct subjects
type stubFetcher struct {
	mu     sync.Mutex
	serial int
}

func (f *stubFetcher) FetchSubjects(ctx context.Context, filters []model.Filter, limit int, excludeIDs []string) (*client.SubjectsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subjects := make([]model.Subject, 0, limit)
	for i := 0; i < limit; i++ {
		f.serial++
		subjects = append(subjects, model.Subject{ID: string(rune('A' + f.serial - 1)), Name: "Subject"})
	}
	return &client.SubjectsPage{Subjects: subjects}, nil
}

// stubSubmitter records batches and can be scripted to fail or block
type stubSubmitter struct {
	mu      sync.Mutex
	err     error
	gate    chan struct{}
	batches [][]model.Evaluation
}

func (s *stubSubmitter) SubmitEvaluations(ctx context.Context, items []model.Evaluation) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, items)
	return nil
}

func (s *stubSubmitter) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func newTestQueue(t *testing.T) *queue.Manager {
	t.Helper()
	m := queue.NewManager(&stubFetcher{}, nil, time.Hour)
	t.Cleanup(m.Close)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func TestSubmit_Success(t *testing.T) {
	q := newTestQueue(t)
	submitter := &stubSubmitter{}
	coord := NewCoordinator(submitter, q, NewProgress(time.Hour), 10)

	led := ledger.New()
	led.Decide("p1", ledger.DecisionAccepted)
	led.Decide("p2", ledger.DecisionRejected)

	before := q.Snapshot().Current.ID
	result, err := coord.Submit(context.Background(), led)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if result.Submitted != 2 || result.Completed != 1 || result.SessionComplete {
		t.Errorf("unexpected result %+v", result)
	}
	if !led.Empty() {
		t.Error("expected ledger reset after successful submission")
	}
	if after := q.Snapshot().Current.ID; after == before {
		t.Error("expected queue to advance")
	}

	want := []model.Evaluation{
		{ID: "p1", IsAccepted: true},
		{ID: "p2", IsAccepted: false},
	}
	if !reflect.DeepEqual(submitter.batches[0], want) {
		t.Errorf("batch = %v, want %v", submitter.batches[0], want)
	}
}

func TestSubmit_FailurePreservesEverything(t *testing.T) {
	q := newTestQueue(t)
	submitter := &stubSubmitter{err: errors.New("backend down")}
	coord := NewCoordinator(submitter, q, NewProgress(time.Hour), 10)

	led := ledger.New()
	led.Decide("p1", ledger.DecisionAccepted)
	led.Decide("p2", ledger.DecisionRejected)

	before := q.Snapshot().Current.ID
	_, err := coord.Submit(context.Background(), led)
	if err == nil {
		t.Fatal("expected submission error")
	}

	// Every reviewer decision is exactly as it was
	if led.Decision("p1") != ledger.DecisionAccepted || led.Decision("p2") != ledger.DecisionRejected {
		t.Error("submission failure disturbed the ledger")
	}
	if q.Snapshot().Current.ID != before {
		t.Error("submission failure advanced the queue")
	}
	if coord.Completed() != 0 {
		t.Errorf("progress moved on failure: %d", coord.Completed())
	}
}

// faultyFetcher serves one page, then fails every fetch
type faultyFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *faultyFetcher) FetchSubjects(ctx context.Context, filters []model.Filter, limit int, excludeIDs []string) (*client.SubjectsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == 1 {
		return &client.SubjectsPage{Subjects: []model.Subject{{ID: "A", Name: "Subject"}}}, nil
	}
	return nil, errors.New("backend down")
}

func TestSubmit_AdvanceFailureStillCommits(t *testing.T) {
	q := queue.NewManager(&faultyFetcher{}, nil, time.Hour)
	t.Cleanup(q.Close)
	if err := q.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	submitter := &stubSubmitter{}
	coord := NewCoordinator(submitter, q, NewProgress(time.Hour), 10)

	led := ledger.New()
	led.Decide("p1", ledger.DecisionAccepted)

	// The backend accepts the batch; only the follow-up queue advance fails.
	// That must not read as a submission failure.
	result, err := coord.Submit(context.Background(), led)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.AdvanceErr == nil {
		t.Fatal("expected the advance failure to be reported on the result")
	}
	if result.Submitted != 1 || result.Completed != 1 {
		t.Errorf("unexpected result %+v", result)
	}
	if !led.Empty() {
		t.Error("expected ledger reset after the batch was accepted")
	}
	if n := submitter.batchCount(); n != 1 {
		t.Errorf("expected 1 accepted batch, got %d", n)
	}
}

func TestSubmit_EmptyLedgerSkips(t *testing.T) {
	q := newTestQueue(t)
	submitter := &stubSubmitter{err: errors.New("must not be called")}
	coord := NewCoordinator(submitter, q, NewProgress(time.Hour), 10)

	before := q.Snapshot().Current.ID
	result, err := coord.Submit(context.Background(), ledger.New())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if !result.Skipped {
		t.Error("expected skip")
	}
	if q.Snapshot().Current.ID == before {
		t.Error("expected queue to advance on skip")
	}
	if coord.Completed() != 0 {
		t.Error("skip must not increment progress")
	}
}

func TestSubmit_GoalCompletionStopsAdvance(t *testing.T) {
	q := newTestQueue(t)
	submitter := &stubSubmitter{}
	coord := NewCoordinator(submitter, q, NewProgress(time.Hour), 2)

	led := ledger.New()
	led.Decide("p1", ledger.DecisionAccepted)
	result, err := coord.Submit(context.Background(), led)
	if err != nil || result.SessionComplete {
		t.Fatalf("first submit: %+v, %v", result, err)
	}

	goalSubject := q.Snapshot().Current.ID
	led.Decide("p2", ledger.DecisionAccepted)
	result, err = coord.Submit(context.Background(), led)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}

	if !result.SessionComplete || result.Completed != 2 {
		t.Errorf("expected session complete at 2/2, got %+v", result)
	}
	// The queue deliberately does not advance past the goal-reaching
	// submission
	if q.Snapshot().Current.ID != goalSubject {
		t.Error("queue advanced past the goal-reaching submission")
	}

	// A further submission cannot push the count past the goal
	led.Decide("p3", ledger.DecisionAccepted)
	result, _ = coord.Submit(context.Background(), led)
	if result.Completed > 2 {
		t.Errorf("progress exceeded goal: %d", result.Completed)
	}
}

func TestSubmit_ReentrancyGuard(t *testing.T) {
	q := newTestQueue(t)
	gate := make(chan struct{})
	submitter := &stubSubmitter{gate: gate}
	coord := NewCoordinator(submitter, q, NewProgress(time.Hour), 10)

	led := ledger.New()
	led.Decide("p1", ledger.DecisionAccepted)

	done := make(chan struct{})
	go func() {
		_, _ = coord.Submit(context.Background(), led)
		close(done)
	}()

	// Wait for the first submission to be in flight
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		coord.mu.Lock()
		inFlight := coord.inFlight
		coord.mu.Unlock()
		if inFlight {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	// Second call while one is in flight is a no-op
	result, err := coord.Submit(context.Background(), led)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if result.SessionComplete || result.Submitted != 0 {
		t.Errorf("expected no-op result, got %+v", result)
	}

	close(gate)
	<-done
	if n := submitter.batchCount(); n != 1 {
		t.Errorf("expected exactly 1 batch, got %d", n)
	}
}

func TestProgress_CapsAndClears(t *testing.T) {
	p := NewProgress(time.Hour)

	if p.Count() != 0 || p.Active() {
		t.Error("expected inactive empty progress")
	}

	p.Increment(2)
	p.Increment(2)
	if got := p.Increment(2); got != 2 {
		t.Errorf("count exceeded goal: %d", got)
	}
	if !p.Active() {
		t.Error("expected active session")
	}

	p.End()
	if p.Count() != 0 || p.Active() {
		t.Error("expected cleared record after End")
	}
}
