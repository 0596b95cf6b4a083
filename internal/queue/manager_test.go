package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poliscope/poliscope/internal/client"
	"github.com/poliscope/poliscope/internal/model"
)

func subject(id string) model.Subject {
	return model.Subject{ID: id, Name: "Subject " + id}
}

func page(subjects ...model.Subject) *client.SubjectsPage {
	return &client.SubjectsPage{Subjects: subjects}
}

func enrichablePage() *client.SubjectsPage {
	return &client.SubjectsPage{Meta: client.FetchMeta{HasEnrichablePoliticians: true}}
}

// scriptedFetcher returns queued responses in order and can block each call
// until released
type scriptedFetcher struct {
	mu        sync.Mutex
	responses []fetchResponse
	calls     int32
	gate      chan struct{} // When non-nil, every call waits on it
}

type fetchResponse struct {
	page *client.SubjectsPage
	err  error
}

func (f *scriptedFetcher) FetchSubjects(ctx context.Context, filters []model.Filter, limit int, excludeIDs []string) (*client.SubjectsPage, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		return page(), nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp.page, resp.err
}

func (f *scriptedFetcher) callCount() int32 {
	return atomic.LoadInt32(&f.calls)
}

type recordingEnricher struct {
	calls atomic.Int32
}

func (e *recordingEnricher) TriggerEnrich(ctx context.Context, filters []model.Filter) error {
	e.calls.Add(1)
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLoad_FillsCurrentAndNext(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{
		{page: page(subject("A"), subject("B"))},
	}}
	m := NewManager(fetcher, nil, time.Hour)
	defer m.Close()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap := m.Snapshot()
	if snap.State != StateReady {
		t.Errorf("state = %s, want ready", snap.State)
	}
	if snap.Current == nil || snap.Current.ID != "A" {
		t.Errorf("current = %v, want A", snap.Current)
	}
	if snap.Next == nil || snap.Next.ID != "B" {
		t.Errorf("next = %v, want B", snap.Next)
	}
}

func TestLoad_SingleSubjectLeavesNextEmpty(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{
		{page: page(subject("A"))},
	}}
	m := NewManager(fetcher, nil, time.Hour)
	defer m.Close()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap := m.Snapshot()
	if snap.Current == nil || snap.Current.ID != "A" || snap.Next != nil {
		t.Errorf("expected current A and empty next, got %+v", snap)
	}
}

func TestLoad_EmptyWithoutEnrichmentIsExhausted(t *testing.T) {
	fetcher := &scriptedFetcher{}
	m := NewManager(fetcher, nil, time.Hour)
	defer m.Close()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap := m.Snapshot(); snap.State != StateExhausted {
		t.Errorf("state = %s, want exhausted", snap.State)
	}
}

func TestLoad_SecondCallWhileInFlightIsNoop(t *testing.T) {
	gate := make(chan struct{})
	fetcher := &scriptedFetcher{
		gate:      gate,
		responses: []fetchResponse{{page: page(subject("A"))}},
	}
	m := NewManager(fetcher, nil, time.Hour)
	defer m.Close()

	go func() { _ = m.Load(context.Background()) }()
	waitFor(t, "first fetch to start", func() bool { return fetcher.callCount() == 1 })

	// Second trigger while one is in flight must not issue a fetch
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("expected 1 fetch, got %d", fetcher.callCount())
	}

	close(gate)
	waitFor(t, "queue ready", func() bool { return m.Snapshot().State == StateReady })
}

func TestLoad_FailureKeepsLastState(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{
		{page: page(subject("A"), subject("B"))},
		{err: context.DeadlineExceeded},
	}}
	m := NewManager(fetcher, nil, time.Hour)
	defer m.Close()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Force a second fill; it fails, but the current subject stays visible
	before := m.Snapshot()
	_ = m.Load(context.Background())

	snap := m.Snapshot()
	if snap.State != StateReady || snap.Current == nil || snap.Current.ID != before.Current.ID {
		t.Errorf("fetch failure disturbed the queue: %+v", snap)
	}
	if snap.LastErr == nil {
		t.Error("expected LastErr to be set")
	}
}

func TestAdvance_PromotesNextSynchronously(t *testing.T) {
	gate := make(chan struct{})
	fetcher := &scriptedFetcher{responses: []fetchResponse{
		{page: page(subject("A"), subject("B"))},
	}}
	m := NewManager(fetcher, nil, time.Hour)
	defer m.Close()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Gate the background refill so we can observe the synchronous promotion
	fetcher.mu.Lock()
	fetcher.gate = gate
	fetcher.responses = []fetchResponse{{page: page(subject("C"))}}
	fetcher.mu.Unlock()

	if err := m.Advance(context.Background()); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	// B is promoted before any network response returns
	snap := m.Snapshot()
	if snap.Current == nil || snap.Current.ID != "B" {
		t.Errorf("current = %v, want B immediately", snap.Current)
	}
	if snap.Next != nil {
		t.Errorf("next = %v, want nil until the refill resolves", snap.Next)
	}
	if snap.State != StateReady {
		t.Errorf("state = %s, want ready (no loading flicker)", snap.State)
	}

	close(gate)
	waitFor(t, "refilled next", func() bool {
		s := m.Snapshot()
		return s.Next != nil && s.Next.ID == "C"
	})
}

func TestAdvance_RapidOverlapAppliesRefillAsCurrent(t *testing.T) {
	gate := make(chan struct{})
	fetcher := &scriptedFetcher{responses: []fetchResponse{
		{page: page(subject("A"), subject("B"))},
	}}
	m := NewManager(fetcher, nil, time.Hour)
	defer m.Close()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Gate the background refill so a second advance lands while it is
	// still in flight
	fetcher.mu.Lock()
	fetcher.gate = gate
	fetcher.responses = []fetchResponse{{page: page(subject("C"))}}
	fetcher.mu.Unlock()

	if err := m.Advance(context.Background()); err != nil {
		t.Fatalf("first Advance: %v", err)
	}
	if err := m.Advance(context.Background()); err != nil {
		t.Fatalf("second Advance: %v", err)
	}

	// The in-flight fetch must resolve into the empty current slot, not be
	// discarded, or the queue would show Loading forever
	close(gate)
	waitFor(t, "refill to become current", func() bool {
		s := m.Snapshot()
		return s.State == StateReady && s.Current != nil && s.Current.ID == "C"
	})
}

func TestAdvance_WithoutNextLoadsFreshPair(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{
		{page: page(subject("A"))},
		{page: page(subject("B"), subject("C"))},
	}}
	m := NewManager(fetcher, nil, time.Hour)
	defer m.Close()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Advance(context.Background()); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	snap := m.Snapshot()
	if snap.Current == nil || snap.Current.ID != "B" {
		t.Errorf("current = %v, want B", snap.Current)
	}
	if snap.Next == nil || snap.Next.ID != "C" {
		t.Errorf("next = %v, want C", snap.Next)
	}
}

func TestSetFilters_DiscardsInFlightFetch(t *testing.T) {
	gate := make(chan struct{})
	fetcher := &scriptedFetcher{
		gate:      gate,
		responses: []fetchResponse{{page: page(subject("A"), subject("B"))}},
	}
	m := NewManager(fetcher, nil, time.Hour)
	defer m.Close()

	go func() { _ = m.Load(context.Background()) }()
	waitFor(t, "fetch to start", func() bool { return fetcher.callCount() == 1 })

	// Filters change while the fetch is in flight; its response must not
	// be applied when it resolves
	m.SetFilters([]model.Filter{{WikidataID: "Q142", PreferenceType: model.PreferenceCountry}})
	close(gate)

	time.Sleep(50 * time.Millisecond)
	snap := m.Snapshot()
	if snap.Current != nil || snap.Next != nil {
		t.Errorf("stale response was applied: current=%v next=%v", snap.Current, snap.Next)
	}
	if snap.State != StateEmpty {
		t.Errorf("state = %s, want empty", snap.State)
	}
}

func TestPolling_RetriesUntilSubjectsAppear(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{
		{page: enrichablePage()},
		{page: enrichablePage()},
		{page: page(subject("A"))},
	}}
	enricher := &recordingEnricher{}
	m := NewManager(fetcher, enricher, 10*time.Millisecond)
	defer m.Close()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap := m.Snapshot(); snap.State != StatePolling {
		t.Fatalf("state = %s, want polling", snap.State)
	}

	waitFor(t, "subject to arrive via polling", func() bool {
		s := m.Snapshot()
		return s.State == StateReady && s.Current != nil && s.Current.ID == "A"
	})

	// Enrichment fires once per polling episode, not once per poll
	waitFor(t, "enrich trigger", func() bool { return enricher.calls.Load() >= 1 })
	if n := enricher.calls.Load(); n != 1 {
		t.Errorf("expected exactly 1 enrich trigger, got %d", n)
	}

	// Polling stopped: the call counter settles once ready. Allow a tick
	// already in flight at the transition to drain first.
	time.Sleep(30 * time.Millisecond)
	settled := fetcher.callCount()
	time.Sleep(50 * time.Millisecond)
	if fetcher.callCount() != settled {
		t.Error("polling kept fetching after subjects appeared")
	}
}

func TestSetFilters_CancelsPolling(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{
		{page: enrichablePage()},
	}}
	m := NewManager(fetcher, nil, 10*time.Millisecond)
	defer m.Close()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	waitFor(t, "polling state", func() bool { return m.Snapshot().State == StatePolling })

	m.SetFilters(nil)
	if snap := m.Snapshot(); snap.State != StateEmpty {
		t.Errorf("state = %s, want empty after filter change", snap.State)
	}

	// A tick that fired at the boundary may still be draining.
	time.Sleep(30 * time.Millisecond)
	settled := fetcher.callCount()
	time.Sleep(50 * time.Millisecond)
	if fetcher.callCount() != settled {
		t.Error("poll timer kept firing after filter change")
	}
}

func TestAdvance_ExcludesSeenSubjects(t *testing.T) {
	var lastExclude []string
	var mu sync.Mutex

	fetcher := &scriptedFetcher{responses: []fetchResponse{
		{page: page(subject("A"), subject("B"))},
		{page: page(subject("C"))},
	}}
	m := NewManager(fetcherFunc(func(ctx context.Context, filters []model.Filter, limit int, excludeIDs []string) (*client.SubjectsPage, error) {
		mu.Lock()
		lastExclude = excludeIDs
		mu.Unlock()
		return fetcher.FetchSubjects(ctx, filters, limit, excludeIDs)
	}), nil, time.Hour)
	defer m.Close()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Advance(context.Background()); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	waitFor(t, "refill fetch", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return contains(lastExclude, "A") && contains(lastExclude, "B")
	})
}

type fetcherFunc func(ctx context.Context, filters []model.Filter, limit int, excludeIDs []string) (*client.SubjectsPage, error)

func (f fetcherFunc) FetchSubjects(ctx context.Context, filters []model.Filter, limit int, excludeIDs []string) (*client.SubjectsPage, error) {
	return f(ctx, filters, limit, excludeIDs)
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
