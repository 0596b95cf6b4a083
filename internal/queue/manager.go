// Package queue maintains the look-ahead queue of review subjects: the
// subject on screen, one prefetched behind it, the set of already-seen IDs
// excluded from future fetches, and the polling loop that waits out backend
// enrichment when the filters currently match nothing.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/poliscope/poliscope/internal/client"
	"github.com/poliscope/poliscope/internal/model"
)

// State is the queue's lifecycle position
type State int

const (
	// StateEmpty is the initial state, before any fetch
	StateEmpty State = iota
	// StateLoading covers a fill fetch with nothing on screen
	StateLoading
	// StateReady means a current subject is available
	StateReady
	// StatePolling means no subjects matched but enrichment may produce
	// more; the manager refetches on an interval
	StatePolling
	// StateExhausted means no subjects matched and none will arrive
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePolling:
		return "polling"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Fetcher is the backend surface the manager pulls subjects from
type Fetcher interface {
	FetchSubjects(ctx context.Context, filters []model.Filter, limit int, excludeIDs []string) (*client.SubjectsPage, error)
}

// Enricher triggers backend enrichment for the active filters. Fired once
// per polling episode when the queue finds enrichable-but-empty results.
type Enricher interface {
	TriggerEnrich(ctx context.Context, filters []model.Filter) error
}

// Snapshot is a point-in-time copy of the reviewer-visible queue state
type Snapshot struct {
	State         State
	Current       *model.Subject
	Next          *model.Subject
	TotalMatching int
	LastErr       error
}

// Manager owns the evaluation queue. All mutation happens under one mutex;
// fetches run in goroutines and re-validate a generation counter on
// completion so responses issued under superseded filters are discarded.
type Manager struct {
	fetcher      Fetcher
	enricher     Enricher // Optional
	pollInterval time.Duration

	mu            sync.Mutex
	filters       []model.Filter
	state         State
	current       *model.Subject
	next          *model.Subject
	seen          map[string]struct{}
	gen           uint64 // Bumped on every filter change and reset
	loading       bool   // At most one fill fetch in flight
	pollStop      chan struct{}
	totalMatching int
	lastErr       error
	subs          []func()
}

// NewManager creates an empty queue. The enricher may be nil.
func NewManager(fetcher Fetcher, enricher Enricher, pollInterval time.Duration) *Manager {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Manager{
		fetcher:      fetcher,
		enricher:     enricher,
		pollInterval: pollInterval,
		seen:         make(map[string]struct{}),
	}
}

// Subscribe registers a callback invoked after every visible state change.
// Callbacks run outside the manager's lock and may call Snapshot.
func (m *Manager) Subscribe(fn func()) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Snapshot returns the reviewer-visible state
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:         m.state,
		Current:       m.current,
		Next:          m.next,
		TotalMatching: m.totalMatching,
		LastErr:       m.lastErr,
	}
}

// Filters returns the active filter set
func (m *Manager) Filters() []model.Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Filter, len(m.filters))
	copy(out, m.filters)
	return out
}

// SetFilters replaces the filter set and clears the queue entirely: stale
// subjects must never be shown under new filters, and any fetch still in
// flight is invalidated by the generation bump.
func (m *Manager) SetFilters(filters []model.Filter) {
	m.mu.Lock()
	m.filters = make([]model.Filter, len(filters))
	copy(m.filters, filters)
	m.gen++
	m.current = nil
	m.next = nil
	m.seen = make(map[string]struct{})
	m.totalMatching = 0
	m.lastErr = nil
	m.state = StateEmpty
	m.stopPollingLocked()
	m.mu.Unlock()

	m.notify()
}

// Load fills the queue with a current and a prefetched next subject. A call
// while another fill is in flight is a no-op. Fetch failures leave the
// queue in its previous state with LastErr set; the caller retries
// explicitly.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	if m.loading {
		m.mu.Unlock()
		return nil
	}
	m.loading = true
	gen := m.gen
	filters := m.filters
	exclude := m.excludedLocked()
	if m.current == nil && m.state != StatePolling {
		m.state = StateLoading
	}
	m.mu.Unlock()
	m.notify()

	page, err := m.fetcher.FetchSubjects(ctx, filters, 2, exclude)

	m.mu.Lock()
	m.loading = false
	if gen != m.gen {
		// Issued under superseded filters; discard silently
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.lastErr = err
		if m.current != nil {
			m.state = StateReady
		} else if m.state != StatePolling {
			m.state = StateEmpty
		}
		m.mu.Unlock()
		m.notify()
		return err
	}

	m.lastErr = nil
	m.totalMatching = page.Meta.TotalMatchingFilters
	fresh := m.unseenLocked(page.Subjects)

	switch {
	case len(fresh) > 0:
		if m.current == nil {
			m.current = fresh[0]
			fresh = fresh[1:]
		}
		if m.next == nil && len(fresh) > 0 {
			m.next = fresh[0]
		}
		m.state = StateReady
		m.stopPollingLocked()
		m.mu.Unlock()

	case page.Meta.HasEnrichablePoliticians:
		wasPolling := m.state == StatePolling
		m.state = StatePolling
		if !wasPolling {
			m.startPollingLocked()
		}
		m.mu.Unlock()
		if !wasPolling && m.enricher != nil {
			go func() {
				_ = m.enricher.TriggerEnrich(context.Background(), filters)
			}()
		}

	default:
		m.state = StateExhausted
		m.stopPollingLocked()
		m.mu.Unlock()
	}

	m.notify()
	return nil
}

// Advance consumes the current subject. When a next subject is prefetched it
// is promoted synchronously, with no loading gap, and a single replacement
// is fetched in the background; otherwise the queue loads a fresh pair.
func (m *Manager) Advance(ctx context.Context) error {
	m.mu.Lock()
	if m.current != nil {
		m.seen[m.current.ID] = struct{}{}
	}

	if m.next != nil {
		m.current = m.next
		m.next = nil
		m.state = StateReady
		gen := m.gen
		m.mu.Unlock()
		m.notify()

		go m.refillNext(gen)
		return nil
	}

	m.current = nil
	m.state = StateLoading
	m.mu.Unlock()
	m.notify()

	return m.Load(ctx)
}

// refillNext fetches one replacement for the prefetch slot. If an advance
// consumed the current subject while the fetch was in flight, the result
// becomes the new current instead of being discarded.
func (m *Manager) refillNext(gen uint64) {
	m.mu.Lock()
	if m.loading || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.loading = true
	filters := m.filters
	exclude := m.excludedLocked()
	m.mu.Unlock()

	page, err := m.fetcher.FetchSubjects(context.Background(), filters, 1, exclude)

	m.mu.Lock()
	m.loading = false
	if gen != m.gen {
		// Filters changed while in flight
		m.mu.Unlock()
		return
	}
	if err != nil {
		// The prefetch slot stays empty; the next advance loads explicitly
		m.lastErr = err
		if m.current == nil && m.state == StateLoading {
			m.state = StateEmpty
		}
		m.mu.Unlock()
		m.notify()
		return
	}

	m.lastErr = nil
	m.totalMatching = page.Meta.TotalMatchingFilters
	fresh := m.unseenLocked(page.Subjects)

	switch {
	case len(fresh) > 0:
		if m.current == nil {
			m.current = fresh[0]
			fresh = fresh[1:]
			m.state = StateReady
		}
		if m.next == nil && len(fresh) > 0 {
			m.next = fresh[0]
		}
	case m.current == nil:
		if page.Meta.HasEnrichablePoliticians {
			wasPolling := m.state == StatePolling
			m.state = StatePolling
			if !wasPolling {
				m.startPollingLocked()
			}
		} else {
			m.state = StateExhausted
		}
	}
	m.mu.Unlock()
	m.notify()
}

// Close stops the polling timer. The manager must not be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.gen++
	m.stopPollingLocked()
	m.mu.Unlock()
}

// startPollingLocked launches the enrichment poll loop. Caller holds m.mu.
func (m *Manager) startPollingLocked() {
	if m.pollStop != nil {
		return
	}
	stop := make(chan struct{})
	m.pollStop = stop

	go func() {
		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = m.Load(context.Background())
			}
		}
	}()
}

// stopPollingLocked clears the poll timer if one is running. Caller holds m.mu.
func (m *Manager) stopPollingLocked() {
	if m.pollStop != nil {
		close(m.pollStop)
		m.pollStop = nil
	}
}

// excludedLocked lists the IDs the backend must not return: everything seen
// plus whatever is on screen or prefetched. Caller holds m.mu.
func (m *Manager) excludedLocked() []string {
	ids := make([]string, 0, len(m.seen)+2)
	for id := range m.seen {
		ids = append(ids, id)
	}
	if m.current != nil {
		ids = append(ids, m.current.ID)
	}
	if m.next != nil {
		ids = append(ids, m.next.ID)
	}
	return ids
}

// unseenLocked filters out subjects the session has already shown, in case
// the backend ignores the exclusion list. Caller holds m.mu.
func (m *Manager) unseenLocked(subjects []model.Subject) []*model.Subject {
	var out []*model.Subject
	for i := range subjects {
		s := subjects[i]
		if _, ok := m.seen[s.ID]; ok {
			continue
		}
		if m.current != nil && m.current.ID == s.ID {
			continue
		}
		out = append(out, &s)
	}
	return out
}

// notify invokes subscribers outside the lock
func (m *Manager) notify() {
	m.mu.Lock()
	subs := make([]func(), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
