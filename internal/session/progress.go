package session

import (
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// progressKey is the fixed key the session progress record lives under
const progressKey = "poliscope:session:progress"

// progressState is the persisted session record
type progressState struct {
	Active bool `json:"active"`
	Count  int  `json:"count"`
}

// Progress tracks how many subjects were completed this session. The record
// is session-scoped: it expires with the session TTL and is flushed when the
// session ends.
type Progress struct {
	store *gocache.Cache
	ttl   time.Duration
}

// NewProgress creates a progress tracker with the given session TTL
func NewProgress(ttl time.Duration) *Progress {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Progress{
		store: gocache.New(ttl, 10*time.Minute),
		ttl:   ttl,
	}
}

// Count returns the completed-subject count, zero when no session is active
func (p *Progress) Count() int {
	state, ok := p.load()
	if !ok {
		return 0
	}
	return state.Count
}

// Active reports whether a session is in progress
func (p *Progress) Active() bool {
	state, ok := p.load()
	return ok && state.Active
}

// Increment bumps the completed count, capped at goal, and returns the new
// value. The count only moves forward; a fresh session starts it at zero.
func (p *Progress) Increment(goal int) int {
	state, _ := p.load()
	state.Active = true
	if state.Count < goal {
		state.Count++
	}
	p.save(state)
	return state.Count
}

// Reset starts the count over without ending the session
func (p *Progress) Reset() {
	p.save(progressState{Active: true})
}

// End clears the session record entirely
func (p *Progress) End() {
	p.store.Flush()
}

func (p *Progress) load() (progressState, bool) {
	raw, ok := p.store.Get(progressKey)
	if !ok {
		return progressState{}, false
	}
	var state progressState
	if err := json.Unmarshal(raw.([]byte), &state); err != nil {
		return progressState{}, false
	}
	return state, true
}

func (p *Progress) save(state progressState) {
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	p.store.Set(progressKey, data, p.ttl)
}
