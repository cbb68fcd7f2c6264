// Package session keeps per-session conversational context in memory: a
// rolling window of recent turns plus a derived view the classifier uses to
// resolve follow-up queries. Sessions expire after a TTL of inactivity.
package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"olympus/internal/logging"
)

// Turn is one completed query cycle retained in the window.
type Turn struct {
	Query         string
	Intent        string
	DocumentTypes []string
	ResultIDs     []string
	Answer        string
	At            time.Time
}

// Context is the derived view over a session's window, rebuilt on read.
type Context struct {
	SessionID     string    `json:"session_id"`
	RecentQueries []string  `json:"recent_queries"` // oldest first
	LastIntent    string    `json:"last_intent"`
	Intents       []string  `json:"intents"`
	DocumentTypes []string  `json:"document_types"` // most frequent first
	Topic         string    `json:"topic"`          // dominant document type
	LastResultIDs []string  `json:"last_result_ids"`
	LastActive    time.Time `json:"last_active"`
	TurnCount     int       `json:"turn_count"`
}

type sessionState struct {
	turns      []Turn
	lastActive time.Time
}

// Manager holds all live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	ttl      time.Duration
	window   int
}

// NewManager creates a session manager with the given idle TTL and rolling
// window length.
func NewManager(ttl time.Duration, window int) *Manager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if window <= 0 {
		window = 5
	}
	return &Manager{
		sessions: make(map[string]*sessionState),
		ttl:      ttl,
		window:   window,
	}
}

// Record appends a turn to the session's window, evicting the oldest turn
// past the window length.
func (m *Manager) Record(sessionID string, turn Turn) {
	if sessionID == "" {
		return
	}
	if turn.At.IsZero() {
		turn.At = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		state = &sessionState{}
		m.sessions[sessionID] = state
	}
	state.turns = append(state.turns, turn)
	if len(state.turns) > m.window {
		state.turns = state.turns[len(state.turns)-m.window:]
	}
	state.lastActive = turn.At
}

// Get returns the derived context for a session, or nil when the session is
// unknown or expired. An expired session is removed on access.
func (m *Manager) Get(sessionID string) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	if time.Since(state.lastActive) > m.ttl {
		delete(m.sessions, sessionID)
		logging.Session("session %s expired", sessionID)
		return nil
	}
	return derive(sessionID, state)
}

// Sweep removes all expired sessions and returns how many were dropped.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-m.ttl)
	for id, state := range m.sessions {
		if state.lastActive.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		logging.Session("sweep removed %d expired sessions", removed)
	}
	return removed
}

// Len returns the live session count.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func derive(sessionID string, state *sessionState) *Context {
	ctx := &Context{
		SessionID:  sessionID,
		LastActive: state.lastActive,
		TurnCount:  len(state.turns),
	}

	typeCounts := make(map[string]int)
	for _, t := range state.turns {
		ctx.RecentQueries = append(ctx.RecentQueries, t.Query)
		if t.Intent != "" {
			ctx.Intents = append(ctx.Intents, t.Intent)
			ctx.LastIntent = t.Intent
		}
		for _, dt := range t.DocumentTypes {
			typeCounts[strings.ToLower(dt)]++
		}
	}
	if len(state.turns) > 0 {
		ctx.LastResultIDs = state.turns[len(state.turns)-1].ResultIDs
	}

	// Document types sorted by frequency; the dominant one is the topic.
	for dt := range typeCounts {
		ctx.DocumentTypes = append(ctx.DocumentTypes, dt)
	}
	sort.SliceStable(ctx.DocumentTypes, func(i, j int) bool {
		a, b := ctx.DocumentTypes[i], ctx.DocumentTypes[j]
		if typeCounts[a] != typeCounts[b] {
			return typeCounts[a] > typeCounts[b]
		}
		return a < b
	})
	if len(ctx.DocumentTypes) > 0 {
		ctx.Topic = ctx.DocumentTypes[0]
	}
	return ctx
}
