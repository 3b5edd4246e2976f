package paginator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/levelbot/levelbot/internal/leaderboard"
)

const DefaultTimeout = 60 * time.Second

var (
	ErrSessionNotFound = errors.New("pagination session not found")
	ErrSessionExpired  = errors.New("pagination session expired")
	ErrNotRequester    = errors.New("only the requester can change pages")
)

// Source builds one page of a leaderboard from current data.
type Source func(ctx context.Context, kind leaderboard.Kind, page int) (leaderboard.Page, error)

// Controls are the enabled states of the navigation buttons.
type Controls struct {
	Prev bool `json:"prev"`
	Next bool `json:"next"`
}

// Session is one interactive leaderboard view.
type Session struct {
	ID          string           `json:"id"`
	RequesterID string           `json:"requester_id"`
	Kind        leaderboard.Kind `json:"kind"`
	Page        int              `json:"page"`
	TotalPages  int              `json:"total_pages"`
	LastActive  time.Time        `json:"last_active"`
	Expired     bool             `json:"expired"`
}

// Controls reports which buttons are enabled. Everything is disabled once
// the session has expired.
func (s Session) Controls() Controls {
	if s.Expired {
		return Controls{}
	}
	return Controls{
		Prev: s.Page > 1,
		Next: s.Page < s.TotalPages,
	}
}

type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	source   Source
	timeout  time.Duration
	now      func() time.Time
	log      *logrus.Logger

	// OnExpire is called, outside the lock, for each session that times out.
	OnExpire func(Session)
}

func NewManager(source Source, timeout time.Duration, log *logrus.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		sessions: make(map[string]*Session),
		source:   source,
		timeout:  timeout,
		now:      time.Now,
		log:      log,
	}
}

// SetNow overrides the time source. It is intended for tests.
func (m *Manager) SetNow(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Open builds the requested page and registers a session for it.
func (m *Manager) Open(ctx context.Context, requesterID string, kind leaderboard.Kind, page int) (Session, leaderboard.Page, error) {
	p, err := m.source(ctx, kind, page)
	if err != nil {
		return Session{}, leaderboard.Page{}, err
	}

	m.mu.Lock()
	s := &Session{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		Kind:        kind,
		Page:        p.Page,
		TotalPages:  p.TotalPages,
		LastActive:  m.now(),
	}
	m.sessions[s.ID] = s
	out := *s
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"user_id":    requesterID,
		"kind":       kind,
		"page":       p.Page,
	}).Debug("leaderboard session opened")
	return out, p, nil
}

// Navigate moves the session by delta pages and rebuilds that page. The
// target is clamped, so navigating past either end stays on the boundary.
func (m *Manager) Navigate(ctx context.Context, sessionID, actorID string, delta int) (Session, leaderboard.Page, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return Session{}, leaderboard.Page{}, ErrSessionNotFound
	}
	if m.idle(s) {
		expired := m.expireLocked(s)
		m.mu.Unlock()
		m.notify(expired)
		return expired, leaderboard.Page{}, ErrSessionExpired
	}
	if s.RequesterID != actorID {
		out := *s
		m.mu.Unlock()
		return out, leaderboard.Page{}, ErrNotRequester
	}
	kind, target := s.Kind, s.Page+delta
	m.mu.Unlock()

	p, err := m.source(ctx, kind, target)
	if err != nil {
		return Session{}, leaderboard.Page{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok = m.sessions[sessionID]
	if !ok {
		return Session{}, leaderboard.Page{}, ErrSessionExpired
	}
	s.Page = p.Page
	s.TotalPages = p.TotalPages
	s.LastActive = m.now()
	return *s, p, nil
}

// Get returns a snapshot of the session.
func (m *Manager) Get(sessionID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep expires every idle session and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	var expired []Session
	for _, s := range m.sessions {
		if m.idle(s) {
			expired = append(expired, m.expireLocked(s))
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.notify(s)
	}
	return len(expired)
}

// Run sweeps on a ticker until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := max(m.timeout/4, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.log.WithField("count", n).Debug("expired leaderboard sessions")
			}
		}
	}
}

func (m *Manager) idle(s *Session) bool {
	return m.now().Sub(s.LastActive) > m.timeout
}

func (m *Manager) expireLocked(s *Session) Session {
	s.Expired = true
	delete(m.sessions, s.ID)
	return *s
}

func (m *Manager) notify(s Session) {
	if m.OnExpire != nil {
		m.OnExpire(s)
	}
}
