package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"smartattend/internal/course"
)

// Courses resolves course ids for the manager.
type Courses interface {
	Get(id string) (course.Course, error)
}

// Manager owns the sessions of this process and drives their ticks.
type Manager struct {
	courses   Courses
	retention time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	// Observe, when set, receives the number of held sessions after each TickAll.
	Observe func(held int)
}

// NewManager creates a manager. Sessions are dropped retention after they expire.
func NewManager(courses Courses, retention time.Duration) *Manager {
	return &Manager{
		courses:   courses,
		retention: retention,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Open starts a session for courseID at now. It fails only for unknown courses.
func (m *Manager) Open(courseID string, now time.Time) (*Session, error) {
	c, err := m.courses.Get(courseID)
	if err != nil {
		return nil, fmt.Errorf("open session for %q: %w", courseID, err)
	}
	s, err := Open(c, now)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len is the number of sessions held, expired ones included.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// TickAll advances every session to now and forgets sessions that expired
// more than the retention ago.
func (m *Manager) TickAll(now time.Time) {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	var stale []string
	for _, s := range all {
		if err := s.Tick(now); err != nil {
			log.WithFields(log.Fields{"session_id": s.ID, "course_id": s.CourseID}).Errorf("token rotation failed: %v", err)
		}
		if m.retention > 0 && !now.Before(s.ExpiresAt.Add(m.retention)) {
			stale = append(stale, s.ID)
		}
	}
	if len(stale) > 0 {
		m.mu.Lock()
		for _, id := range stale {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
	}
	if m.Observe != nil {
		m.Observe(m.Len())
	}
}

// Run ticks all sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.TickAll(m.now())
		}
	}
}
