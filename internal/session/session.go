package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartattend/internal/course"
)

// Status of a session. Expired is terminal.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// Proof is the triple handed to the display encoder.
type Proof struct {
	SessionID string `json:"sessionId"`
	CourseID  string `json:"courseId"`
	Token     string `json:"token"`
}

// Encode renders the proof as the payload a scanner will decode.
func (p Proof) Encode() string {
	b, _ := json.Marshal(p)
	return string(b)
}

// Session is one attendance window for a course.
type Session struct {
	ID        string
	CourseID  string
	StartTime time.Time
	ExpiresAt time.Time

	mu      sync.RWMutex
	rotator *Rotator
	expired bool
}

// Open starts an active session for c at now.
func Open(c course.Course, now time.Time) (*Session, error) {
	rot, err := NewRotator(c.Rotation(), now)
	if err != nil {
		return nil, err
	}
	return newSession(c, now, rot), nil
}

func newSession(c course.Course, now time.Time, rot *Rotator) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CourseID:  c.ID,
		StartTime: now,
		ExpiresAt: now.Add(c.Lifetime()),
		rotator:   rot,
	}
}

// Tick advances the session to now: it expires the session once the deadline
// is reached and otherwise lets the rotator decide whether to rotate.
func (s *Session) Tick(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expireLocked(now) {
		return nil
	}
	return s.rotator.Tick(now)
}

// Status reports the state of the session at now. Once Expired is observed it
// is reported for every later call, whatever now is passed.
func (s *Session) Status(now time.Time) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expireLocked(now) {
		return StatusExpired
	}
	return StatusActive
}

// Active is shorthand for Status(now) == StatusActive.
func (s *Session) Active(now time.Time) bool {
	return s.Status(now) == StatusActive
}

// CurrentProof returns the proof to display, or false once the session expired.
func (s *Session) CurrentProof(now time.Time) (Proof, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expireLocked(now) {
		return Proof{}, false
	}
	token, _ := s.rotator.Current()
	return Proof{SessionID: s.ID, CourseID: s.CourseID, Token: token}, true
}

// TokenIssuedAt is when the token on display was issued.
func (s *Session) TokenIssuedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, at := s.rotator.Current()
	return at
}

// IsRecentToken reports whether value is the current or the previous token.
func (s *Session) IsRecentToken(value string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rotator.IsRecentToken(value)
}

func (s *Session) expireLocked(now time.Time) bool {
	if s.expired {
		return true
	}
	if !now.Before(s.ExpiresAt) {
		s.expired = true
		s.rotator.Freeze()
	}
	return s.expired
}
