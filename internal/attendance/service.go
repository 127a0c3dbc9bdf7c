package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"smartattend/internal/session"
)

// Service reconciles self-scans and instructor overrides into the store.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// SubmitSelfScan records the student as present. A student certifies at most
// once per session; later attempts get ErrDuplicateSubmission and leave the
// existing record as it is, whatever its status.
func (s *Service) SubmitSelfScan(ctx context.Context, studentKey, studentName string, sess *session.Session) (Record, error) {
	stored, inserted, err := s.store.InsertIfAbsent(ctx, s.newRecord(studentKey, studentName, sess, StatusPresent))
	if err != nil {
		return Record{}, err
	}
	if !inserted {
		return stored, ErrDuplicateSubmission
	}
	return stored, nil
}

// ApplyOverride sets the student's status for the session, creating the record
// when needed. Repeating an override with the same status changes nothing.
func (s *Service) ApplyOverride(ctx context.Context, studentKey, studentName string, sess *session.Session, status Status) (Record, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return Record{}, err
	}
	stored, _, err := s.store.UpsertStatus(ctx, s.newRecord(studentKey, studentName, sess, status))
	return stored, err
}

// Records returns every stored record.
func (s *Service) Records(ctx context.Context) ([]Record, error) {
	return s.store.List(ctx)
}

// Reset wipes the store.
func (s *Service) Reset(ctx context.Context) error {
	return s.store.Reset(ctx)
}

func (s *Service) newRecord(studentKey, studentName string, sess *session.Session, status Status) Record {
	return Record{
		ID:          uuid.NewString(),
		CourseID:    sess.CourseID,
		SessionID:   sess.ID,
		StudentKey:  studentKey,
		StudentName: studentName,
		Status:      status,
		Timestamp:   s.now(),
	}
}
