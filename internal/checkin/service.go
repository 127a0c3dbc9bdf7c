// Package checkin ties scan validation to the record store and schedules the
// side effects of every accepted write.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"smartattend/internal/attendance"
	"smartattend/internal/course"
	"smartattend/internal/identity"
	"smartattend/internal/metrics"
	"smartattend/internal/queue"
	"smartattend/internal/scan"
	"smartattend/internal/session"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrMissingStudent = errors.New("student id is required")
)

// Notifier is told that durable state changed.
type Notifier interface {
	Notify()
}

// Publisher receives record-change events.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Snapshots drops the saved state.
type Snapshots interface {
	Reset(ctx context.Context) error
}

// Deps are the collaborators of a Service. Notifier, Publisher and Snapshots
// are optional.
type Deps struct {
	Directory *identity.Directory
	Catalog   *course.Catalog
	Sessions  *session.Manager
	Records   *attendance.Service
	Metrics   *metrics.Metrics
	Notifier  Notifier
	Publisher Publisher
	Snapshots Snapshots
}

// Service runs scans, overrides and resets.
type Service struct {
	directory *identity.Directory
	catalog   *course.Catalog
	sessions  *session.Manager
	validator *scan.Validator
	records   *attendance.Service
	metrics   *metrics.Metrics
	notifier  Notifier
	publisher Publisher
	snapshots Snapshots
	now       func() time.Time

	publishTimeout time.Duration
	inflight       sync.WaitGroup
}

// New builds a service from its dependencies.
func New(d Deps) *Service {
	return &Service{
		directory:      d.Directory,
		catalog:        d.Catalog,
		sessions:       d.Sessions,
		validator:      scan.NewValidator(d.Sessions),
		records:        d.Records,
		metrics:        d.Metrics,
		notifier:       d.Notifier,
		publisher:      d.Publisher,
		snapshots:      d.Snapshots,
		now:            time.Now,
		publishTimeout: 5 * time.Second,
	}
}

// OpenSession starts a session for the course.
func (s *Service) OpenSession(courseID string) (*session.Session, error) {
	sess, err := s.sessions.Open(courseID, s.now())
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SessionsOpened.Inc()
		s.metrics.ActiveSessions.Set(float64(s.sessions.Len()))
	}
	log.WithFields(log.Fields{"session_id": sess.ID, "course_id": courseID, "expires_at": sess.ExpiresAt}).Info("session opened")
	return sess, nil
}

// Session returns a known session.
func (s *Service) Session(id string) (*session.Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return sess, nil
}

// Scan validates raw for caller and records the student present. On
// attendance.ErrDuplicateSubmission the existing record is returned as well.
func (s *Service) Scan(ctx context.Context, caller identity.User, raw string) (attendance.Record, error) {
	acc, err := s.validator.Validate(raw, caller, s.now())
	if err != nil {
		s.countScan(err)
		return attendance.Record{}, err
	}

	rec, err := s.records.SubmitSelfScan(ctx, acc.StudentKey, acc.StudentName, acc.Session)
	s.countScan(err)
	if err != nil {
		return rec, err
	}

	log.WithFields(log.Fields{"session_id": rec.SessionID, "student": rec.StudentKey}).Info("scan accepted")
	s.changed(rec)
	return rec, nil
}

// Override sets the status of a student for a session. The session may have
// expired but must still be held by the manager.
func (s *Service) Override(ctx context.Context, sessionID, studentID, status string) (attendance.Record, error) {
	st, err := attendance.ParseStatus(status)
	if err != nil {
		return attendance.Record{}, err
	}
	key := identity.NormalizeKey(studentID)
	if key == "" {
		return attendance.Record{}, ErrMissingStudent
	}
	sess, err := s.Session(sessionID)
	if err != nil {
		return attendance.Record{}, err
	}

	name := key
	if u, ok := s.directory.ByKey(key); ok {
		name = u.Name
	}
	rec, err := s.records.ApplyOverride(ctx, key, name, sess, st)
	if err != nil {
		return attendance.Record{}, err
	}
	if s.metrics != nil {
		s.metrics.Overrides.WithLabelValues(string(st)).Inc()
	}
	log.WithFields(log.Fields{"session_id": sess.ID, "student": key, "status": st}).Info("status overridden")
	s.changed(rec)
	return rec, nil
}

// UpdateCourse changes the tunables of a course.
func (s *Service) UpdateCourse(courseID string, lifetimeMinutes, rotationSeconds int) (course.Course, error) {
	c, err := s.catalog.UpdateSettings(courseID, lifetimeMinutes, rotationSeconds)
	if err != nil {
		return course.Course{}, err
	}
	s.notify()
	return c, nil
}

// ResetAll wipes users and records, restores the default catalog and drops
// the saved snapshots. Mirrors learn about it through a reset event so that
// record events still queued are not written back.
func (s *Service) ResetAll(ctx context.Context) error {
	at := s.now()
	if err := s.records.Reset(ctx); err != nil {
		return fmt.Errorf("reset records: %w", err)
	}
	s.directory.Restore(nil)
	s.catalog.Restore(course.Defaults())
	if s.snapshots != nil {
		if err := s.snapshots.Reset(ctx); err != nil {
			// the save scheduled below overwrites the stale snapshots
			if s.metrics != nil {
				s.metrics.PersistFailures.Inc()
			}
			log.Warnf("drop snapshots: %v", err)
		}
	}
	log.WithField("at", at).Warn("all attendance data reset")
	s.notify()

	if s.publisher != nil {
		msg, err := queue.NewMessage(queue.TypeRecordsReset, queue.ResetEvent{At: at})
		if err != nil {
			return err
		}
		s.publish(msg, log.Fields{"type": msg.Type})
	}
	return nil
}

// Touch schedules a save after a change made outside the service, such as a
// new registration.
func (s *Service) Touch() {
	s.notify()
}

// Wait blocks until pending event publications finish.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) changed(rec attendance.Record) {
	s.notify()
	if s.publisher == nil {
		return
	}
	msg, err := queue.NewMessage(queue.TypeRecordChanged, rec)
	if err != nil {
		log.WithField("record_id", rec.ID).Errorf("encode event: %v", err)
		return
	}
	s.publish(msg, log.Fields{"type": msg.Type, "record_id": rec.ID})
}

func (s *Service) publish(msg queue.Message, fields log.Fields) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
		defer cancel()
		if err := s.publisher.Publish(ctx, msg); err != nil {
			if s.metrics != nil {
				s.metrics.QueueFailures.Inc()
			}
			log.WithFields(fields).Warnf("publish event: %v", err)
		}
	}()
}

func (s *Service) notify() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

func (s *Service) countScan(err error) {
	if s.metrics != nil {
		s.metrics.Scans.WithLabelValues(Outcome(err)).Inc()
	}
}

// Outcome names the result of a scan for metrics and responses.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, scan.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, scan.ErrSessionInactive):
		return "session_inactive"
	case errors.Is(err, scan.ErrTokenMismatch):
		return "token_mismatch"
	case errors.Is(err, scan.ErrRoleMismatch):
		return "role_mismatch"
	case errors.Is(err, attendance.ErrDuplicateSubmission):
		return "duplicate"
	default:
		return "error"
	}
}
