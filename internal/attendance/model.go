package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status of a student for one session.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

var (
	ErrDuplicateSubmission = errors.New("attendance already recorded for this session")
	ErrInvalidStatus       = errors.New("status must be present or absent")
)

// ParseStatus validates a status coming from outside the engine.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPresent, StatusAbsent:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Record is the attendance of one student for one session. At most one
// record exists per (StudentKey, SessionID).
type Record struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"courseId"`
	SessionID   string    `json:"sessionId"`
	StudentKey  string    `json:"studentId"`
	StudentName string    `json:"studentName"`
	Status      Status    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// Store keeps records unique per (StudentKey, SessionID). Both writes are a
// single critical section covering the lookup and the write.
type Store interface {
	// InsertIfAbsent stores rec unless a record for the same pair exists, in
	// which case the existing record is returned with inserted == false.
	InsertIfAbsent(ctx context.Context, rec Record) (stored Record, inserted bool, err error)
	// UpsertStatus inserts rec or replaces status and timestamp of the existing
	// record. A record that already has rec.Status is left untouched.
	UpsertStatus(ctx context.Context, rec Record) (stored Record, changed bool, err error)
	// List returns every record, oldest first.
	List(ctx context.Context) ([]Record, error)
	// Reset deletes every record.
	Reset(ctx context.Context) error
}
