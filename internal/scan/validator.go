// Package scan decides whether a decoded proof payload counts as a valid
// self-scan. Duplicate detection is left to the record store.
package scan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smartattend/internal/identity"
	"smartattend/internal/session"
)

var (
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrSessionInactive = errors.New("session inactive")
	ErrTokenMismatch   = errors.New("token mismatch")
	ErrRoleMismatch    = errors.New("role mismatch")
)

var payloadFields = [...]string{"sessionId", "courseId", "token"}

// Payload is the decoded content of a proof image.
type Payload struct {
	SessionID string
	CourseID  string
	Token     string
}

// ParsePayload accepts exactly a JSON object with string fields sessionId,
// courseId and token, all non-empty.
func ParsePayload(raw string) (Payload, error) {
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&fields); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if dec.More() {
		return Payload{}, fmt.Errorf("%w: trailing data", ErrInvalidPayload)
	}
	if len(fields) != len(payloadFields) {
		return Payload{}, fmt.Errorf("%w: expected fields %v", ErrInvalidPayload, payloadFields)
	}

	values := make(map[string]string, len(payloadFields))
	for _, name := range payloadFields {
		rawVal, ok := fields[name]
		if !ok {
			return Payload{}, fmt.Errorf("%w: missing %s", ErrInvalidPayload, name)
		}
		var s string
		if err := json.Unmarshal(rawVal, &s); err != nil || s == "" {
			return Payload{}, fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidPayload, name)
		}
		values[name] = s
	}
	return Payload{SessionID: values["sessionId"], CourseID: values["courseId"], Token: values["token"]}, nil
}

// Sessions looks up the sessions a caller may scan against.
type Sessions interface {
	Get(id string) (*session.Session, bool)
}

// Acceptance is a scan that passed validation.
type Acceptance struct {
	Session     *session.Session
	StudentKey  string
	StudentName string
}

// Validator checks scans against live session state.
type Validator struct {
	sessions Sessions
}

// NewValidator builds a validator over sessions.
func NewValidator(sessions Sessions) *Validator {
	return &Validator{sessions: sessions}
}

// Validate runs the checks in order and returns the first failure. Every
// returned error wraps exactly one of the package sentinels.
func (v *Validator) Validate(raw string, caller identity.User, now time.Time) (Acceptance, error) {
	p, err := ParsePayload(raw)
	if err != nil {
		return Acceptance{}, err
	}

	s, ok := v.sessions.Get(p.SessionID)
	if !ok {
		return Acceptance{}, fmt.Errorf("%w: unknown session %s", ErrSessionInactive, p.SessionID)
	}
	if !s.Active(now) {
		return Acceptance{}, fmt.Errorf("%w: session %s expired", ErrSessionInactive, s.ID)
	}

	if p.CourseID != s.CourseID {
		return Acceptance{}, fmt.Errorf("%w: course does not match session", ErrInvalidPayload)
	}

	if !s.IsRecentToken(p.Token) {
		return Acceptance{}, ErrTokenMismatch
	}

	if caller.Role != identity.RoleStudent {
		return Acceptance{}, fmt.Errorf("%w: only students can scan", ErrRoleMismatch)
	}
	key := identity.Key(caller)
	if key == "" {
		return Acceptance{}, fmt.Errorf("%w: caller has no attendance key", ErrRoleMismatch)
	}

	return Acceptance{Session: s, StudentKey: key, StudentName: caller.Name}, nil
}
