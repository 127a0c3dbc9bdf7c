package identity

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrMissingFields  = errors.New("name and email required")
	ErrInvalidRole    = errors.New("invalid role")
	ErrEmailTaken     = errors.New("email already registered")
	ErrStudentIDTaken = errors.New("student id already registered")
	ErrNotFound       = errors.New("account not found")
	ErrWrongPortal    = errors.New("account registered under a different role")
)

// Directory is the in-memory user registry. It is safe for concurrent use.
type Directory struct {
	mu    sync.RWMutex
	users []User
}

// NewDirectory returns a directory seeded with users.
func NewDirectory(users []User) *Directory {
	d := &Directory{}
	d.Restore(users)
	return d
}

// Register creates an account. Emails are unique regardless of case; only
// students keep a student id. A student's attendance key must not collide
// with another student's key, and no identifier usable for login may resolve
// to two accounts.
func (d *Directory) Register(name, email string, role Role, studentID string) (User, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" {
		return User{}, ErrMissingFields
	}
	if !role.Valid() {
		return User{}, ErrInvalidRole
	}
	if role != RoleStudent {
		studentID = ""
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	u := User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		StudentID: strings.TrimSpace(studentID),
	}
	for _, other := range d.users {
		if strings.EqualFold(other.Email, email) {
			return User{}, ErrEmailTaken
		}
		if identifierClash(u, other) {
			return User{}, ErrStudentIDTaken
		}
	}
	d.users = append(d.users, u)
	return u, nil
}

func identifierClash(u, other User) bool {
	if u.Role == RoleStudent && other.Role == RoleStudent && Key(u) == Key(other) {
		return true
	}
	if u.StudentID != "" && strings.EqualFold(u.StudentID, other.Email) {
		return true
	}
	return other.StudentID != "" && strings.EqualFold(other.StudentID, u.Email)
}

// Login finds the account whose email or student id matches identifier.
// A non-empty portal must match the account role.
func (d *Directory) Login(identifier string, portal Role) (User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return User{}, ErrNotFound
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if strings.EqualFold(u.Email, identifier) || (u.StudentID != "" && strings.EqualFold(u.StudentID, identifier)) {
			if portal != "" && u.Role != portal {
				return User{}, ErrWrongPortal
			}
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

// Get returns the user with the given id.
func (d *Directory) Get(id string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// ByKey returns the student whose attendance key equals key.
func (d *Directory) ByKey(key string) (User, bool) {
	key = NormalizeKey(key)
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if u.Role == RoleStudent && Key(u) == key {
			return u, true
		}
	}
	return User{}, false
}

// Students lists all student accounts in registration order.
func (d *Directory) Students() []User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []User
	for _, u := range d.users {
		if u.Role == RoleStudent {
			out = append(out, u)
		}
	}
	return out
}

// Snapshot returns a copy of all users.
func (d *Directory) Snapshot() []User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]User(nil), d.users...)
}

// Restore replaces the registry contents.
func (d *Directory) Restore(users []User) {
	d.mu.Lock()
	d.users = append([]User(nil), users...)
	d.mu.Unlock()
}
