package identity

import "strings"

// Role separates the two portals of the application.
type Role string

const (
	RoleStudent  Role = "STUDENT"
	RoleLecturer Role = "LECTURER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleLecturer
}

// User is a registered account.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	StudentID string `json:"studentId,omitempty"`
}

// Key returns the attendance key for u: the institutional identifier when
// present, otherwise the email, lower-cased. Empty when u has neither.
func Key(u User) string {
	if id := strings.TrimSpace(u.StudentID); id != "" {
		return strings.ToLower(id)
	}
	return strings.ToLower(strings.TrimSpace(u.Email))
}

// NormalizeKey canonicalizes an externally supplied attendance key.
func NormalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
