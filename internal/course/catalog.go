package course

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Bounds of the session tunables.
const (
	MaxLifetimeMinutes = 24 * 60
	MaxRotationSeconds = 60 * 60
)

var (
	ErrUnknownCourse   = errors.New("unknown course")
	ErrInvalidSettings = errors.New("token lifetime must be 1-1440 minutes and rotation 1-3600 seconds")
)

// ValidateSettings checks tunables against their bounds.
func ValidateSettings(lifetimeMinutes, rotationSeconds int) error {
	if lifetimeMinutes <= 0 || lifetimeMinutes > MaxLifetimeMinutes ||
		rotationSeconds <= 0 || rotationSeconds > MaxRotationSeconds {
		return ErrInvalidSettings
	}
	return nil
}

func clamp(v, max int) int {
	if v < 1 {
		return 1
	}
	if v > max {
		return max
	}
	return v
}

// Course is a taught course with its session tunables.
type Course struct {
	ID                   string `json:"id"`
	Code                 string `json:"code"`
	Name                 string `json:"name"`
	LecturerID           string `json:"lecturerId"`
	TokenLifetimeMinutes int    `json:"tokenLifetimeMinutes"`
	TokenRotationSeconds int    `json:"tokenRotationSeconds"`
}

// Lifetime is the absolute duration of a session opened for the course.
func (c Course) Lifetime() time.Duration {
	return time.Duration(c.TokenLifetimeMinutes) * time.Minute
}

// Rotation is how often the proof token changes.
func (c Course) Rotation() time.Duration {
	return time.Duration(c.TokenRotationSeconds) * time.Second
}

// Label is the human readable "CODE: Name" form.
func (c Course) Label() string {
	return c.Code + ": " + c.Name
}

// Defaults is the catalog a fresh installation starts with.
func Defaults() []Course {
	return []Course{
		{ID: "c1", Code: "CS101", Name: "Introduction to Computer Science", TokenLifetimeMinutes: 15, TokenRotationSeconds: 60},
		{ID: "c2", Code: "CS302", Name: "Advanced Algorithms", TokenLifetimeMinutes: 10, TokenRotationSeconds: 30},
		{ID: "c3", Code: "DB101", Name: "Database Management Systems", TokenLifetimeMinutes: 20, TokenRotationSeconds: 45},
	}
}

// Catalog holds the known courses. Only tunables can change after creation.
type Catalog struct {
	mu      sync.RWMutex
	courses map[string]Course
}

// NewCatalog returns a catalog holding courses.
func NewCatalog(courses []Course) *Catalog {
	c := &Catalog{}
	c.Restore(courses)
	return c
}

// Get looks a course up by id.
func (c *Catalog) Get(id string) (Course, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	crs, ok := c.courses[id]
	if !ok {
		return Course{}, ErrUnknownCourse
	}
	return crs, nil
}

// List returns all courses ordered by code.
func (c *Catalog) List() []Course {
	c.mu.RLock()
	out := make([]Course, 0, len(c.courses))
	for _, crs := range c.courses {
		out = append(out, crs)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// UpdateSettings changes the tunables of a course. Sessions already open keep
// the values they were opened with.
func (c *Catalog) UpdateSettings(id string, lifetimeMinutes, rotationSeconds int) (Course, error) {
	if err := ValidateSettings(lifetimeMinutes, rotationSeconds); err != nil {
		return Course{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	crs, ok := c.courses[id]
	if !ok {
		return Course{}, ErrUnknownCourse
	}
	crs.TokenLifetimeMinutes = lifetimeMinutes
	crs.TokenRotationSeconds = rotationSeconds
	c.courses[id] = crs
	return crs, nil
}

// Snapshot returns all courses for persistence.
func (c *Catalog) Snapshot() []Course {
	return c.List()
}

// Restore replaces the catalog contents. Tunables outside their bounds, as
// found in snapshots written before the bounds existed, are clamped.
func (c *Catalog) Restore(courses []Course) {
	m := make(map[string]Course, len(courses))
	for _, crs := range courses {
		crs.TokenLifetimeMinutes = clamp(crs.TokenLifetimeMinutes, MaxLifetimeMinutes)
		crs.TokenRotationSeconds = clamp(crs.TokenRotationSeconds, MaxRotationSeconds)
		m[crs.ID] = crs
	}
	c.mu.Lock()
	c.courses = m
	c.mu.Unlock()
}
