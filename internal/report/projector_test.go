package report

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartattend/internal/attendance"
	"smartattend/internal/course"
	"smartattend/internal/identity"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func rec(key, courseID, sessionID string, status attendance.Status, minutes int) attendance.Record {
	return attendance.Record{
		ID: key + sessionID, CourseID: courseID, SessionID: sessionID,
		StudentKey: key, Status: status, Timestamp: t0.Add(time.Duration(minutes) * time.Minute),
	}
}

var records = []attendance.Record{
	rec("s-1", "c1", "x1", attendance.StatusPresent, 0),
	rec("s-1", "c1", "x2", attendance.StatusAbsent, 60),
	rec("s-1", "c2", "y1", attendance.StatusPresent, 30),
	rec("bob@uni.edu", "c1", "x1", attendance.StatusAbsent, 5),
}

func TestForStudent(t *testing.T) {
	st := ForStudent(records, "s-1")

	assert.Equal(t, 3, st.TotalSessions)
	assert.Equal(t, 2, st.PresentCount)
	assert.InDelta(t, 2.0/3.0, st.PresenceRate, 1e-9)
	assert.Equal(t, 67, st.Percent)
	require.NotNil(t, st.LastSeen)
	assert.Equal(t, t0.Add(time.Hour), *st.LastSeen)
}

func TestForStudent_NoRecordsIsZero(t *testing.T) {
	st := ForStudent(records, "nobody")

	assert.Equal(t, 0.0, st.PresenceRate)
	assert.False(t, math.IsNaN(st.PresenceRate))
	assert.Nil(t, st.LastSeen)

	st = ForStudent(nil, "nobody")
	assert.Equal(t, 0.0, st.PresenceRate)
}

func TestRoster(t *testing.T) {
	students := []identity.User{
		{Name: "Alice", StudentID: "S-1", Role: identity.RoleStudent},
		{Name: "Bob", Email: "Bob@uni.edu", Role: identity.RoleStudent},
		{Name: "Carol", Email: "carol@uni.edu", Role: identity.RoleStudent},
	}

	roster := Roster(students, records)
	require.Len(t, roster, 3)
	assert.Equal(t, "Alice", roster[0].Name)
	assert.Equal(t, 3, roster[0].TotalSessions)
	assert.Equal(t, 0, roster[1].Percent)
	assert.Equal(t, 1, roster[1].TotalSessions)
	assert.Equal(t, 0, roster[2].TotalSessions)
}

func TestByCourseAndGlobalRate(t *testing.T) {
	stats := ByCourse(course.Defaults(), records)
	require.Len(t, stats, 3)
	assert.Equal(t, CourseStats{CourseID: "c1", Code: "CS101", Present: 1, Absent: 2, Sessions: 2}, stats[0])
	assert.Equal(t, CourseStats{CourseID: "c2", Code: "CS302", Present: 1, Sessions: 1}, stats[1])
	assert.Equal(t, CourseStats{CourseID: "c3", Code: "DB101"}, stats[2])

	assert.InDelta(t, 0.5, GlobalRate(records), 1e-9)
	assert.Equal(t, 0.0, GlobalRate(nil))
}

func TestForCourse(t *testing.T) {
	got := ForCourse(records, "c1")
	require.Len(t, got, 3)
	assert.Equal(t, "x2", got[0].SessionID)
	assert.Empty(t, ForCourse(records, "c3"))
}
