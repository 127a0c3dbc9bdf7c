// Package report derives read-only aggregates from attendance records. Every
// function is pure and recomputes from the records it is given.
package report

import (
	"math"
	"sort"
	"time"

	"smartattend/internal/attendance"
	"smartattend/internal/course"
	"smartattend/internal/identity"
)

// StudentStats summarizes one student's records across all sessions.
type StudentStats struct {
	StudentKey    string     `json:"studentKey"`
	Name          string     `json:"name,omitempty"`
	TotalSessions int        `json:"totalSessions"`
	PresentCount  int        `json:"presentCount"`
	PresenceRate  float64    `json:"presenceRate"`
	Percent       int        `json:"presencePercent"`
	LastSeen      *time.Time `json:"lastSeen,omitempty"`
}

// ForStudent computes the stats of the student identified by key. A student
// without records has a presence rate of exactly 0 and no last-seen time.
func ForStudent(records []attendance.Record, key string) StudentStats {
	st := StudentStats{StudentKey: key}
	for _, r := range records {
		if r.StudentKey != key {
			continue
		}
		st.TotalSessions++
		if r.Status == attendance.StatusPresent {
			st.PresentCount++
		}
		if st.LastSeen == nil || r.Timestamp.After(*st.LastSeen) {
			ts := r.Timestamp
			st.LastSeen = &ts
		}
	}
	st.PresenceRate = rate(st.PresentCount, st.TotalSessions)
	st.Percent = int(math.Round(st.PresenceRate * 100))
	return st
}

// Roster computes stats for every student, in the order given.
func Roster(students []identity.User, records []attendance.Record) []StudentStats {
	out := make([]StudentStats, 0, len(students))
	for _, u := range students {
		st := ForStudent(records, identity.Key(u))
		st.Name = u.Name
		out = append(out, st)
	}
	return out
}

// CourseStats is the per-course attendance summary.
type CourseStats struct {
	CourseID string `json:"courseId"`
	Code     string `json:"code"`
	Present  int    `json:"present"`
	Absent   int    `json:"absent"`
	Sessions int    `json:"sessions"`
}

// ByCourse counts records per course, for every course in courses.
func ByCourse(courses []course.Course, records []attendance.Record) []CourseStats {
	idx := make(map[string]int, len(courses))
	out := make([]CourseStats, len(courses))
	sessions := make([]map[string]struct{}, len(courses))
	for i, c := range courses {
		idx[c.ID] = i
		out[i] = CourseStats{CourseID: c.ID, Code: c.Code}
		sessions[i] = make(map[string]struct{})
	}
	for _, r := range records {
		i, ok := idx[r.CourseID]
		if !ok {
			continue
		}
		sessions[i][r.SessionID] = struct{}{}
		if r.Status == attendance.StatusPresent {
			out[i].Present++
		} else {
			out[i].Absent++
		}
	}
	for i := range out {
		out[i].Sessions = len(sessions[i])
	}
	return out
}

// GlobalRate is the share of present records among all records, 0 when empty.
func GlobalRate(records []attendance.Record) float64 {
	present := 0
	for _, r := range records {
		if r.Status == attendance.StatusPresent {
			present++
		}
	}
	return rate(present, len(records))
}

// ForCourse filters the records of one course, newest first.
func ForCourse(records []attendance.Record, courseID string) []attendance.Record {
	var out []attendance.Record
	for _, r := range records {
		if r.CourseID == courseID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
