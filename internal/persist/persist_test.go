package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartattend/internal/attendance"
	"smartattend/internal/course"
	"smartattend/internal/identity"
	"smartattend/internal/store"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func sampleState() State {
	return State{
		Users:   []identity.User{{ID: "u1", Name: "Alice", Email: "alice@uni.edu", Role: identity.RoleStudent, StudentID: "S1"}},
		Records: []attendance.Record{{ID: "r1", CourseID: "c1", SessionID: "x", StudentKey: "s1", StudentName: "Alice", Status: attendance.StatusPresent, Timestamp: t0}},
		Courses: course.Defaults(),
	}
}

// flakyKV fails the first n saves.
type flakyKV struct {
	*store.MemoryKV
	mu    sync.Mutex
	fails int
	saves int
}

func (f *flakyKV) Save(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.saves++
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return errors.New("connection refused")
	}
	f.mu.Unlock()
	return f.MemoryKV.Save(ctx, key, value)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()

	require.NoError(t, Save(ctx, kv, sampleState()))
	raw, err := kv.Load(ctx, KeyRecords)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version":1`)

	got, err := Load(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)
}

func TestLoad_EmptyAndLegacy(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()

	st, err := Load(ctx, kv)
	require.NoError(t, err)
	assert.Nil(t, st.Users)

	legacy := `[{"id":"rec-1","courseId":"c1","studentId":"s1","studentName":"A","timestamp":"2026-03-02T09:00:00Z","sessionId":"session-1","status":"present"}]`
	require.NoError(t, kv.Save(ctx, KeyRecords, []byte(legacy)))
	st, err = Load(ctx, kv)
	require.NoError(t, err)
	require.Len(t, st.Records, 1)
	assert.Equal(t, "s1", st.Records[0].StudentKey)
	assert.Equal(t, "session-1", st.Records[0].SessionID)
}

func TestLoad_RejectsFutureVersion(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	require.NoError(t, kv.Save(ctx, KeyUsers, []byte(`{"version":9,"items":[]}`)))

	_, err := Load(ctx, kv)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	require.NoError(t, Save(ctx, kv, sampleState()))

	require.NoError(t, Reset(ctx, kv))
	_, err := kv.Load(ctx, KeyCourses)
	assert.ErrorIs(t, err, store.ErrAbsent)
}

func fastSyncer(kv store.KV, src Source) *Syncer {
	s := NewSyncer(kv, src)
	s.base = time.Millisecond
	s.cap = 5 * time.Millisecond
	s.attempts = 2
	return s
}

func TestSyncer_FlushRetriesTransientFailures(t *testing.T) {
	kv := &flakyKV{MemoryKV: store.NewMemoryKV(), fails: 2}
	s := fastSyncer(kv, func(context.Context) (State, error) { return sampleState(), nil })

	require.NoError(t, s.Flush(context.Background()))
	got, err := Load(context.Background(), kv)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)
}

func TestSyncer_FlushGivesUpWithPersistenceFailure(t *testing.T) {
	kv := &flakyKV{MemoryKV: store.NewMemoryKV(), fails: 100}
	s := fastSyncer(kv, func(context.Context) (State, error) { return sampleState(), nil })

	err := s.Flush(context.Background())
	assert.ErrorIs(t, err, ErrPersistenceFailure)
}

func TestSyncer_RunKeepsRetryingUntilSaved(t *testing.T) {
	kv := &flakyKV{MemoryKV: store.NewMemoryKV(), fails: 7}
	s := fastSyncer(kv, func(context.Context) (State, error) { return sampleState(), nil })

	var (
		mu       sync.Mutex
		failures int
	)
	s.OnFailure = func(error) {
		mu.Lock()
		failures++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	s.Notify()

	require.Eventually(t, func() bool {
		_, err := kv.Load(context.Background(), KeyCourses)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	mu.Lock()
	assert.GreaterOrEqual(t, failures, 1)
	mu.Unlock()
}

func TestSyncer_RunFlushesPendingOnShutdown(t *testing.T) {
	kv := store.NewMemoryKV()
	s := fastSyncer(kv, func(context.Context) (State, error) { return sampleState(), nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Notify()

	require.NoError(t, s.Run(ctx))
	_, err := kv.Load(context.Background(), KeyUsers)
	assert.NoError(t, err)
}
