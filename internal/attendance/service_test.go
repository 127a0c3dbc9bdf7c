package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartattend/internal/course"
	"smartattend/internal/session"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *MemoryStore, *session.Session) {
	t.Helper()
	sess, err := session.Open(course.Course{ID: "c1", TokenLifetimeMinutes: 15, TokenRotationSeconds: 60}, t0)
	require.NoError(t, err)
	store := NewMemoryStore(nil)
	svc := NewService(store)
	clock := t0
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, store, sess
}

func TestSubmitSelfScan_Once(t *testing.T) {
	ctx := context.Background()
	svc, store, sess := newTestService(t)

	rec, err := svc.SubmitSelfScan(ctx, "s-1", "Alice", sess)
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, rec.Status)
	assert.Equal(t, sess.ID, rec.SessionID)
	assert.Equal(t, "c1", rec.CourseID)

	before, err := store.List(ctx)
	require.NoError(t, err)

	again, err := svc.SubmitSelfScan(ctx, "s-1", "Alice", sess)
	assert.ErrorIs(t, err, ErrDuplicateSubmission)
	assert.Equal(t, rec, again)

	after, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestApplyOverride_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, store, sess := newTestService(t)

	first, err := svc.ApplyOverride(ctx, "s-2", "Bob", sess, StatusAbsent)
	require.NoError(t, err)
	afterFirst, err := store.List(ctx)
	require.NoError(t, err)

	second, err := svc.ApplyOverride(ctx, "s-2", "Bob", sess, StatusAbsent)
	require.NoError(t, err)
	afterSecond, err := store.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, afterFirst, afterSecond)

	changed, err := svc.ApplyOverride(ctx, "s-2", "Bob", sess, StatusPresent)
	require.NoError(t, err)
	assert.Equal(t, first.ID, changed.ID)
	assert.Equal(t, StatusPresent, changed.Status)
	assert.True(t, changed.Timestamp.After(first.Timestamp))
}

func TestApplyOverride_RejectsUnknownStatus(t *testing.T) {
	svc, _, sess := newTestService(t)

	_, err := svc.ApplyOverride(context.Background(), "s-2", "Bob", sess, Status("late"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestScenario_OverrideSticksAfterDuplicateScan(t *testing.T) {
	ctx := context.Background()
	svc, store, sess := newTestService(t)

	rec, err := svc.SubmitSelfScan(ctx, "a", "Student A", sess)
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, rec.Status)

	rec, err = svc.ApplyOverride(ctx, "a", "Student A", sess, StatusAbsent)
	require.NoError(t, err)
	assert.Equal(t, StatusAbsent, rec.Status)

	_, err = svc.SubmitSelfScan(ctx, "a", "Student A", sess)
	assert.ErrorIs(t, err, ErrDuplicateSubmission)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, StatusAbsent, all[0].Status)
}

func TestConcurrentWritesKeepOneRecordPerPair(t *testing.T) {
	ctx := context.Background()
	svc, store, sess := newTestService(t)
	svc.now = func() time.Time { return t0 }

	const workers = 64
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				_, err := svc.ApplyOverride(ctx, "racer", "Racer", sess, StatusAbsent)
				assert.NoError(t, err)
				return
			}
			if _, err := svc.SubmitSelfScan(ctx, "racer", "Racer", sess); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.LessOrEqual(t, accepted, 1)
}

func TestMemoryStore_RestoreKeepsNewestPerPair(t *testing.T) {
	ctx := context.Background()
	old := Record{ID: "1", SessionID: "x", StudentKey: "s", Status: StatusPresent, Timestamp: t0}
	newer := Record{ID: "2", SessionID: "x", StudentKey: "s", Status: StatusAbsent, Timestamp: t0.Add(time.Minute)}
	other := Record{ID: "3", SessionID: "y", StudentKey: "s", Status: StatusPresent, Timestamp: t0}

	store := NewMemoryStore([]Record{old, newer, other})
	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer, all[0])
	assert.Equal(t, other, all[1])

	require.NoError(t, NewService(store).Reset(ctx))
	all, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("present")
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, s)

	_, err = ParseStatus("PRESENT")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
