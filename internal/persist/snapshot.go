// Package persist saves the durable part of the engine state (users, records,
// courses) to the key-value collaborator as versioned JSON snapshots.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"smartattend/internal/attendance"
	"smartattend/internal/course"
	"smartattend/internal/identity"
	"smartattend/internal/store"
)

// SchemaVersion is written into every snapshot.
const SchemaVersion = 1

const (
	KeyUsers   = "smartattend_users"
	KeyRecords = "smartattend_records"
	KeyCourses = "smartattend_courses"
)

var (
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)

// State is everything that outlives the process. Sessions are not part of it.
type State struct {
	Users   []identity.User
	Records []attendance.Record
	Courses []course.Course
}

type envelope[T any] struct {
	Version int `json:"version"`
	Items   []T `json:"items"`
}

// Load reads the saved state. Keys that were never saved yield nil slices.
func Load(ctx context.Context, kv store.KV) (State, error) {
	var (
		st  State
		err error
	)
	if st.Users, err = loadKey[identity.User](ctx, kv, KeyUsers); err != nil {
		return State{}, err
	}
	if st.Records, err = loadKey[attendance.Record](ctx, kv, KeyRecords); err != nil {
		return State{}, err
	}
	if st.Courses, err = loadKey[course.Course](ctx, kv, KeyCourses); err != nil {
		return State{}, err
	}
	return st, nil
}

// Save writes all three snapshots.
func Save(ctx context.Context, kv store.KV, st State) error {
	if err := saveKey(ctx, kv, KeyUsers, st.Users); err != nil {
		return err
	}
	if err := saveKey(ctx, kv, KeyRecords, st.Records); err != nil {
		return err
	}
	return saveKey(ctx, kv, KeyCourses, st.Courses)
}

// Reset removes every snapshot.
func Reset(ctx context.Context, kv store.KV) error {
	return kv.Delete(ctx, KeyUsers, KeyRecords, KeyCourses)
}

func loadKey[T any](ctx context.Context, kv store.KV, key string) ([]T, error) {
	raw, err := kv.Load(ctx, key)
	if errors.Is(err, store.ErrAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	// snapshots written before versioning are bare arrays
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return items, nil
	}

	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if env.Version < 1 || env.Version > SchemaVersion {
		return nil, fmt.Errorf("%w: %s has version %d", ErrUnsupportedVersion, key, env.Version)
	}
	return env.Items, nil
}

func saveKey[T any](ctx context.Context, kv store.KV, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(envelope[T]{Version: SchemaVersion, Items: items})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := kv.Save(ctx, key, b); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
