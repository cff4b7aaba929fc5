// Package kvtest holds the behavioural contract every kv driver must pass.
package kvtest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/thyrotrack/thyrotrack/internal/platform/kv"
)

// Run exercises the revision contract against a fresh store from factory.
func Run(t *testing.T, factory func(t *testing.T) kv.Store) {
	t.Helper()

	t.Run("missing key", func(t *testing.T) {
		s := factory(t)
		if _, err := s.Get(context.Background(), "absent"); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("create only once", func(t *testing.T) {
		ctx := context.Background()
		s := factory(t)
		if _, err := s.Put(ctx, "thyroid_records", []byte(`[]`), kv.NoRevision); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := s.Put(ctx, "thyroid_records", []byte(`[]`), kv.NoRevision); !errors.Is(err, kv.ErrConflict) {
			t.Fatalf("expected ErrConflict on second create, got %v", err)
		}
	})

	t.Run("compare and swap", func(t *testing.T) {
		ctx := context.Background()
		s := factory(t)
		rev1, err := s.Put(ctx, "other_metrics", []byte(`[{"id":"a"}]`), kv.NoRevision)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		doc, err := s.Get(ctx, "other_metrics")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if doc.Revision != rev1 {
			t.Errorf("get revision %q, put returned %q", doc.Revision, rev1)
		}
		if !sameJSON(doc.Value, `[{"id":"a"}]`) {
			t.Errorf("unexpected value %s", doc.Value)
		}

		rev2, err := s.Put(ctx, "other_metrics", []byte(`[{"id":"b"}]`), rev1)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if rev2 == rev1 {
			t.Error("revision did not change")
		}
		if _, err := s.Put(ctx, "other_metrics", []byte(`[{"id":"c"}]`), rev1); !errors.Is(err, kv.ErrConflict) {
			t.Fatalf("expected ErrConflict for stale revision, got %v", err)
		}

		doc, err = s.Get(ctx, "other_metrics")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !sameJSON(doc.Value, `[{"id":"b"}]`) {
			t.Errorf("stale write leaked: %s", doc.Value)
		}
	})

	t.Run("unconditional overwrite", func(t *testing.T) {
		ctx := context.Background()
		s := factory(t)
		if _, err := s.Put(ctx, "medication_changes", []byte(`[1]`), kv.AnyRevision); err != nil {
			t.Fatalf("put on absent key: %v", err)
		}
		if _, err := s.Put(ctx, "medication_changes", []byte(`[2]`), kv.AnyRevision); err != nil {
			t.Fatalf("put on present key: %v", err)
		}
		doc, err := s.Get(ctx, "medication_changes")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !sameJSON(doc.Value, `[2]`) {
			t.Errorf("expected [2], got %s", doc.Value)
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := factory(t)
		if err := s.Ping(context.Background()); err != nil {
			t.Fatalf("ping: %v", err)
		}
		if s.Driver() == "" {
			t.Error("driver name is empty")
		}
	})
}

// sameJSON compares documents structurally; Postgres JSONB does not keep
// the original whitespace.
func sameJSON(got []byte, want string) bool {
	var a, b interface{}
	if err := json.Unmarshal(got, &a); err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(want), &b); err != nil {
		return false
	}
	return cmp.Equal(a, b)
}
