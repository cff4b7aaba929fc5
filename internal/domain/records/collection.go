package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/thyrotrack/thyrotrack/internal/platform/kv"
)

// maxAttempts bounds the reload-and-reapply loop on revision conflicts.
const maxAttempts = 3

// collection is one ordered array document. mu serialises writers inside
// the process; rev carries optimistic concurrency across processes.
type collection[T any] struct {
	key   string
	store kv.Store
	obs   Observer

	compare   func(a, b T) int
	idOf      func(T) string
	normalize func(*T)

	mu    sync.RWMutex
	items []T
	rev   string
}

// load replaces the in-memory state with the stored document.
func (c *collection[T]) load(ctx context.Context) error {
	doc, err := c.store.Get(ctx, c.key)
	if errors.Is(err, kv.ErrNotFound) {
		c.items, c.rev = []T{}, kv.NoRevision
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", c.key, err)
	}
	items, err := c.decode(doc.Value)
	if err != nil {
		return &CorruptStateError{Key: c.key, Err: err}
	}
	c.items, c.rev = items, doc.Revision
	return nil
}

func (c *collection[T]) decode(data []byte) ([]T, error) {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	if c.normalize != nil {
		for i := range items {
			c.normalize(&items[i])
		}
	}
	slices.SortStableFunc(items, c.compare)
	return items, nil
}

// list returns a copy of the ordered items.
func (c *collection[T]) list() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

func (c *collection[T]) first() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.items) == 0 {
		var zero T
		return zero, false
	}
	return c.items[0], true
}

// mutate runs fn on a copy of the items and persists the result. fn reports
// whether it changed anything; unchanged collections are never written. On
// a revision conflict the collection reloads and fn runs again on fresh state.
func (c *collection[T]) mutate(ctx context.Context, op string, fn func(items []T) ([]T, bool, error)) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// A request that already timed out or was abandoned must not write.
		if err := ctx.Err(); err != nil {
			return false, err
		}
		next, changed, err := fn(slices.Clone(c.items))
		if err != nil {
			c.obs.Mutation(c.key, op, outcomeRejected)
			return false, err
		}
		if !changed {
			c.obs.Mutation(c.key, op, outcomeNoop)
			return false, nil
		}
		if next == nil {
			next = []T{}
		}
		slices.SortStableFunc(next, c.compare)

		data, err := json.Marshal(next)
		if err != nil {
			return false, fmt.Errorf("encode %s: %w", c.key, err)
		}
		rev, err := c.store.Put(ctx, c.key, data, c.rev)
		if errors.Is(err, kv.ErrConflict) {
			c.obs.ConflictRetry(c.key)
			if err := c.load(ctx); err != nil {
				return false, err
			}
			continue
		}
		if err != nil {
			c.obs.Mutation(c.key, op, outcomeError)
			return false, fmt.Errorf("persist %s: %w", c.key, err)
		}
		c.items, c.rev = next, rev
		c.obs.Mutation(c.key, op, outcomeWritten)
		return true, nil
	}
	c.obs.Mutation(c.key, op, outcomeConflict)
	return false, ErrConflict
}

func (c *collection[T]) insert(ctx context.Context, item T) error {
	_, err := c.mutate(ctx, "add", func(items []T) ([]T, bool, error) {
		return append(items, item), true, nil
	})
	return err
}

// update applies fn to the item with id. A missing id is a no-op.
func (c *collection[T]) update(ctx context.Context, id string, fn func(*T) error) (T, bool, error) {
	var updated T
	found, err := c.mutate(ctx, "update", func(items []T) ([]T, bool, error) {
		var zero T
		updated = zero
		i := slices.IndexFunc(items, func(it T) bool { return c.idOf(it) == id })
		if i < 0 {
			return items, false, nil
		}
		if err := fn(&items[i]); err != nil {
			return nil, false, err
		}
		updated = items[i]
		return items, true, nil
	})
	return updated, found, err
}

// remove deletes the item with id. A missing id is a no-op.
func (c *collection[T]) remove(ctx context.Context, id string) (bool, error) {
	return c.mutate(ctx, "delete", func(items []T) ([]T, bool, error) {
		i := slices.IndexFunc(items, func(it T) bool { return c.idOf(it) == id })
		if i < 0 {
			return items, false, nil
		}
		return slices.Delete(items, i, i+1), true, nil
	})
}

// replace overwrites the whole collection, used by import.
func (c *collection[T]) replace(ctx context.Context, items []T) error {
	_, err := c.mutate(ctx, "import", func([]T) ([]T, bool, error) {
		out := slices.Clone(items)
		if c.normalize != nil {
			for i := range out {
				c.normalize(&out[i])
			}
		}
		return out, true, nil
	})
	return err
}
