// Package kv defines the durable key-value contract used to persist record
// collections. Each key holds one opaque document (a JSON array in practice)
// and an opaque revision string that changes on every successful write.
//
// Writers pass the revision they last observed to Put. A driver rejects the
// write with ErrConflict when the stored revision differs, which lets several
// processes share one backend without silently losing each other's changes.
package kv

import (
	"context"
	"errors"
)

// NoRevision is the expected revision for a key that must not exist yet.
const NoRevision = ""

// AnyRevision disables the revision check and overwrites unconditionally.
const AnyRevision = "*"

var (
	ErrNotFound = errors.New("kv: key not found")
	ErrConflict = errors.New("kv: revision conflict")
)

// Document is a stored value together with its current revision.
type Document struct {
	Key      string
	Value    []byte
	Revision string
}

// Store is implemented by every storage driver.
type Store interface {
	// Get returns ErrNotFound when the key has never been written.
	Get(ctx context.Context, key string) (Document, error)
	// Put writes value if the stored revision equals expected and returns
	// the new revision.
	Put(ctx context.Context, key string, value []byte, expected string) (string, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
	// Driver names the backend ("memory", "file", "sqlite", "postgres", "s3").
	Driver() string
}

// Matches reports whether a stored revision satisfies an expected one.
// current is NoRevision when the key is absent.
func Matches(current, expected string) bool {
	if expected == AnyRevision {
		return true
	}
	return current == expected
}
