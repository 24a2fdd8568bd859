// Package registry implements the Agent Registry: a durable key-value store
// of agent records, one per agent id, written through on every lifecycle
// change and replayed at daemon startup to repopulate the Agent Manager.
package registry

import (
	"context"
	"time"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// Store is the durable snapshot store backing the Agent Registry.
// applySnapshot is write-through and the store is strictly monotonic in
// updatedAt: a snapshot older than the stored record is rejected rather
// than silently overwriting newer data.
type Store interface {
	// ApplySnapshot writes agent through, creating or replacing its record.
	// Implementations reject the write (ErrStale) when a record already
	// exists with a newer or equal updatedAt.
	ApplySnapshot(ctx context.Context, agent *paseo.Agent, updatedAt time.Time) error

	// Get returns a single agent record, or ErrNotFound.
	Get(ctx context.Context, id string) (*paseo.Agent, error)

	// List returns every record the store holds. Corrupted records are
	// skipped, without logging, rather than failing the whole call.
	List(ctx context.Context) ([]*paseo.Agent, error)

	// Delete removes an agent's record.
	Delete(ctx context.Context, id string) error

	// Close releases any underlying resources (connections, file handles).
	Close() error
}

// ErrNotFound is returned by Get when no record exists for the given id.
var ErrNotFound = storeError("registry: agent not found")

// ErrStale is returned by ApplySnapshot when a newer record is already
// stored, preserving the strictly-monotonic updatedAt invariant.
var ErrStale = storeError("registry: snapshot older than stored record")

type storeError string

func (e storeError) Error() string { return string(e) }
