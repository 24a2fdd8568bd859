// Package provider defines the provider-neutral contract every
// coding-agent backend (Claude Code, Codex, OpenCode) implements, plus the
// registry the Agent Manager uses to look adapters up by name (spec §4.2).
package provider

import (
	"context"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// SessionHandle is the opaque, adapter-owned pointer returned by Start and
// Resume and passed back into Send/Cancel/Close.
type SessionHandle any

// StreamEvent is one record an adapter's event stream emits. Type is always
// "timeline" per spec §4.2; Item is one of the provider-native shapes the
// Tool-Call Mapper understands, carried as a raw map so the mapper (not the
// adapter) owns canonicalization.
type StreamEvent struct {
	Provider string
	Type     string
	Item     map[string]any
}

// EventStream is a finite-until-close, single-consumer sequence of stream
// events. Implementations close Events when the provider session ends;
// Err returns any terminal error observed on the stream (nil on a clean
// close).
type EventStream interface {
	Events() <-chan StreamEvent
	Err() error
	Close() error
}

// Adapter is the provider-neutral interface every coding-agent backend
// implements (spec §4.2 Contract).
type Adapter interface {
	Name() paseo.Provider

	Start(ctx context.Context, config paseo.CreateAgentConfig) (SessionHandle, EventStream, error)
	Resume(ctx context.Context, handle *paseo.PersistenceHandle, overrides paseo.ResumeOverrides) (SessionHandle, EventStream, error)
	Send(ctx context.Context, session SessionHandle, msg paseo.OutgoingMessage) error
	Cancel(ctx context.Context, session SessionHandle) error
	Close(ctx context.Context, session SessionHandle) error

	ListPersisted(ctx context.Context, limit int) ([]paseo.PersistedAgentSummary, error)
}
