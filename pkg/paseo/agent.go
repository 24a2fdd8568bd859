// Package paseo provides the domain types shared by the daemon's
// orchestration packages: agents, canonical timeline items, and the wire
// shapes clients and providers exchange with the Session Hub.
package paseo

import "time"

// Provider identifies a coding-agent backend the daemon can spawn or attach to.
type Provider string

const (
	ProviderClaude   Provider = "claude"
	ProviderCodex    Provider = "codex"
	ProviderOpenCode Provider = "opencode"
)

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderClaude, ProviderCodex, ProviderOpenCode:
		return true
	default:
		return false
	}
}

// AgentStatus is the agent lifecycle state (spec §3 Lifecycles).
type AgentStatus string

const (
	StatusInitializing AgentStatus = "initializing"
	StatusIdle         AgentStatus = "idle"
	StatusRunning      AgentStatus = "running"
	StatusInterrupting AgentStatus = "interrupting"
	StatusEnded        AgentStatus = "ended"
	StatusError        AgentStatus = "error"
)

// Terminal reports whether the status has no further transitions (barring resume).
func (s AgentStatus) Terminal() bool {
	return s == StatusEnded || s == StatusError
}

// PersistenceHandle is the opaque, provider-specific pointer that lets an
// adapter reattach to an existing session. Once SessionID is observed
// non-empty for an agent, it never changes (spec invariant I5).
type PersistenceHandle struct {
	Provider     Provider       `json:"provider"`
	SessionID    string         `json:"sessionId"`
	NativeHandle string         `json:"nativeHandle,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// WorktreeDescriptor records the optional git worktree an agent was created in.
type WorktreeDescriptor struct {
	Name   string `json:"name"`
	Path   string `json:"path,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// Agent is the daemon's record of a single coding-agent session.
type Agent struct {
	ID                string              `json:"id"`
	Provider          Provider            `json:"provider"`
	Cwd               string              `json:"cwd"`
	Title             string              `json:"title,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
	LastActivityAt    time.Time           `json:"lastActivityAt"`
	Status            AgentStatus         `json:"status"`
	ModeID            string              `json:"modeId,omitempty"`
	Model             string              `json:"model,omitempty"`
	Worktree          *WorktreeDescriptor `json:"worktree,omitempty"`
	PersistenceHandle *PersistenceHandle  `json:"persistenceHandle,omitempty"`
	ErrorMessage      string              `json:"errorMessage,omitempty"`
}

// Clone returns a deep-enough copy safe to hand to callers outside the
// owning mailbox goroutine (pointers to Worktree/PersistenceHandle are
// copied, not shared).
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Worktree != nil {
		wt := *a.Worktree
		clone.Worktree = &wt
	}
	if a.PersistenceHandle != nil {
		ph := *a.PersistenceHandle
		if a.PersistenceHandle.Metadata != nil {
			ph.Metadata = make(map[string]any, len(a.PersistenceHandle.Metadata))
			for k, v := range a.PersistenceHandle.Metadata {
				ph.Metadata[k] = v
			}
		}
		clone.PersistenceHandle = &ph
	}
	return &clone
}

// CreateAgentConfig parametrizes Agent Manager's createAgent operation.
type CreateAgentConfig struct {
	Provider     Provider
	Cwd          string
	ModeID       string
	Model        string
	Extra        map[string]any
	Title        string
	WorktreeName string
}

// ResumeOverrides parametrizes resumeAgent; zero values mean "keep what the
// persistence handle implies".
type ResumeOverrides struct {
	ModeID string
	Model  string
	Title  string
}

// OutgoingMessage is a client-authored message enqueued via sendMessage.
type OutgoingMessage struct {
	Text            string
	Images          []string
	ClientMessageID string
}

// PersistedAgentSummary describes a resumable-but-not-live session returned
// by listPersistedAgents and by a provider's listPersisted call.
type PersistedAgentSummary struct {
	SessionID      string             `json:"sessionId"`
	Provider       Provider           `json:"provider"`
	Cwd            string             `json:"cwd"`
	Title          string             `json:"title,omitempty"`
	LastActivityAt time.Time          `json:"lastActivityAt"`
	Handle         *PersistenceHandle `json:"handle"`
}
