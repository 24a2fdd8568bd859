package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// ClaudeAdapter drives the Claude Code CLI in `--output-format stream-json`
// mode. The CLI's stdout lines are decoded as generic JSON objects by the
// shared decodeLines loop; anthropic-sdk-go is used only to build the user
// turn Send writes to stdin. This adapter never calls the Anthropic API
// directly — the subprocess is the client.
type ClaudeAdapter struct {
	Launcher Launcher
	Binary   string // defaults to "claude"
}

// NewClaudeAdapter returns a ClaudeAdapter using the default os/exec
// launcher and the "claude" binary on PATH.
func NewClaudeAdapter() *ClaudeAdapter {
	return &ClaudeAdapter{Launcher: ExecLauncher{}, Binary: "claude"}
}

func (a *ClaudeAdapter) Name() paseo.Provider { return paseo.ProviderClaude }

func (a *ClaudeAdapter) binary() string {
	if a.Binary != "" {
		return a.Binary
	}
	return "claude"
}

func (a *ClaudeAdapter) Start(ctx context.Context, config paseo.CreateAgentConfig) (SessionHandle, EventStream, error) {
	argv := []string{a.binary(), "--output-format", "stream-json", "--input-format", "stream-json"}
	if config.Model != "" {
		argv = append(argv, "--model", config.Model)
	}
	return a.launch(ctx, argv, config.Cwd)
}

func (a *ClaudeAdapter) Resume(ctx context.Context, handle *paseo.PersistenceHandle, overrides paseo.ResumeOverrides) (SessionHandle, EventStream, error) {
	if handle == nil || handle.SessionID == "" {
		return nil, nil, fmt.Errorf("claude: resume requires a session id")
	}
	argv := []string{a.binary(), "--output-format", "stream-json", "--input-format", "stream-json", "--resume", handle.SessionID}
	if overrides.Model != "" {
		argv = append(argv, "--model", overrides.Model)
	}
	cwd := ""
	if handle.Metadata != nil {
		if v, ok := handle.Metadata["cwd"].(string); ok {
			cwd = v
		}
	}
	return a.launch(ctx, argv, cwd)
}

func (a *ClaudeAdapter) launch(ctx context.Context, argv []string, cwd string) (SessionHandle, EventStream, error) {
	proc, err := a.Launcher.Launch(ctx, argv, cwd, os.Environ())
	if err != nil {
		return nil, nil, &ProviderStartupError{Provider: string(paseo.ProviderClaude), Cause: err}
	}
	stream := newProcessEventStream(ctx, string(paseo.ProviderClaude), proc)
	return proc, stream, nil
}

func (a *ClaudeAdapter) Send(ctx context.Context, session SessionHandle, msg paseo.OutgoingMessage) error {
	proc, ok := session.(Process)
	if !ok {
		return fmt.Errorf("claude: invalid session handle")
	}
	frame := anthropic.MessageParam{
		Role: anthropic.MessageParamRoleUser,
		Content: []anthropic.ContentBlockParamUnion{
			{OfText: &anthropic.TextBlockParam{Text: msg.Text}},
		},
	}
	return writeJSONLine(proc.Stdin(), frame)
}

func (a *ClaudeAdapter) Cancel(ctx context.Context, session SessionHandle) error {
	proc, ok := session.(Process)
	if !ok {
		return fmt.Errorf("claude: invalid session handle")
	}
	return proc.Signal(false)
}

func (a *ClaudeAdapter) Close(ctx context.Context, session SessionHandle) error {
	proc, ok := session.(Process)
	if !ok {
		return nil
	}
	return proc.Signal(true)
}

func (a *ClaudeAdapter) ListPersisted(ctx context.Context, limit int) ([]paseo.PersistedAgentSummary, error) {
	// Claude Code persists sessions under its own state directory; the
	// daemon's own registry (internal/registry) is the source of truth for
	// listPersistedAgents, so this returns empty rather than re-deriving
	// from the CLI's session files.
	_ = limit
	return nil, nil
}

// writeJSONLine marshals v and writes it to w followed by a newline,
// matching the newline-delimited JSON protocol every subprocess adapter
// speaks on stdin.
func writeJSONLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// newDeterministicID is used where a stable id is needed for a one-off
// turn and no client-supplied id was given.
func newDeterministicID() string {
	return uuid.NewString()
}
