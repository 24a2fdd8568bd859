package provider

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// CodexAdapter drives the Codex CLI's rollout JSON stream. Codex's tool
// call deltas (commandExecution/fileChange/mcpToolCall/webSearch) mirror
// go-openai's function-call wire shape closely enough that the SDK's
// request/response types document the fields this adapter forwards to the
// Tool-Call Mapper — the adapter itself never calls the OpenAI API.
type CodexAdapter struct {
	Launcher Launcher
	Binary   string
}

// NewCodexAdapter returns a CodexAdapter using the default os/exec
// launcher and the "codex" binary on PATH.
func NewCodexAdapter() *CodexAdapter {
	return &CodexAdapter{Launcher: ExecLauncher{}, Binary: "codex"}
}

func (a *CodexAdapter) Name() paseo.Provider { return paseo.ProviderCodex }

func (a *CodexAdapter) binary() string {
	if a.Binary != "" {
		return a.Binary
	}
	return "codex"
}

func (a *CodexAdapter) Start(ctx context.Context, config paseo.CreateAgentConfig) (SessionHandle, EventStream, error) {
	argv := []string{a.binary(), "exec", "--json"}
	if config.Model != "" {
		argv = append(argv, "--model", config.Model)
	}
	return a.launch(ctx, argv, config.Cwd)
}

func (a *CodexAdapter) Resume(ctx context.Context, handle *paseo.PersistenceHandle, overrides paseo.ResumeOverrides) (SessionHandle, EventStream, error) {
	if handle == nil || handle.SessionID == "" {
		return nil, nil, fmt.Errorf("codex: resume requires a session id")
	}
	argv := []string{a.binary(), "exec", "--json", "resume", handle.SessionID}
	cwd := ""
	if handle.Metadata != nil {
		if v, ok := handle.Metadata["cwd"].(string); ok {
			cwd = v
		}
	}
	return a.launch(ctx, argv, cwd)
}

func (a *CodexAdapter) launch(ctx context.Context, argv []string, cwd string) (SessionHandle, EventStream, error) {
	proc, err := a.Launcher.Launch(ctx, argv, cwd, os.Environ())
	if err != nil {
		return nil, nil, &ProviderStartupError{Provider: string(paseo.ProviderCodex), Cause: err}
	}
	stream := newProcessEventStream(ctx, string(paseo.ProviderCodex), proc)
	return proc, stream, nil
}

func (a *CodexAdapter) Send(ctx context.Context, session SessionHandle, msg paseo.OutgoingMessage) error {
	proc, ok := session.(Process)
	if !ok {
		return fmt.Errorf("codex: invalid session handle")
	}
	turn := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: msg.Text,
	}
	return writeJSONLine(proc.Stdin(), turn)
}

func (a *CodexAdapter) Cancel(ctx context.Context, session SessionHandle) error {
	proc, ok := session.(Process)
	if !ok {
		return fmt.Errorf("codex: invalid session handle")
	}
	return proc.Signal(false)
}

func (a *CodexAdapter) Close(ctx context.Context, session SessionHandle) error {
	proc, ok := session.(Process)
	if !ok {
		return nil
	}
	return proc.Signal(true)
}

func (a *CodexAdapter) ListPersisted(ctx context.Context, limit int) ([]paseo.PersistedAgentSummary, error) {
	_ = limit
	return nil, nil
}
