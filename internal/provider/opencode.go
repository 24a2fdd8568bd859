package provider

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// OpenCodeAdapter drives the OpenCode CLI's JSON event stream. OpenCode can
// be configured against a Gemini backend; when the requested model (the
// create config's Model or the resume override's Model) starts with
// "gemini", this adapter uses google.golang.org/genai for a reachability
// pre-flight only — the event stream itself remains OpenCode's own
// subprocess JSON, never a direct genai call.
type OpenCodeAdapter struct {
	Launcher   Launcher
	Binary     string
	genaiCheck func(ctx context.Context, model string) error
}

// NewOpenCodeAdapter returns an OpenCodeAdapter using the default os/exec
// launcher and the "opencode" binary on PATH.
func NewOpenCodeAdapter() *OpenCodeAdapter {
	return &OpenCodeAdapter{Launcher: ExecLauncher{}, Binary: "opencode"}
}

func (a *OpenCodeAdapter) Name() paseo.Provider { return paseo.ProviderOpenCode }

func (a *OpenCodeAdapter) binary() string {
	if a.Binary != "" {
		return a.Binary
	}
	return "opencode"
}

func (a *OpenCodeAdapter) Start(ctx context.Context, config paseo.CreateAgentConfig) (SessionHandle, EventStream, error) {
	if isGeminiModel(config.Model) {
		if err := a.checkGemini(ctx, config.Model); err != nil {
			return nil, nil, &ProviderStartupError{Provider: string(paseo.ProviderOpenCode), Cause: err}
		}
	}
	argv := []string{a.binary(), "run", "--format", "json"}
	if config.Model != "" {
		argv = append(argv, "--model", config.Model)
	}
	return a.launch(ctx, argv, config.Cwd)
}

func (a *OpenCodeAdapter) Resume(ctx context.Context, handle *paseo.PersistenceHandle, overrides paseo.ResumeOverrides) (SessionHandle, EventStream, error) {
	if handle == nil || handle.SessionID == "" {
		return nil, nil, fmt.Errorf("opencode: resume requires a session id")
	}
	if isGeminiModel(overrides.Model) {
		if err := a.checkGemini(ctx, overrides.Model); err != nil {
			return nil, nil, &ProviderStartupError{Provider: string(paseo.ProviderOpenCode), Cause: err}
		}
	}
	argv := []string{a.binary(), "run", "--format", "json", "--session", handle.SessionID}
	cwd := ""
	if handle.Metadata != nil {
		if v, ok := handle.Metadata["cwd"].(string); ok {
			cwd = v
		}
	}
	return a.launch(ctx, argv, cwd)
}

func (a *OpenCodeAdapter) launch(ctx context.Context, argv []string, cwd string) (SessionHandle, EventStream, error) {
	proc, err := a.Launcher.Launch(ctx, argv, cwd, os.Environ())
	if err != nil {
		return nil, nil, &ProviderStartupError{Provider: string(paseo.ProviderOpenCode), Cause: err}
	}
	stream := newProcessEventStream(ctx, string(paseo.ProviderOpenCode), proc)
	return proc, stream, nil
}

func (a *OpenCodeAdapter) Send(ctx context.Context, session SessionHandle, msg paseo.OutgoingMessage) error {
	proc, ok := session.(Process)
	if !ok {
		return fmt.Errorf("opencode: invalid session handle")
	}
	return writeJSONLine(proc.Stdin(), map[string]string{"text": msg.Text})
}

func (a *OpenCodeAdapter) Cancel(ctx context.Context, session SessionHandle) error {
	proc, ok := session.(Process)
	if !ok {
		return fmt.Errorf("opencode: invalid session handle")
	}
	return proc.Signal(false)
}

func (a *OpenCodeAdapter) Close(ctx context.Context, session SessionHandle) error {
	proc, ok := session.(Process)
	if !ok {
		return nil
	}
	return proc.Signal(true)
}

func (a *OpenCodeAdapter) ListPersisted(ctx context.Context, limit int) ([]paseo.PersistedAgentSummary, error) {
	_ = limit
	return nil, nil
}

func isGeminiModel(model string) bool {
	return len(model) >= 6 && model[:6] == "gemini"
}

// checkGemini confirms the configured Gemini model is reachable before
// spawning the OpenCode subprocess against it. Overridable in tests via
// genaiCheck.
func (a *OpenCodeAdapter) checkGemini(ctx context.Context, model string) error {
	if a.genaiCheck != nil {
		return a.genaiCheck(ctx, model)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{})
	if err != nil {
		return fmt.Errorf("opencode: gemini health check: %w", err)
	}
	ping := []*genai.Content{{Parts: []*genai.Part{{Text: "ping"}}}}
	_, err = client.Models.GenerateContent(ctx, model, ping, &genai.GenerateContentConfig{})
	if err != nil {
		return fmt.Errorf("opencode: gemini model %q unreachable: %w", model, err)
	}
	return nil
}
