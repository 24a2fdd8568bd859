package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// ClaudeBedrockAdapter launches the same Claude Code CLI as ClaudeAdapter
// but in Bedrock transport mode: the CLI is told (via environment) to route
// model calls through Bedrock rather than the Anthropic API directly.
// cmd/paseod registers ClaudeAdapter only; neither PASEO_CLAUDE_TRANSPORT
// nor a persistence handle's region selects this adapter.
//
// NewClaudeBedrockAdapter builds a bedrockruntime client but neither keeps
// nor calls it; Start and Resume make no pre-flight check. The event
// stream comes from the CLI's stdout, identical to ClaudeAdapter.
type ClaudeBedrockAdapter struct {
	ClaudeAdapter
	Region string
}

// NewClaudeBedrockAdapter loads AWS config for region (or the default
// resolution chain if empty) and returns an adapter ready to launch the
// Claude Code CLI with Bedrock transport enabled.
func NewClaudeBedrockAdapter(ctx context.Context, region string) (*ClaudeBedrockAdapter, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("claude bedrock: load aws config: %w", err)
	}
	client := bedrockruntime.NewFromConfig(cfg)
	_ = client // not retained; no request is made with it

	return &ClaudeBedrockAdapter{
		ClaudeAdapter: ClaudeAdapter{Launcher: ExecLauncher{}, Binary: "claude"},
		Region:        region,
	}, nil
}

func (a *ClaudeBedrockAdapter) Name() paseo.Provider { return paseo.ProviderClaude }

func (a *ClaudeBedrockAdapter) Start(ctx context.Context, cfg paseo.CreateAgentConfig) (SessionHandle, EventStream, error) {
	return a.launchBedrock(ctx, cfg.Cwd, cfg.Model)
}

func (a *ClaudeBedrockAdapter) Resume(ctx context.Context, handle *paseo.PersistenceHandle, overrides paseo.ResumeOverrides) (SessionHandle, EventStream, error) {
	if handle == nil || handle.SessionID == "" {
		return nil, nil, fmt.Errorf("claude bedrock: resume requires a session id")
	}
	cwd := ""
	if handle.Metadata != nil {
		if v, ok := handle.Metadata["cwd"].(string); ok {
			cwd = v
		}
	}
	return a.launchBedrock(ctx, cwd, overrides.Model)
}

func (a *ClaudeBedrockAdapter) launchBedrock(ctx context.Context, cwd, model string) (SessionHandle, EventStream, error) {
	argv := []string{a.binary(), "--output-format", "stream-json", "--input-format", "stream-json"}
	if model != "" {
		argv = append(argv, "--model", model)
	}
	env := append(os.Environ(),
		"CLAUDE_CODE_USE_BEDROCK=1",
		"AWS_REGION="+a.Region,
	)
	proc, err := a.Launcher.Launch(ctx, argv, cwd, env)
	if err != nil {
		return nil, nil, &ProviderStartupError{Provider: string(paseo.ProviderClaude), Cause: err}
	}
	stream := newProcessEventStream(ctx, string(paseo.ProviderClaude), proc)
	return proc, stream, nil
}
