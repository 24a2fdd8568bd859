package config

// ProvidersConfig holds per-adapter settings (spec §4.2 Provider Adapters).
type ProvidersConfig struct {
	Claude   ClaudeConfig   `yaml:"claude"`
	Codex    CodexConfig    `yaml:"codex"`
	OpenCode OpenCodeConfig `yaml:"opencode"`
}

// ClaudeConfig configures the Claude adapter's launch transport.
type ClaudeConfig struct {
	// Transport is "direct" (Anthropic API) or "bedrock".
	Transport string `yaml:"transport"`
	// BedrockRegion is used when Transport is "bedrock"; empty uses the
	// AWS SDK's default region resolution.
	BedrockRegion string `yaml:"bedrock_region"`
}

// CodexConfig configures the Codex adapter.
type CodexConfig struct {
	// BinaryPath overrides the codex CLI binary looked up on PATH.
	BinaryPath string `yaml:"binary_path"`
}

// OpenCodeConfig configures the OpenCode adapter.
type OpenCodeConfig struct {
	// Backend is "default" (OpenCode's own backend) or "genai" (Gemini via
	// google.golang.org/genai for health/metadata probing).
	Backend string `yaml:"backend"`
	// BinaryPath overrides the opencode CLI binary looked up on PATH.
	BinaryPath string `yaml:"binary_path"`
}

func applyProvidersDefaults(cfg *ProvidersConfig) {
	if cfg.Claude.Transport == "" {
		cfg.Claude.Transport = "direct"
	}
	if cfg.OpenCode.Backend == "" {
		cfg.OpenCode.Backend = "default"
	}
}
