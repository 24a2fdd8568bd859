package config

// LoggingConfig controls the daemon's slog handler.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`
	// Format is "json" or "text".
	Format string `yaml:"format"`
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

// ObservabilityConfig toggles the metrics and tracing ambient stack.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// TracingConfig controls the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

func applyObservabilityDefaults(cfg *ObservabilityConfig) {
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = "127.0.0.1:9090"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "paseod"
	}
}
