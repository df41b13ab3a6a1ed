package telemetry

import (
	"fmt"
	"time"
)

// Config is the process-wide telemetry configuration, read once at
// startup alongside daqconfig.DaemonConfig.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
}

// LoggingConfig configures the process-wide zerolog logger.
type LoggingConfig struct {
	Level        string // trace, debug, info, warn, error, fatal
	Format       string // console, json
	EnableCaller bool
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled      bool
	Exporter     string // otlp, stdout, none
	Endpoint     string
	SamplingRate float64
	Insecure     bool
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
	Path          string
	Namespace     string
}

// DefaultConfig returns sane development defaults: console logging,
// stdout tracing, metrics exposed on :9090.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "daqd",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		Tracing: TracingConfig{
			Enabled:      true,
			Exporter:     "stdout",
			SamplingRate: 1.0,
			Insecure:     true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "daqd",
		},
	}
}

// ProductionConfig returns a production-leaning configuration: JSON logs,
// OTLP export at reduced sampling.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	return cfg
}

// Validate checks the configuration for internally-inconsistent values.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("telemetry: service name is required")
	}
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("telemetry: invalid log level %q", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("telemetry: invalid log format %q", c.Logging.Format)
	}
	validExporters := map[string]bool{"otlp": true, "stdout": true, "none": true}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("telemetry: invalid trace exporter %q", c.Tracing.Exporter)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("telemetry: sampling rate must be in [0,1], got %f", c.Tracing.SamplingRate)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return fmt.Errorf("telemetry: metrics listen address required when metrics enabled")
	}
	return nil
}

// exportTimeout bounds how long trace export is allowed to block during
// shutdown.
const exportTimeout = 10 * time.Second
