package telemetry

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/tutorrag/internal/config"
)

// Config configures OTLP export.
type Config struct {
	Enabled        bool
	Endpoint       string
	// Protocol is "grpc" (default) or "http/protobuf".
	Protocol       string
	ServiceName    string
	ServiceVersion string
	// Insecure disables TLS. Only local endpoints may be insecure.
	Insecure        bool
	SampleRate      float64
	MetricInterval  time.Duration
	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns a disabled configuration with local defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:        "localhost:4317",
		Protocol:        "grpc",
		ServiceName:     "tutorrag",
		ServiceVersion:  "0.1.0",
		Insecure:        true,
		SampleRate:      1.0,
		MetricInterval:  15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// FromConfig maps the observability section of the service config.
func FromConfig(obs config.ObservabilityConfig, version string) *Config {
	c := NewDefaultConfig()
	c.Enabled = obs.EnableTelemetry
	if obs.Endpoint != "" {
		c.Endpoint = obs.Endpoint
	}
	if obs.Protocol != "" {
		c.Protocol = obs.Protocol
	}
	if obs.ServiceName != "" {
		c.ServiceName = obs.ServiceName
	}
	if version != "" {
		c.ServiceVersion = version
	}
	c.Insecure = obs.Insecure
	c.SampleRate = obs.SampleRate
	return c
}

// Validate checks the configuration. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required when telemetry is enabled")
	}
	if c.Protocol != "grpc" && c.Protocol != "http/protobuf" {
		return fmt.Errorf("protocol must be grpc or http/protobuf, got %q", c.Protocol)
	}
	if c.Insecure && !isLocalEndpoint(c.Endpoint) {
		return fmt.Errorf("insecure export to remote endpoint %q is not allowed", c.Endpoint)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1, got %g", c.SampleRate)
	}
	if c.MetricInterval <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("metric interval and shutdown timeout must be positive")
	}
	return nil
}

// isLocalEndpoint reports whether endpoint (host, host:port, an optional
// http scheme) is a loopback address or localhost.
func isLocalEndpoint(endpoint string) bool {
	host := stripScheme(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
