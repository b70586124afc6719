// Package config loads process configuration from defaults, an optional TOML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"edgar-mcp/internal/identity"
)

// Transport modes for the protocol endpoint.
const (
	TransportSSE  = "sse"
	TransportJSON = "json"
)

// Config contains server configuration values.
type Config struct {
	Host            string        `toml:"host"`
	Port            int           `toml:"port"`
	Identity        string        `toml:"identity"`
	Transport       string        `toml:"transport"`
	LogLevel        string        `toml:"logLevel"`
	LogFormat       string        `toml:"logFormat"`
	RequestTimeout  time.Duration `toml:"requestTimeout"`
	ShutdownTimeout time.Duration `toml:"shutdownTimeout"`
	TLSCertFile     string        `toml:"tlsCertFile"`
	TLSKeyFile      string        `toml:"tlsKeyFile"`
	Edgar           EdgarConfig   `toml:"edgar"`
	Otel            OtelConfig    `toml:"otel"`
}

// OtelConfig configures trace export. An empty Endpoint disables it.
type OtelConfig struct {
	Endpoint    string `toml:"endpoint"`
	ServiceName string `toml:"serviceName"`
}

// EdgarConfig configures the outbound EDGAR client.
type EdgarConfig struct {
	BaseURL  string        `toml:"baseURL"`
	DataURL  string        `toml:"dataURL"`
	Timeout  time.Duration `toml:"timeout"`
	CacheTTL time.Duration `toml:"cacheTTL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8000,
		Transport:       TransportSSE,
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 10 * time.Second,
		Edgar: EdgarConfig{
			BaseURL:  "https://www.sec.gov",
			DataURL:  "https://data.sec.gov",
			Timeout:  15 * time.Second,
			CacheTTL: 12 * time.Hour,
		},
		Otel: OtelConfig{ServiceName: "edgar-mcp"},
	}
}

// Load builds a Config. path may be empty, in which case only defaults and
// the environment are consulted.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Identity = getEnv("EDGAR_IDENTITY", c.Identity)
	c.Host = getEnv("HOST", c.Host)
	c.Transport = getEnv("MCP_TRANSPORT", c.Transport)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.TLSCertFile = getEnv("TLS_CERT_FILE", c.TLSCertFile)
	c.TLSKeyFile = getEnv("TLS_KEY_FILE", c.TLSKeyFile)
	c.Otel.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Otel.Endpoint)
	c.Otel.ServiceName = getEnv("OTEL_SERVICE_NAME", c.Otel.ServiceName)
	port, err := getEnvInt("PORT", c.Port)
	if err != nil {
		return err
	}
	c.Port = port
	return nil
}

// Validate rejects configurations the server cannot run with. A missing
// identity is not an error.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.Transport {
	case TransportSSE, TransportJSON:
	default:
		return fmt.Errorf("unknown transport %q (want %q or %q)", c.Transport, TransportSSE, TransportJSON)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("tls requires both certificate and key files")
	}
	if c.RequestTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// TLS reports whether TLS is configured.
func (c Config) TLS() bool { return c.TLSCertFile != "" && c.TLSKeyFile != "" }

// ExternalIdentity returns the configured identity.
func (c Config) ExternalIdentity() identity.Identity {
	return identity.Identity(strings.TrimSpace(c.Identity))
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}
