package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Server contains connection settings for the remote image server.
type Server struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	RequestTimeout string `toml:"request_timeout"`
}

// Storage selects where pixel planes are read from.
type Storage struct {
	Backend        string `toml:"backend"`
	AzureAccount   string `toml:"azure_account"`
	AzureKey       string `toml:"azure_key"`
	AzureContainer string `toml:"azure_container"`
}

// API contains bind address and timeouts for the HTTP surface.
type API struct {
	Bind            string `toml:"bind"`
	RequestTimeout  string `toml:"request_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// Checks contains engine-level behavior toggles.
type Checks struct {
	ContinueOnError     bool    `toml:"continue_on_error"`
	SaturationThreshold float64 `toml:"saturation_threshold"`
}

// Journal contains the local run-journal settings.
type Journal struct {
	Path string `toml:"path"`
}

type Config struct {
	Server  Server  `toml:"server"`
	Storage Storage `toml:"storage"`
	API     API     `toml:"api"`
	Checks  Checks  `toml:"checks"`
	Journal Journal `toml:"journal"`
}

// Default returns a configuration with every optional field filled in.
// Credentials have no default; they come from the file or environment.
func Default() *Config {
	return &Config{
		Server: Server{
			Host:           "littlestar.camm.usc.edu",
			Port:           4064,
			RequestTimeout: "30s",
		},
		Storage: Storage{
			Backend: "remote",
		},
		API: API{
			Bind:            "0.0.0.0:8080",
			RequestTimeout:  "30s",
			ShutdownTimeout: "30s",
		},
		Checks: Checks{
			ContinueOnError:     false,
			SaturationThreshold: 1.0,
		},
		Journal: Journal{
			Path: "qc.db",
		},
	}
}

// Load reads the TOML file at path, applies environment overrides, and
// validates the result. A missing file is not an error; defaults plus
// environment are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets credentials and addresses come from the
// environment so they stay out of config files.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QC_USERNAME"); v != "" {
		cfg.Server.Username = v
	}
	if v := os.Getenv("QC_PASSWORD"); v != "" {
		cfg.Server.Password = v
	}
	if v := os.Getenv("QC_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("QC_PORT"); v != "" {
		if p, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("QC_API_BIND"); v != "" {
		cfg.API.Bind = v
	}
	if v := os.Getenv("QC_AZURE_ACCOUNT"); v != "" {
		cfg.Storage.AzureAccount = v
	}
	if v := os.Getenv("QC_AZURE_KEY"); v != "" {
		cfg.Storage.AzureKey = v
	}
}

// Validate checks field shapes that would otherwise surface as opaque
// runtime failures.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if _, err := c.ServerRequestTimeout(); err != nil {
		return fmt.Errorf("server.request_timeout: %w", err)
	}
	switch c.Storage.Backend {
	case "remote":
	case "azure":
		if c.Storage.AzureAccount == "" || c.Storage.AzureKey == "" || c.Storage.AzureContainer == "" {
			return fmt.Errorf("storage.backend azure requires azure_account, azure_key and azure_container")
		}
	default:
		return fmt.Errorf("unknown storage.backend: %q", c.Storage.Backend)
	}
	if _, _, err := net.SplitHostPort(strings.TrimSpace(c.API.Bind)); err != nil {
		return fmt.Errorf("invalid api.bind %q: %w", c.API.Bind, err)
	}
	if d, err := time.ParseDuration(c.API.RequestTimeout); err != nil || d <= 0 {
		return fmt.Errorf("api.request_timeout must be a positive duration (got %q)", c.API.RequestTimeout)
	}
	if d, err := time.ParseDuration(c.API.ShutdownTimeout); err != nil || d <= 0 {
		return fmt.Errorf("api.shutdown_timeout must be a positive duration (got %q)", c.API.ShutdownTimeout)
	}
	if c.Checks.SaturationThreshold <= 0 || c.Checks.SaturationThreshold > 1 {
		return fmt.Errorf("checks.saturation_threshold must be in (0, 1] (got %g)", c.Checks.SaturationThreshold)
	}
	if strings.TrimSpace(c.Journal.Path) == "" {
		return fmt.Errorf("journal.path must not be empty")
	}
	return nil
}

// ServerRequestTimeout parses the remote-call timeout.
func (c *Config) ServerRequestTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Server.RequestTimeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be > 0 (got %s)", d)
	}
	return d, nil
}

// APIRequestTimeout parses the HTTP handler timeout. Validate has
// already checked the shape, so parse errors fall back to the default.
func (c *Config) APIRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.RequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// APIShutdownTimeout parses the graceful-shutdown deadline.
func (c *Config) APIShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.ShutdownTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ServerAddress joins host and port for the remote image server.
func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Server.Host)
	return net.JoinHostPort(host, strconv.Itoa(c.Server.Port))
}
