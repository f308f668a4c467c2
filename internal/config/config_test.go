package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Server.Port != 4064 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "remote" {
		t.Errorf("default backend = %q", cfg.Storage.Backend)
	}
	if cfg.Checks.SaturationThreshold != 1.0 {
		t.Errorf("default saturation threshold = %g", cfg.Checks.SaturationThreshold)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "littlestar.camm.usc.edu" {
		t.Errorf("host = %q", cfg.Server.Host)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qc.toml")
	data := `
[server]
host = "images.example.org"
port = 14064
username = "importer"
password = "secret"
request_timeout = "10s"

[checks]
continue_on_error = true
saturation_threshold = 0.9

[journal]
path = "runs.db"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "images.example.org" || cfg.Server.Port != 14064 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if !cfg.Checks.ContinueOnError || cfg.Checks.SaturationThreshold != 0.9 {
		t.Errorf("checks = %+v", cfg.Checks)
	}
	if cfg.Journal.Path != "runs.db" {
		t.Errorf("journal path = %q", cfg.Journal.Path)
	}
	// Fields the file omits keep their defaults.
	if cfg.API.Bind != "0.0.0.0:8080" {
		t.Errorf("api bind = %q", cfg.API.Bind)
	}

	d, err := cfg.ServerRequestTimeout()
	if err != nil || d != 10*time.Second {
		t.Errorf("request timeout = %v, %v", d, err)
	}
	if got := cfg.ServerAddress(); got != "images.example.org:14064" {
		t.Errorf("ServerAddress = %q", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QC_USERNAME", "env-user")
	t.Setenv("QC_PASSWORD", "env-pass")
	t.Setenv("QC_HOST", "env-host")
	t.Setenv("QC_PORT", "5000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Username != "env-user" || cfg.Server.Password != "env-pass" {
		t.Errorf("credentials = %q/%q", cfg.Server.Username, cfg.Server.Password)
	}
	if cfg.Server.Host != "env-host" || cfg.Server.Port != 5000 {
		t.Errorf("server = %+v", cfg.Server)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.Server.Host = " " }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"bad request timeout", func(c *Config) { c.Server.RequestTimeout = "soon" }},
		{"negative request timeout", func(c *Config) { c.Server.RequestTimeout = "-5s" }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }},
		{"azure without credentials", func(c *Config) { c.Storage.Backend = "azure" }},
		{"bad api bind", func(c *Config) { c.API.Bind = "no-port" }},
		{"bad shutdown timeout", func(c *Config) { c.API.ShutdownTimeout = "0s" }},
		{"saturation threshold zero", func(c *Config) { c.Checks.SaturationThreshold = 0 }},
		{"saturation threshold above one", func(c *Config) { c.Checks.SaturationThreshold = 1.5 }},
		{"empty journal path", func(c *Config) { c.Journal.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAzureBackendValidates(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "azure"
	cfg.Storage.AzureAccount = "acct"
	cfg.Storage.AzureKey = "a2V5"
	cfg.Storage.AzureContainer = "planes"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
