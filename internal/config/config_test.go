package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTHENTICATION_KEY", "secret")
	t.Setenv("CLOUDFLARE_KEY", "cf-token")
	t.Setenv("CLOUDFLARE_ZONE_ID", "zone-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tests := []struct {
		name  string
		check func(*Config) bool
	}{
		{"default host is 0.0.0.0", func(c *Config) bool { return c.Host == "0.0.0.0" }},
		{"default port is 8080", func(c *Config) bool { return c.Port == 8080 }},
		{"default log level is info", func(c *Config) bool { return c.LogLevel == "info" }},
		{"default log format is json", func(c *Config) bool { return c.LogFormat == "json" }},
		{"default metrics path", func(c *Config) bool { return c.MetricsPath == "/metrics" }},
		{"default tls cert path", func(c *Config) bool { return c.TLSCertPath == "cert.pem" }},
		{"listen addr format", func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" }},
		{"authentication key loaded", func(c *Config) bool { return c.AuthenticationKey == "secret" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("check failed for %s", tt.name)
			}
		})
	}
}

func TestLoadMissingRequiredFails(t *testing.T) {
	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to fail without AUTHENTICATION_KEY/CLOUDFLARE_KEY set")
	}
}
