package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.ProxyData.RemoteHost = "play.example.com"
	return cfg
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ProxyData.ListenPort != DefaultListenPort {
		t.Errorf("ListenPort = %d, want %d", cfg.ProxyData.ListenPort, DefaultListenPort)
	}
	if cfg.ProxyData.GameVersion != "auto" {
		t.Errorf("GameVersion = %q, want auto", cfg.ProxyData.GameVersion)
	}
	if !cfg.IsFirstRun() {
		t.Error("IsFirstRun = false for a fresh default config")
	}

	if _, err := os.Stat(filepath.Join(dir, DefaultConfigFile)); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	partial := `{"proxy_data": {"remote_host": "mc.example.com", "listen_port": 12345}}`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(partial), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ProxyData.RemoteHost != "mc.example.com" {
		t.Errorf("RemoteHost = %q, want mc.example.com", cfg.ProxyData.RemoteHost)
	}
	if cfg.ProxyData.ListenPort != 12345 {
		t.Errorf("ListenPort = %d, want 12345", cfg.ProxyData.ListenPort)
	}
	// Fields the file omits keep their defaults.
	if cfg.ProxyData.RemotePort != DefaultRemotePort {
		t.Errorf("RemotePort = %d, want default %d", cfg.ProxyData.RemotePort, DefaultRemotePort)
	}
	if cfg.ApplicationData.API.Port != DefaultAPIPort {
		t.Errorf("API port = %d, want default %d", cfg.ApplicationData.API.Port, DefaultAPIPort)
	}
	if cfg.IsFirstRun() {
		t.Error("IsFirstRun = true with a configured remote host")
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Error("Load accepted a malformed config file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	data := cfg.GetProxyData()
	data.RemoteHost = "survival.example.com"
	data.GameVersion = "1.18.2"
	cfg.SetProxyData(data)
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.GetProxyData(); got.RemoteHost != "survival.example.com" || got.GameVersion != "1.18.2" {
		t.Errorf("reloaded = %+v, want saved values", got)
	}
}

func TestUpdateProxyField(t *testing.T) {
	cfg := validConfig()

	if err := cfg.UpdateProxyField("listen_port", 7777); err != nil {
		t.Fatalf("UpdateProxyField: %v", err)
	}
	if cfg.GetProxyData().ListenPort != 7777 {
		t.Errorf("ListenPort = %d, want 7777", cfg.GetProxyData().ListenPort)
	}

	if err := cfg.UpdateProxyField("game_version", "1.16.2"); err != nil {
		t.Fatalf("UpdateProxyField: %v", err)
	}
	if cfg.GetProxyData().GameVersion != "1.16.2" {
		t.Errorf("GameVersion = %q, want 1.16.2", cfg.GetProxyData().GameVersion)
	}

	// A value of the wrong shape must not corrupt the struct.
	if err := cfg.UpdateProxyField("listen_port", "not a number"); err == nil {
		t.Error("mistyped update accepted")
	}
}

func TestWorldDBPath(t *testing.T) {
	cfg := validConfig()
	data := cfg.GetProxyData()
	data.WorldDirectory = filepath.Join("data", "world")
	cfg.SetProxyData(data)

	want := filepath.Join("data", "world", DefaultWorldDBFile)
	if got := cfg.WorldDBPath(); got != want {
		t.Errorf("WorldDBPath = %q, want %q", got, want)
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	result := Validate(validConfig())
	if !result.IsValid() {
		t.Errorf("default config invalid: %+v", result.Errors)
	}
}

func TestValidateProxyData(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			"missing remote host",
			func(c *Config) { c.ProxyData.RemoteHost = " " },
			"proxy_data.remote_host",
		},
		{
			"bad listen port",
			func(c *Config) { c.ProxyData.ListenPort = 0 },
			"proxy_data.listen_port",
		},
		{
			"bad remote port",
			func(c *Config) { c.ProxyData.RemotePort = 70000 },
			"proxy_data.remote_port",
		},
		{
			"self connect",
			func(c *Config) {
				c.ProxyData.RemoteHost = "localhost"
				c.ProxyData.RemotePort = c.ProxyData.ListenPort
			},
			"proxy_data.listen_port",
		},
		{
			"unknown game version",
			func(c *Config) { c.ProxyData.GameVersion = "1.7.10" },
			"proxy_data.game_version",
		},
		{
			"zero sessions",
			func(c *Config) { c.ProxyData.MaxSessions = 0 },
			"proxy_data.max_sessions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			result := Validate(cfg)
			if result.IsValid() {
				t.Fatal("invalid config passed validation")
			}
			found := false
			for _, e := range result.Errors {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %s: %+v", tt.field, result.Errors)
			}
		})
	}
}

func TestValidateApplicationData(t *testing.T) {
	cfg := validConfig()
	cfg.ApplicationData.MQTT.Enabled = true
	cfg.ApplicationData.MQTT.BrokerURL = ""
	cfg.ApplicationData.Security.TLSEnabled = true
	cfg.ApplicationData.Security.TLSCertFile = ""
	cfg.ApplicationData.Security.TLSKeyFile = "key.pem"

	result := Validate(cfg)
	if result.IsValid() {
		t.Fatal("invalid config passed validation")
	}

	wantFields := map[string]bool{
		"application_data.mqtt.broker_url":        false,
		"application_data.security.tls_cert_file": false,
	}
	for _, e := range result.Errors {
		if _, ok := wantFields[e.Field]; ok {
			wantFields[e.Field] = true
		}
	}
	for field, seen := range wantFields {
		if !seen {
			t.Errorf("no error for field %s", field)
		}
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := validConfig()
	cfg.ProxyData.SessionTimeout = 10
	cfg.ApplicationData.Security.RateLimitRPS = 0

	result := Validate(cfg)
	if !result.IsValid() {
		t.Fatalf("warnings should not invalidate: %+v", result.Errors)
	}
	if len(result.Warnings) < 2 {
		t.Errorf("warnings = %d, want at least 2", len(result.Warnings))
	}
}
