// Package config handles configuration loading, validation, and persistence
// for the world downloader proxy.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir   = "config"
	DefaultConfigFile  = "config.json"
	DefaultAPIPort     = 5001
	DefaultListenPort  = 25565
	DefaultRemotePort  = 25565
	DefaultWorldDBFile = "world.db"
)

// Config is the root configuration structure for the downloader.
type Config struct {
	mu   sync.RWMutex
	path string

	ProxyData       ProxyData       `json:"proxy_data"`
	ApplicationData ApplicationData `json:"application_data"`
}

// ProxyData contains the connection and decoding configuration.
type ProxyData struct {
	// Listen side
	ListenAddress string `json:"listen_address"`
	ListenPort    int    `json:"listen_port"`

	// Remote server the proxy connects through to
	RemoteHost string `json:"remote_host"`
	RemotePort int    `json:"remote_port"`

	// Game version name ("1.20.2", ...) or "auto" to take it from the
	// client handshake.
	GameVersion string `json:"game_version"`

	// Paths
	ResourceDirectory string `json:"resource_directory"`
	WorldDirectory    string `json:"world_directory"`

	// Decoding behaviour
	MarkNewChunks  bool `json:"mark_new_chunks"`
	StoreEntities  bool `json:"store_block_entities"`
	MaxSessions    int  `json:"max_sessions"`
	SessionTimeout int  `json:"session_timeout_sec"`
}

// ApplicationData contains application-level configuration.
type ApplicationData struct {
	Timers   TimerConfig    `json:"timers"`
	API      APIConfig      `json:"api"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
}

// TimerConfig holds background task interval settings.
type TimerConfig struct {
	StoreFlushInterval   int `json:"store_flush_interval_sec"`
	StatsPollingInterval int `json:"stats_polling_interval_sec"`
	SessionSweepInterval int `json:"session_sweep_interval_sec"`
}

// APIConfig holds the HTTP status API settings.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
	Topic     string `json:"topic"`
}

// SecurityConfig holds security-related settings for the API surface.
type SecurityConfig struct {
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ProxyData: ProxyData{
			ListenAddress:     "0.0.0.0",
			ListenPort:        DefaultListenPort,
			RemotePort:        DefaultRemotePort,
			GameVersion:       "auto",
			ResourceDirectory: "resources",
			WorldDirectory:    "world",
			StoreEntities:     true,
			MaxSessions:       16,
			SessionTimeout:    300,
		},
		ApplicationData: ApplicationData{
			Timers: TimerConfig{
				StoreFlushInterval:   30,
				StatsPollingInterval: 10,
				SessionSweepInterval: 60,
			},
			API: APIConfig{
				Enabled: true,
				Address: "127.0.0.1",
				Port:    DefaultAPIPort,
			},
			MQTT: MQTTConfig{
				Enabled: false,
				Port:    8883,
				UseTLS:  true,
				Topic:   "worlddownloader/progress",
			},
			Security: SecurityConfig{
				RateLimitRPS: 100,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	// This ensures config.json always reflects the complete set of options.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Ensure config directory exists
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetProxyData returns a copy of the proxy configuration.
func (c *Config) GetProxyData() ProxyData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ProxyData
}

// SetProxyData updates the proxy configuration.
func (c *Config) SetProxyData(data ProxyData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ProxyData = data
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetApplicationData updates the application data configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}

// UpdateProxyField updates a specific field in the proxy configuration.
func (c *Config) UpdateProxyField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := json.Marshal(c.ProxyData)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	m[key] = value

	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, &c.ProxyData); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}

	return nil
}

// UpdateAppField updates a specific field in application data.
func (c *Config) UpdateAppField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := json.Marshal(c.ApplicationData)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	m[key] = value

	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, &c.ApplicationData); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}

	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun reports whether the downloader has ever been pointed at a
// server. Used to decide whether to launch the setup wizard.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ProxyData.RemoteHost == ""
}

// WorldDBPath returns the location of the chunk store database.
func (c *Config) WorldDBPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filepath.Join(c.ProxyData.WorldDirectory, DefaultWorldDBFile)
}
