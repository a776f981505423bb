package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/n90p/minecraft-world-downloader/internal/protocol"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateProxyData(&cfg.ProxyData, result)
	validateApplicationData(&cfg.ApplicationData, result)

	return result
}

func validateProxyData(data *ProxyData, result *ValidationResult) {
	// Required fields
	if strings.TrimSpace(data.RemoteHost) == "" {
		result.AddError("proxy_data.remote_host", "remote server host is required")
	}

	validatePort(data.ListenPort, "proxy_data.listen_port", result)
	validatePort(data.RemotePort, "proxy_data.remote_port", result)

	if data.ListenPort == data.RemotePort && isLocalHost(data.RemoteHost) {
		result.AddError("proxy_data.listen_port",
			"listen port equals the remote port on a local host, the proxy would connect to itself")
	}

	if v := strings.TrimSpace(data.GameVersion); v != "" && v != "auto" {
		if protocol.ProtocolForName(v) == 0 {
			result.AddError("proxy_data.game_version",
				fmt.Sprintf("unknown game version %q (use one of %s, or \"auto\")",
					v, strings.Join(protocol.KnownVersions(), ", ")))
		}
	}

	if data.MaxSessions < 1 {
		result.AddError("proxy_data.max_sessions", "must allow at least 1 session")
	}
	if data.MaxSessions > 256 {
		result.AddWarning("proxy_data.max_sessions",
			fmt.Sprintf("high session count (%d) may cause performance issues", data.MaxSessions))
	}

	if data.SessionTimeout > 0 && data.SessionTimeout < 30 {
		result.AddWarning("proxy_data.session_timeout_sec",
			"timeout less than 30 seconds will drop idle but healthy connections")
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	validateTimers(&data.Timers, result)

	// API
	if data.API.Enabled {
		validatePort(data.API.Port, "application_data.api.port", result)
	}

	// MQTT
	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
	}

	// Security
	if data.Security.TLSEnabled {
		if strings.TrimSpace(data.Security.TLSCertFile) == "" {
			result.AddError("application_data.security.tls_cert_file",
				"TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(data.Security.TLSKeyFile) == "" {
			result.AddError("application_data.security.tls_key_file",
				"TLS key file is required when TLS is enabled")
		}
	}

	if data.Security.RateLimitRPS < 1 {
		result.AddWarning("application_data.security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
}

func validateTimers(timers *TimerConfig, result *ValidationResult) {
	if timers.StoreFlushInterval < 5 {
		result.AddWarning("timers.store_flush_interval_sec",
			"flush interval less than 5s may cause excessive disk writes")
	}
	if timers.StatsPollingInterval < 1 {
		result.AddWarning("timers.stats_polling_interval_sec",
			"stats polling interval less than 1s may cause excessive load")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

func isLocalHost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1", "0.0.0.0":
		return true
	}
	return false
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
