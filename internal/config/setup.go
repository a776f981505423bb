package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the user through first-time configuration.
func RunSetupWizard(cfg *Config) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║     World Downloader - First Run Setup       ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Println("║  Welcome! Let's configure your proxy.        ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("── Remote Server ──")

	cfg.ProxyData.RemoteHost = promptString(reader, "Server address to download from", cfg.ProxyData.RemoteHost)
	cfg.ProxyData.RemotePort = promptInt(reader, "Server port", cfg.ProxyData.RemotePort)
	cfg.ProxyData.GameVersion = promptString(reader, "Game version ('auto' to trust the handshake)", cfg.ProxyData.GameVersion)

	fmt.Println()
	fmt.Println("── Local Proxy ──")

	cfg.ProxyData.ListenAddress = promptString(reader, "Address to listen on", cfg.ProxyData.ListenAddress)
	cfg.ProxyData.ListenPort = promptInt(reader, "Port to listen on (point your client here)", cfg.ProxyData.ListenPort)

	fmt.Println()
	fmt.Println("── Storage ──")

	cfg.ProxyData.WorldDirectory = promptString(reader, "Directory for the captured world", cfg.ProxyData.WorldDirectory)
	cfg.ProxyData.ResourceDirectory = promptString(reader, "Directory with block state reports", cfg.ProxyData.ResourceDirectory)
	cfg.ProxyData.MarkNewChunks = promptBool(reader, "Mark freshly captured chunks", cfg.ProxyData.MarkNewChunks)

	fmt.Println()
	fmt.Println("── REST API ──")

	cfg.ApplicationData.API.Enabled = promptBool(reader, "Enable local REST API", cfg.ApplicationData.API.Enabled)
	if cfg.ApplicationData.API.Enabled {
		cfg.ApplicationData.API.Port = promptInt(reader, "REST API port", cfg.ApplicationData.API.Port)
	}

	fmt.Println()
	fmt.Println("── MQTT Telemetry ──")

	cfg.ApplicationData.MQTT.Enabled = promptBool(reader, "Enable MQTT telemetry", cfg.ApplicationData.MQTT.Enabled)

	// Validate before saving
	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Println("\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Printf("  - [%s] %s\n", e.Field, e.Message)
		}
		retry := promptString(reader, "Would you like to try again? (yes/no)", "yes")
		if strings.ToLower(retry) == "yes" {
			return RunSetupWizard(cfg)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	// Save configuration
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Configuration saved successfully!")
	fmt.Println("  Connect your client to the listen address above to start capturing.")
	fmt.Println()

	return nil
}

func promptString(reader *bufio.Reader, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Printf("  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptInt(reader *bufio.Reader, prompt string, defaultVal int) int {
	fmt.Printf("  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Printf("    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Printf("  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
