// mcwd - Minecraft World Downloader proxy
//
// mcwd sits between a Minecraft client and a remote server as a
// transparent TCP proxy, decodes the chunk traffic flowing through it,
// and archives every chunk column it sees. A local REST API and an
// interactive CLI expose capture progress, and MQTT telemetry is
// available for remote dashboards.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/n90p/minecraft-world-downloader/internal/api"
	"github.com/n90p/minecraft-world-downloader/internal/cli"
	"github.com/n90p/minecraft-world-downloader/internal/config"
	"github.com/n90p/minecraft-world-downloader/internal/events"
	"github.com/n90p/minecraft-world-downloader/internal/proxy"
	"github.com/n90p/minecraft-world-downloader/internal/scheduler"
	"github.com/n90p/minecraft-world-downloader/internal/telemetry"
	"github.com/n90p/minecraft-world-downloader/internal/util"
	"github.com/n90p/minecraft-world-downloader/internal/world"
)

const (
	AppName    = "mcwd"
	AppVersion = "1.0.0"
	Banner     = `
                              _
  _ __ ___   _____      ____| |
 | '_ ' _ \ / __\ \ /\ / / _' |
 | | | | | | (__ \ V  V / (_| |
 |_| |_| |_|\___| \_/\_/ \__,_|  v%s
 Minecraft World Downloader proxy
`
)

func main() {
	// Print banner
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (will be reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting mcwd")

	// Load configuration
	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	logCfg := util.LogConfig{
		Level:      cfg.ApplicationData.Logging.Level,
		Directory:  cfg.ApplicationData.Logging.Directory,
		MaxSizeMB:  cfg.ApplicationData.Logging.MaxSizeMB,
		MaxBackups: cfg.ApplicationData.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	// Validate configuration
	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}

		if cfg.IsFirstRun() {
			log.Info().Msg("first run detected, launching setup wizard")
			if err := config.RunSetupWizard(cfg); err != nil {
				log.Fatal().Err(err).Msg("setup wizard failed")
			}
		} else {
			log.Fatal().Msg("configuration validation failed, please fix the errors above")
		}
	}

	// Log system info
	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	proxyData := cfg.GetProxyData()
	log.Info().
		Str("listen", fmt.Sprintf("%s:%d", proxyData.ListenAddress, proxyData.ListenPort)).
		Str("remote", fmt.Sprintf("%s:%d", proxyData.RemoteHost, proxyData.RemotePort)).
		Str("game_version", proxyData.GameVersion).
		Msg("proxy configuration")

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize core components
	eventBus := events.NewEventBus()

	// Open the world archive
	store, err := world.Open(cfg.WorldDBPath())
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.WorldDBPath()).Msg("failed to open world store")
	}

	// Initialize the proxy listener
	listener := proxy.NewListener(cfg, eventBus, store)

	// Initialize REST API
	var apiServer *api.Server
	if cfg.ApplicationData.API.Enabled {
		apiServer = api.NewServer(cfg, eventBus, listener, store)
	}

	// Initialize MQTT telemetry
	var mqttHandler *telemetry.MQTTHandler
	if cfg.ApplicationData.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// Initialize scheduler
	sched := scheduler.NewScheduler(cfg, eventBus, store)

	// Initialize CLI
	cliHandler := cli.NewCLI(cfg, eventBus, listener, store)

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	// Task 1: proxy listener. This one is fatal: without it there is no
	// traffic to capture.
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", proxyData.ListenPort).Msg("starting proxy listener")
		if err := startWithRetry(ctx, "proxy listener", listener.Start, 15); err != nil {
			log.Error().Err(err).Msg("proxy listener failed after retries")
			errCh <- fmt.Errorf("proxy listener: %w", err)
		}
	}()

	// Task 2: REST API server (with retry for port binding)
	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", cfg.ApplicationData.API.Port).Msg("starting REST API server")
			if err := startWithRetry(ctx, "API server", apiServer.Start, 15); err != nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	}

	// Task 3: MQTT telemetry
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 4: Scheduler (store flushes, stats)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting task scheduler")
		sched.Start(ctx)
	}()

	// Task 5: Interactive CLI
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive CLI")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	shutdownCh := make(chan struct{})
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(ctx context.Context, event events.Event) error {
		select {
		case <-shutdownCh:
		default:
			close(shutdownCh)
		}
		return nil
	})

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")

	// Stop accepting new sessions, then cancel the root context to
	// signal every running goroutine.
	listener.Stop()
	cancel()

	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	// Flush and close the world archive after the sessions are gone so
	// the last buffered chunks make it to disk.
	if err := store.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close world store cleanly")
	}

	// Stop the event bus last
	eventBus.Stop()

	log.Info().Msg("mcwd stopped")
}

// startWithRetry attempts to start a listener/server with retry on bind errors.
// Uses a fixed 3-second interval between retries, which gives the OS time
// to release sockets after a process is force-killed.
// Returns nil on success, or the last error after all retries fail.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}
