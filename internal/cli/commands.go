// Package cli implements the interactive command-line interface for the
// downloader: live session and capture status, configuration updates, and
// shutdown.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/n90p/minecraft-world-downloader/internal/config"
	"github.com/n90p/minecraft-world-downloader/internal/events"
	"github.com/n90p/minecraft-world-downloader/internal/protocol"
	"github.com/n90p/minecraft-world-downloader/internal/proxy"
	"github.com/n90p/minecraft-world-downloader/internal/world"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	proxy    *proxy.Listener
	store    *world.Store
}

// NewCLI creates a new CLI handler.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, pl *proxy.Listener, store *world.Store) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		proxy:    pl,
		store:    store,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nWorld downloader CLI ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("mcwd> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err == nil || err == io.EOF {
				return
			}
			continue
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		return c.printStatus()
	case "sessions":
		c.printSessions(args)
	case "chunks":
		return c.printChunks(args)
	case "versions":
		c.printVersions()
	case "flush":
		if err := c.store.Flush(); err != nil {
			return err
		}
		fmt.Println("World store flushed")
	case "setconfig":
		return c.cmdSetConfig(args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                 World Downloader CLI Commands                ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  status             Show capture summary                    ║")
	fmt.Println("║  sessions [id]      Show all or one proxied session         ║")
	fmt.Println("║  chunks [n]         Show the n most recent chunks           ║")
	fmt.Println("║  versions           List supported game versions            ║")
	fmt.Println("║  flush              Flush buffered chunks to disk           ║")
	fmt.Println("║  setconfig <k> <v>  Update a configuration value            ║")
	fmt.Println("║  quit               Shutdown the downloader                 ║")
	fmt.Println("║  help               Show this help message                  ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printStatus displays the capture summary.
func (c *CLI) printStatus() error {
	counts, err := c.store.Count()
	if err != nil {
		return err
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	fmt.Printf("\n  Live sessions:  %d\n", c.proxy.SessionCount())
	fmt.Printf("  Chunks stored:  %d\n", total)
	for dim, n := range counts {
		fmt.Printf("    %-28s %d\n", dim, n)
	}
	fmt.Printf("  Pending flush:  %d\n", c.store.Pending())
	fmt.Printf("  Total written:  %d\n", c.store.Written())
	fmt.Println()
	return nil
}

// printSessions displays sessions in a formatted table.
func (c *CLI) printSessions(args []string) {
	snapshots := c.proxy.Snapshots()

	if len(args) > 0 {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			fmt.Println("Invalid session id")
			return
		}
		for _, snap := range snapshots {
			if snap.ID == id {
				c.printSessionDetail(snap)
				return
			}
		}
		fmt.Printf("No live session with id %d\n", id)
		return
	}

	if len(snapshots) == 0 {
		fmt.Println("No live sessions")
		return
	}

	fmt.Println()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"ID", "Remote", "Status", "Version", "Chunks", "Up", "Down", "Uptime"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, snap := range snapshots {
		tw.Append([]string{
			fmt.Sprintf("%d", snap.ID),
			snap.RemoteAddr,
			snap.Status.String(),
			snap.Version,
			fmt.Sprintf("%d", snap.ChunksDecoded),
			formatBytes(snap.BytesUp),
			formatBytes(snap.BytesDown),
			time.Since(snap.StartedAt).Round(time.Second).String(),
		})
	}

	tw.Render()
	fmt.Println()
}

// printSessionDetail prints detailed info for a single session.
func (c *CLI) printSessionDetail(snap proxy.Snapshot) {
	fmt.Printf("\n  Session:        %d\n", snap.ID)
	fmt.Printf("  Remote:         %s\n", snap.RemoteAddr)
	fmt.Printf("  Status:         %s\n", snap.Status)
	fmt.Printf("  Protocol:       %d (%s)\n", snap.Protocol, snap.Version)
	fmt.Printf("  Dimension:      %s\n", snap.Dimension)
	fmt.Printf("  Compression:    %d\n", snap.Compression)
	fmt.Printf("  Encrypted:      %v\n", snap.Encrypted)
	fmt.Printf("  Chunks:         %d decoded, %d unloaded\n", snap.ChunksDecoded, snap.ChunksUnloaded)
	fmt.Printf("  Traffic:        %s up, %s down\n", formatBytes(snap.BytesUp), formatBytes(snap.BytesDown))
	fmt.Printf("  Started:        %s\n", snap.StartedAt.Format(time.RFC3339))
	fmt.Println()
}

// printChunks displays the most recently captured chunks.
func (c *CLI) printChunks(args []string) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		limit = n
	}

	chunks, err := c.store.Recent(limit)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		fmt.Println("No chunks stored yet")
		return nil
	}

	fmt.Println()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"X", "Z", "Dimension", "Version", "Sections", "Blocks", "Updated"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, info := range chunks {
		tw.Append([]string{
			fmt.Sprintf("%d", info.X),
			fmt.Sprintf("%d", info.Z),
			info.Dimension,
			info.Version,
			fmt.Sprintf("%d", info.Sections),
			fmt.Sprintf("%d", info.Blocks),
			info.UpdatedAt.Format("15:04:05"),
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}

// printVersions lists the known game versions.
func (c *CLI) printVersions() {
	fmt.Println()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Version", "Protocol"})
	tw.SetBorder(true)

	for _, name := range protocol.KnownVersions() {
		tw.Append([]string{name, fmt.Sprintf("%d", protocol.ProtocolForName(name))})
	}

	tw.Render()
	fmt.Println()
}

func (c *CLI) cmdSetConfig(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}

	key := args[0]
	value := strings.Join(args[1:], " ")

	if err := c.cfg.UpdateProxyField(key, value); err != nil {
		return err
	}

	if err := c.cfg.Save(); err != nil {
		return err
	}

	fmt.Printf("Config updated: %s = %s\n", key, value)
	return nil
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1fGiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
