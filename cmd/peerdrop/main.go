// Command peerdrop is the CLI entry point.
//
// One binary runs the signaling relay or a file sending/receiving peer. File
// bytes travel directly between peers over a WebRTC DataChannel; the relay
// only brokers the offer/answer/candidate exchange.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -port, -server, -target, -file, -out, -chunk).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/peerdrop/internal/app"
	"github.com/1ureka/peerdrop/internal/config"
	"github.com/1ureka/peerdrop/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Default()
	if err := config.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	// CLI flags, layered over env and defaults.
	role := flag.String("role", "", "Role: relay, send or receive")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Relay listen port (relay only, env PORT)")
	serverFlag := flag.String("server", "", "Relay URL, e.g. ws://localhost:3000 (send/receive)")
	flag.StringVar(&cfg.Target, "target", "", "Peer ID to send to (send only)")
	flag.StringVar(&cfg.FilePath, "file", "", "File to send (send only)")
	flag.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Directory for received files (receive only)")
	flag.IntVar(&cfg.ChunkSize, "chunk", cfg.ChunkSize, "Chunk size in bytes (send only)")
	flag.BoolVar(&cfg.IncludeLoopback, "loopback", false, "Also gather loopback ICE candidates (same-host peers)")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("peerdrop — v%s", version))
	pterm.Println()

	if *role == "" {
		// No -role flag → interactive mode.
		askInteractive(&cfg)
	} else {
		cfg.Role = config.Role(*role)
		if *serverFlag != "" {
			u, err := normalizeWSURL(*serverFlag)
			if err != nil {
				util.LogError("%v", err)
				os.Exit(1)
			}
			cfg.ServerURL = u
		}
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	util.LogInfo("bye")
}

// run dispatches to the role's orchestration.
func run(ctx context.Context, cfg config.Config) error {
	switch cfg.Role {
	case config.RoleRelay:
		return app.RunRelay(ctx, cfg, app.Options{})
	case config.RoleSend:
		return app.RunSend(ctx, cfg, app.Options{})
	default:
		return app.RunReceive(ctx, cfg, app.Options{})
	}
}

// ---------------------------------------------------------------------------
// Interactive prompts
// ---------------------------------------------------------------------------

// askInteractive fills cfg from prompts when no -role flag is provided.
func askInteractive(cfg *config.Config) {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Relay   — Run the signaling server",
			"Send    — Send a file to a peer",
			"Receive — Wait for a file from a peer",
		}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	switch {
	case strings.HasPrefix(choice, "Relay"):
		cfg.Role = config.RoleRelay
		cfg.Port = askPort("Listen port (1 ~ 65535)", cfg.Port)
	case strings.HasPrefix(choice, "Send"):
		cfg.Role = config.RoleSend
		cfg.ServerURL = askURL()
		cfg.Target = askText("Peer ID to send to")
		cfg.FilePath = askFile()
	default:
		cfg.Role = config.RoleReceive
		cfg.ServerURL = askURL()
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeWSURL validates a relay URL and maps http(s) schemes to ws(s).
// A missing path defaults to "/ws".
func normalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL: %s", raw)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid relay URL scheme: %s", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// askPort prompts the user for a port number until a valid one is entered.
func askPort(prompt string, def int) int {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			WithDefaultValue(strconv.Itoa(def)).
			Show()

		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && port >= 1 && port <= 65535 {
			pterm.Println()
			return port
		}

		util.LogWarning("invalid port number: must be 1 ~ 65535")
		pterm.Println()
	}
}

// askURL prompts the user for a valid relay URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay URL (e.g. ws://localhost:3000)").
			Show()

		wsURL, err := normalizeWSURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// askText prompts until a non-empty answer is entered.
func askText(prompt string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		if v := strings.TrimSpace(raw); v != "" {
			pterm.Println()
			return v
		}

		pterm.Println()
		util.LogWarning("please enter a value")
	}
}

// askFile prompts until an existing regular file is named.
func askFile() string {
	for {
		path := askText("File to send")
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
		util.LogWarning("not a readable file: %s", path)
	}
}
