package app

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"

	"github.com/1ureka/peerdrop/internal/config"
	"github.com/1ureka/peerdrop/internal/signaling"
	"github.com/1ureka/peerdrop/internal/util"
)

// RunRelay serves the signaling relay until ctx is cancelled.
func RunRelay(ctx context.Context, cfg config.Config, opts Options) error {
	relay := signaling.NewRelay(signaling.NewRegistry(signaling.TokenGenerator(cfg.PeerIDLength)))
	server := signaling.NewServer(relay, signaling.ServerConfig{
		Addr:            fmt.Sprintf(":%d", cfg.Port),
		AllowedOrigins:  cfg.AllowedOrigins,
		MaxMessageBytes: cfg.MaxMessageBytes,
	})

	addr, err := server.Start()
	if err != nil {
		return err
	}
	if opts.OnListen != nil {
		opts.OnListen(addr)
	}

	pterm.DefaultBox.WithTitle("peerdrop relay").Println(
		fmt.Sprintf("Listening : %s\nWebSocket : ws://<host>:%d/ws\nHealth    : http://<host>:%d/healthz",
			addr, cfg.Port, cfg.Port))
	util.LogInfo("allowed origins: %v", cfg.AllowedOrigins)

	<-ctx.Done()

	util.LogInfo("shutting down relay (%d peers connected)", relay.Peers().Len())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
