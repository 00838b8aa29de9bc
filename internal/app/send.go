package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/1ureka/peerdrop/internal/config"
	"github.com/1ureka/peerdrop/internal/session"
	"github.com/1ureka/peerdrop/internal/signaling"
	"github.com/1ureka/peerdrop/internal/status"
	"github.com/1ureka/peerdrop/internal/transfer"
	"github.com/1ureka/peerdrop/internal/transport"
	"github.com/1ureka/peerdrop/internal/util"
)

// RunSend orchestrates the sender lifecycle:
//  1. Open the file
//  2. Connect to the relay and get a peer ID
//  3. Negotiate a session with the target as initiator
//  4. Stream the file over the data channel
//  5. Flush and close
func RunSend(ctx context.Context, cfg config.Config, opts Options) error {
	rep := opts.reporter()

	// ── 1. File ────────────────────────────────────────────────────────
	file, closer, err := transfer.OpenFile(cfg.FilePath)
	if err != nil {
		rep.Status("Please select a file first", status.SeverityError)
		return fmt.Errorf("open %s: %w", cfg.FilePath, err)
	}
	defer closer.Close()
	rep.Status(fmt.Sprintf("Selected file: %s (%s)", file.Name, util.FormatFileSize(file.Size)), status.SeverityProgress)

	// ── 2. Relay ───────────────────────────────────────────────────────
	client, err := signaling.Dial(ctx, cfg.ServerURL)
	if err != nil {
		rep.Status("Disconnected from server", status.SeverityError)
		return err
	}
	defer client.Close()
	util.LogInfo("connected to relay as %s", client.ID())
	if opts.OnPeerID != nil {
		opts.OnPeerID(client.ID())
	}

	// ── 3. Negotiation ─────────────────────────────────────────────────
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	neg := session.New(peerFactory(cfg), client, rep)
	runErr := make(chan error, 1)
	go func() { runErr <- neg.Run(runCtx, client.Messages()) }()

	if err := neg.Initiate(ctx, cfg.Target); err != nil {
		return err
	}

	tr, err := awaitConnected(ctx, neg, runErr, connectTimeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			rep.Status(fmt.Sprintf("Peer %s did not answer", cfg.Target), status.SeverityError)
		}
		return err
	}
	util.StartStatsReporter(runCtx, statsInterval)

	// ── 4. Transfer ────────────────────────────────────────────────────
	err = transfer.SendFile(ctx, tr, file, transfer.SendOptions{
		ChunkSize: cfg.ChunkSize,
		Reporter:  rep,
	})
	if err != nil {
		return err
	}

	// ── 5. Flush ───────────────────────────────────────────────────────
	if err := tr.Flush(ctx); err != nil {
		return err
	}
	select {
	case <-tr.Done():
	case <-time.After(lingerTimeout):
	case <-ctx.Done():
	}
	return nil
}

// awaitConnected waits for the negotiated transport, failing on negotiation
// errors, a lost control connection or timeout.
func awaitConnected(ctx context.Context, neg *session.Negotiator[*transport.Transport], runErr <-chan error, timeout time.Duration) (*transport.Transport, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case tr := <-neg.Connected():
			return tr, nil
		case err := <-runErr:
			if err == nil {
				err = session.ErrConnectionLost
			}
			return nil, err
		case <-ticker.C:
			if neg.State() == session.StateFailed {
				return nil, session.ErrNegotiationFailure
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for peer: %w", ctx.Err())
		}
	}
}
