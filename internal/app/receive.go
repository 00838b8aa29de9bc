package app

import (
	"context"
	"errors"

	"github.com/pterm/pterm"

	"github.com/1ureka/peerdrop/internal/config"
	"github.com/1ureka/peerdrop/internal/session"
	"github.com/1ureka/peerdrop/internal/signaling"
	"github.com/1ureka/peerdrop/internal/status"
	"github.com/1ureka/peerdrop/internal/transfer"
	"github.com/1ureka/peerdrop/internal/util"
)

// RunReceive connects to the relay, answers incoming sessions and saves
// every received file until ctx is cancelled or the relay goes away.
func RunReceive(ctx context.Context, cfg config.Config, opts Options) error {
	rep := opts.reporter()
	sink := opts.Sink
	if sink == nil {
		sink = transfer.DiskSink{Dir: cfg.OutputDir}
	}

	client, err := signaling.Dial(ctx, cfg.ServerURL)
	if err != nil {
		rep.Status("Disconnected from server", status.SeverityError)
		return err
	}
	defer client.Close()

	pterm.DefaultBox.WithTitle("peerdrop").Println("Your peer ID: " + pterm.Bold.Sprint(client.ID()))
	if opts.OnPeerID != nil {
		opts.OnPeerID(client.ID())
	}
	util.LogInfo("waiting for a sender; files go to %s", cfg.OutputDir)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	neg := session.New(peerFactory(cfg), client, rep)
	runErr := make(chan error, 1)
	go func() { runErr <- neg.Run(runCtx, client.Messages()) }()

	util.StartStatsReporter(runCtx, statsInterval)

	for {
		select {
		case tr := <-neg.Connected():
			util.LogInfo("session with %s open (%s)", neg.Remote(), tr.ConnectionState())
			receiveFrames(ctx, tr, transfer.NewReceiver(sink, rep))

		case err := <-runErr:
			if errors.Is(err, context.Canceled) || err == nil {
				return nil
			}
			return err

		case <-ctx.Done():
			return nil
		}
	}
}

// frameSource is the receiving half of a session's transport.
type frameSource interface {
	Frames() <-chan transfer.Frame
	Done() <-chan struct{}
}

// receiveFrames feeds the transport's frames to r until the session ends.
func receiveFrames(ctx context.Context, tr frameSource, r *transfer.Receiver) {
	handle := func(f transfer.Frame) {
		if err := r.Handle(f); err != nil && !transfer.IsViolation(err) {
			util.LogError("%v", err)
		}
	}

	for {
		select {
		case f := <-tr.Frames():
			handle(f)

		case <-tr.Done():
			// Frames delivered before the close are still valid.
		drain:
			for {
				select {
				case f := <-tr.Frames():
					handle(f)
				default:
					break drain
				}
			}
			if err := r.Abandon(); err != nil {
				util.LogWarning("%v", err)
			}
			return

		case <-ctx.Done():
			r.Abandon()
			return
		}
	}
}
