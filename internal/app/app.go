// Package app contains the top-level orchestration for the relay, send and
// receive roles.
package app

import (
	"context"
	"net"
	"time"

	"github.com/1ureka/peerdrop/internal/config"
	"github.com/1ureka/peerdrop/internal/session"
	"github.com/1ureka/peerdrop/internal/status"
	"github.com/1ureka/peerdrop/internal/transfer"
	"github.com/1ureka/peerdrop/internal/transport"
)

const (
	statsInterval   = 5 * time.Second
	shutdownTimeout = 5 * time.Second

	// connectTimeout bounds how long a sender waits for the target to
	// answer. The relay drops offers to unknown peers without telling us.
	connectTimeout = 30 * time.Second

	// lingerTimeout gives the receiver time to drain the last chunks before
	// the sender tears the connection down.
	lingerTimeout = 3 * time.Second
)

// Options carries the collaborators a role uses besides its Config. Zero
// values fall back to the terminal reporter and a DiskSink.
type Options struct {
	Reporter status.Reporter
	Sink     transfer.Sink

	// OnListen is called with the relay's bound address.
	OnListen func(addr net.Addr)
	// OnPeerID is called with the identifier the relay assigned.
	OnPeerID func(id string)
}

func (o Options) reporter() status.Reporter {
	if o.Reporter == nil {
		return status.NewConsole()
	}
	return o.Reporter
}

// peerFactory creates one Transport per negotiated session.
func peerFactory(cfg config.Config) session.Factory[*transport.Transport] {
	tcfg := transport.Config{
		ICEServers:      cfg.ICEServers,
		ChannelLabel:    cfg.ChannelLabel,
		IncludeLoopback: cfg.IncludeLoopback,
	}
	return func(ctx context.Context, role session.Role) (*transport.Transport, error) {
		return transport.New(ctx, tcfg, role == session.Initiator)
	}
}

var _ session.PeerContext = (*transport.Transport)(nil)
