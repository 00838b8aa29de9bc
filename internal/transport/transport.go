// Package transport binds the transport-negotiation capability to pion
// WebRTC: one PeerConnection carrying one file transfer DataChannel.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerdrop/internal/transfer"
	"github.com/1ureka/peerdrop/internal/util"
)

const frameBufferSize = 64

var log = util.Scope("transport")

// Config configures a Transport.
type Config struct {
	ICEServers      []webrtc.ICEServer
	ChannelLabel    string
	IncludeLoopback bool
}

// Transport wraps a single PeerConnection + DataChannel pair, providing the
// negotiation operations, ordered frame delivery and backpressured sends.
//
// Its lifecycle is governed by the DataChannel and PeerConnection state and
// the context passed at construction time.
type Transport struct {
	pc    *webrtc.PeerConnection
	label string

	openSignal chan struct{}
	openOnce   sync.Once
	frames     chan transfer.Frame

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	dc      *dataChannel
	pcState webrtc.PeerConnectionState
	onState func(webrtc.PeerConnectionState)
}

// New creates a Transport. The initiator creates the DataChannel; the
// responder adopts the one announced by the remote side. The caller drives
// signaling through CreateOffer / CreateAnswer / … and waits on Ready.
func New(ctx context.Context, cfg Config, initiator bool) (*Transport, error) {
	pc, err := newAPI(cfg).NewPeerConnection(webrtc.Configuration{
		ICEServers: cfg.ICEServers,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &Transport{
		pc:         pc,
		label:      cfg.ChannelLabel,
		openSignal: make(chan struct{}),
		frames:     make(chan transfer.Frame, frameBufferSize),
		ctx:        tCtx,
		cancel:     tCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debugf("PeerConnection state: %s", state)
		t.mu.Lock()
		t.pcState = state
		fn := t.onState
		t.mu.Unlock()

		if fn != nil {
			fn(state)
		}
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			tCancel()
		}
	})

	if initiator {
		raw, err := newDataChannel(pc, cfg.ChannelLabel)
		if err != nil {
			tCancel()
			pc.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		t.attach(raw)
	} else {
		pc.OnDataChannel(func(raw *webrtc.DataChannel) {
			if raw.Label() != t.label {
				log.Warnf("ignoring unexpected data channel %q", raw.Label())
				return
			}
			t.attach(raw)
		})
	}

	return t, nil
}

// attach wires the open gate, close handling and inbound delivery of raw.
func (t *Transport) attach(raw *webrtc.DataChannel) {
	t.mu.Lock()
	if t.dc != nil {
		t.mu.Unlock()
		log.Warnf("ignoring second data channel %q", raw.Label())
		return
	}
	t.dc = newChannel(raw, t.ctx.Done())
	t.mu.Unlock()

	raw.OnOpen(func() {
		log.Debugf("DataChannel %q open", raw.Label())
		t.openOnce.Do(func() { close(t.openSignal) })
	})

	raw.OnClose(func() {
		log.Debugf("DataChannel %q closed", raw.Label())
		t.cancel()
	})

	raw.OnError(func(err error) {
		log.Warnf("DataChannel %q error: %v", raw.Label(), err)
	})

	// pion invokes OnMessage sequentially per channel; blocking here keeps
	// frames in order and pushes back on the SCTP association.
	raw.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			util.Stats.AddRecv(len(msg.Data))
		}
		select {
		case t.frames <- transfer.Frame{Text: msg.IsString, Data: msg.Data}:
		case <-t.ctx.Done():
		}
	})
}

func (t *Transport) channel() *dataChannel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dc
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open.
func (t *Transport) Ready() <-chan struct{} {
	return t.openSignal
}

// Done returns a channel that is closed when the Transport is shut down
// (DataChannel closed, PeerConnection failed or closed, or parent context
// cancelled).
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Close shuts down the DataChannel and PeerConnection.
func (t *Transport) Close() error {
	t.cancel()
	var errs []error
	if dc := t.channel(); dc != nil {
		errs = append(errs, dc.raw.Close())
	}
	errs = append(errs, t.pc.Close())
	return errors.Join(errs...)
}

// ConnectionState returns the last observed PeerConnection state.
func (t *Transport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pcState
}

// OnConnectionStateChange registers a callback for PeerConnection state
// changes. Only the last registered callback is kept.
func (t *Transport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. The end-of-gathering nil candidate is not passed on.
func (t *Transport) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			fn(c.ToJSON())
		}
	})
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// Frames returns inbound DataChannel messages in arrival order. The channel
// is never closed; select on Done as well.
func (t *Transport) Frames() <-chan transfer.Frame {
	return t.frames
}

// Open reports whether the DataChannel is open for sending.
func (t *Transport) Open() bool {
	dc := t.channel()
	return dc != nil && dc.open()
}

// SendText sends a text frame, blocking on backpressure.
func (t *Transport) SendText(ctx context.Context, text string) error {
	dc := t.channel()
	if dc == nil {
		return transfer.ErrChannelNotReady
	}
	return dc.sendText(ctx, text)
}

// SendBinary sends a binary frame, blocking on backpressure.
func (t *Transport) SendBinary(ctx context.Context, data []byte) error {
	dc := t.channel()
	if dc == nil {
		return transfer.ErrChannelNotReady
	}
	return dc.sendBinary(ctx, data)
}

// Flush blocks until every queued byte has been handed to the network, the
// Transport shuts down, or ctx is cancelled.
func (t *Transport) Flush(ctx context.Context) error {
	dc := t.channel()
	if dc == nil {
		return nil
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for dc.raw.BufferedAmount() > 0 {
		select {
		case <-ticker.C:
		case <-t.Done():
			return fmt.Errorf("%w: data channel closed before flush", transfer.ErrConnectionLost)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

var _ transfer.Channel = (*Transport)(nil)
