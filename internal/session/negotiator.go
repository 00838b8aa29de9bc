package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerdrop/internal/signaling"
	"github.com/1ureka/peerdrop/internal/status"
	"github.com/1ureka/peerdrop/internal/util"
)

const eventQueueSize = 64

var log = util.Scope("session")

// event is anything the Run loop reacts to besides inbound signaling.
// gen ties transport callbacks to the session that produced them, so late
// events from a torn-down context are dropped.
type event struct {
	gen int

	initiate  *initiateCmd
	candidate *webrtc.ICECandidateInit
	pcState   webrtc.PeerConnectionState
	open      bool
	done      bool
}

type initiateCmd struct {
	target string
	result chan error
}

// Negotiator drives one session at a time. All state is owned by the Run
// goroutine; transport callbacks and Initiate only enqueue events.
type Negotiator[P PeerContext] struct {
	factory  Factory[P]
	signaler Signaler
	rep      status.Reporter

	events    chan event
	connected chan P
	stopped   chan struct{}
	runOnce   sync.Once

	mu     sync.RWMutex
	state  State
	remote string

	// owned by Run
	ctx       context.Context
	peer      P
	hasPeer   bool
	gen       int
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

// New creates an idle Negotiator.
func New[P PeerContext](factory Factory[P], signaler Signaler, rep status.Reporter) *Negotiator[P] {
	if rep == nil {
		rep = status.Discard
	}
	return &Negotiator[P]{
		factory:   factory,
		signaler:  signaler,
		rep:       rep,
		events:    make(chan event, eventQueueSize),
		connected: make(chan P, 1),
		stopped:   make(chan struct{}),
		state:     StateIdle,
	}
}

// State returns the current negotiation state.
func (n *Negotiator[P]) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Remote returns the identifier of the peer being negotiated with.
func (n *Negotiator[P]) Remote() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.remote
}

// Connected delivers the context of each session whose data channel opened.
func (n *Negotiator[P]) Connected() <-chan P {
	return n.connected
}

// Initiate starts a session with target as the initiator and returns once
// the offer is sent or the attempt failed.
func (n *Negotiator[P]) Initiate(ctx context.Context, target string) error {
	cmd := &initiateCmd{target: target, result: make(chan error, 1)}
	if !n.enqueue(event{initiate: cmd}) {
		return ErrStopped
	}
	select {
	case err := <-cmd.result:
		return err
	case <-n.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes inbound signaling and transport events until ctx is done.
// It must be called once. When inbound closes with no session in progress
// Run returns ErrConnectionLost; otherwise it keeps tracking the session
// without the control connection and returns nil once it ends.
func (n *Negotiator[P]) Run(ctx context.Context, inbound <-chan signaling.Message) error {
	started := false
	n.runOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("negotiator already running")
	}
	defer close(n.stopped)
	defer n.teardown()

	n.ctx = ctx
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-inbound:
			if !ok {
				inbound = nil
				n.rep.Status("Disconnected from server", status.SeverityError)
				if !n.State().active() {
					return ErrConnectionLost
				}
				log.Infof("control connection closed; keeping session with %s", n.Remote())
				continue
			}
			n.handleMessage(msg)

		case ev := <-n.events:
			n.handleEvent(ev)
			if inbound == nil && !n.State().active() {
				return nil
			}
		}
	}
}

// enqueue hands ev to the Run loop unless it has stopped.
func (n *Negotiator[P]) enqueue(ev event) bool {
	select {
	case n.events <- ev:
		return true
	case <-n.stopped:
		return false
	}
}

func (n *Negotiator[P]) setState(s State) {
	n.mu.Lock()
	prev := n.state
	n.state = s
	n.mu.Unlock()
	if prev != s {
		log.Debugf("%s -> %s", prev, s)
	}
}

func (n *Negotiator[P]) setRemote(id string) {
	n.mu.Lock()
	n.remote = id
	n.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Session lifecycle
// ---------------------------------------------------------------------------

// begin tears down any previous context and creates a new one for role.
func (n *Negotiator[P]) begin(role Role, remote string) error {
	n.teardown()

	p, err := n.factory(n.ctx, role)
	if err != nil {
		return err
	}

	n.gen++
	gen := n.gen
	n.peer, n.hasPeer = p, true
	n.remoteSet = false
	n.pending = nil
	n.setRemote(remote)

	p.OnICECandidate(func(c webrtc.ICECandidateInit) {
		n.enqueue(event{gen: gen, candidate: &c})
	})
	p.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		n.enqueue(event{gen: gen, pcState: s})
	})
	go n.watch(gen, p)

	log.Debugf("session %d created as %s for %s", gen, role, remote)
	return nil
}

// watch turns the context's ready and done signals into events.
func (n *Negotiator[P]) watch(gen int, p P) {
	select {
	case <-p.Ready():
		if !n.enqueue(event{gen: gen, open: true}) {
			return
		}
	case <-p.Done():
		n.enqueue(event{gen: gen, done: true})
		return
	case <-n.stopped:
		return
	}

	select {
	case <-p.Done():
		n.enqueue(event{gen: gen, done: true})
	case <-n.stopped:
	}
}

// teardown closes the current context, if any.
func (n *Negotiator[P]) teardown() {
	if !n.hasPeer {
		return
	}
	if err := n.peer.Close(); err != nil {
		log.Debugf("close peer context: %v", err)
	}
	var zero P
	n.peer, n.hasPeer = zero, false
	n.remoteSet = false
	n.pending = nil
}

// fail reports msg, tears the context down and moves to failed.
func (n *Negotiator[P]) fail(msg string, err error) error {
	n.rep.Status(msg+err.Error(), status.SeverityError)
	log.Warnf("%s%v", msg, err)
	n.teardown()
	n.setState(StateFailed)
	return fmt.Errorf("%w: %v", ErrNegotiationFailure, err)
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func (n *Negotiator[P]) handleEvent(ev event) {
	if ev.initiate != nil {
		ev.initiate.result <- n.initiate(ev.initiate.target)
		return
	}
	if ev.gen != n.gen || !n.hasPeer {
		return
	}

	switch {
	case ev.candidate != nil:
		if err := n.signaler.SendCandidate(n.Remote(), *ev.candidate); err != nil {
			log.Warnf("send ice-candidate: %v", err)
		}

	case ev.open:
		n.rep.Status("Data channel opened", status.SeveritySuccess)
		select {
		case n.connected <- n.peer:
		default:
			log.Warnf("previous session was never picked up; dropping this one")
		}

	case ev.done:
		if n.State() != StateFailed {
			n.rep.Status("Data channel closed", status.SeverityProgress)
			n.setState(StateClosed)
		}
		n.teardown()

	case ev.pcState != 0:
		n.handleConnectionState(ev.pcState)
	}
}

func (n *Negotiator[P]) handleConnectionState(s webrtc.PeerConnectionState) {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		n.setState(StateConnected)
		n.rep.Status("Connected to peer", status.SeveritySuccess)
	case webrtc.PeerConnectionStateDisconnected:
		log.Warnf("connection to %s interrupted", n.Remote())
	case webrtc.PeerConnectionStateFailed:
		_ = n.fail("Connection failed: ", fmt.Errorf("transport state %s", s))
	case webrtc.PeerConnectionStateClosed:
		if n.State() != StateFailed {
			n.setState(StateClosed)
		}
		n.teardown()
	}
}

func (n *Negotiator[P]) initiate(target string) error {
	if n.State().active() {
		return ErrBusy
	}
	if target == "" {
		n.rep.Status("Please enter a peer ID", status.SeverityError)
		return fmt.Errorf("%w: empty target", ErrNegotiationFailure)
	}

	const failMsg = "Failed to create connection: "
	if err := n.begin(Initiator, target); err != nil {
		return n.fail(failMsg, err)
	}
	offer, err := n.peer.CreateOffer()
	if err != nil {
		return n.fail(failMsg, err)
	}
	if err := n.peer.SetLocalDescription(offer); err != nil {
		return n.fail(failMsg, err)
	}
	if err := n.signaler.SendOffer(target, offer); err != nil {
		return n.fail(failMsg, err)
	}

	n.setState(StateOffering)
	n.rep.Status("Connecting to peer...", status.SeverityProgress)
	return nil
}

// ---------------------------------------------------------------------------
// Inbound signaling
// ---------------------------------------------------------------------------

func (n *Negotiator[P]) handleMessage(msg signaling.Message) {
	switch msg.Type {
	case signaling.MsgTypeOffer:
		n.handleOffer(msg)
	case signaling.MsgTypeAnswer:
		n.handleAnswer(msg)
	case signaling.MsgTypeCandidate:
		n.handleCandidate(msg)
	default:
		log.Debugf("ignoring %q message", msg.Type)
	}
}

func (n *Negotiator[P]) handleOffer(msg signaling.Message) {
	if n.State().active() {
		log.Warnf("ignoring offer from %s: busy with %s", msg.From, n.Remote())
		return
	}

	const failMsg = "Failed to handle offer: "
	offer, err := msg.SessionDescription()
	if err != nil {
		_ = n.fail(failMsg, err)
		return
	}
	if err := n.begin(Responder, msg.From); err != nil {
		_ = n.fail(failMsg, err)
		return
	}
	if err := n.applyRemote(offer); err != nil {
		_ = n.fail(failMsg, err)
		return
	}
	answer, err := n.peer.CreateAnswer()
	if err != nil {
		_ = n.fail(failMsg, err)
		return
	}
	if err := n.peer.SetLocalDescription(answer); err != nil {
		_ = n.fail(failMsg, err)
		return
	}
	if err := n.signaler.SendAnswer(msg.From, answer); err != nil {
		_ = n.fail(failMsg, err)
		return
	}

	n.setState(StateAnswering)
	n.rep.Status("Connecting to peer...", status.SeverityProgress)
}

func (n *Negotiator[P]) handleAnswer(msg signaling.Message) {
	if n.State() != StateOffering || msg.From != n.Remote() || n.remoteSet {
		log.Warnf("ignoring unexpected answer from %s", msg.From)
		return
	}

	answer, err := msg.SessionDescription()
	if err == nil {
		err = n.applyRemote(answer)
	}
	if err != nil {
		_ = n.fail("Failed to handle answer: ", err)
	}
}

func (n *Negotiator[P]) handleCandidate(msg signaling.Message) {
	if !n.hasPeer || msg.From != n.Remote() {
		log.Debugf("ignoring ice-candidate from %s", msg.From)
		return
	}

	const failMsg = "Failed to handle ICE candidate: "
	c, ok, err := msg.ICECandidate()
	if err != nil {
		_ = n.fail(failMsg, err)
		return
	}
	if !ok {
		return
	}
	if !n.remoteSet {
		n.pending = append(n.pending, c)
		return
	}
	if err := n.peer.AddICECandidate(c); err != nil {
		_ = n.fail(failMsg, err)
	}
}

// applyRemote sets the remote description and flushes queued candidates.
func (n *Negotiator[P]) applyRemote(sd webrtc.SessionDescription) error {
	if err := n.peer.SetRemoteDescription(sd); err != nil {
		return err
	}
	n.remoteSet = true

	pending := n.pending
	n.pending = nil
	for _, c := range pending {
		if err := n.peer.AddICECandidate(c); err != nil {
			return fmt.Errorf("queued candidate: %w", err)
		}
	}
	return nil
}
