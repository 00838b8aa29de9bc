package signaling

import (
	"errors"
	"fmt"

	"github.com/1ureka/peerdrop/internal/util"
)

var relayLog = util.Scope("relay")

// Relay routes offer/answer/ice-candidate messages between registered peers.
// It keeps no state besides the registry.
type Relay struct {
	peers *Registry
}

// NewRelay creates a relay backed by peers.
func NewRelay(peers *Registry) *Relay {
	return &Relay{peers: peers}
}

// Peers exposes the registry, mainly for health reporting.
func (r *Relay) Peers() *Registry {
	return r.peers
}

// OnConnect registers conn and tells it its identifier.
func (r *Relay) OnConnect(conn Conn) (string, error) {
	id, err := r.peers.Register(conn)
	if err != nil {
		return "", err
	}

	if err := conn.Send(Message{Type: MsgTypeID, PeerID: id}); err != nil {
		r.peers.Remove(id)
		return "", fmt.Errorf("send peer id: %w", err)
	}

	relayLog.Debugf("peer %s connected (%d online)", id, r.peers.Len())
	return id, nil
}

// OnMessage handles one raw frame from peer `from`. Messages to an unknown
// target return ErrTargetPeerUnknown and are dropped without telling the
// sender.
func (r *Relay) OnMessage(from string, raw []byte) error {
	msg, err := parseInbound(raw)
	if err != nil {
		return err
	}

	target, ok := r.peers.Lookup(msg.Target)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTargetPeerUnknown, msg.Target)
	}

	if err := target.Send(msg.forward(from)); err != nil {
		return fmt.Errorf("forward %s %s -> %s: %w", msg.Type, from, msg.Target, err)
	}

	relayLog.Debugf("forwarded %s %s -> %s", msg.Type, from, msg.Target)
	return nil
}

// OnDisconnect removes the peer. Later messages addressed to it miss the
// lookup and are dropped.
func (r *Relay) OnDisconnect(id string) {
	r.peers.Remove(id)
	relayLog.Debugf("peer %s disconnected (%d online)", id, r.peers.Len())
}

// IsDrop reports whether err from OnMessage is a routing miss rather than a
// fault worth surfacing.
func IsDrop(err error) bool {
	return errors.Is(err, ErrTargetPeerUnknown)
}
