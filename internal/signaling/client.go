package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerdrop/internal/util"
)

// ErrConnectionLost is reported when the control connection closes.
var ErrConnectionLost = errors.New("signaling connection lost")

const inboxSize = 64

var clientLog = util.Scope("signaling")

// Client is a peer's control connection to the relay. Inbound messages are
// delivered in order on Messages(); outbound writes are serialized.
type Client struct {
	conn  *websocket.Conn
	id    string
	inbox chan Message

	mu sync.Mutex // guards writes on conn

	quit      chan struct{}
	closeOnce sync.Once

	done    chan struct{}
	errOnce sync.Once
	err     error
}

// Dial connects to the relay at url and waits for the identifier the relay
// assigns. The read loop runs until the connection closes.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	// The id message is always the first frame; bound the wait by ctx.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	var first Message
	_, raw, err := conn.ReadMessage()
	if err == nil {
		err = json.Unmarshal(raw, &first)
	}
	if !stop() {
		return nil, fmt.Errorf("waiting for peer id: %w", ctx.Err())
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("waiting for peer id: %w", err)
	}
	if first.Type != MsgTypeID || first.PeerID == "" {
		conn.Close()
		return nil, fmt.Errorf("%w: expected id, got %q", ErrInvalidMessage, first.Type)
	}

	c := &Client{
		conn:  conn,
		id:    first.PeerID,
		inbox: make(chan Message, inboxSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go c.watch()
	return c, nil
}

// ID returns the identifier assigned by the relay.
func (c *Client) ID() string { return c.id }

// Messages returns the inbound message stream. It is closed when the
// connection ends.
func (c *Client) Messages() <-chan Message { return c.inbox }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended, wrapping ErrConnectionLost.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close closes the control connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.quit) })

	c.mu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	return c.conn.Close()
}

// watch is the read loop. Frames that fail to decode are logged and skipped.
func (c *Client) watch() {
	defer close(c.inbox)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			clientLog.Warnf("failed to decode relay message: %v", err)
			continue
		}

		select {
		case c.inbox <- msg:
		case <-c.quit:
			c.finish(errors.New("client closed"))
			return
		}
	}
}

// finish records why the connection ended and closes Done.
func (c *Client) finish(err error) {
	c.errOnce.Do(func() {
		c.err = fmt.Errorf("%w: %v", ErrConnectionLost, err)
		close(c.done)
	})
}

// send writes a signaling message to the WebSocket, guarded by a mutex.
func (c *Client) send(msg Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

// SendOffer sends an SDP offer addressed to target.
func (c *Client) SendOffer(target string, offer webrtc.SessionDescription) error {
	payload, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	return c.send(Message{Type: MsgTypeOffer, Target: target, Offer: payload})
}

// SendAnswer sends an SDP answer addressed to target.
func (c *Client) SendAnswer(target string, answer webrtc.SessionDescription) error {
	payload, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return c.send(Message{Type: MsgTypeAnswer, Target: target, Answer: payload})
}

// SendCandidate sends a local ICE candidate addressed to target.
func (c *Client) SendCandidate(target string, candidate webrtc.ICECandidateInit) error {
	payload, err := json.Marshal(candidate)
	if err != nil {
		return err
	}
	return c.send(Message{Type: MsgTypeCandidate, Target: target, Candidate: payload})
}
