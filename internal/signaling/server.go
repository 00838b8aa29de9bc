package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/1ureka/peerdrop/internal/util"
)

const writeTimeout = 10 * time.Second

// ServerConfig configures the relay's HTTP listener.
type ServerConfig struct {
	Addr            string
	AllowedOrigins  []string
	MaxMessageBytes int64
}

// Server exposes a Relay over WebSocket. Every accepted connection is
// registered with the relay and served by its own read loop.
type Server struct {
	relay    *Relay
	cfg      ServerConfig
	origins  []*regexp.Regexp
	upgrader websocket.Upgrader

	listener net.Listener
	http     *http.Server
}

// NewServer creates a server for relay.
func NewServer(relay *Relay, cfg ServerConfig) *Server {
	return &Server{
		relay:   relay,
		cfg:     cfg,
		origins: CompileOrigins(cfg.AllowedOrigins),
		// Origins are checked in handleWS against the configured patterns.
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler serving the WebSocket on "/" and "/ws"
// and a health probe on "/healthz".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/", s.handleWS)
	return mux
}

// Start begins listening on cfg.Addr and returns the bound address.
func (s *Server) Start() (net.Addr, error) {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start relay server: %w", err)
	}
	s.listener = listener
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("relay server stopped: %v", err)
		}
	}()

	return listener.Addr(), nil
}

// Shutdown stops accepting connections and waits for handlers up to ctx.
// Hijacked WebSocket connections are not tracked by net/http and end when
// their peers disconnect or the process exits.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"peers":  s.relay.Peers().Len(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "WebSocket upgrade required", http.StatusUpgradeRequired)
		return
	}
	if !originAllowed(r.Header.Get("Origin"), s.origins) {
		relayLog.Warnf("rejected origin %q from %s", r.Header.Get("Origin"), r.RemoteAddr)
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.serve(&wsConn{conn: conn, session: ulid.Make().String()})
}

// serve runs the read loop of one control connection until it closes.
func (s *Server) serve(c *wsConn) {
	defer c.conn.Close()

	if s.cfg.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	id, err := s.relay.OnConnect(c)
	if err != nil {
		relayLog.Errorf("conn %s: register failed: %v", c.session, err)
		return
	}
	defer s.relay.OnDisconnect(id)
	relayLog.Infof("conn %s: peer %s from %s", c.session, id, c.conn.RemoteAddr())

	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				relayLog.Warnf("conn %s: peer %s read error: %v", c.session, id, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			relayLog.Warnf("conn %s: peer %s sent non-text frame, ignoring", c.session, id)
			continue
		}

		if err := s.relay.OnMessage(id, raw); err != nil {
			switch {
			case IsDrop(err):
				relayLog.Debugf("conn %s: dropped: %v", c.session, err)
			default:
				relayLog.Warnf("conn %s: peer %s: %v", c.session, id, err)
			}
		}
	}
}

// wsConn is the relay-side handle of one WebSocket peer. Writes from
// different senders' read loops are serialized by mu.
type wsConn struct {
	conn    *websocket.Conn
	session string
	mu      sync.Mutex
}

func (c *wsConn) Send(msg Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
