package signaling

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// maxIDAttempts bounds collision retries in Register.
const maxIDAttempts = 16

// ErrRegistryExhausted is returned when no free identifier could be found.
var ErrRegistryExhausted = errors.New("no free peer identifier")

// Conn is a control connection as seen by the relay.
type Conn interface {
	Send(Message) error
}

// IDGenerator produces candidate peer identifiers.
type IDGenerator func() (string, error)

const tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// TokenGenerator returns an IDGenerator producing crypto-random base36
// tokens of the given length.
func TokenGenerator(length int) IDGenerator {
	max := big.NewInt(int64(len(tokenAlphabet)))
	return func() (string, error) {
		token := make([]byte, length)
		for i := range token {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("generate peer id: %w", err)
			}
			token[i] = tokenAlphabet[n.Int64()]
		}
		return string(token), nil
	}
}

// Registry maps live peer identifiers to their control connections. It is
// created at server start and owned by the Relay; entries are added on
// connect and removed on disconnect.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]Conn
	gen   IDGenerator
}

// NewRegistry creates an empty registry that draws identifiers from gen.
func NewRegistry(gen IDGenerator) *Registry {
	return &Registry{
		peers: make(map[string]Conn),
		gen:   gen,
	}
}

// Register stores conn under a fresh identifier that no live connection
// holds, regenerating on collision.
func (r *Registry) Register(conn Conn) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < maxIDAttempts; i++ {
		id, err := r.gen()
		if err != nil {
			return "", err
		}
		if _, taken := r.peers[id]; taken || id == "" {
			continue
		}
		r.peers[id] = conn
		return id, nil
	}
	return "", ErrRegistryExhausted
}

// Lookup returns the connection registered under id.
func (r *Registry) Lookup(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.peers[id]
	return conn, ok
}

// Remove forgets id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// Len returns the number of live peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
