// Package config holds the runtime configuration for every role.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerdrop/internal/transfer"
)

// Role represents the role the process runs as.
type Role string

const (
	RoleRelay   Role = "relay"
	RoleSend    Role = "send"
	RoleReceive Role = "receive"
)

const (
	envPort           = "PORT"
	envAllowedOrigins = "PEERDROP_ALLOWED_ORIGINS"

	DefaultPort            = 3000
	DefaultPeerIDLength    = 9
	DefaultMaxMessageBytes = 64 * 1024
	DefaultChunkSize       = transfer.DefaultChunkSize
	DefaultOutputDir       = "."
	DefaultChannelLabel    = "fileTransfer"

	// MaxChunkSize keeps every chunk below the 64 KiB SCTP message size that
	// browsers negotiate by default.
	MaxChunkSize = 64 * 1024
)

// DefaultSTUNServer is used when no ICE servers are configured.
const DefaultSTUNServer = "stun:stun.l.google.com:19302"

// Config stores all parameters gathered from defaults, environment, flags and
// the interactive prompts.
type Config struct {
	Role Role `validate:"required,oneof=relay send receive"`

	// Relay
	Port            int      `validate:"min=1,max=65535"`
	AllowedOrigins  []string `validate:"dive,required"`
	PeerIDLength    int      `validate:"min=4,max=64"`
	MaxMessageBytes int64    `validate:"min=1024"`

	// Clients
	ServerURL    string `validate:"required_unless=Role relay"`
	Target       string `validate:"required_if=Role send"`
	FilePath     string `validate:"required_if=Role send"`
	OutputDir    string `validate:"required_if=Role receive"`
	ChunkSize    int    `validate:"min=1"`
	ChannelLabel string `validate:"required"`
	ICEServers   []webrtc.ICEServer

	// IncludeLoopback gathers 127.0.0.1 candidates too, for same-host peers.
	IncludeLoopback bool

	Debug bool
}

// Default returns a configuration with every knob at its default value.
func Default() Config {
	return Config{
		Port:            DefaultPort,
		AllowedOrigins:  []string{"*"},
		PeerIDLength:    DefaultPeerIDLength,
		MaxMessageBytes: DefaultMaxMessageBytes,
		OutputDir:       DefaultOutputDir,
		ChunkSize:       DefaultChunkSize,
		ChannelLabel:    DefaultChannelLabel,
		ICEServers:      []webrtc.ICEServer{{URLs: []string{DefaultSTUNServer}}},
	}
}

// ApplyEnv overlays environment variables on cfg. lookup is usually
// os.LookupEnv; tests pass a map-backed function.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if raw, ok := lookup(envPort); ok && strings.TrimSpace(raw) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", envPort, raw)
		}
		cfg.Port = port
	}

	if raw, ok := lookup(envAllowedOrigins); ok {
		if origins := splitList(raw); len(origins) > 0 {
			cfg.AllowedOrigins = origins
		}
	}

	servers, err := parseICEServers(lookup)
	if err != nil {
		return err
	}
	if servers != nil {
		cfg.ICEServers = servers
	}

	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("iceurl", isICEURL)
	return v
}

// Validate checks every field relevant to cfg.Role.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("invalid configuration: ChunkSize %d exceeds %d", c.ChunkSize, MaxChunkSize)
	}

	if c.Role != RoleRelay {
		if !strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://") {
			return fmt.Errorf("invalid configuration: server URL must use ws:// or wss://, got %q", c.ServerURL)
		}
		for i, server := range c.ICEServers {
			if err := fromPion(server).check(); err != nil {
				return fmt.Errorf("invalid configuration: iceServers[%d]: %w", i, err)
			}
		}
	}

	return nil
}
