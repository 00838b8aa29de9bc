package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "PEERDROP_ICE_SERVERS_JSON"
	envStunURLs       = "PEERDROP_STUN_URLS"
	envTurnURLs       = "PEERDROP_TURN_URLS"
	envTurnUsername   = "PEERDROP_TURN_USERNAME"
	envTurnCredential = "PEERDROP_TURN_CREDENTIAL"
)

// iceServer is the browser RTCIceServer dictionary as written in
// PEERDROP_ICE_SERVERS_JSON. urls may be a single string or a list.
type iceServer struct {
	URLs       urlList `json:"urls" validate:"min=1,dive,iceurl"`
	Username   string  `json:"username"`
	Credential string  `json:"credential"`
}

type urlList []string

func (l *urlList) UnmarshalJSON(b []byte) error {
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		var single string
		if err := json.Unmarshal(b, &single); err != nil {
			return err
		}
		many = []string{single}
	}
	*l = splitList(strings.Join(many, ","))
	return nil
}

// isICEURL is the "iceurl" validation tag.
func isICEURL(fl validator.FieldLevel) bool {
	url := fl.Field().String()
	for _, scheme := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}

func (s iceServer) check() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("urls must be non-empty stun:, stuns:, turn: or turns: URLs: %v", s.URLs)
	}
	for _, url := range s.URLs {
		if strings.HasPrefix(url, "turn") && (s.Username == "" || s.Credential == "") {
			return errors.New("turn urls require username and credential")
		}
	}
	return nil
}

func (s iceServer) pion() webrtc.ICEServer {
	out := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
	if s.Credential != "" {
		out.Credential = s.Credential
	}
	return out
}

// fromPion converts a configured server back for validation.
func fromPion(server webrtc.ICEServer) iceServer {
	cred, _ := server.Credential.(string)
	return iceServer{URLs: server.URLs, Username: server.Username, Credential: cred}
}

// parseICEServers reads the ICE env vars. The JSON form wins over the
// STUN/TURN lists; nil means nothing was configured.
func parseICEServers(lookup func(string) (string, bool)) ([]webrtc.ICEServer, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	var servers []iceServer
	if raw := get(envICEServersJSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &servers); err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
	} else {
		if urls := splitList(get(envStunURLs)); len(urls) > 0 {
			servers = append(servers, iceServer{URLs: urls})
		}
		if urls := splitList(get(envTurnURLs)); len(urls) > 0 {
			servers = append(servers, iceServer{
				URLs:       urls,
				Username:   get(envTurnUsername),
				Credential: get(envTurnCredential),
			})
		}
	}

	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, s := range servers {
		if err := s.check(); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		out = append(out, s.pion())
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// splitList splits a comma-separated list, dropping blank entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
