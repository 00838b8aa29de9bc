// Package transfer implements the chunked file transfer that runs over an
// open data channel.
//
// The wire contract is one text frame carrying Metadata followed by binary
// frames of at most ChunkSize bytes whose lengths add up to FileSize. There
// is no end marker: the receiver completes when the byte count matches, so
// the channel must be ordered and reliable.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// DefaultChunkSize is the maximum binary frame size.
const DefaultChunkSize = 16384

var (
	// ErrChannelNotReady is returned when a send is attempted before the
	// channel is open or without a file.
	ErrChannelNotReady = errors.New("channel not ready")

	// ErrProtocolViolation marks inbound frames that do not fit the
	// metadata-then-chunks contract.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrConnectionLost is reported when the channel closes mid-transfer.
	ErrConnectionLost = errors.New("connection lost")

	// ErrShortFile is returned when a file yields fewer bytes than its
	// declared size.
	ErrShortFile = errors.New("file shorter than declared size")
)

// Metadata announces a transfer. It is always the first frame.
type Metadata struct {
	FileName string `json:"fileName" validate:"max=1024"`
	FileSize int64  `json:"fileSize" validate:"min=0"`
	FileType string `json:"fileType" validate:"max=256"`
}

// Frame is one data channel message.
type Frame struct {
	Text bool
	Data []byte
}

// Channel is the sending half of an open data channel. Sends must be
// delivered in order and reliably.
type Channel interface {
	Open() bool
	SendText(ctx context.Context, text string) error
	SendBinary(ctx context.Context, data []byte) error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// EncodeMetadata renders m as the JSON text frame.
func EncodeMetadata(m Metadata) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeMetadata parses and validates a metadata text frame.
func DecodeMetadata(data []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("%w: bad metadata: %v", ErrProtocolViolation, err)
	}
	if err := validate.Struct(&m); err != nil {
		return Metadata{}, fmt.Errorf("%w: bad metadata: %v", ErrProtocolViolation, err)
	}
	return m, nil
}
