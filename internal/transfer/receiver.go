package transfer

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/1ureka/peerdrop/internal/status"
	"github.com/1ureka/peerdrop/internal/util"
)

// Sink is the file-save collaborator.
type Sink interface {
	Save(meta Metadata, data []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(meta Metadata, data []byte) error

func (f SinkFunc) Save(meta Metadata, data []byte) error { return f(meta, data) }

// session is one in-flight receive.
type session struct {
	meta     Metadata
	received int64
	chunks   [][]byte
}

// Receiver reassembles transfers arriving on one channel. At most one
// transfer is in flight; a new metadata frame replaces any unfinished one.
type Receiver struct {
	sink Sink
	rep  status.Reporter

	mu      sync.Mutex
	current *session
}

// NewReceiver creates a Receiver handing completed files to sink.
func NewReceiver(sink Sink, rep status.Reporter) *Receiver {
	if rep == nil {
		rep = status.Discard
	}
	return &Receiver{sink: sink, rep: rep}
}

// Handle consumes one inbound frame. Frames must be passed in arrival order.
// A returned ErrProtocolViolation is informational; the Receiver stays
// usable.
func (r *Receiver) Handle(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f.Text {
		return r.start(f.Data)
	}
	return r.append(f.Data)
}

func (r *Receiver) start(data []byte) error {
	meta, err := DecodeMetadata(data)
	if err != nil {
		util.LogWarning("%v", err)
		return err
	}
	if r.current != nil {
		util.LogWarning("metadata for %q replaces unfinished transfer of %q (%d/%d bytes)",
			meta.FileName, r.current.meta.FileName, r.current.received, r.current.meta.FileSize)
	}

	r.current = &session{meta: meta}
	r.rep.Status("Receiving file: "+meta.FileName, status.SeverityProgress)

	if meta.FileSize == 0 {
		r.rep.Progress(status.Receiving, meta.FileName, 100)
		return r.complete()
	}
	return nil
}

func (r *Receiver) append(chunk []byte) error {
	s := r.current
	if s == nil {
		err := fmt.Errorf("%w: %d-byte chunk with no active transfer", ErrProtocolViolation, len(chunk))
		util.LogWarning("%v", err)
		return err
	}

	if s.received+int64(len(chunk)) > s.meta.FileSize {
		err := fmt.Errorf("%w: chunk overshoots %q (%d + %d > %d bytes)",
			ErrProtocolViolation, s.meta.FileName, s.received, len(chunk), s.meta.FileSize)
		util.LogWarning("%v", err)
		r.current = nil
		r.rep.Status("Transfer aborted: "+err.Error(), status.SeverityError)
		return err
	}

	s.chunks = append(s.chunks, chunk)
	s.received += int64(len(chunk))

	percent := int((s.received*100 + s.meta.FileSize/2) / s.meta.FileSize)
	r.rep.Progress(status.Receiving, s.meta.FileName, percent)

	if s.received == s.meta.FileSize {
		return r.complete()
	}
	return nil
}

// complete hands the reassembled file to the sink and resets the session.
func (r *Receiver) complete() error {
	s := r.current
	r.current = nil

	data := bytes.Join(s.chunks, nil)
	if data == nil {
		data = []byte{}
	}
	if err := r.sink.Save(s.meta, data); err != nil {
		r.rep.Status("Failed to save file: "+err.Error(), status.SeverityError)
		return fmt.Errorf("save %q: %w", s.meta.FileName, err)
	}

	util.Stats.AddFileRecv()
	r.rep.Status("File received successfully", status.SeveritySuccess)
	return nil
}

// Active reports whether a transfer is in flight.
func (r *Receiver) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// Abandon drops any in-flight transfer and its buffers. It reports
// ErrConnectionLost when something was dropped.
func (r *Receiver) Abandon() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.current
	if s == nil {
		return nil
	}
	r.current = nil

	err := fmt.Errorf("%w: abandoned %q at %d/%d bytes", ErrConnectionLost, s.meta.FileName, s.received, s.meta.FileSize)
	r.rep.Status("Transfer interrupted: "+s.meta.FileName, status.SeverityError)
	return err
}

// IsViolation reports whether err is a protocol violation.
func IsViolation(err error) bool {
	return errors.Is(err, ErrProtocolViolation)
}
