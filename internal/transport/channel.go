package transport

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerdrop/internal/transfer"
	"github.com/1ureka/peerdrop/internal/util"
)

const (
	highWaterMark = 1024 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark  = 256 * 1024  // resume sending when bufferedAmount drops below this
)

// dataChannel wraps a pion DataChannel with backpressure control.
type dataChannel struct {
	raw       *webrtc.DataChannel
	sendReady chan struct{}
	closed    <-chan struct{}
}

// newChannel wraps raw and wires the buffered-amount-low callback.
func newChannel(raw *webrtc.DataChannel, closed <-chan struct{}) *dataChannel {
	ch := &dataChannel{
		raw:       raw,
		sendReady: make(chan struct{}, 1),
		closed:    closed,
	}

	raw.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	raw.OnBufferedAmountLow(func() {
		select {
		case ch.sendReady <- struct{}{}:
		default:
		}
	})

	return ch
}

func (c *dataChannel) open() bool {
	return c.raw.ReadyState() == webrtc.DataChannelStateOpen
}

// waitWritable blocks while the send buffer is above the high water mark.
func (c *dataChannel) waitWritable(ctx context.Context) error {
	for c.raw.BufferedAmount() > uint64(highWaterMark) {
		select {
		case <-c.sendReady:
		case <-c.closed:
			return fmt.Errorf("%w: data channel closed", transfer.ErrConnectionLost)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *dataChannel) sendText(ctx context.Context, text string) error {
	if !c.open() {
		return transfer.ErrChannelNotReady
	}
	if err := c.waitWritable(ctx); err != nil {
		return err
	}
	return c.raw.SendText(text)
}

func (c *dataChannel) sendBinary(ctx context.Context, data []byte) error {
	if !c.open() {
		return transfer.ErrChannelNotReady
	}
	if err := c.waitWritable(ctx); err != nil {
		return err
	}
	if err := c.raw.Send(data); err != nil {
		return err
	}
	util.Stats.AddSent(len(data))
	return nil
}
