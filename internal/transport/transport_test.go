package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/peerdrop/internal/transfer"
)

func testConfig() Config {
	return Config{ChannelLabel: "fileTransfer", IncludeLoopback: true}
}

// connectPair negotiates two in-process Transports without trickle ICE.
func connectPair(t *testing.T) (*Transport, *Transport) {
	t.Helper()
	if testing.Short() {
		t.Skip("starts real WebRTC peers")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	a, err := New(ctx, testConfig(), true)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	b, err := New(ctx, testConfig(), false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })

	offer, err := a.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	gathered := webrtc.GatheringCompletePromise(a.pc)
	if err := a.SetLocalDescription(offer); err != nil {
		t.Fatal(err)
	}
	<-gathered
	if err := b.SetRemoteDescription(*a.pc.LocalDescription()); err != nil {
		t.Fatal(err)
	}

	answer, err := b.CreateAnswer()
	if err != nil {
		t.Fatal(err)
	}
	gathered = webrtc.GatheringCompletePromise(b.pc)
	if err := b.SetLocalDescription(answer); err != nil {
		t.Fatal(err)
	}
	<-gathered
	if err := a.SetRemoteDescription(*b.pc.LocalDescription()); err != nil {
		t.Fatal(err)
	}

	for _, tr := range []*Transport{a, b} {
		select {
		case <-tr.Ready():
		case <-time.After(20 * time.Second):
			t.Fatal("data channel did not open")
		}
	}
	return a, b
}

func nextFrame(t *testing.T, tr *Transport) transfer.Frame {
	t.Helper()
	select {
	case f := <-tr.Frames():
		return f
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for frame")
		return transfer.Frame{}
	}
}

func TestTransportOrderedFrames(t *testing.T) {
	a, b := connectPair(t)
	ctx := context.Background()

	if !a.Open() || !b.Open() {
		t.Fatal("channels not open after Ready")
	}
	if err := a.SendText(ctx, `{"fileName":"x","fileSize":3,"fileType":""}`); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		if err := a.SendBinary(ctx, []byte{byte(i), byte(i), byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if f := nextFrame(t, b); !f.Text {
		t.Fatal("first frame is not text")
	}
	for i := 0; i < 50; i++ {
		f := nextFrame(t, b)
		if f.Text || len(f.Data) != 3 || f.Data[0] != byte(i) {
			t.Fatalf("frame %d = %+v", i, f)
		}
	}
}

func TestTransportBackpressure(t *testing.T) {
	a, b := connectPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Push well past the high water mark while the other side drains.
	const chunks = 200
	chunk := make([]byte, transfer.DefaultChunkSize)
	go func() {
		for i := 0; i < chunks; i++ {
			if err := a.SendBinary(ctx, chunk); err != nil {
				return
			}
		}
	}()

	var got int
	for got < chunks*len(chunk) {
		got += len(nextFrame(t, b).Data)
	}
	if got != chunks*len(chunk) {
		t.Errorf("received %d bytes, want %d", got, chunks*len(chunk))
	}
}

func TestTransportCloseEndsPeer(t *testing.T) {
	a, b := connectPair(t)
	a.Close()

	select {
	case <-b.Done():
	case <-time.After(20 * time.Second):
		t.Fatal("remote Done not closed")
	}
	if err := b.SendText(context.Background(), "late"); err == nil {
		t.Error("send on a closed channel succeeded")
	}
}

func TestSendBeforeOpen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	for _, initiator := range []bool{true, false} {
		tr, err := New(ctx, testConfig(), initiator)
		if err != nil {
			t.Fatal(err)
		}
		if tr.Open() {
			t.Error("fresh transport reports open")
		}
		if err := tr.SendBinary(ctx, []byte("x")); !errors.Is(err, transfer.ErrChannelNotReady) {
			t.Errorf("initiator=%v: err = %v, want ErrChannelNotReady", initiator, err)
		}
		tr.Close()
	}
}
