package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/1ureka/peerdrop/internal/status"
)

// loopChannel is an open Channel that records every frame and optionally
// feeds it straight into a Receiver.
type loopChannel struct {
	closed bool
	frames []Frame
	recv   *Receiver
	failAt int // fail the n-th send (1-based) when > 0
}

func (c *loopChannel) Open() bool { return !c.closed }

func (c *loopChannel) SendText(_ context.Context, text string) error {
	return c.push(Frame{Text: true, Data: []byte(text)})
}

func (c *loopChannel) SendBinary(_ context.Context, data []byte) error {
	return c.push(Frame{Data: append([]byte(nil), data...)})
}

func (c *loopChannel) push(f Frame) error {
	if c.failAt > 0 && len(c.frames)+1 == c.failAt {
		return ErrConnectionLost
	}
	c.frames = append(c.frames, f)
	if c.recv != nil {
		return c.recv.Handle(f)
	}
	return nil
}

// memSink collects saved files.
type memSink struct {
	saved []Metadata
	data  [][]byte
}

func (s *memSink) Save(meta Metadata, data []byte) error {
	s.saved = append(s.saved, meta)
	s.data = append(s.data, data)
	return nil
}

func pattern(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}

func memFile(name string, data []byte) *File {
	return &File{Name: name, Type: "application/octet-stream", Size: int64(len(data)), Reader: bytes.NewReader(data)}
}

func TestRoundTrip(t *testing.T) {
	const cs = DefaultChunkSize
	sizes := []int{0, 1, cs - 1, cs, cs + 1, 10 * cs}

	for _, size := range sizes {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			sink := &memSink{}
			sendRep, recvRep := &status.Recorder{}, &status.Recorder{}
			ch := &loopChannel{recv: NewReceiver(sink, recvRep)}
			data := pattern(size)

			if err := SendFile(context.Background(), ch, memFile("f.bin", data), SendOptions{Reporter: sendRep}); err != nil {
				t.Fatalf("SendFile: %v", err)
			}

			if len(sink.data) != 1 {
				t.Fatalf("saved %d files, want 1", len(sink.data))
			}
			if !bytes.Equal(sink.data[0], data) {
				t.Fatalf("reassembled bytes differ (got %d bytes, want %d)", len(sink.data[0]), size)
			}
			if sink.saved[0].FileName != "f.bin" || sink.saved[0].FileSize != int64(size) {
				t.Errorf("metadata = %+v", sink.saved[0])
			}

			wantChunks := (size + cs - 1) / cs
			if got := len(ch.frames) - 1; got != wantChunks {
				t.Errorf("chunks = %d, want %d", got, wantChunks)
			}
			for i, f := range ch.frames[1:] {
				if len(f.Data) > cs {
					t.Errorf("chunk %d is %d bytes, exceeds %d", i, len(f.Data), cs)
				}
			}

			for _, rep := range []struct {
				name string
				dir  status.Direction
				rec  *status.Recorder
			}{
				{"send", status.Sending, sendRep},
				{"recv", status.Receiving, recvRep},
			} {
				p := rep.rec.ProgressOf(rep.dir)
				if len(p) == 0 {
					t.Fatalf("%s: no progress reported", rep.name)
				}
				for i := 1; i < len(p); i++ {
					if p[i] < p[i-1] {
						t.Errorf("%s progress not monotonic: %v", rep.name, p)
					}
				}
				if p[len(p)-1] != 100 {
					t.Errorf("%s progress ends at %d, want 100", rep.name, p[len(p)-1])
				}
			}

			if last, _ := sendRep.Last(); last.Severity != status.SeveritySuccess {
				t.Errorf("send last status = %+v", last)
			}
			if last, _ := recvRep.Last(); last.Message != "File received successfully" {
				t.Errorf("recv last status = %+v", last)
			}
		})
	}
}

func TestFortyThousandByteScenario(t *testing.T) {
	sink := &memSink{}
	sendRep, recvRep := &status.Recorder{}, &status.Recorder{}
	ch := &loopChannel{recv: NewReceiver(sink, recvRep)}
	data := pattern(40000)

	if err := SendFile(context.Background(), ch, memFile("big.dat", data), SendOptions{ChunkSize: 16384, Reporter: sendRep}); err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	if len(ch.frames) != 4 || !ch.frames[0].Text {
		t.Fatalf("frames = %d (first text=%v), want metadata + 3 chunks", len(ch.frames), ch.frames[0].Text)
	}
	meta, err := DecodeMetadata(ch.frames[0].Data)
	if err != nil {
		t.Fatal(err)
	}
	if meta.FileSize != 40000 || meta.FileName != "big.dat" {
		t.Errorf("metadata = %+v", meta)
	}

	want := []int{16384, 16384, 7232}
	for i, w := range want {
		if got := len(ch.frames[i+1].Data); got != w || ch.frames[i+1].Text {
			t.Errorf("chunk %d: %d bytes (text=%v), want %d binary", i, got, ch.frames[i+1].Text, w)
		}
	}

	if got := recvRep.ProgressOf(status.Receiving); !equalInts(got, []int{41, 82, 100}) {
		t.Errorf("receive progress = %v, want [41 82 100]", got)
	}
	if got := sendRep.ProgressOf(status.Sending); !equalInts(got, []int{40, 81, 100}) {
		t.Errorf("send progress = %v, want [40 81 100]", got)
	}
	if len(sink.data) != 1 || len(sink.data[0]) != 40000 || !bytes.Equal(sink.data[0], data) {
		t.Fatal("receiver did not reassemble exactly 40000 bytes")
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestChunkBeforeMetadata(t *testing.T) {
	sink := &memSink{}
	rep := &status.Recorder{}
	r := NewReceiver(sink, rep)

	err := r.Handle(Frame{Data: []byte("stray")})
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("err = %v, want ErrProtocolViolation", err)
	}
	if r.Active() {
		t.Error("stray chunk started a session")
	}
	if len(rep.ProgressOf(status.Receiving)) != 0 {
		t.Error("stray chunk reported progress")
	}

	// The receiver still works afterwards.
	meta, _ := EncodeMetadata(Metadata{FileName: "a", FileSize: 3})
	if err := r.Handle(Frame{Text: true, Data: []byte(meta)}); err != nil {
		t.Fatal(err)
	}
	if err := r.Handle(Frame{Data: []byte("abc")}); err != nil {
		t.Fatal(err)
	}
	if len(sink.data) != 1 || string(sink.data[0]) != "abc" {
		t.Fatalf("saved = %q", sink.data)
	}
}

func TestSequentialTransfersOnOneChannel(t *testing.T) {
	sink := &memSink{}
	ch := &loopChannel{recv: NewReceiver(sink, nil)}

	first, second := pattern(20000), []byte("second file")
	for _, f := range []*File{memFile("one", first), memFile("two", second)} {
		if err := SendFile(context.Background(), ch, f, SendOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	if len(sink.data) != 2 {
		t.Fatalf("saved %d files, want 2", len(sink.data))
	}
	if !bytes.Equal(sink.data[0], first) || !bytes.Equal(sink.data[1], second) {
		t.Error("files were mixed up between sessions")
	}
	if ch.recv.Active() {
		t.Error("session not reset after completion")
	}
}

func TestMetadataReplacesUnfinishedTransfer(t *testing.T) {
	sink := &memSink{}
	r := NewReceiver(sink, nil)

	m1, _ := EncodeMetadata(Metadata{FileName: "old", FileSize: 10})
	m2, _ := EncodeMetadata(Metadata{FileName: "new", FileSize: 2})
	for _, f := range []Frame{
		{Text: true, Data: []byte(m1)},
		{Data: []byte("12345")},
		{Text: true, Data: []byte(m2)},
		{Data: []byte("ok")},
	} {
		if err := r.Handle(f); err != nil {
			t.Fatal(err)
		}
	}
	if len(sink.saved) != 1 || sink.saved[0].FileName != "new" || string(sink.data[0]) != "ok" {
		t.Fatalf("saved = %+v %q", sink.saved, sink.data)
	}
}

func TestOvershootAbandonsSession(t *testing.T) {
	sink := &memSink{}
	rep := &status.Recorder{}
	r := NewReceiver(sink, rep)

	meta, _ := EncodeMetadata(Metadata{FileName: "x", FileSize: 4})
	if err := r.Handle(Frame{Text: true, Data: []byte(meta)}); err != nil {
		t.Fatal(err)
	}
	if err := r.Handle(Frame{Data: []byte("abcdef")}); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("err = %v, want ErrProtocolViolation", err)
	}
	if r.Active() || len(sink.data) != 0 {
		t.Error("overshooting chunk must abandon the session without saving")
	}
	if !rep.Has(status.SeverityError) {
		t.Error("overshoot not reported")
	}
}

func TestInvalidMetadata(t *testing.T) {
	for _, raw := range []string{`not json`, `{"fileName":"a","fileSize":-1,"fileType":""}`} {
		r := NewReceiver(&memSink{}, nil)
		if err := r.Handle(Frame{Text: true, Data: []byte(raw)}); !errors.Is(err, ErrProtocolViolation) {
			t.Errorf("%s: err = %v, want ErrProtocolViolation", raw, err)
		}
		if r.Active() {
			t.Errorf("%s: session started", raw)
		}
	}
}

func TestAbandon(t *testing.T) {
	r := NewReceiver(&memSink{}, nil)
	if err := r.Abandon(); err != nil {
		t.Fatalf("idle Abandon: %v", err)
	}

	meta, _ := EncodeMetadata(Metadata{FileName: "x", FileSize: 100})
	_ = r.Handle(Frame{Text: true, Data: []byte(meta)})
	_ = r.Handle(Frame{Data: make([]byte, 10)})

	if err := r.Abandon(); !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("err = %v, want ErrConnectionLost", err)
	}
	if r.Active() {
		t.Error("session survived Abandon")
	}
}

func TestSendFileChannelNotReady(t *testing.T) {
	rep := &status.Recorder{}
	ch := &loopChannel{closed: true}

	err := SendFile(context.Background(), ch, memFile("a", []byte("a")), SendOptions{Reporter: rep})
	if !errors.Is(err, ErrChannelNotReady) {
		t.Fatalf("err = %v, want ErrChannelNotReady", err)
	}
	if len(ch.frames) != 0 {
		t.Error("frames sent on a closed channel")
	}
	if last, _ := rep.Last(); last.Message != "No connection to peer" || last.Severity != status.SeverityError {
		t.Errorf("status = %+v", last)
	}

	err = SendFile(context.Background(), &loopChannel{}, nil, SendOptions{Reporter: rep})
	if !errors.Is(err, ErrChannelNotReady) {
		t.Fatalf("nil file: err = %v, want ErrChannelNotReady", err)
	}
	if last, _ := rep.Last(); last.Message != "Please select a file first" {
		t.Errorf("status = %+v", last)
	}
}

func TestSendFileShortReader(t *testing.T) {
	f := &File{Name: "short", Size: 100, Reader: bytes.NewReader(make([]byte, 60))}
	err := SendFile(context.Background(), &loopChannel{}, f, SendOptions{ChunkSize: 32})
	if !errors.Is(err, ErrShortFile) {
		t.Fatalf("err = %v, want ErrShortFile", err)
	}
}

func TestSendFileChannelDropsMidway(t *testing.T) {
	rep := &status.Recorder{}
	ch := &loopChannel{failAt: 3}
	err := SendFile(context.Background(), ch, memFile("a", pattern(100)), SendOptions{ChunkSize: 10, Reporter: rep})
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("err = %v, want ErrConnectionLost", err)
	}
	if rep.Has(status.SeveritySuccess) {
		t.Error("success reported for an aborted send")
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, closer, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	if f.Name != "notes.txt" || f.Size != 5 || !strings.HasPrefix(f.Type, "text/plain") {
		t.Errorf("file = %+v", f)
	}
	data, _ := io.ReadAll(f.Reader)
	if string(data) != "hello" {
		t.Errorf("data = %q", data)
	}

	if _, _, err := OpenFile(dir); err == nil {
		t.Error("OpenFile accepted a directory")
	}
}

func TestDiskSink(t *testing.T) {
	dir := t.TempDir()
	sink := DiskSink{Dir: dir}

	for _, name := range []string{"report.pdf", "report.pdf", "../../etc/report.pdf", ""} {
		if err := sink.Save(Metadata{FileName: name}, []byte(name)); err != nil {
			t.Fatalf("Save(%q): %v", name, err)
		}
	}

	for name, want := range map[string]string{
		"report.pdf":     "report.pdf",
		"report (1).pdf": "report.pdf",
		"report (2).pdf": "../../etc/report.pdf",
		"download":       "",
	} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	testCases := map[string]string{
		"report.pdf":         "report.pdf",
		"../../etc/passwd":   "passwd",
		`..\..\evil.exe`:     "evil.exe",
		"dir/":               "dir",
		"":                   "download",
		".":                  "download",
		"..":                 "download",
		"/":                  "download",
		`\`:                  "download",
		"with space (1).txt": "with space (1).txt",
	}
	for in, want := range testCases {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
