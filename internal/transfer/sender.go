package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/1ureka/peerdrop/internal/status"
	"github.com/1ureka/peerdrop/internal/util"
)

// File is a file selected for sending.
type File struct {
	Name   string
	Type   string
	Size   int64
	Reader io.Reader
}

// OpenFile opens path for sending. The caller closes the returned closer.
func OpenFile(path string) (*File, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}

	name := filepath.Base(path)
	return &File{
		Name:   name,
		Type:   mime.TypeByExtension(filepath.Ext(name)),
		Size:   info.Size(),
		Reader: f,
	}, f, nil
}

// SendOptions tunes SendFile.
type SendOptions struct {
	ChunkSize int
	Reporter  status.Reporter
}

// SendFile streams file over ch: one metadata text frame, then binary
// chunks in read order. Progress is floor(offset*100/size) after each chunk.
// Failures are reported as an error status and returned.
func SendFile(ctx context.Context, ch Channel, file *File, opts SendOptions) error {
	rep := opts.Reporter
	if rep == nil {
		rep = status.Discard
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	err := sendFile(ctx, ch, file, chunkSize, rep)
	switch {
	case err == nil:
		rep.Status("File sent successfully", status.SeveritySuccess)
		util.Stats.AddFileSent()
	case errors.Is(err, ErrChannelNotReady) && (ch == nil || !ch.Open()):
		rep.Status("No connection to peer", status.SeverityError)
	case errors.Is(err, ErrChannelNotReady):
		rep.Status("Please select a file first", status.SeverityError)
	default:
		rep.Status("Failed to send file: "+err.Error(), status.SeverityError)
	}
	return err
}

func sendFile(ctx context.Context, ch Channel, file *File, chunkSize int, rep status.Reporter) error {
	if ch == nil || !ch.Open() {
		return ErrChannelNotReady
	}
	if file == nil || file.Reader == nil {
		return fmt.Errorf("%w: no file selected", ErrChannelNotReady)
	}
	if file.Size < 0 {
		return fmt.Errorf("invalid file size %d", file.Size)
	}

	meta, err := EncodeMetadata(Metadata{FileName: file.Name, FileSize: file.Size, FileType: file.Type})
	if err != nil {
		return err
	}
	if err := ch.SendText(ctx, meta); err != nil {
		return fmt.Errorf("send metadata: %w", err)
	}
	util.LogDebug("sending %s (%d bytes, chunk %d)", file.Name, file.Size, chunkSize)

	if file.Size == 0 {
		rep.Progress(status.Sending, file.Name, 100)
		return nil
	}

	var offset int64
	for offset < file.Size {
		want := int64(chunkSize)
		if rest := file.Size - offset; rest < want {
			want = rest
		}

		buf := make([]byte, want)
		n, err := io.ReadFull(file.Reader, buf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: got %d of %d bytes", ErrShortFile, offset+int64(n), file.Size)
			}
			return fmt.Errorf("read %s: %w", file.Name, err)
		}

		if err := ch.SendBinary(ctx, buf); err != nil {
			return fmt.Errorf("send chunk at offset %d: %w", offset, err)
		}
		offset += int64(n)
		rep.Progress(status.Sending, file.Name, int(offset*100/file.Size))
	}

	return nil
}
