package util

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide transfer counter.
var Stats = &stats{}

type stats struct {
	FilesSent atomic.Int64 // files fully handed to the data channel
	FilesRecv atomic.Int64 // files fully reassembled and saved
	BytesSent atomic.Int64 // cumulative bytes written to the data channel
	BytesRecv atomic.Int64 // cumulative bytes read from the data channel
}

func (s *stats) AddFileSent()  { s.FilesSent.Add(1) }
func (s *stats) AddFileRecv()  { s.FilesRecv.Add(1) }
func (s *stats) AddSent(n int) { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int) { s.BytesRecv.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs transfer throughput
// every interval while there is traffic. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		seconds := interval.Seconds()
		var prevSent, prevRecv int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()

				outS := float64(sent-prevSent) / seconds
				inS := float64(recv-prevRecv) / seconds

				if inS > 10 || outS > 10 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, Stats.FilesRecv.Load(), Stats.FilesSent.Load()))
				}

				prevSent = sent
				prevRecv = recv

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, filesIn, filesOut int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Files: %2d↓ %2d↑",
		formatBytes(inS),
		formatBytes(outS),
		filesIn,
		filesOut,
	)
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a file size for status lines, e.g. "0 Bytes",
// "39.06 KB", "1.5 MB". Sizes beyond the GB range stay in GB.
func FormatFileSize(size int64) string {
	if size <= 0 {
		return "0 Bytes"
	}

	const k = 1024.0
	i := int(math.Floor(math.Log(float64(size)) / math.Log(k)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}

	v := float64(size) / math.Pow(k, float64(i))
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + sizeUnits[i]
}
