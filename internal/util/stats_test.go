package util

import "testing"

func TestFormatFileSize(t *testing.T) {
	testCases := []struct {
		size int64
		want string
	}{
		{0, "0 Bytes"},
		{1, "1 Bytes"},
		{1023, "1023 Bytes"},
		{1024, "1 KB"},
		{40000, "39.06 KB"},
		{1536 * 1024, "1.5 MB"},
		{3 * 1024 * 1024 * 1024, "3 GB"},
		{5 * 1024 * 1024 * 1024 * 1024, "5120 GB"},
	}

	for _, tc := range testCases {
		if got := FormatFileSize(tc.size); got != tc.want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", tc.size, got, tc.want)
		}
	}
}

func TestFormatBytesFixedWidth(t *testing.T) {
	for _, b := range []float64{0, 99, 100, 1536, 99 * 1024 * 1024, 1 << 40} {
		if got := formatBytes(b); len(got) != 8 {
			t.Errorf("formatBytes(%v) = %q, want 8 chars", b, got)
		}
	}
}

func TestStatsCounters(t *testing.T) {
	s := &stats{}
	s.AddSent(10)
	s.AddSent(5)
	s.AddRecv(7)
	s.AddFileSent()
	s.AddFileRecv()
	s.AddFileRecv()

	if got := s.BytesSent.Load(); got != 15 {
		t.Errorf("BytesSent = %d, want 15", got)
	}
	if got := s.BytesRecv.Load(); got != 7 {
		t.Errorf("BytesRecv = %d, want 7", got)
	}
	if got := s.FilesSent.Load(); got != 1 {
		t.Errorf("FilesSent = %d, want 1", got)
	}
	if got := s.FilesRecv.Load(); got != 2 {
		t.Errorf("FilesRecv = %d, want 2", got)
	}
}
