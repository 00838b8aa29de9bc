package status

import "sync"

// Entry is one recorded status line.
type Entry struct {
	Message  string
	Severity Severity
}

// Recorder is a Reporter that keeps everything it receives.
type Recorder struct {
	mu       sync.Mutex
	entries  []Entry
	progress map[Direction][]int
}

func (r *Recorder) Status(message string, severity Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Message: message, Severity: severity})
}

func (r *Recorder) Progress(dir Direction, _ string, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress == nil {
		r.progress = make(map[Direction][]int)
	}
	r.progress[dir] = append(r.progress[dir], percent)
}

// Entries returns a copy of the recorded status lines.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// ProgressOf returns a copy of the percentages recorded for dir.
func (r *Recorder) ProgressOf(dir Direction) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.progress[dir]...)
}

// Last returns the most recent status line, if any.
func (r *Recorder) Last() (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return Entry{}, false
	}
	return r.entries[len(r.entries)-1], true
}

// Has reports whether any recorded line has the given severity.
func (r *Recorder) Has(severity Severity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Severity == severity {
			return true
		}
	}
	return false
}
