package logger

import (
	"bytes"
	"sync"
)

// DefaultRingSize is the number of lines kept for the log stream.
const DefaultRingSize = 500

// Ring keeps the most recent log lines in memory so that collaborators
// (HTTP /logs, CLI) can display the supervisor's log stream.
// It is safe for concurrent use.
type Ring struct {
	mu      sync.Mutex
	lines   []string
	next    int
	full    bool
	partial []byte
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{lines: make([]string, size)}
}

// Write implements io.Writer. Input is split on '\n'; an unterminated tail is
// held until the next write completes it.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data := p
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			r.partial = append(r.partial, data...)
			break
		}
		line := append(r.partial, data[:i]...)
		r.partial = nil
		r.push(string(line))
		data = data[i+1:]
	}
	return len(p), nil
}

func (r *Ring) push(line string) {
	r.lines[r.next] = line
	r.next++
	if r.next == len(r.lines) {
		r.next = 0
		r.full = true
	}
}

// Lines returns up to n most recent lines, oldest first. n <= 0 returns all.
func (r *Ring) Lines(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := r.next
	if r.full {
		count = len(r.lines)
	}
	if n <= 0 || n > count {
		n = count
	}
	out := make([]string, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.lines)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}
