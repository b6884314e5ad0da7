package app

import (
	"bytes"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// DefaultLogLines is the number of lines kept by a LogBuffer.
const DefaultLogLines = 500

// LogBuffer keeps the most recent log lines for the log dialog.
type LogBuffer struct {
	mu       sync.Mutex
	lines    []string
	max      int
	partial  []byte
	onLine   func(string)
	previous io.Writer
}

// NewLogBuffer returns a buffer holding up to max lines.
func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = DefaultLogLines
	}
	return &LogBuffer{max: max}
}

// Write implements io.Writer. Complete lines are stored, a trailing partial
// line waits for its newline.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.partial = append(b.partial, p...)
	var added []string
	for {
		i := bytes.IndexByte(b.partial, '\n')
		if i < 0 {
			break
		}
		line := string(b.partial[:i])
		b.partial = b.partial[i+1:]
		b.lines = append(b.lines, line)
		added = append(added, line)
	}
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append([]string(nil), b.lines[over:]...)
	}
	cb := b.onLine
	b.mu.Unlock()

	if cb != nil {
		for _, l := range added {
			cb(l)
		}
	}
	return len(p), nil
}

// Lines returns a copy of the stored lines, oldest first.
func (b *LogBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

// String joins the stored lines.
func (b *LogBuffer) String() string {
	return strings.Join(b.Lines(), "\n")
}

// OnLine sets a callback invoked for every new line. It runs on the
// goroutine that logged.
func (b *LogBuffer) OnLine(cb func(string)) {
	b.mu.Lock()
	b.onLine = cb
	b.mu.Unlock()
}

// Install tees the standard logger into the buffer.
func (b *LogBuffer) Install() {
	b.previous = log.Writer()
	if b.previous == nil {
		b.previous = os.Stderr
	}
	log.SetOutput(io.MultiWriter(b.previous, b))
}

// Uninstall restores the logger output replaced by Install.
func (b *LogBuffer) Uninstall() {
	if b.previous != nil {
		log.SetOutput(b.previous)
		b.previous = nil
	}
}
