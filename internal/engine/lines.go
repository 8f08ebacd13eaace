package engine

import (
	"bytes"
	"strings"
	"sync"
)

// LineWriter is an io.Writer that splits a byte stream on '\n' and hands
// each complete line to a callback. Trailing partial content is kept until
// the next Write or Flush.
type LineWriter struct {
	mu     sync.Mutex
	buf    []byte
	onLine func(string)
	lines  int
}

// NewLineWriter returns a LineWriter calling onLine for each line.
func NewLineWriter(onLine func(string)) *LineWriter {
	return &LineWriter{onLine: onLine}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	start := 0
	for {
		i := bytes.IndexByte(w.buf[start:], '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[start : start+i])
		start += i + 1
	}
	if start > 0 {
		w.buf = append(w.buf[:0], w.buf[start:]...)
	}
	return len(p), nil
}

// Flush delivers any non-empty remainder as a final line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(bytes.TrimSpace(w.buf)) > 0 {
		w.emit(w.buf)
	}
	w.buf = nil
}

// Lines reports how many lines have been delivered.
func (w *LineWriter) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

func (w *LineWriter) emit(raw []byte) {
	line := strings.ToValidUTF8(string(raw), "�")
	line = strings.TrimSuffix(line, "\r")
	w.lines++
	if w.onLine != nil {
		w.onLine(line)
	}
}

// cappedBuffer collects output up to limit bytes. Past the limit it drops
// the rest and calls onOverflow once.
type cappedBuffer struct {
	limit      int
	onOverflow func()

	mu         sync.Mutex
	buf        bytes.Buffer
	overflowed bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.overflowed {
		return len(p), nil
	}
	room := b.limit - b.buf.Len()
	if b.limit > 0 && len(p) > room {
		b.buf.Write(p[:room])
		b.overflowed = true
		if b.onOverflow != nil {
			b.onOverflow()
		}
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *cappedBuffer) Overflowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflowed
}
