package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineWriter(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{"single line", []string{"hello\n"}, []string{"hello"}},
		{"split across writes", []string{"➤ Bro", "wser Caches\n→ Chr", "ome\n"}, []string{"➤ Browser Caches", "→ Chrome"}},
		{"several in one write", []string{"a\nb\nc\n"}, []string{"a", "b", "c"}},
		{"crlf", []string{"a\r\nb\r\n"}, []string{"a", "b"}},
		{"remainder flushed", []string{"a\nrest"}, []string{"a", "rest"}},
		{"blank remainder dropped", []string{"a\n  "}, []string{"a"}},
		{"empty lines kept", []string{"a\n\nb\n"}, []string{"a", "", "b"}},
		{"multibyte split", []string{"\xe2\x9e", "\xa4 X\n"}, []string{"➤ X"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			w := NewLineWriter(func(line string) { got = append(got, line) })
			for _, c := range tt.chunks {
				n, err := w.Write([]byte(c))
				assert.NoError(t, err)
				assert.Equal(t, len(c), n)
			}
			w.Flush()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), w.Lines())
		})
	}
}

func TestLineWriter_InvalidUTF8(t *testing.T) {
	var got []string
	w := NewLineWriter(func(line string) { got = append(got, line) })
	_, _ = w.Write([]byte("bad \xff byte\n"))
	assert.Equal(t, []string{"bad � byte"}, got)
}

func TestCappedBuffer(t *testing.T) {
	calls := 0
	b := &cappedBuffer{limit: 5, onOverflow: func() { calls++ }}
	_, _ = b.Write([]byte("abc"))
	assert.False(t, b.Overflowed())
	_, _ = b.Write([]byte("defg"))
	_, _ = b.Write([]byte("hij"))
	assert.True(t, b.Overflowed())
	assert.Equal(t, "abcde", b.String())
	assert.Equal(t, 1, calls)
}
