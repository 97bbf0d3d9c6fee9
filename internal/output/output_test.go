package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newPlainWriter(buf *bytes.Buffer) *Writer {
	w := New(buf)
	w.color = false // deterministic output regardless of environment
	return w
}

func TestWriter_Levels(t *testing.T) {
	var buf bytes.Buffer
	w := newPlainWriter(&buf)

	w.Success("index built")
	w.Warning("ollama unreachable")
	w.Error("config invalid")

	out := buf.String()
	assert.Contains(t, out, "✓ index built\n")
	assert.Contains(t, out, "! ollama unreachable\n")
	assert.Contains(t, out, "✗ config invalid\n")
}

func TestWriter_StatusGutter(t *testing.T) {
	var buf bytes.Buffer
	w := newPlainWriter(&buf)

	w.Status("→", "next step")
	w.Status("", "indented continuation")

	assert.Equal(t, "→ next step\n  indented continuation\n", buf.String())
}

func TestWriter_Formatting(t *testing.T) {
	var buf bytes.Buffer
	w := newPlainWriter(&buf)

	w.Successf("indexed %d chunks", 42)
	w.Warningf("%s missing", "model")
	w.Statusf("*", "epoch %d", 7)

	out := buf.String()
	assert.Contains(t, out, "indexed 42 chunks")
	assert.Contains(t, out, "model missing")
	assert.Contains(t, out, "* epoch 7")
}

func TestWriter_Newline(t *testing.T) {
	var buf bytes.Buffer
	w := newPlainWriter(&buf)

	w.Newline()
	assert.Equal(t, "\n", buf.String())
}
