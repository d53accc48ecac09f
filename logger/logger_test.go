package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFieldsAreKept(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.WithStr("peer", "127.0.0.1:9000").
		WithInt64("size", 5).
		WithBool("identified", true).
		WithErr(errors.New("boom")).
		Info("file received")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "file received", line["message"])
	assert.Equal(t, "127.0.0.1:9000", line["peer"])
	assert.Equal(t, float64(5), line["size"])
	assert.Equal(t, true, line["identified"])
	assert.Equal(t, "boom", line["error"])
}

func TestWithDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	_ = l.WithStr("user", "alice")
	l.Info("plain")

	assert.NotContains(t, buf.String(), "alice")
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gochat.log")

	l, err := New(Options{Path: path, Level: "warn"})
	require.NoError(t, err)

	l.Info("dropped")
	l.Warn("kept")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "kept")
	assert.NotContains(t, string(content), "dropped")
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	l, err := New(Options{})
	require.NoError(t, err)
	l.WithStr("k", "v").Info("nothing")
	Nop().Error("nothing")
}
