package cmd

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/Dyastin-0/gochat/client"
	"github.com/Dyastin-0/gochat/picker"
	"github.com/Dyastin-0/gochat/progress"
	"github.com/Dyastin-0/gochat/proto"
	"github.com/Dyastin-0/gochat/session"
	"github.com/Dyastin-0/gochat/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbauerster/mpb/v8"
)

// pipeREPL serves the client with a real session over net.Pipe.
func pipeREPL(t *testing.T) (*repl, *bytes.Buffer, string, net.Conn) {
	t.Helper()

	dir := t.TempDir()
	store, err := transfer.NewStore(dir)
	require.NoError(t, err)

	local, remote := net.Pipe()
	srv := proto.NewStreamConn(remote, proto.DefaultMaxFrameSize)
	sess := session.New(&session.Config{
		Transport: "tcp",
		Refusal:   proto.Error,
		Store:     store,
	}, remote.RemoteAddr(), srv)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sess.Close()
		for {
			frame, err := srv.ReadFrame()
			if err != nil {
				return
			}
			if sess.Handle(frame) != nil {
				return
			}
		}
	}()

	c := client.New(proto.NewStreamConn(local, proto.DefaultMaxFrameSize), client.Options{})
	t.Cleanup(func() {
		c.Close()
		remote.Close()
		<-done
	})

	_, err = c.Register(context.Background(), "alice")
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return newREPL(c, out, progress.New(mpb.WithOutput(io.Discard))), out, dir, remote
}

func TestREPLMessage(t *testing.T) {
	r, out, _, _ := pipeREPL(t)

	quit, err := r.exec(context.Background(), "hello world")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, out.String(), "Server:")
	assert.Contains(t, out.String(), " hello world")
}

func TestREPLBlankLineIsIgnored(t *testing.T) {
	r, out, _, _ := pipeREPL(t)

	quit, err := r.exec(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Empty(t, out.String())
}

func TestREPLQuit(t *testing.T) {
	r, _, _, _ := pipeREPL(t)

	quit, err := r.exec(context.Background(), "quit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestREPLSendFile(t *testing.T) {
	r, out, dir, _ := pipeREPL(t)

	src := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0644))

	quit, err := r.exec(context.Background(), "file "+src)
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, out.String(), "file sent")

	data, err := os.ReadFile(filepath.Join(dir, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestREPLMissingFileKeepsGoing(t *testing.T) {
	r, _, _, _ := pipeREPL(t)

	quit, err := r.exec(context.Background(), "file "+filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
	assert.False(t, quit)

	quit, err = r.exec(context.Background(), "still here")
	require.NoError(t, err)
	assert.False(t, quit)
}

func TestREPLLostConnectionQuits(t *testing.T) {
	r, _, _, remote := pipeREPL(t)
	remote.Close()

	quit, err := r.exec(context.Background(), "anyone?")
	assert.ErrorIs(t, err, client.ErrConnectionLost)
	assert.True(t, quit)
}

func TestREPLRun(t *testing.T) {
	r, out, _, _ := pipeREPL(t)

	lines := []string{"one", "", "two", "quit", "never"}
	readLine := func() (string, error) {
		if len(lines) == 0 {
			return "", io.EOF
		}
		line := lines[0]
		lines = lines[1:]
		return line, nil
	}

	require.NoError(t, r.run(context.Background(), readLine))
	assert.Contains(t, out.String(), " one\n")
	assert.Contains(t, out.String(), " two\n")
	assert.Equal(t, []string{"never"}, lines)
}

func TestREPLFilePicker(t *testing.T) {
	r, out, dir, _ := pipeREPL(t)

	src := filepath.Join(t.TempDir(), "picked.txt")
	require.NoError(t, os.WriteFile(src, []byte("chosen"), 0644))
	r.pick = func() (string, error) { return src, nil }

	quit, err := r.exec(context.Background(), "file")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, out.String(), "file sent")

	data, err := os.ReadFile(filepath.Join(dir, "picked.txt"))
	require.NoError(t, err)
	assert.Equal(t, "chosen", string(data))

	r.pick = func() (string, error) { return "", picker.ErrCanceled }
	quit, err = r.exec(context.Background(), "file")
	assert.NoError(t, err)
	assert.False(t, quit)
}
