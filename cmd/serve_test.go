package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dyastin-0/gochat/config"
	"github.com/Dyastin-0/gochat/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeStartsAndStops(t *testing.T) {
	cfg := config.Default()
	cfg.TCPAddr = "127.0.0.1:0"
	cfg.UDPAddr = "127.0.0.1:0"
	cfg.Dir = t.TempDir()
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, cfg, logger.Nop())
	}()

	require.Eventually(t, func() bool {
		_, tcpErr := os.Stat(filepath.Join(cfg.Dir, "tcp_received"))
		_, udpErr := os.Stat(filepath.Join(cfg.Dir, "udp_received"))
		return tcpErr == nil && udpErr == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestServeBindFailure(t *testing.T) {
	cfg := config.Default()
	cfg.TCPAddr = "127.0.0.1:0"
	cfg.UDPAddr = "not-an-address"
	cfg.Dir = t.TempDir()

	err := Serve(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}
