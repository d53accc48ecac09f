package cmd

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/Dyastin-0/gochat/config"
	"github.com/Dyastin-0/gochat/logger"
	"github.com/Dyastin-0/gochat/progress"
	"github.com/Dyastin-0/gochat/server"
	"github.com/Dyastin-0/gochat/transfer"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path := cfg.Log.Path
	if path == "" {
		path, err = logger.LogPath("server")
		if err != nil {
			return err
		}
	}

	log, err := logger.New(logger.Options{
		Path:   path,
		Level:  cfg.Log.Level,
		Stdout: true,
	})
	if err != nil {
		return err
	}

	return Serve(ctx, cfg, log)
}

// Serve binds the configured listeners and runs them until ctx is done.
// A bind failure on either transport closes the other and is returned.
func Serve(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	var sink func(name string, size int64) io.Writer
	if cfg.Progress {
		sink = func(name string, size int64) io.Writer {
			return progress.DefaultBar(size, "receiving "+name)
		}
	}

	var (
		ln   net.Listener
		conn net.PacketConn
		tcp  *server.TCPServer
		udp  *server.UDPServer
	)

	if cfg.TCPAddr != "" {
		store, err := transfer.NewStore(cfg.TCPDir())
		if err != nil {
			return err
		}

		ln, err = net.Listen("tcp", cfg.TCPAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on tcp %s: %w", cfg.TCPAddr, err)
		}

		tcp = server.NewTCPServer(store, server.TCPConfig{
			MaxSessions:  cfg.MaxSessions,
			IdleTimeout:  cfg.IdleTimeout,
			DrainTimeout: cfg.DrainTimeout,
			MaxFrameSize: cfg.MaxFrameSize,
			MaxFileSize:  cfg.MaxFileSize,
			Progress:     sink,
			Logger:       log,
		})
	}

	if cfg.UDPAddr != "" {
		store, err := transfer.NewStore(cfg.UDPDir())
		if err == nil {
			conn, err = net.ListenPacket("udp", cfg.UDPAddr)
			if err != nil {
				err = fmt.Errorf("failed to listen on udp %s: %w", cfg.UDPAddr, err)
			}
		}
		if err != nil {
			if ln != nil {
				ln.Close()
			}
			return err
		}

		mode, err := server.ParseMode(cfg.UDPMode)
		if err != nil {
			conn.Close()
			if ln != nil {
				ln.Close()
			}
			return err
		}

		udp = server.NewUDPServer(store, server.UDPConfig{
			Mode:        mode,
			IdleTimeout: cfg.IdleTimeout,
			SessionTTL:  cfg.SessionTTL,
			MaxFileSize: cfg.MaxFileSize,
			Progress:    sink,
			Logger:      log,
		})
	}

	g, ctx := errgroup.WithContext(ctx)

	if tcp != nil {
		g.Go(func() error {
			return tcp.Serve(ctx, ln)
		})
	}

	if udp != nil {
		g.Go(func() error {
			defer conn.Close()
			return udp.Serve(ctx, conn)
		})
	}

	return g.Wait()
}
