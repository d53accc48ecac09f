// Package server runs the chat protocol over TCP, with one worker per
// connection, and over UDP, with a single datagram router.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Dyastin-0/gochat/logger"
	"github.com/Dyastin-0/gochat/proto"
	"github.com/Dyastin-0/gochat/session"
	"github.com/Dyastin-0/gochat/transfer"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxSessions  = 256
	DefaultDrainTimeout = 10 * time.Second
)

type TCPConfig struct {
	MaxSessions  int64
	IdleTimeout  time.Duration
	DrainTimeout time.Duration
	MaxFrameSize uint32
	MaxFileSize  int64
	Progress     func(name string, size int64) io.Writer
	Logger       logger.Logger
}

type TCPServer struct {
	cfg     TCPConfig
	sessCfg *session.Config
	log     logger.Logger
	sem     *semaphore.Weighted

	mu    sync.Mutex
	conns map[*tcpConn]struct{}
	wg    sync.WaitGroup
}

type tcpConn struct {
	conn net.Conn
	sess *session.Session
}

func NewTCPServer(store *transfer.Store, cfg TCPConfig) *TCPServer {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = proto.DefaultMaxFrameSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &TCPServer{
		cfg: cfg,
		sessCfg: &session.Config{
			Transport:   "tcp",
			Refusal:     proto.Error,
			Store:       store,
			MaxFileSize: cfg.MaxFileSize,
			Progress:    cfg.Progress,
			Logger:      cfg.Logger,
		},
		log:   cfg.Logger.WithStr("transport", "tcp"),
		sem:   semaphore.NewWeighted(cfg.MaxSessions),
		conns: make(map[*tcpConn]struct{}),
	}
}

// Serve accepts connections until ctx is cancelled or ln is closed. At most
// MaxSessions connections are served at once, further ones wait in the
// listen backlog. On return every session has ended.
func (s *TCPServer) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	s.log.WithStr("addr", ln.Addr().String()).
		WithInt64("max_sessions", s.cfg.MaxSessions).
		Info("server started")

	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return s.shutdown()
		}

		conn, err := ln.Accept()
		if err != nil {
			s.sem.Release(1)

			select {
			case <-ctx.Done():
				return s.shutdown()
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				s.shutdown()
				return nil
			}

			s.log.WithErr(err).Warn("accept error")
			continue
		}

		s.wg.Add(1)
		go func(conn net.Conn) {
			defer s.wg.Done()
			defer s.sem.Release(1)

			s.handleConn(ctx, conn)
		}(conn)
	}
}

func (s *TCPServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	fc := proto.NewStreamConn(conn, s.cfg.MaxFrameSize)
	sess := session.New(s.sessCfg, conn.RemoteAddr(), fc)
	tc := &tcpConn{conn: conn, sess: sess}

	s.track(tc)
	defer s.untrack(tc)

	s.log.WithStr("peer", conn.RemoteAddr().String()).Info("new connection")

	for {
		var deadline time.Time
		if sess.Receiving() && s.cfg.IdleTimeout > 0 {
			deadline = time.Now().Add(s.cfg.IdleTimeout)
		}
		conn.SetReadDeadline(deadline)

		// shutdown interrupts idle sessions, a running transfer may finish
		if ctx.Err() != nil && !sess.Receiving() {
			sess.Close()
			return
		}

		payload, err := fc.ReadFrame()
		if err != nil {
			s.readFailed(sess, err)
			return
		}

		if err := sess.Handle(payload); err != nil {
			s.log.WithStr("peer", conn.RemoteAddr().String()).WithErr(err).Debug("reply failed")
			sess.Close()
			return
		}
	}
}

func (s *TCPServer) readFailed(sess *session.Session, err error) {
	var netErr net.Error

	switch {
	case errors.As(err, &netErr) && netErr.Timeout() && sess.Receiving():
		sess.Expire()

	case errors.Is(err, proto.ErrFrameTooLarge):
		s.log.WithErr(err).Warn("protocol error, closing connection")

	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):

	default:
		if !(errors.As(err, &netErr) && netErr.Timeout()) {
			s.log.WithErr(err).Debug("read error")
		}
	}

	sess.Close()
}

func (s *TCPServer) track(tc *tcpConn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns[tc] = struct{}{}
}

func (s *TCPServer) untrack(tc *tcpConn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, tc)
}

// ActiveSessions returns the number of connections being served.
func (s *TCPServer) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.conns)
}

func (s *TCPServer) shutdown() error {
	s.mu.Lock()
	for tc := range s.conns {
		if !tc.sess.Receiving() {
			tc.conn.SetReadDeadline(time.Now())
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.DrainTimeout):
		s.log.Warn("drain timeout, closing remaining connections")

		s.mu.Lock()
		for tc := range s.conns {
			tc.conn.Close()
		}
		s.mu.Unlock()

		<-done
	}

	s.log.Info("server stopped")
	return nil
}
