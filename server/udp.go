package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/Dyastin-0/gochat/logger"
	"github.com/Dyastin-0/gochat/proto"
	"github.com/Dyastin-0/gochat/session"
	"github.com/Dyastin-0/gochat/transfer"
)

// Mode selects how the datagram router schedules file transfers.
type Mode string

const (
	// ModeSequential handles a transfer to completion before any other
	// datagram, parking traffic from other peers meanwhile.
	ModeSequential Mode = "sequential"

	// ModeInterleaved keeps each transfer as per-peer state so the loop
	// never waits on a single peer.
	ModeInterleaved Mode = "interleaved"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSequential, ModeInterleaved:
		return Mode(s), nil
	case "":
		return ModeInterleaved, nil
	default:
		return "", fmt.Errorf("unknown udp mode %q", s)
	}
}

const (
	DefaultSessionTTL  = 10 * time.Minute
	DefaultMaxDeferred = 1024

	maxDatagramSize = 64 * 1024
	pollInterval    = 500 * time.Millisecond
)

type UDPConfig struct {
	Mode        Mode
	IdleTimeout time.Duration
	SessionTTL  time.Duration
	MaxDeferred int
	MaxFileSize int64
	Progress    func(name string, size int64) io.Writer
	Logger      logger.Logger
}

type datagram struct {
	addr    net.Addr
	payload []byte
}

type udpReplier struct {
	conn net.PacketConn
	addr net.Addr
}

func (r udpReplier) WriteFrame(data []byte) error {
	_, err := r.conn.WriteTo(data, r.addr)
	return err
}

// UDPServer routes datagrams to one session per source address. All of its
// state is owned by the goroutine running Serve.
type UDPServer struct {
	cfg     UDPConfig
	sessCfg *session.Config
	log     logger.Logger

	conn      net.PacketConn
	peers     map[string]*session.Session
	deferred  []datagram
	buf       []byte
	lastSweep time.Time
}

func NewUDPServer(store *transfer.Store, cfg UDPConfig) *UDPServer {
	if cfg.Mode == "" {
		cfg.Mode = ModeInterleaved
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = transfer.DefaultIdleTimeout
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.MaxDeferred <= 0 {
		cfg.MaxDeferred = DefaultMaxDeferred
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &UDPServer{
		cfg: cfg,
		sessCfg: &session.Config{
			Transport:   "udp",
			Refusal:     proto.FileFail,
			Store:       store,
			MaxFileSize: cfg.MaxFileSize,
			Progress:    cfg.Progress,
			Logger:      cfg.Logger,
		},
		log:   cfg.Logger.WithStr("transport", "udp").WithStr("mode", string(cfg.Mode)),
		peers: make(map[string]*session.Session),
		buf:   make([]byte, maxDatagramSize),
	}
}

// Serve runs the router on conn until ctx is cancelled or conn is closed.
// Transfers still running on return are failed.
func (s *UDPServer) Serve(ctx context.Context, conn net.PacketConn) error {
	s.conn = conn
	s.lastSweep = time.Now()
	defer s.closeAll()

	s.log.WithStr("addr", conn.LocalAddr().String()).Info("server started")

	for {
		if ctx.Err() != nil {
			s.log.Info("server stopped")
			return nil
		}

		if len(s.deferred) > 0 {
			d := s.deferred[0]
			s.deferred = s.deferred[1:]
			s.dispatch(ctx, d.addr, d.payload)
			continue
		}

		conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, addr, err := conn.ReadFrom(s.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.maybeSweep()
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				s.log.Info("server stopped")
				return nil
			}

			s.log.WithErr(err).Warn("read error")
			continue
		}

		s.dispatch(ctx, addr, s.buf[:n])
		s.maybeSweep()
	}
}

func (s *UDPServer) session(addr net.Addr) *session.Session {
	key := addr.String()

	sess, ok := s.peers[key]
	if !ok || sess.State() == session.StateClosed {
		sess = session.New(s.sessCfg, addr, udpReplier{conn: s.conn, addr: addr})
		s.peers[key] = sess
	}

	return sess
}

func (s *UDPServer) dispatch(ctx context.Context, addr net.Addr, payload []byte) {
	sess := s.session(addr)

	if err := sess.Handle(payload); err != nil {
		s.log.WithStr("peer", addr.String()).WithErr(err).Warn("reply failed")
	}

	if s.cfg.Mode == ModeSequential && sess.Receiving() {
		s.runTransfer(ctx, sess, addr)
	}
}

// runTransfer blocks on the socket until sess's transfer ends. Datagrams
// from other peers are parked and served afterwards.
func (s *UDPServer) runTransfer(ctx context.Context, sess *session.Session, addr net.Addr) {
	key := addr.String()

	for sess.Receiving() {
		if ctx.Err() != nil {
			sess.Expire()
			return
		}

		deadline := sess.LastActive().Add(s.cfg.IdleTimeout)
		if poll := time.Now().Add(pollInterval); poll.Before(deadline) {
			deadline = poll
		}
		s.conn.SetReadDeadline(deadline)

		n, from, err := s.conn.ReadFrom(s.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if time.Since(sess.LastActive()) >= s.cfg.IdleTimeout {
					sess.Expire()
				}
				continue
			}

			s.log.WithErr(err).Warn("read error during transfer")
			sess.Expire()
			return
		}

		if from.String() != key {
			s.park(from, s.buf[:n])
			continue
		}

		if err := sess.Handle(s.buf[:n]); err != nil {
			s.log.WithStr("peer", key).WithErr(err).Warn("reply failed")
		}
	}
}

func (s *UDPServer) park(addr net.Addr, payload []byte) {
	if len(s.deferred) >= s.cfg.MaxDeferred {
		s.log.WithStr("peer", addr.String()).Warn("deferred queue full, dropping datagram")
		return
	}

	s.deferred = append(s.deferred, datagram{
		addr:    addr,
		payload: append([]byte(nil), payload...),
	})
}

func (s *UDPServer) maybeSweep() {
	if time.Since(s.lastSweep) < pollInterval {
		return
	}
	s.sweep(time.Now())
}

// sweep fails stalled transfers and forgets peers idle past the TTL.
func (s *UDPServer) sweep(now time.Time) {
	s.lastSweep = now

	for key, sess := range s.peers {
		idle := now.Sub(sess.LastActive())

		if sess.Receiving() {
			if idle >= s.cfg.IdleTimeout {
				sess.Expire()
			}
			continue
		}

		if idle >= s.cfg.SessionTTL || sess.State() == session.StateClosed {
			sess.Close()
			delete(s.peers, key)
		}
	}
}

func (s *UDPServer) closeAll() {
	for key, sess := range s.peers {
		sess.Expire()
		sess.Close()
		delete(s.peers, key)
	}
}
