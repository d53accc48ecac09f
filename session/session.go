// Package session implements the server side of the chat protocol for one
// peer. A Session is fed one frame at a time, which lets a stream worker and
// a datagram router drive the same state machine.
package session

import (
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/Dyastin-0/gochat/logger"
	"github.com/Dyastin-0/gochat/proto"
	"github.com/Dyastin-0/gochat/transfer"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

type State uint32

const (
	StateAwaitUsername State = iota
	StateIdentified
	StateReceivingFile
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitUsername:
		return "AWAIT_USERNAME"
	case StateIdentified:
		return "IDENTIFIED"
	case StateReceivingFile:
		return "RECEIVING_FILE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

var ErrClosed = errors.New("session closed")

// Replier sends one frame back to the peer.
type Replier interface {
	WriteFrame(data []byte) error
}

type Config struct {
	// Transport is only used for logging.
	Transport string

	// Refusal is the token sent when a destination cannot be opened,
	// proto.Error on streams and proto.FileFail on datagrams.
	Refusal string

	Store       *transfer.Store
	MaxFileSize int64

	// Progress optionally returns a sink for the bytes of one transfer.
	Progress func(name string, size int64) io.Writer

	Logger logger.Logger
}

// Session handles frames for one peer. Handle, Expire and Close must be
// called from a single goroutine. State may be read from any goroutine.
type Session struct {
	ID string

	cfg        *Config
	out        Replier
	peer       net.Addr
	identity   Identity
	state      atomic.Uint32
	inbound    *transfer.Request
	lastActive time.Time
	log        logger.Logger
	base       logger.Logger
}

func New(cfg *Config, peer net.Addr, out Replier) *Session {
	id := uuid.New().String()

	base := cfg.Logger
	if base == nil {
		base = logger.Nop()
	}
	base = base.WithStr("session", id[:8]).WithStr("transport", cfg.Transport)
	if peer != nil {
		base = base.WithStr("peer", peer.String())
	}

	s := &Session{
		ID:         id,
		cfg:        cfg,
		out:        out,
		peer:       peer,
		identity:   Unidentified{Addr: peer},
		lastActive: time.Now(),
		base:       base,
	}
	s.log = base.WithStr("user", s.identity.Label())

	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(uint32(state))
}

func (s *Session) Identity() Identity {
	return s.identity
}

func (s *Session) LastActive() time.Time {
	return s.lastActive
}

func (s *Session) Receiving() bool {
	return s.State() == StateReceivingFile
}

// Transfer returns the transfer in progress, or nil.
func (s *Session) Transfer() *transfer.Request {
	return s.inbound
}

// Handle processes one frame. The returned error is only non-nil when the
// session is closed or a reply could not be written.
func (s *Session) Handle(payload []byte) error {
	if s.State() == StateClosed {
		return ErrClosed
	}

	s.lastActive = time.Now()

	if s.State() == StateReceivingFile {
		return s.receiveChunk(payload)
	}

	frame, err := proto.Classify(payload)

	switch frame.Kind {
	case proto.KindUser:
		return s.register(frame.Name)

	case proto.KindFile:
		if err != nil {
			s.log.WithErr(err).Warn("rejected file header")
			s.setState(StateIdentified)
			return s.reply([]byte(s.cfg.Refusal))
		}
		return s.beginTransfer(frame.Name, frame.Size)

	default:
		s.log.WithStr("message", string(payload)).Info("message")
		s.setState(StateIdentified)
		return s.reply(payload)
	}
}

func (s *Session) register(name string) error {
	s.setState(StateIdentified)

	// an empty name is refused instead of registered, the identity stays
	if name == "" {
		s.log.Warn("empty username")
		return s.reply([]byte(proto.UserFail))
	}

	s.identity = Identified{Name: truncateName(name), Addr: s.peer}
	s.log = s.base.WithStr("user", s.identity.Label())
	s.log.Info("client identified")

	return s.reply([]byte(proto.UserOK))
}

func (s *Session) beginTransfer(name string, size int64) error {
	var progress io.Writer
	if s.cfg.Progress != nil {
		progress = s.cfg.Progress(name, size)
	}

	req, err := s.cfg.Store.Accept(name, size, s.cfg.MaxFileSize, progress)
	if err != nil {
		s.log.WithStr("file", name).WithErr(err).Warn("cannot open destination")
		s.setState(StateIdentified)
		return s.reply([]byte(s.cfg.Refusal))
	}

	s.inbound = req
	s.setState(StateReceivingFile)
	s.log.WithStr("file", req.Name).
		WithStr("size", humanize.Bytes(uint64(size))).
		Info("receiving file")

	if err := s.reply([]byte(proto.Ready)); err != nil {
		s.abort()
		return err
	}

	if req.Complete() {
		return s.finishTransfer()
	}

	return nil
}

func (s *Session) receiveChunk(chunk []byte) error {
	if len(chunk) == 0 {
		return s.finishTransfer()
	}

	if err := s.inbound.Write(chunk); err != nil {
		if errors.Is(err, transfer.ErrOverflow) {
			s.log.WithStr("file", s.inbound.Name).WithErr(err).Warn("transfer aborted")
			s.abort()
			return s.reply([]byte(proto.FileFail))
		}

		// keep consuming the declared bytes so they are not read as frames
		s.log.WithStr("file", s.inbound.Name).WithErr(err).Warn("discarding rest of transfer")
	}

	if s.inbound.Complete() {
		return s.finishTransfer()
	}

	return nil
}

func (s *Session) finishTransfer() error {
	req := s.inbound
	s.inbound = nil
	s.setState(StateIdentified)

	path, err := req.Finish()
	if err != nil {
		s.log.WithStr("file", req.Name).WithErr(err).Warn("file transfer incomplete")
		return s.reply([]byte(proto.FileFail))
	}

	s.log.WithStr("file", path).
		WithStr("size", humanize.Bytes(uint64(req.Size))).
		WithStr("took", time.Since(req.Started).Round(time.Millisecond).String()).
		Info("file received")

	return s.reply([]byte(proto.FileOK))
}

func (s *Session) abort() {
	if s.inbound != nil {
		s.inbound.Abort()
		s.inbound = nil
	}
	if s.State() == StateReceivingFile {
		s.setState(StateIdentified)
	}
}

// Expire fails a stalled transfer and tells the peer.
func (s *Session) Expire() error {
	if !s.Receiving() {
		return nil
	}

	s.log.WithStr("file", s.inbound.Name).
		WithInt64("received", s.inbound.Transferred).
		WithInt64("size", s.inbound.Size).
		Warn(transfer.ErrStalled.Error())
	s.abort()

	return s.reply([]byte(proto.FileFail))
}

// Close ends the session, discarding any partial artifact.
func (s *Session) Close() {
	if s.State() == StateClosed {
		return
	}

	if s.inbound != nil {
		s.log.WithStr("file", s.inbound.Name).Warn("peer left during transfer")
	}
	s.abort()
	s.setState(StateClosed)
	s.log.Info("client disconnected")
}

func (s *Session) reply(data []byte) error {
	return s.out.WriteFrame(data)
}
