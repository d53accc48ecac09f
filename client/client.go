// Package client is the synchronous peer side of the chat protocol. A
// Client has at most one request outstanding and is not safe for
// concurrent use.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/Dyastin-0/gochat/logger"
	"github.com/Dyastin-0/gochat/proto"
	"github.com/Dyastin-0/gochat/transfer"
	"github.com/dustin/go-humanize"
)

type State uint32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateReady:
		return "READY"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

var (
	ErrNotReady        = errors.New("client is not ready")
	ErrReplyTimeout    = errors.New("timed out waiting for reply")
	ErrConnectionLost  = errors.New("connection lost")
	ErrUnexpectedReply = errors.New("unexpected reply")
	ErrTransferRefused = errors.New("server refused the file")
	ErrTransferFailed  = errors.New("server reported a failed transfer")
)

type Options struct {
	ChunkSize    int
	ReplyTimeout time.Duration

	// IdleTimeout is how long the server waits for a missing chunk before
	// it fails a transfer. The final reply to a file is awaited for
	// IdleTimeout plus ReplyTimeout.
	IdleTimeout time.Duration
	Logger      logger.Logger
}

type Client struct {
	t        Transport
	opts     Options
	log      logger.Logger
	state    State
	username string
	buf      []byte

	// stale is set when a reply was given up on and may still arrive.
	stale bool
}

func New(t Transport, opts Options) *Client {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = transfer.DefaultChunkSize
	}
	if opts.ChunkSize > transfer.MaxChunkSize {
		opts.ChunkSize = transfer.MaxChunkSize
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = DefaultReplyTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = transfer.DefaultIdleTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	return &Client{
		t:        t,
		opts:     opts,
		log:      opts.Logger,
		state:    StateConnecting,
		username: DefaultUsername,
		buf:      make([]byte, opts.ChunkSize),
	}
}

func (c *Client) State() State {
	return c.state
}

func (c *Client) Username() string {
	return c.username
}

// Register announces name to the server. A USER_FAIL reply is not an error,
// the client proceeds under the default identity and ok is false.
func (c *Client) Register(ctx context.Context, name string) (ok bool, err error) {
	if c.state == StateClosed {
		return false, ErrConnectionLost
	}

	c.state = StateAuthenticating

	reply, err := c.request(ctx, proto.EncodeUser(name))
	if err != nil {
		return false, err
	}

	switch reply {
	case proto.UserOK:
		c.username = name
		ok = true
	case proto.UserFail:
		c.username = DefaultUsername
	default:
		return false, fmt.Errorf("%w to USER: %q", ErrUnexpectedReply, reply)
	}

	c.state = StateReady
	c.log.WithStr("user", c.username).WithBool("accepted", ok).Debug("registered")

	return ok, nil
}

// SendMessage sends text and returns the server's echo.
func (c *Client) SendMessage(ctx context.Context, text string) (string, error) {
	if c.state != StateReady {
		return "", ErrNotReady
	}

	return c.request(ctx, []byte(text))
}

// SendFile uploads the file at path under its base name. progress, when
// non-nil, returns a sink that sees every byte sent.
func (c *Client) SendFile(ctx context.Context, path string, progress func(name string, size int64) io.Writer) (int64, error) {
	if c.state != StateReady {
		return 0, ErrNotReady
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}

	name := filepath.Base(path)
	size := info.Size()

	reply, err := c.request(ctx, proto.EncodeFile(name, size))
	if err != nil {
		return 0, err
	}

	switch reply {
	case proto.Ready:
	case proto.Error, proto.FileFail:
		return 0, fmt.Errorf("%w: %s", ErrTransferRefused, name)
	default:
		return 0, fmt.Errorf("%w to FILE: %q", ErrUnexpectedReply, reply)
	}

	var sink io.Writer
	if progress != nil {
		sink = progress(name, size)
	}

	sent, sendErr := transfer.Send(ctx, c.t, f, size, c.buf, sink)
	if sendErr != nil && errors.Is(sendErr, ctx.Err()) {
		// end the transfer so the next reply read is not stale
		c.t.WriteFrame(nil)
		c.awaitBounded()
		return sent, sendErr
	}
	if sendErr != nil && !errors.Is(sendErr, transfer.ErrShortRead) {
		c.state = StateClosed
		return sent, sendErr
	}

	final, err := c.awaitWithin(ctx, c.opts.ReplyTimeout+c.opts.IdleTimeout)
	if err != nil {
		return sent, err
	}
	if sendErr != nil {
		return sent, sendErr
	}

	switch final {
	case proto.FileOK:
		c.log.WithStr("file", name).WithStr("size", humanize.Bytes(uint64(size))).Debug("file sent")
		return sent, nil
	case proto.FileFail:
		return sent, fmt.Errorf("%w: %s", ErrTransferFailed, name)
	default:
		return sent, fmt.Errorf("%w after transfer: %q", ErrUnexpectedReply, final)
	}
}

func (c *Client) Close() error {
	c.state = StateClosed

	return c.t.Close()
}

func (c *Client) request(ctx context.Context, frame []byte) (string, error) {
	if c.stale {
		if d, ok := c.t.(discarder); ok {
			if err := d.Discard(); err != nil {
				c.log.WithErr(err).Debug("failed to discard stale replies")
			}
		}
		c.stale = false
	}

	if err := c.t.WriteFrame(frame); err != nil {
		c.state = StateClosed
		return "", fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}

	return c.await(ctx)
}

// await reads one reply, bounded by ctx and the reply timeout.
func (c *Client) await(ctx context.Context) (string, error) {
	return c.awaitWithin(ctx, c.opts.ReplyTimeout)
}

func (c *Client) awaitWithin(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.t.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		c.t.SetReadDeadline(time.Now())
	})
	defer stop()

	reply, err := c.t.ReadFrame()
	if err != nil {
		if ctx.Err() != nil {
			return "", c.abandon(ctx.Err())
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", c.abandon(ErrReplyTimeout)
		}

		c.state = StateClosed
		return "", fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}

	return string(reply), nil
}

// abandon gives up on an outstanding reply. A stream may hold part of the
// late reply, so it is closed. A datagram socket stays usable once the
// late reply is discarded.
func (c *Client) abandon(err error) error {
	if _, ok := c.t.(discarder); ok {
		c.stale = true
		return err
	}

	c.state = StateClosed
	c.t.Close()

	return fmt.Errorf("%w: %w", ErrConnectionLost, err)
}

func (c *Client) awaitBounded() {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ReplyTimeout)
	defer cancel()

	c.await(ctx)
}
