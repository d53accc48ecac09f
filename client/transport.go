package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Dyastin-0/gochat/proto"
	"github.com/Dyastin-0/gochat/transfer"
)

// Transport carries whole frames to and from the server.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// discarder is a Transport that can drop replies that arrived after they
// were given up on.
type discarder interface {
	Discard() error
}

// datagramConn maps one frame to one datagram on a connected UDP socket.
type datagramConn struct {
	net.Conn
	buf []byte
}

func (d *datagramConn) ReadFrame() ([]byte, error) {
	n, err := d.Read(d.buf)
	if err != nil {
		return nil, err
	}
	return d.buf[:n], nil
}

func (d *datagramConn) WriteFrame(data []byte) error {
	_, err := d.Write(data)
	return err
}

// Discard drops every datagram already queued on the socket.
func (d *datagramConn) Discard() error {
	defer d.SetReadDeadline(time.Time{})

	for {
		d.SetReadDeadline(time.Now().Add(discardWait))
		if _, err := d.Read(d.buf); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			return err
		}
	}
}

func DialTCP(ctx context.Context, addr string, opts Options) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial tcp %s: %w", addr, err)
	}

	if opts.ChunkSize <= 0 {
		opts.ChunkSize = transfer.DefaultChunkSize
	}

	return New(proto.NewStreamConn(conn, proto.DefaultMaxFrameSize), opts), nil
}

func DialUDP(ctx context.Context, addr string, opts Options) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial udp %s: %w", addr, err)
	}

	if opts.ChunkSize <= 0 {
		opts.ChunkSize = transfer.DefaultDatagramChunkSize
	}
	if opts.ChunkSize > transfer.MaxDatagramChunkSize {
		opts.ChunkSize = transfer.MaxDatagramChunkSize
	}

	return New(&datagramConn{Conn: conn, buf: make([]byte, maxDatagramSize)}, opts), nil
}
