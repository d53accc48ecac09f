package proto

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

const (
	// LengthPrefixSize is the size of the big-endian length prefix.
	LengthPrefixSize = 4

	// DefaultMaxFrameSize leaves room for a 64 KiB chunk.
	DefaultMaxFrameSize = 64*1024 + 512
)

var (
	ErrFrameTooLarge  = errors.New("frame too large")
	ErrFrameTruncated = errors.New("frame truncated")
)

// FrameWriter writes length-prefixed frames. Safe for concurrent use.
type FrameWriter struct {
	w        io.Writer
	maxFrame uint32
	mu       sync.Mutex
	buf      []byte
}

func NewFrameWriter(w io.Writer, maxFrame uint32) *FrameWriter {
	if maxFrame == 0 {
		maxFrame = DefaultMaxFrameSize
	}

	return &FrameWriter{
		w:        w,
		maxFrame: maxFrame,
	}
}

// WriteFrame writes the prefix and payload with a single Write call so
// concurrent writers never interleave partial frames.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if uint32(len(data)) > fw.maxFrame {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(data), fw.maxFrame)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.buf = fw.buf[:0]
	fw.buf = binary.BigEndian.AppendUint32(fw.buf, uint32(len(data)))
	fw.buf = append(fw.buf, data...)

	if _, err := fw.w.Write(fw.buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

// FrameReader reassembles length-prefixed frames from a byte stream,
// regardless of how the stream was split into reads.
type FrameReader struct {
	r         *bufio.Reader
	maxFrame  uint32
	lengthBuf [LengthPrefixSize]byte
	payload   []byte
}

func NewFrameReader(r io.Reader, maxFrame uint32) *FrameReader {
	if maxFrame == 0 {
		maxFrame = DefaultMaxFrameSize
	}

	return &FrameReader{
		r:        bufio.NewReader(r),
		maxFrame: maxFrame,
	}
}

// ReadFrame returns the next frame payload. The returned slice is only
// valid until the next call. io.EOF is returned only on a clean boundary.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.lengthBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(fr.lengthBuf[:])
	if length > fr.maxFrame {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, fr.maxFrame)
	}

	if cap(fr.payload) < int(length) {
		fr.payload = make([]byte, length)
	}
	fr.payload = fr.payload[:length]

	if _, err := io.ReadFull(fr.r, fr.payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrFrameTruncated
		}
		return nil, err
	}

	return fr.payload, nil
}

// StreamConn is a net.Conn that exchanges whole frames.
type StreamConn struct {
	net.Conn
	r *FrameReader
	w *FrameWriter
}

func NewStreamConn(conn net.Conn, maxFrame uint32) *StreamConn {
	return &StreamConn{
		Conn: conn,
		r:    NewFrameReader(conn, maxFrame),
		w:    NewFrameWriter(conn, maxFrame),
	}
}

func (c *StreamConn) ReadFrame() ([]byte, error) {
	return c.r.ReadFrame()
}

func (c *StreamConn) WriteFrame(data []byte) error {
	return c.w.WriteFrame(data)
}
