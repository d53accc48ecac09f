// Package transfer moves a declared number of bytes between peers. Success
// is decided by byte count alone, no checksum is exchanged.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	DefaultChunkSize         = 32 * 1024
	DefaultDatagramChunkSize = 8 * 1024
	MaxChunkSize             = 64 * 1024

	// MaxDatagramChunkSize is the largest UDP payload over IPv4.
	MaxDatagramChunkSize = 65507

	DefaultIdleTimeout = 30 * time.Second
)

var (
	ErrShortTransfer = errors.New("transfer ended before declared size")
	ErrOverflow      = errors.New("chunk exceeds declared size")
	ErrStalled       = errors.New("transfer stalled: no data received within timeout")
	ErrTooLarge      = errors.New("declared size exceeds limit")
	ErrShortRead     = errors.New("source ended before declared size")
	ErrWriteFailed   = errors.New("failed to write artifact")
)

// Request is the receiving side of one accepted transfer.
type Request struct {
	Name        string
	Size        int64
	Transferred int64
	Started     time.Time

	dst      *Artifact
	progress io.Writer
	done     bool
	err      error
}

// Accept opens the destination for an announced transfer. maxSize <= 0
// means no limit. progress may be nil.
func (s *Store) Accept(name string, size, maxSize int64, progress io.Writer) (*Request, error) {
	if maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, size, maxSize)
	}

	dst, err := s.Create(name)
	if err != nil {
		return nil, err
	}

	if progress == nil {
		progress = io.Discard
	}

	return &Request{
		Name:     dst.Name(),
		Size:     size,
		Started:  time.Now(),
		dst:      dst,
		progress: progress,
	}, nil
}

// Write appends one chunk. A chunk that would go past Size is refused and
// nothing of it is counted. After a failed write the artifact is discarded
// and later chunks are only counted, so the stream stays aligned until
// Size bytes arrived.
func (r *Request) Write(chunk []byte) error {
	if r.Transferred+int64(len(chunk)) > r.Size {
		return fmt.Errorf("%w: %d + %d > %d", ErrOverflow, r.Transferred, len(chunk), r.Size)
	}

	r.Transferred += int64(len(chunk))
	if r.err != nil {
		return nil
	}

	if _, err := r.dst.Write(chunk); err != nil {
		r.err = fmt.Errorf("%w: %s: %w", ErrWriteFailed, r.Name, err)
		r.dst.Discard()
		return r.err
	}

	r.progress.Write(chunk)

	return nil
}

// Failed reports whether a write failed and the transfer is only draining.
func (r *Request) Failed() bool {
	return r.err != nil
}

func (r *Request) Complete() bool {
	return r.Transferred == r.Size
}

func (r *Request) Remaining() int64 {
	return r.Size - r.Transferred
}

// Finish keeps the artifact when exactly Size bytes were written and
// discards it otherwise.
func (r *Request) Finish() (string, error) {
	if r.done {
		return "", ErrShortTransfer
	}
	r.done = true

	if r.err != nil {
		return "", r.err
	}

	if !r.Complete() {
		r.dst.Discard()
		return "", fmt.Errorf("%w: %d/%d bytes", ErrShortTransfer, r.Transferred, r.Size)
	}

	return r.dst.Commit()
}

func (r *Request) Abort() {
	if r.done {
		return
	}
	r.done = true

	r.dst.Discard()
}
