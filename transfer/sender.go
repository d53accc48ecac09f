package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
)

type ChunkWriter interface {
	WriteFrame(data []byte) error
}

// Send streams exactly size bytes of src to w in chunks of at most len(buf).
// When src ends early an empty chunk is written so the receiver can fail
// the transfer without waiting for its idle timeout.
func Send(ctx context.Context, w ChunkWriter, src io.Reader, size int64, buf []byte, progress io.Writer) (int64, error) {
	if len(buf) == 0 {
		buf = make([]byte, DefaultChunkSize)
	}
	if progress == nil {
		progress = io.Discard
	}

	var sent int64

	for sent < size {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		n := int64(len(buf))
		if remaining := size - sent; remaining < n {
			n = remaining
		}

		read, rerr := io.ReadFull(src, buf[:n])
		if read > 0 {
			if err := w.WriteFrame(buf[:read]); err != nil {
				return sent, fmt.Errorf("failed to send chunk: %w", err)
			}
			sent += int64(read)
			progress.Write(buf[:read])
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				w.WriteFrame(nil)
				return sent, fmt.Errorf("%w: %d/%d bytes", ErrShortRead, sent, size)
			}
			w.WriteFrame(nil)
			return sent, rerr
		}
	}

	return sent, nil
}
