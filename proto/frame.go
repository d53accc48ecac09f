// Package proto holds the chat wire format: frame classification by prefix
// and the length-prefixed framing used on stream transports.
package proto

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindMessage Kind = iota
	KindUser
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindFile:
		return "file"
	default:
		return "message"
	}
}

const (
	PrefixUser = "USER:"
	PrefixFile = "FILE:"

	UserOK   = "USER_OK"
	UserFail = "USER_FAIL"
	Ready    = "READY"
	Error    = "ERROR"
	FileOK   = "FILE_OK"
	FileFail = "FILE_FAIL"
)

var ErrMalformedFileHeader = errors.New("malformed file header")

// Frame is one classified payload. Name and Size are only set for
// KindUser and KindFile frames.
type Frame struct {
	Kind    Kind
	Name    string
	Size    int64
	Payload []byte
}

// Classify decides the frame kind from the leading token of payload.
// A FILE frame carries its size after the last colon, so names may contain
// colons. A malformed FILE frame is still returned as KindFile together
// with ErrMalformedFileHeader so the caller can refuse it.
func Classify(payload []byte) (*Frame, error) {
	s := string(payload)

	switch {
	case strings.HasPrefix(s, PrefixUser):
		return &Frame{
			Kind:    KindUser,
			Name:    strings.TrimSpace(s[len(PrefixUser):]),
			Payload: payload,
		}, nil

	case strings.HasPrefix(s, PrefixFile):
		f := &Frame{Kind: KindFile, Payload: payload}

		name, size, err := parseFileHeader(s[len(PrefixFile):])
		if err != nil {
			return f, err
		}

		f.Name = name
		f.Size = size
		return f, nil

	default:
		return &Frame{Kind: KindMessage, Payload: payload}, nil
	}
}

func parseFileHeader(rest string) (string, int64, error) {
	idx := strings.LastIndexByte(rest, ':')
	if idx < 0 {
		return "", 0, fmt.Errorf("%w: missing size", ErrMalformedFileHeader)
	}

	raw := strings.TrimSpace(rest[idx+1:])
	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: invalid size %q", ErrMalformedFileHeader, raw)
	}
	if size < 0 {
		return "", 0, fmt.Errorf("%w: negative size %d", ErrMalformedFileHeader, size)
	}

	return rest[:idx], size, nil
}

func EncodeUser(name string) []byte {
	return []byte(PrefixUser + name)
}

func EncodeFile(name string, size int64) []byte {
	return fmt.Appendf(nil, "%s%s:%d", PrefixFile, name, size)
}
