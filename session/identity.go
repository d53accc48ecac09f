package session

import "net"

const (
	MaxUsernameLength = 31
	unknownLabel      = "[unknown]"
)

// Identity is either Unidentified or Identified.
type Identity interface {
	Label() string
	Peer() net.Addr
	identity()
}

type Unidentified struct {
	Addr net.Addr
}

func (u Unidentified) Label() string {
	if u.Addr == nil {
		return unknownLabel
	}
	return u.Addr.String()
}

func (u Unidentified) Peer() net.Addr { return u.Addr }

func (Unidentified) identity() {}

type Identified struct {
	Name string
	Addr net.Addr
}

func (i Identified) Label() string { return i.Name }

func (i Identified) Peer() net.Addr { return i.Addr }

func (Identified) identity() {}

func truncateName(name string) string {
	if len(name) <= MaxUsernameLength {
		return name
	}

	// cut on a rune boundary
	cut := 0
	for i := range name {
		if i > MaxUsernameLength {
			break
		}
		cut = i
	}
	return name[:cut]
}
