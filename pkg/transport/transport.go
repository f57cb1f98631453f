// Package transport defines the thin radio-channel conduit the session
// core sends and receives opaque frames through. The conduit interprets
// nothing beyond the sender identity attached to each inbound frame.
package transport

import "context"

// Kind identifies the channel/link type.
type Kind int

const (
	KindUnknown Kind = iota
	KindUDP
	KindQUIC
	KindMem
)

func (k Kind) String() string {
	switch k {
	case KindUDP:
		return "udp"
	case KindQUIC:
		return "quic"
	case KindMem:
		return "mem"
	default:
		return "unknown"
	}
}

// Addr is an opaque channel-level sender identity. The session layer uses
// it as the session key without interpreting it.
type Addr string

// Frame is one received transmission unit with its sender identity.
type Frame struct {
	From Addr
	Data []byte
}

// Channel is a dumb conduit: raw send/receive of frames. Delivery and
// ordering are not guaranteed; the session layer tolerates both.
type Channel interface {
	Kind() Kind
	// Send transmits one frame to the given address. Best effort.
	Send(to Addr, frame []byte) error
	// Recv blocks for the next inbound frame or until ctx is done.
	Recv(ctx context.Context) (Frame, error)
	// LocalAddr returns the local endpoint in channel-specific form.
	LocalAddr() string
	// Close tears the channel down and unblocks Recv.
	Close() error
}
