package session

import "github.com/RaeveNoir/cc-mek-scada/pkg/transport"

// Publisher is the narrow upward interface the presentation layer
// implements. The core pushes decoded application payloads through it only
// while the originating link is established; it never touches presentation
// state directly.
type Publisher interface {
	// LinkUp reports a session reaching LINKED.
	LinkUp(peer transport.Addr)
	// LinkDown reports an established session leaving LINKED.
	LinkDown(peer transport.Addr)
	// Publish forwards one decoded application payload.
	Publish(peer transport.Addr, kind uint8, payload []byte)
}

// NopPublisher discards everything. Stands in when no presentation layer
// is attached (headless runs, tests).
type NopPublisher struct{}

func (NopPublisher) LinkUp(transport.Addr) {}
func (NopPublisher) LinkDown(transport.Addr) {}
func (NopPublisher) Publish(transport.Addr, uint8, []byte) {}
