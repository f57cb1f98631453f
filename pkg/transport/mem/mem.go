// Package mem implements an in-process radio channel hub. Useful for tests
// and as a stand-in for a shared-medium transport.
package mem

import (
	"context"
	"errors"
	"sync"

	"github.com/RaeveNoir/cc-mek-scada/pkg/transport"
)

// Hub connects named endpoints; frames sent to a name land in that
// endpoint's receive queue tagged with the sender's name.
type Hub struct {
	mu        sync.Mutex
	endpoints map[string]*Channel
}

func NewHub() *Hub { return &Hub{endpoints: make(map[string]*Channel)} }

// Open registers a named endpoint on the hub.
func (h *Hub) Open(name string) (*Channel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.endpoints[name]; ok {
		return nil, errors.New("mem: endpoint already exists: " + name)
	}
	c := &Channel{
		hub:     h,
		name:    name,
		rxCh:    make(chan transport.Frame, 64),
		closeCh: make(chan struct{}),
	}
	h.endpoints[name] = c
	return c, nil
}

func (h *Hub) deliver(from, to string, data []byte) error {
	h.mu.Lock()
	dst := h.endpoints[to]
	h.mu.Unlock()
	if dst == nil {
		return errors.New("mem: no such endpoint: " + to)
	}
	pkt := make([]byte, len(data))
	copy(pkt, data)
	select {
	case dst.rxCh <- transport.Frame{From: transport.Addr(from), Data: pkt}:
		return nil
	default:
		// receiver backlogged; datagram semantics, drop
		return nil
	}
}

func (h *Hub) remove(name string) {
	h.mu.Lock()
	delete(h.endpoints, name)
	h.mu.Unlock()
}

// Channel is one endpoint on a Hub.
type Channel struct {
	hub      *Hub
	name     string
	rxCh     chan transport.Frame
	closeCh  chan struct{}
	closeOne sync.Once
}

func (c *Channel) Kind() transport.Kind { return transport.KindMem }

func (c *Channel) LocalAddr() string { return c.name }

func (c *Channel) Send(to transport.Addr, frame []byte) error {
	select {
	case <-c.closeCh:
		return errors.New("mem: channel closed")
	default:
	}
	return c.hub.deliver(c.name, string(to), frame)
}

func (c *Channel) Recv(ctx context.Context) (transport.Frame, error) {
	select {
	case <-ctx.Done():
		return transport.Frame{}, ctx.Err()
	case <-c.closeCh:
		return transport.Frame{}, errors.New("mem: channel closed")
	case f := <-c.rxCh:
		return f, nil
	}
}

func (c *Channel) Close() error {
	c.closeOne.Do(func() {
		close(c.closeCh)
		c.hub.remove(c.name)
	})
	return nil
}
