// Package udp implements the radio channel over UDP datagrams. One socket
// carries all peers; sender identity is the remote address.
package udp

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/RaeveNoir/cc-mek-scada/pkg/transport"
)

const maxDatagram = 64 * 1024

// Channel is a UDP-backed transport.Channel. In listen mode it serves many
// remotes from one socket; in dial mode it is bound to a single remote.
type Channel struct {
	conn     *net.UDPConn
	dialed   *net.UDPAddr // non-nil in dial mode
	rxCh     chan transport.Frame
	closeCh  chan struct{}
	closeOne sync.Once

	mu     sync.Mutex
	remote map[transport.Addr]*net.UDPAddr
}

// Listen opens a socket serving inbound frames from any remote.
func Listen(address string) (*Channel, error) {
	laddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	c := newChannel(conn, nil)
	go c.readLoop()
	return c, nil
}

// Dial opens a socket bound to a single remote endpoint.
func Dial(address string) (*Channel, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	c := newChannel(conn, raddr)
	go c.readLoop()
	return c, nil
}

func newChannel(conn *net.UDPConn, dialed *net.UDPAddr) *Channel {
	return &Channel{
		conn:    conn,
		dialed:  dialed,
		rxCh:    make(chan transport.Frame, 32),
		closeCh: make(chan struct{}),
		remote:  make(map[transport.Addr]*net.UDPAddr),
	}
}

func (c *Channel) Kind() transport.Kind { return transport.KindUDP }

func (c *Channel) LocalAddr() string { return c.conn.LocalAddr().String() }

func (c *Channel) Send(to transport.Addr, frame []byte) error {
	if c.dialed != nil {
		_, err := c.conn.Write(frame)
		return err
	}
	raddr := c.resolve(to)
	if raddr == nil {
		return errors.New("udp: unknown remote " + string(to))
	}
	_, err := c.conn.WriteToUDP(frame, raddr)
	return err
}

func (c *Channel) Recv(ctx context.Context) (transport.Frame, error) {
	select {
	case <-ctx.Done():
		return transport.Frame{}, ctx.Err()
	case <-c.closeCh:
		return transport.Frame{}, errors.New("udp: channel closed")
	case f := <-c.rxCh:
		return f, nil
	}
}

func (c *Channel) Close() error {
	var err error
	c.closeOne.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// resolve maps a sender identity back to a datagram address, falling back
// to parsing when the remote was never heard from.
func (c *Channel) resolve(to transport.Addr) *net.UDPAddr {
	c.mu.Lock()
	raddr := c.remote[to]
	c.mu.Unlock()
	if raddr != nil {
		return raddr
	}
	raddr, err := net.ResolveUDPAddr("udp", string(to))
	if err != nil {
		return nil
	}
	return raddr
}

func (c *Channel) readLoop() {
	buf := make([]byte, maxDatagram)
	for {
		var (
			n     int
			raddr *net.UDPAddr
			err   error
		)
		if c.dialed != nil {
			n, err = c.conn.Read(buf)
			raddr = c.dialed
		} else {
			n, raddr, err = c.conn.ReadFromUDP(buf)
		}
		if err != nil {
			select {
			case <-c.closeCh:
			default:
			}
			return
		}
		from := transport.Addr(raddr.String())
		c.mu.Lock()
		c.remote[from] = raddr
		c.mu.Unlock()
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		// drop on overrun; the channel offers no delivery guarantee anyway
		select {
		case c.rxCh <- transport.Frame{From: from, Data: pkt}:
		default:
		}
	}
}
