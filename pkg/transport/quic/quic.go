// Package quic implements the radio channel over QUIC unreliable datagrams
// (RFC 9221). Datagram semantics match the radio model: no delivery or
// ordering guarantee, one frame per datagram.
package quic

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"math/big"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"github.com/RaeveNoir/cc-mek-scada/pkg/transport"
)

const alpn = "cc-mek-scada"

func quicConfig() *quicgo.Config {
	return &quicgo.Config{
		EnableDatagrams: true,
		KeepAlivePeriod: 10 * time.Second,
	}
}

// Listen opens a QUIC endpoint accepting inbound connections; each remote
// connection's address becomes its sender identity.
func Listen(ctx context.Context, address string) (*Channel, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpn},
		MinVersion:   tls.VersionTLS13,
	}
	l, err := quicgo.ListenAddr(address, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	c := &Channel{
		listener: l,
		local:    l.Addr().String(),
		rxCh:     make(chan transport.Frame, 32),
		closeCh:  make(chan struct{}),
		conns:    make(map[transport.Addr]quicgo.Connection),
	}
	go c.acceptLoop(ctx)
	return c, nil
}

// Dial connects to a remote QUIC endpoint.
func Dial(ctx context.Context, address string) (*Channel, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true, // NOTE: frames are authenticated at the protocol layer.
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}
	conn, err := quicgo.DialAddr(ctx, address, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	c := &Channel{
		local:   conn.LocalAddr().String(),
		rxCh:    make(chan transport.Frame, 32),
		closeCh: make(chan struct{}),
		conns:   make(map[transport.Addr]quicgo.Connection),
	}
	from := transport.Addr(conn.RemoteAddr().String())
	c.mu.Lock()
	c.conns[from] = conn
	c.mu.Unlock()
	go c.recvLoop(from, conn)
	return c, nil
}

// Channel is a QUIC-datagram transport.Channel.
type Channel struct {
	listener *quicgo.Listener
	local    string
	rxCh     chan transport.Frame
	closeCh  chan struct{}
	closeOne sync.Once

	mu    sync.Mutex
	conns map[transport.Addr]quicgo.Connection
}

func (c *Channel) Kind() transport.Kind { return transport.KindQUIC }

func (c *Channel) LocalAddr() string { return c.local }

func (c *Channel) Send(to transport.Addr, frame []byte) error {
	c.mu.Lock()
	conn := c.conns[to]
	c.mu.Unlock()
	if conn == nil {
		return errors.New("quic: no connection for " + string(to))
	}
	return conn.SendDatagram(frame)
}

func (c *Channel) Recv(ctx context.Context) (transport.Frame, error) {
	select {
	case <-ctx.Done():
		return transport.Frame{}, ctx.Err()
	case <-c.closeCh:
		return transport.Frame{}, errors.New("quic: channel closed")
	case f := <-c.rxCh:
		return f, nil
	}
}

func (c *Channel) Close() error {
	c.closeOne.Do(func() {
		close(c.closeCh)
		c.mu.Lock()
		for _, conn := range c.conns {
			_ = conn.CloseWithError(0, "")
		}
		c.conns = make(map[transport.Addr]quicgo.Connection)
		c.mu.Unlock()
		if c.listener != nil {
			_ = c.listener.Close()
		}
	})
	return nil
}

func (c *Channel) acceptLoop(ctx context.Context) {
	for {
		conn, err := c.listener.Accept(ctx)
		if err != nil {
			return
		}
		from := transport.Addr(conn.RemoteAddr().String())
		c.mu.Lock()
		c.conns[from] = conn
		c.mu.Unlock()
		go c.recvLoop(from, conn)
	}
}

func (c *Channel) recvLoop(from transport.Addr, conn quicgo.Connection) {
	ctx := context.Background()
	for {
		data, err := conn.ReceiveDatagram(ctx)
		if err != nil {
			c.mu.Lock()
			if c.conns[from] == conn {
				delete(c.conns, from)
			}
			c.mu.Unlock()
			return
		}
		select {
		case c.rxCh <- transport.Frame{From: from, Data: data}:
		default:
		}
	}
}

// selfSignedCert generates a short-lived self-signed TLS certificate for
// local QUIC use.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
