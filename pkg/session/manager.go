package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/RaeveNoir/cc-mek-scada/pkg/config"
	"github.com/RaeveNoir/cc-mek-scada/pkg/protocol"
	"github.com/RaeveNoir/cc-mek-scada/pkg/transport"
	"github.com/RaeveNoir/cc-mek-scada/pkg/watchdog"
)

// Manager exclusively owns the client session mapping and the singular
// supervisor link. The supervisor link lives outside the mapping: it
// drives the UI lifecycle and is never reaped as a pool member. All
// methods run on the dispatch thread.
type Manager struct {
	clients    map[transport.Addr]*Session
	supervisor *Session

	codec   *protocol.Codec
	ch      transport.Channel
	link    config.LinkConfig
	pub     Publisher
	localID uint64
	fire    func(watchdog.Token)
}

// NewManager wires the session layer. fire is invoked (from timer
// goroutines) with watchdog tokens; it must hand them to the dispatch
// loop, which calls CheckWatchdogs on the dispatch thread.
func NewManager(localID uint64, codec *protocol.Codec, ch transport.Channel, link config.LinkConfig, pub Publisher, fire func(watchdog.Token)) *Manager {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Manager{
		clients: make(map[transport.Addr]*Session),
		codec:   codec,
		ch:      ch,
		link:    link,
		pub:     pub,
		localID: localID,
		fire:    fire,
	}
}

// ParsePacket decodes and authenticates a raw frame. Failures are typed:
// *protocol.MalformedError and *protocol.AuthError.
func (m *Manager) ParsePacket(f transport.Frame) (*protocol.Packet, error) {
	return m.codec.Decode(f.Data)
}

// Route delivers an inbound frame to the session matching its sender
// identity, creating a CONNECTING client session when an unknown peer
// presents a handshake frame. Undecodable and unauthenticated frames are
// dropped and logged; they never change session state.
func (m *Manager) Route(f transport.Frame) {
	p, err := m.ParsePacket(f)
	if err != nil {
		var authErr *protocol.AuthError
		if errors.As(err, &authErr) {
			zap.L().Warn("dropping unauthenticated frame",
				zap.String("from", string(f.From)),
				zap.Error(err))
		} else {
			zap.L().Warn("dropping malformed frame",
				zap.String("from", string(f.From)),
				zap.Int("bytes", len(f.Data)),
				zap.Error(err))
		}
		return
	}

	if m.supervisor != nil && f.From == m.supervisor.peer {
		m.supervisor.HandlePacket(p)
		return
	}

	s := m.clients[f.From]
	if s == nil {
		if p.Kind != protocol.KindHello {
			zap.L().Debug("frame from unknown peer without handshake",
				zap.String("from", string(f.From)),
				zap.String("kind", protocol.KindName(p.Kind)))
			return
		}
		s = newSession(sessionOpts{
			role:           RoleClient,
			peer:           f.From,
			localID:        m.localID,
			codec:          m.codec,
			ch:             m.ch,
			pub:            m.pub,
			connectTimeout: m.link.ConnectTimeout(),
			linkTimeout:    m.link.LinkTimeout(),
			closeGrace:     m.link.CloseGrace(),
			fire:           m.fire,
		})
		m.clients[f.From] = s
		zap.L().Info("client session created", zap.String("peer", string(f.From)))
	}
	s.HandlePacket(p)
}

// IterateAll gives every active session a chance to advance time-based
// behavior, once per scheduling tick.
func (m *Manager) IterateAll() {
	now := time.Now()
	if m.supervisor != nil {
		m.supervisor.Iterate(now)
	}
	for _, s := range m.clients {
		s.Iterate(now)
	}
}

// CheckWatchdogs tests every owned watchdog against a fired timer token
// and drives the timeout transition for the one that matches.
func (m *Manager) CheckWatchdogs(tok watchdog.Token) {
	if m.supervisor != nil && m.supervisor.CheckWatchdog(tok) {
		return
	}
	for _, s := range m.clients {
		if s.CheckWatchdog(tok) {
			return
		}
	}
}

// FreeClosed removes every client session in terminal CLOSED state from
// the mapping. Sessions are never removed while LINKED or mid-flush.
func (m *Manager) FreeClosed() {
	for addr, s := range m.clients {
		if s.State() == StateClosed {
			delete(m.clients, addr)
			zap.L().Debug("client session reaped", zap.String("peer", string(addr)))
		}
	}
}

// CloseAll transitions every session to CLOSING and iterates until
// graceful termination or the bounded grace period elapses. Used solely
// on process shutdown; makes progress even if peers never respond.
func (m *Manager) CloseAll() {
	if m.supervisor != nil {
		m.supervisor.Close()
	}
	for _, s := range m.clients {
		s.Close()
	}

	deadline := time.Now().Add(m.link.CloseGrace())
	for {
		m.IterateAll()
		if m.allClosed() {
			break
		}
		if time.Now().After(deadline) {
			if m.supervisor != nil && m.supervisor.State() != StateClosed {
				m.supervisor.finishClose()
			}
			for _, s := range m.clients {
				if s.State() != StateClosed {
					s.finishClose()
				}
			}
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	m.FreeClosed()
}

func (m *Manager) allClosed() bool {
	if m.supervisor != nil && m.supervisor.State() != StateClosed {
		return false
	}
	for _, s := range m.clients {
		if s.State() != StateClosed {
			return false
		}
	}
	return true
}

// ClientCount returns the number of sessions currently in the mapping.
func (m *Manager) ClientCount() int { return len(m.clients) }

// Client returns the session for a peer address, or nil.
func (m *Manager) Client(addr transport.Addr) *Session { return m.clients[addr] }

// Supervisor returns the supervisor link session, or nil before the first
// TryConnect.
func (m *Manager) Supervisor() *Session { return m.supervisor }

// IsLinked reports whether the supervisor link is established.
func (m *Manager) IsLinked() bool {
	return m.supervisor != nil && m.supervisor.State() == StateLinked
}

// TryConnect establishes the supervisor link. It sends the handshake and
// pumps inbound frames until the link is up or the connect timeout
// elapses; frames from other peers arriving meanwhile are routed
// normally. Returns (ok, startUI): ok reports an established link, and
// startUI is set only when this call newly established it. A timeout is a
// recoverable connection failure (see (*Session).LastError), not an
// error.
func (m *Manager) TryConnect(ctx context.Context, forceDisconnect bool) (bool, bool) {
	if m.link.SupervisorAddr == "" {
		return false, false
	}
	if m.IsLinked() {
		if !forceDisconnect {
			return true, false
		}
		m.supervisor.Close()
		m.supervisor.Iterate(time.Now())
	}

	s := newSession(sessionOpts{
		role:           RoleSupervisor,
		peer:           transport.Addr(m.link.SupervisorAddr),
		localID:        m.localID,
		codec:          m.codec,
		ch:             m.ch,
		pub:            m.pub,
		connectTimeout: m.link.ConnectTimeout(),
		linkTimeout:    m.link.LinkTimeout(),
		closeGrace:     m.link.CloseGrace(),
		fire:           m.fire,
	})
	m.supervisor = s
	s.startConnect()

	cctx, cancel := context.WithTimeout(ctx, m.link.ConnectTimeout())
	defer cancel()
	for s.State() == StateConnecting {
		f, err := m.ch.Recv(cctx)
		if err != nil {
			break
		}
		m.Route(f)
	}

	if s.State() == StateLinked {
		return true, true
	}
	s.wd.Cancel()
	s.state = StateClosed
	s.lastErr = ErrHandshakeTimeout
	zap.L().Warn("supervisor connect failed", zap.String("addr", m.link.SupervisorAddr))
	return false, false
}

// CloseSupervisor tears down the supervisor link only.
func (m *Manager) CloseSupervisor() {
	if m.supervisor != nil {
		m.supervisor.Close()
	}
}
