// Package session implements the watchdog-driven link state machine and
// the manager that owns the pool of client sessions plus the singular
// supervisor link.
package session

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/RaeveNoir/cc-mek-scada/pkg/protocol"
	"github.com/RaeveNoir/cc-mek-scada/pkg/queue"
	"github.com/RaeveNoir/cc-mek-scada/pkg/transport"
	"github.com/RaeveNoir/cc-mek-scada/pkg/watchdog"
)

// State is the link state of a session.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateLinked
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLinked:
		return "linked"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Role discriminates the singular supervisor link from pooled client
// sessions. The state machine is shared; the role controls handshake
// direction and population membership.
type Role int

const (
	RoleClient Role = iota
	RoleSupervisor
)

func (r Role) String() string {
	if r == RoleSupervisor {
		return "supervisor"
	}
	return "client"
}

// Recoverable link failures surfaced to the caller as status, never fatal.
var (
	ErrHandshakeTimeout = errors.New("handshake timed out")
	ErrLinkTimeout      = errors.New("link timed out")
)

// Stats tracks per-peer exchange counters, logged when the session closes.
type Stats struct {
	FramesIn  uint64
	FramesOut uint64
	BytesIn   uint64
	BytesOut  uint64
	LastSeen  time.Time
}

// Session is a per-peer state machine owning exactly one watchdog and one
// outbound queue. All methods are driven from the single dispatch thread.
type Session struct {
	role Role
	peer transport.Addr
	id   uint64 // peer station id, learned from the handshake

	state State
	wd    *watchdog.Watchdog
	outq  *queue.Queue

	lastSeq   uint64
	seenFirst bool
	nextSeq   uint64

	connectTimeout time.Duration
	linkTimeout    time.Duration
	closeGrace     time.Duration

	codec   *protocol.Codec
	ch      transport.Channel
	pub     Publisher
	localID uint64

	lastSend     time.Time
	closingSince time.Time
	lastErr      error
	stats        Stats
}

type sessionOpts struct {
	role           Role
	peer           transport.Addr
	localID        uint64
	codec          *protocol.Codec
	ch             transport.Channel
	pub            Publisher
	connectTimeout time.Duration
	linkTimeout    time.Duration
	closeGrace     time.Duration
	fire           func(watchdog.Token)
}

func newSession(o sessionOpts) *Session {
	s := &Session{
		role:           o.role,
		peer:           o.peer,
		state:          StateConnecting,
		outq:           queue.New(),
		connectTimeout: o.connectTimeout,
		linkTimeout:    o.linkTimeout,
		closeGrace:     o.closeGrace,
		codec:          o.codec,
		ch:             o.ch,
		pub:            o.pub,
		localID:        o.localID,
		nextSeq:        1,
	}
	s.wd = watchdog.New(o.connectTimeout, o.fire)
	return s
}

// Peer returns the channel-level address keying this session.
func (s *Session) Peer() transport.Addr { return s.peer }

// PeerID returns the peer station id (zero until the handshake names it).
func (s *Session) PeerID() uint64 { return s.id }

// State returns the current link state.
func (s *Session) State() State { return s.state }

// Role returns the session variant.
func (s *Session) Role() Role { return s.role }

// LastError returns the most recent recoverable failure, if any.
func (s *Session) LastError() error { return s.lastErr }

// QueueCommand enqueues an operator command payload for transmission.
func (s *Session) QueueCommand(payload []byte) { s.outq.PushCommand(payload) }

// QueuePacket enqueues an application data payload for transmission.
func (s *Session) QueuePacket(payload []byte) { s.outq.PushPacket(payload) }

// startConnect sends the handshake request. The watchdog is already armed
// with the connect timeout from construction.
func (s *Session) startConnect() {
	s.sendNow(protocol.KindHello, nil)
	zap.L().Info("session connecting",
		zap.String("role", s.role.String()),
		zap.String("peer", string(s.peer)))
}

// HandlePacket consumes one authenticated packet. The boolean result means
// "the peer requested or caused termination of this link"; the owning loop
// reacts by releasing session resources. Stale or duplicate frames
// (seq <= last seen) are dropped silently.
func (s *Session) HandlePacket(p *protocol.Packet) bool {
	if s.state == StateClosed {
		return false
	}
	if s.seenFirst && p.Seq <= s.lastSeq {
		// effectively-once delivery: transport-level duplication is not an error
		return false
	}
	s.lastSeq = p.Seq
	s.seenFirst = true
	if s.id == 0 {
		s.id = p.Sender
	}
	s.stats.FramesIn++
	s.stats.BytesIn += uint64(len(p.Payload))
	s.stats.LastSeen = time.Now()

	// every valid receipt counts as liveness
	if s.state == StateLinked || s.state == StateConnecting {
		s.wd.Feed()
	}

	switch p.Kind {
	case protocol.KindHello:
		// inbound handshake request (or a retransmit of one)
		s.sendNow(protocol.KindHelloAck, nil)

	case protocol.KindHelloAck:
		if s.state == StateConnecting {
			s.becomeLinked()
		}

	case protocol.KindClose:
		s.beginClose("peer close")
		return true

	case protocol.KindHeartbeat:
		if s.state == StateConnecting && s.role == RoleClient {
			// first in-sequence frame after our ack completes the handshake
			s.becomeLinked()
		}

	case protocol.KindCommand, protocol.KindPacket:
		if s.state == StateConnecting && s.role == RoleClient {
			s.becomeLinked()
		}
		if s.state == StateLinked && s.pub != nil {
			s.pub.Publish(s.peer, p.Kind, p.Payload)
		}
	}
	return false
}

func (s *Session) becomeLinked() {
	s.state = StateLinked
	s.wd.Rearm(s.linkTimeout)
	s.lastErr = nil
	zap.L().Info("session linked",
		zap.String("role", s.role.String()),
		zap.String("peer", string(s.peer)),
		zap.Uint64("station", s.id))
	if s.pub != nil {
		s.pub.LinkUp(s.peer)
	}
}

// Iterate advances time-based behavior once per scheduling tick,
// independent of frame arrival.
func (s *Session) Iterate(now time.Time) {
	switch s.state {
	case StateLinked:
		s.drain()
		if now.Sub(s.lastSend) > s.linkTimeout/2 {
			s.sendNow(protocol.KindHeartbeat, nil)
		}
	case StateClosing:
		s.drain()
		if s.outq.Empty() || now.Sub(s.closingSince) >= s.closeGrace {
			s.finishClose()
		}
	}
}

// CheckWatchdog tests a fired timer token against this session's watchdog
// and drives the matching timeout transition.
func (s *Session) CheckWatchdog(tok watchdog.Token) bool {
	if !s.wd.Expired(tok) {
		return false
	}
	switch s.state {
	case StateConnecting:
		// handshake failure: a recoverable connection failure, not fatal
		s.lastErr = ErrHandshakeTimeout
		zap.L().Warn("handshake timed out",
			zap.String("role", s.role.String()),
			zap.String("peer", string(s.peer)))
		s.state = StateClosed
	case StateLinked:
		s.lastErr = ErrLinkTimeout
		zap.L().Warn("link timed out",
			zap.String("role", s.role.String()),
			zap.String("peer", string(s.peer)),
			zap.Uint64("station", s.id))
		s.beginClose("link timeout")
	case StateClosing:
		s.finishClose()
	}
	return true
}

// Close requests local shutdown of the link: a close frame is sent and the
// session flushes before reaching CLOSED.
func (s *Session) Close() {
	switch s.state {
	case StateClosed, StateClosing:
		return
	case StateConnecting:
		s.wd.Cancel()
		s.state = StateClosed
	case StateLinked:
		s.sendNow(protocol.KindClose, nil)
		s.beginClose("local shutdown")
	}
}

func (s *Session) beginClose(reason string) {
	wasLinked := s.state == StateLinked
	s.state = StateClosing
	s.closingSince = time.Now()
	s.wd.Rearm(s.closeGrace)
	zap.L().Info("session closing",
		zap.String("role", s.role.String()),
		zap.String("peer", string(s.peer)),
		zap.String("reason", reason))
	if wasLinked && s.pub != nil {
		s.pub.LinkDown(s.peer)
	}
}

func (s *Session) finishClose() {
	s.drain()
	s.wd.Cancel()
	s.state = StateClosed
	zap.L().Info("session closed",
		zap.String("role", s.role.String()),
		zap.String("peer", string(s.peer)),
		zap.Uint64("frames_in", s.stats.FramesIn),
		zap.Uint64("frames_out", s.stats.FramesOut),
		zap.Uint64("bytes_in", s.stats.BytesIn),
		zap.Uint64("bytes_out", s.stats.BytesOut))
}

// drain moves queued entries through the codec onto the channel.
func (s *Session) drain() {
	for {
		e, ok := s.outq.Pop()
		if !ok {
			return
		}
		kind := protocol.KindPacket
		if e.Kind == queue.EntryCommand {
			kind = protocol.KindCommand
		}
		s.sendNow(kind, e.Msg)
	}
}

func (s *Session) sendNow(kind uint8, payload []byte) {
	p := &protocol.Packet{Kind: kind, Sender: s.localID, Seq: s.nextSeq, Payload: payload}
	frame, err := s.codec.Encode(p)
	if err != nil {
		zap.L().Warn("encode failed",
			zap.String("kind", protocol.KindName(kind)),
			zap.Error(err))
		return
	}
	s.nextSeq++
	if err := s.ch.Send(s.peer, frame); err != nil {
		zap.L().Warn("send failed",
			zap.String("peer", string(s.peer)),
			zap.Error(err))
		return
	}
	s.lastSend = time.Now()
	s.stats.FramesOut++
	s.stats.BytesOut += uint64(len(payload))
}
