package session

import (
	"context"
	"testing"
	"time"

	"github.com/RaeveNoir/cc-mek-scada/pkg/protocol"
	"github.com/RaeveNoir/cc-mek-scada/pkg/transport"
	"github.com/RaeveNoir/cc-mek-scada/pkg/transport/mem"
	"github.com/RaeveNoir/cc-mek-scada/pkg/watchdog"
)

type recordingPub struct {
	ups, downs int
	payloads   [][]byte
}

func (r *recordingPub) LinkUp(transport.Addr) { r.ups++ }
func (r *recordingPub) LinkDown(transport.Addr) { r.downs++ }
func (r *recordingPub) Publish(_ transport.Addr, _ uint8, payload []byte) {
	r.payloads = append(r.payloads, payload)
}

func testSession(t *testing.T, role Role, pub Publisher, fire func(watchdog.Token)) (*Session, *mem.Channel) {
	t.Helper()
	hub := mem.NewHub()
	local, err := hub.Open("local")
	if err != nil {
		t.Fatalf("open local: %v", err)
	}
	remote, err := hub.Open("remote")
	if err != nil {
		t.Fatalf("open remote: %v", err)
	}
	s := newSession(sessionOpts{
		role:           role,
		peer:           "remote",
		localID:        1,
		codec:          protocol.NewCodec("", false),
		ch:             local,
		pub:            pub,
		connectTimeout: 200 * time.Millisecond,
		linkTimeout:    500 * time.Millisecond,
		closeGrace:     100 * time.Millisecond,
		fire:           fire,
	})
	t.Cleanup(func() { s.wd.Cancel() })
	return s, remote
}

func pkt(kind uint8, seq uint64, payload []byte) *protocol.Packet {
	return &protocol.Packet{Kind: kind, Sender: 7, Seq: seq, Payload: payload}
}

func recvKind(t *testing.T, ch *mem.Channel) uint8 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, err := ch.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	p, err := protocol.NewCodec("", false).Decode(f.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return p.Kind
}

func TestSequenceMonotonicity(t *testing.T) {
	pub := &recordingPub{}
	s, _ := testSession(t, RoleClient, pub, nil)

	for _, seq := range []uint64{5, 6, 6, 4, 7} {
		s.HandlePacket(pkt(protocol.KindPacket, seq, []byte{byte(seq)}))
	}

	if len(pub.payloads) != 3 {
		t.Fatalf("expected 3 accepted frames, got %d", len(pub.payloads))
	}
	for i, want := range []byte{5, 6, 7} {
		if pub.payloads[i][0] != want {
			t.Fatalf("accepted order mismatch at %d: got %d want %d", i, pub.payloads[i][0], want)
		}
	}
	if s.lastSeq != 7 {
		t.Fatalf("lastSeq = %d, want 7", s.lastSeq)
	}
	if s.State() != StateLinked {
		t.Fatalf("state = %v, want linked", s.State())
	}
}

func TestInboundHandshake(t *testing.T) {
	pub := &recordingPub{}
	s, remote := testSession(t, RoleClient, pub, nil)

	if s.State() != StateConnecting {
		t.Fatalf("new inbound session should be connecting")
	}
	s.HandlePacket(pkt(protocol.KindHello, 1, nil))
	if got := recvKind(t, remote); got != protocol.KindHelloAck {
		t.Fatalf("expected hello-ack reply, got %s", protocol.KindName(got))
	}
	if s.State() != StateConnecting {
		t.Fatalf("ack alone must not complete the handshake")
	}

	s.HandlePacket(pkt(protocol.KindHeartbeat, 2, nil))
	if s.State() != StateLinked {
		t.Fatalf("first in-sequence frame after ack should link, state=%v", s.State())
	}
	if pub.ups != 1 {
		t.Fatalf("LinkUp should fire once, got %d", pub.ups)
	}
	if s.PeerID() != 7 {
		t.Fatalf("peer station id = %d, want 7", s.PeerID())
	}
}

func TestSupervisorHandshake(t *testing.T) {
	pub := &recordingPub{}
	s, remote := testSession(t, RoleSupervisor, pub, nil)

	s.startConnect()
	if got := recvKind(t, remote); got != protocol.KindHello {
		t.Fatalf("expected hello, got %s", protocol.KindName(got))
	}
	s.HandlePacket(pkt(protocol.KindHelloAck, 1, nil))
	if s.State() != StateLinked {
		t.Fatalf("hello-ack should link, state=%v", s.State())
	}
}

func TestPeerCloseSignalled(t *testing.T) {
	pub := &recordingPub{}
	s, _ := testSession(t, RoleClient, pub, nil)
	s.HandlePacket(pkt(protocol.KindPacket, 1, []byte("x")))
	if s.State() != StateLinked {
		t.Fatalf("setup: not linked")
	}

	if closed := s.HandlePacket(pkt(protocol.KindClose, 2, nil)); !closed {
		t.Fatalf("close frame must signal peer-closed")
	}
	if s.State() != StateClosing {
		t.Fatalf("state = %v, want closing", s.State())
	}
	if pub.downs != 1 {
		t.Fatalf("LinkDown should fire once, got %d", pub.downs)
	}

	s.Iterate(time.Now())
	if s.State() != StateClosed {
		t.Fatalf("flushed session should be closed, state=%v", s.State())
	}
}

func TestClosingFlushesQueue(t *testing.T) {
	pub := &recordingPub{}
	s, remote := testSession(t, RoleClient, pub, nil)
	s.HandlePacket(pkt(protocol.KindPacket, 1, []byte("x")))

	s.QueueCommand([]byte("cmd"))
	s.QueuePacket([]byte("data"))
	s.HandlePacket(pkt(protocol.KindClose, 2, nil))
	s.Iterate(time.Now())

	if got := recvKind(t, remote); got != protocol.KindCommand {
		t.Fatalf("expected queued command flushed first, got %s", protocol.KindName(got))
	}
	if got := recvKind(t, remote); got != protocol.KindPacket {
		t.Fatalf("expected queued packet flushed second, got %s", protocol.KindName(got))
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %v, want closed", s.State())
	}
}

func TestUnlinkedNeverPublishes(t *testing.T) {
	pub := &recordingPub{}
	s, _ := testSession(t, RoleSupervisor, pub, nil)
	// supervisor variant links only on hello-ack; data before that is consumed
	// without reaching the presentation layer
	s.HandlePacket(pkt(protocol.KindPacket, 1, []byte("early")))
	if len(pub.payloads) != 0 {
		t.Fatalf("unlinked session must not publish")
	}
}

func TestOutboundSequenceIncreases(t *testing.T) {
	s, remote := testSession(t, RoleClient, NopPublisher{}, nil)
	s.HandlePacket(pkt(protocol.KindPacket, 1, []byte("x")))

	s.QueuePacket([]byte("a"))
	s.QueuePacket([]byte("b"))
	s.Iterate(time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c := protocol.NewCodec("", false)
	var prev uint64
	for i := 0; i < 2; i++ {
		f, err := remote.Recv(ctx)
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		p, err := c.Decode(f.Data)
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if p.Seq <= prev {
			t.Fatalf("outbound sequence must strictly increase: %d after %d", p.Seq, prev)
		}
		prev = p.Seq
	}
}
