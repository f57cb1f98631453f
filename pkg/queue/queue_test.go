package queue

import (
	"bytes"
	"testing"
)

func TestFIFOOrdering(t *testing.T) {
	q := New()
	q.PushCommand([]byte("c1"))
	q.PushPacket([]byte("p1"))
	q.PushCommand([]byte("c2"))
	q.PushPacket([]byte("p2"))

	want := []struct {
		kind EntryKind
		msg  string
	}{
		{EntryCommand, "c1"},
		{EntryPacket, "p1"},
		{EntryCommand, "c2"},
		{EntryPacket, "p2"},
	}
	for i, w := range want {
		e, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d: unexpected empty", i)
		}
		if e.Kind != w.kind || !bytes.Equal(e.Msg, []byte(w.msg)) {
			t.Fatalf("pop %d: got (%v,%q), want (%v,%q)", i, e.Kind, e.Msg, w.kind, w.msg)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("expected empty signal after draining")
	}
}

func TestEmptiness(t *testing.T) {
	q := New()
	if !q.Empty() || q.Len() != 0 {
		t.Fatalf("new queue should be empty")
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("pop on empty queue must signal empty, not return an entry")
	}
	q.PushPacket([]byte("x"))
	if q.Empty() || q.Len() != 1 {
		t.Fatalf("expected len=1, got %d", q.Len())
	}
	if _, ok := q.Pop(); !ok {
		t.Fatalf("expected entry")
	}
	if !q.Empty() {
		t.Fatalf("queue should be empty again")
	}
}
