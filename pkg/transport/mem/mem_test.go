package mem

import (
	"context"
	"testing"
	"time"
)

func TestDeliveryTagsSender(t *testing.T) {
	hub := NewHub()
	a, err := hub.Open("a")
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	b, err := hub.Open("b")
	if err != nil {
		t.Fatalf("open b: %v", err)
	}

	if err := a.Send("b", []byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, err := b.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if f.From != "a" {
		t.Fatalf("frame.From = %q, want a", f.From)
	}
	if string(f.Data) != "ping" {
		t.Fatalf("frame.Data = %q, want ping", f.Data)
	}
}

func TestDeliveryCopiesData(t *testing.T) {
	hub := NewHub()
	a, _ := hub.Open("a")
	b, _ := hub.Open("b")

	buf := []byte("original")
	if err := a.Send("b", buf); err != nil {
		t.Fatalf("send: %v", err)
	}
	copy(buf, "mutated!")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, err := b.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(f.Data) != "original" {
		t.Fatalf("frame shares caller buffer: got %q", f.Data)
	}
}

func TestDuplicateName(t *testing.T) {
	hub := NewHub()
	if _, err := hub.Open("a"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := hub.Open("a"); err == nil {
		t.Fatalf("duplicate endpoint name should be rejected")
	}
}

func TestSendToUnknownEndpoint(t *testing.T) {
	hub := NewHub()
	a, _ := hub.Open("a")
	if err := a.Send("ghost", []byte("x")); err == nil {
		t.Fatalf("send to unknown endpoint should fail")
	}
}

func TestCloseUnblocksRecv(t *testing.T) {
	hub := NewHub()
	a, _ := hub.Open("a")

	done := make(chan error, 1)
	go func() {
		_, err := a.Recv(context.Background())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	a.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("Recv after Close should fail")
		}
	case <-time.After(time.Second):
		t.Fatalf("Recv did not unblock on Close")
	}
}
