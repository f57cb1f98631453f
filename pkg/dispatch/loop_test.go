package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/RaeveNoir/cc-mek-scada/pkg/transport"
	"github.com/RaeveNoir/cc-mek-scada/pkg/watchdog"
)

type recordingHandler struct {
	mu     sync.Mutex
	frames []transport.Frame
	tokens []watchdog.Token
	ticks  int
	downs  int
}

func (h *recordingHandler) OnFrame(f transport.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, f)
}

func (h *recordingHandler) OnTimer(tok watchdog.Token) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tokens = append(h.tokens, tok)
}

func (h *recordingHandler) OnTick() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ticks++
}

func (h *recordingHandler) OnShutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.downs++
}

func TestEventsDeliveredInOrder(t *testing.T) {
	h := &recordingHandler{}
	l := New(h, time.Hour)
	go l.Run(context.Background())

	l.PostFrame(transport.Frame{From: "a", Data: []byte{1}})
	l.PostTimer(watchdog.Token(42))
	l.PostFrame(transport.Frame{From: "b", Data: []byte{2}})
	l.Shutdown()

	deadline := time.After(2 * time.Second)
	for {
		h.mu.Lock()
		done := h.downs == 1
		h.mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("loop never shut down")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.frames) != 2 || h.frames[0].From != "a" || h.frames[1].From != "b" {
		t.Fatalf("frames delivered out of order: %+v", h.frames)
	}
	if len(h.tokens) != 1 || h.tokens[0] != 42 {
		t.Fatalf("expected token 42, got %v", h.tokens)
	}
}

func TestTicksDelivered(t *testing.T) {
	h := &recordingHandler{}
	l := New(h, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		h.mu.Lock()
		enough := h.ticks >= 3
		h.mu.Unlock()
		if enough {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("ticks never delivered")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	cancel()
}

func TestContextCancelRunsShutdown(t *testing.T) {
	h := &recordingHandler{}
	l := New(h, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return on context cancel")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.downs != 1 {
		t.Fatalf("OnShutdown calls = %d, want 1", h.downs)
	}
}
