// Package dispatch runs the single logical thread of control driving the
// session core. Discrete events (frame received, timer fired, scheduling
// tick, shutdown) are delivered one at a time; every handler runs to
// completion before the next event, so the core itself needs no locking.
package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/RaeveNoir/cc-mek-scada/pkg/transport"
	"github.com/RaeveNoir/cc-mek-scada/pkg/watchdog"
)

// Handler consumes dispatched events on the loop goroutine.
type Handler interface {
	OnFrame(f transport.Frame)
	OnTimer(tok watchdog.Token)
	OnTick()
	OnShutdown()
}

type eventKind int

const (
	evFrame eventKind = iota
	evTimer
	evTick
	evShutdown
)

type event struct {
	kind  eventKind
	frame transport.Frame
	token watchdog.Token
}

// Loop serializes event delivery to a Handler.
type Loop struct {
	h      Handler
	events chan event
	tick   time.Duration
	done   chan struct{}
}

// New builds a loop with the given scheduling tick interval.
func New(h Handler, tick time.Duration) *Loop {
	return &Loop{
		h:      h,
		events: make(chan event, 256),
		tick:   tick,
		done:   make(chan struct{}),
	}
}

// PostFrame delivers an inbound frame to the loop. Safe from any goroutine.
func (l *Loop) PostFrame(f transport.Frame) {
	select {
	case l.events <- event{kind: evFrame, frame: f}:
	default:
		zap.L().Warn("dispatch backlog full, frame dropped", zap.String("from", string(f.From)))
	}
}

// PostTimer delivers a fired watchdog token. Intended as the watchdog fire
// callback.
func (l *Loop) PostTimer(tok watchdog.Token) {
	select {
	case l.events <- event{kind: evTimer, token: tok}:
	default:
		zap.L().Warn("dispatch backlog full, timer token dropped")
	}
}

// Shutdown requests cooperative termination. Run returns after the
// handler's OnShutdown completes.
func (l *Loop) Shutdown() {
	select {
	case l.events <- event{kind: evShutdown}:
	case <-l.done:
	}
}

// Run dispatches until shutdown is requested or ctx is done. It owns the
// tick timer; ticks are delivered as ordinary events so they never
// interleave with frame handling.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.h.OnShutdown()
			return
		case <-ticker.C:
			l.h.OnTick()
		case ev := <-l.events:
			switch ev.kind {
			case evFrame:
				l.h.OnFrame(ev.frame)
			case evTimer:
				l.h.OnTimer(ev.token)
			case evTick:
				l.h.OnTick()
			case evShutdown:
				l.h.OnShutdown()
				return
			}
		}
	}
}
