package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/RaeveNoir/cc-mek-scada/pkg/config"
	"github.com/RaeveNoir/cc-mek-scada/pkg/dispatch"
	"github.com/RaeveNoir/cc-mek-scada/pkg/observability"
	"github.com/RaeveNoir/cc-mek-scada/pkg/protocol"
	"github.com/RaeveNoir/cc-mek-scada/pkg/session"
	"github.com/RaeveNoir/cc-mek-scada/pkg/transport"
	"github.com/RaeveNoir/cc-mek-scada/pkg/transport/quic"
	"github.com/RaeveNoir/cc-mek-scada/pkg/transport/udp"
	"github.com/RaeveNoir/cc-mek-scada/pkg/watchdog"
)

func main() {
	os.Exit(run(ParseFlags(os.Args[1:])))
}

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("scada-coordinator started",
		zap.String("app", cfg.AppName),
		zap.Uint64("station", cfg.StationID),
		zap.Bool("authenticated", cfg.AuthKey != ""))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := openChannel(ctx, cfg)
	if err != nil {
		zap.L().Error("failed to open channel", zap.Error(err))
		return 1
	}
	defer func() { _ = ch.Close() }()
	zap.L().Info("channel open",
		zap.String("kind", ch.Kind().String()),
		zap.String("addr", ch.LocalAddr()))

	codec := protocol.NewCodec(cfg.AuthKey, cfg.AcceptTagged)
	pub := &logPublisher{}

	var loop *dispatch.Loop
	mgr := session.NewManager(cfg.StationID, codec, ch, cfg.Link, pub,
		func(tok watchdog.Token) { loop.PostTimer(tok) })
	loop = dispatch.New(&handler{mgr: mgr}, cfg.Link.TickInterval())

	// Supervisor link first; failure is recoverable and retried from ticks
	// by the operator, not fatal.
	if opts.Connect && cfg.Link.SupervisorAddr != "" {
		if ok, startUI := mgr.TryConnect(ctx, false); ok {
			zap.L().Info("supervisor link established", zap.Bool("start_ui", startUI))
		} else {
			zap.L().Warn("supervisor link not established, continuing headless")
		}
	}

	// Pump inbound frames into the loop.
	go func() {
		for {
			f, err := ch.Recv(ctx)
			if err != nil {
				return
			}
			loop.PostFrame(f)
		}
	}()

	// Signal-driven cooperative shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		zap.L().Info("shutdown requested")
		loop.Shutdown()
	}()

	loop.Run(ctx)
	zap.L().Info("scada-coordinator stopped")
	return 0
}

func openChannel(ctx context.Context, cfg *config.Config) (transport.Channel, error) {
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("no channels configured")
	}
	c := cfg.Channels[0]
	switch c.Kind {
	case "udp":
		return udp.Listen(c.Listen)
	case "quic":
		return quic.Listen(ctx, c.Listen)
	default:
		return nil, fmt.Errorf("unsupported channel kind: %q", c.Kind)
	}
}

// logPublisher is the presentation-state stand-in: it exposes the link
// facts the UI layer would consume.
type logPublisher struct{}

func (*logPublisher) LinkUp(peer transport.Addr) {
	zap.L().Info("link up", zap.String("peer", string(peer)))
}

func (*logPublisher) LinkDown(peer transport.Addr) {
	zap.L().Info("link down", zap.String("peer", string(peer)))
}

func (*logPublisher) Publish(peer transport.Addr, kind uint8, payload []byte) {
	zap.L().Debug("payload published",
		zap.String("peer", string(peer)),
		zap.String("kind", protocol.KindName(kind)),
		zap.Int("bytes", len(payload)))
}

// handler adapts the session manager to the dispatch loop.
type handler struct {
	mgr *session.Manager
}

func (h *handler) OnFrame(f transport.Frame) { h.mgr.Route(f) }
func (h *handler) OnTimer(tok watchdog.Token) { h.mgr.CheckWatchdogs(tok) }
func (h *handler) OnTick() {
	h.mgr.IterateAll()
	h.mgr.FreeClosed()
}
func (h *handler) OnShutdown() { h.mgr.CloseAll() }
