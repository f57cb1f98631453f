// Command scada-client runs a minimal remote client session: it links to
// the coordinator, publishes status packets, answers commands, and keeps
// the link alive with heartbeats.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/RaeveNoir/cc-mek-scada/pkg/config"
	"github.com/RaeveNoir/cc-mek-scada/pkg/observability"
	"github.com/RaeveNoir/cc-mek-scada/pkg/protocol"
	"github.com/RaeveNoir/cc-mek-scada/pkg/protocol/codec"
	"github.com/RaeveNoir/cc-mek-scada/pkg/transport"
	"github.com/RaeveNoir/cc-mek-scada/pkg/transport/quic"
	"github.com/RaeveNoir/cc-mek-scada/pkg/transport/udp"
)

// Options holds CLI options for the client.
type Options struct {
	ConfigPath string
	Address    string
	Kind       string
	StationID  uint64
	StatusMS   int
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("scada-client", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
	fs.StringVar(&opts.Address, "addr", "127.0.0.1:16000", "Coordinator channel address")
	fs.StringVar(&opts.Kind, "kind", "udp", "Channel kind: udp or quic")
	fs.Uint64Var(&opts.StationID, "station", 0, "Station id (overrides config)")
	fs.IntVar(&opts.StatusMS, "status-interval", 2000, "Status publication interval in ms")
	_ = fs.Parse(args)
	return opts
}

func main() {
	os.Exit(run(ParseFlags(os.Args[1:])))
}

func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}
	if opts.StationID != 0 {
		cfg.StationID = opts.StationID
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := openChannel(ctx, opts)
	if err != nil {
		zap.L().Error("failed to open channel", zap.Error(err))
		return 1
	}
	defer func() { _ = ch.Close() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	c := &client{
		codec:    protocol.NewCodec(cfg.AuthKey, cfg.AcceptTagged),
		reg:      codec.NewRegistry(),
		ch:       ch,
		peer:     transport.Addr(opts.Address),
		station:  cfg.StationID,
		nextSeq:  1,
		link:     cfg.Link,
		statusIv: time.Duration(opts.StatusMS) * time.Millisecond,
	}
	if err := c.run(ctx); err != nil && ctx.Err() == nil {
		zap.L().Error("client stopped", zap.Error(err))
		return 1
	}
	zap.L().Info("scada-client stopped")
	return 0
}

func openChannel(ctx context.Context, opts Options) (transport.Channel, error) {
	switch opts.Kind {
	case "udp":
		return udp.Dial(opts.Address)
	case "quic":
		return quic.Dial(ctx, opts.Address)
	default:
		return nil, fmt.Errorf("unsupported channel kind: %q", opts.Kind)
	}
}

type client struct {
	codec    *protocol.Codec
	reg      *codec.Registry
	ch       transport.Channel
	peer     transport.Addr
	station  uint64
	nextSeq  uint64
	lastSeq  uint64
	seen     bool
	lastSend time.Time
	link     config.LinkConfig
	statusIv time.Duration
}

func (c *client) run(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	zap.L().Info("linked to coordinator", zap.String("addr", string(c.peer)))

	statusT := time.NewTicker(c.statusIv)
	defer statusT.Stop()
	hbT := time.NewTicker(c.link.LinkTimeout() / 3)
	defer hbT.Stop()

	frames := make(chan transport.Frame, 32)
	go func() {
		for {
			f, err := c.ch.Recv(ctx)
			if err != nil {
				close(frames)
				return
			}
			frames <- f
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.send(protocol.KindClose, nil)
			return nil
		case <-hbT.C:
			if time.Since(c.lastSend) > c.link.LinkTimeout()/3 {
				_ = c.send(protocol.KindHeartbeat, nil)
			}
		case <-statusT.C:
			if err := c.publishStatus(); err != nil {
				zap.L().Warn("status publish failed", zap.Error(err))
			}
		case f, ok := <-frames:
			if !ok {
				return fmt.Errorf("channel closed")
			}
			if done := c.handleFrame(f); done {
				return nil
			}
		}
	}
}

// connect performs the handshake: hello, then wait for the ack within the
// connect timeout. Timeout is a recoverable failure surfaced to the caller.
func (c *client) connect(ctx context.Context) error {
	if err := c.send(protocol.KindHello, nil); err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, c.link.ConnectTimeout())
	defer cancel()
	for {
		f, err := c.ch.Recv(cctx)
		if err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
		p, err := c.codec.Decode(f.Data)
		if err != nil {
			zap.L().Warn("dropping frame during handshake", zap.Error(err))
			continue
		}
		if !c.accept(p) {
			continue
		}
		if p.Kind == protocol.KindHelloAck {
			return nil
		}
	}
}

// accept applies the sequence discipline: stale and duplicate frames are
// dropped silently.
func (c *client) accept(p *protocol.Packet) bool {
	if c.seen && p.Seq <= c.lastSeq {
		return false
	}
	c.lastSeq = p.Seq
	c.seen = true
	return true
}

func (c *client) handleFrame(f transport.Frame) bool {
	p, err := c.codec.Decode(f.Data)
	if err != nil {
		zap.L().Warn("dropping frame", zap.Error(err))
		return false
	}
	if !c.accept(p) {
		return false
	}
	switch p.Kind {
	case protocol.KindClose:
		zap.L().Info("coordinator closed the link")
		return true
	case protocol.KindCommand:
		var cmd map[string]any
		if _, err := protocol.DecodeBody(c.reg, p.Payload, &cmd); err != nil {
			zap.L().Warn("bad command body", zap.Error(err))
			return false
		}
		zap.L().Info("command received", zap.Any("cmd", cmd))
	}
	return false
}

func (c *client) publishStatus() error {
	body, err := protocol.EncodeBody(c.reg, protocol.FormatCBOR, map[string]any{
		"station": c.station,
		"ts":      time.Now().UnixMilli(),
		"ok":      true,
	})
	if err != nil {
		return err
	}
	return c.send(protocol.KindPacket, body)
}

func (c *client) send(kind uint8, payload []byte) error {
	p := &protocol.Packet{Kind: kind, Sender: c.station, Seq: c.nextSeq, Payload: payload}
	frame, err := c.codec.Encode(p)
	if err != nil {
		return err
	}
	c.nextSeq++
	c.lastSend = time.Now()
	return c.ch.Send(c.peer, frame)
}
