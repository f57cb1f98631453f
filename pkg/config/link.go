package config

import "time"

// LinkConfig contains session/link timing options.
type LinkConfig struct {
	// ConnectTimeoutMS bounds the handshake (CONNECTING) phase.
	ConnectTimeoutMS int `mapstructure:"connect_timeout_ms"`
	// LinkTimeoutMS bounds silence on an established (LINKED) session.
	LinkTimeoutMS int `mapstructure:"link_timeout_ms"`
	// TickIntervalMS is the scheduling tick driving time-based behavior.
	TickIntervalMS int `mapstructure:"tick_interval_ms"`
	// CloseGraceMS bounds the CLOSING flush on shutdown.
	CloseGraceMS int `mapstructure:"close_grace_ms"`
	// SupervisorAddr is the channel address of the supervisor process.
	SupervisorAddr string `mapstructure:"supervisor_addr"`
}

func (l LinkConfig) ConnectTimeout() time.Duration { return time.Duration(l.ConnectTimeoutMS) * time.Millisecond }
func (l LinkConfig) LinkTimeout() time.Duration { return time.Duration(l.LinkTimeoutMS) * time.Millisecond }
func (l LinkConfig) TickInterval() time.Duration { return time.Duration(l.TickIntervalMS) * time.Millisecond }
func (l LinkConfig) CloseGrace() time.Duration { return time.Duration(l.CloseGraceMS) * time.Millisecond }
