package peer

import (
	"context"
	"net"
	"time"

	"github.com/btcpeer/btcpeer/lib/wire"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// DefaultProtocolVersion is the protocol version announced in version.
	DefaultProtocolVersion int32 = 70012

	// DefaultUserAgent is the user agent announced in version.
	DefaultUserAgent = "/Satoshi:28.1.0/"

	// DefaultHandshakeTimeout applies to each of version and verack.
	DefaultHandshakeTimeout = 5 * time.Second

	// DefaultDialTimeout bounds the TCP connect.
	DefaultDialTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second

	readBufferSize = 64 * 1024
)

// Dialer opens the outbound TCP connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Observer receives session lifecycle and frame events.
// The metrics package provides an implementation.
type Observer interface {
	wire.FrameObserver
	SessionOpened()
	SessionEstablished()
	SessionTerminated(reason string)
}

// MessageHandler receives every message other than version and verack
// once the session is established. Returning an error terminates the session.
type MessageHandler func(s *Session, msg wire.Message) error

// HandshakeTimeouts holds the two independent handshake deadlines.
type HandshakeTimeouts struct {
	Version time.Duration
	Verack  time.Duration
}

// Config holds the settings shared by every session of a pool.
type Config struct {
	// Network is passed to the Dialer, normally "tcp4".
	Network string

	// Port is used when the session address carries port 0.
	Port uint16

	HandshakeTimeouts HandshakeTimeouts
	WriteTimeout      time.Duration

	UserAgent       string
	ProtocolVersion int32

	// MaxResidue caps buffered unframed bytes, see wire.NewReframer.
	MaxResidue int

	Clock   clock.Clock
	Dialer  Dialer
	Metrics Observer
	Handler MessageHandler
}

// DefaultConfig returns the mainnet client defaults.
func DefaultConfig() Config {
	return Config{
		Network: "tcp4",
		Port:    wire.DefaultPort,
		HandshakeTimeouts: HandshakeTimeouts{
			Version: DefaultHandshakeTimeout,
			Verack:  DefaultHandshakeTimeout,
		},
		WriteTimeout:    DefaultWriteTimeout,
		UserAgent:       DefaultUserAgent,
		ProtocolVersion: DefaultProtocolVersion,
		MaxResidue:      wire.DefaultMaxResidue,
		Clock:           clock.NewDefaultClock(),
		Dialer:          &net.Dialer{Timeout: DefaultDialTimeout},
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Network == "" {
		c.Network = d.Network
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.HandshakeTimeouts.Version <= 0 {
		c.HandshakeTimeouts.Version = d.HandshakeTimeouts.Version
	}
	if c.HandshakeTimeouts.Verack <= 0 {
		c.HandshakeTimeouts.Verack = d.HandshakeTimeouts.Verack
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = d.ProtocolVersion
	}
	if c.MaxResidue <= 0 {
		c.MaxResidue = d.MaxResidue
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	if c.Dialer == nil {
		c.Dialer = d.Dialer
	}
	return c
}
