package pool

import (
	"time"

	"github.com/btcpeer/btcpeer/lib/peer"
	"github.com/lightningnetwork/lnd/ticker"
)

// BackoffConfig shapes the exponential backoff applied between failed attempts.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the randomization factor, 0 disables it.
	Jitter float64
}

// Config defines how a Pool opens and replaces sessions.
type Config struct {
	// Peer is applied to every session.
	Peer peer.Config

	// DialInterval and DialBurst pace session opens.
	DialInterval time.Duration
	DialBurst    int

	Backoff BackoffConfig

	// StatusInterval is the period of the status log line.
	StatusInterval time.Duration
	// StatusTicker replaces the ticker built from StatusInterval.
	StatusTicker ticker.Ticker

	Metrics Observer
}

// Observer receives the live session count after every change.
type Observer interface {
	PoolAlive(n int)
}

// DefaultConfig returns the defaults used by the btcpeer command.
func DefaultConfig() Config {
	return Config{
		Peer:         peer.DefaultConfig(),
		DialInterval: 200 * time.Millisecond,
		DialBurst:    4,
		Backoff: BackoffConfig{
			Initial:    time.Second,
			Max:        2 * time.Minute,
			Multiplier: 2,
			Jitter:     0.5,
		},
		StatusInterval: time.Minute,
	}
}
