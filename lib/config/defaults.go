package config

import (
	"time"

	"github.com/btcpeer/btcpeer/lib/peer"
	"github.com/btcpeer/btcpeer/lib/pool"
)

// DefaultSeed is the mainnet DNS seed used when none is configured.
const DefaultSeed = "seed.btc.petertodd.org"

// NodeConfig is the effective configuration of a btcpeer node.
type NodeConfig struct {
	// Peers is the number of pool slots.
	Peers int `yaml:"peers"`

	// Seeds are resolved in order for candidate addresses.
	Seeds []string `yaml:"seeds"`

	// Connect replaces seed resolution with fixed IPv4 addresses.
	Connect []string `yaml:"connect,omitempty"`

	// Nameserver ("host:port") is queried directly instead of the system resolver.
	Nameserver string `yaml:"nameserver,omitempty"`

	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	Peer PeerDefaults `yaml:"peer"`
	Pool PoolDefaults `yaml:"pool"`
}

// PeerDefaults holds per-session settings.
type PeerDefaults struct {
	Port            uint16        `yaml:"port"`
	UserAgent       string        `yaml:"user_agent"`
	ProtocolVersion int32         `yaml:"protocol_version"`
	VersionTimeout  time.Duration `yaml:"version_timeout"`
	VerackTimeout   time.Duration `yaml:"verack_timeout"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

// PoolDefaults holds pool pacing and backoff settings.
type PoolDefaults struct {
	DialInterval   time.Duration `yaml:"dial_interval"`
	DialBurst      int           `yaml:"dial_burst"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

// Defaults returns the built-in configuration.
func Defaults() NodeConfig {
	p := pool.DefaultConfig()
	return NodeConfig{
		Peers:    8,
		Seeds:    []string{DefaultSeed},
		LogLevel: "info",
		Peer: PeerDefaults{
			Port:            p.Peer.Port,
			UserAgent:       p.Peer.UserAgent,
			ProtocolVersion: p.Peer.ProtocolVersion,
			VersionTimeout:  p.Peer.HandshakeTimeouts.Version,
			VerackTimeout:   p.Peer.HandshakeTimeouts.Verack,
			DialTimeout:     peer.DefaultDialTimeout,
			WriteTimeout:    p.Peer.WriteTimeout,
		},
		Pool: PoolDefaults{
			DialInterval:   p.DialInterval,
			DialBurst:      p.DialBurst,
			BackoffInitial: p.Backoff.Initial,
			BackoffMax:     p.Backoff.Max,
			StatusInterval: p.StatusInterval,
		},
	}
}
