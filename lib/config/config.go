package config

import (
	"errors"
	"net"
	"net/netip"
	"path/filepath"
	"strings"

	"github.com/btcpeer/btcpeer/lib/peer"
	"github.com/btcpeer/btcpeer/lib/pool"
	"github.com/btcpeer/btcpeer/lib/util"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	// CfgFile is an explicit config file path, set from --config.
	CfgFile string
	log     = logger.GetGoI2PLogger()
)

const (
	// BaseDirName is the per-user directory searched for config.yaml.
	BaseDirName = ".btcpeer"
	// EnvPrefix prefixes environment overrides, e.g. BTCPEER_PEERS.
	EnvPrefix = "BTCPEER"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// InitConfig prepares the global viper instance: defaults, environment
// overrides and an optional YAML file. A missing default file is not an
// error; a missing explicit file is.
func InitConfig() error {
	if CfgFile != "" {
		viper.SetConfigFile(CfgFile)
	} else {
		viper.AddConfigPath(BuildDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	return handleConfigFile()
}

func setDefaults() {
	d := Defaults()

	viper.SetDefault("peers", d.Peers)
	viper.SetDefault("seeds", d.Seeds)
	viper.SetDefault("connect", []string{})
	viper.SetDefault("nameserver", "")
	viper.SetDefault("log_level", d.LogLevel)
	viper.SetDefault("metrics_addr", "")

	viper.SetDefault("peer.port", d.Peer.Port)
	viper.SetDefault("peer.user_agent", d.Peer.UserAgent)
	viper.SetDefault("peer.protocol_version", d.Peer.ProtocolVersion)
	viper.SetDefault("peer.version_timeout", d.Peer.VersionTimeout)
	viper.SetDefault("peer.verack_timeout", d.Peer.VerackTimeout)
	viper.SetDefault("peer.dial_timeout", d.Peer.DialTimeout)
	viper.SetDefault("peer.write_timeout", d.Peer.WriteTimeout)

	viper.SetDefault("pool.dial_interval", d.Pool.DialInterval)
	viper.SetDefault("pool.dial_burst", d.Pool.DialBurst)
	viper.SetDefault("pool.backoff_initial", d.Pool.BackoffInitial)
	viper.SetDefault("pool.backoff_max", d.Pool.BackoffMax)
	viper.SetDefault("pool.status_interval", d.Pool.StatusInterval)
}

func handleConfigFile() error {
	err := viper.ReadInConfig()
	if err == nil {
		log.WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) && CfgFile == "" {
		log.WithField("dir", BuildDirPath()).Debug("No config file found, using defaults")
		return nil
	}
	return oops.Wrapf(err, "reading config file %q", CfgFile)
}

// NewNodeConfigFromViper builds a NodeConfig from the current viper settings
// and validates it.
func NewNodeConfigFromViper() (*NodeConfig, error) {
	cfg := &NodeConfig{
		Peers:       viper.GetInt("peers"),
		Seeds:       viper.GetStringSlice("seeds"),
		Connect:     viper.GetStringSlice("connect"),
		Nameserver:  viper.GetString("nameserver"),
		LogLevel:    viper.GetString("log_level"),
		MetricsAddr: viper.GetString("metrics_addr"),
		Peer: PeerDefaults{
			Port:            viper.GetUint16("peer.port"),
			UserAgent:       viper.GetString("peer.user_agent"),
			ProtocolVersion: viper.GetInt32("peer.protocol_version"),
			VersionTimeout:  viper.GetDuration("peer.version_timeout"),
			VerackTimeout:   viper.GetDuration("peer.verack_timeout"),
			DialTimeout:     viper.GetDuration("peer.dial_timeout"),
			WriteTimeout:    viper.GetDuration("peer.write_timeout"),
		},
		Pool: PoolDefaults{
			DialInterval:   viper.GetDuration("pool.dial_interval"),
			DialBurst:      viper.GetInt("pool.dial_burst"),
			BackoffInitial: viper.GetDuration("pool.backoff_initial"),
			BackoffMax:     viper.GetDuration("pool.backoff_max"),
			StatusInterval: viper.GetDuration("pool.status_interval"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns the first problem found, wrapping ErrInvalid.
func (c *NodeConfig) Validate() error {
	validators := []func() error{
		c.validatePool,
		c.validateSources,
		c.validatePeer,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			log.WithError(err).WithFields(logger.Fields{"at": "(NodeConfig) Validate"}).Error("Configuration validation failed")
			return err
		}
	}
	return nil
}

func (c *NodeConfig) validatePool() error {
	if c.Peers < 1 {
		return oops.Errorf("%w: peers must be at least 1, got %d", ErrInvalid, c.Peers)
	}
	if c.Pool.DialBurst < 1 {
		return oops.Errorf("%w: pool.dial_burst must be at least 1", ErrInvalid)
	}
	if c.Pool.BackoffInitial <= 0 || c.Pool.BackoffMax < c.Pool.BackoffInitial {
		return oops.Errorf("%w: pool backoff needs 0 < backoff_initial <= backoff_max", ErrInvalid)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return oops.Errorf("%w: log_level: %v", ErrInvalid, err)
	}
	return nil
}

func (c *NodeConfig) validateSources() error {
	if len(c.Connect) == 0 && len(c.Seeds) == 0 {
		return oops.Errorf("%w: no seeds and no connect addresses", ErrInvalid)
	}
	for _, s := range c.Connect {
		a, err := netip.ParseAddr(s)
		if err != nil || !a.Unmap().Is4() {
			return oops.Errorf("%w: connect address %q is not IPv4", ErrInvalid, s)
		}
	}
	if c.Nameserver != "" {
		if _, _, err := net.SplitHostPort(c.Nameserver); err != nil {
			return oops.Errorf("%w: nameserver %q: %v", ErrInvalid, c.Nameserver, err)
		}
	}
	return nil
}

func (c *NodeConfig) validatePeer() error {
	if c.Peer.VersionTimeout <= 0 || c.Peer.VerackTimeout <= 0 {
		return oops.Errorf("%w: handshake timeouts must be positive", ErrInvalid)
	}
	if c.Peer.UserAgent == "" {
		return oops.Errorf("%w: peer.user_agent is empty", ErrInvalid)
	}
	return nil
}

// PoolConfig converts c into the pool and session settings.
func (c *NodeConfig) PoolConfig() pool.Config {
	p := pool.DefaultConfig()
	p.Peer.Port = c.Peer.Port
	p.Peer.UserAgent = c.Peer.UserAgent
	p.Peer.ProtocolVersion = c.Peer.ProtocolVersion
	p.Peer.HandshakeTimeouts = peer.HandshakeTimeouts{
		Version: c.Peer.VersionTimeout,
		Verack:  c.Peer.VerackTimeout,
	}
	p.Peer.WriteTimeout = c.Peer.WriteTimeout
	p.Peer.Dialer = &net.Dialer{Timeout: c.Peer.DialTimeout}

	p.DialInterval = c.Pool.DialInterval
	p.DialBurst = c.Pool.DialBurst
	p.Backoff.Initial = c.Pool.BackoffInitial
	p.Backoff.Max = c.Pool.BackoffMax
	p.StatusInterval = c.Pool.StatusInterval
	return p
}

// YAML renders c as a config file.
func (c *NodeConfig) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, oops.Wrapf(err, "encoding configuration")
	}
	return out, nil
}

// BuildDirPath returns $HOME/.btcpeer.
func BuildDirPath() string {
	return filepath.Join(util.UserHome(), BaseDirName)
}
