// Package config loads the btcpeer node configuration.
//
// Values come, in increasing priority, from built-in defaults, an optional
// YAML file ($HOME/.btcpeer/config.yaml or --config), BTCPEER_* environment
// variables and command-line flags bound by the caller. Nested keys map to
// environment variables with "." replaced by "_", so peer.verack_timeout is
// BTCPEER_PEER_VERACK_TIMEOUT.
//
// Example file:
//
//	peers: 8
//	seeds:
//	  - seed.btc.petertodd.org
//	nameserver: 1.1.1.1:53
//	log_level: debug
//	peer:
//	  verack_timeout: 10s
package config
