// Package bootstrap discovers initial peer addresses from DNS seeds.
//
// A Resolver looks up the IPv4 addresses behind one seed hostname. DNSResolver
// uses the system resolver, or queries A records directly with miekg/dns when
// a nameserver is configured. StaticResolver serves a fixed list and backs the
// --connect flag.
//
// SeedSource resolves a list of seeds in order, drops unusable addresses
// (unspecified, multicast, broadcast) and returns the rest
// de-duplicated in resolution order. ValidationStats records why addresses
// were dropped.
package bootstrap
