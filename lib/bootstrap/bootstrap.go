package bootstrap

import (
	"context"
	"net/netip"
)

// Resolver turns a seed hostname into IPv4 addresses.
//
// Implementations return an error wrapping ErrResolver when the lookup fails
// or yields no IPv4 address. Returned addresses are never IPv4-mapped IPv6.
type Resolver interface {
	ResolveIPv4(ctx context.Context, host string) ([]netip.Addr, error)
}
