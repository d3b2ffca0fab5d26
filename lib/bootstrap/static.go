package bootstrap

import (
	"context"
	"net/netip"

	"github.com/samber/oops"
)

// StaticResolver answers every lookup with a fixed address list.
type StaticResolver struct {
	addrs []netip.Addr
}

// NewStaticResolver returns a resolver serving addrs. IPv4-mapped addresses are unmapped.
func NewStaticResolver(addrs ...netip.Addr) *StaticResolver {
	s := &StaticResolver{addrs: make([]netip.Addr, 0, len(addrs))}
	for _, a := range addrs {
		s.addrs = append(s.addrs, a.Unmap())
	}
	return s
}

// ParseStaticResolver parses dotted-quad addresses, as given to --connect.
func ParseStaticResolver(addrs []string) (*StaticResolver, error) {
	parsed := make([]netip.Addr, 0, len(addrs))
	for _, s := range addrs {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, oops.Wrapf(err, "parsing address %q", s)
		}
		if !a.Unmap().Is4() {
			return nil, oops.Errorf("address %q is not IPv4", s)
		}
		parsed = append(parsed, a)
	}
	return NewStaticResolver(parsed...), nil
}

// ResolveIPv4 implements Resolver. The host is ignored.
func (s *StaticResolver) ResolveIPv4(_ context.Context, host string) ([]netip.Addr, error) {
	var out []netip.Addr
	for _, a := range s.addrs {
		if a.Is4() {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil, oops.Errorf("%w: no static IPv4 addresses for %s", ErrResolver, host)
	}
	return out, nil
}
