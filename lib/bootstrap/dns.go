package bootstrap

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/go-i2p/logger"
	"github.com/miekg/dns"
	"github.com/samber/oops"
)

// DefaultDNSTimeout bounds a single direct A query.
const DefaultDNSTimeout = 5 * time.Second

// DNSResolver resolves seeds through DNS.
//
// With no nameserver it uses the system resolver. With a nameserver
// ("host:port") it sends A queries there directly, bypassing the system
// configuration.
type DNSResolver struct {
	nameserver string
	timeout    time.Duration
	system     *net.Resolver
}

// NewDNSResolver returns a resolver. An empty nameserver selects the system resolver.
func NewDNSResolver(nameserver string) *DNSResolver {
	return &DNSResolver{
		nameserver: nameserver,
		timeout:    DefaultDNSTimeout,
		system:     net.DefaultResolver,
	}
}

// ResolveIPv4 implements Resolver.
func (r *DNSResolver) ResolveIPv4(ctx context.Context, host string) ([]netip.Addr, error) {
	var (
		addrs []netip.Addr
		err   error
	)
	if r.nameserver == "" {
		addrs, err = r.lookupSystem(ctx, host)
	} else {
		addrs, err = r.lookupDirect(ctx, host)
	}
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, oops.Errorf("%w: %s has no A records", ErrResolver, host)
	}

	log.WithFields(logger.Fields{
		"at":         "(DNSResolver) ResolveIPv4",
		"host":       host,
		"nameserver": r.nameserver,
		"count":      len(addrs),
	}).Debug("Resolved seed")
	return addrs, nil
}

func (r *DNSResolver) lookupSystem(ctx context.Context, host string) ([]netip.Addr, error) {
	found, err := r.system.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return nil, oops.Errorf("%w: %s: %v", ErrResolver, host, err)
	}
	addrs := make([]netip.Addr, 0, len(found))
	for _, a := range found {
		if a = a.Unmap(); a.Is4() {
			addrs = append(addrs, a)
		}
	}
	return addrs, nil
}

// lookupDirect queries the nameserver with a per-call client, whose timeout
// is the smaller of the default and the context deadline.
func (r *DNSResolver) lookupDirect(ctx context.Context, host string) ([]netip.Addr, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Errorf("%w: %s: %v", ErrResolver, host, err)
	}
	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	client := &dns.Client{Net: "udp", Timeout: timeout}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	resp, _, err := client.Exchange(msg, r.nameserver)
	if err != nil {
		return nil, oops.Errorf("%w: %s via %s: %v", ErrResolver, host, r.nameserver, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, oops.Errorf("%w: %s via %s: %s", ErrResolver, host, r.nameserver,
			dns.RcodeToString[resp.Rcode])
	}

	var addrs []netip.Addr
	for _, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.A.To4()); ok {
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}
