package bootstrap

import (
	"context"
	"errors"
	"net/netip"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// SeedSource resolves a list of seed hostnames in order and merges the results.
// A seed that fails is logged and skipped; only when every seed fails is an
// error returned.
type SeedSource struct {
	resolver Resolver
	seeds    []string
}

// NewSeedSource returns a source resolving seeds through r.
func NewSeedSource(r Resolver, seeds ...string) *SeedSource {
	return &SeedSource{
		resolver: r,
		seeds:    append([]string(nil), seeds...),
	}
}

// Seeds returns the configured seed hostnames.
func (s *SeedSource) Seeds() []string {
	return append([]string(nil), s.seeds...)
}

// Addresses resolves every seed and returns the usable addresses,
// de-duplicated, in resolution order.
func (s *SeedSource) Addresses(ctx context.Context) ([]netip.Addr, error) {
	if len(s.seeds) == 0 {
		return nil, ErrNoSeeds
	}

	stats := NewValidationStats()
	seen := make(map[netip.Addr]struct{})
	var (
		out  []netip.Addr
		errs []error
	)
	for _, seed := range s.seeds {
		if err := ctx.Err(); err != nil {
			return nil, oops.Wrapf(err, "resolving seeds")
		}

		addrs, err := s.resolver.ResolveIPv4(ctx, seed)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"at":   "(SeedSource) Addresses",
				"seed": seed,
			}).Warn("Seed lookup failed, trying next seed")
			errs = append(errs, err)
			continue
		}

		for _, a := range addrs {
			if err := ValidateAddr(a); err != nil {
				stats.RecordInvalid(err.Error())
				continue
			}
			a = a.Unmap()
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			stats.RecordValid()
			out = append(out, a)
		}
	}
	stats.LogSummary("seed_resolution")

	if len(out) == 0 {
		if len(errs) > 0 {
			return nil, oops.Wrapf(errors.Join(errs...), "all %d seeds failed", len(s.seeds))
		}
		return nil, oops.Errorf("%w: seeds returned no usable addresses", ErrResolver)
	}
	return out, nil
}
