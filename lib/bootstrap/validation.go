package bootstrap

import (
	"fmt"
	"net/netip"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var broadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// ValidationStats tracks why resolved addresses were accepted or dropped.
type ValidationStats struct {
	TotalProcessed int
	Valid          int
	Invalid        int
	InvalidReasons map[string]int
}

// NewValidationStats creates an empty ValidationStats.
func NewValidationStats() *ValidationStats {
	return &ValidationStats{
		InvalidReasons: make(map[string]int),
	}
}

// RecordValid counts an accepted address.
func (vs *ValidationStats) RecordValid() {
	vs.TotalProcessed++
	vs.Valid++
}

// RecordInvalid counts a dropped address under reason.
func (vs *ValidationStats) RecordInvalid(reason string) {
	vs.TotalProcessed++
	vs.Invalid++
	vs.InvalidReasons[reason]++
}

// ValidityRate returns the percentage of accepted addresses.
func (vs *ValidationStats) ValidityRate() float64 {
	if vs.TotalProcessed == 0 {
		return 0.0
	}
	return float64(vs.Valid) / float64(vs.TotalProcessed) * 100.0
}

// LogSummary logs the counters.
func (vs *ValidationStats) LogSummary(phase string) {
	log.WithFields(logger.Fields{
		"at":              "ValidationStats.LogSummary",
		"phase":           phase,
		"total_processed": vs.TotalProcessed,
		"valid":           vs.Valid,
		"invalid":         vs.Invalid,
		"validity_rate":   fmt.Sprintf("%.1f%%", vs.ValidityRate()),
	}).Debug("Seed address validation summary")

	if vs.Invalid > 0 {
		log.WithFields(logger.Fields{
			"at":              "ValidationStats.LogSummary",
			"phase":           phase,
			"invalid_reasons": vs.InvalidReasons,
		}).Debug("Invalid seed addresses by reason")
	}
}

// ValidateAddr reports whether a is usable as an outbound peer address.
func ValidateAddr(a netip.Addr) error {
	switch {
	case !a.IsValid():
		return oops.Errorf("invalid address")
	case !a.Unmap().Is4():
		return oops.Errorf("not IPv4")
	case a.Unmap().IsUnspecified():
		return oops.Errorf("unspecified address")
	case a.Unmap().IsMulticast():
		return oops.Errorf("multicast address")
	case a.Unmap() == broadcast:
		return oops.Errorf("broadcast address")
	}
	return nil
}
