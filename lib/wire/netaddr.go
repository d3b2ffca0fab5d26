package wire

import (
	"fmt"
	"net/netip"
)

// NetAddr is the value of a net_addr or net_addr_notime field.
// Time is only carried on the wire by net_addr.
type NetAddr struct {
	Time     uint32
	Services uint64
	Addr     netip.Addr
	Port     uint16
}

// ZeroNetAddr is the 0.0.0.0:0 address with no services, as sent in our version message.
var ZeroNetAddr = NetAddr{Addr: netip.IPv4Unspecified()}

// AddrPort returns the address and port of a.
func (a NetAddr) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(a.Addr, a.Port)
}

func (a NetAddr) String() string {
	return fmt.Sprintf("%s (services=%d)", a.AddrPort(), a.Services)
}

// InvVect is the value of an inv_vect field.
// Hash is the display (big-endian) hex form of the 32 byte hash.
type InvVect struct {
	Type uint32
	Hash string
}

// Inventory vector types.
const (
	InvTypeError         uint32 = 0
	InvTypeTx            uint32 = 1
	InvTypeBlock         uint32 = 2
	InvTypeFilteredBlock uint32 = 3
	InvTypeCmpctBlock    uint32 = 4
)
