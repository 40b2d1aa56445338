package utils

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// AddrToUint converts an IPv4 address to its numeric value.
func AddrToUint(addr netip.Addr) uint64 {
	b := addr.Unmap().As4()
	return uint64(binary.BigEndian.Uint32(b[:]))
}

// UintToAddr is the inverse of AddrToUint.
func UintToAddr(v uint64) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return netip.AddrFrom4(b)
}

// CIDRSize returns the number of addresses in a prefix.
func CIDRSize(prefix netip.Prefix) uint64 {
	return 1 << (prefix.Addr().BitLen() - prefix.Bits())
}

// CIDRRange returns the first and last address covered by an IPv4 prefix.
func CIDRRange(prefix netip.Prefix) (netip.Addr, netip.Addr, error) {
	if !prefix.Addr().Is4() {
		return netip.Addr{}, netip.Addr{}, fmt.Errorf("not an IPv4 prefix: %s", prefix)
	}
	first := prefix.Masked().Addr()
	last := UintToAddr(AddrToUint(first) + CIDRSize(prefix) - 1)
	return first, last, nil
}

// PrefixMask returns the numeric IPv4 netmask of a prefix length.
func PrefixMask(bits int) uint64 {
	if bits <= 0 {
		return 0
	}
	return (uint64(0xffffffff) << (32 - bits)) & 0xffffffff
}
