// Package packetset describes the packets an invariant applies to as a pair
// of inclusive IPv4 address ranges.
package packetset

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"netpath-verifier/internal/model"
	"netpath-verifier/internal/utils"
)

// ErrUnsupportedOperation is returned by operations a pair of ranges cannot
// represent exactly.
var ErrUnsupportedOperation = errors.New("unsupported packet set operation")

var (
	minAddr = netip.AddrFrom4([4]byte{0, 0, 0, 0})
	maxAddr = netip.AddrFrom4([4]byte{255, 255, 255, 255})
)

// Range is an inclusive address interval.
type Range struct {
	Low  netip.Addr
	High netip.Addr
}

func (r Range) contains(o Range) bool {
	return r.Low.Compare(o.Low) <= 0 && o.High.Compare(r.High) <= 0
}

func (r Range) intersect(o Range) (Range, bool) {
	low, high := r.Low, r.High
	if o.Low.Compare(low) > 0 {
		low = o.Low
	}
	if o.High.Compare(high) < 0 {
		high = o.High
	}
	return Range{Low: low, High: high}, low.Compare(high) <= 0
}

// Bounds returns the numeric interval, as written into range match fields.
func (r Range) Bounds() (uint64, uint64) {
	return utils.AddrToUint(r.Low), utils.AddrToUint(r.High)
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", r.Low, r.High)
}

// PacketSet is either empty or a source range paired with a destination
// range. The zero value is the empty set.
type PacketSet struct {
	src, dst Range
	nonEmpty bool
}

func Empty() PacketSet {
	return PacketSet{}
}

// All matches every IPv4 packet.
func All() PacketSet {
	full := Range{Low: minAddr, High: maxAddr}
	return PacketSet{src: full, dst: full, nonEmpty: true}
}

// New builds a non-empty set from two ranges.
func New(src, dst Range) (PacketSet, error) {
	for _, r := range []Range{src, dst} {
		if !r.Low.Is4() || !r.High.Is4() {
			return PacketSet{}, fmt.Errorf("range %s is not IPv4", r)
		}
		if r.Low.Compare(r.High) > 0 {
			return PacketSet{}, fmt.Errorf("range %s has lower bound above upper bound", r)
		}
	}
	return PacketSet{src: src, dst: dst, nonEmpty: true}, nil
}

// FromSpec parses the packet_set record of an invariant. Each field is an
// address pair [low, high], a single CIDR or address, or omitted for the
// whole address space.
func FromSpec(spec model.PacketSetSpec) (PacketSet, error) {
	src, err := parseRange(spec.SrcIP)
	if err != nil {
		return PacketSet{}, fmt.Errorf("src_ip: %w", err)
	}
	dst, err := parseRange(spec.DstIP)
	if err != nil {
		return PacketSet{}, fmt.Errorf("dst_ip: %w", err)
	}
	return New(src, dst)
}

func parseRange(values []string) (Range, error) {
	switch len(values) {
	case 0:
		return Range{Low: minAddr, High: maxAddr}, nil
	case 1:
		v := strings.TrimSpace(values[0])
		if !strings.Contains(v, "/") {
			addr, err := netip.ParseAddr(v)
			if err != nil {
				return Range{}, err
			}
			return Range{Low: addr, High: addr}, nil
		}
		prefix, err := netip.ParsePrefix(v)
		if err != nil {
			return Range{}, err
		}
		first, last, err := utils.CIDRRange(prefix)
		if err != nil {
			return Range{}, err
		}
		return Range{Low: first, High: last}, nil
	case 2:
		low, err := netip.ParseAddr(strings.TrimSpace(values[0]))
		if err != nil {
			return Range{}, err
		}
		high, err := netip.ParseAddr(strings.TrimSpace(values[1]))
		if err != nil {
			return Range{}, err
		}
		return Range{Low: low, High: high}, nil
	}
	return Range{}, fmt.Errorf("expected [low, high] or a CIDR, got %d values", len(values))
}

func (p PacketSet) IsEmpty() bool {
	return !p.nonEmpty
}

func (p PacketSet) IsAll() bool {
	return p == All()
}

// Src returns the source range; ok is false for the empty set.
func (p PacketSet) Src() (r Range, ok bool) {
	return p.src, p.nonEmpty
}

// Dst returns the destination range; ok is false for the empty set.
func (p PacketSet) Dst() (r Range, ok bool) {
	return p.dst, p.nonEmpty
}

// Contains reports whether every packet of o is in p. The empty set is
// contained in every set and contains only itself.
func (p PacketSet) Contains(o PacketSet) bool {
	if o.IsEmpty() {
		return true
	}
	if p.IsEmpty() {
		return false
	}
	return p.src.contains(o.src) && p.dst.contains(o.dst)
}

func (p PacketSet) Overlaps(o PacketSet) bool {
	return !p.Intersection(o).IsEmpty()
}

func (p PacketSet) Intersection(o PacketSet) PacketSet {
	if p.IsEmpty() || o.IsEmpty() {
		return PacketSet{}
	}
	src, ok := p.src.intersect(o.src)
	if !ok {
		return PacketSet{}
	}
	dst, ok := p.dst.intersect(o.dst)
	if !ok {
		return PacketSet{}
	}
	return PacketSet{src: src, dst: dst, nonEmpty: true}
}

// Union is not representable as a single pair of ranges.
func (p PacketSet) Union(o PacketSet) (PacketSet, error) {
	return PacketSet{}, fmt.Errorf("union of %s and %s: %w", p, o, ErrUnsupportedOperation)
}

// Difference is not representable as a single pair of ranges.
func (p PacketSet) Difference(o PacketSet) (PacketSet, error) {
	return PacketSet{}, fmt.Errorf("difference of %s and %s: %w", p, o, ErrUnsupportedOperation)
}

func (p PacketSet) String() string {
	if p.IsEmpty() {
		return "{}"
	}
	return fmt.Sprintf("{src_ip: %s, dst_ip: %s}", p.src, p.dst)
}
