package reputation

import (
	"fmt"
	"net/netip"
	"strings"
)

// RangeSet matches addresses against dotted string prefixes ("185.220.101.")
// and CIDR blocks ("34.64.0.0/10")
type RangeSet struct {
	prefixes []string
	networks []netip.Prefix
}

// NewRangeSet parses entries; anything containing a slash must be a valid CIDR
func NewRangeSet(entries []string) (*RangeSet, error) {
	rs := &RangeSet{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid network %q: %w", e, err)
			}
			rs.networks = append(rs.networks, p.Masked())
			continue
		}
		rs.prefixes = append(rs.prefixes, e)
	}
	return rs, nil
}

// Contains reports whether ip falls in any range
func (rs *RangeSet) Contains(ip string) bool {
	for _, p := range rs.prefixes {
		if strings.HasPrefix(ip, p) {
			return true
		}
	}

	if len(rs.networks) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, n := range rs.networks {
		if n.Contains(addr) {
			return true
		}
	}
	return false
}
