package trace

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// Family restricts target resolution to one address family.
type Family int

const (
	// FamilyAny prefers IPv4 but accepts IPv6
	FamilyAny Family = iota
	// FamilyIPv4 only accepts IPv4
	FamilyIPv4
	// FamilyIPv6 only accepts IPv6
	FamilyIPv6
)

// Lookuper resolves host names; *net.Resolver implements it.
type Lookuper interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// ResolveTarget resolves a hostname or IP string to an address.
func ResolveTarget(ctx context.Context, r Lookuper, target string, family Family) (netip.Addr, error) {
	// Check if target is already an IP address
	if addr, err := netip.ParseAddr(target); err == nil {
		addr = addr.Unmap()
		if family == FamilyIPv4 && !addr.Is4() {
			return netip.Addr{}, fmt.Errorf("%s is an IPv6 address but IPv4 was requested", target)
		}
		if family == FamilyIPv6 && addr.Is4() {
			return netip.Addr{}, fmt.Errorf("%s is an IPv4 address but IPv6 was requested", target)
		}
		return addr, nil
	}

	if r == nil {
		r = net.DefaultResolver
	}

	network := "ip"
	switch family {
	case FamilyIPv6:
		network = "ip6"
	case FamilyIPv4:
		network = "ip4"
	}

	addrs, err := r.LookupNetIP(ctx, network, target)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %s: %w", ErrTargetResolution, target, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("%w: no addresses found for %s", ErrTargetResolution, target)
	}

	// Prefer IPv4 unless IPv6 is explicitly requested
	if family != FamilyIPv6 {
		for _, a := range addrs {
			if a.Unmap().Is4() {
				return a.Unmap(), nil
			}
		}
	}

	return addrs[0].Unmap(), nil
}
