package enrich

import (
	"context"
	"net"
	"net/netip"

	"github.com/KilimcininKorOglu/parisprobe/internal/trace"
)

// AnnotateTrace fills the hostnames of every hop of res.
func (r *Resolver) AnnotateTrace(ctx context.Context, res *trace.TraceResult) {
	var addrs []netip.Addr
	for _, h := range res.Hops {
		if a, ok := addrOf(h.IP); ok {
			addrs = append(addrs, a)
		}
	}
	names := r.ResolveBatch(ctx, addrs)

	for i := range res.Hops {
		if a, ok := addrOf(res.Hops[i].IP); ok {
			res.Hops[i].Hostname = names[a]
		}
	}
}

// AnnotatePing fills the hostnames of every ping reply.
func (r *Resolver) AnnotatePing(ctx context.Context, res *trace.PingResult) {
	for i := range res.Replies {
		if a, ok := addrOf(res.Replies[i].From); ok {
			res.Replies[i].Hostname, _ = r.Resolve(ctx, a)
		}
	}
}

func addrOf(ip net.IP) (netip.Addr, bool) {
	if ip == nil {
		return netip.Addr{}, false
	}
	a, ok := netip.AddrFromSlice(ip)
	return a.Unmap(), ok
}

// NameOf returns the hostname of ip, or "" when it has none. It blocks on
// the lookup unless the name is cached.
func (r *Resolver) NameOf(ctx context.Context, ip net.IP) string {
	a, ok := addrOf(ip)
	if !ok {
		return ""
	}
	name, _ := r.Resolve(ctx, a)
	return name
}
