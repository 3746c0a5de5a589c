package praktor

import (
	"context"
	"net"
	"net/netip"

	"github.com/edgeofmagic/praktor/internal/reactorcore"
)

// ResolveHandler is invoked at most once: with the resolved addresses, in
// first-seen order with duplicates removed, or with a non-nil error if
// resolution failed (§4.7). It is not invoked if the loop is closed before
// the result is dispatched.
type ResolveHandler func(addrs []netip.Addr, err error)

type resolveResult struct {
	addrs   []netip.Addr
	handler ResolveHandler
}

// startResolve launches a background lookup for host and posts its result
// to the loop. It never blocks the caller. Loop.Close does not cancel the
// lookup itself, and it does not report a cancellation to handler: a
// result posted after Close has closed the demultiplexer is dropped, and a
// result still queued when Close returns is never dispatched, so in both
// cases handler is not called.
func startResolve(l *Loop, host string, handler ResolveHandler) error {
	go func() {
		ips, err := l.resolver.LookupIPAddr(context.Background(), host)
		if err != nil {
			l.post(reactorcore.Completion{
				Kind: reactorcore.KindResolve,
				Data: resolveResult{handler: handler},
				Err:  WrapError("resolve", err),
			})
			return
		}
		l.post(reactorcore.Completion{
			Kind: reactorcore.KindResolve,
			Data: resolveResult{addrs: dedupeAddrs(ips), handler: handler},
		})
	}()
	return nil
}

// dedupeAddrs converts resolved IP addresses to netip.Addr, preserving the
// resolver's order and dropping repeats (a single host frequently maps to
// the same address via both its A record and a CNAME chain).
func dedupeAddrs(ips []net.IPAddr) []netip.Addr {
	seen := make(map[netip.Addr]bool, len(ips))
	out := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}
