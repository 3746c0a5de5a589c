package praktor

import (
	"fmt"
	"net"
	"net/netip"
)

// Endpoint is an immutable (address, port) pair, generalized from
// other_examples' use of net/netip.Addr for allocation-free endpoint
// handling (see the HydraDNS UDP server referenced in SPEC_FULL.md §2.2).
// Equality is structural: two Endpoints with the same address and port
// compare equal via ==.
type Endpoint struct {
	addr netip.Addr
	port uint16
}

// Named constants required by §3.
var (
	V4Any       = NewEndpoint(netip.IPv4Unspecified(), 0)
	V6Any       = NewEndpoint(netip.IPv6Unspecified(), 0)
	V4Loopback  = NewEndpoint(netip.MustParseAddr("127.0.0.1"), 0)
	V6Loopback  = NewEndpoint(netip.MustParseAddr("::1"), 0)
)

// NewEndpoint constructs an Endpoint from an address and port.
func NewEndpoint(addr netip.Addr, port uint16) Endpoint {
	return Endpoint{addr: addr.Unmap(), port: port}
}

// ParseEndpoint parses a "host:port" string into an Endpoint.
func ParseEndpoint(hostport string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Endpoint{}, invalidArgErr("parse_endpoint", err.Error())
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return Endpoint{}, invalidArgErr("parse_endpoint", err.Error())
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return Endpoint{}, invalidArgErr("parse_endpoint", "malformed port")
	}
	return NewEndpoint(addr, port), nil
}

// EndpointFromAddr converts a net.Addr (as returned by net.Conn/
// net.PacketConn) to an Endpoint. Conversion may fail with
// AddressFamilyNotSupported if addr is neither TCP nor UDP shaped.
func EndpointFromAddr(a net.Addr) (Endpoint, error) {
	switch v := a.(type) {
	case *net.TCPAddr:
		addr, ok := netip.AddrFromSlice(v.IP)
		if !ok {
			return Endpoint{}, NewError("endpoint_from_addr", KindAddressFamilyNotSupported, "unrecognized IP bytes")
		}
		return NewEndpoint(addr, uint16(v.Port)), nil
	case *net.UDPAddr:
		addr, ok := netip.AddrFromSlice(v.IP)
		if !ok {
			return Endpoint{}, NewError("endpoint_from_addr", KindAddressFamilyNotSupported, "unrecognized IP bytes")
		}
		return NewEndpoint(addr, uint16(v.Port)), nil
	default:
		ep, err := ParseEndpoint(a.String())
		if err != nil {
			return Endpoint{}, NewError("endpoint_from_addr", KindAddressFamilyNotSupported, "unsupported address type")
		}
		return ep, nil
	}
}

// Addr returns the endpoint's address.
func (e Endpoint) Addr() netip.Addr { return e.addr }

// Port returns the endpoint's port.
func (e Endpoint) Port() uint16 { return e.port }

// IsV4 reports whether the endpoint's address is an IPv4 address.
func (e Endpoint) IsV4() bool { return e.addr.Is4() }

// IsV6 reports whether the endpoint's address is an IPv6 address.
func (e Endpoint) IsV6() bool { return e.addr.Is6() && !e.addr.Is4() }

// String renders the endpoint as "host:port".
func (e Endpoint) String() string {
	return net.JoinHostPort(e.addr.String(), fmt.Sprintf("%d", e.port))
}

// TCPAddr converts the endpoint to the OS socket-address form used by the
// net package's TCP operations. Conversion is lossless.
func (e Endpoint) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: e.addr.AsSlice(), Port: int(e.port)}
}

// UDPAddr converts the endpoint to the OS socket-address form used by the
// net package's UDP operations. Conversion is lossless.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.addr.AsSlice(), Port: int(e.port)}
}
