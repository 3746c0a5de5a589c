package praktor

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpointRoundTrips(t *testing.T) {
	ep, err := ParseEndpoint("127.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", ep.String())
	assert.True(t, ep.IsV4())
	assert.False(t, ep.IsV6())
}

func TestParseEndpointIPv6(t *testing.T) {
	ep, err := ParseEndpoint("[::1]:53")
	require.NoError(t, err)
	assert.True(t, ep.IsV6())
	assert.EqualValues(t, 53, ep.Port())
}

func TestParseEndpointRejectsMalformed(t *testing.T) {
	_, err := ParseEndpoint("not-an-endpoint")
	assert.True(t, IsKind(err, KindInvalidArgument))
}

func TestEndpointFromTCPAddr(t *testing.T) {
	addr := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 9000}
	ep, err := EndpointFromAddr(addr)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:9000", ep.String())
}

func TestNamedEndpointsAreWellFormed(t *testing.T) {
	assert.True(t, V4Any.IsV4())
	assert.True(t, V6Any.IsV6())
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), V4Loopback.Addr())
}

func TestTCPAddrAndUDPAddrConversionsAreLossless(t *testing.T) {
	ep := NewEndpoint(netip.MustParseAddr("192.168.1.1"), 443)
	assert.Equal(t, "192.168.1.1", ep.TCPAddr().IP.String())
	assert.Equal(t, 443, ep.TCPAddr().Port)
	assert.Equal(t, "192.168.1.1", ep.UDPAddr().IP.String())
}
