package praktor

// Options configures a Channel, Acceptor, or Transceiver constructor,
// generalized from the teacher's DeviceParams/DefaultDeviceParams
// builder pattern (internal/ctrl/types.go).
type Options struct {
	Endpoint Endpoint

	// Framing governs what Acceptor.Listen delivers for each accepted
	// connection: a raw Channel when false, a FramedChannel (§4.4) when
	// true (§4.5).
	Framing bool

	// ReusePort sets SO_REUSEPORT on an Acceptor's listening socket (which
	// always gets SO_REUSEADDR), mirrored from the socket tuning in
	// other_examples' HydraDNS UDP server. CreateTransceiver does not
	// apply it.
	ReusePort bool
}

// DefaultOptions returns an Options value bound to the wildcard IPv4
// endpoint with framing disabled.
func DefaultOptions() Options {
	return Options{Endpoint: V4Any, Framing: false}
}

// WithEndpoint sets the endpoint and returns the same value for chaining.
func (o Options) WithEndpoint(ep Endpoint) Options {
	o.Endpoint = ep
	return o
}

// WithFraming sets the framing flag and returns the same value for
// chaining.
func (o Options) WithFraming(framing bool) Options {
	o.Framing = framing
	return o
}

// WithReusePort sets the ReusePort flag and returns the same value for
// chaining.
func (o Options) WithReusePort(reuse bool) Options {
	o.ReusePort = reuse
	return o
}
