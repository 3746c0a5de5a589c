package praktor

import "time"

// MustCreateTimer is the panicking form of Loop.CreateTimer, for call
// sites (tests, short-lived tools) that treat loop-closed as a programmer
// error rather than a recoverable condition.
func (l *Loop) MustCreateTimer() *Timer {
	t, err := l.CreateTimer()
	if err != nil {
		panic(err)
	}
	return t
}

// MustSchedule is the panicking form of Loop.Schedule.
func (l *Loop) MustSchedule(delay time.Duration, handler TimerHandler) *Timer {
	t, err := l.Schedule(delay, handler)
	if err != nil {
		panic(err)
	}
	return t
}

// MustCreateAcceptor is the panicking form of Loop.CreateAcceptor.
func (l *Loop) MustCreateAcceptor(opts Options) *Acceptor {
	a, err := l.CreateAcceptor(opts)
	if err != nil {
		panic(err)
	}
	return a
}

// MustCreateAndListen is the panicking form of Loop.CreateAndListen.
func (l *Loop) MustCreateAndListen(opts Options, handler AcceptHandler) *Acceptor {
	a, err := l.CreateAndListen(opts, handler)
	if err != nil {
		panic(err)
	}
	return a
}

// MustCreateTransceiver is the panicking form of Loop.CreateTransceiver.
func (l *Loop) MustCreateTransceiver(opts Options) *Transceiver {
	tr, err := l.CreateTransceiver(opts)
	if err != nil {
		panic(err)
	}
	return tr
}

// MustParseEndpoint is the panicking form of ParseEndpoint, convenient for
// literal addresses known at compile time.
func MustParseEndpoint(hostport string) Endpoint {
	ep, err := ParseEndpoint(hostport)
	if err != nil {
		panic(err)
	}
	return ep
}
