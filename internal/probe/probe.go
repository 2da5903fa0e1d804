// Package probe checks whether a peer accepts transport connections.
package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/go-logr/logr"
)

// DefaultTimeout bounds a single connection attempt.
const DefaultTimeout = time.Second

// Prober reports whether address accepts connections on port.
type Prober interface {
	Probe(ctx context.Context, address string, port int) bool
}

// TCPProber dials the peer over TCP and closes the connection straight away.
type TCPProber struct {
	Timeout time.Duration
	Log     logr.Logger
}

// NewTCPProber returns a prober with the given connect timeout; zero selects
// DefaultTimeout.
func NewTCPProber(log logr.Logger, timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TCPProber{Timeout: timeout, Log: log}
}

// Probe never returns an error: timeouts, refusals and resolution failures
// all map to false.
func (p *TCPProber) Probe(ctx context.Context, address string, port int) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var d net.Dialer
	d.Timeout = timeout

	target := net.JoinHostPort(address, strconv.Itoa(port))
	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		p.Log.V(1).Info("unable to connect", "target", target, "error", err.Error())
		return false
	}
	_ = conn.Close()
	return true
}

// Func adapts a plain function to the Prober interface.
type Func func(ctx context.Context, address string, port int) bool

// Probe calls f.
func (f Func) Probe(ctx context.Context, address string, port int) bool {
	return f(ctx, address, port)
}
