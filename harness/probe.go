package harness

import (
	"context"
	stderrors "errors"
	"net"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"netbench/errors"
)

const maxProbeBackoff = 2 * time.Second

// Prober checks whether something accepts TCP connections at host:port.
type Prober interface {
	Ready(ctx context.Context, host string, port int) bool
}

// PortChecker reports whether a local port is already held by a listener.
type PortChecker interface {
	InUse(port int) bool
}

// ListenChecker binds the port on all IPv4 interfaces, as the server does,
// and releases it at once. It never connects to whoever holds the port.
type ListenChecker struct{}

func (ListenChecker) InUse(port int) bool {
	l, err := net.Listen("tcp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		// Only a held port is a conflict; anything else is left for the
		// server to report.
		return stderrors.Is(err, syscall.EADDRINUSE)
	}
	_ = l.Close()
	return false
}

// TCPProber dials the target and closes the connection straight away. Each
// check is a connection the server accepts, so it only suits servers that
// tolerate a connection which sends nothing.
type TCPProber struct {
	dialer *net.Dialer
}

func NewTCPProber(timeout time.Duration) *TCPProber {
	return &TCPProber{dialer: &net.Dialer{Timeout: timeout}}
}

func (p *TCPProber) Ready(ctx context.Context, host string, port int) bool {
	target := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := p.dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		zap.L().Debug("target is not yet reachable",
			zap.String("package", packageName),
			zap.String("operation", "probe"),
			zap.String("target", target),
			zap.Error(err),
		)
		return false
	}
	_ = conn.Close()
	return true
}

// nextBackoff doubles d up to maxProbeBackoff.
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxProbeBackoff {
		return maxProbeBackoff
	}
	return d
}

// waitReady probes host:port up to attempts times with doubling backoff. It
// returns TIMED_OUT_ERROR when no probe succeeds.
func waitReady(ctx context.Context, prober Prober, host string, port, attempts int, backoff time.Duration) error {
	for i := 0; i < attempts; i++ {
		if prober.Ready(ctx, host, port) {
			return nil
		}
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = nextBackoff(backoff)
	}
	return errors.New(errors.ErrTimedOut, "server never accepted a connection",
		map[string]interface{}{
			"host":     host,
			"port":     port,
			"attempts": attempts,
		}, nil)
}
