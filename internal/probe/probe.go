// Package probe tells "no network" apart from "revocation service down".
package probe

import (
	"context"
	"net"
	"time"
)

const (
	DefaultAddress = "8.8.8.8:53"
	DefaultTimeout = 3 * time.Second
)

// Probe opens, and immediately closes, a TCP connection to a well known
// address that is not one of the revocation services.
type Probe struct {
	address string
	dialer  *net.Dialer
}

func New(address string, timeout time.Duration) *Probe {
	if address == "" {
		address = DefaultAddress
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Probe{
		address: address,
		dialer:  &net.Dialer{Timeout: timeout},
	}
}

func (p *Probe) Address() string {
	return p.address
}

func (p *Probe) IsReachable(ctx context.Context) bool {
	connection, dialError := p.dialer.DialContext(ctx, "tcp", p.address)
	if dialError != nil {
		return false
	}
	connection.Close()
	return true
}
