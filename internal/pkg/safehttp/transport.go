// Package safehttp provides an HTTP transport that refuses to talk to
// internal addresses.
package safehttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrPrivateAddress is returned when the dialed peer resolves to a
// loopback, private or link-local address.
var ErrPrivateAddress = errors.New("private address denied")

const dialTimeout = 5 * time.Second

// Allowed reports whether ip may be dialed.
func Allowed(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified())
}

// DialContext dials addr and closes the connection again if the remote
// address is not Allowed. The check runs on the connected peer so DNS
// rebinding cannot slip past it.
func DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	ip := net.ParseIP(host)
	if ip == nil {
		conn.Close()
		return nil, fmt.Errorf("parse remote IP for %q", addr)
	}
	if !Allowed(ip) {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrPrivateAddress, ip)
	}
	return conn, nil
}

// NewTransport returns a clone of http.DefaultTransport dialing through
// DialContext.
func NewTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = DialContext
	return t
}
