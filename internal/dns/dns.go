package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// PublicServers are queried when the system resolver fails.
var PublicServers = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
}

// Resolver resolves host names with the system resolver first and races public
// DNS servers as a fallback. The zero value is not usable; use NewResolver.
type Resolver struct {
	Servers       []string
	LocalTimeout  time.Duration
	RemoteTimeout time.Duration

	// lookup is swapped in tests.
	lookup func(ctx context.Context, r *net.Resolver, host string) ([]string, error)
}

// NewResolver returns a resolver using PublicServers as the fallback.
func NewResolver() *Resolver {
	return &Resolver{
		Servers:       PublicServers,
		LocalTimeout:  time.Second,
		RemoteTimeout: 2 * time.Second,
		lookup: func(ctx context.Context, r *net.Resolver, host string) ([]string, error) {
			return r.LookupHost(ctx, host)
		},
	}
}

// Lookup resolves host to a single IP address, preferring IPv4. Literal IPs
// are returned unchanged.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	localCtx, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	ip, err := r.resolve(localCtx, &net.Resolver{}, host)
	cancel()
	if err == nil {
		return ip, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	return r.race(ctx, host)
}

// DialContext resolves the host part of addr with Lookup and dials the result.
// It has the signature expected by websocket.Dialer.NetDialContext.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}

	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

// race queries every public server concurrently and returns the first answer.
func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	if len(r.Servers) == 0 {
		return "", fmt.Errorf("failed to resolve %s: no fallback servers", host)
	}

	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, r.RemoteTimeout)
	defer cancel()

	results := make(chan result, len(r.Servers))
	for _, server := range r.Servers {
		go func(server string) {
			ip, err := r.resolve(ctx, viaServer(server), host)
			results <- result{ip: ip, err: err}
		}(server)
	}

	for range r.Servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("failed to resolve %s: %w", host, ctx.Err())
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", host, len(r.Servers))
}

func (r *Resolver) resolve(ctx context.Context, res *net.Resolver, host string) (string, error) {
	ips, err := r.lookup(ctx, res, host)
	if err != nil {
		return "", err
	}
	return preferIPv4(ips)
}

// viaServer builds a resolver that always talks to server on port 53.
func viaServer(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
}

func preferIPv4(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", errors.New("no IP addresses found")
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
