package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

// PublicDNS are servers to be queried if a local lookup fails.
// These are well-known, high-availability public DNS providers.
var PublicDNS = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"208.67.222.222",         // Cisco OpenDNS
	"208.67.220.220",         // Cisco OpenDNS
}

const (
	localLookupTimeout  = time.Second
	remoteLookupTimeout = 2 * time.Second
)

// Resolver looks up the signaling host with the system resolver first and
// races public DNS servers if that fails. Restrictive networks often break
// the system resolver but still let port 53 through.
type Resolver struct {
	// Servers to race when the system lookup fails. Empty disables the fallback.
	Servers []string

	log    *zap.Logger
	local  func(ctx context.Context, host string) ([]string, error)
	remote func(ctx context.Context, host, server string) ([]string, error)
}

// NewResolver returns a resolver that falls back to PublicDNS.
func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		Servers: PublicDNS,
		log:     log,
		local:   (&net.Resolver{}).LookupHost,
		remote:  lookupVia,
	}
}

// Lookup resolves host to a single address, preferring IPv4.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	lctx, cancel := context.WithTimeout(ctx, localLookupTimeout)
	ips, err := r.local(lctx, host)
	cancel()
	if err == nil && len(ips) > 0 {
		return preferIPv4(ips), nil
	}
	if len(r.Servers) == 0 {
		if err == nil {
			err = errors.New("no IP addresses found")
		}
		return "", fmt.Errorf("lookup %s: %w", host, err)
	}

	r.log.Debug("System DNS lookup failed, racing public DNS", zap.String("host", host), zap.Error(err))
	return r.race(ctx, host)
}

// race queries every configured server at once and takes the first answer.
func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, remoteLookupTimeout)
	defer cancel()

	results := make(chan result, len(r.Servers))
	for _, server := range r.Servers {
		go func(server string) {
			ips, err := r.remote(ctx, host, server)
			if err == nil && len(ips) == 0 {
				err = errors.New("no IPs returned")
			}
			if err != nil {
				results <- result{err: err}
				return
			}
			results <- result{ip: preferIPv4(ips)}
		}(server)
	}

	failures := 0
	for range r.Servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("lookup %s: public DNS race timed out", host)
		}
	}
	return "", fmt.Errorf("lookup %s: all %d public DNS servers failed", host, failures)
}

// DialContext resolves the host part of addr with Lookup before dialing.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func lookupVia(ctx context.Context, host, server string) ([]string, error) {
	res := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(trimBrackets(server), "53"))
		},
	}
	return res.LookupHost(ctx, host)
}

func trimBrackets(s string) string {
	if len(s) > 1 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}

func preferIPv4(ips []string) string {
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip
		}
	}
	return ips[0]
}
