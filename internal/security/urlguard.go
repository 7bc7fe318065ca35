// Package security guards outbound webhook deliveries against SSRF.
package security

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// TextCodeUnsafeURL tags every rejection
const TextCodeUnsafeURL = "UNSAFE_WEBHOOK_URL"

// Resolver looks up the addresses of a host name
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// URLGuard rejects endpoint URLs that point at internal infrastructure.
//
// Rules:
//   - scheme must be http or https, and a host must be present
//   - plain http is only accepted for localhost when AllowLocal is set
//   - literal loopback, private, link-local and unspecified addresses are rejected
//   - with a Resolver, host names resolving to such addresses are rejected too
type URLGuard struct {
	allowLocal    bool
	resolver      Resolver
	lookupTimeout time.Duration
}

type GuardOption func(*URLGuard)

// AllowLocal permits http://localhost style endpoints (development)
func AllowLocal(allow bool) GuardOption {
	return func(g *URLGuard) {
		g.allowLocal = allow
	}
}

// WithResolver enables DNS checks of host names
func WithResolver(r Resolver) GuardOption {
	return func(g *URLGuard) {
		g.resolver = r
	}
}

func NewURLGuard(opts ...GuardOption) *URLGuard {
	g := &URLGuard{lookupTimeout: 2 * time.Second}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ValidateWebhookURL returns nil when rawURL is safe to deliver to
func (g *URLGuard) ValidateWebhookURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return reject("URL is empty", rawURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid URL").
			WithTextCode(TextCodeUnsafeURL)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return reject("unsupported URL scheme "+parsed.Scheme, rawURL)
	}

	host := parsed.Hostname()
	if host == "" {
		return reject("missing host", rawURL)
	}

	local := IsLocalhost(host)
	switch {
	case local && !g.allowLocal:
		return reject("localhost URLs are not allowed", rawURL)
	case local:
		return nil
	case scheme == "http":
		return reject("HTTPS is required for webhook URLs", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsInternalIP(ip) {
			return reject("private IP addresses are not allowed", rawURL)
		}
		return nil
	}

	if g.resolver == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.lookupTimeout)
	defer cancel()
	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "cannot resolve "+host).
			WithTextCode(TextCodeUnsafeURL)
	}
	for _, addr := range addrs {
		if IsInternalIP(addr.IP) {
			return reject(host+" resolves to a private address", rawURL)
		}
	}
	return nil
}

// IsInternalIP reports loopback, private, link-local and unspecified addresses
func IsInternalIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// IsLocalhost accepts "localhost", its subdomains and loopback literals
func IsLocalhost(host string) bool {
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || host == "0.0.0.0" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func reject(reason, rawURL string) error {
	return goerrors.New(reason, goerrors.CategoryValidation).
		WithTextCode(TextCodeUnsafeURL).
		WithMetadata(map[string]any{"url": rawURL})
}
