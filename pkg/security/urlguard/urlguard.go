// Package urlguard decides which URLs a capture may navigate to. It checks
// the scheme, matches the host against glob deny and allow lists, and can
// resolve the host to refuse loopback, private, link-local and metadata
// addresses.
package urlguard

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// BlockedError reports a URL rejected by the guard.
type BlockedError struct {
	URL    string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("URL blocked: %s", e.Reason)
}

// Resolver looks up the addresses of a host. *net.Resolver implements it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Config configures a Guard.
type Config struct {
	// AllowedSchemes lists accepted URL schemes (default http and https)
	AllowedSchemes []string

	// BlockedHosts are glob patterns, e.g. "*.internal" or "metadata.*"
	BlockedHosts []string

	// AllowedHosts, when set, are the only host patterns accepted
	AllowedHosts []string

	// BlockPrivateNetworks resolves the host and rejects non-public addresses
	BlockPrivateNetworks bool

	// Resolver overrides DNS resolution (default net.DefaultResolver)
	Resolver Resolver
}

// Guard validates navigation targets. It is safe for concurrent use.
type Guard struct {
	schemes  map[string]bool
	blocked  []hostPattern
	allowed  []hostPattern
	private  bool
	resolver Resolver
}

type hostPattern struct {
	source string
	glob   glob.Glob
}

// metadataHosts are cloud metadata names refused whenever private networks
// are blocked.
var metadataHosts = []string{
	"metadata.google.internal",
	"metadata.goog",
	"kubernetes.default.svc",
	"kubernetes.default",
	"metadata",
}

var metadataIP = net.ParseIP("169.254.169.254")

// New compiles cfg into a Guard.
func New(cfg Config) (*Guard, error) {
	g := &Guard{
		schemes:  make(map[string]bool),
		private:  cfg.BlockPrivateNetworks,
		resolver: cfg.Resolver,
	}
	if g.resolver == nil {
		g.resolver = net.DefaultResolver
	}

	schemes := cfg.AllowedSchemes
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	for _, s := range schemes {
		g.schemes[strings.ToLower(strings.TrimSuffix(s, ":"))] = true
	}

	var err error
	if g.blocked, err = compile(cfg.BlockedHosts); err != nil {
		return nil, fmt.Errorf("invalid blocked host pattern: %w", err)
	}
	if g.allowed, err = compile(cfg.AllowedHosts); err != nil {
		return nil, fmt.Errorf("invalid allowed host pattern: %w", err)
	}
	return g, nil
}

func compile(patterns []string) ([]hostPattern, error) {
	out := make([]hostPattern, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		// '.' separates labels so "*.example.com" does not match "a.b.example.com"
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out = append(out, hostPattern{source: p, glob: g})
	}
	return out, nil
}

// Validate parses rawURL and checks it against the guard. The parsed URL is
// returned on success; failures are *BlockedError.
func (g *Guard) Validate(ctx context.Context, rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, &BlockedError{URL: rawURL, Reason: fmt.Sprintf("invalid URL: %v", err)}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" || !g.schemes[scheme] {
		return nil, &BlockedError{URL: rawURL, Reason: fmt.Sprintf("scheme '%s' not allowed", parsed.Scheme)}
	}
	if scheme != "http" && scheme != "https" {
		// Non-network schemes such as about: or data: carry no host to check
		return parsed, nil
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return nil, &BlockedError{URL: rawURL, Reason: "empty hostname"}
	}

	for _, p := range g.blocked {
		if p.glob.Match(host) {
			return nil, &BlockedError{URL: rawURL, Reason: fmt.Sprintf("host %s matches blocked pattern %s", host, p.source)}
		}
	}
	if len(g.allowed) > 0 && !matchesAny(g.allowed, host) {
		return nil, &BlockedError{URL: rawURL, Reason: fmt.Sprintf("host %s is not in the allowed list", host)}
	}

	if g.private {
		if err := g.checkAddresses(ctx, rawURL, host); err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

func matchesAny(patterns []hostPattern, host string) bool {
	for _, p := range patterns {
		if p.glob.Match(host) {
			return true
		}
	}
	return false
}

// checkAddresses resolves host and rejects it if any address is not public.
// Resolution catches short and encoded IP forms as well as names that point at
// internal addresses.
func (g *Guard) checkAddresses(ctx context.Context, rawURL, host string) error {
	for _, mh := range metadataHosts {
		if host == mh || strings.HasSuffix(host, "."+mh) {
			return &BlockedError{URL: rawURL, Reason: fmt.Sprintf("cloud metadata hostname blocked: %s", host)}
		}
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		addrs, err := g.resolver.LookupIPAddr(ctx, host)
		if err != nil {
			return &BlockedError{URL: rawURL, Reason: fmt.Sprintf("DNS resolution failed: %v", err)}
		}
		for _, a := range addrs {
			ips = append(ips, a.IP)
		}
	}

	for _, ip := range ips {
		if reason := blockedIP(ip); reason != "" {
			return &BlockedError{URL: rawURL, Reason: fmt.Sprintf("%s (%s resolves to %s)", reason, host, ip)}
		}
	}
	return nil
}

// blockedIP returns why ip is not a public address, or "".
func blockedIP(ip net.IP) string {
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	switch {
	case ip.IsLoopback():
		return "loopback address blocked"
	case ip.IsPrivate():
		return "private network address blocked"
	case ip.Equal(metadataIP):
		return "cloud metadata address blocked"
	case ip.IsLinkLocalUnicast():
		return "link-local address blocked"
	case ip.IsMulticast() || ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast():
		return "multicast address blocked"
	case ip.IsUnspecified():
		return "unspecified address blocked"
	}
	return ""
}
