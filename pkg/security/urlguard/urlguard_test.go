package urlguard

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticResolver answers lookups from a fixed table.
type staticResolver map[string][]string

func (r staticResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

var testResolver = staticResolver{
	"example.com":     {"93.184.215.14"},
	"localtest.me":    {"127.0.0.1"},
	"intranet.corp":   {"10.1.2.3"},
	"dual.example":    {"93.184.215.14", "192.168.0.10"},
	"cdn.example.com": {"2606:2800:21f:cb07:6820:80da:af6b:8b2c"},
}

func TestGuard_Validate(t *testing.T) {
	g, err := New(Config{BlockPrivateNetworks: true, Resolver: testResolver})
	require.NoError(t, err)

	tests := []struct {
		name   string
		url    string
		reason string // empty means allowed
	}{
		{"https", "https://example.com/page", ""},
		{"http with port", "http://example.com:8080", ""},
		{"ipv6 public host", "https://cdn.example.com", ""},
		{"public ip literal", "http://93.184.215.14", ""},

		{"file scheme", "file:///etc/passwd", "scheme"},
		{"javascript scheme", "javascript:alert(1)", "scheme"},
		{"no scheme", "example.com", "scheme"},
		{"empty host", "http:///path", "empty hostname"},

		{"loopback literal", "http://127.0.0.1:3000", "loopback"},
		{"ipv6 loopback", "http://[::1]", "loopback"},
		{"name resolving to loopback", "http://localtest.me", "loopback"},
		{"private", "http://192.168.1.1", "private"},
		{"name resolving to private", "https://intranet.corp", "private"},
		{"any private address", "https://dual.example", "private"},
		{"metadata ip", "http://169.254.169.254/latest/meta-data/", "cloud metadata"},
		{"link-local", "http://169.254.1.1", "link-local"},
		{"metadata host", "http://metadata.google.internal", "cloud metadata hostname"},
		{"unspecified", "http://0.0.0.0", "unspecified"},
		{"ipv4-mapped loopback", "http://[::ffff:127.0.0.1]", "loopback"},
		{"unresolvable", "https://nowhere.invalid", "DNS resolution failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := g.Validate(context.Background(), tt.url)
			if tt.reason == "" {
				require.NoError(t, err)
				assert.NotNil(t, parsed)
				return
			}
			require.Error(t, err)
			var blocked *BlockedError
			require.True(t, errors.As(err, &blocked))
			assert.Contains(t, blocked.Reason, tt.reason)
			assert.Equal(t, tt.url, blocked.URL)
		})
	}
}

func TestGuard_PrivateNetworksAllowedWhenDisabled(t *testing.T) {
	g, err := New(Config{Resolver: testResolver})
	require.NoError(t, err)

	_, err = g.Validate(context.Background(), "http://127.0.0.1:8080/dashboard")
	assert.NoError(t, err)
}

func TestGuard_HostPatterns(t *testing.T) {
	g, err := New(Config{
		BlockedHosts: []string{"*.internal", "ads.**"},
		AllowedHosts: []string{"example.com", "*.example.com", "ads.example.com"},
	})
	require.NoError(t, err)

	tests := []struct {
		host    string
		allowed bool
	}{
		{"example.com", true},
		{"www.example.com", true},
		{"Shop.Example.COM", true},
		{"a.b.example.com", false}, // '*' does not cross labels
		{"db.internal", false},
		{"ads.example.com", false}, // deny wins over allow
		{"other.org", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			_, err := g.Validate(context.Background(), "https://"+tt.host+"/")
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestGuard_CustomSchemes(t *testing.T) {
	g, err := New(Config{AllowedSchemes: []string{"https", "about:"}})
	require.NoError(t, err)

	_, err = g.Validate(context.Background(), "about:blank")
	assert.NoError(t, err)
	_, err = g.Validate(context.Background(), "http://example.com")
	assert.Error(t, err)
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(Config{BlockedHosts: []string{"[unclosed"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid blocked host pattern")
}
