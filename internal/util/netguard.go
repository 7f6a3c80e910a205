package util

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/http/httpproxy"

	"github.com/ppiankov/credence/internal/model"
)

// ErrPrivateAddress is returned when a destination is not on the public internet
var ErrPrivateAddress = errors.New("destination address is not public")

// Ranges that IsGlobalUnicast and IsPrivate leave open
var nonPublicPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b::/96"),
	netip.MustParsePrefix("2001:db8::/32"),
}

// IsPublicIP reports whether ip is routable on the public internet
func IsPublicIP(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.IsValid() || !ip.IsGlobalUnicast() || ip.IsPrivate() {
		return false
	}
	for _, p := range nonPublicPrefixes {
		if p.Contains(ip) {
			return false
		}
	}
	return true
}

// IsPublicHost rejects loopback names and literal non-public addresses.
// Other names are only checked once resolved, at dial time.
func IsPublicHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return false
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return IsPublicIP(ip)
	}
	return true
}

func publicOnlyControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}
	if !IsPublicIP(ip) {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, ip)
	}
	return nil
}

// NewPublicHTTPClient is NewHTTPClient for user-supplied destinations. Every
// connection must reach a public address, which also covers redirects and
// names that resolve to internal hosts. Configured proxies are exempt.
func NewPublicHTTPClient(cfg model.HTTPConfig, timeout time.Duration) *http.Client {
	client := NewHTTPClient(cfg, timeout)
	if cfg.AllowPrivateNetworks {
		return client
	}

	proxies := proxyAddrs(cfg)
	direct := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	guarded := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second, Control: publicOnlyControl}

	transport := client.Transport.(*http.Transport)
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		if proxies[strings.ToLower(addr)] {
			return direct.DialContext(ctx, network, addr)
		}
		return guarded.DialContext(ctx, network, addr)
	}
	return client
}

// proxyAddrs lists the host:port of every proxy the client may dial
func proxyAddrs(cfg model.HTTPConfig) map[string]bool {
	raw := []string{cfg.HTTPProxy, cfg.HTTPSProxy}
	if cfg.HTTPProxy == "" && cfg.HTTPSProxy == "" {
		env := httpproxy.FromEnvironment()
		raw = []string{env.HTTPProxy, env.HTTPSProxy}
	}

	out := make(map[string]bool)
	for _, r := range raw {
		if r == "" {
			continue
		}
		if !strings.Contains(r, "://") {
			r = "http://" + r
		}
		u, err := url.Parse(r)
		if err != nil || u.Hostname() == "" {
			continue
		}
		port := u.Port()
		if port == "" {
			switch u.Scheme {
			case "https":
				port = "443"
			case "socks5", "socks5h":
				port = "1080"
			default:
				port = "80"
			}
		}
		out[strings.ToLower(net.JoinHostPort(u.Hostname(), port))] = true
	}
	return out
}
