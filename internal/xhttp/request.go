package xhttp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strings"

	"github.com/garrettladley/paygate/internal/xcontext"
)

var ErrBodyTooLarge = errors.New("request body too large")

// TrustedProxies lists the networks whose X-Forwarded-For entries are believed.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies accepts bare addresses and CIDR ranges.
func ParseTrustedProxies(specs []string) (TrustedProxies, error) {
	proxies := make(TrustedProxies, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if strings.Contains(spec, "/") {
			prefix, err := netip.ParsePrefix(spec)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", spec, err)
			}
			proxies = append(proxies, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", spec, err)
		}
		addr = addr.Unmap()
		proxies = append(proxies, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return proxies, nil
}

func (p TrustedProxies) trusts(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return slices.ContainsFunc(p, func(prefix netip.Prefix) bool { return prefix.Contains(addr) })
}

// ClientIP resolves the address of the client behind r. X-Forwarded-For is only
// consulted when the peer is a trusted proxy, and then the rightmost hop that is
// not itself a trusted proxy wins.
func (p TrustedProxies) ClientIP(r *http.Request) string {
	peer := hostOnly(r.RemoteAddr)
	if !p.trusts(peer) {
		return peer
	}

	hops := forwardedHops(r.Header.Values(XForwardedFor))
	client := peer
	for _, hop := range slices.Backward(hops) {
		ip := hostOnly(hop)
		if _, err := netip.ParseAddr(ip); err != nil {
			break
		}
		client = ip
		if !p.trusts(ip) {
			break
		}
	}
	return client
}

func forwardedHops(values []string) []string {
	var hops []string
	for _, v := range values {
		for hop := range strings.SplitSeq(v, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}

func hostOnly(addr string) string {
	if ip, _, err := net.SplitHostPort(addr); err == nil {
		return ip
	}
	return addr
}

// GetRequestIP returns the client address resolved by the ClientIP middleware,
// falling back to the socket peer.
func GetRequestIP(r *http.Request) string {
	if ip, ok := xcontext.ClientIP(r.Context()); ok {
		return ip
	}
	return hostOnly(r.RemoteAddr)
}

// ReadBody reads the raw request body, refusing anything over limit bytes.
// The bytes are returned untouched so callers can verify signatures over them.
func ReadBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxErr.Limit)
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return body, nil
}
