package httpmw

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// UnknownClientIP is stored when neither forwarded headers nor the peer address yield an ip.
// All such requests share one rate limit bucket.
const UnknownClientIP = "unknown"

type ClientIPOptions struct {
	// TrustedHops is how many of our own proxies append to X-Forwarded-For.
	// 0 ignores the header, 1 is a single load balancer (last entry), 2 is CDN plus load balancer.
	TrustedHops int
}

// ClientIP resolves the client with no trusted proxies
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions stores the resolved client ip in the request context, never empty
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithClientIP(r.Context(), resolveClientAddr(r, opts.TrustedHops))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// stripForwarded drops headers we did not trust so nothing downstream reads them by accident
func stripForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

func parsePeer(remoteAddr string) (netip.Addr, bool) {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// resolveClientAddr picks the address the contact limiter keys on.
// X-Forwarded-For counts only when the peer is private (our load balancer) and trustedHops > 0;
// then the trustedHops-th entry from the end is the client. A header with fewer entries than hops
// is treated as forged and dropped.
func resolveClientAddr(r *http.Request, trustedHops int) string {
	peer, ok := parsePeer(r.RemoteAddr)
	if !ok {
		stripForwarded(r)
		return UnknownClientIP
	}
	if trustedHops <= 0 || !peer.IsPrivate() {
		stripForwarded(r)
		return peer.String()
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return peer.String()
	}
	hops := strings.Split(xff, ",")
	idx := len(hops) - trustedHops
	if idx < 0 {
		stripForwarded(r)
		return peer.String()
	}
	client, err := netip.ParseAddr(strings.TrimSpace(hops[idx]))
	if err != nil {
		return peer.String()
	}
	return client.Unmap().String()
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
