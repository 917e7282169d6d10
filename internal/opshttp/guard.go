package opshttp

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/keithlinneman/clubdesk-web/internal/log"
)

// requireNonPublicNetwork rejects peers that are not loopback, private or link-local.
// The peer is taken from RemoteAddr only, forwarding headers are never trusted here.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			forbid(w, r, L, "unparseable remote addr")
			return
		}
		addr, err := netip.ParseAddr(host)
		if err != nil {
			forbid(w, r, L, "invalid remote ip")
			return
		}
		addr = addr.Unmap()
		if !addr.IsLoopback() && !addr.IsPrivate() && !addr.IsLinkLocalUnicast() {
			forbid(w, r, L, "public remote ip")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func forbid(w http.ResponseWriter, r *http.Request, L log.Logger, reason string) {
	L.Info(r.Context(), "ops request rejected", "reason", reason, "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	http.Error(w, "forbidden", http.StatusForbidden)
}
