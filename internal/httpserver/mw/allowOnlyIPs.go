package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
	"github.com/MrSnakeDoc/nodekeeper/internal/utils"
)

// AllowOnlyCIDRS guards admin and health routes with an IP/CIDR allow list.
// An empty list disables the check. With trustProxy the client IP is read
// from proxy headers (e.g., cloudflared), otherwise from RemoteAddr.
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(allowed)
	if m.IsEmpty() {
		log.Debug("AllowOnlyCIDRS: empty allow list, passthrough mode")
		return func(next http.Handler) http.Handler { return next }
	}

	log.Debug("AllowOnlyCIDRS: initialized",
		logger.Int("rules", m.Len()),
		logger.Bool("trust_proxy", trustProxy))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if !m.Allow(ip) {
				log.Warn("admin route rejected for client ip",
					logger.String("ip", ip),
					logger.String("method", r.Method),
					logger.String("route", routePattern(r)))
				reject(w, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
