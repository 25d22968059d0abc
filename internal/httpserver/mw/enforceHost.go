package mw

import (
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
	"github.com/MrSnakeDoc/nodekeeper/internal/utils"
)

// hostMatcher holds exact hosts and "*.example.com" suffixes.
type hostMatcher struct {
	exact    map[string]bool
	suffixes []string // ".example.com"
}

func newHostMatcher(patterns []string) *hostMatcher {
	m := &hostMatcher{exact: make(map[string]bool, len(patterns))}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "":
		case strings.HasPrefix(p, "*."):
			m.suffixes = append(m.suffixes, p[1:])
		default:
			m.exact[p] = true
		}
	}
	return m
}

func (m *hostMatcher) empty() bool { return len(m.exact) == 0 && len(m.suffixes) == 0 }

// match ignores the port and letter case of host.
func (m *hostMatcher) match(host string) bool {
	host = strings.ToLower(utils.HostNoPort(host))
	if m.exact[host] {
		return true
	}
	for _, s := range m.suffixes {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}

// EnforceHost allows requests only if r.Host matches one of the allowed hosts.
// Supports wildcard patterns like "*.example.com". An empty list is a passthrough.
func EnforceHost(allowedHosts []string, log logger.Logger) func(http.Handler) http.Handler {
	m := newHostMatcher(allowedHosts)
	if m.empty() {
		log.Debug("EnforceHost: empty allowedHosts, passthrough mode")
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.match(r.Host) {
				log.Debug("EnforceHost: host rejected", logger.String("host", r.Host))
				reject(w, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
