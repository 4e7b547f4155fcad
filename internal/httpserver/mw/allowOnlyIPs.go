package mw

import (
	"net/http"

	"github.com/fleetmx/fleetmx/internal/logger"
	"github.com/fleetmx/fleetmx/internal/utils"
)

// AllowOnlyCIDRS admits only peers from the allowed IPs/CIDRs. An empty list
// does NOT filter (passthrough). The ops listener is reached directly, so
// the TCP peer address is authoritative.
func AllowOnlyCIDRS(allowed []string, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(allowed)
	if m.IsEmpty() {
		log.Debug("AllowOnlyCIDRS: empty matcher, passthrough mode")
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r)
			if !m.Allow(ip) {
				log.Warn("ops request rejected",
					logger.String("remote_ip", ip),
					logger.String("path", r.URL.Path))
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
