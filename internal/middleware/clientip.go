package middleware

import (
	"net"
	"net/http"
	"strings"
)

// proxyIPHeaders in priority order. CF-Connecting-IP is set by the CDN and
// wins over anything the client can forge further down the chain.
var proxyIPHeaders = []string{
	"CF-Connecting-IP",
	"X-Real-IP",
	"X-Forwarded-For",
	"X-Client-IP",
}

func ClientIP(r *http.Request) string {
	for _, header := range proxyIPHeaders {
		value := strings.TrimSpace(r.Header.Get(header))
		if value == "" {
			continue
		}
		// X-Forwarded-For may carry a chain; the first hop is the client.
		if idx := strings.Index(value, ","); idx >= 0 {
			value = strings.TrimSpace(value[:idx])
		}
		if value != "" {
			return value
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}

	return r.RemoteAddr
}
