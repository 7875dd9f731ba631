package api

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// rateLimit is a huma middleware that limits requests per client IP.
// Returns 429 Too Many Requests when limit is exceeded.
func (s *Server) rateLimit(ctx huma.Context, next func(huma.Context)) {
	if s.limiter == nil {
		next(ctx)
		return
	}

	key := clientIP(ctx.Header("X-Forwarded-For"), ctx.Header("X-Real-IP"), ctx.RemoteAddr())
	if !s.limiter.Allow(key) {
		s.logger.Warn("Rate limit exceeded",
			"ip", key,
			"path", ctx.URL().Path,
		)
		ctx.SetHeader("Retry-After", "1")
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		return
	}

	next(ctx)
}

// clientIP picks the first X-Forwarded-For entry, then X-Real-IP, then the
// remote address without its port.
func clientIP(xff, xri, remoteAddr string) string {
	if xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri != "" {
		return xri
	}
	if i := strings.LastIndexByte(remoteAddr, ':'); i >= 0 {
		return remoteAddr[:i]
	}
	return remoteAddr
}
