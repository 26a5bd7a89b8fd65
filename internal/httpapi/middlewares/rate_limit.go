package middlewares

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"filedrop/internal/ratelimit"

	"github.com/labstack/echo/v4"
)

// NewRateLimitMiddleware throttles each client address, with uploads drawing
// from a separate, smaller bucket than reads.
func NewRateLimitMiddleware(cfg ratelimit.Config) echo.MiddlewareFunc {
	limiter := ratelimit.New(cfg)
	return newRateLimitMiddleware(limiter, time.Now)
}

func newRateLimitMiddleware(limiter *ratelimit.Limiter, now func() time.Time) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			scope := requestScope(c.Request().Method)
			result := limiter.Take(now(), scope, clientBucket(c))
			if result.Limit > 0 {
				setRateLimitHeaders(c.Response().Header(), result)
			}

			if !result.Allowed {
				retry := int64(math.Ceil(result.RetryAfter.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.FormatInt(max(retry, 1), 10))
				return echo.NewHTTPError(http.StatusTooManyRequests, "Rate limit exceeded.")
			}
			return next(c)
		}
	}
}

func requestScope(method string) ratelimit.Scope {
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ratelimit.ScopeRead
	default:
		return ratelimit.ScopeWrite
	}
}

func clientBucket(c echo.Context) string {
	ip := strings.TrimSpace(c.RealIP())
	if ip == "" {
		ip = clientIPFromRemoteAddr(c.Request().RemoteAddr)
	}
	if ip == "" {
		ip = "unknown"
	}
	return ip
}

func setRateLimitHeaders(header http.Header, result ratelimit.Result) {
	limit := strconv.Itoa(result.Limit)
	remaining := strconv.Itoa(result.Remaining)

	header.Set("X-RateLimit-Limit", limit)
	header.Set("X-RateLimit-Remaining", remaining)
	header.Set("RateLimit-Limit", limit)
	header.Set("RateLimit-Remaining", remaining)
}

func clientIPFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(remoteAddr))
	if err != nil {
		return strings.TrimSpace(remoteAddr)
	}
	return strings.TrimSpace(host)
}
