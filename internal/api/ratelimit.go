package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/samcharles93/phigo/internal/metrics"
)

// rateLimit rejects requests beyond a server-wide token bucket with 429.
func rateLimit(perSecond float64, burst int, m *metrics.Metrics) echo.MiddlewareFunc {
	if burst <= 0 {
		burst = max(1, int(perSecond))
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if limiter.Allow() {
				return next(c)
			}
			m.ObserveRateLimited()
			m.ObserveRequest(strconv.Itoa(http.StatusTooManyRequests))
			c.Response().Header().Set("Retry-After", "1")
			return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "rate limit exceeded", "", "rate_limit_exceeded")
		}
	}
}
