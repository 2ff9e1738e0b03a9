package httpserver

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// rateLimitPolicy caps one group of routes per client IP.
type rateLimitPolicy struct {
	name  string
	rate  rate.Limit
	burst int
}

var (
	authPolicy = rateLimitPolicy{name: "auth", rate: 1, burst: 10}
	apiPolicy  = rateLimitPolicy{name: "api", rate: 10, burst: 30}
	// addTimePolicy guards the only unauthenticated mutation; anyone with a channel key can call it.
	addTimePolicy = rateLimitPolicy{name: "add_time", rate: 2, burst: 20}
)

func newRateLimiter(p rateLimitPolicy) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      p.rate,
			Burst:     p.burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	retry := retryAfter(p.rate)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			slog.Warn("Request rate limited", "policy", p.name, "ip", identifier, "path", c.Path())
			c.Response().Header().Set("Retry-After", retry)
			return writeJSON(c, http.StatusTooManyRequests, map[string]string{
				"error": "too many requests, retry in " + retry + "s",
			})
		},
	})
}

// retryAfter is the whole seconds until one more token is available.
func retryAfter(r rate.Limit) string {
	if r <= 0 {
		return strconv.Itoa(int(rateLimiterExpiry.Seconds()))
	}
	return strconv.Itoa(int(math.Ceil(1 / float64(r))))
}
