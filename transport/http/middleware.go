package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wubuku/UniAuth/core"
	"github.com/wubuku/UniAuth/internal/metrics"
	"github.com/wubuku/UniAuth/internal/ratelimit"
	"github.com/wubuku/UniAuth/service"
)

const sessionKey = "session"

// AuthMiddleware creates middleware that validates access tokens
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		// Check if the Authorization header is present and in correct format
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "Missing or invalid authorization header")
			return
		}

		session, err := authService.ValidateAccessToken(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, core.ErrTokenExpired):
				abortWithError(c, http.StatusUnauthorized, CodeTokenExpired, "Token expired")
			case errors.Is(err, core.ErrTokenInvalidated):
				abortWithError(c, http.StatusUnauthorized, CodeTokenInvalidated, "Token has been invalidated")
			case errors.Is(err, core.ErrInvalidToken):
				abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "Invalid token")
			default:
				internalError(c, err)
			}
			return
		}

		c.Set(sessionKey, session)
		c.Next()
	}
}

// sessionFrom returns the session stored by AuthMiddleware
func sessionFrom(c *gin.Context) *core.Session {
	return c.MustGet(sessionKey).(*core.Session)
}

// RateLimitMiddleware rejects clients that exceed their request budget
func RateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			metrics.RateLimitedTotal.Inc()
			c.Header("Retry-After", "60")
			abortWithError(c, http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded")
			return
		}
		c.Next()
	}
}

// MetricsMiddleware records request counts and latencies per route
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// RequestLogger logs every request with zerolog
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	logger = logger.With().Str("component", "http").Logger()

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = logger.Error()
		case status >= http.StatusBadRequest:
			event = logger.Warn()
		}

		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
