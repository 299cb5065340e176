package middlewares

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hopehouse/reminders/internal/adapters/metrics"
	"github.com/hopehouse/reminders/pkg/logger/types"
)

const (
	CronSecretHeader = "x-cron-secret"
	bearerPrefix     = "Bearer "
)

// CronSecret admits a request carrying the shared secret: in the
// x-cron-secret header for GET requests, as a bearer token otherwise.
// An empty secret rejects every request.
func CronSecret(secret string, logger *types.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var provided string
		if c.Request.Method == http.MethodGet {
			provided = c.GetHeader(CronSecretHeader)
		} else if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, bearerPrefix) {
			provided = strings.TrimSpace(strings.TrimPrefix(auth, bearerPrefix))
		}

		if !SecretMatches(secret, provided) {
			logger.Warnf("Rejected %s %s from %s: invalid cron secret", c.Request.Method, c.FullPath(), c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// SecretMatches compares in constant time. An unset secret never matches.
func SecretMatches(secret, provided string) bool {
	if secret == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(provided)) == 1
}

// Logger logs every request once it has been handled.
func Logger(logger *types.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			logger.Errorf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		case status >= http.StatusBadRequest:
			logger.Warnf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		default:
			logger.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		}
	}
}

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		method := c.Request.Method
		statusCode := c.Writer.Status()
		status := fmt.Sprintf("%d", statusCode)

		metrics.HttpRequestsTotal.WithLabelValues(endpoint, status, method).Inc()
		metrics.HttpRequestDuration.WithLabelValues(endpoint, method).Observe(duration)
		if statusCode >= 400 && statusCode < 600 {
			metrics.HttpErrorsTotal.WithLabelValues(endpoint, status, method).Inc()
		}
	}
}
