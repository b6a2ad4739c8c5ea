package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"packet-intake/internal/logger"
	"packet-intake/internal/observability"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware requires the token as X-API-Key or a bearer token.
// An empty token leaves the API open.
func AuthMiddleware(token string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		given := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if given == "" {
			auth := c.GetHeader("Authorization")
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				given = strings.TrimSpace(auth[7:])
			}
		}
		if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			if log != nil {
				log.Debug("api auth rejected", map[string]any{"path": c.Request.URL.Path, "client_ip": c.ClientIP()})
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func AccessLogMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if log == nil {
			return
		}
		log.Debug("api request", map[string]any{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}

func TraceMiddleware(store *observability.Traces) gin.HandlerFunc {
	if store == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return func(c *gin.Context) {
		start := time.Now()
		traceID := strings.TrimSpace(c.GetHeader("X-Trace-Id"))
		if traceID == "" {
			traceID = generateTraceID()
		}
		c.Set("trace_id", traceID)
		c.Header("X-Trace-Id", traceID)
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		store.Add(observability.Trace{
			ID:         traceID,
			Method:     c.Request.Method,
			Path:       path,
			Status:     c.Writer.Status(),
			DurationMs: time.Since(start).Milliseconds(),
			Timestamp:  time.Now().Unix(),
			ClientIP:   c.ClientIP(),
		})
	}
}

func generateTraceID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000000000")))
	}
	return hex.EncodeToString(buf)
}
