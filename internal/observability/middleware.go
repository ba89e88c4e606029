package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// StatusMiddleware logs every status server request and records it under the
// server label. Unmatched routes are labeled by raw path.
func StatusMiddleware(logger zerolog.Logger, server string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		code := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		RecordHTTPRequest(server, c.Request.Method, route, code, elapsed)

		var evt *zerolog.Event
		switch {
		case code >= 500:
			evt = logger.Error()
		case code >= 400:
			evt = logger.Warn()
		default:
			evt = logger.Debug()
		}
		evt.Str("server", server).
			Str("method", c.Request.Method).
			Str("route", route).
			Int("code", code).
			Dur("elapsed", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("status.http")
	}
}
