package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Binding reports the radio session a request ran against. Empty values
// mean no radio was bound.
type Binding func() (sessionID, model string)

// RequestLogger logs one line per request, tagged with the bound radio
// session and the first error a handler attached. POST requests run read
// and write cycles and log at info.
func RequestLogger(logger zerolog.Logger, binding Binding) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		event := logger.Debug()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case c.Request.Method == http.MethodPost:
			event = logger.Info()
		}
		if binding != nil {
			if id, model := binding(); id != "" {
				event = event.Str("session", id).Str("model", model)
			}
		}
		if err := c.Errors.Last(); err != nil {
			event = event.AnErr("error", err.Err)
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("duration", time.Since(start)).
			Msg("server.request")
	}
}

func RequestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
