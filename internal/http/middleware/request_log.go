package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	httpctx "batchpurge/internal/http/ctx"
)

var logger = logrus.StandardLogger().WithField("module", "http")

// RequestLogger tags every request with an id, echoes it in X-Request-Id
// and logs the outcome. Health and metrics scrapes are logged at debug.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()

		id := string(ctx.Request.Header.Peek("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		httpctx.SetRequestID(ctx, id)
		ctx.Response.Header.Set("X-Request-Id", id)

		next(ctx)

		entry := logger.WithFields(logrus.Fields{
			"requestId": id,
			"method":    string(ctx.Method()),
			"path":      string(ctx.Path()),
			"status":    ctx.Response.StatusCode(),
			"duration":  time.Since(start).String(),
			"ip":        ctx.RemoteIP().String(),
		})
		if caller, ok := httpctx.CallerFromCtx(ctx); ok {
			entry = entry.WithField("caller", caller)
		}

		path := string(ctx.Path())
		if path == "/healthz" || path == "/metrics" {
			entry.Debug("request")
			return
		}
		entry.Info("request")
	}
}
