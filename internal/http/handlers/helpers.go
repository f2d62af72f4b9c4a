package handlers

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	httpctx "batchpurge/internal/http/ctx"
)

var logger = logrus.StandardLogger().WithField("module", "http")

func jsonResponse(ctx *fasthttp.RequestCtx, code int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		errResponse(ctx, fasthttp.StatusInternalServerError, "failed to encode response")
		return
	}
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	ctx.SetStatusCode(code)
	ctx.SetBodyString(msg)
}

// requestLog returns a logger tagged with the request id.
func requestLog(ctx *fasthttp.RequestCtx) *logrus.Entry {
	if id, ok := httpctx.RequestIDFromCtx(ctx); ok {
		return logger.WithField("requestId", id)
	}
	return logger
}
