package middleware

import (
	"bytes"
	"strings"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"

	httpctx "batchpurge/internal/http/ctx"
)

// BearerAuth validates Bearer tokens against a bcrypt hash. With an empty
// hash every request is refused, which keeps the admin API off by default.
func BearerAuth(tokenHash string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	hash := []byte(strings.TrimSpace(tokenHash))

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if len(hash) == 0 {
				ctx.SetStatusCode(fasthttp.StatusForbidden)
				ctx.SetBodyString("admin API disabled")
				return
			}

			auth := ctx.Request.Header.Peek("Authorization")
			if len(auth) == 0 {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("missing Authorization header")
				return
			}

			const prefix = "Bearer "
			if !bytes.HasPrefix(auth, []byte(prefix)) {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid Authorization header")
				return
			}

			token := strings.TrimSpace(string(auth[len(prefix):]))
			if token == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("empty bearer token")
				return
			}

			if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid token")
				return
			}

			httpctx.SetCaller(ctx, "admin")
			next(ctx)
		}
	}
}
