package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"

	httpctx "batchpurge/internal/http/ctx"
)

func okHandler(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)
}

func TestBearerAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	handler := BearerAuth(string(hash))(okHandler)

	cases := map[string]struct {
		header string
		code   int
	}{
		"valid":      {"Bearer s3cret", fasthttp.StatusOK},
		"wrong":      {"Bearer guess", fasthttp.StatusUnauthorized},
		"missing":    {"", fasthttp.StatusUnauthorized},
		"basic auth": {"Basic czNjcmV0", fasthttp.StatusUnauthorized},
		"empty":      {"Bearer   ", fasthttp.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := &fasthttp.RequestCtx{}
			if tc.header != "" {
				ctx.Request.Header.Set("Authorization", tc.header)
			}
			handler(ctx)
			assert.Equal(t, tc.code, ctx.Response.StatusCode())

			caller, ok := httpctx.CallerFromCtx(ctx)
			assert.Equal(t, tc.code == fasthttp.StatusOK, ok)
			if ok {
				assert.Equal(t, "admin", caller)
			}
		})
	}
}

func TestBearerAuthDisabledWithoutHash(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("Authorization", "Bearer anything")

	BearerAuth("")(okHandler)(ctx)

	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/admin/purge")

	var seen string
	RequestLogger(func(ctx *fasthttp.RequestCtx) {
		seen, _ = httpctx.RequestIDFromCtx(ctx)
	})(ctx)

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, string(ctx.Response.Header.Peek("X-Request-Id")))

	ctx = &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Request-Id", "abc")
	RequestLogger(okHandler)(ctx)
	assert.Equal(t, "abc", string(ctx.Response.Header.Peek("X-Request-Id")))
}
