package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "batchpurge/internal/db"
)

const maxRunsLimit = 200

// RunHistory is the read side of the run ledger.
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]dbpkg.PurgeRun, error)
	Get(ctx context.Context, id int64) (*dbpkg.PurgeRun, error)
}

// ListRuns returns the most recent ledger rows, newest first.
// ?limit=N, default 20, at most 200.
func ListRuns(history RunHistory) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		limit := 20
		if raw := string(ctx.QueryArgs().Peek("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				errResponse(ctx, fasthttp.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxRunsLimit)
		}

		runs, err := history.Recent(ctx, limit)
		if err != nil {
			requestLog(ctx).WithError(err).Error("failed to list purge runs")
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}
		if runs == nil {
			runs = []dbpkg.PurgeRun{}
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"runs": runs})
	}
}

// GetRun returns one ledger row by id.
func GetRun(history RunHistory) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, err := strconv.ParseInt(fmt.Sprint(ctx.UserValue("id")), 10, 64)
		if err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid run id")
			return
		}

		run, err := history.Get(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			errResponse(ctx, fasthttp.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			requestLog(ctx).WithError(err).Error("failed to load purge run")
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, run)
	}
}
