package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/valyala/fasthttp"

	"batchpurge/internal/purge"
	"batchpurge/internal/worker"
)

// PurgeRunner is the part of worker.Runner the handlers use.
type PurgeRunner interface {
	RunWithRetention(ctx context.Context, trigger string, daysToRetain int) (*purge.Report, error)
	DryRun(ctx context.Context, daysToRetain int) (*purge.Report, error)
	DaysToRetain() int
	Running() bool
	Last() *purge.Report
}

// TriggerPurge runs the pipeline synchronously and returns its report.
// Query parameters: dry_run=1 counts candidates only; days=N overrides the
// retention window for this run.
func TriggerPurge(runner PurgeRunner) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		days := runner.DaysToRetain()
		if raw := string(ctx.QueryArgs().Peek("days")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest, "days must be an integer")
				return
			}
			days = n
		}

		var (
			report *purge.Report
			err    error
		)
		if ctx.QueryArgs().GetBool("dry_run") {
			report, err = runner.DryRun(ctx, days)
		} else {
			report, err = runner.RunWithRetention(ctx, "http", days)
		}

		var cfgErr *purge.ConfigurationError
		switch {
		case errors.Is(err, worker.ErrAlreadyRunning):
			errResponse(ctx, fasthttp.StatusConflict, "a purge run is already in progress")
			return
		case errors.As(err, &cfgErr):
			errResponse(ctx, fasthttp.StatusBadRequest, cfgErr.Error())
			return
		case err != nil && report == nil:
			requestLog(ctx).WithError(err).Error("purge request failed")
			errResponse(ctx, fasthttp.StatusInternalServerError, "purge failed")
			return
		}

		code := fasthttp.StatusOK
		if err != nil {
			code = fasthttp.StatusInternalServerError
		}
		jsonResponse(ctx, code, newReportView(report, err))
	}
}

// PurgeStatus reports whether a run is in progress and the last outcome
// seen by this process.
func PurgeStatus(runner PurgeRunner) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		out := map[string]any{
			"running":      runner.Running(),
			"daysToRetain": runner.DaysToRetain(),
		}
		if last := runner.Last(); last != nil {
			out["last"] = newReportView(last, nil)
		}
		jsonResponse(ctx, fasthttp.StatusOK, out)
	}
}
