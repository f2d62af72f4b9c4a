package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// StartRetentionWorker schedules runner on schedule, a standard 5-field
// cron expression evaluated in loc. With runOnStart a run is also started
// right away. The scheduler stops when ctx is done; the returned cron can
// be stopped earlier.
func StartRetentionWorker(ctx context.Context, runner *Runner, schedule string, loc *time.Location, runOnStart bool) (*cron.Cron, error) {
	if loc == nil {
		loc = time.Local
	}
	cronLogger := cron.PrintfLogger(logger.WithField("component", "cron"))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	run := func(trigger string) {
		if _, err := runner.Run(ctx, trigger); errors.Is(err, ErrAlreadyRunning) {
			logger.WithField("trigger", trigger).Info("purge skipped, a run is in progress")
		}
	}
	if _, err := c.AddFunc(schedule, func() { run("schedule") }); err != nil {
		return nil, fmt.Errorf("purge schedule %q: %w", schedule, err)
	}

	c.Start()
	logger.WithField("schedule", schedule).Info("retention worker started")

	if runOnStart {
		go run("startup")
	}

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		logger.Info("retention worker stopped")
	}()
	return c, nil
}
