package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"batchpurge/internal/db"
	"batchpurge/internal/logging"
	"batchpurge/internal/purge"
)

var logger = logrus.StandardLogger().WithField("module", "worker")

// ErrAlreadyRunning is returned when a run is requested while another is
// in progress, in this process or, with a database lock, anywhere.
var ErrAlreadyRunning = errors.New("purge run already in progress")

// Runner serializes purge runs. Scheduled, CLI and HTTP triggers all go
// through one Runner.
type Runner struct {
	pipeline *purge.Pipeline
	lock     db.RunLock

	mu      sync.Mutex
	stateMu sync.RWMutex
	running bool
	last    *purge.Report
}

// NewRunner wraps pipeline. lock may be nil.
func NewRunner(pipeline *purge.Pipeline, lock db.RunLock) *Runner {
	return &Runner{pipeline: pipeline, lock: lock}
}

// Run executes the pipeline with its configured retention.
func (r *Runner) Run(ctx context.Context, trigger string) (*purge.Report, error) {
	return r.RunWithRetention(ctx, trigger, r.pipeline.DaysToRetain())
}

// RunWithRetention executes the pipeline with a one-off retention window.
// It never waits for a run in progress.
func (r *Runner) RunWithRetention(ctx context.Context, trigger string, daysToRetain int) (*purge.Report, error) {
	if !r.mu.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer r.mu.Unlock()

	r.setRunning(true)
	defer r.setRunning(false)

	ctx = purge.WithTrigger(ctx, trigger)
	log := logger.WithFields(logrus.Fields{"trigger": trigger, "daysToRetain": daysToRetain})

	var report *purge.Report
	run := func(ctx context.Context) error {
		var err error
		report, err = r.pipeline.RunWithRetention(ctx, daysToRetain)
		return err
	}

	var err error
	if r.lock != nil {
		err = r.lock.WithLock(ctx, run)
	} else {
		err = run(ctx)
	}

	if errors.Is(err, db.ErrLockHeld) {
		log.Info("purge run skipped, another instance holds the run lock")
		return nil, fmt.Errorf("%w: %v", ErrAlreadyRunning, err)
	}
	if report != nil {
		r.stateMu.Lock()
		r.last = report
		r.stateMu.Unlock()
	}
	if err != nil {
		logging.LogError(log, err, "purge run failed")
		return report, err
	}
	log.WithFields(logrus.Fields{
		"run":  report.ID,
		"rows": report.Counts().Total(),
	}).Info("purge run finished")
	return report, nil
}

// DryRun counts candidates without deleting. It does not take the lock.
func (r *Runner) DryRun(ctx context.Context, daysToRetain int) (*purge.Report, error) {
	return r.pipeline.DryRun(ctx, daysToRetain)
}

// DaysToRetain returns the pipeline's configured retention window.
func (r *Runner) DaysToRetain() int {
	return r.pipeline.DaysToRetain()
}

// Running reports whether this process is executing a run.
func (r *Runner) Running() bool {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.running
}

// Last returns the report of the most recent run, or nil.
func (r *Runner) Last() *purge.Report {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.last
}

func (r *Runner) setRunning(v bool) {
	r.stateMu.Lock()
	r.running = v
	r.stateMu.Unlock()
}
