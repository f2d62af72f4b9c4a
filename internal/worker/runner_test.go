package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchpurge/internal/batchtest"
	"batchpurge/internal/db"
	"batchpurge/internal/purge"
)

var errNoRows = errors.New("no such table")

// blockingPipeline has one step whose selection waits for release and then
// fails. started receives the trigger of every run.
func blockingPipeline(t *testing.T, started chan<- string, release <-chan struct{}) *purge.Pipeline {
	t.Helper()
	step := &purge.Step{
		Name: "block",
		Open: func(ctx context.Context, run *purge.Run) (*purge.CandidateStream, error) {
			started <- run.Trigger
			<-release
			return nil, errNoRows
		},
		Deleter: purge.NewChunkedDeleter(nil, 1, nil),
	}
	p, err := purge.NewPipeline([]*purge.Step{step}, 7)
	require.NoError(t, err)
	return p
}

func TestRunnerRejectsConcurrentRuns(t *testing.T) {
	started := make(chan string, 1)
	release := make(chan struct{})
	r := NewRunner(blockingPipeline(t, started, release), nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), "http")
		done <- err
	}()
	assert.Equal(t, "http", <-started)
	assert.True(t, r.Running())

	_, err := r.Run(context.Background(), "schedule")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	err = <-done
	assert.ErrorIs(t, err, errNoRows)
	assert.False(t, r.Running())
	require.NotNil(t, r.Last())
	assert.Equal(t, "failed", r.Last().Status())
}

type heldLock struct{ calls atomic.Int32 }

func (l *heldLock) WithLock(context.Context, func(context.Context) error) error {
	l.calls.Add(1)
	return db.ErrLockHeld
}

func TestRunnerReportsHeldDatabaseLock(t *testing.T) {
	lock := &heldLock{}
	started := make(chan string, 1)
	r := NewRunner(blockingPipeline(t, started, nil), lock)

	report, err := r.Run(context.Background(), "schedule")
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.EqualValues(t, 1, lock.calls.Load())
	assert.Empty(t, started)
}

func TestRunnerPurgesAndRecords(t *testing.T) {
	gdb := batchtest.Open(t)
	fx := batchtest.NewFixture(t, gdb)
	fx.Job("job", time.Now().AddDate(0, 0, -30), 2)
	fx.Job("job", time.Now(), 1)

	ledger := db.NewRunLedger(gdb)
	p, err := purge.NewSpringBatchPipeline(gdb, purge.Options{TablePrefix: "BATCH_", DaysToRetain: 7},
		purge.WithLocation(time.UTC), purge.WithRunIDs(ledger), purge.WithObserver(ledger))
	require.NoError(t, err)
	r := NewRunner(p, db.NewRunLock(gdb, "sqlite", "batchpurge"))

	dry, err := r.DryRun(context.Background(), 7)
	require.NoError(t, err)
	assert.EqualValues(t, 2, dry.Candidates[purge.StepDeleteStepExecutions])

	report, err := r.Run(context.Background(), "cli")
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Counts()[purge.TableJobInstance])
	assert.EqualValues(t, 1, fx.Count(purge.TableJobInstance))

	runs, err := ledger.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "cli", runs[0].Trigger)
	assert.Equal(t, db.RunStatusCompleted, runs[0].Status)
	assert.Same(t, report, r.Last())
}
