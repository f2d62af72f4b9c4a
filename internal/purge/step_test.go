package purge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchpurge/internal/batchtest"
	"batchpurge/internal/purge"
)

func TestStepRunCompletes(t *testing.T) {
	db, fx := seedSteps(t, 5)
	step := &purge.Step{
		Name:    "deleteStepExecutions",
		Open:    purge.OrphanSelection(db, allStepExecutions),
		Deleter: purge.NewChunkedDeleter(db, 2, stepExecutionDeletes),
	}

	res := step.Run(context.Background(), &purge.Run{ID: 1}, nil)

	assert.Equal(t, purge.StepCompleted, res.State)
	assert.NoError(t, res.Err)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 5, res.Items)
	assert.EqualValues(t, 5, res.Counts[purge.TableStepExecution])
	assert.False(t, res.Finished.Before(res.Started))
	assert.Zero(t, fx.Count(purge.TableStepExecution))
}

func TestStepRunOpensFreshStreamEachTime(t *testing.T) {
	db, fx := seedSteps(t, 3)
	opened := 0
	step := &purge.Step{
		Name: "deleteStepExecutions",
		Open: func(ctx context.Context, run *purge.Run) (*purge.CandidateStream, error) {
			opened++
			return purge.OpenStream(ctx, db, allStepExecutions)
		},
		Deleter: purge.NewChunkedDeleter(db, 10, stepExecutionDeletes),
	}

	first := step.Run(context.Background(), &purge.Run{ID: 1}, nil)
	exec := fx.IDs(purge.TableJobExecution, "JOB_EXECUTION_ID")[0]
	fx.StepExecution(exec, "late")
	second := step.Run(context.Background(), &purge.Run{ID: 2}, nil)

	assert.Equal(t, 2, opened)
	assert.Equal(t, 3, first.Items)
	assert.Equal(t, 1, second.Items)
	assert.Equal(t, purge.StepCompleted, second.State)
}

func TestStepRunFailsOnSelectionError(t *testing.T) {
	db := batchtest.Open(t)
	boom := errors.New("relation does not exist")
	step := &purge.Step{
		Name: "deleteJobExecutions",
		Open: func(context.Context, *purge.Run) (*purge.CandidateStream, error) {
			return nil, boom
		},
		Deleter: purge.NewChunkedDeleter(db, 10, nil),
	}

	res := step.Run(context.Background(), &purge.Run{}, nil)

	assert.Equal(t, purge.StepFailed, res.State)
	var stepErr *purge.StepError
	require.True(t, errors.As(res.Err, &stepErr))
	assert.Equal(t, "deleteJobExecutions", stepErr.Step)
	var selErr *purge.SelectionError
	assert.True(t, errors.As(res.Err, &selErr))
	assert.ErrorIs(t, res.Err, boom)
	assert.Zero(t, res.Chunks)
}

func TestStepCount(t *testing.T) {
	db, fx := seedSteps(t, 4)
	step := &purge.Step{
		Name:    "deleteStepExecutions",
		Open:    purge.OrphanSelection(db, allStepExecutions),
		Deleter: purge.NewChunkedDeleter(db, 2, stepExecutionDeletes),
	}

	n, err := step.Count(context.Background(), &purge.Run{Cutoff: time.Now()})
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.EqualValues(t, 4, fx.Count(purge.TableStepExecution))
}
