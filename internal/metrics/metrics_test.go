package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"batchpurge/internal/purge"
)

func TestCollectorRecordsRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	run := &purge.Run{ID: 1}
	finished := time.Date(2026, 10, 18, 3, 0, 5, 0, time.UTC)

	c.RunStarted(context.Background(), run)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runInProgress))

	c.ChunkCommitted(run, purge.ChunkResult{Step: purge.StepDeleteJobExecutions, Index: 1, Size: 2, Counts: purge.Counts{
		purge.TableJobExecution:       2,
		purge.TableJobExecutionParams: 5,
	}})
	c.ChunkCommitted(run, purge.ChunkResult{Step: purge.StepDeleteJobExecutions, Index: 2, Size: 1, Counts: purge.Counts{
		purge.TableJobExecution: 1,
	}})
	c.StepFinished(run, purge.StepResult{Name: purge.StepDeleteJobExecutions, Started: finished.Add(-2 * time.Second), Finished: finished})
	c.RunFinished(context.Background(), &purge.Report{Run: *run, Finished: finished}, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.chunksTotal.WithLabelValues(purge.StepDeleteJobExecutions)))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.rowsDeleted.WithLabelValues(purge.StepDeleteJobExecutions, purge.TableJobExecution)))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.rowsDeleted.WithLabelValues(purge.StepDeleteJobExecutions, purge.TableJobExecutionParams)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(c.lastSuccess))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.runInProgress))

	expected := `
# HELP batchpurge_runs_total Purge runs by final status.
# TYPE batchpurge_runs_total counter
batchpurge_runs_total{status="completed"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "batchpurge_runs_total"))
}

func TestCollectorFailedRunKeepsLastSuccess(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	report := &purge.Report{
		Steps:    []purge.StepResult{{Name: purge.StepDeleteStepExecutions, State: purge.StepFailed}},
		Finished: time.Now(),
	}

	c.RunFinished(context.Background(), report, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("failed")))
	assert.Zero(t, testutil.ToFloat64(c.lastSuccess))
}
