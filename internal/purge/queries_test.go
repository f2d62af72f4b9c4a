package purge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePrefix(t *testing.T) {
	for _, ok := range []string{"BATCH_", "batch_", "_B", "meta.BATCH_", "X"} {
		assert.NoError(t, ValidatePrefix(ok), ok)
	}
	for _, bad := range []string{"", "1BATCH_", "BATCH-", "a.b.c", "BATCH_ ", "BATCH_;--", "meta."} {
		assert.Error(t, ValidatePrefix(bad), bad)
	}
}

func TestExpandPrefix(t *testing.T) {
	assert.Equal(t,
		"DELETE FROM meta.BATCH_JOB_INSTANCE WHERE JOB_INSTANCE_ID = ?",
		ExpandPrefix(deleteJobInstance, "meta.BATCH_"))

	assert.Equal(t,
		"SELECT JOB_INSTANCE_ID FROM X_JOB_INSTANCE WHERE JOB_INSTANCE_ID NOT IN (SELECT JOB_INSTANCE_ID FROM X_JOB_EXECUTION)",
		ExpandPrefix(selectPurgeableJobInstances, "X_"))
}

func TestTemplatesTakeOneBindVariable(t *testing.T) {
	withCutoff := []string{selectPurgeableStepExecutions, selectPurgeableJobExecutions}
	deletes := []string{
		deleteStepExecutionContext, deleteStepExecution,
		deleteJobExecutionContext, deleteJobExecutionParams, deleteJobExecution,
		deleteJobInstance,
	}

	for _, q := range append(withCutoff, deletes...) {
		assert.Equal(t, 1, strings.Count(q, "?"), q)
		assert.Contains(t, q, prefixPlaceholder)
	}
	for _, q := range withCutoff {
		assert.Contains(t, q, "CREATE_TIME < ?")
	}
	assert.NotContains(t, selectPurgeableJobInstances, "?")
}

func TestExpandStatementNormalisesSqliteTimestamps(t *testing.T) {
	assert.Equal(t,
		"SELECT JOB_EXECUTION_ID FROM BATCH_JOB_EXECUTION WHERE CREATE_TIME < ?",
		ExpandStatement(selectPurgeableJobExecutions, "BATCH_", "postgres"))
	assert.Equal(t,
		"SELECT JOB_EXECUTION_ID FROM BATCH_JOB_EXECUTION WHERE datetime(CREATE_TIME) < datetime(?)",
		ExpandStatement(selectPurgeableJobExecutions, "BATCH_", "sqlite"))
	assert.Equal(t,
		"DELETE FROM BATCH_JOB_INSTANCE WHERE JOB_INSTANCE_ID = ?",
		ExpandStatement(deleteJobInstance, "BATCH_", "sqlite"))
}
