package purge

import (
	"regexp"
	"strings"
)

// DefaultTablePrefix is the prefix Spring Batch uses for its metadata tables.
const DefaultTablePrefix = "BATCH_"

const prefixPlaceholder = "%PREFIX%"

// createdBefore is the cutoff predicate of the selection templates. sqlite
// stores timestamps as text, so on that dialect both sides are normalised
// to UTC with datetime() before comparing; a plain comparison would order
// values with different offsets as strings.
const (
	createdBefore       = "CREATE_TIME < ?"
	sqliteCreatedBefore = "datetime(CREATE_TIME) < datetime(?)"
)

// Statement templates. Bind variables are written as "?" and rewritten by
// gorm for the active dialect.
const (
	selectPurgeableStepExecutions = "SELECT STEP_EXECUTION_ID FROM %PREFIX%STEP_EXECUTION WHERE JOB_EXECUTION_ID IN (SELECT JOB_EXECUTION_ID FROM %PREFIX%JOB_EXECUTION WHERE CREATE_TIME < ?)"
	deleteStepExecutionContext    = "DELETE FROM %PREFIX%STEP_EXECUTION_CONTEXT WHERE STEP_EXECUTION_ID = ?"
	deleteStepExecution           = "DELETE FROM %PREFIX%STEP_EXECUTION WHERE STEP_EXECUTION_ID = ?"

	selectPurgeableJobExecutions = "SELECT JOB_EXECUTION_ID FROM %PREFIX%JOB_EXECUTION WHERE CREATE_TIME < ?"
	deleteJobExecutionContext    = "DELETE FROM %PREFIX%JOB_EXECUTION_CONTEXT WHERE JOB_EXECUTION_ID = ?"
	deleteJobExecutionParams     = "DELETE FROM %PREFIX%JOB_EXECUTION_PARAMS WHERE JOB_EXECUTION_ID = ?"
	deleteJobExecution           = "DELETE FROM %PREFIX%JOB_EXECUTION WHERE JOB_EXECUTION_ID = ?"

	selectPurgeableJobInstances = "SELECT JOB_INSTANCE_ID FROM %PREFIX%JOB_INSTANCE WHERE JOB_INSTANCE_ID NOT IN (SELECT JOB_INSTANCE_ID FROM %PREFIX%JOB_EXECUTION)"
	deleteJobInstance           = "DELETE FROM %PREFIX%JOB_INSTANCE WHERE JOB_INSTANCE_ID = ?"
)

// Unprefixed table names, used as labels for counts and metrics.
const (
	TableStepExecutionContext = "STEP_EXECUTION_CONTEXT"
	TableStepExecution        = "STEP_EXECUTION"
	TableJobExecutionContext  = "JOB_EXECUTION_CONTEXT"
	TableJobExecutionParams   = "JOB_EXECUTION_PARAMS"
	TableJobExecution         = "JOB_EXECUTION"
	TableJobInstance          = "JOB_INSTANCE"
)

var prefixPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidatePrefix checks that prefix can be spliced into a table name.
// A schema qualifier such as "batch.BATCH_" is allowed.
func ValidatePrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return &ConfigurationError{Field: "table prefix", Value: prefix, Reason: "must be an identifier, optionally schema qualified"}
	}
	return nil
}

// ExpandStatement expands a statement template for prefix and the named
// gorm dialect.
func ExpandStatement(template, prefix, dialect string) string {
	stmt := ExpandPrefix(template, prefix)
	if dialect == "sqlite" {
		stmt = strings.ReplaceAll(stmt, createdBefore, sqliteCreatedBefore)
	}
	return stmt
}

// ExpandPrefix substitutes the table prefix into a statement template.
func ExpandPrefix(template, prefix string) string {
	return strings.ReplaceAll(template, prefixPlaceholder, prefix)
}
