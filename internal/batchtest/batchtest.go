// Package batchtest provides a file-backed sqlite store with the Spring
// Batch history schema, fixtures to populate it, and gorm callbacks to
// record or fail statements.
package batchtest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"batchpurge/internal/db"
	"batchpurge/internal/purge"
)

// Open returns a fresh store under t.TempDir() with the history schema
// and the run ledger, using the default table prefix.
func Open(t testing.TB) *gorm.DB {
	return OpenWithPrefix(t, purge.DefaultTablePrefix)
}

// OpenWithPrefix is Open with a custom table prefix.
func OpenWithPrefix(t testing.TB, prefix string) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "batch.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	require.NoError(t, db.Migrate(gdb))
	require.NoError(t, db.EnsureBatchSchema(context.Background(), gdb, prefix))
	return gdb
}

// Fixture inserts history rows with sequential identifiers per table, the
// way the batch engine's sequences hand them out.
type Fixture struct {
	t      testing.TB
	db     *gorm.DB
	prefix string

	instances  int64
	executions int64
	steps      int64
}

func NewFixture(t testing.TB, gdb *gorm.DB) *Fixture {
	return NewFixtureWithPrefix(t, gdb, purge.DefaultTablePrefix)
}

func NewFixtureWithPrefix(t testing.TB, gdb *gorm.DB, prefix string) *Fixture {
	return &Fixture{t: t, db: gdb, prefix: prefix}
}

func (f *Fixture) exec(stmt string, args ...any) {
	f.t.Helper()
	require.NoError(f.t, f.db.Exec(purge.ExpandPrefix(stmt, f.prefix), args...).Error)
}

// Instance inserts a job instance and returns its identifier.
func (f *Fixture) Instance(jobName string) int64 {
	f.t.Helper()
	f.instances++
	id := f.instances
	f.exec("INSERT INTO %PREFIX%JOB_INSTANCE (JOB_INSTANCE_ID, VERSION, JOB_NAME, JOB_KEY) VALUES (?, 0, ?, ?)",
		id, jobName, fmt.Sprintf("%032d", id))
	return id
}

// Execution inserts a job execution created at created, together with its
// context and one identifying parameter.
func (f *Fixture) Execution(instanceID int64, created time.Time) int64 {
	f.t.Helper()
	f.executions++
	id := f.executions
	created = created.UTC()
	f.exec("INSERT INTO %PREFIX%JOB_EXECUTION (JOB_EXECUTION_ID, VERSION, JOB_INSTANCE_ID, CREATE_TIME, START_TIME, END_TIME, STATUS, EXIT_CODE, LAST_UPDATED) VALUES (?, 2, ?, ?, ?, ?, 'COMPLETED', 'COMPLETED', ?)",
		id, instanceID, created, created, created.Add(time.Minute), created.Add(time.Minute))
	f.exec("INSERT INTO %PREFIX%JOB_EXECUTION_CONTEXT (JOB_EXECUTION_ID, SHORT_CONTEXT) VALUES (?, '{}')", id)
	f.exec("INSERT INTO %PREFIX%JOB_EXECUTION_PARAMS (JOB_EXECUTION_ID, PARAMETER_NAME, PARAMETER_TYPE, PARAMETER_VALUE, IDENTIFYING) VALUES (?, 'run.id', 'java.lang.Long', ?, 'Y')",
		id, fmt.Sprint(id))
	return id
}

// Param adds a non-identifying string parameter to a job execution.
func (f *Fixture) Param(jobExecutionID int64, name, value string) {
	f.t.Helper()
	f.exec("INSERT INTO %PREFIX%JOB_EXECUTION_PARAMS (JOB_EXECUTION_ID, PARAMETER_NAME, PARAMETER_TYPE, PARAMETER_VALUE, IDENTIFYING) VALUES (?, ?, 'java.lang.String', ?, 'N')",
		jobExecutionID, name, value)
}

// StepExecution inserts a step execution of jobExecutionID with its context.
func (f *Fixture) StepExecution(jobExecutionID int64, stepName string) int64 {
	f.t.Helper()
	f.steps++
	id := f.steps
	now := time.Now().UTC()
	f.exec("INSERT INTO %PREFIX%STEP_EXECUTION (STEP_EXECUTION_ID, VERSION, STEP_NAME, JOB_EXECUTION_ID, CREATE_TIME, STATUS, COMMIT_COUNT, READ_COUNT, WRITE_COUNT, LAST_UPDATED) VALUES (?, 1, ?, ?, ?, 'COMPLETED', 1, 0, 0, ?)",
		id, stepName, jobExecutionID, now, now)
	f.exec("INSERT INTO %PREFIX%STEP_EXECUTION_CONTEXT (STEP_EXECUTION_ID, SHORT_CONTEXT) VALUES (?, '{}')", id)
	return id
}

// Job inserts one instance with one execution created at created and the
// given number of step executions. It returns the instance identifier.
func (f *Fixture) Job(jobName string, created time.Time, steps int) int64 {
	f.t.Helper()
	instance := f.Instance(jobName)
	exec := f.Execution(instance, created)
	for i := 0; i < steps; i++ {
		f.StepExecution(exec, fmt.Sprintf("step%d", i+1))
	}
	return instance
}

// Count returns the number of rows in an unprefixed history table.
func (f *Fixture) Count(table string) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Table(f.prefix+table).Count(&n).Error)
	return n
}

// Counts returns Count for all six history tables.
func (f *Fixture) Counts() map[string]int64 {
	f.t.Helper()
	out := make(map[string]int64, 6)
	for _, table := range []string{
		purge.TableJobInstance,
		purge.TableJobExecution,
		purge.TableJobExecutionParams,
		purge.TableJobExecutionContext,
		purge.TableStepExecution,
		purge.TableStepExecutionContext,
	} {
		out[table] = f.Count(table)
	}
	return out
}

// IDs returns the identifiers in column of table, ascending.
func (f *Fixture) IDs(table, column string) []int64 {
	f.t.Helper()
	var ids []int64
	require.NoError(f.t, f.db.Table(f.prefix+table).Order(column).Pluck(column, &ids).Error)
	return ids
}

// Statement is one statement seen by a Recorder.
type Statement struct {
	SQL  string
	Vars []any
}

// Recorder captures every raw statement and query executed on a store.
type Recorder struct {
	mu    sync.Mutex
	stmts []Statement
}

var callbackSeq atomic.Int64

// Record registers a Recorder on gdb.
func Record(t testing.TB, gdb *gorm.DB) *Recorder {
	t.Helper()
	r := &Recorder{}
	name := fmt.Sprintf("batchtest:record:%d", callbackSeq.Add(1))
	record := func(tx *gorm.DB) {
		if tx.Error != nil {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		r.stmts = append(r.stmts, Statement{
			SQL:  tx.Statement.SQL.String(),
			Vars: append([]any(nil), tx.Statement.Vars...),
		})
	}
	require.NoError(t, gdb.Callback().Raw().After("gorm:raw").Register(name, record))
	require.NoError(t, gdb.Callback().Row().After("gorm:row").Register(name, record))
	return r
}

// Statements returns what was recorded so far.
func (r *Recorder) Statements() []Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Statement(nil), r.stmts...)
}

// Deletes returns the recorded DELETE statements rendered as
// "<table> <id>", in execution order.
func (r *Recorder) Deletes() []string {
	var out []string
	for _, s := range r.Statements() {
		if !strings.HasPrefix(s.SQL, "DELETE FROM ") {
			continue
		}
		table := strings.Fields(strings.TrimPrefix(s.SQL, "DELETE FROM "))[0]
		out = append(out, fmt.Sprintf("%s %v", table, s.Vars[0]))
	}
	return out
}

// Reset forgets the recorded statements.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmts = nil
}

// Failure makes matching statements fail until disabled.
type Failure struct {
	enabled atomic.Bool
	hits    atomic.Int64
}

// FailExec fails every raw statement for which match returns true with err.
func FailExec(t testing.TB, gdb *gorm.DB, err error, match func(sql string, vars []any) bool) *Failure {
	t.Helper()
	f := &Failure{}
	f.enabled.Store(true)
	name := fmt.Sprintf("batchtest:fail:%d", callbackSeq.Add(1))
	require.NoError(t, gdb.Callback().Raw().Before("gorm:raw").Register(name, func(tx *gorm.DB) {
		if f.enabled.Load() && match(tx.Statement.SQL.String(), tx.Statement.Vars) {
			f.hits.Add(1)
			tx.AddError(err)
		}
	}))
	return f
}

// FailDelete fails the delete from table for id. table is the full,
// prefixed name.
func FailDelete(t testing.TB, gdb *gorm.DB, table string, id int64, err error) *Failure {
	return FailExec(t, gdb, err, func(sql string, vars []any) bool {
		if !strings.HasPrefix(sql, "DELETE FROM ") || len(vars) != 1 {
			return false
		}
		target := strings.Fields(strings.TrimPrefix(sql, "DELETE FROM "))[0]
		return target == table && fmt.Sprint(vars[0]) == fmt.Sprint(id)
	})
}

// Disable stops injecting the failure.
func (f *Failure) Disable() {
	f.enabled.Store(false)
}

// Hits returns how many statements were failed.
func (f *Failure) Hits() int64 {
	return f.hits.Load()
}
