package purge

import (
	"gorm.io/gorm"
)

// Step names, in execution order.
const (
	StepDeleteStepExecutions = "deleteStepExecutions"
	StepDeleteJobExecutions  = "deleteJobExecutions"
	StepDeleteJobInstances   = "deleteJobInstances"
)

// Options configures the Spring Batch purge pipeline.
type Options struct {
	TablePrefix  string
	DaysToRetain int
	ChunkSize    int
}

// Validate checks the options without touching the store.
func (o Options) Validate() error {
	if err := ValidatePrefix(o.TablePrefix); err != nil {
		return err
	}
	return ValidateDaysToRetain(o.DaysToRetain)
}

// NewSpringBatchPipeline builds the three-phase purge of the Spring Batch
// metadata tables:
//
//  1. step executions of old job executions, context first;
//  2. old job executions with their context and parameters;
//  3. job instances no execution references any more.
//
// Each phase depends on the previous one having completed.
func NewSpringBatchPipeline(db *gorm.DB, opts Options, extra ...Option) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	dialect := db.Dialector.Name()
	q := func(template string) string { return ExpandStatement(template, opts.TablePrefix, dialect) }

	steps := []*Step{
		{
			Name: StepDeleteStepExecutions,
			Open: CutoffSelection(db, q(selectPurgeableStepExecutions)),
			Deleter: NewChunkedDeleter(db, opts.ChunkSize, CompositeDelete{
				{Table: TableStepExecutionContext, Statement: q(deleteStepExecutionContext)},
				{Table: TableStepExecution, Statement: q(deleteStepExecution)},
			}),
		},
		{
			Name: StepDeleteJobExecutions,
			Open: CutoffSelection(db, q(selectPurgeableJobExecutions)),
			Deleter: NewChunkedDeleter(db, opts.ChunkSize, CompositeDelete{
				{Table: TableJobExecutionContext, Statement: q(deleteJobExecutionContext)},
				{Table: TableJobExecutionParams, Statement: q(deleteJobExecutionParams)},
				{Table: TableJobExecution, Statement: q(deleteJobExecution)},
			}),
		},
		{
			Name: StepDeleteJobInstances,
			Open: OrphanSelection(db, q(selectPurgeableJobInstances)),
			Deleter: NewChunkedDeleter(db, opts.ChunkSize, CompositeDelete{
				{Table: TableJobInstance, Statement: q(deleteJobInstance)},
			}),
		},
	}

	return NewPipeline(steps, opts.DaysToRetain, extra...)
}
