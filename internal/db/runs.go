package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"batchpurge/internal/purge"
)

// RunLedger persists one PurgeRun per invocation. It allocates run
// identifiers and records each outcome when the run finishes.
type RunLedger struct {
	purge.NopObserver
	db *gorm.DB
}

func NewRunLedger(db *gorm.DB) *RunLedger {
	return &RunLedger{db: db}
}

// interruptedRunError is recorded on runs whose process stopped before the
// outcome was written.
const interruptedRunError = "interrupted: the process stopped before the run finished"

// NextRunID inserts the ledger row for run and returns its identifier.
//
// Run ids are allocated while the run lock is held, so any row still marked
// running at this point belongs to a process that died mid-run; those rows
// are marked failed in the same transaction.
func (l *RunLedger) NextRunID(ctx context.Context, run *purge.Run) (int64, error) {
	row := &PurgeRun{
		RunKey:       run.Key,
		StartedAt:    run.Started,
		Status:       RunStatusRunning,
		Trigger:      run.Trigger,
		Cutoff:       run.Cutoff,
		DaysToRetain: run.DaysToRetain,
	}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&PurgeRun{}).Where("status = ?", RunStatusRunning).Updates(map[string]any{
			"status": RunStatusFailed,
			"error":  interruptedRunError,
		})
		if res.Error != nil {
			return fmt.Errorf("close interrupted purge runs: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			logger.WithField("runs", res.RowsAffected).Warn("marked interrupted purge runs as failed")
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("insert purge run: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

// RunFinished records the outcome. The write is not tied to the caller's
// cancellation so an interrupted run is still recorded.
func (l *RunLedger) RunFinished(ctx context.Context, report *purge.Report, err error) {
	if report == nil || report.ID == 0 {
		return
	}
	summaries := make([]StepSummary, 0, len(report.Steps))
	for _, s := range report.Steps {
		sum := StepSummary{
			Name:       s.Name,
			State:      s.State.String(),
			Chunks:     s.Chunks,
			Items:      s.Items,
			Rows:       s.Counts,
			DurationMs: s.Duration().Milliseconds(),
		}
		if s.Err != nil {
			sum.Error = s.Err.Error()
		}
		summaries = append(summaries, sum)
	}
	steps, jerr := json.Marshal(summaries)
	if jerr != nil {
		steps = []byte("[]")
	}

	finished := report.Finished
	updates := map[string]any{
		"finished_at":  &finished,
		"status":       report.Status(),
		"rows_deleted": report.Counts().Total(),
		"failed_step":  report.FailedStep(),
		"steps":        datatypes.JSON(steps),
	}
	if err != nil {
		updates["status"] = RunStatusFailed
		updates["error"] = err.Error()
	}

	res := l.db.WithContext(context.WithoutCancel(ctx)).Model(&PurgeRun{}).Where("id = ?", report.ID).Updates(updates)
	if res.Error != nil {
		logger.WithError(res.Error).WithFields(logrus.Fields{
			"run":    report.ID,
			"runKey": report.Key,
		}).Error("could not record purge run outcome")
	}
}

// Recent returns up to limit runs, newest first.
func (l *RunLedger) Recent(ctx context.Context, limit int) ([]PurgeRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []PurgeRun
	if err := l.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Get returns the run with the given identifier.
func (l *RunLedger) Get(ctx context.Context, id int64) (*PurgeRun, error) {
	var run PurgeRun
	if err := l.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// StepSummaries decodes the step summaries of a run.
func (r *PurgeRun) StepSummaries() ([]StepSummary, error) {
	if len(r.Steps) == 0 {
		return nil, nil
	}
	var out []StepSummary
	if err := json.Unmarshal(r.Steps, &out); err != nil {
		return nil, err
	}
	return out, nil
}
