package handlers

import (
	"time"

	"batchpurge/internal/purge"
)

type stepView struct {
	Name       string           `json:"name"`
	State      string           `json:"state"`
	Chunks     int              `json:"chunks"`
	Items      int              `json:"items"`
	Rows       map[string]int64 `json:"rows"`
	DurationMs int64            `json:"durationMs"`
	Error      string           `json:"error,omitempty"`
}

type reportView struct {
	ID           int64            `json:"id,omitempty"`
	RunKey       string           `json:"runKey"`
	Trigger      string           `json:"trigger"`
	DryRun       bool             `json:"dryRun"`
	Status       string           `json:"status"`
	DaysToRetain int              `json:"daysToRetain"`
	Cutoff       string           `json:"cutoff"`
	StartedAt    string           `json:"startedAt"`
	FinishedAt   string           `json:"finishedAt,omitempty"`
	RowsDeleted  int64            `json:"rowsDeleted"`
	FailedStep   string           `json:"failedStep,omitempty"`
	Steps        []stepView       `json:"steps,omitempty"`
	Candidates   map[string]int64 `json:"candidates,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// formatTime renders t as RFC 3339 in its own location. Zero stays empty.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func newReportView(r *purge.Report, err error) reportView {
	v := reportView{
		ID:           r.ID,
		RunKey:       r.Key,
		Trigger:      r.Trigger,
		DryRun:       r.DryRun,
		Status:       r.Status(),
		DaysToRetain: r.DaysToRetain,
		Cutoff:       formatTime(r.Cutoff),
		StartedAt:    formatTime(r.Started),
		FinishedAt:   formatTime(r.Finished),
		RowsDeleted:  r.Counts().Total(),
		FailedStep:   r.FailedStep(),
		Candidates:   r.Candidates,
	}
	for _, s := range r.Steps {
		sv := stepView{
			Name:       s.Name,
			State:      s.State.String(),
			Chunks:     s.Chunks,
			Items:      s.Items,
			Rows:       s.Counts,
			DurationMs: s.Duration().Milliseconds(),
		}
		if s.Err != nil {
			sv.Error = s.Err.Error()
		}
		v.Steps = append(v.Steps, sv)
	}
	if err != nil {
		v.Status = "failed"
		v.Error = err.Error()
	}
	if r.DryRun {
		v.Status = "dry-run"
	}
	return v
}
