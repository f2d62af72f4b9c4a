package purge

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// StepState is the lifecycle state of one step invocation.
type StepState int

const (
	StepIdle StepState = iota
	StepRunning
	StepCompleted
	StepFailed
)

func (s StepState) String() string {
	switch s {
	case StepIdle:
		return "idle"
	case StepRunning:
		return "running"
	case StepCompleted:
		return "completed"
	case StepFailed:
		return "failed"
	default:
		return fmt.Sprintf("StepState(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s StepState) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// Step pairs one selection with one chunked deleter.
type Step struct {
	Name    string
	Open    StreamFactory
	Deleter *ChunkedDeleter
}

// StepResult is the outcome of one step invocation.
type StepResult struct {
	Name     string
	State    StepState
	Chunks   int
	Items    int
	Counts   Counts
	Started  time.Time
	Finished time.Time
	Err      error
}

// Duration returns how long the step ran.
func (r StepResult) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// transition moves r to next. Anything other than Idle→Running and
// Running→terminal is a programming error.
func (r *StepResult) transition(next StepState) {
	switch {
	case r.State == StepIdle && next == StepRunning:
	case r.State == StepRunning && next.Terminal():
	default:
		panic(fmt.Sprintf("purge: illegal step transition %s -> %s", r.State, next))
	}
	r.State = next
}

// Run executes the step from scratch: open a new stream, drain it chunk by
// chunk, and finish Completed or Failed. Nothing is carried over from an
// earlier invocation.
func (s *Step) Run(ctx context.Context, run *Run, onCommit func(ChunkResult)) StepResult {
	res := StepResult{Name: s.Name, State: StepIdle, Counts: Counts{}}
	res.transition(StepRunning)
	res.Started = run.now()

	log := logger.WithFields(logrus.Fields{
		"run":    run.ID,
		"runKey": run.Key,
		"step":   s.Name,
		"tables": s.Deleter.Operations().Tables(),
	})
	log.Debug("step started")

	stats, err := s.drain(ctx, run, onCommit)
	res.Chunks = stats.Chunks
	res.Items = stats.Items
	res.Counts.Add(stats.Counts)
	res.Finished = run.now()

	if err != nil {
		res.Err = &StepError{Step: s.Name, Err: err}
		res.transition(StepFailed)
		log.WithError(err).WithField("chunks", res.Chunks).Error("step failed")
		return res
	}

	res.transition(StepCompleted)
	log.WithFields(logrus.Fields{
		"chunks": res.Chunks,
		"items":  res.Items,
		"rows":   res.Counts.Total(),
	}).Info("step completed")
	return res
}

func (s *Step) drain(ctx context.Context, run *Run, onCommit func(ChunkResult)) (ChunkStats, error) {
	stream, err := s.Open(ctx, run)
	if err != nil {
		return ChunkStats{Counts: Counts{}}, &SelectionError{Step: s.Name, Err: err}
	}
	defer stream.Close()

	return s.Deleter.Drain(ctx, s.Name, stream, onCommit)
}

// Count drains a fresh stream without deleting anything and returns the
// number of candidates it produced.
func (s *Step) Count(ctx context.Context, run *Run) (int64, error) {
	stream, err := s.Open(ctx, run)
	if err != nil {
		return 0, &StepError{Step: s.Name, Err: &SelectionError{Step: s.Name, Err: err}}
	}
	defer stream.Close()

	var n int64
	for {
		if _, ok := stream.Next(); !ok {
			break
		}
		n++
	}
	if err := stream.Err(); err != nil {
		return n, &StepError{Step: s.Name, Err: &SelectionError{Step: s.Name, Err: err}}
	}
	return n, nil
}
