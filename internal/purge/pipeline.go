package purge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var logger = logrus.StandardLogger().WithField("module", "purge")

// Run carries the per-invocation values every step of a pipeline run shares.
type Run struct {
	ID           int64
	Key          string
	Trigger      string
	DaysToRetain int
	Cutoff       time.Time
	Started      time.Time

	clock func() time.Time
}

func (r *Run) now() time.Time {
	if r.clock == nil {
		return time.Now()
	}
	return r.clock()
}

// Report is the outcome of a pipeline invocation.
type Report struct {
	Run
	DryRun     bool
	Steps      []StepResult
	Candidates map[string]int64
	Finished   time.Time
}

// Counts sums the affected rows of every step by table.
func (r *Report) Counts() Counts {
	total := Counts{}
	for _, s := range r.Steps {
		total.Add(s.Counts)
	}
	return total
}

// FailedStep returns the name of the step that failed, or "".
func (r *Report) FailedStep() string {
	for _, s := range r.Steps {
		if s.State == StepFailed {
			return s.Name
		}
	}
	return ""
}

// Status is "completed" when every step completed and "failed" otherwise.
func (r *Report) Status() string {
	if r.FailedStep() != "" {
		return "failed"
	}
	return "completed"
}

// RunIDSource hands out run identifiers. Identifiers must increase from one
// invocation to the next.
type RunIDSource interface {
	NextRunID(ctx context.Context, run *Run) (int64, error)
}

// CounterRunIDs is an in-process RunIDSource.
type CounterRunIDs struct {
	last atomic.Int64
}

func (c *CounterRunIDs) NextRunID(context.Context, *Run) (int64, error) {
	return c.last.Add(1), nil
}

// Observer is notified as a run progresses. Implementations must not block.
type Observer interface {
	RunStarted(ctx context.Context, run *Run)
	ChunkCommitted(run *Run, chunk ChunkResult)
	StepFinished(run *Run, result StepResult)
	RunFinished(ctx context.Context, report *Report, err error)
}

// NopObserver ignores every notification. Embed it to implement only a
// subset of Observer.
type NopObserver struct{}

func (NopObserver) RunStarted(context.Context, *Run)            {}
func (NopObserver) ChunkCommitted(*Run, ChunkResult)            {}
func (NopObserver) StepFinished(*Run, StepResult)               {}
func (NopObserver) RunFinished(context.Context, *Report, error) {}

type multiObserver []Observer

// Observers fans notifications out to every observer in order.
func Observers(obs ...Observer) Observer {
	return multiObserver(obs)
}

func (m multiObserver) RunStarted(ctx context.Context, run *Run) {
	for _, o := range m {
		o.RunStarted(ctx, run)
	}
}

func (m multiObserver) ChunkCommitted(run *Run, chunk ChunkResult) {
	for _, o := range m {
		o.ChunkCommitted(run, chunk)
	}
}

func (m multiObserver) StepFinished(run *Run, result StepResult) {
	for _, o := range m {
		o.StepFinished(run, result)
	}
}

func (m multiObserver) RunFinished(ctx context.Context, report *Report, err error) {
	for _, o := range m {
		o.RunFinished(ctx, report, err)
	}
}

type triggerKey struct{}

// WithTrigger records what started the invocation (schedule, cli, http).
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFromContext returns the trigger set by WithTrigger, or "manual".
func TriggerFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}
	return "manual"
}

// Pipeline runs its steps strictly in order. A step starts only after its
// predecessor completed; the first failure aborts the run.
type Pipeline struct {
	steps        []*Step
	daysToRetain int
	clock        func() time.Time
	loc          *time.Location
	ids          RunIDSource
	observer     Observer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces time.Now. Without WithLocation the cutoff is computed
// in the location of the returned time.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithLocation computes cutoffs in loc, whatever the clock's location.
func WithLocation(loc *time.Location) Option {
	return func(p *Pipeline) { p.loc = loc }
}

// WithRunIDs replaces the in-process run counter.
func WithRunIDs(ids RunIDSource) Option {
	return func(p *Pipeline) { p.ids = ids }
}

// WithObserver attaches an observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// NewPipeline validates the retention window and returns a pipeline over
// steps, which run in the order given.
func NewPipeline(steps []*Step, daysToRetain int, opts ...Option) (*Pipeline, error) {
	if err := ValidateDaysToRetain(daysToRetain); err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, errors.New("pipeline needs at least one step")
	}
	p := &Pipeline{
		steps:        steps,
		daysToRetain: daysToRetain,
		clock:        time.Now,
		ids:          &CounterRunIDs{},
		observer:     NopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, 0, len(p.steps))
	for _, s := range p.steps {
		names = append(names, s.Name)
	}
	return names
}

// DaysToRetain returns the configured retention window.
func (p *Pipeline) DaysToRetain() int {
	return p.daysToRetain
}

func (p *Pipeline) newRun(ctx context.Context, daysToRetain int) (*Run, error) {
	now := p.clock()
	if p.loc != nil {
		now = now.In(p.loc)
	}
	cutoff, err := Cutoff(now, daysToRetain)
	if err != nil {
		return nil, err
	}
	return &Run{
		Key:          uuid.NewString(),
		Trigger:      TriggerFromContext(ctx),
		DaysToRetain: daysToRetain,
		Cutoff:       cutoff,
		Started:      now,
		clock:        p.clock,
	}, nil
}

// Run executes one purge invocation. Work committed by completed steps and
// chunks stays committed when a later one fails; re-running picks up the
// remaining rows.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	return p.RunWithRetention(ctx, p.daysToRetain)
}

// RunWithRetention is Run with a one-off retention window.
func (p *Pipeline) RunWithRetention(ctx context.Context, daysToRetain int) (*Report, error) {
	run, err := p.newRun(ctx, daysToRetain)
	if err != nil {
		return nil, err
	}
	id, err := p.ids.NextRunID(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("allocate run id: %w", err)
	}
	run.ID = id

	log := logger.WithFields(logrus.Fields{
		"run":     run.ID,
		"runKey":  run.Key,
		"trigger": run.Trigger,
		"cutoff":  run.Cutoff.Format(time.RFC3339),
	})
	log.Info("purge run started")
	p.observer.RunStarted(ctx, run)

	report := &Report{Run: *run}
	onCommit := func(c ChunkResult) { p.observer.ChunkCommitted(run, c) }

	var runErr error
	for _, step := range p.steps {
		res := step.Run(ctx, run, onCommit)
		report.Steps = append(report.Steps, res)
		p.observer.StepFinished(run, res)
		if res.State == StepFailed {
			runErr = res.Err
			break
		}
	}
	report.Finished = run.now()

	if runErr != nil {
		log.WithError(runErr).WithField("step", report.FailedStep()).Error("purge run aborted")
	} else {
		log.WithField("rows", report.Counts().Total()).Info("purge run completed")
	}
	p.observer.RunFinished(ctx, report, runErr)
	return report, runErr
}

// DryRun counts the current candidates of every step without deleting.
// The instance step only sees instances that are orphaned already; those a
// real run would orphan are not counted.
func (p *Pipeline) DryRun(ctx context.Context, daysToRetain int) (*Report, error) {
	run, err := p.newRun(ctx, daysToRetain)
	if err != nil {
		return nil, err
	}
	report := &Report{Run: *run, DryRun: true, Candidates: make(map[string]int64, len(p.steps))}
	for _, step := range p.steps {
		n, err := step.Count(ctx, run)
		if err != nil {
			report.Finished = run.now()
			return report, err
		}
		report.Candidates[step.Name] = n
	}
	report.Finished = run.now()
	return report, nil
}
