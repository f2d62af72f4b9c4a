package purge

import "fmt"

// ConfigurationError reports an invalid setting. It is always detected
// before the store is touched.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// SelectionError is returned when a candidate query cannot be opened or
// its cursor fails while being read.
type SelectionError struct {
	Step string
	Err  error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("select candidates for %s: %v", e.Step, e.Err)
}

func (e *SelectionError) Unwrap() error { return e.Err }

// DeleteError is returned when one statement of a composite delete fails.
// The enclosing chunk has been rolled back by the time the caller sees it.
type DeleteError struct {
	Step  string
	Table string
	ID    int64
	Err   error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete %s row %d in %s: %v", e.Table, e.ID, e.Step, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

// StepError names the pipeline step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
