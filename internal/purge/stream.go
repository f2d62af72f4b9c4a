package purge

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"
)

// CandidateStream is a forward-only cursor over the identifiers a
// selection query returns. Rows are pulled from the store one at a time;
// the result set is never held in memory. A stream cannot be rewound, so a
// new one is opened for every step invocation.
type CandidateStream struct {
	rows   *sql.Rows
	err    error
	closed bool
}

// StreamFactory opens a fresh CandidateStream for one run of a step.
type StreamFactory func(ctx context.Context, run *Run) (*CandidateStream, error)

// OpenStream runs query and returns a stream over its first column.
func OpenStream(ctx context.Context, db *gorm.DB, query string, args ...any) (*CandidateStream, error) {
	rows, err := db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	return &CandidateStream{rows: rows}, nil
}

// CutoffSelection selects identifiers with query, binding the run's cutoff
// as the only parameter.
func CutoffSelection(db *gorm.DB, query string) StreamFactory {
	return func(ctx context.Context, run *Run) (*CandidateStream, error) {
		return OpenStream(ctx, db, query, run.Cutoff)
	}
}

// OrphanSelection selects identifiers with a parameterless query.
func OrphanSelection(db *gorm.DB, query string) StreamFactory {
	return func(ctx context.Context, _ *Run) (*CandidateStream, error) {
		return OpenStream(ctx, db, query)
	}
}

// Next advances the cursor. It returns false once the stream is exhausted
// or failed; check Err to tell the two apart.
func (s *CandidateStream) Next() (int64, bool) {
	if s.closed || s.err != nil {
		return 0, false
	}
	if !s.rows.Next() {
		s.err = s.rows.Err()
		s.Close()
		return 0, false
	}
	var id int64
	if err := s.rows.Scan(&id); err != nil {
		s.err = err
		s.Close()
		return 0, false
	}
	return id, true
}

// NextChunk returns up to size identifiers in stream order. An empty slice
// with a nil error means the stream is exhausted.
func (s *CandidateStream) NextChunk(size int) ([]int64, error) {
	if size <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	chunk := make([]int64, 0, size)
	for len(chunk) < size {
		id, ok := s.Next()
		if !ok {
			break
		}
		chunk = append(chunk, id)
	}
	return chunk, s.err
}

// Err returns the error that stopped the stream, if any.
func (s *CandidateStream) Err() error {
	return s.err
}

// Close releases the cursor. It is safe to call more than once.
func (s *CandidateStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rows.Close()
}
