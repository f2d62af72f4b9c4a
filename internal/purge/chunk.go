package purge

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultChunkSize is the number of identifiers committed per transaction.
const DefaultChunkSize = 100

// ChunkResult describes one committed chunk.
type ChunkResult struct {
	Step   string
	Index  int
	Size   int
	Counts Counts
}

// ChunkStats accumulates the chunks a deleter committed.
type ChunkStats struct {
	Chunks int
	Items  int
	Counts Counts
}

// ChunkedDeleter drains a CandidateStream in fixed-size groups and applies
// a CompositeDelete to every group inside a single transaction.
type ChunkedDeleter struct {
	db   *gorm.DB
	size int
	ops  CompositeDelete
}

// NewChunkedDeleter builds a deleter. A non-positive size selects
// DefaultChunkSize.
func NewChunkedDeleter(db *gorm.DB, size int, ops CompositeDelete) *ChunkedDeleter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &ChunkedDeleter{db: db, size: size, ops: ops}
}

// Size returns the chunk size.
func (d *ChunkedDeleter) Size() int {
	return d.size
}

// Operations returns the composite applied per identifier.
func (d *ChunkedDeleter) Operations() CompositeDelete {
	return d.ops
}

// Drain consumes stream until it is exhausted or a chunk fails. Chunks are
// processed one after another: the next chunk is read only after the
// previous transaction finished. A failed chunk is rolled back in full and
// nothing after it is read. Cancellation of ctx is observed between chunks
// only; a chunk that has started always commits or rolls back as a unit.
//
// onCommit, if non-nil, is called after every committed chunk.
func (d *ChunkedDeleter) Drain(ctx context.Context, step string, stream *CandidateStream, onCommit func(ChunkResult)) (ChunkStats, error) {
	stats := ChunkStats{Counts: Counts{}}
	txCtx := context.WithoutCancel(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		ids, err := stream.NextChunk(d.size)
		if err != nil {
			return stats, &SelectionError{Step: step, Err: err}
		}
		if len(ids) == 0 {
			return stats, nil
		}

		chunkCounts := Counts{}
		err = d.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
			for _, id := range ids {
				counts, err := d.ops.Apply(tx, step, id)
				if err != nil {
					return err
				}
				chunkCounts.Add(counts)
			}
			return nil
		})
		if err != nil {
			var deleteErr *DeleteError
			if errors.As(err, &deleteErr) {
				return stats, err
			}
			return stats, fmt.Errorf("chunk %d of %s: %w", stats.Chunks+1, step, err)
		}

		stats.Chunks++
		stats.Items += len(ids)
		stats.Counts.Add(chunkCounts)

		logger.WithFields(logrus.Fields{
			"step":  step,
			"chunk": stats.Chunks,
			"items": len(ids),
			"rows":  chunkCounts.Total(),
		}).Debug("chunk committed")

		if onCommit != nil {
			onCommit(ChunkResult{Step: step, Index: stats.Chunks, Size: len(ids), Counts: chunkCounts})
		}
	}
}
