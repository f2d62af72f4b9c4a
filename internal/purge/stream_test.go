package purge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchpurge/internal/batchtest"
	"batchpurge/internal/purge"
)

func TestCandidateStreamChunks(t *testing.T) {
	db := batchtest.Open(t)
	fx := batchtest.NewFixture(t, db)
	for i := 0; i < 7; i++ {
		fx.Instance("job")
	}

	stream, err := purge.OpenStream(context.Background(), db,
		"SELECT JOB_INSTANCE_ID FROM BATCH_JOB_INSTANCE ORDER BY JOB_INSTANCE_ID")
	require.NoError(t, err)
	defer stream.Close()

	var chunks [][]int64
	for {
		chunk, err := stream.NextChunk(3)
		require.NoError(t, err)
		if len(chunk) == 0 {
			break
		}
		chunks = append(chunks, chunk)
	}

	assert.Equal(t, [][]int64{{1, 2, 3}, {4, 5, 6}, {7}}, chunks)

	// Exhausted streams stay exhausted.
	_, ok := stream.Next()
	assert.False(t, ok)
	assert.NoError(t, stream.Err())
	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())
}

func TestCandidateStreamRejectsBadChunkSize(t *testing.T) {
	db := batchtest.Open(t)
	stream, err := purge.OpenStream(context.Background(), db, "SELECT JOB_INSTANCE_ID FROM BATCH_JOB_INSTANCE")
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.NextChunk(0)
	assert.Error(t, err)
}

func TestCutoffSelectionIsStrict(t *testing.T) {
	db := batchtest.Open(t)
	fx := batchtest.NewFixture(t, db)
	cutoff := time.Date(2026, 10, 11, 0, 0, 0, 0, time.UTC)

	inst := fx.Instance("job")
	before := fx.Execution(inst, cutoff.Add(-time.Second))
	fx.Execution(inst, cutoff)
	fx.Execution(inst, cutoff.Add(time.Second))

	open := purge.CutoffSelection(db, "SELECT JOB_EXECUTION_ID FROM BATCH_JOB_EXECUTION WHERE CREATE_TIME < ? ORDER BY JOB_EXECUTION_ID")
	stream, err := open(context.Background(), &purge.Run{Cutoff: cutoff})
	require.NoError(t, err)
	defer stream.Close()

	ids, err := stream.NextChunk(10)
	require.NoError(t, err)
	assert.Equal(t, []int64{before}, ids)
}

func TestOpenStreamReportsQueryErrors(t *testing.T) {
	db := batchtest.Open(t)

	_, err := purge.OpenStream(context.Background(), db, "SELECT ID FROM BATCH_NO_SUCH_TABLE")
	assert.Error(t, err)

	open := purge.OrphanSelection(db, "SELECT ID FROM BATCH_NO_SUCH_TABLE")
	_, err = open(context.Background(), &purge.Run{})
	assert.Error(t, err)
}

func TestOpenStreamHonoursCancelledContext(t *testing.T) {
	db := batchtest.Open(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := purge.OpenStream(ctx, db, "SELECT JOB_INSTANCE_ID FROM BATCH_JOB_INSTANCE")
	assert.True(t, errors.Is(err, context.Canceled))
}
