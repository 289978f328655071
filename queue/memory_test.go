package queue_test

import (
	"context"
	"testing"

	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/queue"
	"github.com/poiesic/vectorit/queue/queuetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue(t *testing.T) {
	queuetest.Run(t, func(t *testing.T) queue.Provider {
		return queue.NewMemoryQueue()
	})
}

func TestMemoryQueue_Len(t *testing.T) {
	q := queue.NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queuetest.NewTask("a", core.PriorityNormal, 1)))
	require.NoError(t, q.Enqueue(ctx, queuetest.NewTask("a", core.PriorityHigh, 1)))
	assert.Equal(t, 1, q.Len())
}

func TestMemoryQueue_RejectsInvalidTask(t *testing.T) {
	q := queue.NewMemoryQueue()

	err := q.Enqueue(context.Background(), &core.ProcessingTask{Status: core.StatusPending})
	assert.ErrorIs(t, err, core.ErrInvalidTask)
}

func TestMemoryQueue_Closed(t *testing.T) {
	q := queue.NewMemoryQueue()
	require.NoError(t, q.Close())

	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, queue.ErrClosed)
}
