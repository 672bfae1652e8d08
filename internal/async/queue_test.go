package async_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openorcamento/budgetlens/internal/async"
)

type recordingProcessor struct {
	mu   sync.Mutex
	seen []uuid.UUID
}

func (p *recordingProcessor) ProcessJob(_ context.Context, jobID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, jobID)
	return nil
}

func TestQueueProcessesAndDrains(t *testing.T) {
	proc := &recordingProcessor{}
	q := async.NewProcessorQueue(proc, nil, async.WithWorkers(2), async.WithQueueSize(8))

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, q.Enqueue(context.Background(), async.Job{JobID: id, SubmittedAt: time.Now()}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.ElementsMatch(t, ids, proc.seen)
}

func TestQueueEnqueueAfterShutdownIsIgnored(t *testing.T) {
	proc := &recordingProcessor{}
	q := async.NewProcessorQueue(proc, nil, async.WithWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)

	require.NoError(t, q.Enqueue(context.Background(), async.Job{JobID: uuid.New()}))
	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Empty(t, proc.seen)
}
