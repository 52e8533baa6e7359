package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingExecutor struct {
	calls int32
	failOn string
}

func (e *countingExecutor) ExecutePhase(ctx context.Context, instanceID string) error {
	atomic.AddInt32(&e.calls, 1)
	if instanceID == e.failOn {
		return fmt.Errorf("boom")
	}
	return nil
}

func TestWorkerPoolProcessesAllInstances(t *testing.T) {
	exec := &countingExecutor{}
	pool := NewWorkerPool(PoolConfig{WorkerCount: 3}, exec)
	result := pool.Run(context.Background(), []string{"a", "b", "c", "d"})

	assert.Equal(t, 4, result.Processed)
	assert.Empty(t, result.Failed)
	assert.Equal(t, int32(4), atomic.LoadInt32(&exec.calls))
}

func TestWorkerPoolRecordsFailures(t *testing.T) {
	exec := &countingExecutor{failOn: "b"}
	pool := NewWorkerPool(PoolConfig{WorkerCount: 2}, exec)
	result := pool.Run(context.Background(), []string{"a", "b", "c"})

	assert.Equal(t, 3, result.Processed)
	assert.Len(t, result.Failed, 1)
	assert.Equal(t, "b", result.Failed[0].InstanceID)
}

func TestWorkerPoolRejectsSecondRun(t *testing.T) {
	exec := &countingExecutor{}
	pool := NewWorkerPool(PoolConfig{WorkerCount: 1}, exec)
	pool.Run(context.Background(), []string{"a"})
	result := pool.Run(context.Background(), []string{"b"})
	assert.Error(t, result.Err)
}
