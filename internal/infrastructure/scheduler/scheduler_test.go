package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/infrastructure/queue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// completingHandler completes every task it sees
type completingHandler struct {
	queue billing.TaskQueue
	err   error
	panic bool

	mu        sync.Mutex
	processed []billing.Task
	deadlines []bool
}

func (h *completingHandler) Process(ctx context.Context, task *billing.Task, _ time.Time) error {
	h.mu.Lock()
	h.processed = append(h.processed, *task)
	_, hasDeadline := ctx.Deadline()
	h.deadlines = append(h.deadlines, hasDeadline)
	h.mu.Unlock()

	if h.panic {
		panic("boom")
	}
	if h.err != nil {
		return h.err
	}
	return h.queue.Complete(ctx, task)
}

func (h *completingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.processed)
}

func newTestWorker(t *testing.T, q billing.TaskQueue, h TaskHandler) *TaskWorker {
	t.Helper()
	w, err := NewTaskWorker(TaskWorkerConfig{Workers: 2, PollInterval: 10 * time.Millisecond, TaskTimeout: time.Second}, q, h, zap.NewNop())
	require.NoError(t, err)
	w.now = func() time.Time { return testNow }
	return w
}

func TestTaskWorker_ProcessNext(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue", func(t *testing.T) {
		q := queue.NewMemoryTaskQueue(time.Minute)
		w := newTestWorker(t, q, &completingHandler{queue: q})

		processed, err := w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("processes a due task with a deadline", func(t *testing.T) {
		q := queue.NewMemoryTaskQueue(time.Minute)
		h := &completingHandler{queue: q}
		w := newTestWorker(t, q, h)

		_, err := q.Enqueue(ctx, billing.NewTask(billing.TaskTypeCloseOrder, uuid.New(), "close:1", testNow))
		require.NoError(t, err)

		processed, err := w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.True(t, processed)
		require.Equal(t, 1, h.count())
		assert.Equal(t, 1, h.processed[0].Attempts)
		assert.True(t, h.deadlines[0])
		assert.Zero(t, q.Len())
	})

	t.Run("future tasks are left alone", func(t *testing.T) {
		q := queue.NewMemoryTaskQueue(time.Minute)
		h := &completingHandler{queue: q}
		w := newTestWorker(t, q, h)

		_, err := q.Enqueue(ctx, billing.NewTask(billing.TaskTypeRenewOrder, uuid.New(), "", testNow.Add(time.Hour)))
		require.NoError(t, err)

		processed, err := w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.False(t, processed)
		assert.Zero(t, h.count())
	})

	t.Run("handler errors are returned", func(t *testing.T) {
		q := queue.NewMemoryTaskQueue(time.Minute)
		boom := errors.New("queue unavailable")
		w := newTestWorker(t, q, &completingHandler{queue: q, err: boom})

		_, err := q.Enqueue(ctx, billing.NewTask(billing.TaskTypeCloseOrder, uuid.New(), "", testNow))
		require.NoError(t, err)

		processed, err := w.ProcessNext(ctx)
		assert.True(t, processed)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("a panicking handler leaves the task leased", func(t *testing.T) {
		q := queue.NewMemoryTaskQueue(time.Minute)
		w := newTestWorker(t, q, &completingHandler{queue: q, panic: true})

		_, err := q.Enqueue(ctx, billing.NewTask(billing.TaskTypeCloseOrder, uuid.New(), "", testNow))
		require.NoError(t, err)

		processed, err := w.ProcessNext(ctx)
		assert.True(t, processed)
		assert.ErrorContains(t, err, "panicked")
		assert.Equal(t, 1, q.Len())

		_, err = q.Claim(ctx, testNow.Add(2*time.Minute))
		assert.NoError(t, err, "task is redelivered after its lease expires")
	})

	t.Run("canceled caller does not cancel the task", func(t *testing.T) {
		q := queue.NewMemoryTaskQueue(time.Minute)
		h := &completingHandler{queue: q}
		w := newTestWorker(t, q, h)

		_, err := q.Enqueue(ctx, billing.NewTask(billing.TaskTypeCloseOrder, uuid.New(), "", testNow))
		require.NoError(t, err)

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		processed, err := w.ProcessNext(canceled)
		require.NoError(t, err)
		assert.True(t, processed)
		assert.Zero(t, q.Len())
	})
}

func TestTaskWorker_StartStop(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryTaskQueue(time.Minute)
	h := &completingHandler{queue: q}
	w := newTestWorker(t, q, h)

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, billing.NewTask(billing.TaskTypeCloseOrder, uuid.New(), "", testNow))
		require.NoError(t, err)
	}

	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx), "starting twice is a no-op")

	require.Eventually(t, func() bool { return h.count() == 5 }, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, w.Stop(stopCtx))
	require.NoError(t, w.Stop(stopCtx), "stopping twice is a no-op")
	assert.Zero(t, q.Len())
}

func TestNewTaskWorker(t *testing.T) {
	_, err := NewTaskWorker(TaskWorkerConfig{}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	q := queue.NewMemoryTaskQueue(time.Minute)
	w, err := NewTaskWorker(TaskWorkerConfig{}, q, &completingHandler{queue: q}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTaskWorkerConfig(), w.config)
}

func TestBillingCron(t *testing.T) {
	t.Run("rejects an invalid schedule", func(t *testing.T) {
		_, err := NewBillingCron(BillingCronConfig{Schedule: "every now and then"}, func(context.Context, time.Time) error { return nil }, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("requires a job", func(t *testing.T) {
		_, err := NewBillingCron(DefaultBillingCronConfig(), nil, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("run now passes the current time in utc", func(t *testing.T) {
		var got time.Time
		c, err := NewBillingCron(DefaultBillingCronConfig(), func(ctx context.Context, now time.Time) error {
			got = now
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return nil
		}, nil)
		require.NoError(t, err)
		c.now = func() time.Time { return testNow.In(time.FixedZone("JST", 9*3600)) }

		require.NoError(t, c.RunNow(context.Background()))
		assert.Equal(t, testNow, got)
		assert.Equal(t, time.UTC, got.Location())
	})

	t.Run("overlapping runs are rejected", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{})
		c, err := NewBillingCron(DefaultBillingCronConfig(), func(context.Context, time.Time) error {
			close(started)
			<-release
			return nil
		}, zap.NewNop())
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() { done <- c.RunNow(context.Background()) }()
		<-started

		assert.ErrorIs(t, c.RunNow(context.Background()), ErrAlreadyRunning)
		close(release)
		require.NoError(t, <-done)
	})

	t.Run("job errors are returned", func(t *testing.T) {
		boom := errors.New("boom")
		c, err := NewBillingCron(DefaultBillingCronConfig(), func(context.Context, time.Time) error { return boom }, nil)
		require.NoError(t, err)
		assert.ErrorIs(t, c.RunNow(context.Background()), boom)
	})

	t.Run("fires on schedule", func(t *testing.T) {
		var mu sync.Mutex
		runs := 0
		c, err := NewBillingCron(BillingCronConfig{Schedule: "@every 1s"}, func(context.Context, time.Time) error {
			mu.Lock()
			runs++
			mu.Unlock()
			return nil
		}, nil)
		require.NoError(t, err)

		require.NoError(t, c.Start(context.Background()))
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return runs > 0
		}, 3*time.Second, 50*time.Millisecond)

		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, c.Stop(stopCtx))
	})
}
