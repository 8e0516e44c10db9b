// Package queue provides the delayed at-least-once task queues used by the
// billing workers: an in-process queue for single-instance deployments and
// tests, and a Redis queue shared by every instance.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/google/uuid"
)

// DefaultLease is how long a claimed task stays invisible before it is
// delivered again. It must exceed the worker's task timeout.
const DefaultLease = 10 * time.Minute

type memoryItem struct {
	task       billing.Task
	seq        uint64
	index      int // position in the ready heap, -1 while claimed
	leaseUntil time.Time
}

type readyHeap []*memoryItem

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if !h[i].task.AvailableAt.Equal(h[j].task.AvailableAt) {
		return h[i].task.AvailableAt.Before(h[j].task.AvailableAt)
	}
	return h[i].seq < h[j].seq
}

func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *readyHeap) Push(x any) {
	item := x.(*memoryItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// MemoryTaskQueue is an in-process TaskQueue ordered by availability time.
// Tasks are lost when the process exits.
type MemoryTaskQueue struct {
	mu      sync.Mutex
	ready   readyHeap
	items   map[uuid.UUID]*memoryItem
	claimed map[uuid.UUID]*memoryItem
	unique  map[string]uuid.UUID
	lease   time.Duration
	seq     uint64
}

// NewMemoryTaskQueue creates an empty queue. A non-positive lease uses DefaultLease.
func NewMemoryTaskQueue(lease time.Duration) *MemoryTaskQueue {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &MemoryTaskQueue{
		items:   make(map[uuid.UUID]*memoryItem),
		claimed: make(map[uuid.UUID]*memoryItem),
		unique:  make(map[string]uuid.UUID),
		lease:   lease,
	}
}

// Enqueue adds a task. It fails with billing.ErrDuplicateTask while another
// task with the same unique key is pending or claimed.
func (q *MemoryTaskQueue) Enqueue(_ context.Context, task billing.Task) (billing.TaskHandle, error) {
	if task.ID == uuid.Nil || task.OrderID == uuid.Nil {
		return billing.TaskHandle{}, ErrInvalidTask
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if task.UniqueKey != "" {
		if _, exists := q.unique[task.UniqueKey]; exists {
			return billing.TaskHandle{}, billing.ErrDuplicateTask
		}
		q.unique[task.UniqueKey] = task.ID
	}

	q.seq++
	item := &memoryItem{task: task, seq: q.seq}
	q.items[task.ID] = item
	heap.Push(&q.ready, item)
	return billing.TaskHandle{ID: task.ID}, nil
}

// Claim leases the earliest task available at now and increments its
// delivery count. It returns billing.ErrNoTask when nothing is due.
func (q *MemoryTaskQueue) Claim(_ context.Context, now time.Time) (*billing.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, item := range q.claimed {
		if !now.Before(item.leaseUntil) {
			delete(q.claimed, id)
			heap.Push(&q.ready, item)
		}
	}

	if q.ready.Len() == 0 || q.ready[0].task.AvailableAt.After(now) {
		return nil, billing.ErrNoTask
	}

	item := heap.Pop(&q.ready).(*memoryItem)
	item.task.Attempts++
	item.leaseUntil = now.Add(q.lease)
	q.claimed[item.task.ID] = item

	task := item.task
	return &task, nil
}

// Complete removes a task and frees its unique key. Completing an unknown
// task is a no-op so redelivered tasks can be completed twice.
func (q *MemoryTaskQueue) Complete(_ context.Context, task *billing.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[task.ID]
	if !ok {
		return nil
	}
	if item.index >= 0 {
		heap.Remove(&q.ready, item.index)
	}
	delete(q.claimed, task.ID)
	delete(q.items, task.ID)
	if key := item.task.UniqueKey; key != "" && q.unique[key] == task.ID {
		delete(q.unique, key)
	}
	return nil
}

// Retry stores the task's retry counters and makes it available again at availableAt
func (q *MemoryTaskQueue) Retry(_ context.Context, task *billing.Task, availableAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[task.ID]
	if !ok {
		return ErrTaskNotFound
	}

	item.task.NumRetries = task.NumRetries
	item.task.Attempts = task.Attempts
	item.task.AvailableAt = availableAt
	task.AvailableAt = availableAt

	delete(q.claimed, task.ID)
	if item.index >= 0 {
		heap.Fix(&q.ready, item.index)
	} else {
		heap.Push(&q.ready, item)
	}
	return nil
}

// Len returns the number of tasks held, claimed or not
func (q *MemoryTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

var _ billing.TaskQueue = (*MemoryTaskQueue)(nil)
