package queue

import "errors"

var (
	// ErrTaskNotFound is returned when retrying a task the queue no longer holds,
	// usually because another worker completed it after its lease expired
	ErrTaskNotFound = errors.New("task not found in queue")

	// ErrInvalidTask is returned when enqueueing a task without an ID or order
	ErrInvalidTask = errors.New("invalid task")
)
