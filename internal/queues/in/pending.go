package inqueues

import (
	"errors"

	"ob-sync/internal/dtos"
)

// ErrOverflow is returned by Push once a bounded queue is full.
var ErrOverflow = errors.New("pending queue overflow")

// Queue holds the stream messages of one instrument while its snapshot is in flight.
// It is owned by a single processor and not safe for concurrent use.
type Queue struct {
	limit    int
	messages []*dtos.Message
}

// NewQueue creates a queue holding at most limit messages; limit <= 0 means unbounded.
func NewQueue(limit int) *Queue {
	return &Queue{
		limit: limit,
	}
}

func (q *Queue) Push(msg *dtos.Message) error {
	if q.limit > 0 && len(q.messages) >= q.limit {
		return ErrOverflow
	}

	q.messages = append(q.messages, msg)

	return nil
}

// Drain hands over the queued messages in arrival order and empties the queue.
func (q *Queue) Drain() []*dtos.Message {
	messages := q.messages
	q.messages = nil

	return messages
}

func (q *Queue) Len() int {
	return len(q.messages)
}
