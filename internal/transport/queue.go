package transport

import "sync"

// Queue is a bounded FIFO of commands safe for concurrent producers. When
// full, the oldest command is dropped.
type Queue struct {
	mu    sync.Mutex
	items []Command
	depth int
}

// NewQueue returns a queue holding at most depth commands.
func NewQueue(depth int) *Queue {
	if depth < 1 {
		depth = 1
	}
	return &Queue{depth: depth}
}

// Push appends a copy of cmd. It reports whether an older command was
// dropped to make room.
func (q *Queue) Push(cmd Command) (dropped bool) {
	cp := append(Command(nil), cmd...)

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == q.depth {
		q.items[0] = nil
		q.items = q.items[1:]
		dropped = true
	}
	q.items = append(q.items, cp)
	return dropped
}

// Pop removes and returns the oldest command
func (q *Queue) Pop() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	cmd := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return cmd, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops every queued command.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
