package notify

import "sync"

// Queue is a mutex-guarded FIFO of serialized outbound messages. One queue
// belongs to exactly one connection; producers enqueue from any goroutine,
// the connection's delivery loop drains it.
type Queue struct {
	mu       sync.Mutex
	messages [][]byte
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a message to the tail.
func (q *Queue) Push(msg []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
}

// Len returns the current number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// PopFront removes and returns the head message. ok is false when empty.
func (q *Queue) PopFront() (msg []byte, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return nil, false
	}
	msg = q.messages[0]
	q.messages = q.messages[1:]
	return msg, true
}
