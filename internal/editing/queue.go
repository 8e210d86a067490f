package editing

import "api-studio/internal/commands"

// PendingCommandQueue buffers locally issued commands until the hub
// acknowledges them. Insertion order is the causal order of edits
// from this client and is never reordered.
//
// The queue is not goroutine-safe: it is owned by the session and
// only touched from the session's dispatch loop.
type PendingCommandQueue struct {
	items []*commands.Command
}

func NewPendingCommandQueue() *PendingCommandQueue {
	return &PendingCommandQueue{}
}

// Enqueue appends a command. O(1).
func (q *PendingCommandQueue) Enqueue(c *commands.Command) {
	q.items = append(q.items, c)
}

// Drain removes and returns the first command matching the predicate.
// Returns nil if nothing matches, so duplicate or late acks resolve
// to a harmless no-op. Resolution is by explicit match, not by
// position: the hub may sequence commands from other clients in
// between ours.
func (q *PendingCommandQueue) Drain(match func(*commands.Command) bool) *commands.Command {
	for i, c := range q.items {
		if match(c) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return c
		}
	}
	return nil
}

// Len returns the number of unacknowledged commands
func (q *PendingCommandQueue) Len() int {
	return len(q.items)
}

// Commands returns a snapshot of the queue in insertion order
func (q *PendingCommandQueue) Commands() []*commands.Command {
	out := make([]*commands.Command, len(q.items))
	copy(out, q.items)
	return out
}

// Clear drops all pending commands (session teardown)
func (q *PendingCommandQueue) Clear() {
	q.items = nil
}
