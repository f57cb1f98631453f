// Package queue implements the ordered outbound buffer that decouples
// protocol logic from the point of transmission.
package queue

import "sync"

// EntryKind tags a queued message.
type EntryKind int

const (
	EntryCommand EntryKind = iota
	EntryPacket
)

func (k EntryKind) String() string {
	if k == EntryCommand {
		return "command"
	}
	return "packet"
}

// Entry is one queued outbound message. Entries are exclusively owned by
// the queue until popped; Pop moves ownership to the caller.
type Entry struct {
	Kind EntryKind
	Msg  []byte
}

// Queue is a first-in-first-out buffer of outbound entries. Depth is
// unbounded here; backpressure is the producer's responsibility. The mutex
// keeps the contract intact when I/O is offloaded to worker goroutines.
type Queue struct {
	mu sync.Mutex
	q  []Entry
}

func New() *Queue { return &Queue{} }

// Len returns the number of unconsumed entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.q)
}

// Empty reports whether no entries remain.
func (q *Queue) Empty() bool { return q.Len() == 0 }

// PushCommand appends a command-tagged entry to the back of the queue.
func (q *Queue) PushCommand(msg []byte) { q.push(Entry{Kind: EntryCommand, Msg: msg}) }

// PushPacket appends a packet-tagged entry to the back of the queue.
func (q *Queue) PushPacket(msg []byte) { q.push(Entry{Kind: EntryPacket, Msg: msg}) }

func (q *Queue) push(e Entry) {
	q.mu.Lock()
	q.q = append(q.q, e)
	q.mu.Unlock()
}

// Pop removes and returns the oldest unconsumed entry. The second return
// is false when the queue is empty; emptiness is never an error.
func (q *Queue) Pop() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.q) == 0 {
		return Entry{}, false
	}
	e := q.q[0]
	copy(q.q[0:], q.q[1:])
	q.q[len(q.q)-1] = Entry{}
	q.q = q.q[:len(q.q)-1]
	return e, true
}
