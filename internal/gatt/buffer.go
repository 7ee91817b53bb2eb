package gatt

import (
	"sync"

	"github.com/cornelk/hashmap"
)

// notifyQueue is one characteristic's FIFO of unread notification payloads.
type notifyQueue struct {
	mu    sync.Mutex
	items [][]byte
}

// NotificationBuffer holds unsolicited notification payloads that arrived
// while no reader was registered, one unbounded FIFO per characteristic.
// Queues are created lazily on first push and drained, not destroyed, as
// they are read. Payloads for a characteristic are never reordered or
// dropped while a reader is absent.
//
// The dispatcher pushes and facade callers pop concurrently; the queue map
// is lock-free and each queue carries its own mutex, which also serves as
// the synchronization point for the deliver-or-buffer and pop-or-register
// decisions below.
type NotificationBuffer struct {
	queues *hashmap.Map[string, *notifyQueue]
}

// NewNotificationBuffer creates an empty buffer.
func NewNotificationBuffer() *NotificationBuffer {
	return &NotificationBuffer{
		queues: hashmap.New[string, *notifyQueue](),
	}
}

// queue returns the queue for char, creating it lazily.
func (b *NotificationBuffer) queue(char CharRef) *notifyQueue {
	q, _ := b.queues.GetOrInsert(string(char), &notifyQueue{})
	return q
}

// Push appends payload to the tail of char's queue.
func (b *NotificationBuffer) Push(char CharRef, payload []byte) {
	q := b.queue(char)
	q.mu.Lock()
	q.items = append(q.items, payload)
	q.mu.Unlock()
}

// Pop removes and returns the head of char's queue, if non-empty.
func (b *NotificationBuffer) Pop(char CharRef) ([]byte, bool) {
	q, ok := b.queues.Get(string(char))
	if !ok {
		return nil, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// PushOrDeliver hands payload to deliver under char's queue lock; if
// deliver reports it found a consumer, nothing is buffered, otherwise the
// payload is appended. Holding the lock across the decision closes the race
// between a reader registering and the dispatcher buffering: a waiting
// reader can only exist while the queue is empty, so direct delivery never
// reorders against buffered payloads.
func (b *NotificationBuffer) PushOrDeliver(char CharRef, payload []byte, deliver func([]byte) bool) {
	q := b.queue(char)
	q.mu.Lock()
	defer q.mu.Unlock()
	if deliver(payload) {
		return
	}
	q.items = append(q.items, payload)
}

// PopOrRegister removes and returns the head of char's queue; when the
// queue is empty it runs register under the queue lock instead. ok reports
// whether a buffered payload was returned; err is register's error, if any.
func (b *NotificationBuffer) PopOrRegister(char CharRef, register func() error) (payload []byte, ok bool, err error) {
	q := b.queue(char)
	q.mu.Lock()
	defer q.mu.Unlock()
	if payload, ok = q.popLocked(); ok {
		return payload, true, nil
	}
	return nil, false, register()
}

// Clear drops all buffered payloads for char.
func (b *NotificationBuffer) Clear(char CharRef) {
	q, ok := b.queues.Get(string(char))
	if !ok {
		return
	}
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

// ClearAll drops all buffered payloads for every characteristic.
func (b *NotificationBuffer) ClearAll() {
	b.queues.Range(func(_ string, q *notifyQueue) bool {
		q.mu.Lock()
		q.items = nil
		q.mu.Unlock()
		return true
	})
}

// Len returns the number of buffered payloads for char.
func (b *NotificationBuffer) Len(char CharRef) int {
	q, ok := b.queues.Get(string(char))
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *notifyQueue) popLocked() ([]byte, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}
