package gatt

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// opResult carries the single completion of a waiter.
type opResult struct {
	value []byte
	err   error
}

// Waiter is a single-use completion handle for one outstanding operation.
// It is resolved or failed exactly once: the PendingTable removes the
// waiter from its map before completing it, so a second completion attempt
// can never find it.
type Waiter struct {
	key   OpKey
	table *PendingTable
	ch    chan opResult
}

// Key returns the operation identity this waiter belongs to.
func (w *Waiter) Key() OpKey {
	return w.key
}

// Await blocks until the waiter is resolved or failed, or until ctx is
// done. On context cancellation the waiter is removed from its table so a
// stale completion cannot block future operations on the same key; if the
// waiter raced with a completion and already holds a result, that result
// wins over the cancellation.
func (w *Waiter) Await(ctx context.Context) ([]byte, error) {
	select {
	case res := <-w.ch:
		return res.value, res.err
	case <-ctx.Done():
		w.table.Cancel(w.key)
		// A concurrent Resolve/Fail may have completed the waiter before
		// Cancel removed it; prefer that result over the cancellation.
		select {
		case res := <-w.ch:
			return res.value, res.err
		default:
			return nil, ctx.Err()
		}
	}
}

// complete fires the waiter. Must be called at most once, which the table
// guarantees by removing the waiter under its lock first.
func (w *Waiter) complete(res opResult) {
	w.ch <- res
}

// PendingTable is a keyed table of single-slot waiters. It knows nothing
// about GATT semantics; keys are opaque operation identities.
//
// All mutations are atomic with respect to each other: a waiter is removed
// from the map under the table lock before it is completed, so resolve,
// fail, cancel and fail-all can race freely without double-firing.
type PendingTable struct {
	mu      sync.Mutex
	waiters map[OpKey]*Waiter
	logger  *logrus.Logger
}

// NewPendingTable creates an empty table.
func NewPendingTable(logger *logrus.Logger) *PendingTable {
	return &PendingTable{
		waiters: make(map[OpKey]*Waiter),
		logger:  logger,
	}
}

// Register creates and registers a waiter for key. It fails with
// ErrOperationInProgress if key already has a live waiter.
func (t *PendingTable) Register(key OpKey) (*Waiter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.waiters[key]; exists {
		return nil, opError(OperationInProgress, "operation already pending for %s", key)
	}

	w := &Waiter{
		key:   key,
		table: t,
		ch:    make(chan opResult, 1),
	}
	t.waiters[key] = w
	return w, nil
}

// Resolve removes and completes the waiter for key with value. It reports
// whether a waiter was present. A resolve with no registered waiter is a
// benign anomaly (late or duplicate transport events are possible) and is
// only logged.
func (t *PendingTable) Resolve(key OpKey, value []byte) bool {
	if t.TryResolve(key, value) {
		return true
	}
	t.logAnomaly(key, "resolve")
	return false
}

// TryResolve is Resolve without the anomaly log, for callers that treat a
// missing waiter as an expected outcome (a notification with no reader is
// buffered, not anomalous).
func (t *PendingTable) TryResolve(key OpKey, value []byte) bool {
	w := t.take(key)
	if w == nil {
		return false
	}
	w.complete(opResult{value: value})
	return true
}

// Fail removes and fails the waiter for key with err. It reports whether a
// waiter was present.
func (t *PendingTable) Fail(key OpKey, err error) bool {
	w := t.take(key)
	if w == nil {
		t.logAnomaly(key, "fail")
		return false
	}
	w.complete(opResult{err: err})
	return true
}

// Cancel removes the waiter for key without completing it. Used for
// caller-initiated cancellation and timeouts. Reports whether a waiter was
// removed.
func (t *PendingTable) Cancel(key OpKey) bool {
	return t.take(key) != nil
}

// FailAll atomically removes every registered waiter and fails each one
// with err. Returns the number of waiters failed. Used once per disconnect.
func (t *PendingTable) FailAll(err error) int {
	t.mu.Lock()
	failed := t.waiters
	t.waiters = make(map[OpKey]*Waiter)
	t.mu.Unlock()

	for _, w := range failed {
		w.complete(opResult{err: err})
	}
	return len(failed)
}

// Len returns the number of live waiters.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}

// Contains reports whether key has a live waiter.
func (t *PendingTable) Contains(key OpKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.waiters[key]
	return ok
}

// take removes and returns the waiter for key, or nil.
func (t *PendingTable) take(key OpKey) *Waiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.waiters[key]
	if !ok {
		return nil
	}
	delete(t.waiters, key)
	return w
}

func (t *PendingTable) logAnomaly(key OpKey, op string) {
	if t.logger != nil {
		t.logger.WithFields(logrus.Fields{
			"key": key.String(),
			"op":  op,
		}).Debug("Event arrived for an operation nobody is waiting on")
	}
}
