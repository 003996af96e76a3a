package smpp

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// QueuedMessage is one submitted short message held for the lifecycle
// engine and the admin API.
type QueuedMessage struct {
	MessageID  string
	SourceAddr string
	DestAddr   string
	Message    []byte
	DataCoding byte
	SessionID  string
	Submitted  time.Time
}

// MessageQueue assigns message IDs and tracks submitted messages. A
// message enters both the recent set and the pending set on submit; the
// lifecycle engine removes it from pending once its receipt fires, and the
// recent set is pruned on age. All methods are safe for concurrent use.
type MessageQueue struct {
	counter atomic.Uint32

	mu      sync.RWMutex
	recent  map[string]QueuedMessage
	pending map[string]QueuedMessage
}

// NewMessageQueue creates an empty queue. The first assigned message ID
// is "00000001".
func NewMessageQueue() *MessageQueue {
	return &MessageQueue{
		recent:  make(map[string]QueuedMessage),
		pending: make(map[string]QueuedMessage),
	}
}

// NextMessageID returns the next message ID: a monotonically increasing
// counter rendered as eight uppercase hex digits, wrapping with uint32.
func (q *MessageQueue) NextMessageID() string {
	return fmt.Sprintf("%08X", q.counter.Add(1))
}

// Add records a submitted message, indexing it both as recent and as
// awaiting a delivery receipt.
func (q *MessageQueue) Add(m QueuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recent[m.MessageID] = m
	q.pending[m.MessageID] = m
}

// RemovePending drops the pending entry for the message ID. Removing an
// already-removed ID is a no-op.
func (q *MessageQueue) RemovePending(messageID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, messageID)
}

// RecentSnapshot returns copies of the recent messages in unspecified
// order.
func (q *MessageQueue) RecentSnapshot() []QueuedMessage {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]QueuedMessage, 0, len(q.recent))
	for _, m := range q.recent {
		out = append(out, m)
	}
	return out
}

// PendingSnapshot returns copies of the messages still awaiting a receipt.
func (q *MessageQueue) PendingSnapshot() []QueuedMessage {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]QueuedMessage, 0, len(q.pending))
	for _, m := range q.pending {
		out = append(out, m)
	}
	return out
}

// RecentCount returns the recent set size.
func (q *MessageQueue) RecentCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.recent)
}

// PendingCount returns the pending set size.
func (q *MessageQueue) PendingCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending)
}

// PruneRecent drops recent entries submitted before the cutoff. Entries
// still awaiting a receipt are exempt so the engine never loses one, and
// go on a later pass once the receipt fires. It returns the number of
// entries removed.
func (q *MessageQueue) PruneRecent(cutoff time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, m := range q.recent {
		if m.Submitted.Before(cutoff) {
			if _, pending := q.pending[id]; pending {
				continue
			}
			delete(q.recent, id)
			removed++
		}
	}
	return removed
}
