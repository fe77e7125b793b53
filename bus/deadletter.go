package bus

import (
	"io"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nfrguard/nfrguard/events"
)

const defaultDeadLetterCap = 10_000

// DeadLetter is one failed event set aside for inspection. Dead-lettered
// events are never redelivered automatically.
type DeadLetter struct {
	Event  *events.Envelope `json:"event"`
	Reason string           `json:"reason"`
	At     time.Time        `json:"at"`
}

// deadLetterQueue is a bounded per-topic ring. When full, the oldest entry
// is evicted and counted.
type deadLetterQueue struct {
	mu      sync.Mutex
	cap     int
	entries []DeadLetter
	evicted uint64
}

func newDeadLetterQueue(capacity int) *deadLetterQueue {
	if capacity <= 0 {
		capacity = defaultDeadLetterCap
	}
	return &deadLetterQueue{cap: capacity}
}

func (q *deadLetterQueue) add(d DeadLetter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= q.cap {
		drop := len(q.entries) - q.cap + 1
		q.entries = append(q.entries[:0], q.entries[drop:]...)
		q.evicted += uint64(drop)
	}
	q.entries = append(q.entries, d)
}

func (q *deadLetterQueue) snapshot() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *deadLetterQueue) evictedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}

// WriteDeadLetters dumps every topic's dead letters to w, one JSON object
// per line. Used at shutdown for post-mortem; the core otherwise persists
// nothing.
func (b *Bus) WriteDeadLetters(w io.Writer) error {
	var firstErr error
	b.dead.ForEach(func(_ string, q *deadLetterQueue) bool {
		for _, entry := range q.snapshot() {
			line, err := json.Marshal(entry)
			if err != nil {
				firstErr = err
				return false
			}
			if _, err := w.Write(append(line, '\n')); err != nil {
				firstErr = err
				return false
			}
		}
		return true
	})
	return firstErr
}
