package hub

import (
	"sync"

	"github.com/coffersTech/logvault/internal/metrics"
	"github.com/coffersTech/logvault/internal/model"
)

const subscriberBuffer = 256

// Hub fans newly stored records out to live-tail subscribers.
// Publishing never blocks: a subscriber whose buffer is full misses the record.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan model.LogRecord]struct{}
	closed      bool

	dmu     sync.Mutex
	dropped int64
}

func New() *Hub {
	return &Hub{subscribers: make(map[chan model.LogRecord]struct{})}
}

// Subscribe returns a buffered channel of records and a cancel func that
// unsubscribes and closes the channel. cancel is safe to call more than once.
func (h *Hub) Subscribe() (<-chan model.LogRecord, func()) {
	ch := make(chan model.LogRecord, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	metrics.StreamSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.remove(ch) })
	}
}

func (h *Hub) remove(ch chan model.LogRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[ch]; !ok {
		return
	}
	delete(h.subscribers, ch)
	close(ch)
	metrics.StreamSubscribers.Dec()
}

// Publish delivers records to every subscriber.
func (h *Hub) Publish(records ...model.LogRecord) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		for _, r := range records {
			select {
			case ch <- r:
			default:
				h.drop()
			}
		}
	}
}

func (h *Hub) drop() {
	h.dmu.Lock()
	h.dropped++
	h.dmu.Unlock()
	metrics.StreamDropped.Inc()
}

// Dropped returns the number of records dropped for slow subscribers.
func (h *Hub) Dropped() int64 {
	h.dmu.Lock()
	defer h.dmu.Unlock()
	return h.dropped
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		close(ch)
		metrics.StreamSubscribers.Dec()
	}
	h.subscribers = make(map[chan model.LogRecord]struct{})
	h.closed = true
}
