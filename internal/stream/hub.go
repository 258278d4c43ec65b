package stream

import "sync"

// viewerBuffer is the per-viewer channel capacity. A viewer that falls
// further behind than this simply misses frames.
const viewerBuffer = 4

// Hub fans demuxed frames out to zero or more viewers. One producer, N
// independent consumers: a slow or disconnected consumer never blocks
// the producer or other consumers, its frames are dropped instead.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]chan []byte
	nextID  int
	latest  []byte
	dropped uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan []byte)}
}

// Subscribe registers a viewer and returns its id and frame channel.
// A late-joining viewer only receives frames published after this call.
func (h *Hub) Subscribe() (int, <-chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan []byte, viewerBuffer)
	h.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a viewer and closes its channel. Returns the
// number of remaining viewers. Unknown ids are a no-op.
func (h *Hub) Unsubscribe(id int) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
	return len(h.subs)
}

// Publish delivers a frame to every subscribed viewer, dropping it for
// viewers whose buffer is full, and retains it as the latest frame for
// snapshots.
func (h *Hub) Publish(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = frame
	for _, ch := range h.subs {
		select {
		case ch <- frame:
		default:
			h.dropped++
		}
	}
}

// Latest returns the most recently published frame, or nil before the
// first frame arrives.
func (h *Hub) Latest() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Viewers returns the current number of subscribers.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns the total number of per-viewer frame drops.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// closeAll closes every subscriber channel, ending their streams.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
