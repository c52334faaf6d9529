package stream

import "sync"

// Broker fans board updates out to the SSE clients watching that board.
// Slow clients miss intermediate updates; each update is a hint to refetch.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[chan []byte]struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan []byte]struct{})}
}

func (b *Broker) Subscribe(boardID string) chan []byte {
	ch := make(chan []byte, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	set, ok := b.subs[boardID]
	if !ok {
		set = make(map[chan []byte]struct{})
		b.subs[boardID] = set
	}
	set[ch] = struct{}{}
	return ch
}

func (b *Broker) Unsubscribe(boardID string, ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[boardID]
	delete(set, ch)
	if len(set) == 0 {
		delete(b.subs, boardID)
	}
}

// Publish delivers data to every subscriber of the board without blocking.
func (b *Broker) Publish(boardID string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[boardID] {
		select {
		case ch <- data:
		default:
		}
	}
}

// Subscribers returns the number of clients watching the board.
func (b *Broker) Subscribers(boardID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[boardID])
}

// Close ends every open stream. Later subscriptions are closed immediately.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for boardID, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, boardID)
	}
}
