package session

import "sync"

// Feed fans state changes out to subscribers. A subscriber that falls
// behind keeps only the newest state.
type Feed struct {
	mu     sync.Mutex
	subs   map[chan State]struct{}
	buffer int
	closed bool
}

func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 1
	}
	return &Feed{subs: make(map[chan State]struct{}), buffer: buffer}
}

// Subscribe returns a channel of states and a func that unsubscribes. The
// channel is closed when the feed closes.
func (f *Feed) Subscribe() (<-chan State, func()) {
	ch := make(chan State, f.buffer)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
	}
}

// Subscribers counts the open subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Publish never blocks.
func (f *Feed) Publish(s State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Full: drop the oldest so the newest always lands.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for ch := range f.subs {
		delete(f.subs, ch)
		close(ch)
	}
}
