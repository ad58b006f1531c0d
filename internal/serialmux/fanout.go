package serialmux

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
)

// subscriberBuffer absorbs a short stall in a subscriber at the
// controller's telemetry rate.
const subscriberBuffer = 64

func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// fanout is the subscriber set shared by the real and disabled muxes.
// Once closed, new subscribers get an already closed channel.
type fanout struct {
	mu      sync.Mutex
	subs    map[string]chan string
	closed  bool
	dropped uint64
}

func newFanout() *fanout {
	return &fanout{subs: make(map[string]chan string)}
}

func (f *fanout) add(buffer int) (string, chan string) {
	id := randomID()
	ch := make(chan string, buffer)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return id, ch
	}
	f.subs[id] = ch
	return id, ch
}

func (f *fanout) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[id]; ok {
		close(ch)
		delete(f.subs, id)
	}
}

// publish never blocks: a full subscriber misses the line.
func (f *fanout) publish(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- line:
		default:
			f.dropped++
		}
	}
}

// shut closes every subscriber. It reports false if already closed.
func (f *fanout) shut() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.closed = true
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
	return true
}

func (f *fanout) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fanout) counts() (subscribers int, dropped uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs), f.dropped
}
