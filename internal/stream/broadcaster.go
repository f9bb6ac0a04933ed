// Package stream carries engine output to remote listeners.
package stream

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// DefaultDepth is the listener buffer used by Subscribe, about 3 seconds of
// 20ms frames.
const DefaultDepth = 150

// Broadcaster fans engine frames out to any number of listeners. A listener
// that falls behind loses frames; the engine is never blocked.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	closed    bool
}

// Listener receives frames from a Broadcaster.
type Listener struct {
	Name string
	C    chan []int16

	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// Done is closed when the listener is unsubscribed or the broadcast ends.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Dropped returns how many frames were skipped because C was full.
func (l *Listener) Dropped() uint64 {
	return l.dropped.Load()
}

func (l *Listener) stop() {
	l.once.Do(func() { close(l.done) })
}

// Tap describes one listener for status reporting.
type Tap struct {
	Name    string `json:"name"`
	Dropped uint64 `json:"dropped"`
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a listener with the default buffer depth.
func (b *Broadcaster) Subscribe(name string) *Listener {
	return b.SubscribeDepth(name, DefaultDepth)
}

// SubscribeDepth registers a listener buffering up to depth frames. Once the
// broadcast has ended the returned listener is already done.
func (b *Broadcaster) SubscribeDepth(name string, depth int) *Listener {
	if depth < 1 {
		depth = 1
	}
	l := &Listener{
		Name: name,
		C:    make(chan []int16, depth),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		l.stop()
		return l
	}
	b.listeners[l] = struct{}{}
	return l
}

// Unsubscribe removes a listener and closes its Done channel. Safe to call
// more than once.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
	l.stop()
}

// ListenerCount returns the number of subscribed listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Taps lists the subscribed listeners sorted by name.
func (b *Broadcaster) Taps() []Tap {
	b.mu.RLock()
	taps := make([]Tap, 0, len(b.listeners))
	for l := range b.listeners {
		taps = append(taps, Tap{Name: l.Name, Dropped: l.Dropped()})
	}
	b.mu.RUnlock()
	sort.Slice(taps, func(i, j int) bool { return taps[i].Name < taps[j].Name })
	return taps
}

// Run forwards frames from source until ctx is cancelled or source closes,
// then ends every listener. Frames are shared between listeners and must not
// be modified.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	defer b.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					l.dropped.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for l := range b.listeners {
		l.stop()
		delete(b.listeners, l)
	}
}
