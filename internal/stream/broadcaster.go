// Package stream rebroadcasts the rendered output to local and remote
// listeners.
package stream

import (
	"context"
	"sync"

	"github.com/decred/slog"

	"github.com/satindergrewal/bioradio/internal/metrics"
)

// listenerBuffer is about three seconds of 20ms frames.
const listenerBuffer = 150

// Broadcaster fans out PCM frames from the output graph to N listeners.
// Frames are shared between listeners and must not be modified.
type Broadcaster struct {
	stats *metrics.Stats
	log   slog.Logger

	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	C    chan []int16
	Kind string

	done    chan struct{}
	once    sync.Once
	dropped int
}

// Done is closed once the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// NewBroadcaster creates a broadcaster with no listeners.
func NewBroadcaster(stats *metrics.Stats, log slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Disabled
	}
	return &Broadcaster{
		stats:     stats,
		log:       log,
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener of the given kind.
func (b *Broadcaster) Subscribe(kind string) *Listener {
	l := &Listener{
		C:    make(chan []int16, listenerBuffer),
		Kind: kind,
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	n := len(b.listeners)
	b.mu.Unlock()

	b.stats.SetListeners(n)
	b.log.Debugf("%s listener subscribed (total: %d)", kind, n)
	return l
}

// Unsubscribe removes a listener and signals it to stop. Repeated calls
// are no-ops.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	l.once.Do(func() {
		b.mu.Lock()
		delete(b.listeners, l)
		n := len(b.listeners)
		b.mu.Unlock()
		close(l.done)

		b.stats.SetListeners(n)
		if l.dropped > 0 {
			b.log.Debugf("%s listener left after %d dropped frames", l.Kind, l.dropped)
		}
	})
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Run reads frames from source and fans out to all listeners until ctx is
// done or source closes. Slow listeners get frames dropped rather than
// blocking the broadcast.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.mu.Lock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					l.dropped++
				}
			}
			b.mu.Unlock()
		}
	}
}
