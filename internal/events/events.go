// Package events fans out UI-facing notifications to subscribers.
package events

import (
	"sync"
	"time"
)

// MaxNoticeLen bounds notice text shown to users, in runes.
const MaxNoticeLen = 160

// Event kinds.
const (
	KindNotice     = "notice"
	KindState      = "state"
	KindPrompts    = "prompts"
	KindSettings   = "settings"
	KindFiltered   = "filtered"
	KindAgent      = "agent"
	KindBiometrics = "biometrics"
	KindStatus     = "status"
)

// Event is one notification. Data is JSON-encodable.
type Event struct {
	Kind string    `json:"kind"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Notice is a short user-facing message.
type Notice struct {
	Message string `json:"message"`
}

// StateChange reports a playback state transition.
type StateChange struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Trigger string `json:"trigger"`
}

// Filtered reports a prompt the generator refused.
type Filtered struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Truncate shortens s to at most n runes, ending it with an ellipsis when
// anything was cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 {
		return ""
	}
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

// Bus delivers events to subscribers. Slow subscribers miss events rather
// than block publishers.
type Bus struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	now    func() time.Time
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[chan Event]struct{}),
		now:  time.Now,
	}
}

// Subscribe returns a channel of events buffered to size, and a cancel
// function that closes it.
func (b *Bus) Subscribe(size int) (<-chan Event, func()) {
	ch := make(chan Event, size)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish sends an event of kind to every subscriber.
func (b *Bus) Publish(kind string, data any) {
	if b == nil {
		return
	}
	ev := Event{Kind: kind, Time: b.now(), Data: data}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Notice publishes a truncated notice.
func (b *Bus) Notice(msg string) {
	b.Publish(KindNotice, Notice{Message: Truncate(msg, MaxNoticeLen)})
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription. Later subscriptions are closed at once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
