package oauth

import "sync"

// EventTypeCallback is the only event type the coordinator reacts to
const EventTypeCallback = "oauth_callback"

// CallbackEvent is what the provider's redirect page posts back. State is
// the id of the attempt it answers.
type CallbackEvent struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	Provider string `json:"provider"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
}

// CallbackBus fans completion events out to the attempts listening for them
type CallbackBus struct {
	mu   sync.Mutex
	next int
	subs map[int]func(CallbackEvent)
}

func NewCallbackBus() *CallbackBus {
	return &CallbackBus{subs: make(map[int]func(CallbackEvent))}
}

// Subscribe registers fn and returns a func that removes it. Calling the
// returned func more than once is harmless.
func (b *CallbackBus) Subscribe(fn func(CallbackEvent)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers evt to every current subscriber. Handlers run on the
// caller's goroutine, outside the bus lock.
func (b *CallbackBus) Publish(evt CallbackEvent) {
	b.mu.Lock()
	handlers := make([]func(CallbackEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(evt)
	}
}

// Listeners is the number of live subscriptions
func (b *CallbackBus) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
