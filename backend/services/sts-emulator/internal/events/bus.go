package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome is how a tally request was answered.
type Outcome string

const (
	OutcomeNormal    Outcome = "normal"
	OutcomeDelayed   Outcome = "delayed"
	OutcomeJunk      Outcome = "junk"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeMalformed Outcome = "malformed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeAborted   Outcome = "aborted"
	OutcomeFailed    Outcome = "failed"
)

// Event describes one handled tally connection.
type Event struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Client   string    `json:"client"`
	Request  string    `json:"request,omitempty"`
	Outcome  Outcome   `json:"outcome"`
	Channel  int       `json:"channel,omitempty"`
	State    string    `json:"state,omitempty"`
	Response int       `json:"responseBytes"`
	Error    string    `json:"error,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(client, request string, outcome Outcome) Event {
	return Event{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Client:  client,
		Request: request,
		Outcome: outcome,
	}
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber whose buffer is
// full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer. The returned func unsubscribes
// and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers ev to every subscriber with room for it and returns how many got it.
func (b *Bus) Publish(ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Close closes every subscriber channel. Later subscribers get a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
