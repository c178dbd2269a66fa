package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventHasUniqueID(t *testing.T) {
	a := NewEvent("10.0.0.1", "GET /tally/1/status HTTP/1.1", OutcomeNormal)
	b := NewEvent("10.0.0.1", "GET /tally/1/status HTTP/1.1", OutcomeNormal)
	_, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Time.IsZero())
}

func TestPublishFansOut(t *testing.T) {
	bus := NewBus()
	first, unsubFirst := bus.Subscribe(4)
	second, unsubSecond := bus.Subscribe(4)
	defer unsubSecond()

	ev := NewEvent("c", "", OutcomeJunk)
	assert.Equal(t, 2, bus.Publish(ev))
	assert.Equal(t, ev, <-first)
	assert.Equal(t, ev, <-second)

	unsubFirst()
	unsubFirst()
	_, open := <-first
	assert.False(t, open)
	assert.Equal(t, 1, bus.Publish(ev))
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	assert.Equal(t, 1, bus.Publish(NewEvent("c", "", OutcomeNormal)))
	assert.Equal(t, 0, bus.Publish(NewEvent("c", "", OutcomeNormal)))
	assert.Len(t, ch, 1)
}

func TestCloseClosesSubscribers(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	bus.Close()
	unsub()

	_, open := <-ch
	assert.False(t, open)

	late, _ := bus.Subscribe(1)
	_, open = <-late
	assert.False(t, open)
	assert.Equal(t, 0, bus.Publish(NewEvent("c", "", OutcomeNormal)))
}
