package stats

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCreatedOnFirstContact(t *testing.T) {
	agg := NewAggregator()
	_, ok := agg.Get("10.0.0.1")
	assert.False(t, ok)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	agg.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	agg.RecordRequest("10.0.0.1")
	agg.RecordRequest("10.0.0.1")
	agg.Increment("10.0.0.1", CounterNormal)
	agg.Increment("10.0.0.1", CounterDelayed)
	agg.Increment("10.0.0.1", CounterNormal)

	rec, ok := agg.Get("10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, int64(2), rec.Total)
	assert.Equal(t, int64(2), rec.Normal)
	assert.Equal(t, int64(1), rec.Delayed)
	assert.Equal(t, base.Add(time.Second), rec.FirstSeen)
	assert.Equal(t, base.Add(2*time.Second), rec.LastSeen)
}

func TestEveryCounter(t *testing.T) {
	agg := NewAggregator()
	for _, c := range []Counter{CounterNormal, CounterDelayed, CounterJunk, CounterIgnored, CounterMalformed, CounterTimeout, CounterWriteFailed} {
		agg.Increment("c", c)
	}
	rec, _ := agg.Get("c")
	assert.Equal(t, Record{
		Address:     "c",
		Normal:      1,
		Delayed:     1,
		Junk:        1,
		Ignored:     1,
		Malformed:   1,
		Timeouts:    1,
		WriteFailed: 1,
		FirstSeen:   rec.FirstSeen,
		LastSeen:    rec.LastSeen,
	}, rec)
	assert.False(t, rec.FirstSeen.IsZero(), "a timeout is a contact")
}

func TestSnapshotSortedAndDetached(t *testing.T) {
	agg := NewAggregator()
	agg.RecordRequest("10.0.0.3")
	agg.RecordRequest("10.0.0.1")
	agg.RecordRequest("10.0.0.2")

	snap := agg.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "10.0.0.1", snap[0].Address)
	assert.Equal(t, "10.0.0.3", snap[2].Address)

	snap[0].Total = 99
	rec, _ := agg.Get("10.0.0.1")
	assert.Equal(t, int64(1), rec.Total)

	agg.Reset()
	assert.Empty(t, agg.Snapshot())
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	agg := NewAggregator()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := fmt.Sprintf("10.0.0.%d", i%2)
			for j := 0; j < 500; j++ {
				agg.RecordRequest(addr)
				agg.Increment(addr, CounterNormal)
				if j%100 == 0 {
					for _, rec := range agg.Snapshot() {
						assert.GreaterOrEqual(t, rec.Total, rec.Normal)
					}
				}
			}
		}(i)
	}
	wg.Wait()

	for _, rec := range agg.Snapshot() {
		assert.Equal(t, int64(5000), rec.Total)
		assert.Equal(t, int64(5000), rec.Normal)
	}
}
