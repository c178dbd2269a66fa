package stats

import (
	"sort"
	"sync"
	"time"
)

// Counter names one per-client counter.
type Counter int

const (
	CounterNormal Counter = iota
	CounterDelayed
	CounterJunk
	CounterIgnored
	CounterMalformed
	CounterTimeout
	// CounterWriteFailed counts responses the client never received.
	CounterWriteFailed
)

// Record holds the counters of one client address.
type Record struct {
	Address     string    `json:"address"`
	Total       int64     `json:"total"`
	Normal      int64     `json:"normal"`
	Delayed     int64     `json:"delayed"`
	Junk        int64     `json:"junk"`
	Ignored     int64     `json:"ignored"`
	Malformed   int64     `json:"malformed"`
	Timeouts    int64     `json:"timeouts"`
	WriteFailed int64     `json:"writeFailed"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Aggregator keeps per-client counters behind a single lock, so a snapshot never shows a
// record half way through an update.
type Aggregator struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// record must be called with mu held.
func (a *Aggregator) record(address string) *Record {
	rec, ok := a.records[address]
	if !ok {
		rec = &Record{Address: address}
		a.records[address] = rec
	}
	return rec
}

// RecordRequest counts a request that was read from address.
func (a *Aggregator) RecordRequest(address string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	rec := a.record(address)
	rec.Total++
	if rec.FirstSeen.IsZero() {
		rec.FirstSeen = now
	}
	rec.LastSeen = now
}

// Increment bumps one counter of address.
func (a *Aggregator) Increment(address string, counter Counter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec := a.record(address)
	switch counter {
	case CounterNormal:
		rec.Normal++
	case CounterDelayed:
		rec.Delayed++
	case CounterJunk:
		rec.Junk++
	case CounterIgnored:
		rec.Ignored++
	case CounterMalformed:
		rec.Malformed++
	case CounterTimeout:
		rec.Timeouts++
		now := a.now()
		if rec.FirstSeen.IsZero() {
			rec.FirstSeen = now
		}
		rec.LastSeen = now
	case CounterWriteFailed:
		rec.WriteFailed++
	}
}

// Get returns a copy of one record.
func (a *Aggregator) Get(address string) (Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[address]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Snapshot returns copies of every record ordered by address.
func (a *Aggregator) Snapshot() []Record {
	a.mu.Lock()
	result := make([]Record, 0, len(a.records))
	for _, rec := range a.records {
		result = append(result, *rec)
	}
	a.mu.Unlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result
}

// Reset drops every record.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = make(map[string]*Record)
}
