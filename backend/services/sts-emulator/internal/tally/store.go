package tally

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Store keeps channel and client tally states. The two maps are guarded independently;
// a request only ever consults one of them.
type Store struct {
	chMu     sync.RWMutex
	channels map[int]State

	clMu    sync.RWMutex
	clients map[string]State
}

// NewStore returns a store with channels 1..channels set to Unselected.
func NewStore(channels int) *Store {
	s := &Store{
		channels: make(map[int]State, channels),
		clients:  make(map[string]State),
	}
	for ch := 1; ch <= channels; ch++ {
		s.channels[ch] = Unselected
	}
	return s
}

// AssignedState is the state a client address gets the first time it is seen in
// client-random mode: XXH64(address, seed 0) mod 3, indexed into the cycle order.
// Tests and devices rely on this mapping being stable, so do not swap the hash.
func AssignedState(address string) State {
	return cycleOrder[xxhash.Sum64String(address)%uint64(len(cycleOrder))]
}

// ChannelState returns the channel's state, Unselected when the channel is unknown.
func (s *Store) ChannelState(channel int) State {
	s.chMu.RLock()
	defer s.chMu.RUnlock()
	return s.channels[channel]
}

// SetChannelState overwrites the channel's state.
func (s *Store) SetChannelState(channel int, state State) {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	s.channels[channel] = state
}

// ResetChannels sets every known channel back to Unselected.
func (s *Store) ResetChannels() {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	for ch := range s.channels {
		s.channels[ch] = Unselected
	}
}

// Resize makes channels 1..channels the known set, keeping existing states.
func (s *Store) Resize(channels int) {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	for ch := range s.channels {
		if ch < 1 || ch > channels {
			delete(s.channels, ch)
		}
	}
	for ch := 1; ch <= channels; ch++ {
		if _, ok := s.channels[ch]; !ok {
			s.channels[ch] = Unselected
		}
	}
}

// Channels returns a copy of the channel map.
func (s *Store) Channels() map[int]State {
	s.chMu.RLock()
	defer s.chMu.RUnlock()
	result := make(map[int]State, len(s.channels))
	for ch, st := range s.channels {
		result[ch] = st
	}
	return result
}

// AdvanceChannels moves every channel one step along the cycle.
func (s *Store) AdvanceChannels() int {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	for ch, st := range s.channels {
		s.channels[ch] = st.Next()
	}
	return len(s.channels)
}

// ClientState returns the client's state, assigning one from AssignedState on first use.
func (s *Store) ClientState(address string) State {
	s.clMu.RLock()
	st, ok := s.clients[address]
	s.clMu.RUnlock()
	if ok {
		return st
	}

	s.clMu.Lock()
	defer s.clMu.Unlock()
	// Another handler may have assigned it between the two locks.
	if st, ok := s.clients[address]; ok {
		return st
	}
	st = AssignedState(address)
	s.clients[address] = st
	return st
}

// SetClientState overwrites the client's state.
func (s *Store) SetClientState(address string, state State) {
	s.clMu.Lock()
	defer s.clMu.Unlock()
	s.clients[address] = state
}

// ClearClientStates forgets every client assignment.
func (s *Store) ClearClientStates() {
	s.clMu.Lock()
	defer s.clMu.Unlock()
	s.clients = make(map[string]State)
}

// Clients returns a copy of the client map.
func (s *Store) Clients() map[string]State {
	s.clMu.RLock()
	defer s.clMu.RUnlock()
	result := make(map[string]State, len(s.clients))
	for addr, st := range s.clients {
		result[addr] = st
	}
	return result
}

// AdvanceClients moves every assigned client one step along the cycle.
func (s *Store) AdvanceClients() int {
	s.clMu.Lock()
	defer s.clMu.Unlock()
	for addr, st := range s.clients {
		s.clients[addr] = st.Next()
	}
	return len(s.clients)
}
