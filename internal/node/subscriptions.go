package node

import (
	"sort"
	"sync"
)

// Subscriptions maps keys to the callback addresses of clients that want
// change notifications
type Subscriptions struct {
	mu    sync.RWMutex
	byKey map[string]map[string]struct{}
}

// NewSubscriptions creates an empty table
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{byKey: make(map[string]map[string]struct{})}
}

// Add registers subscriber for key and reports whether it was new
func (s *Subscriptions) Add(key, subscriber string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(key, subscriber)
}

func (s *Subscriptions) addLocked(key, subscriber string) bool {
	subs, ok := s.byKey[key]
	if !ok {
		subs = make(map[string]struct{})
		s.byKey[key] = subs
	}
	if _, exists := subs[subscriber]; exists {
		return false
	}
	subs[subscriber] = struct{}{}
	return true
}

// Remove drops subscriber from key and reports whether it was present
func (s *Subscriptions) Remove(key, subscriber string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, ok := s.byKey[key]
	if !ok {
		return false
	}
	if _, exists := subs[subscriber]; !exists {
		return false
	}
	delete(subs, subscriber)
	if len(subs) == 0 {
		delete(s.byKey, key)
	}
	return true
}

// Subscribers returns the sorted subscribers of key
func (s *Subscriptions) Subscribers(key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.byKey[key])
}

// Snapshot returns a copy of the whole table
func (s *Subscriptions) Snapshot() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]string, len(s.byKey))
	for key, subs := range s.byKey {
		out[key] = sortedKeys(subs)
	}
	return out
}

// Merge unions other into the table and returns how many entries were new
func (s *Subscriptions) Merge(other map[string][]string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for key, subs := range other {
		for _, sub := range subs {
			if s.addLocked(key, sub) {
				added++
			}
		}
	}
	return added
}

// Len returns the number of key-subscriber pairs
func (s *Subscriptions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, subs := range s.byKey {
		n += len(subs)
	}
	return n
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
