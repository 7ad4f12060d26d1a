package storage

import "sync"

// MemoryEngine keeps entries in a map; contents are lost on restart
type MemoryEngine struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryEngine creates an empty in-memory engine
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{data: make(map[string]string)}
}

func (m *MemoryEngine) Put(key, value string) (PutResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.data[key]
	m.data[key] = value
	if exists {
		return Updated, nil
	}
	return Created, nil
}

func (m *MemoryEngine) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryEngine) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[key]; !ok {
		return ErrNotFound
	}
	delete(m.data, key)
	return nil
}

// Scan iterates over a copy so fn may write to the engine
func (m *MemoryEngine) Scan(fn func(key, value string) bool) error {
	m.mu.RLock()
	entries := make([][2]string, 0, len(m.data))
	for k, v := range m.data {
		entries = append(entries, [2]string{k, v})
	}
	m.mu.RUnlock()

	for _, e := range entries {
		if !fn(e[0], e[1]) {
			return nil
		}
	}
	return nil
}

func (m *MemoryEngine) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
	return nil
}

func (m *MemoryEngine) Close() error {
	return nil
}

// Len returns the number of entries
func (m *MemoryEngine) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
