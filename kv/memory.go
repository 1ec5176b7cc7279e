package kv

import "sync"

// Memory is an in-process Backend. A positive quota caps the total number of
// bytes held across all keys and values, mirroring browser storage limits.
type Memory struct {
	mu    sync.RWMutex
	data  map[string]string
	used  int
	quota int
}

// NewMemory creates an empty, unbounded Memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// NewMemoryWithQuota creates a Memory backend that rejects writes once the
// stored keys and values would exceed quota bytes.
func NewMemoryWithQuota(quota int) *Memory {
	m := NewMemory()
	m.quota = quota
	return m
}

// Get returns the value for key.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set stores value under key, or returns ErrQuotaExceeded and keeps the old value.
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := m.used
	if old, ok := m.data[key]; ok {
		used -= len(key) + len(old)
	}
	used += len(key) + len(value)
	if m.quota > 0 && used > m.quota {
		return ErrQuotaExceeded
	}
	m.data[key] = value
	m.used = used
	return nil
}

// SetQuota changes the byte quota. Zero or negative disables it.
func (m *Memory) SetQuota(quota int) {
	m.mu.Lock()
	m.quota = quota
	m.mu.Unlock()
}
