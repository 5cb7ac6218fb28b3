package timeline

import (
	"fmt"
	"sync"
)

// OpStats counts the commands a MemoryLayer has applied.
type OpStats struct {
	Added   int
	Removed int
	Updated int
}

// Total returns the number of applied commands.
func (s OpStats) Total() int {
	return s.Added + s.Removed + s.Updated
}

// MemoryLayer is an in-memory RegionLayer. Regions are kept in insertion order.
type MemoryLayer struct {
	mu      sync.Mutex
	ready   bool
	regions []Region
	stats   OpStats
}

// NewMemoryLayer returns a ready, empty layer.
func NewMemoryLayer() *MemoryLayer {
	return &MemoryLayer{ready: true}
}

// SetReady toggles readiness, mimicking a renderer that is still loading.
func (m *MemoryLayer) SetReady(ready bool) {
	m.mu.Lock()
	m.ready = ready
	m.mu.Unlock()
}

func (m *MemoryLayer) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *MemoryLayer) Regions() []Region {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Region(nil), m.regions...)
}

func (m *MemoryLayer) AddRegion(spec Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrLayerNotReady
	}
	if m.indexLocked(spec.ID) >= 0 {
		return fmt.Errorf("add %s: %w", spec.ID, ErrDuplicateRegion)
	}
	m.regions = append(m.regions, spec)
	m.stats.Added++
	return nil
}

func (m *MemoryLayer) RemoveRegion(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrLayerNotReady
	}
	idx := m.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("remove %s: %w", id, ErrRegionNotFound)
	}
	m.regions = append(m.regions[:idx], m.regions[idx+1:]...)
	m.stats.Removed++
	return nil
}

func (m *MemoryLayer) UpdateRegion(id string, start, end float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrLayerNotReady
	}
	idx := m.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("update %s: %w", id, ErrRegionNotFound)
	}
	m.regions[idx].Start = start
	m.regions[idx].End = end
	m.stats.Updated++
	return nil
}

// Stats returns the command counters.
func (m *MemoryLayer) Stats() OpStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *MemoryLayer) indexLocked(id string) int {
	for i := range m.regions {
		if m.regions[i].ID == id {
			return i
		}
	}
	return -1
}
