package sender

import (
	"sync"
)

// Metrics tracks one sender's dissemination activity.
type Metrics struct {
	mu sync.RWMutex

	newAdverts   int64
	dupAdverts   int64
	activePurges int64
	dupPurges    int64
	slotsInUse   int64
	maxSlots     int64
	sendToPeer   int64
	delivered    int64
}

// NewMetrics creates an empty metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) incrementNewAdverts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newAdverts++
}

func (m *Metrics) incrementDupAdverts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dupAdverts++
}

func (m *Metrics) incrementActivePurges() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activePurges++
}

func (m *Metrics) incrementDupPurges() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dupPurges++
}

func (m *Metrics) incrementSlotsInUse() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slotsInUse++
}

func (m *Metrics) decrementSlotsInUse() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slotsInUse--
}

func (m *Metrics) incrementMaxSlots() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxSlots++
}

func (m *Metrics) incrementSendToPeer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendToPeer++
}

func (m *Metrics) incrementDelivered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered++
}

// Snapshot returns the current counter values. All counters are
// monotonic except slots_in_use, which is a gauge.
func (m *Metrics) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"new_adverts":       m.newAdverts,
		"duplicate_adverts": m.dupAdverts,
		"active_purges":     m.activePurges,
		"duplicate_purges":  m.dupPurges,
		"slots_in_use":      m.slotsInUse,
		"max_slots":         m.maxSlots,
		"send_to_peer":      m.sendToPeer,
		"delivered":         m.delivered,
	}
}
