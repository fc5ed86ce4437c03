package sender

import (
	"github.com/thrylos-labs/go-gossip/network"
)

// slotManager owns the pool of broadcast slot identifiers for one
// sender. Freed slots are recycled most-recently-freed first before the
// high-water mark advances. The manager is touched only from its
// sender's event loop, so it needs no locking, and it cannot fail.
type slotManager struct {
	nextFreeSlot network.SlotNumber
	freeSlots    []network.SlotNumber
	threshold    uint64
	metrics      *Metrics
}

func newSlotManager(threshold uint64, metrics *Metrics) *slotManager {
	return &slotManager{
		threshold: threshold,
		metrics:   metrics,
	}
}

// takeFreeSlot pops the most recently freed slot, or mints a new one
// when the free pool is empty.
func (sm *slotManager) takeFreeSlot() network.SlotNumber {
	sm.metrics.incrementSlotsInUse()

	if n := len(sm.freeSlots); n > 0 {
		slot := sm.freeSlots[n-1]
		sm.freeSlots = sm.freeSlots[:n-1]
		return slot
	}

	if uint64(sm.nextFreeSlot) > sm.threshold {
		log.Warnf("Slot table threshold exceeded. Slots in use = %d", sm.nextFreeSlot)
	}

	slot := sm.nextFreeSlot
	sm.nextFreeSlot++
	sm.metrics.incrementMaxSlots()
	return slot
}

// giveSlot returns a slot to the free pool. Caller contract: only slots
// this manager issued, and not currently free.
func (sm *slotManager) giveSlot(slot network.SlotNumber) {
	sm.freeSlots = append(sm.freeSlots, slot)
	sm.metrics.decrementSlotsInUse()
}
