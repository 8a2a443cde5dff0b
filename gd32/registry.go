package gd32

import "sync"

// Registry arbitrates ownership of the CAN units between Controllers in
// one process and carries the CAN0/CAN1 filter bank split, which belongs
// to whichever Controller holds CAN1. Releasing CAN1 resets the split so
// a later owner starts from the hardware default.
//
// Controllers share a process-wide registry unless WithRegistry points
// them elsewhere; tests use private registries to stay independent.
type Registry struct {
	mu    sync.Mutex
	owned uint8
	split int16
}

// NewRegistry returns a registry with no units owned and the split unset.
func NewRegistry() *Registry {
	return &Registry{split: -1}
}

var defaultRegistry = NewRegistry()

// Acquire claims a unit, reporting false when it is already owned.
func (r *Registry) Acquire(inst Instance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	bit := uint8(1) << uint8(inst)
	if r.owned&bit != 0 {
		return false
	}
	r.owned |= bit
	return true
}

// Release returns a unit. Releasing CAN1 also unsets the bank split.
func (r *Registry) Release(inst Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owned &^= uint8(1) << uint8(inst)
	if inst == CAN1 {
		r.split = -1
	}
}

// SetCAN1Split records the first filter bank assigned to CAN1.
func (r *Registry) SetCAN1Split(bank uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.split = int16(bank)
}

// CAN1Split returns the first bank assigned to CAN1, or -1 while no CAN1
// owner has set one. CAN0 then keeps the whole bank range.
func (r *Registry) CAN1Split() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.split)
}
