package trader

// history is a fixed-capacity round-robin memory addressed by logical time.
// Slot t lives at t mod capacity, so only the last capacity steps are
// retained. Reading a step that was never written, or one that has been
// overwritten by a later step, returns whatever the slot currently holds;
// callers must advance time one step at a time.
type history[T any] struct {
	slots []T
}

// newHistory creates a history of the given capacity with every slot set to fill.
func newHistory[T any](capacity int, fill T) history[T] {
	slots := make([]T, capacity)
	for i := range slots {
		slots[i] = fill
	}
	return history[T]{slots: slots}
}

func (h history[T]) index(t int) int {
	n := len(h.slots)
	return ((t % n) + n) % n
}

// at returns the value stored for step t.
func (h history[T]) at(t int) T {
	return h.slots[h.index(t)]
}

// set stores v for step t.
func (h history[T]) set(t int, v T) {
	h.slots[h.index(t)] = v
}

func (h history[T]) capacity() int {
	return len(h.slots)
}
