package engine

import (
	"golang.org/x/sync/semaphore"
)

// admissionGate bounds the number of batches in flight. It never blocks: a tick that finds the gate
// full is dropped.
type admissionGate struct {
	sem      *semaphore.Weighted
	capacity int
}

func newAdmissionGate(capacity int) *admissionGate {
	return &admissionGate{sem: semaphore.NewWeighted(int64(capacity)), capacity: capacity}
}

func (g *admissionGate) TryAcquire() bool {
	return g.sem.TryAcquire(1)
}

// Release returns a permit taken by TryAcquire. Releasing more permits than were acquired panics.
func (g *admissionGate) Release() {
	g.sem.Release(1)
}

func (g *admissionGate) Capacity() int {
	return g.capacity
}
