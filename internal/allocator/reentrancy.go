package allocator

// A canary check or leak-tracking hook that itself allocates (e.g. to
// format a message) must not recurse back into the heap façade's
// critical section on the same goroutine - that would deadlock on
// Locker.Lock rather than merely being wasteful. reentrancyGuard tracks
// "am I already inside the heap façade on this goroutine" using
// goroutine-local storage, since a plain bool would be shared (and
// racy) across every goroutine calling into the same Heap.

import "github.com/timandy/routine"

var reentranceFlag = routine.NewThreadLocalWithInitial(func() any { return false })

type reentrancyGuard struct{}

// enter returns false if the current goroutine is already inside the
// guarded section; otherwise it marks entry and returns true. Callers
// must call exit exactly once for every true return.
func (reentrancyGuard) enter() bool {
	if reentranceFlag.Get().(bool) {
		return false
	}

	reentranceFlag.Set(true)

	return true
}

func (reentrancyGuard) exit() {
	reentranceFlag.Set(false)
}
