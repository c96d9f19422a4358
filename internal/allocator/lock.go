package allocator

import "sync"

// Locker is the single critical-section guard the heap façade takes for
// every public entry point, playing the role FutexLock plays in
// treealloc.cc. The default implementation is a plain sync.Mutex;
// Config.Locker lets callers substitute something else (a spinlock, a
// no-op for single-threaded embedding) without touching the allocator
// itself.
type Locker interface {
	Lock()
	Unlock()
}

// mutexLocker is the zero-config default: a sync.Mutex.
type mutexLocker struct {
	mu sync.Mutex
}

func (l *mutexLocker) Lock()   { l.mu.Lock() }
func (l *mutexLocker) Unlock() { l.mu.Unlock() }

func newMutexLocker() Locker { return &mutexLocker{} }
