package lba

import "sync"

// lockMode selects shared (read) or exclusive (write) acquisition of the
// sequencing lock.
type lockMode int

const (
	lockRead lockMode = iota
	lockWrite
)

// seqLock is the sequencing lock: a reader/writer lock with asynchronous
// acquisition that guards the identity of the current log generation during
// the window where compaction may swap it. Syncs hold it shared, compaction
// holds it exclusive across the swap and shared while flushing the new
// generation. It does not protect the offset table.
//
// Waiters are granted in FIFO order, and a queued writer blocks new readers.
// That ordering is what turns two concurrently queued compactions into a
// loud failure: after the first one swaps generations and releases its write
// mode, its immediate shared re-acquire finds the second writer queued and
// fails, instead of silently replacing the generation out from under it.
type seqLock struct {
	mu      sync.Mutex
	readers int
	writer  bool
	waiters []seqWaiter
}

type seqWaiter struct {
	mode  lockMode
	grant func()
}

// acquire takes the lock in the given mode. It returns true if the lock was
// granted synchronously. Otherwise the acquisition is queued and onGrant is
// invoked exactly once when the lock is granted — unless onGrant is nil, in
// which case acquire does not queue and simply reports failure.
func (l *seqLock) acquire(mode lockMode, onGrant func()) bool {
	l.mu.Lock()
	if l.grantable(mode) {
		l.take(mode)
		l.mu.Unlock()
		return true
	}
	if onGrant == nil {
		l.mu.Unlock()
		return false
	}
	l.waiters = append(l.waiters, seqWaiter{mode: mode, grant: onGrant})
	l.mu.Unlock()
	return false
}

// release drops one holder (a reader or the writer) and grants as many
// queued waiters as the new state allows. Grant callbacks run after the
// internal mutex is dropped, on the releasing goroutine.
func (l *seqLock) release() {
	l.mu.Lock()
	if l.writer {
		l.writer = false
	} else {
		if l.readers == 0 {
			l.mu.Unlock()
			panic("lba: sequencing lock released while not held")
		}
		l.readers--
	}

	// Drain the queue in FIFO order: a writer at the head needs the lock
	// idle, a reader at the head only needs no active writer. Granting a
	// writer stops the drain.
	var granted []func()
	for len(l.waiters) > 0 {
		next := l.waiters[0]
		if l.writer || (next.mode == lockWrite && l.readers > 0) {
			break
		}
		l.take(next.mode)
		granted = append(granted, next.grant)
		l.waiters = l.waiters[1:]
	}
	l.mu.Unlock()

	for _, grant := range granted {
		grant()
	}
}

// grantable reports whether the lock can be taken in mode right now.
// A queued writer blocks new readers so compactions cannot starve.
func (l *seqLock) grantable(mode lockMode) bool {
	if l.writer {
		return false
	}
	switch mode {
	case lockRead:
		return !l.writerQueued()
	default:
		return l.readers == 0 && len(l.waiters) == 0
	}
}

func (l *seqLock) take(mode lockMode) {
	if mode == lockWrite {
		l.writer = true
	} else {
		l.readers++
	}
}

func (l *seqLock) writerQueued() bool {
	for _, w := range l.waiters {
		if w.mode == lockWrite {
			return true
		}
	}
	return false
}
