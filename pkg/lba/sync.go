package lba

import (
	"time"

	"github.com/marmos91/lbalog/internal/logger"
)

// Sync makes every mapping change whose SetBlockOffset/DeleteBlock call
// returned before Sync was invoked durable. Changes issued concurrently
// with an in-flight Sync have no ordering guarantee relative to its
// durability boundary.
//
// Sync returns true if durability was reached synchronously; otherwise
// onDone is invoked exactly once when it is. Multiple syncs may run
// concurrently (they share the sequencing lock in read mode); none of them
// runs concurrently with compaction's swap step.
//
// Sync also consults the directory's GCPolicy and may kick off a compaction
// first; that compaction carries no correctness dependency on the sync.
func (d *Directory) Sync(onDone func()) bool {
	d.mu.Lock()
	d.mustBe(stateReady)
	policy := d.policy
	d.mu.Unlock()

	if policy.ShouldCompact() {
		d.GC()
	}

	s := &syncer{dir: d, onDone: onDone, start: time.Now()}
	return s.run()
}

// syncer is the sync state machine: acquiring-lock → writing → done. Each
// step reports whether everything so far completed synchronously, so the
// caller's callback fires exactly when Sync did not return true.
type syncer struct {
	dir    *Directory
	onDone func()
	start  time.Time
}

func (s *syncer) run() bool {
	if s.dir.lock.acquire(lockRead, func() { s.write(false) }) {
		return s.write(true)
	}
	return false
}

// write flushes the generation that is current now that the lock is held.
// inline is true only while still on the synchronous path out of run.
func (s *syncer) write(inline bool) bool {
	d := s.dir
	d.mu.Lock()
	disk := d.disk
	d.mu.Unlock()

	if disk.Sync(func() { s.finish(false) }) {
		return s.finish(inline)
	}
	return false
}

func (s *syncer) finish(inline bool) bool {
	d := s.dir
	d.lock.release()

	elapsed := time.Since(s.start)
	d.mu.Lock()
	d.stats.Syncs++
	d.mu.Unlock()
	if d.metrics != nil {
		d.metrics.ObserveSync(elapsed)
	}
	logger.Debug("Block-address log synced", logger.KeyDuration, elapsed)

	if !inline && s.onDone != nil {
		s.onDone()
	}
	return true
}
