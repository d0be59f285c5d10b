package lba

import (
	"time"

	"github.com/marmos91/lbalog/internal/logger"
)

// GC compacts the durable log: the current generation accumulates one entry
// per superseded write, so compaction replaces it with a fresh generation
// holding exactly one live entry per assigned id, bounding log size.
//
// GC is fire-and-forget; it runs as an asynchronous state machine
// (acquiring-write-lock → replacing → downgrading → syncing-new → done)
// serialized against syncs and other compactions through the sequencing
// lock. Writes issued while compaction is queued or running are never lost:
// the swap step copies the offset table's current contents, and the table
// always holds every change that has returned.
func (d *Directory) GC() {
	d.mu.Lock()
	d.mustBe(stateReady)
	d.mu.Unlock()

	g := &compactor{dir: d, start: time.Now()}
	if d.lock.acquire(lockWrite, g.replace) {
		g.replace()
	}
}

// compactor is the compaction state machine.
type compactor struct {
	dir     *Directory
	start   time.Time
	entries int
}

// replace runs with the sequencing lock held in write mode: discard the old
// generation, install a new empty one, and seed it from the offset table.
func (g *compactor) replace() {
	d := g.dir

	d.mu.Lock()
	// The old generation's release is fire-and-forget; nothing waits on it.
	d.disk.Destroy()

	disk, err := d.backend.Create()
	if err != nil {
		// The old generation is already gone; there is no state to fall
		// back to. Escalate.
		panic("lba: compaction cannot create replacement generation: " + err.Error())
	}
	d.disk = disk

	// Whatever the table holds as each id is visited is what gets carried
	// forward, including writes that were appended to the discarded
	// generation.
	max := d.index.MaxID()
	for id := BlockID(0); id < max; id++ {
		disk.Append(id, d.index.Get(id))
	}
	g.entries = int(max)
	d.mu.Unlock()

	// Downgrade write → read: the swap is done, but the lock must be kept
	// shared so another compaction cannot swap the generation out from
	// under us while it syncs. The re-acquire must not block; if it would,
	// a second compaction was concurrently admitted, which the single-lock
	// design rules out.
	d.lock.release()
	if !d.lock.acquire(lockRead, nil) {
		panic("lba: sequencing lock downgrade blocked: concurrent compaction detected")
	}

	if disk.Sync(g.finish) {
		g.finish()
	}
}

func (g *compactor) finish() {
	d := g.dir
	d.lock.release()

	elapsed := time.Since(g.start)
	d.mu.Lock()
	d.stats.Compactions++
	d.mu.Unlock()
	if d.metrics != nil {
		d.metrics.ObserveCompaction(elapsed, g.entries)
	}
	logger.Info("Block-address log compacted",
		logger.KeyEntries, g.entries,
		logger.KeyDuration, elapsed)
}
