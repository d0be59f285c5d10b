package lba

import (
	"fmt"
	"sync"

	"github.com/marmos91/lbalog/internal/logger"
)

// dirState is the directory lifecycle. Transitions are strictly linear:
// unstarted → startingUp → ready → shutDown, with startingUp only reachable
// through Recover. There is no re-entry.
type dirState int

const (
	stateUnstarted dirState = iota
	stateStartingUp
	stateReady
	stateShutDown
)

func (s dirState) String() string {
	switch s {
	case stateUnstarted:
		return "unstarted"
	case stateStartingUp:
		return "starting_up"
	case stateReady:
		return "ready"
	case stateShutDown:
		return "shut_down"
	default:
		return "unknown"
	}
}

// Directory is the block-address directory. It owns one offset table and
// one current log generation, exposes the mapping API, and drives the
// startup, sync and compaction state machines.
//
// Mapping and durability operations require the ready state; calling them
// earlier or after shutdown is a programmer contract violation and panics.
// The directory is safe for concurrent use: its own state sits behind a
// mutex, and sync/compaction exclusion goes through the sequencing lock.
type Directory struct {
	mu      sync.Mutex
	state   dirState
	backend Backend
	index   *OffsetTable
	disk    Log
	lock    seqLock
	policy  GCPolicy
	metrics Metrics
	stats   Stats
}

// Option configures a Directory.
type Option func(*Directory)

// WithGCPolicy replaces the compaction trigger consulted on every Sync.
// The default compacts with probability 1-in-5; tests typically install
// NeverCompact or AlwaysCompact.
func WithGCPolicy(p GCPolicy) Option {
	return func(d *Directory) { d.policy = p }
}

// WithMetrics installs a metrics sink. A nil sink (the default) has zero
// overhead.
func WithMetrics(m Metrics) Option {
	return func(d *Directory) { d.metrics = m }
}

// New returns an unstarted directory over the given backend. Call Start or
// Recover before anything else.
func New(backend Backend, opts ...Option) *Directory {
	d := &Directory{
		backend: backend,
		policy:  NewProbabilisticPolicy(DefaultGCChance),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start creates a fresh, empty directory: an empty offset table and an
// empty log generation. It is synchronous and legal only from unstarted.
func (d *Directory) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustBe(stateUnstarted)

	disk, err := d.backend.Create()
	if err != nil {
		return fmt.Errorf("create log generation: %w", err)
	}
	d.index = NewOffsetTable()
	d.disk = disk
	d.state = stateReady

	logger.Debug("Block-address directory started fresh")
	return nil
}

// Recover attaches to an existing log located by anchor. Loading follows
// the sync-or-async contract: if Recover returns done=true the directory is
// ready immediately and onReady is never invoked; otherwise onReady is
// invoked exactly once when the directory becomes ready. Legal only from
// unstarted. A returned error means the anchor was rejected synchronously
// and the directory is back in unstarted.
func (d *Directory) Recover(anchor []byte, onReady func()) (done bool, err error) {
	d.mu.Lock()
	d.mustBe(stateUnstarted)
	d.state = stateStartingUp
	d.mu.Unlock()

	s := &starter{dir: d, onReady: onReady}
	return s.run(anchor)
}

// starter is the startup state machine for the recovery path. It reifies
// the suspended call across the backend's asynchronous load.
type starter struct {
	dir     *Directory
	onReady func()
	log     Log
}

func (s *starter) run(anchor []byte) (bool, error) {
	log, done, err := s.dir.backend.Load(anchor, s.onLoaded)
	if err != nil {
		s.dir.mu.Lock()
		s.dir.state = stateUnstarted
		s.dir.mu.Unlock()
		return false, fmt.Errorf("load log generation: %w", err)
	}
	s.log = log
	if done {
		s.finish()
		return true, nil
	}
	return false, nil
}

func (s *starter) onLoaded() {
	s.finish()
	if s.onReady != nil {
		s.onReady()
	}
}

// finish is shared by the synchronous and asynchronous load paths: rebuild
// the offset table by replaying the loaded generation and go ready.
func (s *starter) finish() {
	d := s.dir
	d.mu.Lock()
	d.disk = s.log
	d.index = RebuildOffsetTable(s.log)
	d.state = stateReady
	live, dead := d.index.Live(), d.index.Tombstones()
	d.mu.Unlock()

	logger.Info("Block-address directory recovered",
		logger.KeyLiveBlocks, live,
		logger.KeyTombstones, dead)
}

// GenBlockID returns a fresh, previously unused block id. No I/O.
func (d *Directory) GenBlockID() BlockID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustBe(stateReady)
	return d.index.GenID()
}

// MaxBlockID returns the exclusive upper bound of assigned ids. No I/O.
func (d *Directory) MaxBlockID() BlockID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustBe(stateReady)
	return d.index.MaxID()
}

// BlockOffset returns the current offset for id, or Tombstone if the id is
// deleted. No I/O.
func (d *Directory) BlockOffset(id BlockID) Offset {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustBe(stateReady)
	return d.index.Get(id)
}

// SetBlockOffset records off as the current offset for id. The offset table
// is updated immediately; the matching log append is buffered and not
// durable until the next Sync completes.
func (d *Directory) SetBlockOffset(id BlockID, off Offset) {
	if off < 0 {
		panic(fmt.Sprintf("lba: invalid offset %d for block %d", off, id))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustBe(stateReady)

	d.index.Set(id, off)

	// If compaction is queued behind the sequencing lock, this append may
	// land on a generation that is about to be discarded. That is harmless:
	// the offset table already holds the change, and compaction copies the
	// table's current contents into the generation it installs, so the
	// change is carried forward regardless of which generation received it.
	d.disk.Append(id, off)
	d.stats.Appends++
	if d.metrics != nil {
		d.metrics.RecordAppend()
	}
}

// DeleteBlock marks id as deleted. Same durability contract as
// SetBlockOffset: the tombstone entry is buffered until the next Sync.
func (d *Directory) DeleteBlock(id BlockID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustBe(stateReady)

	d.index.Delete(id)

	// See SetBlockOffset for why this is safe against a queued compaction.
	d.disk.Append(id, Tombstone)
	d.stats.Appends++
	if d.metrics != nil {
		d.metrics.RecordAppend()
	}
}

// Anchor returns the current generation's durable anchor, suitable for the
// engine's superblock. It reflects durable state only: call it after a
// completed Sync.
func (d *Directory) Anchor() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustBe(stateReady)
	return d.disk.Anchor()
}

// Stats are point-in-time counters about the directory.
type Stats struct {
	MaxBlockID  BlockID
	LiveBlocks  int
	Tombstones  int
	Appends     uint64 // log appends issued since start
	Syncs       uint64 // completed syncs
	Compactions uint64 // completed compactions
}

// Stats returns a snapshot of the directory's counters.
func (d *Directory) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustBe(stateReady)
	s := d.stats
	s.MaxBlockID = d.index.MaxID()
	s.LiveBlocks = d.index.Live()
	s.Tombstones = d.index.Tombstones()
	return s
}

// Shutdown releases the offset table and asks the current generation to
// flush and release itself. Legal only from ready; the directory is
// terminal afterwards.
//
// Calling Shutdown while a compaction is in flight is not supported and not
// detected; the engine must quiesce sync and compaction first.
func (d *Directory) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustBe(stateReady)

	d.index = nil
	d.disk.Shutdown()
	d.disk = nil
	d.state = stateShutDown

	logger.Debug("Block-address directory shut down")
}

// mustBe enforces the lifecycle contract. Violations are programmer errors,
// not runtime conditions, and terminate the process.
func (d *Directory) mustBe(want dirState) {
	if d.state != want {
		panic(fmt.Sprintf("lba: directory is %s, want %s", d.state, want))
	}
}
