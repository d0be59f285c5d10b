// Package lba implements the block-address directory of a log-structured
// storage engine: an in-memory map from logical block ids to their current
// physical offset in an append-only on-disk log, kept consistent with a
// durable, crash-recoverable representation while compaction replaces that
// representation underneath live reads and writes.
//
// The directory owns one offset table (in memory, authoritative) and one
// current log generation (durable). Mapping operations are synchronous;
// durability (Sync) and compaction (GC) run as asynchronous state machines
// serialized through a sequencing lock. Every suspending operation follows
// the same contract: it either completes synchronously (returns true) or
// invokes exactly one completion callback later — never both, never neither.
package lba

// BlockID identifies one logical block. Ids are opaque, densely allocated
// and monotonically increasing; they are generated only by the offset table
// and never reused while live.
type BlockID uint64

// Offset is the physical location of a block's payload in the durable log.
// The Tombstone sentinel marks a deleted block and is distinct from every
// valid offset.
type Offset int64

// Tombstone records the deletion of a block id. It never collides with a
// valid offset (valid offsets are non-negative).
const Tombstone Offset = -1

// IsTombstone reports whether o marks a deleted block.
func (o Offset) IsTombstone() bool {
	return o == Tombstone
}

// Log is one generation of the durable block-address log.
//
// Append is synchronous and buffered: entries are not durable until the next
// Sync completes. Sync and the loading half of Backend.Load follow the
// sync-or-async contract described in the package comment. Replay is only
// valid once the generation has been fully created or loaded.
//
// I/O failures are not surfaced through this interface: implementations
// either succeed or escalate fatally. The directory performs no retries.
type Log interface {
	// Append buffers one (id, offset) entry. Later entries for the same id
	// supersede earlier ones; a Tombstone offset records a deletion.
	Append(id BlockID, off Offset)

	// Replay calls fn for every entry in the generation, in append order.
	Replay(fn func(id BlockID, off Offset))

	// Sync flushes buffered entries to durable storage. It returns true if
	// the flush completed synchronously; otherwise onDone is invoked exactly
	// once when it completes.
	Sync(onDone func()) bool

	// Anchor returns the opaque durable pointer that lets a later Load
	// locate and replay this generation. Only meaningful once synced.
	Anchor() []byte

	// Destroy releases the generation's storage. Fire-and-forget: callers
	// do not wait for the release to finish.
	Destroy()

	// Shutdown flushes buffered entries and releases in-memory resources,
	// keeping the durable storage intact.
	Shutdown()
}

// Backend creates and loads log generations. The production implementation
// is extlog (extent-backed files); memlog provides a deterministic in-memory
// backend for tests and embedding.
type Backend interface {
	// Create synchronously creates a new, empty generation.
	Create() (Log, error)

	// Load reconstructs a generation from an anchor previously produced by
	// Log.Anchor. It returns the generation handle immediately; if done is
	// true the generation is ready for Replay right away, otherwise onLoaded
	// is invoked exactly once when loading finishes. An error is returned
	// only for synchronously detectable problems (malformed or unknown
	// anchors); I/O failures during an asynchronous load escalate fatally.
	Load(anchor []byte, onLoaded func()) (log Log, done bool, err error)
}
