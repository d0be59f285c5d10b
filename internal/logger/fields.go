package logger

// Standard field keys for structured logging. Use these consistently across
// all log statements so logs aggregate and query cleanly.
const (
	// Block-address directory
	KeyBlockID    = "block_id"     // logical block id
	KeyOffset     = "offset"       // physical offset in the durable log
	KeyMaxBlockID = "max_block_id" // exclusive upper bound of assigned ids
	KeyLiveBlocks = "live_blocks"  // ids currently mapped to a valid offset
	KeyTombstones = "tombstones"   // ids currently deleted
	KeyEntries    = "entries"      // entry count (appends, compaction copies, replay)

	// Durable log / extents
	KeyGeneration = "generation" // log generation identifier
	KeyExtents    = "extents"    // number of extents backing a generation
	KeyPath       = "path"       // file path
	KeySize       = "size"       // size in bytes

	// Generic
	KeyDuration = "duration" // elapsed time of an operation
	KeyError    = "error"    // error value
)
