package lba

import "time"

// Metrics is the sink for directory observability. The interface lives here
// so implementations (pkg/metrics provides a Prometheus one) depend on this
// package rather than the other way around. A nil sink costs nothing.
type Metrics interface {
	// RecordAppend counts one buffered log append (set or delete).
	RecordAppend()

	// ObserveSync records a completed sync and its end-to-end duration,
	// including any time spent queued on the sequencing lock.
	ObserveSync(elapsed time.Duration)

	// ObserveCompaction records a completed compaction, its duration and
	// the number of entries carried into the new generation.
	ObserveCompaction(elapsed time.Duration, entries int)
}
