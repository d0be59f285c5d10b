package lba

import "math/rand"

// DefaultGCChance is the default 1-in-N probability that a Sync kicks off a
// compaction first, purely to keep the mechanism exercised under load.
const DefaultGCChance = 5

// GCPolicy decides, once per Sync, whether to run a compaction before
// syncing. Policies are injectable so tests can force or suppress
// compaction deterministically.
type GCPolicy interface {
	ShouldCompact() bool
}

// PolicyFunc adapts a function to a GCPolicy.
type PolicyFunc func() bool

// ShouldCompact implements GCPolicy.
func (f PolicyFunc) ShouldCompact() bool { return f() }

// NeverCompact suppresses policy-driven compaction. Explicit GC calls still
// work.
var NeverCompact GCPolicy = PolicyFunc(func() bool { return false })

// AlwaysCompact compacts on every Sync.
var AlwaysCompact GCPolicy = PolicyFunc(func() bool { return true })

// NewProbabilisticPolicy compacts with probability 1-in-chance per Sync.
func NewProbabilisticPolicy(chance int) GCPolicy {
	if chance <= 0 {
		return NeverCompact
	}
	return probabilisticPolicy{chance: chance}
}

type probabilisticPolicy struct {
	chance int
}

func (p probabilisticPolicy) ShouldCompact() bool {
	return rand.Intn(p.chance) == 0
}
