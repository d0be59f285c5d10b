// Package memlog is an in-memory implementation of the block-address log
// collaborators, in the spirit of a memory-backed store: no files, no
// fsync, generations held in a map keyed by their anchor.
//
// Its main use is tests. By default every operation completes
// synchronously; attaching a Gate turns sync and load completions into
// deferred callbacks that fire only when the gate is released, which lets a
// test park a state machine at any suspension point and interleave other
// work deterministically.
package memlog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/lbalog/pkg/lba"
)

// ErrUnknownAnchor is returned by Load for anchors that do not name a
// synced generation.
var ErrUnknownAnchor = errors.New("unknown anchor")

// Backend keeps whole log generations in memory. It implements lba.Backend.
type Backend struct {
	mu   sync.Mutex
	gens map[string][]record // anchor key → durable records
	gate *Gate
}

type record struct {
	id  lba.BlockID
	off lba.Offset
}

// Option configures a Backend.
type Option func(*Backend)

// WithGate makes sync and load completions asynchronous, deferred until the
// gate is released.
func WithGate(g *Gate) Option {
	return func(b *Backend) { b.gate = g }
}

// New returns an empty in-memory backend.
func New(opts ...Option) *Backend {
	b := &Backend{gens: map[string][]record{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Create synchronously creates a new, empty generation.
func (b *Backend) Create() (lba.Log, error) {
	return &Log{backend: b, key: uuid.NewString()}, nil
}

// Load reconstructs a generation from its anchor. With a gate attached the
// load completes only when the gate is released; otherwise it completes
// synchronously.
func (b *Backend) Load(anchor []byte, onLoaded func()) (lba.Log, bool, error) {
	key := string(anchor)
	b.mu.Lock()
	durable, ok := b.gens[key]
	b.mu.Unlock()
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownAnchor, key)
	}

	l := &Log{backend: b, key: key, loading: true}
	finish := func() {
		l.mu.Lock()
		l.records = append([]record(nil), durable...)
		l.synced = len(l.records)
		l.loading = false
		l.mu.Unlock()
	}

	if b.gate != nil && b.gate.deferCompletion(func() {
		finish()
		if onLoaded != nil {
			onLoaded()
		}
	}) {
		return l, false, nil
	}
	finish()
	return l, true, nil
}

// Generations returns the number of synced generations the backend holds.
// Destroyed generations disappear from the count.
func (b *Backend) Generations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.gens)
}

// HasGeneration reports whether the generation named by anchor still holds
// durable state.
func (b *Backend) HasGeneration(anchor []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.gens[string(anchor)]
	return ok
}

// Log is one in-memory generation. It implements lba.Log.
type Log struct {
	backend *Backend
	key     string

	mu        sync.Mutex
	records   []record
	synced    int
	loading   bool
	destroyed bool
}

// Append buffers one entry.
func (l *Log) Append(id lba.BlockID, off lba.Offset) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		panic("memlog: append to destroyed generation")
	}
	l.records = append(l.records, record{id: id, off: off})
}

// Replay calls fn for every entry in append order.
func (l *Log) Replay(fn func(id lba.BlockID, off lba.Offset)) {
	l.mu.Lock()
	if l.loading {
		l.mu.Unlock()
		panic("memlog: replay before load completed")
	}
	records := l.records
	l.mu.Unlock()
	for _, r := range records {
		fn(r.id, r.off)
	}
}

// Sync publishes the buffered entries as the generation's durable snapshot.
// Synchronous without a gate, deferred with one.
func (l *Log) Sync(onDone func()) bool {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		panic("memlog: sync of destroyed generation")
	}
	upto := len(l.records)
	gate := l.backend.gate
	l.mu.Unlock()

	if gate != nil && gate.deferCompletion(func() {
		l.publish(upto)
		if onDone != nil {
			onDone()
		}
	}) {
		return false
	}
	l.publish(upto)
	return true
}

func (l *Log) publish(upto int) {
	l.mu.Lock()
	durable := append([]record(nil), l.records[:upto]...)
	if upto > l.synced {
		l.synced = upto
	}
	destroyed := l.destroyed
	l.mu.Unlock()

	if destroyed {
		// The generation was discarded while this flush sat behind the
		// gate; publishing would resurrect it.
		return
	}
	l.backend.mu.Lock()
	l.backend.gens[l.key] = durable
	l.backend.mu.Unlock()
}

// Anchor names this generation. Load finds it once a Sync has published a
// durable snapshot.
func (l *Log) Anchor() []byte {
	return []byte(l.key)
}

// Destroy discards the generation's durable snapshot.
func (l *Log) Destroy() {
	l.mu.Lock()
	l.destroyed = true
	l.mu.Unlock()

	l.backend.mu.Lock()
	delete(l.backend.gens, l.key)
	l.backend.mu.Unlock()
}

// Shutdown publishes buffered entries and releases nothing further; the
// durable snapshot stays loadable.
func (l *Log) Shutdown() {
	l.mu.Lock()
	upto := len(l.records)
	l.mu.Unlock()
	l.publish(upto)
}

// Gate defers sync and load completions so tests can park state machines
// at suspension points. Hold starts deferring; Release runs everything
// deferred so far, in order, and stops deferring.
type Gate struct {
	mu       sync.Mutex
	holding  bool
	deferred []func()
}

// Hold makes subsequent completions deferred.
func (g *Gate) Hold() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.holding = true
}

// Release stops deferring and runs every deferred completion in order.
func (g *Gate) Release() {
	g.mu.Lock()
	pending := g.deferred
	g.deferred = nil
	g.holding = false
	g.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// Pending returns the number of completions currently deferred.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.deferred)
}

// deferCompletion queues fn if the gate is held, reporting whether it did.
func (g *Gate) deferCompletion(fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.holding {
		return false
	}
	g.deferred = append(g.deferred, fn)
	return true
}

var (
	_ lba.Backend = (*Backend)(nil)
	_ lba.Log     = (*Log)(nil)
)
