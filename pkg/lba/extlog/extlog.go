// Package extlog is the extent-backed durable log behind the block-address
// directory. One Log is one on-disk generation: fixed-size records packed
// into extents handed out by a shared allocator, flushed by a background
// worker and located on restart through an opaque anchor.
//
// Record format (24 bytes, little-endian):
//
//	Checksum: uint64 — xxhash over generation id + id + offset
//	BlockID:  uint64
//	Offset:   uint64 (two's complement; all-ones is the tombstone)
//
// Anchor format (little-endian):
//
//	Magic:       "LBAN" (4 bytes)
//	Version:     uint16
//	Extent size: int64
//	Generation:  UUID (16 bytes)
//	Count:       uint64 — durable record count
//	Extents:     uint32 count, then one int64 offset each
//
// The checksum is salted with the generation id so records left behind by a
// destroyed generation in a recycled extent never verify.
package extlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/marmos91/lbalog/internal/logger"
	"github.com/marmos91/lbalog/pkg/bufpool"
	"github.com/marmos91/lbalog/pkg/extent"
	"github.com/marmos91/lbalog/pkg/lba"
)

const (
	anchorMagic   = "LBAN"
	anchorVersion = uint16(1)
	recordSize    = 24
	anchorFixed   = 4 + 2 + 8 + 16 + 8 + 4
)

// Anchor parse errors.
var (
	ErrBadAnchor       = errors.New("malformed anchor")
	ErrVersionMismatch = errors.New("anchor version mismatch")
)

// Backend creates and loads extent-backed log generations over one
// allocator. It implements lba.Backend.
type Backend struct {
	alloc *extent.Allocator
	bufs  *bufpool.Pool // flush buffers, shared across generations
}

// New returns a backend over the given allocator.
func New(alloc *extent.Allocator) *Backend {
	return &Backend{
		alloc: alloc,
		bufs:  bufpool.New(int(alloc.ExtentSize())),
	}
}

// Create synchronously creates a new, empty generation. Extents are
// allocated lazily, on first flush.
func (b *Backend) Create() (lba.Log, error) {
	l := newLog(b.alloc, b.bufs, uuid.New())
	logger.Debug("Log generation created", logger.KeyGeneration, l.gen)
	return l, nil
}

// Load reconstructs a generation from its anchor. Anchor validation and
// extent reservation happen synchronously; the record read itself runs on a
// background goroutine, so Load always takes the asynchronous path of the
// load contract when the anchor is accepted.
func (b *Backend) Load(anchor []byte, onLoaded func()) (lba.Log, bool, error) {
	gen, count, extents, err := parseAnchor(anchor, b.alloc.ExtentSize())
	if err != nil {
		return nil, false, err
	}

	per := uint64(b.alloc.ExtentSize() / recordSize)
	if need := (count + per - 1) / per; uint64(len(extents)) < need {
		return nil, false, fmt.Errorf("%w: %d extents cannot hold %d records", ErrBadAnchor, len(extents), count)
	}
	for _, off := range extents {
		if err := b.alloc.Reserve(off); err != nil {
			return nil, false, fmt.Errorf("reserve extent: %w", err)
		}
	}

	l := newLog(b.alloc, b.bufs, gen)
	l.extents = extents
	go l.load(count, onLoaded)
	return l, false, nil
}

type record struct {
	id  lba.BlockID
	off lba.Offset
}

// Log is one on-disk generation. It implements lba.Log.
type Log struct {
	alloc *extent.Allocator
	bufs  *bufpool.Pool
	gen   uuid.UUID

	mu        sync.Mutex
	extents   []int64
	entries   []record // full logical sequence, loaded plus appended
	synced    int      // records durable on disk
	destroyed bool

	flushes    chan flushRequest
	workerDone chan struct{}
}

type flushRequest struct {
	upto   int
	onDone func()
}

func newLog(alloc *extent.Allocator, bufs *bufpool.Pool, gen uuid.UUID) *Log {
	l := &Log{
		alloc:      alloc,
		bufs:       bufs,
		gen:        gen,
		flushes:    make(chan flushRequest, 16),
		workerDone: make(chan struct{}),
	}
	go l.worker()
	return l
}

// Append buffers one entry. Not durable until the next Sync completes.
func (l *Log) Append(id lba.BlockID, off lba.Offset) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		panic("extlog: append to destroyed generation")
	}
	l.entries = append(l.entries, record{id: id, off: off})
}

// Replay calls fn for every entry in append order. Valid once the
// generation has been created or fully loaded.
func (l *Log) Replay(fn func(id lba.BlockID, off lba.Offset)) {
	l.mu.Lock()
	entries := l.entries
	l.mu.Unlock()
	for _, r := range entries {
		fn(r.id, r.off)
	}
}

// Sync flushes buffered entries. Returns true when there is nothing to
// flush; otherwise the background worker writes and fdatasyncs the data
// file and invokes onDone exactly once.
func (l *Log) Sync(onDone func()) bool {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		panic("extlog: sync of destroyed generation")
	}
	upto := len(l.entries)
	if upto == l.synced {
		l.mu.Unlock()
		return true
	}
	l.mu.Unlock()

	l.flushes <- flushRequest{upto: upto, onDone: onDone}
	return false
}

// Anchor serializes the durable pointer for this generation. It covers only
// records already flushed, so it is meaningful after a completed Sync.
func (l *Log) Anchor() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf := make([]byte, anchorFixed+8*len(l.extents))
	copy(buf[0:4], anchorMagic)
	binary.LittleEndian.PutUint16(buf[4:6], anchorVersion)
	binary.LittleEndian.PutUint64(buf[6:14], uint64(l.alloc.ExtentSize()))
	copy(buf[14:30], l.gen[:])
	binary.LittleEndian.PutUint64(buf[30:38], uint64(l.synced))
	binary.LittleEndian.PutUint32(buf[38:42], uint32(len(l.extents)))
	for i, off := range l.extents {
		binary.LittleEndian.PutUint64(buf[42+8*i:], uint64(off))
	}
	return buf
}

// Destroy releases the generation's extents. Fire-and-forget: the extents
// return to the allocator once the flush worker has drained.
func (l *Log) Destroy() {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return
	}
	l.destroyed = true
	extents := l.extents
	l.mu.Unlock()

	close(l.flushes)
	go func() {
		<-l.workerDone
		for _, off := range extents {
			l.alloc.Free(off)
		}
		logger.Debug("Log generation destroyed",
			logger.KeyGeneration, l.gen,
			logger.KeyExtents, len(extents))
	}()
}

// Shutdown flushes buffered entries and stops the worker, keeping the
// durable storage intact.
func (l *Log) Shutdown() {
	done := make(chan struct{})
	if !l.Sync(func() { close(done) }) {
		<-done
	}

	l.mu.Lock()
	l.destroyed = true
	l.mu.Unlock()
	close(l.flushes)
	<-l.workerDone
}

// worker serializes flushes for this generation. I/O failures are fatal:
// the directory above performs no retries and has no error path for them.
func (l *Log) worker() {
	defer close(l.workerDone)
	for req := range l.flushes {
		if err := l.flush(req.upto); err != nil {
			logger.Error("Log flush failed", logger.KeyGeneration, l.gen, logger.KeyError, err)
			panic(fmt.Sprintf("extlog: flush: %v", err))
		}
		if req.onDone != nil {
			req.onDone()
		}
	}
}

// flush writes records [synced, upto) into extents, allocating new extents
// as needed, and fdatasyncs the data file.
func (l *Log) flush(upto int) error {
	l.mu.Lock()
	from := l.synced
	entries := l.entries[:upto]
	l.mu.Unlock()
	if upto <= from {
		return nil
	}

	per := int(l.alloc.ExtentSize() / recordSize)
	file := l.alloc.File()

	for i := from; i < upto; {
		ei := i / per
		if err := l.ensureExtent(ei); err != nil {
			return err
		}

		// Batch everything that lands in the same extent.
		end := min(upto, (ei+1)*per)
		buf := l.bufs.Get((end - i) * recordSize)
		for j := i; j < end; j++ {
			l.marshalRecord(buf[(j-i)*recordSize:], entries[j])
		}

		l.mu.Lock()
		pos := l.extents[ei] + int64(i%per)*recordSize
		l.mu.Unlock()
		_, err := file.WriteAt(buf, pos)
		l.bufs.Put(buf)
		if err != nil {
			return fmt.Errorf("write records: %w", err)
		}
		i = end
	}

	if err := unix.Fdatasync(int(file.Fd())); err != nil {
		return fmt.Errorf("fdatasync: %w", err)
	}

	l.mu.Lock()
	if upto > l.synced {
		l.synced = upto
	}
	l.mu.Unlock()
	return nil
}

// ensureExtent makes sure extent index ei is allocated.
func (l *Log) ensureExtent(ei int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.extents) <= ei {
		off, err := l.alloc.Alloc()
		if err != nil {
			return fmt.Errorf("allocate extent: %w", err)
		}
		l.extents = append(l.extents, off)
	}
	return nil
}

// load reads count records back from the extents and signals completion.
// Corruption or read failure is fatal, matching the flush path.
func (l *Log) load(count uint64, onLoaded func()) {
	per := uint64(l.alloc.ExtentSize() / recordSize)
	file := l.alloc.File()

	entries := make([]record, 0, count)
	buf := make([]byte, recordSize)
	for i := uint64(0); i < count; i++ {
		pos := l.extents[i/per] + int64(i%per)*recordSize
		if _, err := file.ReadAt(buf, pos); err != nil {
			panic(fmt.Sprintf("extlog: read record %d: %v", i, err))
		}
		r, ok := l.unmarshalRecord(buf)
		if !ok {
			panic(fmt.Sprintf("extlog: record %d of generation %s is corrupt", i, l.gen))
		}
		entries = append(entries, r)
	}

	l.mu.Lock()
	l.entries = entries
	l.synced = int(count)
	l.mu.Unlock()

	logger.Info("Log generation loaded",
		logger.KeyGeneration, l.gen,
		logger.KeyEntries, count,
		logger.KeyExtents, len(l.extents))

	if onLoaded != nil {
		onLoaded()
	}
}

func (l *Log) marshalRecord(buf []byte, r record) {
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.id))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(r.off))
	binary.LittleEndian.PutUint64(buf[0:8], l.checksum(buf[8:24]))
}

func (l *Log) unmarshalRecord(buf []byte) (record, bool) {
	if binary.LittleEndian.Uint64(buf[0:8]) != l.checksum(buf[8:24]) {
		return record{}, false
	}
	return record{
		id:  lba.BlockID(binary.LittleEndian.Uint64(buf[8:16])),
		off: lba.Offset(binary.LittleEndian.Uint64(buf[16:24])),
	}, true
}

func (l *Log) checksum(payload []byte) uint64 {
	h := xxhash.New()
	h.Write(l.gen[:])
	h.Write(payload)
	return h.Sum64()
}

// parseAnchor validates and decodes an anchor produced by Anchor.
func parseAnchor(anchor []byte, extentSize int64) (uuid.UUID, uint64, []int64, error) {
	if len(anchor) < anchorFixed || string(anchor[0:4]) != anchorMagic {
		return uuid.UUID{}, 0, nil, ErrBadAnchor
	}
	if v := binary.LittleEndian.Uint16(anchor[4:6]); v != anchorVersion {
		return uuid.UUID{}, 0, nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, v, anchorVersion)
	}
	if es := int64(binary.LittleEndian.Uint64(anchor[6:14])); es != extentSize {
		return uuid.UUID{}, 0, nil, fmt.Errorf("%w: extent size %d, allocator uses %d", ErrBadAnchor, es, extentSize)
	}

	var gen uuid.UUID
	copy(gen[:], anchor[14:30])
	count := binary.LittleEndian.Uint64(anchor[30:38])
	n := binary.LittleEndian.Uint32(anchor[38:42])
	if len(anchor) != anchorFixed+8*int(n) {
		return uuid.UUID{}, 0, nil, ErrBadAnchor
	}
	extents := make([]int64, n)
	for i := range extents {
		extents[i] = int64(binary.LittleEndian.Uint64(anchor[42+8*i:]))
	}
	return gen, count, extents, nil
}

var (
	_ lba.Backend = (*Backend)(nil)
	_ lba.Log     = (*Log)(nil)
)
