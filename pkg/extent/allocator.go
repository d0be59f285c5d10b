// Package extent manages the raw disk regions backing the block-address
// log. An Allocator hands out fixed-size extents inside a single data file,
// growing the file as needed and recycling freed extents through an
// in-memory free list.
//
// The allocator persists nothing about itself: which extents are live is
// recorded by the anchors of the log generations using them, and rebuilt at
// load time through Reserve. Everything else in the file is reusable.
package extent

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// DefaultExtentSize is the default size of one extent.
const DefaultExtentSize = 64 * 1024

// ErrMisaligned is returned when an extent offset is not a multiple of the
// extent size.
var ErrMisaligned = fmt.Errorf("extent offset misaligned")

// Allocator hands out extents inside one data file. Safe for concurrent use.
type Allocator struct {
	mu         sync.Mutex
	file       *os.File
	extentSize int64
	fileSize   int64   // current file size, always a multiple of extentSize
	free       []int64 // reusable extent offsets, sorted ascending
	used       map[int64]bool
}

// Open opens (or creates) the data file at path and returns an allocator
// over it. All extents in an existing file start out free; callers reserve
// the live ones while replaying anchors.
func Open(path string, extentSize int64) (*Allocator, error) {
	if extentSize <= 0 {
		extentSize = DefaultExtentSize
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat data file: %w", err)
	}

	a := &Allocator{
		file:       f,
		extentSize: extentSize,
		fileSize:   info.Size() - info.Size()%extentSize,
		used:       map[int64]bool{},
	}
	for off := int64(0); off < a.fileSize; off += extentSize {
		a.free = append(a.free, off)
	}
	return a, nil
}

// ExtentSize returns the fixed size of every extent.
func (a *Allocator) ExtentSize() int64 {
	return a.extentSize
}

// File exposes the underlying data file for positioned reads and writes.
// Callers must stay inside extents they own.
func (a *Allocator) File() *os.File {
	return a.file
}

// Alloc returns the offset of a fresh extent, reusing a freed one when
// possible and growing the file otherwise.
func (a *Allocator) Alloc() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.free); n > 0 {
		off := a.free[0]
		a.free = a.free[1:]
		a.used[off] = true
		return off, nil
	}

	off := a.fileSize
	if err := a.file.Truncate(off + a.extentSize); err != nil {
		return 0, fmt.Errorf("grow data file: %w", err)
	}
	a.fileSize = off + a.extentSize
	a.used[off] = true
	return off, nil
}

// Free returns an extent to the allocator for reuse. Freeing an extent that
// is not allocated is a contract violation and panics.
func (a *Allocator) Free(off int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.used[off] {
		panic(fmt.Sprintf("extent: freeing unallocated extent at %d", off))
	}
	delete(a.used, off)
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i] >= off })
	a.free = append(a.free, 0)
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = off
}

// Reserve marks an extent as in use during anchor replay. The extent must
// lie inside the file and must not already be reserved.
func (a *Allocator) Reserve(off int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if off%a.extentSize != 0 {
		return fmt.Errorf("%w: %d", ErrMisaligned, off)
	}
	if off < 0 || off >= a.fileSize {
		return fmt.Errorf("extent %d outside data file (size %d)", off, a.fileSize)
	}
	if a.used[off] {
		return fmt.Errorf("extent %d reserved twice", off)
	}
	for i, f := range a.free {
		if f == off {
			a.free = append(a.free[:i], a.free[i+1:]...)
			break
		}
	}
	a.used[off] = true
	return nil
}

// InUse returns the number of allocated extents.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.used)
}

// Close closes the underlying data file. Extents handed out before Close
// must no longer be touched.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("close data file: %w", err)
	}
	return nil
}
