package extlog_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/lbalog/pkg/extent"
	"github.com/marmos91/lbalog/pkg/lba"
	"github.com/marmos91/lbalog/pkg/lba/extlog"
)

// openDir opens (or creates) a directory over the data file at path,
// recovering from anchor when one is given, and blocks until ready.
func openDir(t *testing.T, path string, extentSize int64, anchor []byte) (*lba.Directory, *extent.Allocator) {
	t.Helper()
	alloc, err := extent.Open(path, extentSize)
	require.NoError(t, err)

	dir := lba.New(extlog.New(alloc), lba.WithGCPolicy(lba.NeverCompact))
	if anchor == nil {
		require.NoError(t, dir.Start())
		return dir, alloc
	}

	ready := make(chan struct{})
	done, err := dir.Recover(anchor, func() { close(ready) })
	require.NoError(t, err)
	if !done {
		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			t.Fatal("recovery did not complete")
		}
	}
	return dir, alloc
}

// syncWait drives one sync to completion.
func syncWait(t *testing.T, dir *lba.Directory) {
	t.Helper()
	done := make(chan struct{})
	if dir.Sync(func() { close(done) }) {
		return
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sync did not complete")
	}
}

func TestDurabilityAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lba.dat")

	dir, alloc := openDir(t, path, 4096, nil)
	id := dir.GenBlockID()
	require.Equal(t, lba.BlockID(0), id)
	dir.SetBlockOffset(id, 100)
	syncWait(t, dir)
	anchor := dir.Anchor()
	dir.Shutdown()
	require.NoError(t, alloc.Close())

	restored, alloc := openDir(t, path, 4096, anchor)
	defer alloc.Close()
	assert.Equal(t, lba.Offset(100), restored.BlockOffset(0))
	restored.Shutdown()
}

func TestDeleteSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lba.dat")

	dir, alloc := openDir(t, path, 4096, nil)
	for i := 0; i < 6; i++ {
		dir.GenBlockID()
	}
	dir.SetBlockOffset(5, 50)
	dir.DeleteBlock(5)
	syncWait(t, dir)
	anchor := dir.Anchor()
	dir.Shutdown()
	require.NoError(t, alloc.Close())

	restored, alloc := openDir(t, path, 4096, anchor)
	defer alloc.Close()
	assert.True(t, restored.BlockOffset(5).IsTombstone(), "delete lost across restart: got %d", restored.BlockOffset(5))
	restored.Shutdown()
}

func TestGCThousandBlocksAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lba.dat")

	// A small extent forces both generations across many extents.
	dir, alloc := openDir(t, path, 480, nil)
	for i := 0; i < 1000; i++ {
		id := dir.GenBlockID()
		dir.SetBlockOffset(id, lba.Offset(i))
		dir.SetBlockOffset(id, lba.Offset(10000+i)) // supersede
	}
	dir.GC()
	syncWait(t, dir)
	anchor := dir.Anchor()
	dir.Shutdown()
	require.NoError(t, alloc.Close())

	restored, alloc := openDir(t, path, 480, anchor)
	defer alloc.Close()
	require.Equal(t, lba.BlockID(1000), restored.MaxBlockID())
	for i := 0; i < 1000; i++ {
		require.Equal(t, lba.Offset(10000+i), restored.BlockOffset(lba.BlockID(i)), "block %d", i)
	}
	restored.Shutdown()
}

func TestGCReleasesOldExtents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lba.dat")

	dir, alloc := openDir(t, path, 480, nil)
	defer alloc.Close()
	for i := 0; i < 1000; i++ {
		id := dir.GenBlockID()
		for j := 0; j < 5; j++ {
			dir.SetBlockOffset(id, lba.Offset(i+j))
		}
	}
	syncWait(t, dir)
	before := alloc.InUse()

	dir.GC()
	syncWait(t, dir)

	// The old generation's extents come back asynchronously once its
	// flush worker drains.
	require.Eventually(t, func() bool {
		return alloc.InUse() < before
	}, 5*time.Second, 10*time.Millisecond, "compaction never released the old generation's extents")
	dir.Shutdown()
}

func TestCompactedAnchorIsSmaller(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lba.dat")

	dir, alloc := openDir(t, path, 480, nil)
	defer alloc.Close()
	id := dir.GenBlockID()
	for i := 0; i < 5000; i++ {
		dir.SetBlockOffset(id, lba.Offset(i))
	}
	syncWait(t, dir)
	fat := len(dir.Anchor())

	dir.GC()
	syncWait(t, dir)
	thin := len(dir.Anchor())

	assert.Less(t, thin, fat, "compaction should shrink the extent list")
	dir.Shutdown()
}

func TestOverlappingSyncs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lba.dat")

	dir, alloc := openDir(t, path, 4096, nil)
	defer alloc.Close()
	id := dir.GenBlockID()
	dir.SetBlockOffset(id, 100)

	first := make(chan struct{})
	second := make(chan struct{})
	d1 := dir.Sync(func() { close(first) })
	dir.SetBlockOffset(id, 200)
	d2 := dir.Sync(func() { close(second) })

	if !d1 {
		select {
		case <-first:
		case <-time.After(5 * time.Second):
			t.Fatal("first sync did not complete")
		}
	}
	if !d2 {
		select {
		case <-second:
		case <-time.After(5 * time.Second):
			t.Fatal("second sync did not complete")
		}
	}
	dir.Shutdown()
}

func TestEmptyDirectoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lba.dat")

	dir, alloc := openDir(t, path, 4096, nil)
	syncWait(t, dir)
	anchor := dir.Anchor()
	dir.Shutdown()
	require.NoError(t, alloc.Close())

	restored, alloc := openDir(t, path, 4096, anchor)
	defer alloc.Close()
	assert.Equal(t, lba.BlockID(0), restored.MaxBlockID())
	restored.Shutdown()
}
