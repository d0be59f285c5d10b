package extent

import (
	"os"
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T, size int64) *Allocator {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "lba.dat"), size)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAllocator_GrowsFile(t *testing.T) {
	a := openTemp(t, 4096)

	first, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	second, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if first != 0 || second != 4096 {
		t.Fatalf("extents at %d,%d, want 0,4096", first, second)
	}

	info, err := a.File().Stat()
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 8192 {
		t.Fatalf("file size = %d, want 8192", info.Size())
	}
	if a.InUse() != 2 {
		t.Fatalf("InUse = %d, want 2", a.InUse())
	}
}

func TestAllocator_ReusesFreedExtents(t *testing.T) {
	a := openTemp(t, 4096)

	first, _ := a.Alloc()
	second, _ := a.Alloc()
	a.Free(first)

	again, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if again != first {
		t.Fatalf("expected freed extent %d to be reused, got %d", first, again)
	}
	_ = second
}

func TestAllocator_FreeUnallocatedPanics(t *testing.T) {
	a := openTemp(t, 4096)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on freeing an unallocated extent")
		}
	}()
	a.Free(0)
}

func TestAllocator_Reserve(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lba.dat")

	a, err := Open(path, 4096)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := a.Alloc(); err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if _, err := a.Alloc(); err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopen: everything starts free, anchors re-reserve what is live.
	a, err = Open(path, 4096)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer a.Close()

	if err := a.Reserve(4096); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := a.Reserve(4096); err == nil {
		t.Fatal("double Reserve should fail")
	}
	if err := a.Reserve(123); err == nil {
		t.Fatal("misaligned Reserve should fail")
	}
	if err := a.Reserve(1 << 30); err == nil {
		t.Fatal("Reserve outside the file should fail")
	}

	// The reserved extent must not be handed out again.
	off, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if off == 4096 {
		t.Fatal("Alloc returned a reserved extent")
	}
}

func TestAllocator_TruncatedFileRoundsDown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lba.dat")
	if err := os.WriteFile(path, make([]byte, 5000), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	a, err := Open(path, 4096)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer a.Close()

	// Only the complete extent is usable; the trailing partial region is
	// reclaimed by the next growth.
	if err := a.Reserve(0); err != nil {
		t.Fatalf("Reserve of complete extent failed: %v", err)
	}
	if err := a.Reserve(4096); err == nil {
		t.Fatal("partial trailing extent should not be reservable")
	}
}
