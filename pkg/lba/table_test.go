package lba

import "testing"

func TestOffsetTable_GenIDMonotonic(t *testing.T) {
	tab := NewOffsetTable()

	seen := map[BlockID]bool{}
	for i := 0; i < 1000; i++ {
		id := tab.GenID()
		if seen[id] {
			t.Fatalf("id %d returned twice", id)
		}
		seen[id] = true
		if id != BlockID(i) {
			t.Fatalf("ids not dense: got %d at step %d", id, i)
		}
	}
	if tab.MaxID() != 1000 {
		t.Fatalf("MaxID = %d, want 1000", tab.MaxID())
	}
}

func TestOffsetTable_SetGetDelete(t *testing.T) {
	tab := NewOffsetTable()

	id := tab.GenID()
	if !tab.Get(id).IsTombstone() {
		t.Fatal("fresh id should start as tombstone")
	}

	tab.Set(id, 4096)
	if got := tab.Get(id); got != 4096 {
		t.Fatalf("Get = %d, want 4096", got)
	}
	if tab.Live() != 1 {
		t.Fatalf("Live = %d, want 1", tab.Live())
	}

	tab.Delete(id)
	if !tab.Get(id).IsTombstone() {
		t.Fatal("deleted id should read as tombstone")
	}
	if tab.Live() != 0 || tab.Tombstones() != 1 {
		t.Fatalf("Live/Tombstones = %d/%d, want 0/1", tab.Live(), tab.Tombstones())
	}
}

func TestOffsetTable_TombstoneDistinct(t *testing.T) {
	// The sentinel must never collide with an offset stored for a live
	// block; offsets are non-negative by contract.
	if Offset(0).IsTombstone() {
		t.Fatal("offset 0 must be a valid offset")
	}
	if !Tombstone.IsTombstone() {
		t.Fatal("Tombstone must report itself")
	}
}

func TestOffsetTable_ReplayedIDsGrowTable(t *testing.T) {
	tab := NewOffsetTable()

	// Replay can hand the table ids it never generated.
	tab.Set(7, 128)
	if tab.MaxID() != 8 {
		t.Fatalf("MaxID = %d, want 8", tab.MaxID())
	}
	for id := BlockID(0); id < 7; id++ {
		if !tab.Get(id).IsTombstone() {
			t.Fatalf("gap id %d should be tombstone", id)
		}
	}

	// Fresh ids continue above the replayed ones.
	if id := tab.GenID(); id != 8 {
		t.Fatalf("GenID after replay = %d, want 8", id)
	}
}

func TestOffsetTable_GetUnknownID(t *testing.T) {
	tab := NewOffsetTable()
	if !tab.Get(42).IsTombstone() {
		t.Fatal("unknown id should read as tombstone")
	}
}
