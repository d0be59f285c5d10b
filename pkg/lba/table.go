package lba

// OffsetTable is the in-memory, authoritative id → offset mapping.
//
// Ids are dense, so the table is a flat slice indexed by id. The table is
// always at least as current as the durable log: SetOffset/Delete on the
// directory update it before the corresponding log append is issued, which
// is what makes compaction's copy step safe against concurrent writes.
//
// The table performs no I/O and has exactly one owner (the directory);
// callers must not mutate it concurrently.
type OffsetTable struct {
	offsets []Offset
	live    int
}

// NewOffsetTable returns an empty table.
func NewOffsetTable() *OffsetTable {
	return &OffsetTable{}
}

// RebuildOffsetTable reconstructs a table by replaying a loaded log
// generation. Later entries for the same id supersede earlier ones.
func RebuildOffsetTable(log Log) *OffsetTable {
	t := NewOffsetTable()
	log.Replay(func(id BlockID, off Offset) {
		t.Set(id, off)
	})
	return t
}

// GenID returns a fresh, previously unused block id. The new id starts out
// as a tombstone until its offset is set.
func (t *OffsetTable) GenID() BlockID {
	id := BlockID(len(t.offsets))
	t.offsets = append(t.offsets, Tombstone)
	return id
}

// MaxID returns the exclusive upper bound of assigned ids. Compaction walks
// [0, MaxID).
func (t *OffsetTable) MaxID() BlockID {
	return BlockID(len(t.offsets))
}

// Get returns the current offset for id, or Tombstone if the id has been
// deleted or never assigned.
func (t *OffsetTable) Get(id BlockID) Offset {
	if id >= BlockID(len(t.offsets)) {
		return Tombstone
	}
	return t.offsets[id]
}

// Set records off as the current offset for id, growing the table if the id
// comes from a replayed log rather than GenID.
func (t *OffsetTable) Set(id BlockID, off Offset) {
	for id >= BlockID(len(t.offsets)) {
		t.offsets = append(t.offsets, Tombstone)
	}
	was, is := !t.offsets[id].IsTombstone(), !off.IsTombstone()
	t.offsets[id] = off
	switch {
	case is && !was:
		t.live++
	case was && !is:
		t.live--
	}
}

// Delete marks id as deleted.
func (t *OffsetTable) Delete(id BlockID) {
	t.Set(id, Tombstone)
}

// Live returns the number of ids currently mapped to a valid offset.
func (t *OffsetTable) Live() int {
	return t.live
}

// Tombstones returns the number of assigned ids currently deleted.
func (t *OffsetTable) Tombstones() int {
	return len(t.offsets) - t.live
}
