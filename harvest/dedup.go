package harvest

// DedupTracker remembers which node ids have been emitted during one
// harvest. It is never persisted.
type DedupTracker struct {
	seen  map[string]struct{}
	above map[string]struct{}
}

// NewDedupTracker creates an empty tracker.
func NewDedupTracker() *DedupTracker {
	return &DedupTracker{
		seen:  make(map[string]struct{}),
		above: make(map[string]struct{}),
	}
}

// IsNew reports whether id has not been marked seen.
func (d *DedupTracker) IsNew(id string) bool {
	_, ok := d.seen[id]
	return !ok
}

// MarkSeen records id as emitted. Marking twice is a no-op.
func (d *DedupTracker) MarkSeen(id string) {
	d.seen[id] = struct{}{}
}

// NoteAboveWindow records that id was observed newer than the window and
// reports whether this is the first such observation. It does not affect
// IsNew, so the node is still evaluated on later rounds.
func (d *DedupTracker) NoteAboveWindow(id string) bool {
	if _, ok := d.above[id]; ok {
		return false
	}
	d.above[id] = struct{}{}
	return true
}

// Len returns the number of ids marked seen.
func (d *DedupTracker) Len() int {
	return len(d.seen)
}
