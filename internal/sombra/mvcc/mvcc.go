// Package mvcc implements Sombra's snapshot-isolation bookkeeping: a
// transaction status table keyed by commit-sequence number, and the
// visibility test every record/posting/adjacency-entry lookup runs
// against it. The xmin/xmax + commit-log visibility algorithm is
// generalized from per-row transactions to per-version CSN ranges to
// match Sombra's single-writer model (there is never more than one
// in-flight write transaction, so a CSN is reserved once, when the write
// transaction begins, and stamped directly on every version it writes
// rather than tracked across a write set).
package mvcc

import "sync"

// Status is the recorded outcome of a commit-sequence number. Because
// Sombra serializes writers, there is no InProgress state: the single
// in-flight writer's CSN is above every open reader snapshot, so the
// XMin bound in IsVisible already hides its versions. Aborted lets
// IsVisible hide versions created by, and ignore closes made by, a
// transaction that rolled back.
type Status int

const (
	Committed Status = iota
	Aborted
)

// TransactionStatusTable tracks, for every CSN ever handed out,
// whether the transaction that used it committed or aborted, and the
// set of snapshot CSNs currently held open by readers (the vacuum
// horizon cannot advance past the oldest of these).
type TransactionStatusTable struct {
	mu          sync.Mutex
	status      map[uint64]Status
	openSnaps   map[uint64]int // snapshotCSN -> number of readers holding it
	lastCommit  uint64
}

func NewTST() *TransactionStatusTable {
	return &TransactionStatusTable{
		status:    make(map[uint64]Status),
		openSnaps: make(map[uint64]int),
	}
}

// RecordCommit marks csn as committed and advances lastCommit.
func (t *TransactionStatusTable) RecordCommit(csn uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status[csn] = Committed
	if csn > t.lastCommit {
		t.lastCommit = csn
	}
}

// RecordAbort marks csn as aborted — IsVisible never shows a version
// stamped with it as XMin and ignores it as an XMax. The vacuum routines
// keep entries whose XMax aborted; none of them removes a version
// because its XMin aborted.
func (t *TransactionStatusTable) RecordAbort(csn uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status[csn] = Aborted
}

// StatusOf reports the recorded status of csn. A CSN with no entry is
// treated as Committed. The table lives in memory and starts empty, so
// CSNs from before this process opened the database have no entry. The
// in-flight writer's CSN has no entry until Commit or Rollback either,
// but it is above every open reader snapshot, so IsVisible's XMin bound
// hides the versions it stamps until it commits.
func (t *TransactionStatusTable) StatusOf(csn uint64) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.status[csn]; ok {
		return s
	}
	return Committed
}

// OpenSnapshot registers a reader beginning a read transaction at the
// database's current LastCommittedCSN, returning that snapshot CSN.
func (t *TransactionStatusTable) OpenSnapshot(currentCSN uint64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openSnaps[currentCSN]++
	return currentCSN
}

// CloseSnapshot releases a reader's hold on snapshotCSN.
func (t *TransactionStatusTable) CloseSnapshot(snapshotCSN uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := t.openSnaps[snapshotCSN]; n <= 1 {
		delete(t.openSnaps, snapshotCSN)
	} else {
		t.openSnaps[snapshotCSN] = n - 1
	}
}

// VacuumHorizon returns the oldest snapshot CSN any reader still holds,
// or the current commit CSN if there are no open readers — versions
// closed (XMax) strictly before this value can never be observed again
// and are safe for vacuum to reclaim.
func (t *TransactionStatusTable) VacuumHorizon(currentCSN uint64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	horizon := currentCSN
	for snap := range t.openSnaps {
		if snap < horizon {
			horizon = snap
		}
	}
	return horizon
}

// Version is the minimal shape mvcc needs from a stored entity version
// to judge visibility — record.RawVersion, adjacency.Entry, and the
// sindex posting types each satisfy this by projecting their XMin/XMax.
type Version struct {
	XMin uint64
	XMax uint64
}

// IsVisible implements Sombra's snapshot-isolation read rule: a
// version is visible to a transaction reading at snapshotCSN if it was
// created at or before the snapshot, its creator committed, and it was
// either never closed, closed by a transaction that aborted, or closed
// strictly after the snapshot (so a reader never sees a delete/update
// that happened after it took its snapshot, matching repeatable-read
// semantics — Non-goals exclude anything stronger). A closer that
// aborted never happened, so the version it tried to close stays
// visible regardless of how far CSNs advance afterward.
func IsVisible(tst *TransactionStatusTable, v Version, snapshotCSN uint64) bool {
	if v.XMin > snapshotCSN {
		return false
	}
	if tst.StatusOf(v.XMin) == Aborted {
		return false
	}
	if v.XMax != 0 && tst.StatusOf(v.XMax) != Aborted && v.XMax <= snapshotCSN {
		return false
	}
	return true
}

// VisibleVersion walks a version chain (oldest-superseding-newest
// order is reversed by callers — Sombra's record.Store.Chain returns
// newest first) and returns the first entry visible at snapshotCSN.
func VisibleVersion[T any](tst *TransactionStatusTable, versions []T, project func(T) Version, snapshotCSN uint64) (T, bool) {
	for _, v := range versions {
		if IsVisible(tst, project(v), snapshotCSN) {
			return v, true
		}
	}
	var zero T
	return zero, false
}
