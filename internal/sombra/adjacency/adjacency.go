// Package adjacency stores each node's incident edges as a chain of
// fixed-capacity segment pages, in the spirit of the pager package's
// overflow-chain and slotted-page idioms: a node with few edges fits
// entirely in one inline segment, and high-degree nodes grow an
// overflow chain of further segments rather than one unbounded page.
package adjacency

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/sombra/mvcc"
	"github.com/sombradb/sombra/internal/sombra/pager"
	"github.com/sombradb/sombra/internal/sombra/sombraerr"
)

// Direction distinguishes outgoing from incoming edges at a node.
type Direction byte

const (
	Outgoing Direction = 0
	Incoming Direction = 1
)

// Entry is one adjacency-segment slot: the edge and its far endpoint,
// version-stamped so a reader's snapshot can skip edges added or
// removed outside its visibility window.
type Entry struct {
	EdgeID   uint64
	OtherID  uint64 // the node at the far end of the edge
	EdgeType string
	XMin     uint64
	XMax     uint64 // 0 == still live
}

func (e Entry) visibleAt(tst *mvcc.TransactionStatusTable, snapshotCSN uint64) bool {
	return mvcc.IsVisible(tst, mvcc.Version{XMin: e.XMin, XMax: e.XMax}, snapshotCSN)
}

// segNextOff/segCountOff/segBodyOff and segNext/segSetNext are not used
// by List: offsets 32 and 36 are SlottedPage's own SlotCount and
// FreeStart fields. A segment is a plain pager.SlottedPage whose slot 0
// holds the next-segment PageID (see controlSlot below).

const (
	segNextOff  = pager.PageHeaderSize
	segCountOff = segNextOff + 4
	segBodyOff  = segCountOff + 4
)

func segNext(buf []byte) pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(buf[segNextOff:]))
}
func segSetNext(buf []byte, id pager.PageID) {
	binary.LittleEndian.PutUint32(buf[segNextOff:], uint32(id))
}

func marshalEntry(e Entry) []byte {
	buf := make([]byte, 0, 8+8+4+len(e.EdgeType)+8+8)
	buf = appendU64(buf, e.EdgeID)
	buf = appendU64(buf, e.OtherID)
	buf = appendU64(buf, e.XMin)
	buf = appendU64(buf, e.XMax)
	buf = appendLenPrefixed(buf, []byte(e.EdgeType))
	return buf
}

func unmarshalEntry(b []byte) Entry {
	edgeID := binary.LittleEndian.Uint64(b[0:8])
	other := binary.LittleEndian.Uint64(b[8:16])
	xmin := binary.LittleEndian.Uint64(b[16:24])
	xmax := binary.LittleEndian.Uint64(b[24:32])
	typ, _ := readLenPrefixedUnchecked(b[32:])
	return Entry{EdgeID: edgeID, OtherID: other, XMin: xmin, XMax: xmax, EdgeType: string(typ)}
}

func appendU64(dst []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(dst, tmp[:]...)
}

func appendLenPrefixed(dst, data []byte) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(data)))
	dst = append(dst, tmp[:]...)
	return append(dst, data...)
}

func readLenPrefixedUnchecked(src []byte) ([]byte, int) {
	n := binary.LittleEndian.Uint32(src)
	return src[4 : 4+n], 4 + int(n)
}

// Segment layout: one unmodified pager.SlottedPage per page. Slot 0 is
// a reserved control record holding the next segment's PageID as a
// 4-byte little-endian value (InvalidPageID terminates the chain); every
// later slot holds one marshaled Entry.

const controlSlot = 0

func newSegment(buf []byte) *pager.SlottedPage {
	sp := pager.NewSlottedPage(buf)
	if sp.GetRecord(controlSlot) == nil {
		var ctl [4]byte
		binary.LittleEndian.PutUint32(ctl[:], uint32(pager.InvalidPageID))
		sp.InsertRecord(ctl[:])
	}
	return sp
}

func segmentNext(sp *pager.SlottedPage) pager.PageID {
	ctl := sp.GetRecord(controlSlot)
	if ctl == nil {
		return pager.InvalidPageID
	}
	return pager.PageID(binary.LittleEndian.Uint32(ctl))
}

func segmentSetNext(sp *pager.SlottedPage, id pager.PageID) {
	var ctl [4]byte
	binary.LittleEndian.PutUint32(ctl[:], uint32(id))
	sp.UpdateRecord(controlSlot, ctl[:])
}

// List manages the segment chain for one (node, direction) pair.
// Sombra keeps one List per node per direction; entries
// for every edge type share the same chain (EdgeType is carried on the
// Entry) rather than a separate structure per type.
type List struct {
	pa   pager.PageAccessor
	head pager.PageID
	tst  *mvcc.TransactionStatusTable
}

// Open wraps an existing chain head (pager.InvalidPageID means empty).
// tst resolves whether an entry's XMax closer actually committed, so a
// reader never treats a rolled-back delete/update as having happened.
func Open(pa pager.PageAccessor, head pager.PageID, tst *mvcc.TransactionStatusTable) *List {
	return &List{pa: pa, head: head, tst: tst}
}

func (l *List) Head() pager.PageID { return l.head }

// Add appends a new adjacency entry, allocating the first segment if
// the chain is currently empty, or a new overflow segment if the tail
// segment is full.
func (l *List) Add(e Entry) (pager.PageID, error) {
	data := marshalEntry(e)

	if l.head == pager.InvalidPageID {
		id, buf, err := l.pa.AllocPage(pager.PageTypeAdjacencySegment)
		if err != nil {
			return l.head, err
		}
		sp := newSegment(buf)
		if sp.InsertRecord(data) < 0 {
			return l.head, sombraerr.New(sombraerr.LimitExceeded, "adjacency.Add", "entry too large for an empty segment")
		}
		pager.SetPageCRC(buf)
		if err := l.pa.PutPage(id, buf); err != nil {
			return l.head, err
		}
		l.head = id
		return l.head, nil
	}

	id := l.head
	for {
		buf, err := l.pa.GetPage(id)
		if err != nil {
			return l.head, err
		}
		sp := newSegment(buf)
		if sp.InsertRecord(data) >= 0 {
			pager.SetPageCRC(buf)
			return l.head, l.pa.PutPage(id, buf)
		}
		next := segmentNext(sp)
		if next == pager.InvalidPageID {
			newID, newBuf, err := l.pa.AllocPage(pager.PageTypeAdjacencySegment)
			if err != nil {
				return l.head, err
			}
			newSp := newSegment(newBuf)
			if newSp.InsertRecord(data) < 0 {
				return l.head, sombraerr.New(sombraerr.LimitExceeded, "adjacency.Add", "entry too large for an empty segment")
			}
			pager.SetPageCRC(newBuf)
			if err := l.pa.PutPage(newID, newBuf); err != nil {
				return l.head, err
			}
			segmentSetNext(sp, newID)
			pager.SetPageCRC(buf)
			if err := l.pa.PutPage(id, buf); err != nil {
				return l.head, err
			}
			return l.head, nil
		}
		id = next
	}
}

// Remove closes out the entry for edgeID as of xmax. The slot itself
// is left in place (as a version-closed entry, still readable by older
// snapshots) until vacuum compacts the segment.
func (l *List) Remove(edgeID uint64, xmax uint64) error {
	id := l.head
	for id != pager.InvalidPageID {
		buf, err := l.pa.GetPage(id)
		if err != nil {
			return err
		}
		sp := newSegment(buf)
		for _, rec := range sp.LiveRecords() {
			if rec.Slot == controlSlot {
				continue
			}
			e := unmarshalEntry(rec.Data)
			if e.EdgeID == edgeID && e.XMax == 0 {
				e.XMax = xmax
				sp.UpdateRecord(rec.Slot, marshalEntry(e))
				pager.SetPageCRC(buf)
				return l.pa.PutPage(id, buf)
			}
		}
		id = segmentNext(sp)
	}
	return sombraerr.Newf(sombraerr.NotFound, "adjacency.Remove", "edge %d not found in adjacency list", edgeID)
}

// Scan calls fn for every entry visible at snapshotCSN, optionally
// filtered to one edge type (empty string means all types), stopping
// early if fn returns false.
func (l *List) Scan(snapshotCSN uint64, edgeType string, fn func(Entry) bool) error {
	id := l.head
	for id != pager.InvalidPageID {
		buf, err := l.pa.GetPage(id)
		if err != nil {
			return err
		}
		sp := newSegment(buf)
		for _, rec := range sp.LiveRecords() {
			if rec.Slot == controlSlot {
				continue
			}
			e := unmarshalEntry(rec.Data)
			if !e.visibleAt(l.tst, snapshotCSN) {
				continue
			}
			if edgeType != "" && e.EdgeType != edgeType {
				continue
			}
			if !fn(e) {
				return nil
			}
		}
		id = segmentNext(sp)
	}
	return nil
}

// Degree counts entries visible at snapshotCSN, optionally filtered by
// edgeType, optionally deduplicated by OtherID (distinct neighbors).
func (l *List) Degree(snapshotCSN uint64, edgeType string, distinct bool) (int, error) {
	seen := make(map[uint64]bool)
	count := 0
	err := l.Scan(snapshotCSN, edgeType, func(e Entry) bool {
		if distinct {
			if seen[e.OtherID] {
				return true
			}
			seen[e.OtherID] = true
		}
		count++
		return true
	})
	return count, err
}

// VacuumBefore walks the chain and permanently drops entries closed
// before horizonCSN, compacting each segment.
func (l *List) VacuumBefore(horizonCSN uint64) (removed int, err error) {
	id := l.head
	for id != pager.InvalidPageID {
		buf, err := l.pa.GetPage(id)
		if err != nil {
			return removed, err
		}
		sp := newSegment(buf)
		for _, rec := range sp.LiveRecords() {
			if rec.Slot == controlSlot {
				continue
			}
			e := unmarshalEntry(rec.Data)
			if e.XMax != 0 && l.tst.StatusOf(e.XMax) != mvcc.Aborted && e.XMax < horizonCSN {
				sp.DeleteRecord(rec.Slot)
				removed++
			}
		}
		sp.Compact()
		pager.SetPageCRC(buf)
		if err := l.pa.PutPage(id, buf); err != nil {
			return removed, err
		}
		id = segmentNext(sp)
	}
	return removed, nil
}
