package pager

import "encoding/binary"

// On-disk node layout for the generic ordered B+Tree shared by the
// primary index (pindex) and the secondary label/property indexes
// (sindex). Internal and leaf nodes share a slotted body; the common
// header fields below sit just after the page header and before that
// body's own slot directory (btreeBody, not SlottedPage).
//
//  Offset  Size  Field
//  32      1     IsLeaf       bool (0/1)
//  33      3     (pad)
//  36      4     KeyCount     uint32
//  40      4     RightChild / NextLeaf   PageID (internal: rightmost child;
//                                                 leaf: next leaf in key order)
//  44      4     PrevLeaf     PageID (leaf only; InvalidPageID for internal)
//  48      ...   btreeBody: SlotCount, FreeStart, slot directory + records

const (
	btIsLeafOff     = PageHeaderSize
	btKeyCountOff   = btIsLeafOff + 4
	btRightChildOff = btKeyCountOff + 4
	btPrevLeafOff   = btRightChildOff + 4
	btBodyOff       = btPrevLeafOff + 4
)

func btreeIsLeaf(buf []byte) bool   { return buf[btIsLeafOff] != 0 }
func btreeSetLeaf(buf []byte, v bool) {
	if v {
		buf[btIsLeafOff] = 1
	} else {
		buf[btIsLeafOff] = 0
	}
}

func btreeKeyCount(buf []byte) int { return int(binary.LittleEndian.Uint32(buf[btKeyCountOff:])) }
func btreeSetKeyCount(buf []byte, n int) {
	binary.LittleEndian.PutUint32(buf[btKeyCountOff:], uint32(n))
}

func btreeRightChild(buf []byte) PageID {
	return PageID(binary.LittleEndian.Uint32(buf[btRightChildOff:]))
}
func btreeSetRightChild(buf []byte, id PageID) {
	binary.LittleEndian.PutUint32(buf[btRightChildOff:], uint32(id))
}

// NextLeaf/PrevLeaf alias the same storage as RightChild for leaves,
// giving every leaf page a sibling pointer for in-order range scans.
func btreeNextLeaf(buf []byte) PageID  { return btreeRightChild(buf) }
func btreeSetNextLeaf(buf []byte, id PageID) { btreeSetRightChild(buf, id) }
func btreePrevLeaf(buf []byte) PageID  { return PageID(binary.LittleEndian.Uint32(buf[btPrevLeafOff:])) }
func btreeSetPrevLeaf(buf []byte, id PageID) {
	binary.LittleEndian.PutUint32(buf[btPrevLeafOff:], uint32(id))
}

// btreeBody is the node body's own slot directory. Its SlotCount and
// FreeStart fields start at btBodyOff rather than at PageHeaderSize, so
// it does not reuse SlottedPage's offsets.
type btreeBody struct {
	buf []byte
}

const (
	bbSlotCountOff = btBodyOff
	bbFreeStartOff = bbSlotCountOff + 4
	bbSlotDirOff   = bbFreeStartOff + 4
)

func (b *btreeBody) slotCount() int { return int(binary.LittleEndian.Uint32(b.buf[bbSlotCountOff:])) }
func (b *btreeBody) setSlotCount(n int) {
	binary.LittleEndian.PutUint32(b.buf[bbSlotCountOff:], uint32(n))
}
func (b *btreeBody) freeStart() uint32 { return binary.LittleEndian.Uint32(b.buf[bbFreeStartOff:]) }
func (b *btreeBody) setFreeStart(v uint32) {
	binary.LittleEndian.PutUint32(b.buf[bbFreeStartOff:], v)
}
func (b *btreeBody) slotOff(i int) int { return bbSlotDirOff + i*4 }
func (b *btreeBody) getSlot(i int) SlotEntry {
	off := b.slotOff(i)
	return SlotEntry{Offset: binary.LittleEndian.Uint16(b.buf[off:]), Length: binary.LittleEndian.Uint16(b.buf[off+2:])}
}
func (b *btreeBody) setSlot(i int, e SlotEntry) {
	off := b.slotOff(i)
	binary.LittleEndian.PutUint16(b.buf[off:], e.Offset)
	binary.LittleEndian.PutUint16(b.buf[off+2:], e.Length)
}

func newBtreeBody(buf []byte) *btreeBody {
	b := &btreeBody{buf: buf}
	if b.freeStart() == 0 {
		b.setFreeStart(bbSlotDirOff)
	}
	return b
}

func (b *btreeBody) freeSpace() int {
	floor := len(b.buf)
	for i := 0; i < b.slotCount(); i++ {
		s := b.getSlot(i)
		if int(s.Offset) != 0 && int(s.Offset) < floor {
			floor = int(s.Offset)
		}
	}
	return floor - int(b.freeStart())
}

func (b *btreeBody) append(data []byte) (int, bool) {
	if b.freeSpace() < len(data)+4 {
		return -1, false
	}
	floor := len(b.buf)
	for i := 0; i < b.slotCount(); i++ {
		s := b.getSlot(i)
		if int(s.Offset) != 0 && int(s.Offset) < floor {
			floor = int(s.Offset)
		}
	}
	off := floor - len(data)
	copy(b.buf[off:off+len(data)], data)
	slot := b.slotCount()
	b.setSlotCount(slot + 1)
	b.setFreeStart(b.freeStart() + 4)
	b.setSlot(slot, SlotEntry{Offset: uint16(off), Length: uint16(len(data))})
	return slot, true
}

func (b *btreeBody) get(i int) []byte {
	s := b.getSlot(i)
	return b.buf[s.Offset : s.Offset+s.Length]
}

// InternalEntry: a separator Key routing to ChildID (everything < Key
// and >= the previous separator lives under ChildID; keys >= the last
// separator live under RightChild).
type InternalEntry struct {
	ChildID PageID
	Key     []byte
}

func marshalInternalEntry(e InternalEntry) []byte {
	out := make([]byte, 4+len(e.Key))
	binary.LittleEndian.PutUint32(out, uint32(e.ChildID))
	copy(out[4:], e.Key)
	return out
}

func unmarshalInternalEntry(b []byte) InternalEntry {
	return InternalEntry{ChildID: PageID(binary.LittleEndian.Uint32(b)), Key: append([]byte(nil), b[4:]...)}
}

// LeafEntry: a key/value pair. Oversized values spill to an overflow
// chain; Overflow is true and OverflowPageID/TotalSize describe it,
// with Value holding nothing inline.
type LeafEntry struct {
	Key            []byte
	Value          []byte
	Overflow       bool
	OverflowPageID PageID
	TotalSize      int
}

func marshalLeafEntry(e LeafEntry) []byte {
	var flags byte
	if e.Overflow {
		flags = 1
	}
	out := make([]byte, 0, 1+4+4+4+len(e.Key)+len(e.Value))
	out = append(out, flags)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(e.Key)))
	out = append(out, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], uint32(e.OverflowPageID))
	out = append(out, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], uint32(e.TotalSize))
	out = append(out, tmp[:]...)
	out = append(out, e.Key...)
	out = append(out, e.Value...)
	return out
}

func unmarshalLeafEntry(b []byte) LeafEntry {
	flags := b[0]
	keyLen := binary.LittleEndian.Uint32(b[1:5])
	ovfID := binary.LittleEndian.Uint32(b[5:9])
	total := binary.LittleEndian.Uint32(b[9:13])
	rest := b[13:]
	key := append([]byte(nil), rest[:keyLen]...)
	val := append([]byte(nil), rest[keyLen:]...)
	return LeafEntry{
		Key: key, Value: val,
		Overflow:       flags&1 != 0,
		OverflowPageID: PageID(ovfID),
		TotalSize:      int(total),
	}
}

func keyLess(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// GetAllInternalEntries returns every separator entry in slot order.
func GetAllInternalEntries(buf []byte) []InternalEntry {
	b := newBtreeBody(buf)
	out := make([]InternalEntry, 0, b.slotCount())
	for i := 0; i < b.slotCount(); i++ {
		out = append(out, unmarshalInternalEntry(b.get(i)))
	}
	return out
}

// FindChild returns the child PageID to descend into for key.
func FindChild(buf []byte, key []byte) PageID {
	entries := GetAllInternalEntries(buf)
	for _, e := range entries {
		if keyLess(key, e.Key) {
			return e.ChildID
		}
	}
	return btreeRightChild(buf)
}

// InsertInternalEntry appends a separator; callers keep entries sorted
// by re-inserting the whole node via RebuildInternal when order matters.
func InsertInternalEntry(buf []byte, e InternalEntry) bool {
	b := newBtreeBody(buf)
	_, ok := b.append(marshalInternalEntry(e))
	if ok {
		btreeSetKeyCount(buf, b.slotCount())
	}
	return ok
}

// RebuildInternal rewrites the node body from a sorted entry slice.
func RebuildInternal(buf []byte, entries []InternalEntry, rightChild PageID) {
	clearBody(buf)
	b := newBtreeBody(buf)
	for _, e := range entries {
		b.append(marshalInternalEntry(e))
	}
	btreeSetKeyCount(buf, len(entries))
	btreeSetRightChild(buf, rightChild)
}

// GetAllLeafEntries returns every live leaf entry in slot order (callers
// sort by Key when a strict order is required after merges).
func GetAllLeafEntries(buf []byte) []LeafEntry {
	b := newBtreeBody(buf)
	out := make([]LeafEntry, 0, b.slotCount())
	for i := 0; i < b.slotCount(); i++ {
		out = append(out, unmarshalLeafEntry(b.get(i)))
	}
	return out
}

// FindLeafEntry returns the entry for key and true, or zero value and false.
func FindLeafEntry(buf []byte, key []byte) (LeafEntry, bool) {
	for _, e := range GetAllLeafEntries(buf) {
		if string(e.Key) == string(key) {
			return e, true
		}
	}
	return LeafEntry{}, false
}

// InsertLeafEntry appends e to the node body, returning false if full.
func InsertLeafEntry(buf []byte, e LeafEntry) bool {
	b := newBtreeBody(buf)
	_, ok := b.append(marshalLeafEntry(e))
	if ok {
		btreeSetKeyCount(buf, b.slotCount())
	}
	return ok
}

// RebuildLeaf rewrites the node body from a sorted entry slice.
func RebuildLeaf(buf []byte, entries []LeafEntry) {
	clearBody(buf)
	b := newBtreeBody(buf)
	for _, e := range entries {
		b.append(marshalLeafEntry(e))
	}
	btreeSetKeyCount(buf, len(entries))
}

func clearBody(buf []byte) {
	for i := btBodyOff; i < len(buf); i++ {
		buf[i] = 0
	}
}

// NewBTreeNode allocates a zeroed node page of the given leaf-ness.
func NewBTreeNode(pageSize int, id PageID, leaf bool) []byte {
	pt := PageTypeBTreeInternal
	if leaf {
		pt = PageTypeBTreeLeaf
	}
	buf := NewPage(pageSize, pt, id)
	btreeSetLeaf(buf, leaf)
	btreeSetRightChild(buf, InvalidPageID)
	btreeSetPrevLeaf(buf, InvalidPageID)
	newBtreeBody(buf)
	return buf
}
