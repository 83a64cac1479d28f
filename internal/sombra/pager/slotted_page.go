package pager

import "encoding/binary"

// A slotted page packs variable-length records behind a fixed-size
// page header. The slot directory grows forward from slotDirOff;
// record bytes grow backward from the end of the page. A deleted slot
// becomes a tombstone ({Offset:0, Length:0}) rather than being removed,
// so existing slot indexes stay stable until the next Compact.
//
//  Offset       Size  Field
//  32           4     SlotCount     uint32
//  36           4     FreeStart     uint32 (end of slot directory)
//  40           4*N   SlotEntry[N]  {Offset uint16, Length uint16}
//  ...          ...   record bytes, growing down from page end

const (
	spSlotCountOff = PageHeaderSize
	spFreeStartOff = spSlotCountOff + 4
	spSlotDirOff   = spFreeStartOff + 4
	slotEntrySize  = 4
)

// SlotEntry points at one record's bytes within the page.
type SlotEntry struct {
	Offset uint16
	Length uint16
}

func (s SlotEntry) isTombstone() bool { return s.Offset == 0 && s.Length == 0 }

// SlottedPage wraps a raw page buffer as a slotted record page.
type SlottedPage struct {
	buf []byte
}

func NewSlottedPage(buf []byte) *SlottedPage {
	sp := &SlottedPage{buf: buf}
	if sp.slotCount() == 0 && sp.freeStart() == 0 {
		sp.setFreeStart(spSlotDirOff)
	}
	return sp
}

func (sp *SlottedPage) slotCount() int {
	return int(binary.LittleEndian.Uint32(sp.buf[spSlotCountOff:]))
}

func (sp *SlottedPage) setSlotCount(n int) {
	binary.LittleEndian.PutUint32(sp.buf[spSlotCountOff:], uint32(n))
}

func (sp *SlottedPage) freeStart() uint32 {
	return binary.LittleEndian.Uint32(sp.buf[spFreeStartOff:])
}

func (sp *SlottedPage) setFreeStart(v uint32) {
	binary.LittleEndian.PutUint32(sp.buf[spFreeStartOff:], v)
}

func (sp *SlottedPage) slotOff(i int) int { return spSlotDirOff + i*slotEntrySize }

func (sp *SlottedPage) getSlot(i int) SlotEntry {
	off := sp.slotOff(i)
	return SlotEntry{
		Offset: binary.LittleEndian.Uint16(sp.buf[off:]),
		Length: binary.LittleEndian.Uint16(sp.buf[off+2:]),
	}
}

func (sp *SlottedPage) setSlot(i int, e SlotEntry) {
	off := sp.slotOff(i)
	binary.LittleEndian.PutUint16(sp.buf[off:], e.Offset)
	binary.LittleEndian.PutUint16(sp.buf[off+2:], e.Length)
}

// freeSpace is the contiguous room between the slot directory and the
// lowest record currently written.
func (sp *SlottedPage) freeSpace() int {
	recordFloor := len(sp.buf)
	for i := 0; i < sp.slotCount(); i++ {
		s := sp.getSlot(i)
		if s.isTombstone() {
			continue
		}
		if int(s.Offset) < recordFloor {
			recordFloor = int(s.Offset)
		}
	}
	return recordFloor - int(sp.freeStart())
}

// InsertRecord appends data and returns its slot index, or -1 if the
// page has no room (caller should route to an overflow page or split).
func (sp *SlottedPage) InsertRecord(data []byte) int {
	needed := len(data) + slotEntrySize
	if sp.freeSpace() < needed {
		return -1
	}
	// reuse a tombstone slot if one exists
	slot := -1
	for i := 0; i < sp.slotCount(); i++ {
		if sp.getSlot(i).isTombstone() {
			slot = i
			break
		}
	}
	recordFloor := len(sp.buf)
	for i := 0; i < sp.slotCount(); i++ {
		s := sp.getSlot(i)
		if s.isTombstone() {
			continue
		}
		if int(s.Offset) < recordFloor {
			recordFloor = int(s.Offset)
		}
	}
	off := recordFloor - len(data)
	copy(sp.buf[off:off+len(data)], data)

	if slot == -1 {
		slot = sp.slotCount()
		sp.setSlotCount(slot + 1)
		sp.setFreeStart(sp.freeStart() + slotEntrySize)
	}
	sp.setSlot(slot, SlotEntry{Offset: uint16(off), Length: uint16(len(data))})
	return slot
}

// GetRecord returns the bytes at slot i, or nil if tombstoned/out of range.
func (sp *SlottedPage) GetRecord(i int) []byte {
	if i < 0 || i >= sp.slotCount() {
		return nil
	}
	s := sp.getSlot(i)
	if s.isTombstone() {
		return nil
	}
	return sp.buf[s.Offset : s.Offset+s.Length]
}

// DeleteRecord tombstones slot i.
func (sp *SlottedPage) DeleteRecord(i int) {
	if i < 0 || i >= sp.slotCount() {
		return
	}
	sp.setSlot(i, SlotEntry{})
}

// UpdateRecord replaces slot i's bytes in place if the new value fits
// in the existing slot's footprint, otherwise tombstones it and
// re-inserts as a new slot (the index changes — callers that need a
// stable identifier must use something other than the raw slot index,
// e.g. the record's own primary key via the B-tree layer above).
func (sp *SlottedPage) UpdateRecord(i int, data []byte) int {
	if i < 0 || i >= sp.slotCount() {
		return -1
	}
	s := sp.getSlot(i)
	if !s.isTombstone() && len(data) <= int(s.Length) {
		copy(sp.buf[s.Offset:], data)
		sp.setSlot(i, SlotEntry{Offset: s.Offset, Length: uint16(len(data))})
		return i
	}
	sp.DeleteRecord(i)
	return sp.InsertRecord(data)
}

// LiveRecords returns (slot index, bytes) for every non-tombstoned slot.
func (sp *SlottedPage) LiveRecords() []struct {
	Slot int
	Data []byte
} {
	var out []struct {
		Slot int
		Data []byte
	}
	for i := 0; i < sp.slotCount(); i++ {
		if d := sp.GetRecord(i); d != nil {
			out = append(out, struct {
				Slot int
				Data []byte
			}{i, d})
		}
	}
	return out
}

// Compact rewrites the page, dropping tombstones and defragmenting
// record storage. Live records keep their relative order but are
// renumbered from slot 0, so a record that followed a tombstone gets a
// lower slot index.
func (sp *SlottedPage) Compact() {
	live := sp.LiveRecords()
	tail := len(sp.buf)
	newBuf := make([]byte, len(sp.buf))
	copy(newBuf[:PageHeaderSize], sp.buf[:PageHeaderSize])
	tmp := &SlottedPage{buf: newBuf}
	tmp.setFreeStart(spSlotDirOff)
	tmp.setSlotCount(0)

	for _, rec := range live {
		off := tail - len(rec.Data)
		copy(newBuf[off:tail], rec.Data)
		tail = off
		slot := tmp.slotCount()
		tmp.setSlotCount(slot + 1)
		tmp.setFreeStart(tmp.freeStart() + slotEntrySize)
		tmp.setSlot(slot, SlotEntry{Offset: uint16(off), Length: uint16(len(rec.Data))})
	}
	copy(sp.buf, newBuf)
}
