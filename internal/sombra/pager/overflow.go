package pager

import "encoding/binary"

// Overflow pages hold values too large to sit inline in a B-tree leaf
// entry (see BTree.makeLeafEntry) as a singly
// linked chain. Each page stores as much as fits after its header and
// chain pointer, then points at the next page in NextOverflow.
//
//  Offset  Size  Field
//  32      4     NextOverflow  PageID (InvalidPageID terminates chain)
//  36      4     DataLen       uint32 (bytes used in this chunk)
//  40      ...   Data

const (
	ovNextOff    = PageHeaderSize
	ovDataLenOff = ovNextOff + 4
	ovDataOff    = ovDataLenOff + 4
)

// OverflowPage wraps a raw page buffer as one link in an overflow chain.
type OverflowPage struct {
	buf []byte
}

func NewOverflowPage(buf []byte) *OverflowPage {
	return &OverflowPage{buf: buf}
}

// Capacity is the number of data bytes one overflow page can hold.
func (o *OverflowPage) Capacity() int {
	return len(o.buf) - ovDataOff
}

func (o *OverflowPage) NextOverflow() PageID {
	return PageID(binary.LittleEndian.Uint32(o.buf[ovNextOff:]))
}

func (o *OverflowPage) SetNextOverflow(id PageID) {
	binary.LittleEndian.PutUint32(o.buf[ovNextOff:], uint32(id))
}

// SetData writes up to Capacity() bytes into this chunk.
func (o *OverflowPage) SetData(data []byte) {
	n := len(data)
	if n > o.Capacity() {
		n = o.Capacity()
	}
	binary.LittleEndian.PutUint32(o.buf[ovDataLenOff:], uint32(n))
	copy(o.buf[ovDataOff:ovDataOff+n], data[:n])
}

// Data returns the bytes stored in this chunk.
func (o *OverflowPage) Data() []byte {
	n := binary.LittleEndian.Uint32(o.buf[ovDataLenOff:])
	return o.buf[ovDataOff : ovDataOff+n]
}

// WriteOverflowChain splits data across as many overflow pages as
// needed, allocating each via alloc and persisting via write. It
// returns the PageID of the first chunk.
func WriteOverflowChain(data []byte, alloc func() (PageID, []byte, error), write func(PageID, []byte) error) (PageID, error) {
	if len(data) == 0 {
		return InvalidPageID, nil
	}
	var firstID PageID = InvalidPageID
	var prevID PageID = InvalidPageID
	var prevBuf []byte

	remaining := data
	for len(remaining) > 0 {
		id, buf, err := alloc()
		if err != nil {
			return InvalidPageID, err
		}
		if firstID == InvalidPageID {
			firstID = id
		}
		op := NewOverflowPage(buf)
		n := op.Capacity()
		if n > len(remaining) {
			n = len(remaining)
		}
		op.SetData(remaining[:n])
		op.SetNextOverflow(InvalidPageID)
		SetPageCRC(buf)
		remaining = remaining[n:]

		if prevID != InvalidPageID {
			NewOverflowPage(prevBuf).SetNextOverflow(id)
			SetPageCRC(prevBuf)
			if err := write(prevID, prevBuf); err != nil {
				return InvalidPageID, err
			}
		}
		prevID, prevBuf = id, buf
	}
	if prevID != InvalidPageID {
		if err := write(prevID, prevBuf); err != nil {
			return InvalidPageID, err
		}
	}
	return firstID, nil
}

// ReadOverflowChain reassembles the full value starting at firstID.
func ReadOverflowChain(firstID PageID, read func(PageID) ([]byte, error)) ([]byte, error) {
	var out []byte
	id := firstID
	for id != InvalidPageID {
		buf, err := read(id)
		if err != nil {
			return nil, err
		}
		op := NewOverflowPage(buf)
		out = append(out, op.Data()...)
		id = op.NextOverflow()
	}
	return out, nil
}

// FreeOverflowChain walks and frees every page in the chain.
func FreeOverflowChain(firstID PageID, read func(PageID) ([]byte, error), free func(PageID)) error {
	id := firstID
	for id != InvalidPageID {
		buf, err := read(id)
		if err != nil {
			return err
		}
		next := NewOverflowPage(buf).NextOverflow()
		free(id)
		id = next
	}
	return nil
}
