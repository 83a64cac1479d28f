package pager

import "encoding/binary"

// Free-list pages form a singly linked chain of "chunks" rooted at the
// superblock's FirstFreePage. Each chunk lists up to freeListCapacity
// reclaimed PageIDs plus a pointer to the next chunk (or InvalidPageID).
//
//  Offset  Size  Field
//  32      4     NextFreeList  PageID
//  36      4     EntryCount    uint32
//  40      4*N   Entries       []PageID

const (
	flNextOff       = PageHeaderSize
	flCountOff      = flNextOff + 4
	flEntriesOff    = flCountOff + 4
)

// FreeListPage wraps a raw page buffer formatted as a free-list chunk.
type FreeListPage struct {
	buf      []byte
	capacity int
}

func newFreeListPage(buf []byte) *FreeListPage {
	return &FreeListPage{buf: buf, capacity: (len(buf) - flEntriesOff) / 4}
}

func (f *FreeListPage) NextFreeList() PageID {
	return PageID(binary.LittleEndian.Uint32(f.buf[flNextOff:]))
}

func (f *FreeListPage) SetNextFreeList(id PageID) {
	binary.LittleEndian.PutUint32(f.buf[flNextOff:], uint32(id))
}

func (f *FreeListPage) EntryCount() int {
	return int(binary.LittleEndian.Uint32(f.buf[flCountOff:]))
}

func (f *FreeListPage) setEntryCount(n int) {
	binary.LittleEndian.PutUint32(f.buf[flCountOff:], uint32(n))
}

func (f *FreeListPage) GetEntry(i int) PageID {
	off := flEntriesOff + i*4
	return PageID(binary.LittleEndian.Uint32(f.buf[off:]))
}

// AddEntry appends a PageID, returning false if the chunk is full.
func (f *FreeListPage) AddEntry(id PageID) bool {
	n := f.EntryCount()
	if n >= f.capacity {
		return false
	}
	off := flEntriesOff + n*4
	binary.LittleEndian.PutUint32(f.buf[off:], uint32(id))
	f.setEntryCount(n + 1)
	return true
}

// PopEntry removes and returns the last entry, or (0, false) if empty.
func (f *FreeListPage) PopEntry() (PageID, bool) {
	n := f.EntryCount()
	if n == 0 {
		return 0, false
	}
	id := f.GetEntry(n - 1)
	f.setEntryCount(n - 1)
	return id, true
}

func (f *FreeListPage) AllEntries() []PageID {
	n := f.EntryCount()
	out := make([]PageID, n)
	for i := 0; i < n; i++ {
		out[i] = f.GetEntry(i)
	}
	return out
}

// FreeManager tracks reclaimed pages in memory, persisted to the
// on-disk free-list chain at checkpoint time via FlushToDisk.
type FreeManager struct {
	free []PageID // in-memory stack of reusable page ids
}

func NewFreeManager() *FreeManager {
	return &FreeManager{}
}

// LoadFromDisk walks the on-disk free-list chain starting at root,
// collecting every entry into memory. Chunk pages themselves are
// treated as reclaimable once drained: each chunk's own id is added to
// the in-memory free set as well.
func (fm *FreeManager) LoadFromDisk(root PageID, readChunk func(PageID) ([]byte, error)) error {
	id := root
	for id != InvalidPageID {
		buf, err := readChunk(id)
		if err != nil {
			return err
		}
		chunk := newFreeListPage(buf)
		fm.free = append(fm.free, chunk.AllEntries()...)
		next := chunk.NextFreeList()
		fm.free = append(fm.free, id)
		id = next
	}
	return nil
}

// Alloc pops a free page id, or returns (0, false) if the free list is empty.
func (fm *FreeManager) Alloc() (PageID, bool) {
	n := len(fm.free)
	if n == 0 {
		return 0, false
	}
	id := fm.free[n-1]
	fm.free = fm.free[:n-1]
	return id, true
}

// Free pushes a page id back onto the in-memory free set.
func (fm *FreeManager) Free(id PageID) {
	fm.free = append(fm.free, id)
}

func (fm *FreeManager) Count() int {
	return len(fm.free)
}

func (fm *FreeManager) AllFree() []PageID {
	out := make([]PageID, len(fm.free))
	copy(out, fm.free)
	return out
}

// FlushToDisk serializes the in-memory free set into a chain of
// free-list chunk pages, writing each through writeChunk. Every chunk
// gets a fresh page id from allocPageID; the previous chain's pages are
// not reused. It returns the new chain root.
func (fm *FreeManager) FlushToDisk(pageSize int, allocPageID func() PageID, writeChunk func(PageID, []byte) error) (PageID, error) {
	if len(fm.free) == 0 {
		return InvalidPageID, nil
	}
	entries := fm.AllFree()
	capacity := (pageSize - flEntriesOff) / 4

	var chunkIDs []PageID
	for i := 0; i < len(entries); i += capacity {
		chunkIDs = append(chunkIDs, allocPageID())
	}

	root := InvalidPageID
	if len(chunkIDs) > 0 {
		root = chunkIDs[0]
	}
	for ci, id := range chunkIDs {
		buf := NewPage(pageSize, PageTypeFreeList, id)
		chunk := newFreeListPage(buf)
		start := ci * capacity
		end := start + capacity
		if end > len(entries) {
			end = len(entries)
		}
		for _, e := range entries[start:end] {
			chunk.AddEntry(e)
		}
		if ci+1 < len(chunkIDs) {
			chunk.SetNextFreeList(chunkIDs[ci+1])
		} else {
			chunk.SetNextFreeList(InvalidPageID)
		}
		SetPageCRC(buf)
		if err := writeChunk(id, buf); err != nil {
			return InvalidPageID, err
		}
	}
	return root, nil
}
