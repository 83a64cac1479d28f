package pager

import (
	"container/list"
	"fmt"
	"os"
	"sync"

	"github.com/sombradb/sombra/internal/sombra/logging"
)

// PageFrame is one buffered page: the raw bytes plus bookkeeping the
// pool needs to decide what to evict.
type PageFrame struct {
	ID    PageID
	Buf   []byte
	Dirty bool
	Pins  int
	elem  *list.Element // position in the LRU list
}

// PageBufferPool is a bounded, pin-aware LRU cache of page frames.
// Pages with a nonzero pin count are never evicted.
type PageBufferPool struct {
	mu       sync.Mutex
	capacity int
	frames   map[PageID]*PageFrame
	lru      *list.List // front = most recently used
}

func NewPageBufferPool(capacity int) *PageBufferPool {
	return &PageBufferPool{
		capacity: capacity,
		frames:   make(map[PageID]*PageFrame),
		lru:      list.New(),
	}
}

func (p *PageBufferPool) get(id PageID) (*PageFrame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[id]
	if ok {
		p.lru.MoveToFront(f.elem)
	}
	return f, ok
}

func (p *PageBufferPool) put(f *PageFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.elem = p.lru.PushFront(f)
	p.frames[f.ID] = f
	p.evictIfNeededLocked()
}

func (p *PageBufferPool) evictIfNeededLocked() {
	for len(p.frames) > p.capacity {
		if !p.evictOneLocked() {
			return // everything remaining is pinned
		}
	}
}

func (p *PageBufferPool) evictOneLocked() bool {
	for e := p.lru.Back(); e != nil; e = e.Prev() {
		f := e.Value.(*PageFrame)
		if f.Pins == 0 && !f.Dirty {
			p.lru.Remove(e)
			delete(p.frames, f.ID)
			return true
		}
	}
	return false
}

func (p *PageBufferPool) pin(id PageID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.frames[id]; ok {
		f.Pins++
	}
}

func (p *PageBufferPool) unpin(id PageID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.frames[id]; ok && f.Pins > 0 {
		f.Pins--
	}
}

// restore installs buf as the cached image for id with the given dirty
// flag, overwriting whatever frame (if any) is currently cached — used
// to put a transaction's pre-image back after a rollback.
func (p *PageBufferPool) restore(id PageID, buf []byte, dirty bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.frames[id]; ok {
		f.Buf = buf
		f.Dirty = dirty
		p.lru.MoveToFront(f.elem)
		return
	}
	f := &PageFrame{ID: id, Buf: buf, Dirty: dirty}
	f.elem = p.lru.PushFront(f)
	p.frames[id] = f
	p.evictIfNeededLocked()
}

func (p *PageBufferPool) remove(id PageID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.frames[id]; ok {
		p.lru.Remove(f.elem)
		delete(p.frames, id)
	}
}

func (p *PageBufferPool) dirtyPages() []*PageFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*PageFrame
	for _, f := range p.frames {
		if f.Dirty {
			out = append(out, f)
		}
	}
	return out
}

// PagerConfig is the subset of settings the pager itself needs — the full
// application Config lives in package config; callers translate.
type PagerConfig struct {
	Path         string
	PageSize     int
	CachePages   int
	ChecksumMode bool // true = verify/stamp CRCs
	Logger       logging.Logger
}

// Pager owns the database file, the WAL, the free-list, and the page
// cache. Every byte the upper layers (record store, indexes, adjacency
// engine) touch passes through here first.
//
// Sombra runs a single-writer model (one write transaction at a time,
// serialized by the transaction manager's writer lock; mu guards each
// individual page operation); concurrent readers never block on the writer
// because MVCC visibility is resolved at the record layer via
// xmin/xmax version chains rather than by materializing per-page WAL
// overlays for each reader. A page read from the pool is therefore
// always either the most recently committed image or, mid-write-
// transaction, the in-progress image the single writer itself is
// building — no other reader can observe a half-written page because
// readers and the writer coordinate through the same mutex for the
// duration of a page fetch, and a reader's snapshot CSN is checked
// against each record/posting/adjacency entry's own version header,
// not against the page as a whole.
type Pager struct {
	mu   sync.RWMutex
	path string
	file *os.File
	wal  *WALFile
	pool *PageBufferPool
	sb   *Superblock

	freeMgr *FreeManager

	pageSize     int
	checksumMode bool
	log          logging.Logger

	// txOriginals holds, for the in-flight write transaction, the
	// pre-image of every page touched so far (captured on first touch),
	// so Rollback can restore the buffer pool to its pre-transaction
	// state instead of leaving dirtied pages for the next checkpoint to
	// bake in permanently.
	txOriginals map[PageID]pageStash

	closed bool
}

// pageStash is the pre-transaction state of one page frame, captured
// the first time a write transaction touches it.
type pageStash struct {
	existed bool // false means the frame had no cached image and no on-disk page yet
	buf     []byte
	dirty   bool
}

// OpenPager opens (creating if absent) the database file at cfg.Path,
// replaying the WAL if the last shutdown was unclean.
func OpenPager(cfg PagerConfig) (*Pager, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	cachePages := cfg.CachePages
	if cachePages <= 0 {
		cachePages = 1024
	}

	f, err := os.OpenFile(cfg.Path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open database file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	p := &Pager{
		path:         cfg.Path,
		file:         f,
		pool:         NewPageBufferPool(cachePages),
		freeMgr:      NewFreeManager(),
		pageSize:     pageSize,
		checksumMode: cfg.ChecksumMode,
		log:          cfg.Logger,
	}

	wal, err := OpenWALFile(cfg.Path+"-wal", pageSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	p.wal = wal

	if info.Size() == 0 {
		sb := NewSuperblock(uint32(pageSize))
		p.sb = sb
		if err := p.writeSuperblockRaw(sb); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := p.readSuperblock(); err != nil {
			f.Close()
			return nil, err
		}
		if err := p.Recover(); err != nil {
			f.Close()
			return nil, err
		}
		if err := p.freeMgr.LoadFromDisk(p.sb.FirstFreePage, p.readPageRaw); err != nil {
			f.Close()
			return nil, err
		}
	}
	return p, nil
}

func (p *Pager) readSuperblock() error {
	buf, err := p.readPageRaw(0)
	if err != nil {
		return err
	}
	sb, err := UnmarshalSuperblock(buf, p.checksumMode)
	if err != nil {
		return fmt.Errorf("read superblock: %w", err)
	}
	p.sb = sb
	p.pageSize = int(sb.PageSize)
	return nil
}

func (p *Pager) writeSuperblockRaw(sb *Superblock) error {
	buf := MarshalSuperblock(sb, p.pageSize)
	return p.writePageRaw(0, buf)
}

func (p *Pager) readPageRaw(id PageID) ([]byte, error) {
	buf := make([]byte, p.pageSize)
	off := int64(id) * int64(p.pageSize)
	if _, err := p.file.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("read page %d: %w", id, err)
	}
	return buf, nil
}

func (p *Pager) writePageRaw(id PageID, buf []byte) error {
	off := int64(id) * int64(p.pageSize)
	if _, err := p.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	return nil
}

// PageSize returns the database's fixed page size.
func (p *Pager) PageSize() int { return p.pageSize }

// Superblock returns the current in-memory superblock snapshot.
func (p *Pager) Superblock() *Superblock {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sbCopy := *p.sb
	return &sbCopy
}

// UpdateSuperblock applies fn to a copy of the superblock and installs
// the result. The caller is responsible for persisting it via
// Checkpoint or an explicit writeSuperblockRaw during commit.
func (p *Pager) UpdateSuperblock(fn func(*Superblock)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.sb)
}

// ReadPage returns the current bytes of page id, pinning it in the
// cache. Callers must call UnpinPage when done.
func (p *Pager) ReadPage(id PageID) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.readPageLocked(id)
}

func (p *Pager) readPageLocked(id PageID) ([]byte, error) {
	if f, ok := p.pool.get(id); ok {
		p.pool.pin(id)
		return f.Buf, nil
	}
	buf, err := p.readPageRaw(id)
	if err != nil {
		return nil, err
	}
	if err := VerifyPageCRC(buf, p.checksumMode); err != nil {
		return nil, fmt.Errorf("pager.ReadPage: %w", err)
	}
	f := &PageFrame{ID: id, Buf: buf, Pins: 1}
	p.pool.put(f)
	return f.Buf, nil
}

// UnpinPage releases a pin acquired by ReadPage. WritePage does not pin.
func (p *Pager) UnpinPage(id PageID) {
	p.pool.unpin(id)
}

// WritePage stamps buf with the given CSN, appends a WAL page-image
// frame for it, and marks it dirty in the cache. The write is not
// durable until Checkpoint or the owning transaction's commit syncs
// the WAL. The first time the current write transaction touches id, its
// pre-transaction image is stashed so Rollback can restore it.
func (p *Pager) WritePage(txID TxID, csn CSN, id PageID, buf []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.capturePreImageLocked(id)

	h := UnmarshalHeader(buf)
	h.ID = id
	h.CSN = csn
	MarshalHeader(&h, buf)
	SetPageCRC(buf)

	if err := p.wal.AppendRecord(WALRecord{Type: WALPageImage, CSN: csn, TxID: txID, PageID: id, Data: buf}); err != nil {
		return fmt.Errorf("pager.WritePage: %w", err)
	}

	if f, ok := p.pool.get(id); ok {
		copy(f.Buf, buf)
		f.Dirty = true
	} else {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		p.pool.put(&PageFrame{ID: id, Buf: cp, Dirty: true})
	}
	return nil
}

// capturePreImageLocked stashes id's current state the first time the
// in-flight write transaction touches it. A page with no cached frame
// is read from disk; a page beyond the current end of file (freshly
// allocated this transaction) is recorded as not having existed, so
// Rollback evicts it instead of restoring garbage.
func (p *Pager) capturePreImageLocked(id PageID) {
	if p.txOriginals == nil {
		return
	}
	if _, ok := p.txOriginals[id]; ok {
		return
	}
	if f, ok := p.pool.get(id); ok {
		cp := make([]byte, len(f.Buf))
		copy(cp, f.Buf)
		p.txOriginals[id] = pageStash{existed: true, buf: cp, dirty: f.Dirty}
		return
	}
	buf, err := p.readPageRaw(id)
	if err != nil {
		p.txOriginals[id] = pageStash{existed: false}
		return
	}
	p.txOriginals[id] = pageStash{existed: true, buf: buf, dirty: false}
}

// restoreTxOriginalsLocked undoes every page mutation the in-flight
// write transaction made, putting the buffer pool back to its
// pre-transaction state before the transaction's abort record is
// durable. Pages that didn't exist before the transaction (freshly
// allocated pages) are evicted entirely rather than restored.
func (p *Pager) restoreTxOriginalsLocked() {
	for id, stash := range p.txOriginals {
		if stash.existed {
			p.pool.restore(id, stash.buf, stash.dirty)
		} else {
			p.pool.remove(id)
		}
	}
	p.txOriginals = nil
}

// AllocatePage returns a fresh or reclaimed PageID, formatted as pt.
func (p *Pager) AllocatePage(pt PageType) (PageID, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var id PageID
	if reused, ok := p.freeMgr.Alloc(); ok {
		id = reused
	} else {
		id = p.sb.NextPageID
		p.sb.NextPageID++
	}
	buf := NewPage(p.pageSize, pt, id)
	return id, buf, nil
}

// FreePage releases id back to the free manager. It is not safe to
// reuse id until the transaction that called FreePage has committed —
// callers must route this through the transaction manager, which
// defers the actual free-manager update to commit time.
func (p *Pager) FreePage(id PageID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freeMgr.Free(id)
	p.pool.remove(id)
}

// AllocateTxCSN reserves the next TxID and CSN for a write transaction
// about to begin, advancing both superblock counters unconditionally.
// Unlike the old scheme of deriving CSN from LastCommittedCSN+1 at
// BeginWrite time, this guarantees a TxID/CSN pair is handed out
// exactly once and never reissued, whether or not the transaction that
// receives it goes on to commit or abort.
func (p *Pager) AllocateTxCSN() (TxID, CSN) {
	p.mu.Lock()
	defer p.mu.Unlock()
	txID := p.sb.NextTxID
	csn := p.sb.NextCSN
	p.sb.NextTxID = txID + 1
	p.sb.NextCSN = csn + 1
	p.txOriginals = make(map[PageID]pageStash)
	return txID, csn
}

// BeginTxWAL appends a Begin marker, used by the transaction manager to
// bound recovery scanning.
func (p *Pager) BeginTxWAL(txID TxID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wal.AppendRecord(WALRecord{Type: WALBegin, TxID: txID})
}

// CommitTxWAL appends a Commit marker and fsyncs the WAL — the
// durability point. LastCommittedCSN is advanced and the transaction's
// pre-image stash is discarded, since its writes are now durable and
// must never be rolled back. NextTxID/NextCSN are not touched here —
// AllocateTxCSN already reserved them at BeginWrite time.
func (p *Pager) CommitTxWAL(txID TxID, csn CSN) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.wal.AppendRecord(WALRecord{Type: WALCommit, TxID: txID, CSN: csn}); err != nil {
		p.restoreTxOriginalsLocked()
		return fmt.Errorf("pager.CommitTxWAL: %w", err)
	}
	if err := p.wal.Sync(); err != nil {
		p.restoreTxOriginalsLocked()
		return fmt.Errorf("pager.CommitTxWAL sync: %w", err)
	}
	p.sb.LastCommittedCSN = csn
	p.txOriginals = nil
	return nil
}

// AbortTxWAL restores every page the transaction dirtied to its
// pre-transaction image, then appends an Abort marker carrying the CSN
// the transaction used — recovery needs it to know that CSN must never
// be treated as committed, and vacuum/visibility code needs it to know
// the CSN's closer never actually happened.
func (p *Pager) AbortTxWAL(txID TxID, csn CSN) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restoreTxOriginalsLocked()
	return p.wal.AppendRecord(WALRecord{Type: WALAbort, TxID: txID, CSN: csn})
}

// Checkpoint flushes every dirty page and the free-list to the main
// file, writes the superblock, fsyncs, and truncates the WAL. After a
// successful checkpoint the WAL contains nothing recovery needs.
func (p *Pager) Checkpoint() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, f := range p.pool.dirtyPages() {
		if err := p.writePageRaw(f.ID, f.Buf); err != nil {
			return fmt.Errorf("checkpoint flush page %d: %w", f.ID, err)
		}
		f.Dirty = false
	}

	root, err := p.freeMgr.FlushToDisk(p.pageSize,
		func() PageID { id := p.sb.NextPageID; p.sb.NextPageID++; return id },
		p.writePageRaw,
	)
	if err != nil {
		return fmt.Errorf("checkpoint flush freelist: %w", err)
	}
	p.sb.FirstFreePage = root
	p.sb.LastCheckpointCSN = p.sb.LastCommittedCSN

	if err := p.writeSuperblockRaw(p.sb); err != nil {
		return fmt.Errorf("checkpoint write superblock: %w", err)
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("checkpoint fsync data file: %w", err)
	}
	if err := p.wal.Truncate(); err != nil {
		return fmt.Errorf("checkpoint truncate wal: %w", err)
	}
	p.log.Printf("checkpoint complete: csn=%d pages=%d", p.sb.LastCheckpointCSN, p.sb.NextPageID-1)
	return nil
}

// WALSize reports the current WAL file size, used by the transaction
// manager to decide whether an auto-checkpoint is due.
func (p *Pager) WALSize() (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.wal.Size()
}

// Close checkpoints and closes the underlying files.
func (p *Pager) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.Checkpoint(); err != nil {
		return err
	}
	if err := p.wal.Close(); err != nil {
		return err
	}
	return p.file.Close()
}
