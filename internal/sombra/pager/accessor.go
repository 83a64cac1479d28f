package pager

// PageAccessor is the page-level surface every higher layer (record
// store, primary/secondary indexes, adjacency engine) uses instead of
// touching *Pager directly. A read-only snapshot and an in-progress
// write transaction both implement it, so the generic B-tree and
// record-store code never need to know which one it was handed.
type PageAccessor interface {
	GetPage(id PageID) ([]byte, error)
	PutPage(id PageID, buf []byte) error
	AllocPage(pt PageType) (PageID, []byte, error)
	FreePage(id PageID)
	PageSize() int
}

// TxPageAccessor binds a Pager to one in-progress write transaction's
// TxID/CSN so every PutPage call stamps and WAL-logs consistently.
type TxPageAccessor struct {
	Pager *Pager
	TxID  TxID
	CSN   CSN
}

// GetPage returns a copy of the cached page, so the caller's edits reach
// the cache only through PutPage, after WritePage has stashed the
// page's pre-transaction image for Rollback.
func (a *TxPageAccessor) GetPage(id PageID) ([]byte, error) {
	buf, err := a.Pager.ReadPage(id)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	a.Pager.UnpinPage(id)
	return cp, nil
}

func (a *TxPageAccessor) PutPage(id PageID, buf []byte) error {
	return a.Pager.WritePage(a.TxID, a.CSN, id, buf)
}

func (a *TxPageAccessor) AllocPage(pt PageType) (PageID, []byte, error) {
	return a.Pager.AllocatePage(pt)
}

func (a *TxPageAccessor) FreePage(id PageID) { a.Pager.FreePage(id) }

func (a *TxPageAccessor) PageSize() int { return a.Pager.PageSize() }

// ReadOnlyAccessor wraps a Pager for read-only access; PutPage/AllocPage/
// FreePage panic if ever called, catching a read path that accidentally
// tries to mutate.
//
// GetPage returns a copy rather than the pool's own buffer. Readers never
// take the writer lock, so a concurrent write transaction can be
// WritePage-ing the same page id at the very moment a reader fetched it;
// WritePage mutates the cached frame's backing array in place, which
// would otherwise let a reader observe a half-written page regardless of
// MVCC snapshot filtering above this layer. TxPageAccessor copies too,
// so the writer never mutates the cached frame except through
// WritePage.
type ReadOnlyAccessor struct {
	Pager *Pager
}

func (a *ReadOnlyAccessor) GetPage(id PageID) ([]byte, error) {
	buf, err := a.Pager.ReadPage(id)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	a.Pager.UnpinPage(id)
	return cp, nil
}
func (a *ReadOnlyAccessor) PutPage(id PageID, buf []byte) error {
	panic("pager: PutPage called through a read-only accessor")
}
func (a *ReadOnlyAccessor) AllocPage(pt PageType) (PageID, []byte, error) {
	panic("pager: AllocPage called through a read-only accessor")
}
func (a *ReadOnlyAccessor) FreePage(id PageID) {
	panic("pager: FreePage called through a read-only accessor")
}
func (a *ReadOnlyAccessor) PageSize() int { return a.Pager.PageSize() }
