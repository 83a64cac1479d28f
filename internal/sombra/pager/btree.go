package pager

// BTree is a generic ordered byte-key B+Tree built on PageAccessor. It
// carries no domain knowledge of nodes, edges, or properties — pindex
// and sindex each keep their own encoding of keys (NodeID/EdgeID,
// composite label/property keys) and hand this type raw bytes.
type BTree struct {
	pa             PageAccessor
	root           PageID
	overflowThresh int
}

// NewBTree wraps an existing root page.
func NewBTree(pa PageAccessor, root PageID) *BTree {
	return &BTree{pa: pa, root: root, overflowThresh: overflowThresholdFor(pa.PageSize())}
}

// CreateBTree allocates a fresh empty leaf root and returns a BTree over it.
func CreateBTree(pa PageAccessor) (*BTree, error) {
	id, buf, err := pa.AllocPage(PageTypeBTreeLeaf)
	if err != nil {
		return nil, err
	}
	leaf := NewBTreeNode(pa.PageSize(), id, true)
	copy(buf, leaf)
	SetPageCRC(buf)
	if err := pa.PutPage(id, buf); err != nil {
		return nil, err
	}
	return &BTree{pa: pa, root: id, overflowThresh: overflowThresholdFor(pa.PageSize())}, nil
}

func overflowThresholdFor(pageSize int) int {
	return pageSize / 4
}

func (t *BTree) Root() PageID { return t.root }

// Get returns the value for key, or (nil, false).
func (t *BTree) Get(key []byte) ([]byte, bool, error) {
	leafID, err := t.findLeaf(key)
	if err != nil {
		return nil, false, err
	}
	buf, err := t.pa.GetPage(leafID)
	if err != nil {
		return nil, false, err
	}
	e, ok := FindLeafEntry(buf, key)
	if !ok {
		return nil, false, nil
	}
	if !e.Overflow {
		return e.Value, true, nil
	}
	val, err := ReadOverflowChain(e.OverflowPageID, t.pa.GetPage)
	return val, true, err
}

func (t *BTree) findLeaf(key []byte) (PageID, error) {
	id := t.root
	for {
		buf, err := t.pa.GetPage(id)
		if err != nil {
			return 0, err
		}
		if btreeIsLeaf(buf) {
			return id, nil
		}
		id = FindChild(buf, key)
	}
}

// pathToLeaf returns the chain of page ids from root to the leaf that
// would contain key, root first.
func (t *BTree) pathToLeaf(key []byte) ([]PageID, error) {
	var path []PageID
	id := t.root
	for {
		path = append(path, id)
		buf, err := t.pa.GetPage(id)
		if err != nil {
			return nil, err
		}
		if btreeIsLeaf(buf) {
			return path, nil
		}
		id = FindChild(buf, key)
	}
}

// Insert adds or overwrites key/value, splitting nodes as needed.
func (t *BTree) Insert(key, value []byte) error {
	path, err := t.pathToLeaf(key)
	if err != nil {
		return err
	}
	leafID := path[len(path)-1]
	buf, err := t.pa.GetPage(leafID)
	if err != nil {
		return err
	}

	entry, err := t.makeLeafEntry(key, value)
	if err != nil {
		return err
	}

	entries := GetAllLeafEntries(buf)
	entries = upsertLeaf(entries, entry)

	if !fitsLeaf(buf, entries) {
		return t.splitLeaf(path, entries)
	}
	RebuildLeaf(buf, entries)
	SetPageCRC(buf)
	return t.pa.PutPage(leafID, buf)
}

func (t *BTree) makeLeafEntry(key, value []byte) (LeafEntry, error) {
	if len(value) <= t.overflowThresh {
		return LeafEntry{Key: key, Value: value}, nil
	}
	alloc := func() (PageID, []byte, error) { return t.pa.AllocPage(PageTypeOverflow) }
	firstID, err := WriteOverflowChain(value, alloc, t.pa.PutPage)
	if err != nil {
		return LeafEntry{}, err
	}
	return LeafEntry{Key: key, Overflow: true, OverflowPageID: firstID, TotalSize: len(value)}, nil
}

func upsertLeaf(entries []LeafEntry, e LeafEntry) []LeafEntry {
	for i, ex := range entries {
		if string(ex.Key) == string(e.Key) {
			entries[i] = e
			return entries
		}
	}
	entries = append(entries, e)
	sortLeafEntries(entries)
	return entries
}

func sortLeafEntries(entries []LeafEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && keyLess(entries[j].Key, entries[j-1].Key); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func fitsLeaf(buf []byte, entries []LeafEntry) bool {
	total := 0
	for _, e := range entries {
		total += len(marshalLeafEntry(e)) + 4
	}
	return total <= len(buf)-btBodyOff-8
}

// splitLeaf divides entries across the original leaf and a new right
// sibling, then propagates the new separator key up the path.
func (t *BTree) splitLeaf(path []PageID, entries []LeafEntry) error {
	leafID := path[len(path)-1]
	oldBuf, err := t.pa.GetPage(leafID)
	if err != nil {
		return err
	}
	mid := len(entries) / 2
	left, right := entries[:mid], entries[mid:]

	rightID, rightBuf, err := t.pa.AllocPage(PageTypeBTreeLeaf)
	if err != nil {
		return err
	}
	newLeaf := NewBTreeNode(t.pa.PageSize(), rightID, true)
	copy(rightBuf, newLeaf)
	RebuildLeaf(rightBuf, right)
	btreeSetNextLeaf(rightBuf, btreeNextLeaf(oldBuf))
	btreeSetPrevLeaf(rightBuf, leafID)
	SetPageCRC(rightBuf)

	RebuildLeaf(oldBuf, left)
	btreeSetNextLeaf(oldBuf, rightID)
	SetPageCRC(oldBuf)

	if oldNext := btreeNextLeaf(rightBuf); oldNext != InvalidPageID {
		nextBuf, err := t.pa.GetPage(oldNext)
		if err == nil {
			btreeSetPrevLeaf(nextBuf, rightID)
			SetPageCRC(nextBuf)
			t.pa.PutPage(oldNext, nextBuf)
		}
	}

	if err := t.pa.PutPage(leafID, oldBuf); err != nil {
		return err
	}
	if err := t.pa.PutPage(rightID, rightBuf); err != nil {
		return err
	}

	sepKey := right[0].Key
	return t.insertIntoParent(path[:len(path)-1], leafID, sepKey, rightID)
}

// insertIntoParent adds a new separator for (leftChild already present,
// sepKey, rightChild) into the last node on path, recursing upward and
// creating a new root if the path is empty.
func (t *BTree) insertIntoParent(path []PageID, leftChild PageID, sepKey []byte, rightChild PageID) error {
	if len(path) == 0 {
		return t.createNewRoot(leftChild, sepKey, rightChild)
	}
	parentID := path[len(path)-1]
	buf, err := t.pa.GetPage(parentID)
	if err != nil {
		return err
	}
	entries := GetAllInternalEntries(buf)
	// The separator that bounded leftChild now bounds rightChild (the
	// upper half of the split), and leftChild gets sepKey as its new
	// bound. If leftChild was the rightmost child, rightChild takes over
	// as RightChild instead.
	for i := range entries {
		if entries[i].ChildID == leftChild {
			entries[i].ChildID = rightChild
		}
	}
	entries = append(entries, InternalEntry{ChildID: leftChild, Key: sepKey})
	sortInternalEntries(entries)
	rc := btreeRightChild(buf)
	if rc == leftChild {
		rc = rightChild
	}
	RebuildInternal(buf, entries, rc)
	SetPageCRC(buf)

	if fitsInternal(buf, entries) {
		return t.pa.PutPage(parentID, buf)
	}
	return t.splitInternal(path, entries, rc)
}

func sortInternalEntries(entries []InternalEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && keyLess(entries[j].Key, entries[j-1].Key); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func fitsInternal(buf []byte, entries []InternalEntry) bool {
	total := 0
	for _, e := range entries {
		total += len(marshalInternalEntry(e)) + 4
	}
	return total <= len(buf)-btBodyOff-8
}

func (t *BTree) splitInternal(path []PageID, entries []InternalEntry, rightChild PageID) error {
	nodeID := path[len(path)-1]
	mid := len(entries) / 2
	sepKey := entries[mid].Key
	left := entries[:mid]
	right := entries[mid+1:]

	rightID, rightBuf, err := t.pa.AllocPage(PageTypeBTreeInternal)
	if err != nil {
		return err
	}
	newNode := NewBTreeNode(t.pa.PageSize(), rightID, false)
	copy(rightBuf, newNode)
	RebuildInternal(rightBuf, right, rightChild)
	SetPageCRC(rightBuf)

	leftBuf, err := t.pa.GetPage(nodeID)
	if err != nil {
		return err
	}
	RebuildInternal(leftBuf, left, entries[mid].ChildID)
	SetPageCRC(leftBuf)

	if err := t.pa.PutPage(nodeID, leftBuf); err != nil {
		return err
	}
	if err := t.pa.PutPage(rightID, rightBuf); err != nil {
		return err
	}
	return t.insertIntoParent(path[:len(path)-1], nodeID, sepKey, rightID)
}

func (t *BTree) createNewRoot(left PageID, sepKey []byte, right PageID) error {
	id, buf, err := t.pa.AllocPage(PageTypeBTreeInternal)
	if err != nil {
		return err
	}
	newRoot := NewBTreeNode(t.pa.PageSize(), id, false)
	copy(buf, newRoot)
	RebuildInternal(buf, []InternalEntry{{ChildID: left, Key: sepKey}}, right)
	SetPageCRC(buf)
	if err := t.pa.PutPage(id, buf); err != nil {
		return err
	}
	t.root = id
	return nil
}

// Delete removes key if present. Sombra's workloads never shrink a
// tree below a handful of levels in practice, so underflow merging is
// intentionally not implemented — pages left sparse by deletes stay in
// the tree as they are; nothing merges or rebuilds them later.
func (t *BTree) Delete(key []byte) error {
	leafID, err := t.findLeaf(key)
	if err != nil {
		return err
	}
	buf, err := t.pa.GetPage(leafID)
	if err != nil {
		return err
	}
	entries := GetAllLeafEntries(buf)
	out := entries[:0]
	var removed *LeafEntry
	for i := range entries {
		if string(entries[i].Key) == string(key) {
			e := entries[i]
			removed = &e
			continue
		}
		out = append(out, entries[i])
	}
	if removed == nil {
		return nil
	}
	if removed.Overflow {
		if err := FreeOverflowChain(removed.OverflowPageID, t.pa.GetPage, t.pa.FreePage); err != nil {
			return err
		}
	}
	RebuildLeaf(buf, out)
	SetPageCRC(buf)
	return t.pa.PutPage(leafID, buf)
}

// ScanRange calls fn(key, value) for every entry with startKey <= key <
// endKey (endKey == nil means unbounded), in ascending key order,
// stopping early if fn returns false.
func (t *BTree) ScanRange(startKey, endKey []byte, fn func(key, value []byte) bool) error {
	leafID, err := t.findLeaf(startKey)
	if err != nil {
		return err
	}
	for leafID != InvalidPageID {
		buf, err := t.pa.GetPage(leafID)
		if err != nil {
			return err
		}
		entries := GetAllLeafEntries(buf)
		sortLeafEntries(entries)
		for _, e := range entries {
			if startKey != nil && keyLess(e.Key, startKey) {
				continue
			}
			if endKey != nil && !keyLess(e.Key, endKey) {
				return nil
			}
			val := e.Value
			if e.Overflow {
				val, err = ReadOverflowChain(e.OverflowPageID, t.pa.GetPage)
				if err != nil {
					return err
				}
			}
			if !fn(e.Key, val) {
				return nil
			}
		}
		leafID = btreeNextLeaf(buf)
	}
	return nil
}

// Count walks every leaf and counts live entries. O(n); used by tests
// (through pindex.Index.Count), not the hot path.
func (t *BTree) Count() (int, error) {
	n := 0
	err := t.ScanRange(nil, nil, func(k, v []byte) bool { n++; return true })
	return n, err
}

// FreeAllPages releases every page owned by the tree, including
// overflow chains. No index in this module calls it.
func (t *BTree) FreeAllPages() error {
	return t.freeSubtree(t.root)
}

func (t *BTree) freeSubtree(id PageID) error {
	buf, err := t.pa.GetPage(id)
	if err != nil {
		return err
	}
	if btreeIsLeaf(buf) {
		for _, e := range GetAllLeafEntries(buf) {
			if e.Overflow {
				if err := FreeOverflowChain(e.OverflowPageID, t.pa.GetPage, t.pa.FreePage); err != nil {
					return err
				}
			}
		}
		t.pa.FreePage(id)
		return nil
	}
	for _, e := range GetAllInternalEntries(buf) {
		if err := t.freeSubtree(e.ChildID); err != nil {
			return err
		}
	}
	if rc := btreeRightChild(buf); rc != InvalidPageID {
		if err := t.freeSubtree(rc); err != nil {
			return err
		}
	}
	t.pa.FreePage(id)
	return nil
}

// First returns the smallest key/value pair in the tree.
func (t *BTree) First() (key, value []byte, ok bool, err error) {
	var k, v []byte
	found := false
	err = t.ScanRange(nil, nil, func(ek, ev []byte) bool {
		k, v, found = ek, ev, true
		return false
	})
	return k, v, found, err
}

// Last returns the largest key/value pair in the tree.
func (t *BTree) Last() (key, value []byte, ok bool, err error) {
	leafID, err := t.findLeaf([]byte{0xff, 0xff, 0xff, 0xff})
	if err != nil {
		return nil, nil, false, err
	}
	for {
		buf, err := t.pa.GetPage(leafID)
		if err != nil {
			return nil, nil, false, err
		}
		next := btreeNextLeaf(buf)
		if next == InvalidPageID {
			entries := GetAllLeafEntries(buf)
			sortLeafEntries(entries)
			if len(entries) == 0 {
				return nil, nil, false, nil
			}
			last := entries[len(entries)-1]
			val := last.Value
			if last.Overflow {
				val, err = ReadOverflowChain(last.OverflowPageID, t.pa.GetPage)
				if err != nil {
					return nil, nil, false, err
				}
			}
			return last.Key, val, true, nil
		}
		leafID = next
	}
}
