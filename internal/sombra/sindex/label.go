package sindex

import (
	"github.com/sombradb/sombra/internal/sombra/mvcc"
	"github.com/sombradb/sombra/internal/sombra/pager"
)

// LabelIndex maps label -> the set of node ids currently carrying it.
// Key = label bytes + 0x00 + big-endian node id; value = a posting
// header so a reader's snapshot can tell whether the label was already
// attached (and not yet removed) as of its CSN.
type LabelIndex struct {
	tree *pager.BTree
	tst  *mvcc.TransactionStatusTable
}

func OpenLabelIndex(pa pager.PageAccessor, root pager.PageID, tst *mvcc.TransactionStatusTable) *LabelIndex {
	return &LabelIndex{tree: pager.NewBTree(pa, root), tst: tst}
}

func CreateLabelIndex(pa pager.PageAccessor, tst *mvcc.TransactionStatusTable) (*LabelIndex, error) {
	t, err := pager.CreateBTree(pa)
	if err != nil {
		return nil, err
	}
	return &LabelIndex{tree: t, tst: tst}, nil
}

func (li *LabelIndex) Root() pager.PageID { return li.tree.Root() }

func labelKey(label string, nodeID uint64) []byte {
	key := append([]byte(label), keySep)
	return append(key, nodeIDBytes(nodeID)...)
}

func labelPrefix(label string) []byte {
	return append([]byte(label), keySep)
}

func labelPrefixEnd(label string) []byte {
	p := labelPrefix(label)
	end := append([]byte(nil), p...)
	end[len(end)-1]++
	return end
}

// Attach records that nodeID carries label as of xmin.
func (li *LabelIndex) Attach(label string, nodeID uint64, xmin uint64) error {
	return li.tree.Insert(labelKey(label, nodeID), marshalPosting(posting{XMin: xmin}))
}

// Detach closes the posting's visibility window as of xmax rather than
// physically removing the key, so snapshots predating xmax still find
// the label attached. Vacuum physically drops closed postings whose
// xmax predates the oldest live snapshot.
func (li *LabelIndex) Detach(label string, nodeID uint64, xmax uint64) error {
	key := labelKey(label, nodeID)
	v, ok, err := li.tree.Get(key)
	if err != nil || !ok {
		return err
	}
	p := unmarshalPosting(v)
	p.XMax = xmax
	return li.tree.Insert(key, marshalPosting(p))
}

// NodesWithLabel calls fn(nodeID) for every node visible at snapshotCSN
// that currently carries label, ascending by node id.
func (li *LabelIndex) NodesWithLabel(label string, snapshotCSN uint64, fn func(nodeID uint64) bool) error {
	start := labelPrefix(label)
	end := labelPrefixEnd(label)
	return li.tree.ScanRange(start, end, func(k, v []byte) bool {
		p := unmarshalPosting(v)
		if !p.visibleAt(li.tst, snapshotCSN) {
			return true
		}
		return fn(decodeNodeID(k[len(k)-8:]))
	})
}

// VacuumBefore permanently removes postings whose XMax is nonzero,
// closed by a transaction that actually committed, and strictly less
// than horizonCSN — the oldest CSN any live snapshot still depends on.
func (li *LabelIndex) VacuumBefore(horizonCSN uint64) (removed int, err error) {
	var dead [][]byte
	err = li.tree.ScanRange(nil, nil, func(k, v []byte) bool {
		p := unmarshalPosting(v)
		if p.XMax != 0 && li.tst.StatusOf(p.XMax) != mvcc.Aborted && p.XMax < horizonCSN {
			dead = append(dead, append([]byte(nil), k...))
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	for _, k := range dead {
		if err := li.tree.Delete(k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
