package sindex

import (
	"github.com/sombradb/sombra/internal/sombra/mvcc"
	"github.com/sombradb/sombra/internal/sombra/pager"
)

// PropertyIndex maps (property name, canonical value) -> the set of
// node ids currently holding that exact value, ordered so range scans
// over a single property name walk values in ascending natural order.
// Key = name + 0x00 + canonical-value-bytes + 0x00 + big-endian node id.
type PropertyIndex struct {
	tree *pager.BTree
	tst  *mvcc.TransactionStatusTable
}

func OpenPropertyIndex(pa pager.PageAccessor, root pager.PageID, tst *mvcc.TransactionStatusTable) *PropertyIndex {
	return &PropertyIndex{tree: pager.NewBTree(pa, root), tst: tst}
}

func CreatePropertyIndex(pa pager.PageAccessor, tst *mvcc.TransactionStatusTable) (*PropertyIndex, error) {
	t, err := pager.CreateBTree(pa)
	if err != nil {
		return nil, err
	}
	return &PropertyIndex{tree: t, tst: tst}, nil
}

func (pi *PropertyIndex) Root() pager.PageID { return pi.tree.Root() }

// Value is the subset of record.PropertyValue the index needs to
// derive a canonical ordering key, passed in by the graphdb facade so
// this package stays independent of the record package.
type Value struct {
	Tag   byte
	Int   int64
	Float float64
	Str   string
	Bytes []byte
}

func propKey(name string, val Value, nodeID uint64) []byte {
	key := append([]byte(name), keySep)
	key = append(key, canonicalBytes(val.Tag, val.Int, val.Float, val.Str, val.Bytes)...)
	key = append(key, keySep)
	return append(key, nodeIDBytes(nodeID)...)
}

func propPrefix(name string) []byte {
	return append([]byte(name), keySep)
}

func propPrefixEnd(name string) []byte {
	p := propPrefix(name)
	end := append([]byte(nil), p...)
	end[len(end)-1]++
	return end
}

// Attach records that nodeID holds name=val as of xmin.
func (pi *PropertyIndex) Attach(name string, val Value, nodeID uint64, xmin uint64) error {
	return pi.tree.Insert(propKey(name, val, nodeID), marshalPosting(posting{XMin: xmin}))
}

// Detach closes the posting's visibility window as of xmax.
func (pi *PropertyIndex) Detach(name string, val Value, nodeID uint64, xmax uint64) error {
	key := propKey(name, val, nodeID)
	v, ok, err := pi.tree.Get(key)
	if err != nil || !ok {
		return err
	}
	p := unmarshalPosting(v)
	p.XMax = xmax
	return pi.tree.Insert(key, marshalPosting(p))
}

// NodesWithValue calls fn(nodeID) for every node visible at
// snapshotCSN currently holding name == val.
func (pi *PropertyIndex) NodesWithValue(name string, val Value, snapshotCSN uint64, fn func(nodeID uint64) bool) error {
	exact := append(propKey(name, val, 0)[:len(propKey(name, val, 0))-8])
	exactEnd := append([]byte(nil), exact...)
	exactEnd = append(exactEnd, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	return pi.tree.ScanRange(exact, exactEnd, func(k, v []byte) bool {
		p := unmarshalPosting(v)
		if !p.visibleAt(pi.tst, snapshotCSN) {
			return true
		}
		return fn(decodeNodeID(k[len(k)-8:]))
	})
}

// NodesInRange calls fn(nodeID) for every node visible at snapshotCSN
// whose value for name falls in [lo, hi) by canonical byte order.
// A nil lo or hi means unbounded on that side.
func (pi *PropertyIndex) NodesInRange(name string, lo, hi *Value, snapshotCSN uint64, fn func(nodeID uint64) bool) error {
	start := propPrefix(name)
	if lo != nil {
		start = append(append([]byte(name), keySep), canonicalBytes(lo.Tag, lo.Int, lo.Float, lo.Str, lo.Bytes)...)
	}
	end := propPrefixEnd(name)
	if hi != nil {
		end = append(append([]byte(name), keySep), canonicalBytes(hi.Tag, hi.Int, hi.Float, hi.Str, hi.Bytes)...)
	}
	return pi.tree.ScanRange(start, end, func(k, v []byte) bool {
		p := unmarshalPosting(v)
		if !p.visibleAt(pi.tst, snapshotCSN) {
			return true
		}
		return fn(decodeNodeID(k[len(k)-8:]))
	})
}

// VacuumBefore permanently removes postings closed by a committed
// transaction before horizonCSN.
func (pi *PropertyIndex) VacuumBefore(horizonCSN uint64) (removed int, err error) {
	var dead [][]byte
	err = pi.tree.ScanRange(nil, nil, func(k, v []byte) bool {
		p := unmarshalPosting(v)
		if p.XMax != 0 && pi.tst.StatusOf(p.XMax) != mvcc.Aborted && p.XMax < horizonCSN {
			dead = append(dead, append([]byte(nil), k...))
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	for _, k := range dead {
		if err := pi.tree.Delete(k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
