// Package pindex is the primary index: an ordered map from NodeID or
// EdgeID to the record.Location of that entity's newest version. It is
// a thin domain-specific wrapper around pager's generic BTree — the
// same code backs both the node index and the edge index, each with
// its own root page.
package pindex

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/sombra/pager"
	"github.com/sombradb/sombra/internal/sombra/record"
	"github.com/sombradb/sombra/internal/sombra/sombraerr"
)

// Index maps a uint64 entity id to its newest record.Location.
type Index struct {
	tree *pager.BTree
}

// Open wraps an existing root page.
func Open(pa pager.PageAccessor, root pager.PageID) *Index {
	return &Index{tree: pager.NewBTree(pa, root)}
}

// Create allocates a fresh empty index.
func Create(pa pager.PageAccessor) (*Index, error) {
	t, err := pager.CreateBTree(pa)
	if err != nil {
		return nil, err
	}
	return &Index{tree: t}, nil
}

func (ix *Index) Root() pager.PageID { return ix.tree.Root() }

func encodeKey(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

func decodeKey(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func encodeLoc(loc record.Location) []byte {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(loc.Page))
	binary.BigEndian.PutUint32(buf[4:8], uint32(loc.Slot))
	return buf[:]
}

func decodeLoc(b []byte) record.Location {
	return record.Location{
		Page: pager.PageID(binary.BigEndian.Uint32(b[0:4])),
		Slot: int(binary.BigEndian.Uint32(b[4:8])),
	}
}

// Get returns the location of id's newest version.
func (ix *Index) Get(id uint64) (record.Location, bool, error) {
	v, ok, err := ix.tree.Get(encodeKey(id))
	if err != nil || !ok {
		return record.Location{}, ok, err
	}
	return decodeLoc(v), true, nil
}

// MustGet is Get but returns a NotFound *sombraerr.Error when absent.
func (ix *Index) MustGet(id uint64) (record.Location, error) {
	loc, ok, err := ix.Get(id)
	if err != nil {
		return record.Location{}, err
	}
	if !ok {
		return record.Location{}, sombraerr.Newf(sombraerr.NotFound, "pindex.MustGet", "id %d not found", id)
	}
	return loc, nil
}

// Put inserts or overwrites the mapping for id.
func (ix *Index) Put(id uint64, loc record.Location) error {
	return ix.tree.Insert(encodeKey(id), encodeLoc(loc))
}

// Delete removes id from the index entirely. graphdb's delete
// operations do not call it — a deleted entity keeps its index entry so
// readers holding an older snapshot can reach the tombstoned version —
// and Vacuum does not call it either.
func (ix *Index) Delete(id uint64) error {
	return ix.tree.Delete(encodeKey(id))
}

// Range iterates ids in [start, end) ascending, end == 0 means
// unbounded above.
func (ix *Index) Range(start, end uint64, fn func(id uint64, loc record.Location) bool) error {
	var endKey []byte
	if end != 0 {
		endKey = encodeKey(end)
	}
	return ix.tree.ScanRange(encodeKey(start), endKey, func(k, v []byte) bool {
		return fn(decodeKey(k), decodeLoc(v))
	})
}

// First returns the smallest id in the index.
func (ix *Index) First() (uint64, record.Location, bool, error) {
	k, v, ok, err := ix.tree.First()
	if err != nil || !ok {
		return 0, record.Location{}, ok, err
	}
	return decodeKey(k), decodeLoc(v), true, nil
}

// Last returns the largest id in the index.
func (ix *Index) Last() (uint64, record.Location, bool, error) {
	k, v, ok, err := ix.tree.Last()
	if err != nil || !ok {
		return 0, record.Location{}, ok, err
	}
	return decodeKey(k), decodeLoc(v), true, nil
}

// FirstN returns up to n ids starting from the smallest, ascending.
func (ix *Index) FirstN(n int) ([]uint64, error) {
	var out []uint64
	err := ix.tree.ScanRange(nil, nil, func(k, v []byte) bool {
		out = append(out, decodeKey(k))
		return len(out) < n
	})
	return out, err
}

// LastN returns up to n ids ending at the largest, ascending order.
func (ix *Index) LastN(n int) ([]uint64, error) {
	var all []uint64
	err := ix.tree.ScanRange(nil, nil, func(k, v []byte) bool {
		all = append(all, decodeKey(k))
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// Count returns the number of entries (O(n), walks every leaf).
func (ix *Index) Count() (int, error) { return ix.tree.Count() }
