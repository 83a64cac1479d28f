package graphdb

import (
	"context"

	"github.com/sombradb/sombra/internal/sombra/adjacency"
	"github.com/sombradb/sombra/internal/sombra/mvcc"
	"github.com/sombradb/sombra/internal/sombra/pager"
	"github.com/sombradb/sombra/internal/sombra/pindex"
	"github.com/sombradb/sombra/internal/sombra/record"
	"github.com/sombradb/sombra/internal/sombra/sindex"
	"github.com/sombradb/sombra/internal/sombra/sombraerr"
)

func toSindexValue(v record.PropertyValue) sindex.Value {
	out := sindex.Value{Tag: byte(v.Tag), Int: v.Int, Float: v.Float, Str: v.Str, Bytes: v.Bytes}
	// sindex keys Bool and Datetime values by Int.
	switch v.Tag {
	case record.TagBool:
		if v.Bool {
			out.Int = 1
		}
	case record.TagDatetime:
		out.Int = v.Datetime
	}
	return out
}

// catalog bundles the index wrappers one graph operation needs, each
// opened against the superblock's current root pages.
type catalog struct {
	nodeIdx  *pindex.Index
	edgeIdx  *pindex.Index
	labelIdx *sindex.LabelIndex
	propIdx  *sindex.PropertyIndex
}

// openCatalog opens the primary/secondary index wrappers over the
// superblock's current root pages, creating whichever ones don't exist
// yet (a brand-new database has none).
func (db *DB) openCatalog(pa pager.PageAccessor, sb *pager.Superblock) (*catalog, error) {
	c := &catalog{}
	var err error

	if sb.PrimaryNodeRoot == pager.InvalidPageID {
		c.nodeIdx, err = pindex.Create(pa)
	} else {
		c.nodeIdx = pindex.Open(pa, sb.PrimaryNodeRoot)
	}
	if err != nil {
		return nil, err
	}

	if sb.PrimaryEdgeRoot == pager.InvalidPageID {
		c.edgeIdx, err = pindex.Create(pa)
	} else {
		c.edgeIdx = pindex.Open(pa, sb.PrimaryEdgeRoot)
	}
	if err != nil {
		return nil, err
	}

	if sb.LabelIndexRoot == pager.InvalidPageID {
		c.labelIdx, err = sindex.CreateLabelIndex(pa, db.tst)
	} else {
		c.labelIdx = sindex.OpenLabelIndex(pa, sb.LabelIndexRoot, db.tst)
	}
	if err != nil {
		return nil, err
	}

	if sb.PropertyIndexRoot == pager.InvalidPageID {
		if db.cfg.PropertyIndexEnabled {
			c.propIdx, err = sindex.CreatePropertyIndex(pa, db.tst)
		}
	} else {
		c.propIdx = sindex.OpenPropertyIndex(pa, sb.PropertyIndexRoot, db.tst)
	}
	return c, err
}

func (db *DB) persistCatalog(c *catalog) {
	db.pager.UpdateSuperblock(func(sb *pager.Superblock) {
		if c.nodeIdx != nil {
			sb.PrimaryNodeRoot = c.nodeIdx.Root()
		}
		if c.edgeIdx != nil {
			sb.PrimaryEdgeRoot = c.edgeIdx.Root()
		}
		if c.labelIdx != nil {
			sb.LabelIndexRoot = c.labelIdx.Root()
		}
		if c.propIdx != nil {
			sb.PropertyIndexRoot = c.propIdx.Root()
		}
	})
}

// AddNode creates a new node with the given labels and properties,
// returning its freshly assigned id.
func (db *DB) AddNode(labels []string, props record.Properties) (uint64, error) {
	wt, err := db.txnMgr.BeginWrite(context.Background())
	if err != nil {
		return 0, err
	}

	sb := db.pager.Superblock()
	cat, err := db.openCatalog(wt.Accessor, sb)
	if err != nil {
		wt.Rollback()
		return 0, err
	}

	var nodeID uint64
	db.pager.UpdateSuperblock(func(sb *pager.Superblock) {
		nodeID = sb.NextNodeID
		sb.NextNodeID++
	})

	store := record.NewStore(wt.Accessor)
	n := record.Node{ID: nodeID, Labels: labels, Properties: props, OutAdjRoot: pager.InvalidPageID, InAdjRoot: pager.InvalidPageID}
	loc, headPage, err := store.InsertNode(db.nodeHeadPage, n, uint64(wt.CSN))
	if err != nil {
		wt.Rollback()
		return 0, err
	}
	db.nodeHeadPage = headPage

	if err := cat.nodeIdx.Put(nodeID, loc); err != nil {
		wt.Rollback()
		return 0, err
	}
	for _, l := range labels {
		if err := cat.labelIdx.Attach(l, nodeID, uint64(wt.CSN)); err != nil {
			wt.Rollback()
			return 0, err
		}
	}
	if cat.propIdx != nil {
		for _, f := range props {
			if err := cat.propIdx.Attach(f.Name, toSindexValue(f.Value), nodeID, uint64(wt.CSN)); err != nil {
				wt.Rollback()
				return 0, err
			}
		}
	}

	db.persistCatalog(cat)
	if _, err := wt.Commit(); err != nil {
		return 0, err
	}
	return nodeID, nil
}

// AddEdge creates a directed edge from -> to, returning its id.
func (db *DB) AddEdge(from, to uint64, edgeType string, props record.Properties) (uint64, error) {
	wt, err := db.txnMgr.BeginWrite(context.Background())
	if err != nil {
		return 0, err
	}
	sb := db.pager.Superblock()
	cat, err := db.openCatalog(wt.Accessor, sb)
	if err != nil {
		wt.Rollback()
		return 0, err
	}
	store := record.NewStore(wt.Accessor)

	fromLoc, err := cat.nodeIdx.MustGet(from)
	if err != nil {
		wt.Rollback()
		return 0, err
	}
	toLoc, err := cat.nodeIdx.MustGet(to)
	if err != nil {
		wt.Rollback()
		return 0, err
	}
	fromRV, err := store.Read(fromLoc)
	if err != nil {
		wt.Rollback()
		return 0, err
	}
	toRV, err := store.Read(toLoc)
	if err != nil {
		wt.Rollback()
		return 0, err
	}

	var edgeID uint64
	db.pager.UpdateSuperblock(func(sb *pager.Superblock) {
		edgeID = sb.NextEdgeID
		sb.NextEdgeID++
	})

	e := record.Edge{ID: edgeID, From: from, To: to, Type: edgeType, Properties: props}
	loc, headPage, err := store.InsertEdge(db.edgeHeadPage, e, uint64(wt.CSN))
	if err != nil {
		wt.Rollback()
		return 0, err
	}
	db.edgeHeadPage = headPage
	if err := cat.edgeIdx.Put(edgeID, loc); err != nil {
		wt.Rollback()
		return 0, err
	}

	outList := adjacency.Open(wt.Accessor, fromRV.Node.OutAdjRoot, db.tst)
	newOutHead, err := outList.Add(adjacency.Entry{EdgeID: edgeID, OtherID: to, EdgeType: edgeType, XMin: uint64(wt.CSN)})
	if err != nil {
		wt.Rollback()
		return 0, err
	}
	inList := adjacency.Open(wt.Accessor, toRV.Node.InAdjRoot, db.tst)
	newInHead, err := inList.Add(adjacency.Entry{EdgeID: edgeID, OtherID: from, EdgeType: edgeType, XMin: uint64(wt.CSN)})
	if err != nil {
		wt.Rollback()
		return 0, err
	}

	if newOutHead != fromRV.Node.OutAdjRoot {
		updated := fromRV.Node
		updated.OutAdjRoot = newOutHead
		newLoc, newHead, err := store.ReplaceNode(db.nodeHeadPage, fromLoc, updated, uint64(wt.CSN), uint64(wt.CSN))
		if err != nil {
			wt.Rollback()
			return 0, err
		}
		db.nodeHeadPage = newHead
		if err := cat.nodeIdx.Put(from, newLoc); err != nil {
			wt.Rollback()
			return 0, err
		}
	}
	if to != from && newInHead != toRV.Node.InAdjRoot {
		updated := toRV.Node
		updated.InAdjRoot = newInHead
		newLoc, newHead, err := store.ReplaceNode(db.nodeHeadPage, toLoc, updated, uint64(wt.CSN), uint64(wt.CSN))
		if err != nil {
			wt.Rollback()
			return 0, err
		}
		db.nodeHeadPage = newHead
		if err := cat.nodeIdx.Put(to, newLoc); err != nil {
			wt.Rollback()
			return 0, err
		}
	}

	db.persistCatalog(cat)
	if _, err := wt.Commit(); err != nil {
		return 0, err
	}
	return edgeID, nil
}

// GetNode returns the node with the given id as visible at a
// fresh read snapshot, or a NotFound error.
func (db *DB) GetNode(id uint64) (record.Node, error) {
	rt := db.txnMgr.BeginRead()
	defer rt.Close()
	return db.getNodeAt(rt.Accessor(), rt.SnapshotCSN, id)
}

func (db *DB) getNodeAt(pa pager.PageAccessor, snapshotCSN, id uint64) (record.Node, error) {
	sb := db.pager.Superblock()
	if sb.PrimaryNodeRoot == pager.InvalidPageID {
		return record.Node{}, sombraerr.Newf(sombraerr.NotFound, "graphdb.GetNode", "node %d not found", id)
	}
	nodeIdx := pindex.Open(pa, sb.PrimaryNodeRoot)
	loc, ok, err := nodeIdx.Get(id)
	if err != nil {
		return record.Node{}, err
	}
	if !ok {
		return record.Node{}, sombraerr.Newf(sombraerr.NotFound, "graphdb.GetNode", "node %d not found", id)
	}
	store := record.NewStore(pa)
	chain, err := store.Chain(loc)
	if err != nil {
		return record.Node{}, err
	}
	rv, ok := mvcc.VisibleVersion(db.tst, chain, func(rv record.RawVersion) mvcc.Version {
		return mvcc.Version{XMin: rv.XMin, XMax: rv.XMax}
	}, snapshotCSN)
	if !ok {
		return record.Node{}, sombraerr.Newf(sombraerr.NotFound, "graphdb.GetNode", "node %d not visible at this snapshot", id)
	}
	return rv.Node, nil
}

// GetEdge returns the edge with the given id.
func (db *DB) GetEdge(id uint64) (record.Edge, error) {
	rt := db.txnMgr.BeginRead()
	defer rt.Close()
	sb := db.pager.Superblock()
	if sb.PrimaryEdgeRoot == pager.InvalidPageID {
		return record.Edge{}, sombraerr.Newf(sombraerr.NotFound, "graphdb.GetEdge", "edge %d not found", id)
	}
	edgeIdx := pindex.Open(rt.Accessor(), sb.PrimaryEdgeRoot)
	loc, ok, err := edgeIdx.Get(id)
	if err != nil {
		return record.Edge{}, err
	}
	if !ok {
		return record.Edge{}, sombraerr.Newf(sombraerr.NotFound, "graphdb.GetEdge", "edge %d not found", id)
	}
	store := record.NewStore(rt.Accessor())
	chain, err := store.Chain(loc)
	if err != nil {
		return record.Edge{}, err
	}
	rv, ok := mvcc.VisibleVersion(db.tst, chain, func(rv record.RawVersion) mvcc.Version {
		return mvcc.Version{XMin: rv.XMin, XMax: rv.XMax}
	}, rt.SnapshotCSN)
	if !ok {
		return record.Edge{}, sombraerr.Newf(sombraerr.NotFound, "graphdb.GetEdge", "edge %d not visible at this snapshot", id)
	}
	return rv.Edge, nil
}

// SetNodeProperty sets name=value on node id, copy-on-write.
func (db *DB) SetNodeProperty(id uint64, name string, value record.PropertyValue) error {
	wt, err := db.txnMgr.BeginWrite(context.Background())
	if err != nil {
		return err
	}
	sb := db.pager.Superblock()
	cat, err := db.openCatalog(wt.Accessor, sb)
	if err != nil {
		wt.Rollback()
		return err
	}
	store := record.NewStore(wt.Accessor)

	loc, err := cat.nodeIdx.MustGet(id)
	if err != nil {
		wt.Rollback()
		return err
	}
	rv, err := store.Read(loc)
	if err != nil {
		wt.Rollback()
		return err
	}

	old, hadOld := rv.Node.Properties.Get(name)
	updated := rv.Node
	updated.Properties = rv.Node.Properties.With(name, value)

	newLoc, newHead, err := store.ReplaceNode(db.nodeHeadPage, loc, updated, uint64(wt.CSN), uint64(wt.CSN))
	if err != nil {
		wt.Rollback()
		return err
	}
	db.nodeHeadPage = newHead
	if err := cat.nodeIdx.Put(id, newLoc); err != nil {
		wt.Rollback()
		return err
	}
	if cat.propIdx != nil {
		if hadOld {
			if err := cat.propIdx.Detach(name, toSindexValue(old), id, uint64(wt.CSN)); err != nil {
				wt.Rollback()
				return err
			}
		}
		if err := cat.propIdx.Attach(name, toSindexValue(value), id, uint64(wt.CSN)); err != nil {
			wt.Rollback()
			return err
		}
	}

	db.persistCatalog(cat)
	_, err = wt.Commit()
	return err
}

// RemoveNodeProperty deletes name from node id if present.
func (db *DB) RemoveNodeProperty(id uint64, name string) error {
	wt, err := db.txnMgr.BeginWrite(context.Background())
	if err != nil {
		return err
	}
	sb := db.pager.Superblock()
	cat, err := db.openCatalog(wt.Accessor, sb)
	if err != nil {
		wt.Rollback()
		return err
	}
	store := record.NewStore(wt.Accessor)

	loc, err := cat.nodeIdx.MustGet(id)
	if err != nil {
		wt.Rollback()
		return err
	}
	rv, err := store.Read(loc)
	if err != nil {
		wt.Rollback()
		return err
	}
	old, hadOld := rv.Node.Properties.Get(name)
	if !hadOld {
		wt.Rollback()
		return nil
	}
	updated := rv.Node
	updated.Properties = rv.Node.Properties.Without(name)

	newLoc, newHead, err := store.ReplaceNode(db.nodeHeadPage, loc, updated, uint64(wt.CSN), uint64(wt.CSN))
	if err != nil {
		wt.Rollback()
		return err
	}
	db.nodeHeadPage = newHead
	if err := cat.nodeIdx.Put(id, newLoc); err != nil {
		wt.Rollback()
		return err
	}
	if cat.propIdx != nil {
		if err := cat.propIdx.Detach(name, toSindexValue(old), id, uint64(wt.CSN)); err != nil {
			wt.Rollback()
			return err
		}
	}
	db.persistCatalog(cat)
	_, err = wt.Commit()
	return err
}

// DeleteNode tombstones a node. It refuses to delete a node that still
// has incident edges — callers must delete those first, matching the
// spec's invariant that every edge endpoint always resolves.
func (db *DB) DeleteNode(id uint64) error {
	wt, err := db.txnMgr.BeginWrite(context.Background())
	if err != nil {
		return err
	}
	sb := db.pager.Superblock()
	cat, err := db.openCatalog(wt.Accessor, sb)
	if err != nil {
		wt.Rollback()
		return err
	}
	store := record.NewStore(wt.Accessor)

	loc, err := cat.nodeIdx.MustGet(id)
	if err != nil {
		wt.Rollback()
		return err
	}
	rv, err := store.Read(loc)
	if err != nil {
		wt.Rollback()
		return err
	}
	if rv.Node.OutAdjRoot != pager.InvalidPageID || rv.Node.InAdjRoot != pager.InvalidPageID {
		out := adjacency.Open(wt.Accessor, rv.Node.OutAdjRoot, db.tst)
		in := adjacency.Open(wt.Accessor, rv.Node.InAdjRoot, db.tst)
		outDeg, _ := out.Degree(uint64(wt.CSN), "", false)
		inDeg, _ := in.Degree(uint64(wt.CSN), "", false)
		if outDeg > 0 || inDeg > 0 {
			wt.Rollback()
			return sombraerr.Newf(sombraerr.InvalidArgument, "graphdb.DeleteNode",
				"node %d still has incident edges", id)
		}
	}

	if err := store.Tombstone(loc, uint64(wt.CSN)); err != nil {
		wt.Rollback()
		return err
	}
	for _, l := range rv.Node.Labels {
		if err := cat.labelIdx.Detach(l, id, uint64(wt.CSN)); err != nil {
			wt.Rollback()
			return err
		}
	}
	if cat.propIdx != nil {
		for _, f := range rv.Node.Properties {
			if err := cat.propIdx.Detach(f.Name, toSindexValue(f.Value), id, uint64(wt.CSN)); err != nil {
				wt.Rollback()
				return err
			}
		}
	}
	db.persistCatalog(cat)
	_, err = wt.Commit()
	return err
}

// DeleteEdge tombstones an edge and removes it from both endpoints'
// adjacency lists.
func (db *DB) DeleteEdge(id uint64) error {
	wt, err := db.txnMgr.BeginWrite(context.Background())
	if err != nil {
		return err
	}
	sb := db.pager.Superblock()
	cat, err := db.openCatalog(wt.Accessor, sb)
	if err != nil {
		wt.Rollback()
		return err
	}
	store := record.NewStore(wt.Accessor)

	loc, err := cat.edgeIdx.MustGet(id)
	if err != nil {
		wt.Rollback()
		return err
	}
	rv, err := store.Read(loc)
	if err != nil {
		wt.Rollback()
		return err
	}
	fromLoc, err := cat.nodeIdx.MustGet(rv.Edge.From)
	if err != nil {
		wt.Rollback()
		return err
	}
	fromRV, err := store.Read(fromLoc)
	if err != nil {
		wt.Rollback()
		return err
	}
	out := adjacency.Open(wt.Accessor, fromRV.Node.OutAdjRoot, db.tst)
	if err := out.Remove(id, uint64(wt.CSN)); err != nil {
		wt.Rollback()
		return err
	}

	if rv.Edge.To != rv.Edge.From {
		toLoc, err := cat.nodeIdx.MustGet(rv.Edge.To)
		if err != nil {
			wt.Rollback()
			return err
		}
		toRV, err := store.Read(toLoc)
		if err != nil {
			wt.Rollback()
			return err
		}
		in := adjacency.Open(wt.Accessor, toRV.Node.InAdjRoot, db.tst)
		if err := in.Remove(id, uint64(wt.CSN)); err != nil {
			wt.Rollback()
			return err
		}
	} else {
		in := adjacency.Open(wt.Accessor, fromRV.Node.InAdjRoot, db.tst)
		if err := in.Remove(id, uint64(wt.CSN)); err != nil {
			wt.Rollback()
			return err
		}
	}

	if err := store.Tombstone(loc, uint64(wt.CSN)); err != nil {
		wt.Rollback()
		return err
	}
	db.persistCatalog(cat)
	_, err = wt.Commit()
	return err
}

// NeighborEdge is one result row from GetNeighbors.
type NeighborEdge struct {
	EdgeID   uint64
	NodeID   uint64
	EdgeType string
}

// GetNeighbors lists the neighbors of id in the given direction,
// optionally filtered by edge type (empty = all types). distinct
// deduplicates by neighbor node id; db.cfg.DistinctNeighborsDefault is
// the caller's usual choice.
func (db *DB) GetNeighbors(id uint64, dir adjacency.Direction, edgeType string, distinct bool) ([]NeighborEdge, error) {
	rt := db.txnMgr.BeginRead()
	defer rt.Close()
	n, err := db.getNodeAt(rt.Accessor(), rt.SnapshotCSN, id)
	if err != nil {
		return nil, err
	}
	root := n.OutAdjRoot
	if dir == adjacency.Incoming {
		root = n.InAdjRoot
	}
	list := adjacency.Open(rt.Accessor(), root, db.tst)
	seen := make(map[uint64]bool)
	var out []NeighborEdge
	err = list.Scan(rt.SnapshotCSN, edgeType, func(e adjacency.Entry) bool {
		if distinct {
			if seen[e.OtherID] {
				return true
			}
			seen[e.OtherID] = true
		}
		out = append(out, NeighborEdge{EdgeID: e.EdgeID, NodeID: e.OtherID, EdgeType: e.EdgeType})
		return true
	})
	return out, err
}

// BFS performs a breadth-first traversal outward from start up to
// maxDepth hops (0 = unbounded), following edges in the given
// direction and optionally restricted to one edge type. It returns
// the visited node ids in discovery order, start included first.
func (db *DB) BFS(start uint64, dir adjacency.Direction, edgeType string, maxDepth int) ([]uint64, error) {
	rt := db.txnMgr.BeginRead()
	defer rt.Close()
	pa := rt.Accessor()

	visited := map[uint64]bool{start: true}
	order := []uint64{start}
	frontier := []uint64{start}
	depth := 0

	for len(frontier) > 0 && (maxDepth == 0 || depth < maxDepth) {
		var next []uint64
		for _, id := range frontier {
			n, err := db.getNodeAt(pa, rt.SnapshotCSN, id)
			if err != nil {
				continue
			}
			root := n.OutAdjRoot
			if dir == adjacency.Incoming {
				root = n.InAdjRoot
			}
			list := adjacency.Open(pa, root, db.tst)
			err = list.Scan(rt.SnapshotCSN, edgeType, func(e adjacency.Entry) bool {
				if !visited[e.OtherID] {
					visited[e.OtherID] = true
					order = append(order, e.OtherID)
					next = append(next, e.OtherID)
				}
				return true
			})
			if err != nil {
				return order, err
			}
		}
		frontier = next
		depth++
	}
	return order, nil
}

// GetNodesByLabel lists node ids currently carrying label.
func (db *DB) GetNodesByLabel(label string) ([]uint64, error) {
	rt := db.txnMgr.BeginRead()
	defer rt.Close()
	sb := db.pager.Superblock()
	if sb.LabelIndexRoot == pager.InvalidPageID {
		return nil, nil
	}
	li := sindex.OpenLabelIndex(rt.Accessor(), sb.LabelIndexRoot, db.tst)
	var out []uint64
	err := li.NodesWithLabel(label, rt.SnapshotCSN, func(id uint64) bool {
		out = append(out, id)
		return true
	})
	return out, err
}

// GetNodesByProperty lists node ids currently holding name == value.
func (db *DB) GetNodesByProperty(name string, value record.PropertyValue) ([]uint64, error) {
	rt := db.txnMgr.BeginRead()
	defer rt.Close()
	sb := db.pager.Superblock()
	if sb.PropertyIndexRoot == pager.InvalidPageID {
		return nil, sombraerr.New(sombraerr.InvalidArgument, "graphdb.GetNodesByProperty", "property index is disabled")
	}
	pi := sindex.OpenPropertyIndex(rt.Accessor(), sb.PropertyIndexRoot, db.tst)
	var out []uint64
	err := pi.NodesWithValue(name, toSindexValue(value), rt.SnapshotCSN, func(id uint64) bool {
		out = append(out, id)
		return true
	})
	return out, err
}

// GetNodesInRange lists node ids whose name property falls in [lo, hi)
// by canonical ordering; a nil bound is unbounded on that side.
func (db *DB) GetNodesInRange(name string, lo, hi *record.PropertyValue) ([]uint64, error) {
	rt := db.txnMgr.BeginRead()
	defer rt.Close()
	sb := db.pager.Superblock()
	if sb.PropertyIndexRoot == pager.InvalidPageID {
		return nil, sombraerr.New(sombraerr.InvalidArgument, "graphdb.GetNodesInRange", "property index is disabled")
	}
	pi := sindex.OpenPropertyIndex(rt.Accessor(), sb.PropertyIndexRoot, db.tst)
	var lov, hiv *sindex.Value
	if lo != nil {
		v := toSindexValue(*lo)
		lov = &v
	}
	if hi != nil {
		v := toSindexValue(*hi)
		hiv = &v
	}
	var out []uint64
	err := pi.NodesInRange(name, lov, hiv, rt.SnapshotCSN, func(id uint64) bool {
		out = append(out, id)
		return true
	})
	return out, err
}

// GetAllNodeIDsOrdered returns every node id in ascending order.
func (db *DB) GetAllNodeIDsOrdered() ([]uint64, error) {
	rt := db.txnMgr.BeginRead()
	defer rt.Close()
	sb := db.pager.Superblock()
	if sb.PrimaryNodeRoot == pager.InvalidPageID {
		return nil, nil
	}
	nodeIdx := pindex.Open(rt.Accessor(), sb.PrimaryNodeRoot)
	var out []uint64
	err := nodeIdx.Range(0, 0, func(id uint64, _ record.Location) bool {
		out = append(out, id)
		return true
	})
	return out, err
}

// GetFirst returns the smallest node id.
func (db *DB) GetFirst() (uint64, bool, error) {
	rt := db.txnMgr.BeginRead()
	defer rt.Close()
	sb := db.pager.Superblock()
	if sb.PrimaryNodeRoot == pager.InvalidPageID {
		return 0, false, nil
	}
	id, _, ok, err := pindex.Open(rt.Accessor(), sb.PrimaryNodeRoot).First()
	return id, ok, err
}

// GetLast returns the largest node id.
func (db *DB) GetLast() (uint64, bool, error) {
	rt := db.txnMgr.BeginRead()
	defer rt.Close()
	sb := db.pager.Superblock()
	if sb.PrimaryNodeRoot == pager.InvalidPageID {
		return 0, false, nil
	}
	id, _, ok, err := pindex.Open(rt.Accessor(), sb.PrimaryNodeRoot).Last()
	return id, ok, err
}

// GetFirstN returns up to n smallest node ids, ascending.
func (db *DB) GetFirstN(n int) ([]uint64, error) {
	rt := db.txnMgr.BeginRead()
	defer rt.Close()
	sb := db.pager.Superblock()
	if sb.PrimaryNodeRoot == pager.InvalidPageID {
		return nil, nil
	}
	return pindex.Open(rt.Accessor(), sb.PrimaryNodeRoot).FirstN(n)
}

// GetLastN returns up to n largest node ids, ascending.
func (db *DB) GetLastN(n int) ([]uint64, error) {
	rt := db.txnMgr.BeginRead()
	defer rt.Close()
	sb := db.pager.Superblock()
	if sb.PrimaryNodeRoot == pager.InvalidPageID {
		return nil, nil
	}
	return pindex.Open(rt.Accessor(), sb.PrimaryNodeRoot).LastN(n)
}
