package graphdb

import (
	"path/filepath"
	"testing"

	"github.com/sombradb/sombra/internal/sombra/adjacency"
	"github.com/sombradb/sombra/internal/sombra/config"
	"github.com/sombradb/sombra/internal/sombra/record"
	"github.com/sombradb/sombra/internal/sombra/sombraerr"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := config.Default()
	cfg.AutoCheckpointInterval = 0
	cfg.VacuumInterval = 0
	cfg.PageSize = 4096
	cfg.CachePages = 64

	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "test.sombra"), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAddGetNode(t *testing.T) {
	db := newTestDB(t)
	id, err := db.AddNode([]string{"Person"}, record.Properties{
		{Name: "name", Value: record.FromString("Alice")},
	})
	if err != nil {
		t.Fatalf("add node: %v", err)
	}
	n, err := db.GetNode(id)
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if n.ID != id || n.Labels[0] != "Person" {
		t.Fatalf("unexpected node: %+v", n)
	}
	if v, ok := n.Properties.Get("name"); !ok || v.Str != "Alice" {
		t.Fatalf("unexpected properties: %+v", n.Properties)
	}
}

func TestGetNode_UnknownIDReturnsNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetNode(9999)
	if !sombraerr.Is(err, sombraerr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestAddEdgeAndNeighbors(t *testing.T) {
	db := newTestDB(t)
	alice, _ := db.AddNode([]string{"Person"}, nil)
	bob, _ := db.AddNode([]string{"Person"}, nil)
	edgeID, err := db.AddEdge(alice, bob, "KNOWS", nil)
	if err != nil {
		t.Fatalf("add edge: %v", err)
	}

	e, err := db.GetEdge(edgeID)
	if err != nil {
		t.Fatalf("get edge: %v", err)
	}
	if e.From != alice || e.To != bob || e.Type != "KNOWS" {
		t.Fatalf("unexpected edge: %+v", e)
	}

	out, err := db.GetNeighbors(alice, adjacency.Outgoing, "", true)
	if err != nil {
		t.Fatalf("neighbors out: %v", err)
	}
	if len(out) != 1 || out[0].NodeID != bob {
		t.Fatalf("unexpected out neighbors: %+v", out)
	}

	in, err := db.GetNeighbors(bob, adjacency.Incoming, "", true)
	if err != nil {
		t.Fatalf("neighbors in: %v", err)
	}
	if len(in) != 1 || in[0].NodeID != alice {
		t.Fatalf("unexpected in neighbors: %+v", in)
	}
}

func TestAddEdge_UnknownEndpointErrors(t *testing.T) {
	db := newTestDB(t)
	alice, _ := db.AddNode(nil, nil)
	if _, err := db.AddEdge(alice, 9999, "KNOWS", nil); !sombraerr.Is(err, sombraerr.NotFound) {
		t.Fatalf("expected NotFound for unknown endpoint, got %v", err)
	}
}

func TestSetAndRemoveNodeProperty(t *testing.T) {
	db := newTestDB(t)
	id, _ := db.AddNode([]string{"Person"}, nil)

	if err := db.SetNodeProperty(id, "age", record.FromInt(30)); err != nil {
		t.Fatalf("set property: %v", err)
	}
	n, err := db.GetNode(id)
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if v, ok := n.Properties.Get("age"); !ok || v.Int != 30 {
		t.Fatalf("unexpected properties: %+v", n.Properties)
	}

	matches, err := db.GetNodesByProperty("age", record.FromInt(30))
	if err != nil {
		t.Fatalf("get by property: %v", err)
	}
	if len(matches) != 1 || matches[0] != id {
		t.Fatalf("unexpected property match: %v", matches)
	}

	if err := db.RemoveNodeProperty(id, "age"); err != nil {
		t.Fatalf("remove property: %v", err)
	}
	n, err = db.GetNode(id)
	if err != nil {
		t.Fatalf("get node after remove: %v", err)
	}
	if _, ok := n.Properties.Get("age"); ok {
		t.Fatal("expected age property removed")
	}
}

func TestDeleteNode_RefusesWhileEdgesRemain(t *testing.T) {
	db := newTestDB(t)
	alice, _ := db.AddNode(nil, nil)
	bob, _ := db.AddNode(nil, nil)
	edgeID, _ := db.AddEdge(alice, bob, "KNOWS", nil)

	if err := db.DeleteNode(alice); !sombraerr.Is(err, sombraerr.InvalidArgument) {
		t.Fatalf("expected InvalidArgument deleting a node with incident edges, got %v", err)
	}

	if err := db.DeleteEdge(edgeID); err != nil {
		t.Fatalf("delete edge: %v", err)
	}
	if err := db.DeleteNode(alice); err != nil {
		t.Fatalf("delete node after edge removed: %v", err)
	}
	if _, err := db.GetNode(alice); !sombraerr.Is(err, sombraerr.NotFound) {
		t.Fatalf("expected node gone after delete, got %v", err)
	}
}

func TestDeleteEdge_RemovesFromBothAdjacencyLists(t *testing.T) {
	db := newTestDB(t)
	alice, _ := db.AddNode(nil, nil)
	bob, _ := db.AddNode(nil, nil)
	edgeID, _ := db.AddEdge(alice, bob, "KNOWS", nil)

	if err := db.DeleteEdge(edgeID); err != nil {
		t.Fatalf("delete edge: %v", err)
	}
	out, err := db.GetNeighbors(alice, adjacency.Outgoing, "", false)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no out neighbors after delete, got %v", out)
	}
	in, err := db.GetNeighbors(bob, adjacency.Incoming, "", false)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(in) != 0 {
		t.Fatalf("expected no in neighbors after delete, got %v", in)
	}
}

func TestBFS_BoundedByMaxDepth(t *testing.T) {
	db := newTestDB(t)
	a, _ := db.AddNode(nil, nil)
	b, _ := db.AddNode(nil, nil)
	c, _ := db.AddNode(nil, nil)
	db.AddEdge(a, b, "NEXT", nil)
	db.AddEdge(b, c, "NEXT", nil)

	order, err := db.BFS(a, adjacency.Outgoing, "", 1)
	if err != nil {
		t.Fatalf("bfs: %v", err)
	}
	if len(order) != 2 || order[0] != a || order[1] != b {
		t.Fatalf("depth-1 bfs: got %v want [a b]", order)
	}

	full, err := db.BFS(a, adjacency.Outgoing, "", 0)
	if err != nil {
		t.Fatalf("bfs unbounded: %v", err)
	}
	if len(full) != 3 {
		t.Fatalf("unbounded bfs: got %v want all 3 nodes", full)
	}
}

func TestGetNodesByLabel(t *testing.T) {
	db := newTestDB(t)
	p1, _ := db.AddNode([]string{"Person"}, nil)
	p2, _ := db.AddNode([]string{"Person"}, nil)
	db.AddNode([]string{"Company"}, nil)

	ids, err := db.GetNodesByLabel("Person")
	if err != nil {
		t.Fatalf("by label: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 Person nodes, got %v", ids)
	}
	seen := map[uint64]bool{ids[0]: true, ids[1]: true}
	if !seen[p1] || !seen[p2] {
		t.Fatalf("missing expected ids: %v", ids)
	}
}

func TestGetNodesInRange(t *testing.T) {
	db := newTestDB(t)
	ids := make(map[int64]uint64)
	for _, age := range []int64{20, 25, 30, 35, 40} {
		id, _ := db.AddNode(nil, record.Properties{{Name: "age", Value: record.FromInt(age)}})
		ids[age] = id
	}
	lo := record.FromInt(24)
	hi := record.FromInt(36)
	matches, err := db.GetNodesInRange("age", &lo, &hi)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches in [24,36), got %v", matches)
	}
}

func TestGetAllNodeIDsOrderedAndFirstLast(t *testing.T) {
	db := newTestDB(t)
	var ids []uint64
	for i := 0; i < 5; i++ {
		id, _ := db.AddNode(nil, nil)
		ids = append(ids, id)
	}
	all, err := db.GetAllNodeIDsOrdered()
	if err != nil {
		t.Fatalf("ordered: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 ids, got %v", all)
	}
	for i := 1; i < len(all); i++ {
		if all[i] <= all[i-1] {
			t.Fatalf("expected ascending order, got %v", all)
		}
	}

	first, ok, err := db.GetFirst()
	if err != nil || !ok || first != all[0] {
		t.Fatalf("GetFirst: got %d ok=%v err=%v", first, ok, err)
	}
	last, ok, err := db.GetLast()
	if err != nil || !ok || last != all[len(all)-1] {
		t.Fatalf("GetLast: got %d ok=%v err=%v", last, ok, err)
	}
}

func TestCheckpointAndVerifyIntegrity(t *testing.T) {
	db := newTestDB(t)
	a, _ := db.AddNode([]string{"Person"}, nil)
	b, _ := db.AddNode([]string{"Person"}, nil)
	db.AddEdge(a, b, "KNOWS", nil)

	if err := db.Checkpoint(); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if err := db.VerifyIntegrity(); err != nil {
		t.Fatalf("verify integrity: %v", err)
	}
}

func TestVacuum_ReclaimsDetachedPostings(t *testing.T) {
	db := newTestDB(t)
	id, _ := db.AddNode([]string{"Person"}, nil)
	if err := db.DeleteNode(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Vacuum(); err != nil {
		t.Fatalf("vacuum: %v", err)
	}
}

func TestReopen_PersistsAcrossClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.sombra")
	cfg := config.Default()
	cfg.AutoCheckpointInterval = 0
	cfg.VacuumInterval = 0

	db, err := Open(path, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id, err := db.AddNode([]string{"Person"}, record.Properties{{Name: "name", Value: record.FromString("Alice")}})
	if err != nil {
		t.Fatalf("add node: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := Open(path, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	n, err := db2.GetNode(id)
	if err != nil {
		t.Fatalf("get node after reopen: %v", err)
	}
	if v, ok := n.Properties.Get("name"); !ok || v.Str != "Alice" {
		t.Fatalf("unexpected node after reopen: %+v", n)
	}
}
