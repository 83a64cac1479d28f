package adjacency

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/sombradb/sombra/internal/sombra/mvcc"
	"github.com/sombradb/sombra/internal/sombra/pager"
)

func newTestAccessor(t *testing.T) pager.PageAccessor {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.OpenPager(pager.PagerConfig{
		Path:       filepath.Join(dir, "test.sombra"),
		PageSize:   pager.DefaultPageSize,
		CachePages: 64,
	})
	if err != nil {
		t.Fatalf("OpenPager: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return &pager.TxPageAccessor{Pager: p, TxID: 1, CSN: 1}
}

func TestList_AddScanFiltersByType(t *testing.T) {
	pa := newTestAccessor(t)
	tst := mvcc.NewTST()
	l := Open(pa, pager.InvalidPageID, tst)

	entries := []Entry{
		{EdgeID: 1, OtherID: 2, EdgeType: "KNOWS", XMin: 10},
		{EdgeID: 2, OtherID: 3, EdgeType: "FOLLOWS", XMin: 10},
		{EdgeID: 3, OtherID: 4, EdgeType: "KNOWS", XMin: 10},
	}
	for _, e := range entries {
		head, err := l.Add(e)
		if err != nil {
			t.Fatalf("add %d: %v", e.EdgeID, err)
		}
		l = Open(pa, head, tst)
	}

	var knows []Entry
	if err := l.Scan(20, "KNOWS", func(e Entry) bool { knows = append(knows, e); return true }); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(knows) != 2 {
		t.Fatalf("expected 2 KNOWS edges, got %d", len(knows))
	}

	var all []Entry
	if err := l.Scan(20, "", func(e Entry) bool { all = append(all, e); return true }); err != nil {
		t.Fatalf("scan all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 total edges, got %d", len(all))
	}
}

func TestList_RemoveClosesVersionNotDeletes(t *testing.T) {
	pa := newTestAccessor(t)
	tst := mvcc.NewTST()
	l := Open(pa, pager.InvalidPageID, tst)
	head, err := l.Add(Entry{EdgeID: 1, OtherID: 2, EdgeType: "KNOWS", XMin: 10})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	l = Open(pa, head, tst)

	if err := l.Remove(1, 15); err != nil {
		t.Fatalf("remove: %v", err)
	}

	var after []Entry
	l.Scan(20, "", func(e Entry) bool { after = append(after, e); return true })
	if len(after) != 0 {
		t.Fatalf("expected edge gone from snapshot 20, got %v", after)
	}

	var before []Entry
	l.Scan(12, "", func(e Entry) bool { before = append(before, e); return true })
	if len(before) != 1 {
		t.Fatalf("expected edge still visible at snapshot 12, got %v", before)
	}

	if err := l.Remove(999, 20); err == nil {
		t.Fatal("expected NotFound removing an edge that was never added")
	}
}

func TestList_DegreeDistinctVsTotal(t *testing.T) {
	pa := newTestAccessor(t)
	tst := mvcc.NewTST()
	l := Open(pa, pager.InvalidPageID, tst)
	toAdd := []Entry{
		{EdgeID: 1, OtherID: 2, EdgeType: "KNOWS", XMin: 10},
		{EdgeID: 2, OtherID: 2, EdgeType: "LIKES", XMin: 10},
		{EdgeID: 3, OtherID: 3, EdgeType: "KNOWS", XMin: 10},
	}
	for _, e := range toAdd {
		head, err := l.Add(e)
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		l = Open(pa, head, tst)
	}

	total, err := l.Degree(20, "", false)
	if err != nil || total != 3 {
		t.Fatalf("total degree: got %d err=%v", total, err)
	}
	distinct, err := l.Degree(20, "", true)
	if err != nil || distinct != 2 {
		t.Fatalf("distinct degree: got %d err=%v", distinct, err)
	}
}

func TestList_OverflowsAcrossSegments(t *testing.T) {
	pa := newTestAccessor(t)
	tst := mvcc.NewTST()
	l := Open(pa, pager.InvalidPageID, tst)

	const n = 400
	for i := 0; i < n; i++ {
		e := Entry{EdgeID: uint64(i), OtherID: uint64(i + 1), EdgeType: fmt.Sprintf("T%d", i%5), XMin: 10}
		head, err := l.Add(e)
		if err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
		l = Open(pa, head, tst)
	}

	count, err := l.Degree(20, "", false)
	if err != nil {
		t.Fatalf("degree: %v", err)
	}
	if count != n {
		t.Fatalf("expected %d entries across segments, got %d", n, count)
	}
}

func TestList_VacuumBeforeRemovesClosedEntries(t *testing.T) {
	pa := newTestAccessor(t)
	tst := mvcc.NewTST()
	l := Open(pa, pager.InvalidPageID, tst)
	head, err := l.Add(Entry{EdgeID: 1, OtherID: 2, EdgeType: "KNOWS", XMin: 10})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	l = Open(pa, head, tst)
	l.Add(Entry{EdgeID: 2, OtherID: 3, EdgeType: "KNOWS", XMin: 10})

	if err := l.Remove(1, 15); err != nil {
		t.Fatalf("remove: %v", err)
	}
	removed, err := l.VacuumBefore(20)
	if err != nil {
		t.Fatalf("vacuum: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 entry vacuumed, got %d", removed)
	}
	count, err := l.Degree(30, "", false)
	if err != nil || count != 1 {
		t.Fatalf("degree after vacuum: got %d err=%v", count, err)
	}
}
