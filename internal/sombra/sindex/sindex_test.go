package sindex

import (
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

func TestLabelIndex_AttachScanDetach(t *testing.T) {
	pa := newTestAccessor(t)
	li, err := CreateLabelIndex(pa, mvcc.NewTST())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := li.Attach("Person", 1, 10); err != nil {
		t.Fatalf("attach 1: %v", err)
	}
	if err := li.Attach("Person", 2, 10); err != nil {
		t.Fatalf("attach 2: %v", err)
	}
	if err := li.Attach("Company", 3, 10); err != nil {
		t.Fatalf("attach 3: %v", err)
	}

	var seen []uint64
	if err := li.NodesWithLabel("Person", 20, func(id uint64) bool { seen = append(seen, id); return true }); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("got %v want [1 2]", seen)
	}

	if err := li.Detach("Person", 1, 15); err != nil {
		t.Fatalf("detach: %v", err)
	}
	seen = nil
	li.NodesWithLabel("Person", 20, func(id uint64) bool { seen = append(seen, id); return true })
	if len(seen) != 1 || seen[0] != 2 {
		t.Fatalf("after detach: got %v want [2]", seen)
	}
	// a reader whose snapshot predates the detach still sees node 1 attached.
	seen = nil
	li.NodesWithLabel("Person", 12, func(id uint64) bool { seen = append(seen, id); return true })
	if len(seen) != 2 {
		t.Fatalf("snapshot before detach: got %v want both nodes visible", seen)
	}
}

func TestLabelIndex_VacuumRemovesClosedPostingsOnly(t *testing.T) {
	pa := newTestAccessor(t)
	li, err := CreateLabelIndex(pa, mvcc.NewTST())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	li.Attach("Person", 1, 10)
	li.Attach("Person", 2, 10)
	li.Detach("Person", 1, 15)

	removed, err := li.VacuumBefore(20)
	if err != nil {
		t.Fatalf("vacuum: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 posting removed, got %d", removed)
	}
	var seen []uint64
	li.NodesWithLabel("Person", 30, func(id uint64) bool { seen = append(seen, id); return true })
	if len(seen) != 1 || seen[0] != 2 {
		t.Fatalf("after vacuum: got %v want [2]", seen)
	}
}

func TestPropertyIndex_ExactAndRangeScan(t *testing.T) {
	pa := newTestAccessor(t)
	pi, err := CreatePropertyIndex(pa, mvcc.NewTST())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ages := map[uint64]int64{1: 25, 2: 30, 3: 30, 4: 40}
	for id, age := range ages {
		v := Value{Tag: tagInt64, Int: age}
		if err := pi.Attach("age", v, id, 10); err != nil {
			t.Fatalf("attach %d: %v", id, err)
		}
	}

	var exact []uint64
	if err := pi.NodesWithValue("age", Value{Tag: tagInt64, Int: 30}, 20, func(id uint64) bool {
		exact = append(exact, id)
		return true
	}); err != nil {
		t.Fatalf("exact scan: %v", err)
	}
	if len(exact) != 2 {
		t.Fatalf("exact match on age=30: got %v want 2 ids", exact)
	}

	var ranged []uint64
	lo := Value{Tag: tagInt64, Int: 28}
	hi := Value{Tag: tagInt64, Int: 41}
	if err := pi.NodesInRange("age", &lo, &hi, 20, func(id uint64) bool {
		ranged = append(ranged, id)
		return true
	}); err != nil {
		t.Fatalf("range scan: %v", err)
	}
	if len(ranged) != 3 {
		t.Fatalf("range [28,41): got %v want 3 ids (2,3,4)", ranged)
	}
}

func TestPropertyIndex_DetachHidesFutureReaders(t *testing.T) {
	pa := newTestAccessor(t)
	pi, err := CreatePropertyIndex(pa, mvcc.NewTST())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	v := Value{Tag: tagString, Str: "Alice"}
	if err := pi.Attach("name", v, 1, 10); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := pi.Detach("name", v, 1, 15); err != nil {
		t.Fatalf("detach: %v", err)
	}

	var after []uint64
	pi.NodesWithValue("name", v, 20, func(id uint64) bool { after = append(after, id); return true })
	if len(after) != 0 {
		t.Fatalf("expected no match after detach at snapshot 20, got %v", after)
	}

	var before []uint64
	pi.NodesWithValue("name", v, 12, func(id uint64) bool { before = append(before, id); return true })
	if len(before) != 1 {
		t.Fatalf("expected match for snapshot before detach, got %v", before)
	}
}
