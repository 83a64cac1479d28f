package mvcc

import "testing"

func TestIsVisible_BasicSnapshotRules(t *testing.T) {
	tst := NewTST()
	tst.RecordCommit(10)
	tst.RecordCommit(20)

	cases := []struct {
		name    string
		v       Version
		snap    uint64
		visible bool
	}{
		{"created after snapshot", Version{XMin: 20}, 10, false},
		{"created at snapshot, still open", Version{XMin: 10}, 10, true},
		{"created before, closed after snapshot", Version{XMin: 10, XMax: 20}, 15, true},
		{"created before, closed at snapshot", Version{XMin: 10, XMax: 20}, 20, false},
		{"created before, closed before snapshot", Version{XMin: 10, XMax: 20}, 25, false},
	}
	for _, c := range cases {
		got := IsVisible(tst, c.v, c.snap)
		if got != c.visible {
			t.Errorf("%s: IsVisible(%+v, snap=%d) = %v, want %v", c.name, c.v, c.snap, got, c.visible)
		}
	}
}

func TestIsVisible_AbortedCreatorNeverVisible(t *testing.T) {
	tst := NewTST()
	tst.RecordAbort(10)
	if IsVisible(tst, Version{XMin: 10}, 100) {
		t.Fatal("version created by an aborted transaction must never be visible")
	}
}

func TestIsVisible_AbortedCloserLeavesOldVersionVisible(t *testing.T) {
	tst := NewTST()
	tst.RecordCommit(10)
	tst.RecordAbort(20)
	v := Version{XMin: 10, XMax: 20}
	if !IsVisible(tst, v, 15) {
		t.Fatal("version should be visible to a snapshot before the (aborted) close attempt")
	}
	if !IsVisible(tst, v, 100) {
		t.Fatal("a version whose closer aborted must stay visible forever, not just until its stale XMax")
	}
}

func TestIsVisible_UnknownCSNDefaultsCommitted(t *testing.T) {
	tst := NewTST()
	if !IsVisible(tst, Version{XMin: 5}, 100) {
		t.Fatal("a CSN with no recorded status must be treated as committed")
	}
}

type fakeVersion struct {
	xmin, xmax uint64
	tag        string
}

func TestVisibleVersion_WalksNewestFirst(t *testing.T) {
	tst := NewTST()
	tst.RecordCommit(10)
	tst.RecordCommit(20)
	tst.RecordCommit(30)

	versions := []fakeVersion{
		{xmin: 30, xmax: 0, tag: "newest"},
		{xmin: 20, xmax: 30, tag: "middle"},
		{xmin: 10, xmax: 20, tag: "oldest"},
	}
	project := func(v fakeVersion) Version { return Version{XMin: v.xmin, XMax: v.xmax} }

	got, ok := VisibleVersion(tst, versions, project, 25)
	if !ok || got.tag != "middle" {
		t.Fatalf("snapshot 25: got %+v ok=%v, want middle", got, ok)
	}

	got, ok = VisibleVersion(tst, versions, project, 35)
	if !ok || got.tag != "newest" {
		t.Fatalf("snapshot 35: got %+v ok=%v, want newest", got, ok)
	}

	_, ok = VisibleVersion(tst, versions, project, 5)
	if ok {
		t.Fatal("snapshot before any version's xmin should see nothing")
	}
}

func TestVacuumHorizon_TracksOldestOpenSnapshot(t *testing.T) {
	tst := NewTST()
	tst.OpenSnapshot(10)
	tst.OpenSnapshot(20)
	if h := tst.VacuumHorizon(30); h != 10 {
		t.Fatalf("horizon with readers at 10,20: got %d want 10", h)
	}
	tst.CloseSnapshot(10)
	if h := tst.VacuumHorizon(30); h != 20 {
		t.Fatalf("horizon after closing 10: got %d want 20", h)
	}
	tst.CloseSnapshot(20)
	if h := tst.VacuumHorizon(30); h != 30 {
		t.Fatalf("horizon with no open readers: got %d want currentCSN 30", h)
	}
}
