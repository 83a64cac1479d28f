package txn

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sombradb/sombra/internal/sombra/mvcc"
	"github.com/sombradb/sombra/internal/sombra/pager"
)

func newTestManager(t *testing.T) (*pager.Pager, *Manager) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.sombra")
	p, err := pager.OpenPager(pager.PagerConfig{Path: dbPath, PageSize: pager.DefaultPageSize, CachePages: 64})
	if err != nil {
		t.Fatalf("OpenPager: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	tst := mvcc.NewTST()
	mgr, err := NewManager(p, tst, Config{LockPath: dbPath + ".lock", TxTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return p, mgr
}

func TestWriteTx_CommitStampsCSNAndUnlocks(t *testing.T) {
	_, mgr := newTestManager(t)

	wt, err := mgr.BeginWrite(context.Background())
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	if wt.TxID == 0 {
		t.Fatal("expected a nonzero tx id")
	}
	csn, err := wt.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if csn == 0 {
		t.Fatal("expected a nonzero commit csn")
	}

	// a second write must be able to start now that the first released the lock.
	wt2, err := mgr.BeginWrite(context.Background())
	if err != nil {
		t.Fatalf("second begin write: %v", err)
	}
	if _, err := wt2.Commit(); err != nil {
		t.Fatalf("second commit: %v", err)
	}
}

func TestWriteTx_RollbackReleasesLock(t *testing.T) {
	_, mgr := newTestManager(t)
	wt, err := mgr.BeginWrite(context.Background())
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	if err := wt.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	wt2, err := mgr.BeginWrite(context.Background())
	if err != nil {
		t.Fatalf("begin write after rollback: %v", err)
	}
	wt2.Rollback()
}

func TestWriteTx_RollbackNeverReusesTxIDOrCSN(t *testing.T) {
	_, mgr := newTestManager(t)

	wt, err := mgr.BeginWrite(context.Background())
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	rolledBackTxID, rolledBackCSN := wt.TxID, wt.CSN
	if err := wt.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	wt2, err := mgr.BeginWrite(context.Background())
	if err != nil {
		t.Fatalf("begin write after rollback: %v", err)
	}
	defer wt2.Rollback()

	if wt2.TxID <= rolledBackTxID {
		t.Fatalf("tx id reused: rolled back tx had %d, next tx got %d", rolledBackTxID, wt2.TxID)
	}
	if wt2.CSN <= rolledBackCSN {
		t.Fatalf("csn reused: rolled back tx had csn %d, next tx got %d — a later commit at this csn "+
			"would resurrect the rolled-back transaction's writes as visible", rolledBackCSN, wt2.CSN)
	}
}

func TestWriteTx_RollbackRestoresDirtiedPage(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.sombra")
	p, err := pager.OpenPager(pager.PagerConfig{Path: dbPath, PageSize: pager.DefaultPageSize, CachePages: 64})
	if err != nil {
		t.Fatalf("OpenPager: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	tst := mvcc.NewTST()
	mgr, err := NewManager(p, tst, Config{LockPath: dbPath + ".lock"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	id, _, err := p.AllocatePage(pager.PageTypeRecord)
	if err != nil {
		t.Fatalf("allocate page: %v", err)
	}

	wt1, err := mgr.BeginWrite(context.Background())
	if err != nil {
		t.Fatalf("begin write 1: %v", err)
	}
	original := pager.NewPage(pager.DefaultPageSize, pager.PageTypeRecord, id)
	copy(original[pager.PageHeaderSize:], []byte("original"))
	if err := p.WritePage(wt1.TxID, wt1.CSN, id, original); err != nil {
		t.Fatalf("write original: %v", err)
	}
	if _, err := wt1.Commit(); err != nil {
		t.Fatalf("commit original: %v", err)
	}

	wt2, err := mgr.BeginWrite(context.Background())
	if err != nil {
		t.Fatalf("begin write 2: %v", err)
	}
	mutated := pager.NewPage(pager.DefaultPageSize, pager.PageTypeRecord, id)
	copy(mutated[pager.PageHeaderSize:], []byte("mutated!"))
	if err := p.WritePage(wt2.TxID, wt2.CSN, id, mutated); err != nil {
		t.Fatalf("write mutated: %v", err)
	}
	if err := wt2.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if err := p.Checkpoint(); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	got, err := p.ReadPage(id)
	if err != nil {
		t.Fatalf("read page after rollback+checkpoint: %v", err)
	}
	if string(got[pager.PageHeaderSize:pager.PageHeaderSize+8]) != "original" {
		t.Fatalf("rollback did not restore the page's pre-transaction image: got %q",
			got[pager.PageHeaderSize:pager.PageHeaderSize+8])
	}
}

func TestWriteTx_DoubleCommitErrors(t *testing.T) {
	_, mgr := newTestManager(t)
	wt, err := mgr.BeginWrite(context.Background())
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	if _, err := wt.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := wt.Commit(); err == nil {
		t.Fatal("expected error committing an already-finished transaction")
	}
}

func TestReadTx_SnapshotIndependentOfWriter(t *testing.T) {
	_, mgr := newTestManager(t)
	rt := mgr.BeginRead()
	defer rt.Close()

	done := make(chan struct{})
	go func() {
		wt, err := mgr.BeginWrite(context.Background())
		if err != nil {
			t.Errorf("concurrent begin write: %v", err)
			close(done)
			return
		}
		wt.Commit()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer blocked behind an open reader, but readers must never block writers")
	}
}

func TestNotePageWrite_EnforcesMaxTxPages(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.sombra")
	p, err := pager.OpenPager(pager.PagerConfig{Path: dbPath, PageSize: pager.DefaultPageSize, CachePages: 64})
	if err != nil {
		t.Fatalf("OpenPager: %v", err)
	}
	defer p.Close()
	tst := mvcc.NewTST()
	mgr, err := NewManager(p, tst, Config{LockPath: dbPath + ".lock", MaxTxPages: 2})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer mgr.Close()

	wt, err := mgr.BeginWrite(context.Background())
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	defer wt.Rollback()

	if err := wt.NotePageWrite(); err != nil {
		t.Fatalf("first page write: %v", err)
	}
	if err := wt.NotePageWrite(); err != nil {
		t.Fatalf("second page write: %v", err)
	}
	if err := wt.NotePageWrite(); err == nil {
		t.Fatal("expected LimitExceeded on the third dirtied page")
	}
}
