package pager

import (
	"bytes"
	"path/filepath"
	"testing"
)

func newTestPager(t *testing.T) *Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := OpenPager(PagerConfig{
		Path:         filepath.Join(dir, "test.sombra"),
		PageSize:     DefaultPageSize,
		CachePages:   64,
		ChecksumMode: true,
	})
	if err != nil {
		t.Fatalf("OpenPager: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPageHeader_MarshalRoundTrip(t *testing.T) {
	h := PageHeader{
		Type:  PageTypeBTreeLeaf,
		Flags: 0x7,
		ID:    PageID(42),
		CSN:   CSN(9001),
	}
	buf := make([]byte, PageHeaderSize)
	MarshalHeader(&h, buf)
	h2 := UnmarshalHeader(buf)
	if h2.Type != h.Type || h2.Flags != h.Flags || h2.ID != h.ID || h2.CSN != h.CSN {
		t.Fatalf("header roundtrip mismatch: %+v vs %+v", h, h2)
	}
}

func TestCRC_DetectsCorruption(t *testing.T) {
	buf := NewPage(DefaultPageSize, PageTypeBTreeLeaf, 1)
	SetPageCRC(buf)
	if err := VerifyPageCRC(buf, true); err != nil {
		t.Fatalf("valid CRC failed: %v", err)
	}
	buf[100] ^= 0xFF
	if err := VerifyPageCRC(buf, true); err == nil {
		t.Fatal("expected CRC error after corruption")
	}
}

func TestSuperblock_RoundTrip(t *testing.T) {
	sb := NewSuperblock(DefaultPageSize)
	sb.PrimaryNodeRoot = PageID(5)
	sb.PrimaryEdgeRoot = PageID(6)
	sb.FirstFreePage = PageID(10)
	sb.LastCheckpointCSN = CSN(999)
	sb.NextTxID = TxID(42)
	sb.NextPageID = PageID(50)

	buf := MarshalSuperblock(sb, DefaultPageSize)
	sb2, err := UnmarshalSuperblock(buf, true)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sb2.VersionMajor != sb.VersionMajor {
		t.Errorf("version mismatch")
	}
	if sb2.PrimaryNodeRoot != sb.PrimaryNodeRoot {
		t.Errorf("PrimaryNodeRoot mismatch")
	}
	if sb2.LastCheckpointCSN != sb.LastCheckpointCSN {
		t.Errorf("LastCheckpointCSN mismatch")
	}
	if sb2.NextTxID != sb.NextTxID {
		t.Errorf("NextTxID mismatch")
	}
}

func TestSuperblock_BadMagic(t *testing.T) {
	buf := MarshalSuperblock(NewSuperblock(DefaultPageSize), DefaultPageSize)
	buf[sbMagicOff] = 'X'
	SetPageCRC(buf)
	if _, err := UnmarshalSuperblock(buf, true); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestSuperblock_UnsupportedFeatureFlags(t *testing.T) {
	sb := NewSuperblock(DefaultPageSize)
	sb.FeatureFlags = FeatureFlag(1 << 60)
	buf := MarshalSuperblock(sb, DefaultPageSize)
	if _, err := UnmarshalSuperblock(buf, true); err == nil {
		t.Fatal("expected error for unsupported feature flags")
	}
}

func TestSlottedPage_InsertAndGet(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	sp := NewSlottedPage(buf)
	data := []byte("hello world")
	slot := sp.InsertRecord(data)
	if slot < 0 {
		t.Fatalf("insert failed")
	}
	got := sp.GetRecord(slot)
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q want %q", got, data)
	}
}

func TestSlottedPage_DeleteAndReuse(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	sp := NewSlottedPage(buf)
	s0 := sp.InsertRecord([]byte("aaa"))
	_ = sp.InsertRecord([]byte("bbb"))
	sp.DeleteRecord(s0)
	if sp.GetRecord(s0) != nil {
		t.Fatal("slot 0 should read as deleted")
	}
	if len(sp.LiveRecords()) != 1 {
		t.Fatalf("live records: got %d want 1", len(sp.LiveRecords()))
	}
	s2 := sp.InsertRecord([]byte("ccc"))
	if s2 != s0 {
		t.Fatalf("expected reuse of slot %d, got %d", s0, s2)
	}
}

func TestSlottedPage_UpdateInPlace(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	sp := NewSlottedPage(buf)
	slot := sp.InsertRecord([]byte("long data here!!"))
	newSlot := sp.UpdateRecord(slot, []byte("short"))
	if newSlot != slot {
		t.Fatalf("expected in-place update to keep slot %d, got %d", slot, newSlot)
	}
	if got := sp.GetRecord(slot); string(got) != "short" {
		t.Fatalf("got %q want %q", got, "short")
	}
}

func TestSlottedPage_Compact(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	sp := NewSlottedPage(buf)
	sp.InsertRecord([]byte("aaaa"))
	victim := sp.InsertRecord([]byte("bbbb"))
	sp.InsertRecord([]byte("cccc"))
	sp.DeleteRecord(victim)
	sp.Compact()
	if len(sp.LiveRecords()) != 2 {
		t.Fatalf("after compact: live=%d want 2", len(sp.LiveRecords()))
	}
}

func TestOverflowChain_RoundTrip(t *testing.T) {
	p := newTestPager(t)
	big := bytes.Repeat([]byte("x"), DefaultPageSize*3)

	alloc := func() (PageID, []byte, error) { return p.AllocatePage(PageTypeOverflow) }
	write := func(id PageID, buf []byte) error { return p.WritePage(0, 1, id, buf) }
	firstID, err := WriteOverflowChain(big, alloc, write)
	if err != nil {
		t.Fatalf("write chain: %v", err)
	}

	read := func(id PageID) ([]byte, error) { return p.ReadPage(id) }
	got, err := ReadOverflowChain(firstID, read)
	if err != nil {
		t.Fatalf("read chain: %v", err)
	}
	if !bytes.Equal(got, big) {
		t.Fatalf("overflow chain roundtrip mismatch: got %d bytes want %d", len(got), len(big))
	}
}

func TestPager_AllocWriteReadRoundTrip(t *testing.T) {
	p := newTestPager(t)
	id, buf, err := p.AllocatePage(PageTypeRecord)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	sp := NewSlottedPage(buf)
	sp.InsertRecord([]byte("payload"))
	if err := p.WritePage(1, 1, id, buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := p.ReadPage(id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if d := NewSlottedPage(got).GetRecord(0); string(d) != "payload" {
		t.Fatalf("got %q", d)
	}
}

func TestPager_CheckpointSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.sombra")
	p, err := OpenPager(PagerConfig{Path: path, PageSize: DefaultPageSize, CachePages: 16, ChecksumMode: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id, buf, err := p.AllocatePage(PageTypeRecord)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	sp := NewSlottedPage(buf)
	sp.InsertRecord([]byte("durable"))
	if err := p.BeginTxWAL(1); err != nil {
		t.Fatalf("begin wal: %v", err)
	}
	if err := p.WritePage(1, 1, id, buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := p.CommitTxWAL(1, 1); err != nil {
		t.Fatalf("commit wal: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2, err := OpenPager(PagerConfig{Path: path, PageSize: DefaultPageSize, CachePages: 16, ChecksumMode: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p2.Close()
	got, err := p2.ReadPage(id)
	if err != nil {
		t.Fatalf("read after reopen: %v", err)
	}
	if d := NewSlottedPage(got).GetRecord(0); string(d) != "durable" {
		t.Fatalf("got %q want %q", d, "durable")
	}
}

func TestPager_FreePageIsReused(t *testing.T) {
	p := newTestPager(t)
	id, _, err := p.AllocatePage(PageTypeRecord)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	p.FreePage(id)
	id2, _, err := p.AllocatePage(PageTypeRecord)
	if err != nil {
		t.Fatalf("alloc2: %v", err)
	}
	if id2 != id {
		t.Fatalf("expected reclaimed page id %d to be reused, got %d", id, id2)
	}
}

func TestBTree_InsertGetScan(t *testing.T) {
	p := newTestPager(t)
	accessor := &TxPageAccessor{Pager: p, TxID: 1, CSN: 1}
	tree, err := CreateBTree(accessor)
	if err != nil {
		t.Fatalf("create btree: %v", err)
	}

	want := map[string]string{"a": "1", "b": "2", "c": "3"}
	for k, v := range want {
		if err := tree.Insert([]byte(k), []byte(v)); err != nil {
			t.Fatalf("insert %q: %v", k, err)
		}
	}
	for k, v := range want {
		got, ok, err := tree.Get([]byte(k))
		if err != nil || !ok {
			t.Fatalf("get %q: ok=%v err=%v", k, ok, err)
		}
		if string(got) != v {
			t.Fatalf("get %q: got %q want %q", k, got, v)
		}
	}

	n := 0
	err = tree.ScanRange(nil, nil, func(k, v []byte) bool { n++; return true })
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n != len(want) {
		t.Fatalf("scan count: got %d want %d", n, len(want))
	}

	if err := tree.Delete([]byte("b")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := tree.Get([]byte("b")); ok {
		t.Fatal("expected b to be gone after delete")
	}
}

func TestBTree_SplitAcrossManyKeys(t *testing.T) {
	p := newTestPager(t)
	accessor := &TxPageAccessor{Pager: p, TxID: 1, CSN: 1}
	tree, err := CreateBTree(accessor)
	if err != nil {
		t.Fatalf("create btree: %v", err)
	}

	const n = 500
	for i := 0; i < n; i++ {
		key := []byte{byte(i >> 8), byte(i)}
		val := bytes.Repeat([]byte{byte(i)}, 32)
		if err := tree.Insert(key, val); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	count, err := tree.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != n {
		t.Fatalf("count after %d inserts: got %d", n, count)
	}

	firstKey, _, ok, err := tree.First()
	if err != nil || !ok {
		t.Fatalf("first: ok=%v err=%v", ok, err)
	}
	if firstKey[0] != 0 || firstKey[1] != 0 {
		t.Fatalf("unexpected first key: %v", firstKey)
	}
}

func TestBTree_OverflowValue(t *testing.T) {
	p := newTestPager(t)
	accessor := &TxPageAccessor{Pager: p, TxID: 1, CSN: 1}
	tree, err := CreateBTree(accessor)
	if err != nil {
		t.Fatalf("create btree: %v", err)
	}
	big := bytes.Repeat([]byte("z"), DefaultPageSize)
	if err := tree.Insert([]byte("huge"), big); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, ok, err := tree.Get([]byte("huge"))
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, big) {
		t.Fatalf("overflow value mismatch: got %d bytes want %d", len(got), len(big))
	}
}

func TestReadOnlyAccessor_PanicsOnMutation(t *testing.T) {
	p := newTestPager(t)
	ro := &ReadOnlyAccessor{Pager: p}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic from PutPage on a read-only accessor")
		}
	}()
	ro.PutPage(0, make([]byte, p.PageSize()))
}
