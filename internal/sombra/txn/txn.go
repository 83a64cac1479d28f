// Package txn is Sombra's transaction manager: a single in-process
// writer mutex paired with a cross-process byte-range advisory lock on
// the database file, so that even two separate Sombra processes
// opening the same file never run write transactions concurrently.
// Readers never take the writer lock at all — they open a snapshot at
// the pager's current LastCommittedCSN and release it when done.
package txn

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sombradb/sombra/internal/sombra/logging"
	"github.com/sombradb/sombra/internal/sombra/mvcc"
	"github.com/sombradb/sombra/internal/sombra/pager"
	"github.com/sombradb/sombra/internal/sombra/sombraerr"
)

// lockOffset/lockLength give the single byte range used for the advisory
// write lock — any nonzero range works since only one process-wide
// writer lock is ever taken per file.
const lockOffset = 0
const lockLength = 1

// Manager owns the writer mutex, the file lock, and the transaction
// status table. One Manager exists per open database.
type Manager struct {
	pager *pager.Pager
	tst   *mvcc.TransactionStatusTable
	log   logging.Logger

	writerMu sync.Mutex
	lockFile *os.File

	maxTxPages int
	txTimeout  time.Duration
}

// Config configures a Manager.
type Config struct {
	LockPath   string // typically dbPath + ".lock"
	MaxTxPages int
	TxTimeout  time.Duration
	Logger     logging.Logger
}

func NewManager(p *pager.Pager, tst *mvcc.TransactionStatusTable, cfg Config) (*Manager, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	f, err := os.OpenFile(cfg.LockPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return &Manager{
		pager:      p,
		tst:        tst,
		log:        cfg.Logger,
		lockFile:   f,
		maxTxPages: cfg.MaxTxPages,
		txTimeout:  cfg.TxTimeout,
	}, nil
}

// ReadTx is a snapshot-isolated read-only transaction.
type ReadTx struct {
	mgr        *Manager
	SnapshotCSN uint64
	closed     bool
}

// WriteTx is the single in-flight write transaction.
type WriteTx struct {
	mgr       *Manager
	TxID      pager.TxID
	CSN       pager.CSN
	Accessor  *pager.TxPageAccessor
	dirtyPages int
	done      bool
}

// BeginRead opens a read snapshot at the database's current
// LastCommittedCSN. Readers never block on, or are blocked by, a
// concurrent writer — MVCC visibility at the record/posting/adjacency
// layer is what keeps them consistent, not page locking.
func (m *Manager) BeginRead() *ReadTx {
	sb := m.pager.Superblock()
	snap := m.tst.OpenSnapshot(uint64(sb.LastCommittedCSN))
	return &ReadTx{mgr: m, SnapshotCSN: snap}
}

// Close releases a read transaction's hold on its snapshot, allowing
// vacuum's horizon to advance past it.
func (rt *ReadTx) Close() {
	if rt.closed {
		return
	}
	rt.closed = true
	rt.mgr.tst.CloseSnapshot(rt.SnapshotCSN)
}

// Accessor returns a PageAccessor for read-only access at this
// transaction's snapshot (pages read are copies of the shared page
// cache's current images, which can include the in-flight writer's
// uncommitted pages; MVCC filtering of record/posting/adjacency content happens above
// this layer using rt.SnapshotCSN).
func (rt *ReadTx) Accessor() pager.PageAccessor {
	return &pager.ReadOnlyAccessor{Pager: rt.mgr.pager}
}

// BeginWrite acquires the writer mutex and the cross-process file
// lock, blocking until both are available or ctx is done. Only one
// WriteTx can be open at a time, in this process or any other
// attached to the same database file.
func (m *Manager) BeginWrite(ctx context.Context) (*WriteTx, error) {
	if m.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.txTimeout)
		defer cancel()
	}

	lockAcquired := make(chan struct{})
	go func() {
		m.writerMu.Lock()
		close(lockAcquired)
	}()
	select {
	case <-lockAcquired:
	case <-ctx.Done():
		return nil, sombraerr.Wrap(sombraerr.LimitExceeded, "txn.BeginWrite", ctx.Err())
	}

	if err := m.lockFileRange(ctx); err != nil {
		m.writerMu.Unlock()
		return nil, err
	}

	txID, csn := m.pager.AllocateTxCSN()

	if err := m.pager.BeginTxWAL(txID); err != nil {
		m.unlockFileRange()
		m.writerMu.Unlock()
		return nil, err
	}

	return &WriteTx{
		mgr:      m,
		TxID:     txID,
		CSN:      csn,
		Accessor: &pager.TxPageAccessor{Pager: m.pager, TxID: txID, CSN: csn},
	}, nil
}

func (m *Manager) lockFileRange(ctx context.Context) error {
	flock := unix.Flock_t{Type: unix.F_WRLCK, Whence: 0, Start: lockOffset, Len: lockLength}
	for {
		err := unix.FcntlFlock(m.lockFile.Fd(), unix.F_SETLK, &flock)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return sombraerr.Wrap(sombraerr.Conflict, "txn.lockFileRange", ctx.Err())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (m *Manager) unlockFileRange() {
	flock := unix.Flock_t{Type: unix.F_UNLCK, Whence: 0, Start: lockOffset, Len: lockLength}
	unix.FcntlFlock(m.lockFile.Fd(), unix.F_SETLK, &flock)
}

// NotePageWrite counts one dirtied page per call and returns
// LimitExceeded once the count passes MaxTxPages. Only explicit calls are
// counted: PutPage/WritePage do not call it, and neither does any graph
// operation, so config.MaxTransactionPages is not applied to them.
func (wt *WriteTx) NotePageWrite() error {
	wt.dirtyPages++
	if wt.mgr.maxTxPages > 0 && wt.dirtyPages > wt.mgr.maxTxPages {
		return sombraerr.Newf(sombraerr.LimitExceeded, "txn.NotePageWrite",
			"transaction touched more than %d pages", wt.mgr.maxTxPages)
	}
	return nil
}

// Commit appends and syncs the WAL commit frame, records the CSN as
// committed in the transaction status table, and releases the writer
// lock. It returns wt.CSN, the CSN the transaction already stamped as
// XMin/XMax on every record/posting/adjacency entry it touched.
func (wt *WriteTx) Commit() (pager.CSN, error) {
	if wt.done {
		return 0, sombraerr.New(sombraerr.AlreadyClosed, "txn.Commit", "transaction already finished")
	}
	wt.done = true
	defer wt.mgr.finishWrite()

	if err := wt.mgr.pager.CommitTxWAL(wt.TxID, wt.CSN); err != nil {
		wt.mgr.tst.RecordAbort(uint64(wt.CSN))
		return 0, err
	}
	wt.mgr.tst.RecordCommit(uint64(wt.CSN))
	return wt.CSN, nil
}

// Rollback restores every page the transaction dirtied to its
// pre-transaction image, appends an abort frame carrying the
// transaction's CSN, and releases the writer lock. The restored pages
// mean a checkpoint running right after Rollback has nothing of this
// transaction's left to flush; the CSN itself is marked Aborted and is
// never reissued to a later transaction.
func (wt *WriteTx) Rollback() error {
	if wt.done {
		return nil
	}
	wt.done = true
	defer wt.mgr.finishWrite()

	wt.mgr.tst.RecordAbort(uint64(wt.CSN))
	return wt.mgr.pager.AbortTxWAL(wt.TxID, wt.CSN)
}

func (m *Manager) finishWrite() {
	m.unlockFileRange()
	m.writerMu.Unlock()
}

// MaybeAutoCheckpoint checkpoints the pager if the WAL has grown past
// walBytesThreshold. Nothing in this module calls it: the maintenance
// scheduler checkpoints on its interval only, and Commit does not check
// the WAL size.
func (m *Manager) MaybeAutoCheckpoint(walBytesThreshold int64) error {
	if walBytesThreshold <= 0 {
		return nil
	}
	size, err := m.pager.WALSize()
	if err != nil {
		return err
	}
	if size < walBytesThreshold {
		return nil
	}
	m.writerMu.Lock()
	defer m.writerMu.Unlock()
	return m.pager.Checkpoint()
}

// VacuumHorizon reports the oldest CSN still visible to an open
// reader, below which closed versions are safe to reclaim.
func (m *Manager) VacuumHorizon() uint64 {
	sb := m.pager.Superblock()
	return m.tst.VacuumHorizon(uint64(sb.LastCommittedCSN))
}

// Close releases the lock file handle.
func (m *Manager) Close() error {
	return m.lockFile.Close()
}
