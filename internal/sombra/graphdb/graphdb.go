// Package graphdb is Sombra's public-facing facade: it composes the
// pager, record store, primary/secondary indexes, adjacency engine,
// MVCC status table, transaction manager, and maintenance scheduler
// into a single-file property-graph database.
package graphdb

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sombradb/sombra/internal/sombra/adjacency"
	"github.com/sombradb/sombra/internal/sombra/config"
	"github.com/sombradb/sombra/internal/sombra/logging"
	"github.com/sombradb/sombra/internal/sombra/maintenance"
	"github.com/sombradb/sombra/internal/sombra/mvcc"
	"github.com/sombradb/sombra/internal/sombra/pager"
	"github.com/sombradb/sombra/internal/sombra/pindex"
	"github.com/sombradb/sombra/internal/sombra/record"
	"github.com/sombradb/sombra/internal/sombra/sindex"
	"github.com/sombradb/sombra/internal/sombra/sombraerr"
	"github.com/sombradb/sombra/internal/sombra/txn"
)

// DB is an open Sombra database file.
type DB struct {
	cfg    config.Config
	pager  *pager.Pager
	tst    *mvcc.TransactionStatusTable
	txnMgr *txn.Manager
	sched  *maintenance.Scheduler
	log    logging.Logger

	// in-memory hints for where the next node/edge record append
	// should try to land first; losing these across a restart only
	// costs some page packing, never correctness.
	nodeHeadPage pager.PageID
	edgeHeadPage pager.PageID

	closed bool
}

// Open opens or creates the database file at path.
func Open(path string, cfg config.Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.Default()

	p, err := pager.OpenPager(pager.PagerConfig{
		Path:         path,
		PageSize:     cfg.PageSize,
		CachePages:   cfg.CachePages,
		ChecksumMode: cfg.ChecksumMode == config.ChecksumOn,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	db := &DB{
		cfg:          cfg,
		pager:        p,
		tst:          mvcc.NewTST(),
		log:          log,
		nodeHeadPage: pager.InvalidPageID,
		edgeHeadPage: pager.InvalidPageID,
	}

	mgr, err := txn.NewManager(p, db.tst, txn.Config{
		LockPath:   path + ".lock",
		MaxTxPages: cfg.MaxTransactionPages,
		TxTimeout:  cfg.TransactionTimeout,
		Logger:     log,
	})
	if err != nil {
		p.Close()
		return nil, err
	}
	db.txnMgr = mgr

	if cfg.AutoCheckpointInterval > 0 || cfg.VacuumInterval > 0 {
		db.sched = maintenance.New(maintenance.Config{
			Checkpoint: func(ctx context.Context) error { return db.Checkpoint() },
			Vacuum:     func(ctx context.Context) (int, error) { return db.Vacuum() },
			Logger:     log,
		})
		if err := db.sched.Start(cfg.AutoCheckpointInterval, cfg.VacuumInterval); err != nil {
			return nil, err
		}
	}

	log.Printf("opened database %s (page_size=%d)", filepath.Clean(path), p.PageSize())
	return db, nil
}

// Checkpoint flushes dirty pages and truncates the WAL.
func (db *DB) Checkpoint() error {
	return db.pager.Checkpoint()
}

// Vacuum reclaims label/property index postings and adjacency entries
// closed before the oldest CSN any open reader snapshot could still
// need. It runs as its own write transaction. It does not yet compact
// the primary node/edge record store itself (tombstoned version chains
// stay on their pages; only the label/property/adjacency structures
// built on top of them are trimmed).
func (db *DB) Vacuum() (int, error) {
	horizon := db.txnMgr.VacuumHorizon()
	wt, err := db.txnMgr.BeginWrite(context.Background())
	if err != nil {
		return 0, err
	}

	sb := db.pager.Superblock()
	reclaimed := 0

	if sb.LabelIndexRoot != pager.InvalidPageID {
		li := sindex.OpenLabelIndex(wt.Accessor, sb.LabelIndexRoot, db.tst)
		n, err := li.VacuumBefore(horizon)
		if err != nil {
			wt.Rollback()
			return reclaimed, err
		}
		reclaimed += n
	}
	if sb.PropertyIndexRoot != pager.InvalidPageID {
		pi := sindex.OpenPropertyIndex(wt.Accessor, sb.PropertyIndexRoot, db.tst)
		n, err := pi.VacuumBefore(horizon)
		if err != nil {
			wt.Rollback()
			return reclaimed, err
		}
		reclaimed += n
	}

	if sb.PrimaryNodeRoot != pager.InvalidPageID {
		n, err := db.vacuumAdjacencyLocked(wt, sb, horizon)
		if err != nil {
			wt.Rollback()
			return reclaimed, err
		}
		reclaimed += n
	}

	if _, err := wt.Commit(); err != nil {
		return reclaimed, err
	}
	db.log.Printf("vacuum: reclaimed %d posting(s) below horizon csn=%d", reclaimed, horizon)
	return reclaimed, nil
}

// vacuumAdjacencyLocked walks every node's out/in adjacency lists and
// drops entries closed before horizon. It must run inside wt, the same
// write transaction Vacuum already holds.
func (db *DB) vacuumAdjacencyLocked(wt *txn.WriteTx, sb *pager.Superblock, horizon uint64) (int, error) {
	nodeIdx := pindex.Open(wt.Accessor, sb.PrimaryNodeRoot)
	store := record.NewStore(wt.Accessor)
	reclaimed := 0
	var rangeErr error
	err := nodeIdx.Range(0, 0, func(id uint64, loc record.Location) bool {
		chain, err := store.Chain(loc)
		if err != nil {
			rangeErr = err
			return false
		}
		if len(chain) == 0 {
			return true
		}
		n := chain[0].Node
		for _, root := range []pager.PageID{n.OutAdjRoot, n.InAdjRoot} {
			if root == pager.InvalidPageID {
				continue
			}
			list := adjacency.Open(wt.Accessor, root, db.tst)
			removed, err := list.VacuumBefore(horizon)
			if err != nil {
				rangeErr = err
				return false
			}
			reclaimed += removed
		}
		return true
	})
	if err != nil {
		return reclaimed, err
	}
	return reclaimed, rangeErr
}

// VerifyIntegrity walks the primary node and edge indexes and reports
// the first inconsistency found, or nil if none: every primary index
// entry must resolve to a readable record, and every edge's endpoints
// must have entries in the primary node index. Page checksums are
// verified only for pages this walk loads from disk; label/property
// indexes and adjacency lists are not walked.
func (db *DB) VerifyIntegrity() error {
	rt := db.txnMgr.BeginRead()
	defer rt.Close()
	accessor := rt.Accessor()

	sb := db.pager.Superblock()

	if sb.PrimaryNodeRoot != pager.InvalidPageID {
		nodeIdx := pindex.Open(accessor, sb.PrimaryNodeRoot)
		store := record.NewStore(accessor)
		var walkErr error
		_ = nodeIdx.Range(0, 0, func(id uint64, loc record.Location) bool {
			if _, err := store.Read(loc); err != nil {
				walkErr = fmt.Errorf("node %d: %w", id, err)
				return false
			}
			return true
		})
		if walkErr != nil {
			return walkErr
		}
	}

	if sb.PrimaryEdgeRoot != pager.InvalidPageID {
		nodeIdx := pindex.Open(accessor, sb.PrimaryNodeRoot)
		edgeIdx := pindex.Open(accessor, sb.PrimaryEdgeRoot)
		store := record.NewStore(accessor)
		var walkErr error
		_ = edgeIdx.Range(0, 0, func(id uint64, loc record.Location) bool {
			rv, err := store.Read(loc)
			if err != nil {
				walkErr = fmt.Errorf("edge %d: %w", id, err)
				return false
			}
			if _, ok, err := nodeIdx.Get(rv.Edge.From); err != nil || !ok {
				walkErr = sombraerr.Newf(sombraerr.Corruption, "graphdb.VerifyIntegrity",
					"edge %d references missing from-node %d", id, rv.Edge.From)
				return false
			}
			if _, ok, err := nodeIdx.Get(rv.Edge.To); err != nil || !ok {
				walkErr = sombraerr.Newf(sombraerr.Corruption, "graphdb.VerifyIntegrity",
					"edge %d references missing to-node %d", id, rv.Edge.To)
				return false
			}
			return true
		})
		if walkErr != nil {
			return walkErr
		}
	}
	return nil
}

// Close stops the maintenance scheduler, checkpoints, and closes the
// underlying files.
func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	if db.sched != nil {
		db.sched.Stop()
	}
	if err := db.txnMgr.Close(); err != nil {
		return err
	}
	return db.pager.Close()
}

