package pager

// txRecords accumulates everything recovery has seen for one
// transaction so it can decide, once the whole log has been scanned,
// whether that transaction's page images should be replayed.
type txRecords struct {
	pages     []WALRecord
	committed bool
	commitCSN CSN
	aborted   bool
	abortCSN  CSN
}

// Recover replays the WAL against the main file. Only transactions
// with a Commit frame and no Abort frame are replayed; everything else
// (including a torn tail dropped by WALFile.ReadAllRecords) is
// discarded, matching write-ahead logging's basic guarantee: a
// transaction is durable if and only if its Commit frame reached disk.
func (p *Pager) Recover() error {
	records, err := p.wal.ReadAllRecords()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	byTx := make(map[TxID]*txRecords)
	for _, rec := range records {
		tr, ok := byTx[rec.TxID]
		if !ok {
			tr = &txRecords{}
			byTx[rec.TxID] = tr
		}
		switch rec.Type {
		case WALPageImage:
			tr.pages = append(tr.pages, rec)
		case WALCommit:
			tr.committed = true
			tr.commitCSN = rec.CSN
		case WALAbort:
			tr.aborted = true
			tr.abortCSN = rec.CSN
		}
	}

	maxTxID := p.sb.NextTxID
	maxCSN := p.sb.NextCSN
	maxPageID := p.sb.NextPageID
	replayed := 0

	for txID, tr := range byTx {
		if txID+1 > maxTxID {
			maxTxID = txID + 1
		}
		if tr.aborted {
			if tr.abortCSN+1 > maxCSN {
				maxCSN = tr.abortCSN + 1
			}
			continue
		}
		if !tr.committed {
			continue
		}
		for _, rec := range tr.pages {
			if err := p.writePageRaw(rec.PageID, rec.Data); err != nil {
				return err
			}
			replayed++
			if rec.PageID+1 > maxPageID {
				maxPageID = rec.PageID + 1
			}
		}
		if tr.commitCSN+1 > CSN(0) && tr.commitCSN > p.sb.LastCommittedCSN {
			p.sb.LastCommittedCSN = tr.commitCSN
		}
		if tr.commitCSN+1 > maxCSN {
			maxCSN = tr.commitCSN + 1
		}
	}

	p.sb.NextTxID = maxTxID
	p.sb.NextCSN = maxCSN
	p.sb.NextPageID = maxPageID

	if err := p.writeSuperblockRaw(p.sb); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return err
	}
	if replayed > 0 {
		p.log.Printf("recovery: replayed %d page image(s) across %d transaction(s)", replayed, len(byTx))
	}
	return p.wal.Truncate()
}
