package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// The write-ahead log is an append-only sequence of frames. Every page
// written during a transaction is appended as a PageImage frame before
// it is applied to the main file; a Commit frame closes out the
// transaction and is the durability point. A torn write (partial frame
// at EOF, typically from a crash mid-append) is detected by CRC and the
// remainder of the log is discarded at recovery time — the transaction
// that produced it never committed, so nothing of it is replayed.
const (
	walMagic    = "SMBRAWAL"
	walVersion  = uint32(1)
	walFileHdr  = 32 // magic(8) + version(4) + pageSize(4) + reserved(16)
	walRecHdr   = 33 // type(1) + csn(8) + txid(8) + pageid(4) + datalen(4) + crc(4) + reserved(4)
)

// WALRecordType tags a single WAL frame.
type WALRecordType uint8

const (
	WALBegin      WALRecordType = 0x01
	WALPageImage  WALRecordType = 0x02
	WALCommit     WALRecordType = 0x03
	WALAbort      WALRecordType = 0x04
	WALCheckpoint WALRecordType = 0x05
)

// WALRecord is one decoded WAL frame.
type WALRecord struct {
	Type   WALRecordType
	CSN    CSN
	TxID   TxID
	PageID PageID
	Data   []byte // full page image for WALPageImage, empty otherwise
}

// WALFile is an append-only log file paired with the main database file.
type WALFile struct {
	file     *os.File
	pageSize int
	nextCSN  CSN
}

// OpenWALFile opens or creates path, validating/writing the file header.
func OpenWALFile(path string, pageSize int) (*WALFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	w := &WALFile{file: f, pageSize: pageSize, nextCSN: 1}
	if info.Size() == 0 {
		if err := w.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
	} else if err := w.validateHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *WALFile) writeHeader() error {
	hdr := make([]byte, walFileHdr)
	copy(hdr[0:8], walMagic)
	binary.LittleEndian.PutUint32(hdr[8:12], walVersion)
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(w.pageSize))
	if _, err := w.file.WriteAt(hdr, 0); err != nil {
		return fmt.Errorf("write wal header: %w", err)
	}
	return nil
}

func (w *WALFile) validateHeader() error {
	hdr := make([]byte, walFileHdr)
	if _, err := io.ReadFull(w.file, hdr); err != nil {
		return fmt.Errorf("read wal header: %w", err)
	}
	if string(hdr[0:8]) != walMagic {
		return fmt.Errorf("bad wal magic %q", hdr[0:8])
	}
	ver := binary.LittleEndian.Uint32(hdr[8:12])
	if ver != walVersion {
		return fmt.Errorf("unsupported wal version %d", ver)
	}
	w.pageSize = int(binary.LittleEndian.Uint32(hdr[12:16]))
	return nil
}

// AppendRecord appends rec as one CRC-protected frame. It does not sync
// the file and does not modify rec.Data.
func (w *WALFile) AppendRecord(rec WALRecord) error {
	buf, err := marshalWALRecord(rec)
	if err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek wal end: %w", err)
	}
	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("append wal record: %w", err)
	}
	return nil
}

// Sync fsyncs the WAL file, the durability point for a commit.
func (w *WALFile) Sync() error {
	return w.file.Sync()
}

func (w *WALFile) Close() error {
	return w.file.Close()
}

// Truncate resets the WAL to just its header, called after a checkpoint
// has made every prior frame unnecessary for recovery.
func (w *WALFile) Truncate() error {
	if err := w.file.Truncate(walFileHdr); err != nil {
		return fmt.Errorf("truncate wal: %w", err)
	}
	_, err := w.file.Seek(0, io.SeekEnd)
	return err
}

func marshalWALRecord(rec WALRecord) ([]byte, error) {
	hdr := make([]byte, walRecHdr)
	hdr[0] = byte(rec.Type)
	binary.LittleEndian.PutUint64(hdr[1:9], uint64(rec.CSN))
	binary.LittleEndian.PutUint64(hdr[9:17], uint64(rec.TxID))
	binary.LittleEndian.PutUint32(hdr[17:21], uint32(rec.PageID))
	binary.LittleEndian.PutUint32(hdr[21:25], uint32(len(rec.Data)))

	h := crc32.New(crcTable)
	h.Write(hdr[:25])
	h.Write(rec.Data)
	binary.LittleEndian.PutUint32(hdr[25:29], h.Sum32())
	// bytes [29:33] reserved, left zero

	out := make([]byte, 0, len(hdr)+len(rec.Data))
	out = append(out, hdr...)
	out = append(out, rec.Data...)
	return out, nil
}

func unmarshalWALRecord(r io.Reader) (WALRecord, int, error) {
	hdr := make([]byte, walRecHdr)
	n, err := io.ReadFull(r, hdr)
	if err != nil {
		return WALRecord{}, n, err
	}
	dataLen := binary.LittleEndian.Uint32(hdr[21:25])
	data := make([]byte, dataLen)
	dn, err := io.ReadFull(r, data)
	total := n + dn
	if err != nil {
		return WALRecord{}, total, err
	}

	h := crc32.New(crcTable)
	h.Write(hdr[:25])
	h.Write(data)
	wantCRC := binary.LittleEndian.Uint32(hdr[25:29])
	if h.Sum32() != wantCRC {
		return WALRecord{}, total, fmt.Errorf("wal record CRC mismatch (torn write)")
	}

	rec := WALRecord{
		Type:   WALRecordType(hdr[0]),
		CSN:    CSN(binary.LittleEndian.Uint64(hdr[1:9])),
		TxID:   TxID(binary.LittleEndian.Uint64(hdr[9:17])),
		PageID: PageID(binary.LittleEndian.Uint32(hdr[17:21])),
		Data:   data,
	}
	return rec, total, nil
}

// ReadAllRecords reads every well-formed frame from the WAL, in order.
// It stops silently (without error) at the first corrupt or partial
// frame — that frame and anything after it is the tail of an
// interrupted append and is treated as if it never happened.
func (w *WALFile) ReadAllRecords() ([]WALRecord, error) {
	if _, err := w.file.Seek(walFileHdr, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek wal start: %w", err)
	}
	var records []WALRecord
	for {
		rec, n, err := unmarshalWALRecord(w.file)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF || n == 0 {
				break
			}
			// CRC mismatch or other frame-level corruption: torn tail, stop here.
			break
		}
		records = append(records, rec)
	}
	return records, nil
}

// Size returns the current WAL file size in bytes.
func (w *WALFile) Size() (int64, error) {
	info, err := w.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
