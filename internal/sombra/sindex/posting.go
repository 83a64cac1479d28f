// Package sindex implements Sombra's secondary indexes: label postings
// (node-id -> does it carry this label, and since when) and property
// postings (node-id -> does it carry this name=value, and since when),
// both built as composite-key entries on the generic BTree, in the
// style of the pager package's catalog.go tenant/table composite keys.
package sindex

import (
	"encoding/binary"
	"math"

	"golang.org/x/text/unicode/norm"

	"github.com/sombradb/sombra/internal/sombra/mvcc"
)

// posting is the MVCC envelope on every secondary-index entry: it is
// visible to a reader whose snapshot CSN is in [XMin, XMax).
type posting struct {
	XMin uint64
	XMax uint64 // 0 == still live
}

func marshalPosting(p posting) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], p.XMin)
	binary.BigEndian.PutUint64(buf[8:16], p.XMax)
	return buf
}

func unmarshalPosting(b []byte) posting {
	return posting{
		XMin: binary.BigEndian.Uint64(b[0:8]),
		XMax: binary.BigEndian.Uint64(b[8:16]),
	}
}

// visibleAt reports whether this posting is visible to a reader whose
// snapshot is snapshotCSN, treating an XMax whose closing transaction
// aborted the same as XMax == 0.
func (p posting) visibleAt(tst *mvcc.TransactionStatusTable, snapshotCSN uint64) bool {
	return mvcc.IsVisible(tst, mvcc.Version{XMin: p.XMin, XMax: p.XMax}, snapshotCSN)
}

const keySep = 0x00

func nodeIDBytes(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

func decodeNodeID(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

// canonicalBytes produces an order-preserving byte encoding of a
// property value so range scans over the composite key walk values in
// natural ascending order. Strings are Unicode-normalized (NFC) first
// so canonically-equivalent strings collide on the same key.
func canonicalBytes(tag byte, intVal int64, floatVal float64, strVal string, bytesVal []byte) []byte {
	switch tag {
	case tagInt64:
		var buf [8]byte
		// flip the sign bit so two's-complement ordering matches numeric ordering
		binary.BigEndian.PutUint64(buf[:], uint64(intVal)^(1<<63))
		return buf[:]
	case tagFloat64:
		bits := math.Float64bits(floatVal)
		if floatVal < 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], bits)
		return buf[:]
	case tagString:
		return norm.NFC.Bytes([]byte(strVal))
	case tagBytes:
		return bytesVal
	case tagBool:
		if intVal != 0 {
			return []byte{1}
		}
		return []byte{0}
	case tagDatetime:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(intVal)^(1<<63))
		return buf[:]
	default:
		return nil
	}
}

// Tag constants mirror record.Tag without importing the record package,
// keeping sindex usable by anything that can supply raw scalar bits
// (the graphdb facade translates record.PropertyValue into these calls).
const (
	tagNull     = 0x00
	tagBool     = 0x01
	tagInt64    = 0x02
	tagFloat64  = 0x03
	tagString   = 0x04
	tagBytes    = 0x05
	tagDatetime = 0x06
)
