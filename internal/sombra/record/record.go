package record

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/sombra/pager"
	"github.com/sombradb/sombra/internal/sombra/sombraerr"
)

// Kind distinguishes a Node record from an Edge record within the
// shared record-page storage.
type Kind byte

const (
	KindNode Kind = 1
	KindEdge Kind = 2
)

// Location identifies one record's slot within a record page.
type Location struct {
	Page pager.PageID
	Slot int
}

func (l Location) IsZero() bool { return l.Page == pager.InvalidPageID }

// versionHeader is the MVCC envelope every stored record byte-string
// starts with: the commit-sequence range [XMin, XMax) during which
// this version is the live one, and a pointer to the version it
// superseded (for readers whose snapshot predates XMin).
type versionHeader struct {
	Kind  Kind
	XMin  uint64 // CSN
	XMax  uint64 // CSN, 0 == still current
	Prev  Location
}

const versionHeaderSize = 1 + 8 + 8 + 4 + 4

func marshalVersionHeader(h versionHeader) []byte {
	buf := make([]byte, versionHeaderSize)
	buf[0] = byte(h.Kind)
	binary.LittleEndian.PutUint64(buf[1:9], h.XMin)
	binary.LittleEndian.PutUint64(buf[9:17], h.XMax)
	binary.LittleEndian.PutUint32(buf[17:21], uint32(h.Prev.Page))
	binary.LittleEndian.PutUint32(buf[21:25], uint32(h.Prev.Slot))
	return buf
}

func unmarshalVersionHeader(buf []byte) versionHeader {
	return versionHeader{
		Kind: Kind(buf[0]),
		XMin: binary.LittleEndian.Uint64(buf[1:9]),
		XMax: binary.LittleEndian.Uint64(buf[9:17]),
		Prev: Location{
			Page: pager.PageID(binary.LittleEndian.Uint32(buf[17:21])),
			Slot: int(int32(binary.LittleEndian.Uint32(buf[21:25]))),
		},
	}
}

// Node is one graph node: an id, its label set, and its properties.
// OutAdjRoot and InAdjRoot head the node's outgoing and incoming
// adjacency lists (pager.InvalidPageID until the node gets its first
// edge in that direction).
type Node struct {
	ID         uint64
	Labels     []string
	Properties Properties
	OutAdjRoot pager.PageID
	InAdjRoot  pager.PageID
}

// Edge is one directed, typed relationship between two nodes.
type Edge struct {
	ID         uint64
	From       uint64
	To         uint64
	Type       string
	Properties Properties
}

func marshalNodeBody(n Node) []byte {
	var buf []byte
	buf = appendU64(buf, n.ID)
	buf = appendU32(buf, uint32(len(n.Labels)))
	for _, l := range n.Labels {
		buf = appendLenPrefixed(buf, []byte(l))
	}
	buf = marshalProperties(buf, n.Properties)
	buf = appendU32(buf, uint32(n.OutAdjRoot))
	buf = appendU32(buf, uint32(n.InAdjRoot))
	return buf
}

func unmarshalNodeBody(buf []byte) (Node, error) {
	if len(buf) < 12 {
		return Node{}, sombraerr.New(sombraerr.Corruption, "record.unmarshalNodeBody", "truncated node body")
	}
	id := binary.LittleEndian.Uint64(buf[0:8])
	labelCount := binary.LittleEndian.Uint32(buf[8:12])
	off := 12
	labels := make([]string, 0, labelCount)
	for i := uint32(0); i < labelCount; i++ {
		l, n, err := readLenPrefixed(buf[off:])
		if err != nil {
			return Node{}, err
		}
		off += n
		labels = append(labels, string(l))
	}
	props, n, err := unmarshalProperties(buf[off:])
	if err != nil {
		return Node{}, err
	}
	off += n
	if len(buf) < off+8 {
		return Node{}, sombraerr.New(sombraerr.Corruption, "record.unmarshalNodeBody", "truncated adjacency roots")
	}
	outRoot := pager.PageID(binary.LittleEndian.Uint32(buf[off:]))
	inRoot := pager.PageID(binary.LittleEndian.Uint32(buf[off+4:]))
	return Node{ID: id, Labels: labels, Properties: props, OutAdjRoot: outRoot, InAdjRoot: inRoot}, nil
}

func marshalEdgeBody(e Edge) []byte {
	var buf []byte
	buf = appendU64(buf, e.ID)
	buf = appendU64(buf, e.From)
	buf = appendU64(buf, e.To)
	buf = appendLenPrefixed(buf, []byte(e.Type))
	buf = marshalProperties(buf, e.Properties)
	return buf
}

func unmarshalEdgeBody(buf []byte) (Edge, error) {
	if len(buf) < 24 {
		return Edge{}, sombraerr.New(sombraerr.Corruption, "record.unmarshalEdgeBody", "truncated edge body")
	}
	id := binary.LittleEndian.Uint64(buf[0:8])
	from := binary.LittleEndian.Uint64(buf[8:16])
	to := binary.LittleEndian.Uint64(buf[16:24])
	typ, n, err := readLenPrefixed(buf[24:])
	if err != nil {
		return Edge{}, err
	}
	off := 24 + n
	props, _, err := unmarshalProperties(buf[off:])
	if err != nil {
		return Edge{}, err
	}
	return Edge{ID: id, From: from, To: to, Type: string(typ), Properties: props}, nil
}

// Store appends and reads version-chained node/edge records on
// PageTypeRecord slotted pages.
type Store struct {
	pa pager.PageAccessor
}

func NewStore(pa pager.PageAccessor) *Store {
	return &Store{pa: pa}
}

// InsertNode appends a brand-new node version with no predecessor.
func (s *Store) InsertNode(headPage pager.PageID, n Node, xmin uint64) (Location, pager.PageID, error) {
	body := marshalNodeBody(n)
	return s.insert(headPage, versionHeader{Kind: KindNode, XMin: xmin}, body)
}

// InsertEdge appends a brand-new edge version with no predecessor.
func (s *Store) InsertEdge(headPage pager.PageID, e Edge, xmin uint64) (Location, pager.PageID, error) {
	body := marshalEdgeBody(e)
	return s.insert(headPage, versionHeader{Kind: KindEdge, XMin: xmin}, body)
}

// ReplaceNode closes out the version at prev (stamping XMax) and
// appends a new version pointing back at it, implementing the
// copy-on-write path for a property or label change; only the old
// version's XMax is updated in place.
func (s *Store) ReplaceNode(headPage pager.PageID, prev Location, n Node, xmin, closingXmax uint64) (Location, pager.PageID, error) {
	if err := s.closeVersion(prev, closingXmax); err != nil {
		return Location{}, headPage, err
	}
	body := marshalNodeBody(n)
	return s.insert(headPage, versionHeader{Kind: KindNode, XMin: xmin, Prev: prev}, body)
}

// ReplaceEdge is ReplaceNode's edge counterpart.
func (s *Store) ReplaceEdge(headPage pager.PageID, prev Location, e Edge, xmin, closingXmax uint64) (Location, pager.PageID, error) {
	if err := s.closeVersion(prev, closingXmax); err != nil {
		return Location{}, headPage, err
	}
	body := marshalEdgeBody(e)
	return s.insert(headPage, versionHeader{Kind: KindEdge, XMin: xmin, Prev: prev}, body)
}

// Tombstone closes out the version at loc without inserting a
// replacement — the entity is deleted as of closingXmax.
func (s *Store) Tombstone(loc Location, closingXmax uint64) error {
	return s.closeVersion(loc, closingXmax)
}

func (s *Store) closeVersion(loc Location, xmax uint64) error {
	buf, err := s.pa.GetPage(loc.Page)
	if err != nil {
		return err
	}
	sp := pager.NewSlottedPage(buf)
	raw := sp.GetRecord(loc.Slot)
	if raw == nil {
		return sombraerr.New(sombraerr.NotFound, "record.closeVersion", "version slot already removed")
	}
	h := unmarshalVersionHeader(raw)
	h.XMax = xmax
	hdrBytes := marshalVersionHeader(h)
	updated := append(append([]byte(nil), hdrBytes...), raw[versionHeaderSize:]...)
	sp.UpdateRecord(loc.Slot, updated)
	pager.SetPageCRC(buf)
	return s.pa.PutPage(loc.Page, buf)
}

func (s *Store) insert(headPage pager.PageID, h versionHeader, body []byte) (Location, pager.PageID, error) {
	rec := append(marshalVersionHeader(h), body...)

	if headPage != pager.InvalidPageID {
		buf, err := s.pa.GetPage(headPage)
		if err == nil {
			sp := pager.NewSlottedPage(buf)
			if slot := sp.InsertRecord(rec); slot >= 0 {
				pager.SetPageCRC(buf)
				if err := s.pa.PutPage(headPage, buf); err != nil {
					return Location{}, headPage, err
				}
				return Location{Page: headPage, Slot: slot}, headPage, nil
			}
		}
	}

	id, buf, err := s.pa.AllocPage(pager.PageTypeRecord)
	if err != nil {
		return Location{}, headPage, err
	}
	sp := pager.NewSlottedPage(buf)
	slot := sp.InsertRecord(rec)
	if slot < 0 {
		return Location{}, headPage, sombraerr.New(sombraerr.LimitExceeded, "record.insert", "record larger than an empty page")
	}
	pager.SetPageCRC(buf)
	if err := s.pa.PutPage(id, buf); err != nil {
		return Location{}, headPage, err
	}
	return Location{Page: id, Slot: slot}, id, nil
}

// RawVersion is what Read returns before the caller applies MVCC
// visibility: the version's own xmin/xmax/prev plus its decoded body.
type RawVersion struct {
	XMin uint64
	XMax uint64
	Prev Location
	Kind Kind
	Node Node // valid when Kind == KindNode
	Edge Edge // valid when Kind == KindEdge
}

// Read decodes the version stored at loc.
func (s *Store) Read(loc Location) (RawVersion, error) {
	buf, err := s.pa.GetPage(loc.Page)
	if err != nil {
		return RawVersion{}, err
	}
	sp := pager.NewSlottedPage(buf)
	raw := sp.GetRecord(loc.Slot)
	if raw == nil {
		return RawVersion{}, sombraerr.New(sombraerr.NotFound, "record.Read", "slot is empty or tombstoned")
	}
	h := unmarshalVersionHeader(raw)
	body := raw[versionHeaderSize:]
	rv := RawVersion{XMin: h.XMin, XMax: h.XMax, Prev: h.Prev, Kind: h.Kind}
	switch h.Kind {
	case KindNode:
		n, err := unmarshalNodeBody(body)
		if err != nil {
			return RawVersion{}, err
		}
		rv.Node = n
	case KindEdge:
		e, err := unmarshalEdgeBody(body)
		if err != nil {
			return RawVersion{}, err
		}
		rv.Edge = e
	default:
		return RawVersion{}, sombraerr.Newf(sombraerr.Corruption, "record.Read", "unknown record kind 0x%02x", h.Kind)
	}
	return rv, nil
}

// Chain walks prev-version pointers starting at loc, oldest last,
// until Prev is zero. Used by the MVCC layer to find the version
// visible to a given snapshot.
func (s *Store) Chain(loc Location) ([]RawVersion, error) {
	var out []RawVersion
	for !loc.IsZero() {
		rv, err := s.Read(loc)
		if err != nil {
			return out, err
		}
		out = append(out, rv)
		loc = rv.Prev
	}
	return out, nil
}
