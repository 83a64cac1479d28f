package pager

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// ───────────────────────────────────────────────────────────────────────────
// Header page — page 0
// ───────────────────────────────────────────────────────────────────────────
//
// Layout (fits in one page, default 8 KiB):
//
//  Offset  Size  Field
//  ──────  ────  ───────────────────
//  0       32    Common PageHeader (Type=Header, ID=0)
//  32      8     Magic            [8]byte "SOMBRA\0\0"
//  40      4     VersionMajor     uint32 LE
//  44      4     VersionMinor     uint32 LE
//  48      4     PageSize         uint32 LE
//  52      16    InstanceID       [16]byte (UUID, stamped at creation)
//  68      4     FirstFreePage    uint32 LE (PageID of free-list head)
//  72      4     CatalogRoot      uint32 LE (reserved; unused by Sombra core)
//  76      4     PrimaryNodeRoot  uint32 LE (PageID of Node primary index root)
//  80      4     PrimaryEdgeRoot  uint32 LE (PageID of Edge primary index root)
//  84      4     LabelIndexRoot   uint32 LE
//  88      4     PropertyIndexRoot uint32 LE
//  92      8     NextNodeID       uint64 LE
//  100     8     NextEdgeID       uint64 LE
//  108     8     LastCheckpointCSN uint64 LE
//  116     8     LastCommittedCSN uint64 LE
//  124     8     NextTxID         uint64 LE
//  132     4     NextPageID       uint32 LE
//  136     8     FeatureFlags     uint64 LE (bitmask)
//  144     8     NextCSN          uint64 LE (next CSN to hand out; distinct
//                                  from LastCommittedCSN so an aborted
//                                  transaction's CSN is never reissued)
//  152     40    Reserved          [40]byte (future use — zero-filled)

const (
	HeaderMagic          = "SOMBRA\x00\x00"
	CurrentVersionMajor  = uint32(1)
	CurrentVersionMinor  = uint32(0)

	sbMagicOff             = PageHeaderSize // 32
	sbVersionMajorOff      = sbMagicOff + 8 // 40
	sbVersionMinorOff      = sbVersionMajorOff + 4
	sbPageSizeOff          = sbVersionMinorOff + 4
	sbInstanceIDOff        = sbPageSizeOff + 4
	sbFirstFreePageOff     = sbInstanceIDOff + 16
	sbCatalogRootOff       = sbFirstFreePageOff + 4
	sbPrimaryNodeRootOff   = sbCatalogRootOff + 4
	sbPrimaryEdgeRootOff   = sbPrimaryNodeRootOff + 4
	sbLabelIndexRootOff    = sbPrimaryEdgeRootOff + 4
	sbPropertyIndexRootOff = sbLabelIndexRootOff + 4
	sbNextNodeIDOff        = sbPropertyIndexRootOff + 4
	sbNextEdgeIDOff        = sbNextNodeIDOff + 8
	sbLastCheckpointCSNOff = sbNextEdgeIDOff + 8
	sbLastCommittedCSNOff  = sbLastCheckpointCSNOff + 8
	sbNextTxIDOff          = sbLastCommittedCSNOff + 8
	sbNextPageIDOff        = sbNextTxIDOff + 8
	sbFeatureFlagsOff      = sbNextPageIDOff + 4
	sbNextCSNOff           = sbFeatureFlagsOff + 8
)

// FeatureFlag is a bitmask of optional on-disk features. Version 1 has
// none defined; any flag outside SupportedFeatures rejects the file.
type FeatureFlag uint64

const SupportedFeatures FeatureFlag = 0

// Superblock holds the parsed contents of page 0.
type Superblock struct {
	VersionMajor      uint32
	VersionMinor      uint32
	PageSize          uint32
	InstanceID        uuid.UUID
	FirstFreePage     PageID
	CatalogRoot       PageID
	PrimaryNodeRoot   PageID
	PrimaryEdgeRoot   PageID
	LabelIndexRoot    PageID
	PropertyIndexRoot PageID
	NextNodeID        uint64
	NextEdgeID        uint64
	LastCheckpointCSN CSN
	LastCommittedCSN  CSN
	NextTxID          TxID
	NextPageID        PageID
	FeatureFlags      FeatureFlag
	// NextCSN is the CSN the next write transaction will be handed,
	// advanced unconditionally at allocation time regardless of whether
	// that transaction ultimately commits or aborts — unlike
	// LastCommittedCSN, it never goes backward or gets reused.
	NextCSN CSN
}

// NewSuperblock creates a default Superblock for a new database file.
func NewSuperblock(pageSize uint32) *Superblock {
	return &Superblock{
		VersionMajor:      CurrentVersionMajor,
		VersionMinor:      CurrentVersionMinor,
		PageSize:          pageSize,
		InstanceID:        uuid.New(),
		FirstFreePage:     InvalidPageID,
		CatalogRoot:       InvalidPageID,
		PrimaryNodeRoot:   InvalidPageID,
		PrimaryEdgeRoot:   InvalidPageID,
		LabelIndexRoot:    InvalidPageID,
		PropertyIndexRoot: InvalidPageID,
		NextNodeID:        1,
		NextEdgeID:        1,
		LastCheckpointCSN: 0,
		LastCommittedCSN:  0,
		NextTxID:          1,
		NextPageID:        1, // page 0 is the header page
		NextCSN:           1,
	}
}

// MarshalSuperblock serializes a Superblock into a full page buffer.
func MarshalSuperblock(sb *Superblock, pageSize int) []byte {
	buf := NewPage(pageSize, PageTypeHeader, 0)

	copy(buf[sbMagicOff:sbMagicOff+8], HeaderMagic)
	binary.LittleEndian.PutUint32(buf[sbVersionMajorOff:], sb.VersionMajor)
	binary.LittleEndian.PutUint32(buf[sbVersionMinorOff:], sb.VersionMinor)
	binary.LittleEndian.PutUint32(buf[sbPageSizeOff:], sb.PageSize)
	idBytes, _ := sb.InstanceID.MarshalBinary()
	copy(buf[sbInstanceIDOff:sbInstanceIDOff+16], idBytes)
	binary.LittleEndian.PutUint32(buf[sbFirstFreePageOff:], uint32(sb.FirstFreePage))
	binary.LittleEndian.PutUint32(buf[sbCatalogRootOff:], uint32(sb.CatalogRoot))
	binary.LittleEndian.PutUint32(buf[sbPrimaryNodeRootOff:], uint32(sb.PrimaryNodeRoot))
	binary.LittleEndian.PutUint32(buf[sbPrimaryEdgeRootOff:], uint32(sb.PrimaryEdgeRoot))
	binary.LittleEndian.PutUint32(buf[sbLabelIndexRootOff:], uint32(sb.LabelIndexRoot))
	binary.LittleEndian.PutUint32(buf[sbPropertyIndexRootOff:], uint32(sb.PropertyIndexRoot))
	binary.LittleEndian.PutUint64(buf[sbNextNodeIDOff:], sb.NextNodeID)
	binary.LittleEndian.PutUint64(buf[sbNextEdgeIDOff:], sb.NextEdgeID)
	binary.LittleEndian.PutUint64(buf[sbLastCheckpointCSNOff:], uint64(sb.LastCheckpointCSN))
	binary.LittleEndian.PutUint64(buf[sbLastCommittedCSNOff:], uint64(sb.LastCommittedCSN))
	binary.LittleEndian.PutUint64(buf[sbNextTxIDOff:], uint64(sb.NextTxID))
	binary.LittleEndian.PutUint32(buf[sbNextPageIDOff:], uint32(sb.NextPageID))
	binary.LittleEndian.PutUint64(buf[sbFeatureFlagsOff:], uint64(sb.FeatureFlags))
	binary.LittleEndian.PutUint64(buf[sbNextCSNOff:], uint64(sb.NextCSN))

	SetPageCRC(buf)
	return buf
}

// UnmarshalSuperblock decodes page 0, validating magic, version, and CRC.
func UnmarshalSuperblock(buf []byte, checkCRC bool) (*Superblock, error) {
	if len(buf) < MinPageSize {
		return nil, fmt.Errorf("header page too small: %d bytes", len(buf))
	}
	if err := VerifyPageCRC(buf, checkCRC); err != nil {
		return nil, fmt.Errorf("header page CRC: %w", err)
	}
	magic := string(buf[sbMagicOff : sbMagicOff+8])
	if magic != HeaderMagic {
		return nil, fmt.Errorf("bad magic %q, expected %q", magic, HeaderMagic)
	}
	sb := &Superblock{
		VersionMajor:      binary.LittleEndian.Uint32(buf[sbVersionMajorOff:]),
		VersionMinor:      binary.LittleEndian.Uint32(buf[sbVersionMinorOff:]),
		PageSize:          binary.LittleEndian.Uint32(buf[sbPageSizeOff:]),
		FirstFreePage:     PageID(binary.LittleEndian.Uint32(buf[sbFirstFreePageOff:])),
		CatalogRoot:       PageID(binary.LittleEndian.Uint32(buf[sbCatalogRootOff:])),
		PrimaryNodeRoot:   PageID(binary.LittleEndian.Uint32(buf[sbPrimaryNodeRootOff:])),
		PrimaryEdgeRoot:   PageID(binary.LittleEndian.Uint32(buf[sbPrimaryEdgeRootOff:])),
		LabelIndexRoot:    PageID(binary.LittleEndian.Uint32(buf[sbLabelIndexRootOff:])),
		PropertyIndexRoot: PageID(binary.LittleEndian.Uint32(buf[sbPropertyIndexRootOff:])),
		NextNodeID:        binary.LittleEndian.Uint64(buf[sbNextNodeIDOff:]),
		NextEdgeID:        binary.LittleEndian.Uint64(buf[sbNextEdgeIDOff:]),
		LastCheckpointCSN: CSN(binary.LittleEndian.Uint64(buf[sbLastCheckpointCSNOff:])),
		LastCommittedCSN:  CSN(binary.LittleEndian.Uint64(buf[sbLastCommittedCSNOff:])),
		NextTxID:          TxID(binary.LittleEndian.Uint64(buf[sbNextTxIDOff:])),
		NextPageID:        PageID(binary.LittleEndian.Uint32(buf[sbNextPageIDOff:])),
		FeatureFlags:      FeatureFlag(binary.LittleEndian.Uint64(buf[sbFeatureFlagsOff:])),
		NextCSN:           CSN(binary.LittleEndian.Uint64(buf[sbNextCSNOff:])),
	}
	if sb.NextCSN == 0 {
		// pre-existing files written before NextCSN existed: seed it
		// past LastCommittedCSN so the first allocation after upgrade
		// still advances monotonically.
		sb.NextCSN = sb.LastCommittedCSN + 1
	}
	if id, err := uuid.FromBytes(buf[sbInstanceIDOff : sbInstanceIDOff+16]); err == nil {
		sb.InstanceID = id
	}

	if sb.VersionMajor != CurrentVersionMajor {
		return nil, fmt.Errorf("unsupported format version %d.%d (this build supports %d.x)",
			sb.VersionMajor, sb.VersionMinor, CurrentVersionMajor)
	}
	if sb.PageSize < MinPageSize || sb.PageSize > MaxPageSize || sb.PageSize&(sb.PageSize-1) != 0 {
		return nil, fmt.Errorf("page size %d invalid", sb.PageSize)
	}
	if sb.FeatureFlags & ^SupportedFeatures != 0 {
		return nil, fmt.Errorf("unsupported feature flags: %016x", sb.FeatureFlags)
	}
	return sb, nil
}
