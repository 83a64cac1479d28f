// Package record implements Sombra's node and edge record format: a
// tagged-union property codec plus slotted-page storage with an
// xmin/xmax MVCC header and a backward version-chain pointer, in the
// style of the pager package's row_codec/slotted-page conventions.
package record

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sombradb/sombra/internal/sombra/sombraerr"
)

func floatBits(f float64) uint64   { return math.Float64bits(f) }
func bitsToFloat(b uint64) float64 { return math.Float64frombits(b) }

// Tag identifies the scalar type of a PropertyValue on the wire.
type Tag byte

const (
	TagNull     Tag = 0x00
	TagBool     Tag = 0x01
	TagInt64    Tag = 0x02
	TagFloat64  Tag = 0x03
	TagString   Tag = 0x04
	TagBytes    Tag = 0x05
	TagDatetime Tag = 0x06 // int64 microseconds since Unix epoch, UTC
)

// PropertyValue is Sombra's closed scalar property type (spec §3/§6).
type PropertyValue struct {
	Tag      Tag
	Bool     bool
	Int      int64
	Float    float64
	Str      string
	Bytes    []byte
	Datetime int64 // microseconds since epoch, valid when Tag == TagDatetime
}

func Null() PropertyValue                  { return PropertyValue{Tag: TagNull} }
func FromBool(b bool) PropertyValue         { return PropertyValue{Tag: TagBool, Bool: b} }
func FromInt(i int64) PropertyValue         { return PropertyValue{Tag: TagInt64, Int: i} }
func FromFloat(f float64) PropertyValue     { return PropertyValue{Tag: TagFloat64, Float: f} }
func FromString(s string) PropertyValue     { return PropertyValue{Tag: TagString, Str: s} }
func FromBytes(b []byte) PropertyValue      { return PropertyValue{Tag: TagBytes, Bytes: b} }
func FromDatetime(us int64) PropertyValue   { return PropertyValue{Tag: TagDatetime, Datetime: us} }

func (v PropertyValue) IsNull() bool { return v.Tag == TagNull }

// MarshalPropertyValue appends the tagged-union encoding of v to dst.
func MarshalPropertyValue(dst []byte, v PropertyValue) []byte {
	dst = append(dst, byte(v.Tag))
	switch v.Tag {
	case TagNull:
	case TagBool:
		if v.Bool {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case TagInt64:
		dst = appendU64(dst, uint64(v.Int))
	case TagFloat64:
		dst = appendU64(dst, floatBits(v.Float))
	case TagString:
		dst = appendLenPrefixed(dst, []byte(v.Str))
	case TagBytes:
		dst = appendLenPrefixed(dst, v.Bytes)
	case TagDatetime:
		dst = appendU64(dst, uint64(v.Datetime))
	}
	return dst
}

// UnmarshalPropertyValue reads one PropertyValue from the front of src,
// returning the value and the number of bytes consumed.
func UnmarshalPropertyValue(src []byte) (PropertyValue, int, error) {
	if len(src) < 1 {
		return PropertyValue{}, 0, fmt.Errorf("property value: empty input")
	}
	tag := Tag(src[0])
	rest := src[1:]
	switch tag {
	case TagNull:
		return PropertyValue{Tag: TagNull}, 1, nil
	case TagBool:
		if len(rest) < 1 {
			return PropertyValue{}, 0, fmt.Errorf("property value: truncated bool")
		}
		return PropertyValue{Tag: TagBool, Bool: rest[0] != 0}, 2, nil
	case TagInt64:
		if len(rest) < 8 {
			return PropertyValue{}, 0, fmt.Errorf("property value: truncated int64")
		}
		return PropertyValue{Tag: TagInt64, Int: int64(binary.LittleEndian.Uint64(rest))}, 9, nil
	case TagFloat64:
		if len(rest) < 8 {
			return PropertyValue{}, 0, fmt.Errorf("property value: truncated float64")
		}
		return PropertyValue{Tag: TagFloat64, Float: bitsToFloat(binary.LittleEndian.Uint64(rest))}, 9, nil
	case TagString:
		s, n, err := readLenPrefixed(rest)
		if err != nil {
			return PropertyValue{}, 0, err
		}
		return PropertyValue{Tag: TagString, Str: string(s)}, 1 + n, nil
	case TagBytes:
		b, n, err := readLenPrefixed(rest)
		if err != nil {
			return PropertyValue{}, 0, err
		}
		return PropertyValue{Tag: TagBytes, Bytes: b}, 1 + n, nil
	case TagDatetime:
		if len(rest) < 8 {
			return PropertyValue{}, 0, fmt.Errorf("property value: truncated datetime")
		}
		return PropertyValue{Tag: TagDatetime, Datetime: int64(binary.LittleEndian.Uint64(rest))}, 9, nil
	default:
		return PropertyValue{}, 0, sombraerr.Newf(sombraerr.Corruption, "record.UnmarshalPropertyValue", "unknown tag 0x%02x", tag)
	}
}

func appendU64(dst []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(dst, tmp[:]...)
}

func appendLenPrefixed(dst, data []byte) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(data)))
	dst = append(dst, tmp[:]...)
	return append(dst, data...)
}

func readLenPrefixed(src []byte) ([]byte, int, error) {
	if len(src) < 4 {
		return nil, 0, fmt.Errorf("property value: truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(src)
	if int(n) > len(src)-4 {
		return nil, 0, fmt.Errorf("property value: length %d exceeds remaining buffer", n)
	}
	return src[4 : 4+n], 4 + int(n), nil
}

// Properties is an ordered set of name/value pairs. Kept as a slice
// rather than a map so on-disk encoding is deterministic.
type Properties []PropertyField

type PropertyField struct {
	Name  string
	Value PropertyValue
}

func (p Properties) Get(name string) (PropertyValue, bool) {
	for _, f := range p {
		if f.Name == name {
			return f.Value, true
		}
	}
	return PropertyValue{}, false
}

func (p Properties) With(name string, v PropertyValue) Properties {
	out := make(Properties, 0, len(p)+1)
	replaced := false
	for _, f := range p {
		if f.Name == name {
			out = append(out, PropertyField{Name: name, Value: v})
			replaced = true
			continue
		}
		out = append(out, f)
	}
	if !replaced {
		out = append(out, PropertyField{Name: name, Value: v})
	}
	return out
}

func (p Properties) Without(name string) Properties {
	out := make(Properties, 0, len(p))
	for _, f := range p {
		if f.Name != name {
			out = append(out, f)
		}
	}
	return out
}

func marshalProperties(dst []byte, props Properties) []byte {
	dst = appendU32(dst, uint32(len(props)))
	for _, f := range props {
		dst = appendLenPrefixed(dst, []byte(f.Name))
		dst = MarshalPropertyValue(dst, f.Value)
	}
	return dst
}

func unmarshalProperties(src []byte) (Properties, int, error) {
	if len(src) < 4 {
		return nil, 0, fmt.Errorf("properties: truncated count")
	}
	count := binary.LittleEndian.Uint32(src)
	off := 4
	props := make(Properties, 0, count)
	for i := uint32(0); i < count; i++ {
		name, n, err := readLenPrefixed(src[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n
		val, n2, err := UnmarshalPropertyValue(src[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n2
		props = append(props, PropertyField{Name: string(name), Value: val})
	}
	return props, off, nil
}

func appendU32(dst []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(dst, tmp[:]...)
}

// Encoded records are not checked against config.MaxRecordSize. The
// only size limit is that a record fits in an empty page; Store.insert
// returns sombraerr.LimitExceeded otherwise.
