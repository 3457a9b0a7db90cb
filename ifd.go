// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package cr2decode

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// TIFF type IDs, per the IfdEntry type_id field.
const (
	tiffByte        = 1
	tiffAscii       = 2
	tiffShort       = 3
	tiffLong        = 4
	tiffRational    = 5
	tiffSignedByte  = 6
	tiffUndefined   = 7
	tiffSignedShort = 8
	tiffSignedLong  = 9
	tiffSignedRat   = 10
	tiffFloat       = 11
	tiffDouble      = 12
)

// 10 MB should be plenty for one IFD value or one maker-note block.
const maxIfdValueSize = 10 * 1024 * 1024

// tiffTypeSize returns the fixed byte width of a scalar of the given TIFF
// type, or 0 if typeID is unknown. ASCII (variable width) and Undefined
// (handled as a special case, never by width) are not represented here.
func tiffTypeSize(typeID uint16) int {
	switch typeID {
	case tiffByte, tiffSignedByte:
		return 1
	case tiffShort, tiffSignedShort:
		return 2
	case tiffLong, tiffSignedLong, tiffFloat:
		return 4
	case tiffRational, tiffSignedRat, tiffDouble:
		return 8
	default:
		return 0
	}
}

// IfdEntry is one 12-byte TIFF directory entry, decoded.
type IfdEntry struct {
	TagID         uint16
	TypeID        uint16
	Count         uint32
	ValueOrOffset uint32
	Value         Value
}

// Ifd is a TIFF Image File Directory: an ordered list of entries plus a
// tag-to-value map. Tag uniqueness within an IFD is not assumed; for the map,
// last write wins, matching the source reader's behavior.
type Ifd struct {
	Entries []IfdEntry
	Tags    map[uint16]Value
}

// Get returns the value for tag and whether it was present.
func (ifd *Ifd) Get(tag uint16) (Value, bool) {
	v, ok := ifd.Tags[tag]
	return v, ok
}

// readIfd reads the IFD at the given absolute file offset: a 2-byte entry
// count followed by that many 12-byte entries. The cursor is restored to
// immediately after each entry before the next one is read, per the TIFF
// directory layout (§4.2).
func readIfd(sr *streamReader, offset int64, warn Warnf) (*Ifd, error) {
	sr.seek(offset)

	count := sr.read2()
	ifd := &Ifd{
		Entries: make([]IfdEntry, 0, count),
		Tags:    make(map[uint16]Value, count),
	}

	for i := 0; i < int(count); i++ {
		entryStart := sr.pos()

		tagID := sr.read2()
		typeID := sr.read2()
		tagCount := sr.read4()
		valueBytes := append([]byte(nil), sr.readBytesVolatile(4)...)
		valueOrOffset := sr.byteOrder.Uint32(valueBytes)

		val, err := decodeIfdValue(sr, typeID, tagCount, valueOrOffset, valueBytes, warn)
		if err != nil {
			return nil, err
		}

		ifd.Entries = append(ifd.Entries, IfdEntry{
			TagID:         tagID,
			TypeID:        typeID,
			Count:         tagCount,
			ValueOrOffset: valueOrOffset,
			Value:         val,
		})
		ifd.Tags[tagID] = val

		sr.seek(entryStart + 12)
	}

	return ifd, nil
}

func decodeIfdValue(sr *streamReader, typeID uint16, count uint32, valueOrOffset uint32, inline []byte, warn Warnf) (Value, error) {
	if typeID == tiffUndefined {
		// Undefined values are never dereferenced here: the offset they carry
		// (e.g. a MakerNote sub-IFD pointer) is the caller's concern.
		return undefinedValue(count, valueOrOffset), nil
	}

	if typeID == tiffAscii {
		if count > maxIfdValueSize {
			return Value{}, newFormatErrorf(KindCorruptedData, "IFD ASCII value of %d bytes exceeds max %d", count, maxIfdValueSize)
		}
		var raw []byte
		if count <= 4 {
			raw = inline[:minU32Int(count, 4)]
		} else {
			data, err := readAt(sr, int64(valueOrOffset), int(count))
			if err != nil {
				return Value{}, err
			}
			raw = data
		}
		return asciiValue(decodeASCII(raw, warn)), nil
	}

	size := tiffTypeSize(typeID)
	if size == 0 {
		return Value{}, newFormatErrorf(KindCorruptedData, "unknown IFD type %d", typeID)
	}
	if int64(count)*int64(size) > maxIfdValueSize {
		return Value{}, newFormatErrorf(KindCorruptedData, "IFD value of %d bytes exceeds max %d", int64(count)*int64(size), maxIfdValueSize)
	}

	if count == 1 && size <= 4 {
		return decodeScalar(sr.byteOrder, typeID, inline[:size]), nil
	}

	data, err := readAt(sr, int64(valueOrOffset), int(count)*size)
	if err != nil {
		return Value{}, err
	}

	if count == 1 {
		return decodeScalar(sr.byteOrder, typeID, data[:size]), nil
	}

	vals := make([]Value, count)
	for i := 0; i < int(count); i++ {
		vals[i] = decodeScalar(sr.byteOrder, typeID, data[i*size:(i+1)*size])
	}
	return listValue(vals), nil
}

func readAt(sr *streamReader, offset int64, n int) ([]byte, error) {
	var out []byte
	err := sr.preservePos(func() error {
		sr.seek(offset)
		out = append([]byte(nil), sr.readBytesVolatile(n)...)
		return nil
	})
	return out, err
}

func decodeScalar(bo binary.ByteOrder, typeID uint16, b []byte) Value {
	switch typeID {
	case tiffByte:
		return byteValue(b[0])
	case tiffSignedByte:
		return signedByteValue(int8(b[0]))
	case tiffShort:
		return shortValue(bo.Uint16(b))
	case tiffSignedShort:
		return signedShortValue(int16(bo.Uint16(b)))
	case tiffLong:
		return longValue(bo.Uint32(b))
	case tiffSignedLong:
		return signedLongValue(int32(bo.Uint32(b)))
	case tiffFloat:
		return floatValue(math.Float32frombits(bo.Uint32(b)))
	case tiffDouble:
		return doubleValue(math.Float64frombits(bo.Uint64(b)))
	case tiffRational:
		return rationalValue(bo.Uint32(b[0:4]), bo.Uint32(b[4:8]))
	case tiffSignedRat:
		return signedRationalValue(int32(bo.Uint32(b[0:4])), int32(bo.Uint32(b[4:8])))
	default:
		return Value{}
	}
}

// decodeASCII applies the three-tier fallback: ASCII, then UTF-8, then
// Windows-1252, finally the raw bytes as a Latin-1-ish best effort. Trailing
// NULs are stripped before any of the three attempts.
func decodeASCII(raw []byte, warn Warnf) string {
	trimmed := trimBytesNulls(raw)
	if trimmed == nil {
		return ""
	}
	if isASCII(trimmed) {
		return string(trimmed)
	}
	if utf8.Valid(trimmed) {
		return string(trimmed)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(trimmed)
	if err == nil {
		return string(decoded)
	}
	warn.warn("IFD ASCII value is neither ASCII, UTF-8, nor Windows-1252; returning raw bytes")
	return string(trimmed)
}

func minU32Int(a uint32, b int) uint32 {
	if int(a) < b {
		return a
	}
	return uint32(b)
}
