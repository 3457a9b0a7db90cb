// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package cr2decode

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Sensor holds the camera sensor geometry decoded from the Canon MakerNote's
// SENSOR_INFO tag (0x00e0): overall dimensions, the image borders within the
// sensor, and the borders of the area used to compute the black level.
type Sensor struct {
	Width  int
	Height int

	LeftBorder   int
	TopBorder    int
	RightBorder  int
	BottomBorder int

	BlackMaskLeftBorder   int
	BlackMaskTopBorder    int
	BlackMaskRightBorder  int
	BlackMaskBottomBorder int
}

func (s Sensor) String() string {
	return fmt.Sprintf(
		"Sensor Width : %d\nSensor Height : %d\nBorder Top : %d\nBorder Bottom : %d\n"+
			"Border Left : %d\nBorder Right : %d\nBlack Mask Top : %d\nBlack Mask Bottom : %d\n"+
			"Black Mask Left : %d\nBlack Mask Right : %d\n",
		s.Width, s.Height, s.TopBorder, s.BottomBorder, s.LeftBorder, s.RightBorder,
		s.BlackMaskTopBorder, s.BlackMaskBottomBorder, s.BlackMaskLeftBorder, s.BlackMaskRightBorder,
	)
}

// sensorFromInfo builds a Sensor from the raw SENSOR_INFO array, per the
// index mapping in spec §3/§4.1: width=[1], height=[2], left=[5], top=[6],
// right=[7], bottom=[8], black-mask borders at [9..12].
func sensorFromInfo(info []int64) (Sensor, error) {
	if len(info) < 13 {
		return Sensor{}, newFormatErrorf(KindNotCR2, "SENSOR_INFO has %d entries, want at least 13", len(info))
	}
	return Sensor{
		Width:                 int(info[1]),
		Height:                int(info[2]),
		LeftBorder:            int(info[5]),
		TopBorder:             int(info[6]),
		RightBorder:           int(info[7]),
		BottomBorder:          int(info[8]),
		BlackMaskLeftBorder:   int(info[9]),
		BlackMaskTopBorder:    int(info[10]),
		BlackMaskRightBorder:  int(info[11]),
		BlackMaskBottomBorder: int(info[12]),
	}, nil
}

// CR2Slice describes the vertical-slice layout of the raw strip: the strip's
// file offset and byte count, how many full-width slices precede a final,
// possibly narrower, slice.
type CR2Slice struct {
	StripOffset    int64
	StripByteCount int64

	SliceCount     int
	SliceWidth     int
	LastSliceWidth int
}

// widths returns the slice width sequence S = [sw]*n + [lw] from §4.6, or a
// single full-width slice when SliceCount == 0 (no CR2_SLICE tag present).
func (s CR2Slice) widths(fullWidth int) []int {
	if s.SliceCount == 0 {
		return []int{fullWidth}
	}
	out := make([]int, 0, s.SliceCount+1)
	for i := 0; i < s.SliceCount; i++ {
		out = append(out, s.SliceWidth)
	}
	return append(out, s.LastSliceWidth)
}

// Container is the result of parsing a CR2 file's header and the IFD chain
// down to Sensor and CR2Slice, without decoding any pixel data.
type Container struct {
	ByteOrder binary.ByteOrder
	Version   float64

	IFD0      *Ifd
	EXIF      *Ifd
	MakerNote *Ifd
	IFD3      *Ifd

	Sensor Sensor
	Slices CR2Slice
}

// String returns a debug dump of the container: version, sensor geometry,
// slice layout, and the tags of each parsed IFD with best-effort names.
func (c *Container) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CR2 version %.1f\n", c.Version)
	sb.WriteString(c.Sensor.String())
	fmt.Fprintf(&sb, "Slices : %d x %d + %d\n", c.Slices.SliceCount, c.Slices.SliceWidth, c.Slices.LastSliceWidth)
	dumpIfd(&sb, "IFD0", c.IFD0, fieldNamesIFD0)
	dumpIfd(&sb, "EXIF", c.EXIF, fieldNamesEXIF)
	dumpIfd(&sb, "MakerNote", c.MakerNote, fieldNamesMakerNote)
	dumpIfd(&sb, "IFD3", c.IFD3, fieldNamesIFD3)
	return sb.String()
}

func dumpIfd(sb *strings.Builder, label string, ifd *Ifd, names map[uint16]string) {
	if ifd == nil {
		return
	}
	fmt.Fprintf(sb, "%s (%d entries)\n", label, len(ifd.Entries))
	for _, e := range ifd.Entries {
		name := fieldName(names, e.TagID)
		if name == "" {
			name = fmt.Sprintf("0x%04x", e.TagID)
		}
		fmt.Fprintf(sb, "  %s = %s\n", name, e.Value.String())
	}
}

// openContainer parses the CR2 header and walks IFD0 -> EXIF -> MakerNote for
// Sensor, and IFD3 for CR2Slice, per §4.1.
func openContainer(r io.ReadSeeker, warn Warnf) (*Container, error) {
	header := make([]byte, 16)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, newFormatError(KindNotCR2, err)
	}

	var bo binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, newFormatErrorf(KindUnknownEndian, "byte-order marker %q", header[0:2])
	}

	if bo.Uint16(header[2:4]) != 0x002A {
		return nil, newFormatErrorf(KindNotCR2, "bad TIFF magic")
	}
	if string(header[8:10]) != "CR" {
		return nil, newFormatErrorf(KindNotCR2, "missing CR2 magic")
	}

	major, minor := header[10], header[11]
	version := float64(major) + float64(minor)/10

	ifd0Offset := bo.Uint32(header[4:8])
	ifd3Offset := bo.Uint32(header[12:16])

	sr := newStreamReader(r, bo)

	c := &Container{ByteOrder: bo, Version: version}

	var err error
	if c.IFD0, err = safeReadIfd(sr, int64(ifd0Offset), warn); err != nil {
		return nil, err
	}

	exifVal, ok := c.IFD0.Get(tagExifIFDPointer)
	if !ok {
		return nil, newFormatErrorf(KindNotCR2, "IFD0 missing EXIF pointer tag")
	}

	if c.EXIF, err = safeReadIfd(sr, int64(exifVal.Int()), warn); err != nil {
		return nil, err
	}

	mkVal, ok := c.EXIF.Get(tagMakerNote)
	if !ok || mkVal.Kind != KindUndefined {
		return nil, newFormatErrorf(KindNotCR2, "EXIF missing MakerNote tag")
	}

	if c.MakerNote, err = safeReadIfd(sr, int64(mkVal.Undefined.Offset), warn); err != nil {
		return nil, err
	}

	sensorVal, ok := c.MakerNote.Get(tagSensorInfo)
	if !ok {
		return nil, newFormatErrorf(KindNotCR2, "MakerNote missing SENSOR_INFO tag")
	}
	info, err := signedShortList(sensorVal)
	if err != nil {
		return nil, err
	}
	if c.Sensor, err = sensorFromInfo(info); err != nil {
		return nil, err
	}

	if c.IFD3, err = safeReadIfd(sr, int64(ifd3Offset), warn); err != nil {
		return nil, err
	}

	stripOffVal, ok := c.IFD3.Get(tagStripOffset)
	if !ok {
		return nil, newFormatErrorf(KindNotCR2, "IFD3 missing StripOffset tag")
	}
	stripCountVal, ok := c.IFD3.Get(tagStripByteCount)
	if !ok {
		return nil, newFormatErrorf(KindNotCR2, "IFD3 missing StripByteCount tag")
	}

	slices := CR2Slice{
		StripOffset:    stripOffVal.Int(),
		StripByteCount: stripCountVal.Int(),
	}
	if sliceVal, ok := c.IFD3.Get(tagCR2Slice); ok {
		triple, err := intList(sliceVal)
		if err != nil {
			return nil, err
		}
		if len(triple) != 3 {
			return nil, newFormatErrorf(KindNotCR2, "CR2_SLICE has %d entries, want 3", len(triple))
		}
		slices.SliceCount = int(triple[0])
		slices.SliceWidth = int(triple[1])
		slices.LastSliceWidth = int(triple[2])
	}
	c.Slices = slices

	return c, nil
}

// intList widens a scalar or List-of-scalar Value into a []int64, the shape
// the CR2_SLICE array is read as (SENSOR_INFO goes through signedShortList).
func intList(v Value) ([]int64, error) {
	if v.Kind == KindList {
		out := make([]int64, len(v.List))
		for i, e := range v.List {
			out[i] = e.Int()
		}
		return out, nil
	}
	return []int64{v.Int()}, nil
}

// signedShortList widens a scalar or List-of-SHORT Value into a []int64,
// reinterpreting each 16-bit entry as signed: Canon's SENSOR_INFO tag is
// declared TIFF type SHORT (unsigned) but its entries are a signed 16-bit
// array (§3/§6), so the raw uint16 bit pattern is sign-extended here rather
// than trusting the TIFF type's unsignedness.
func signedShortList(v Value) ([]int64, error) {
	toSigned := func(e Value) int64 {
		if e.Kind == KindShort {
			return int64(int16(e.Short()))
		}
		return e.Int()
	}
	if v.Kind == KindList {
		out := make([]int64, len(v.List))
		for i, e := range v.List {
			out[i] = toSigned(e)
		}
		return out, nil
	}
	return []int64{toSigned(v)}, nil
}

// safeReadIfd recovers the panic-based short-circuit streamReader.stop uses,
// turning it into a returned IO error.
func safeReadIfd(sr *streamReader, offset int64, warn Warnf) (ifd *Ifd, err error) {
	defer func() {
		if r := recover(); r != nil {
			if r == errStop {
				cause := sr.readErr
				if cause == nil {
					cause = io.ErrUnexpectedEOF
				}
				ifd, err = nil, newFormatError(KindIO, cause)
				return
			}
			panic(r)
		}
	}()
	return readIfd(sr, offset, warn)
}
