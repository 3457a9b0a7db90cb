// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package cr2decode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	markerSOI  = 0xFFD8
	markerEOI  = 0xFFD9
	markerDHT  = 0xFFC4
	markerSOF3 = 0xFFC3
	markerSOS  = 0xFFDA
)

// frameComponent is one SOF3 component descriptor.
type frameComponent struct {
	id           byte
	hSamp        byte
	vSamp        byte
	quantTableID byte
}

// frameHeader is a decoded SOF3 segment.
type frameHeader struct {
	precision  int
	height     int
	width      int
	components []frameComponent
}

// scanComponent is one SOS component selector: which component, and which
// Huffman table (DC/lossless destination) it draws from.
type scanComponent struct {
	componentID byte
	dcTable     byte
}

// scanHeader is a decoded SOS segment.
type scanHeader struct {
	components        []scanComponent
	predictorSelector int // Ss, doubles as the psv for lossless JPEG
	pointTransform    int // Al
}

func (f frameHeader) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SOF3 precision=%d size=%dx%d components=%d\n", f.precision, f.width, f.height, len(f.components))
	for _, c := range f.components {
		fmt.Fprintf(&sb, "  component id=%d sampling=%dx%d quant=%d\n", c.id, c.hSamp, c.vSamp, c.quantTableID)
	}
	return sb.String()
}

func (s scanHeader) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SOS psv=%d pointTransform=%d components=%d\n", s.predictorSelector, s.pointTransform, len(s.components))
	for _, c := range s.components {
		fmt.Fprintf(&sb, "  component id=%d dcTable=%d\n", c.componentID, c.dcTable)
	}
	return sb.String()
}

// decodeLosslessJPEG decodes a lossless-JPEG (SOF3) entropy stream into a
// single H x W raster of unsigned 16-bit samples, W = frame.width *
// component_count, per the scan procedure (predictor registers, Huffman
// table cycling, predictor selection table).
func decodeLosslessJPEG(strip []byte) ([]uint16, frameHeader, error) {
	if len(strip) < 4 || binary.BigEndian.Uint16(strip[0:2]) != markerSOI {
		return nil, frameHeader{}, newFormatErrorf(KindInvalidMarker, "lossless JPEG stream missing SOI")
	}
	if binary.BigEndian.Uint16(strip[len(strip)-2:]) != markerEOI {
		return nil, frameHeader{}, newFormatErrorf(KindInvalidMarker, "lossless JPEG stream missing EOI")
	}

	var (
		frame     frameHeader
		haveFrame bool
		tables    = make(map[byte]*huffmanTable)
		pos       = 2 // past SOI
	)

	for {
		if pos+4 > len(strip) {
			return nil, frameHeader{}, newFormatErrorf(KindInvalidMarker, "truncated segment header")
		}
		if strip[pos] != 0xFF {
			return nil, frameHeader{}, newFormatErrorf(KindInvalidMarker, "expected marker at offset %d, found 0x%02x", pos, strip[pos])
		}
		marker := uint16(strip[pos])<<8 | uint16(strip[pos+1])
		segLen := int(binary.BigEndian.Uint16(strip[pos+2 : pos+4]))
		if segLen < 2 {
			return nil, frameHeader{}, newFormatErrorf(KindInvalidMarker, "segment at offset %d declares length %d, want at least 2", pos, segLen)
		}
		segStart := pos + 4
		segEnd := pos + 2 + segLen
		if segEnd > len(strip) {
			return nil, frameHeader{}, newFormatErrorf(KindInvalidMarker, "segment at offset %d overruns stream", pos)
		}

		switch marker {
		case markerDHT:
			if err := parseDHTSegment(strip[segStart:segEnd], tables); err != nil {
				return nil, frameHeader{}, err
			}
			pos = segEnd
		case markerSOF3:
			f, err := parseSOF3Segment(strip[segStart:segEnd])
			if err != nil {
				return nil, frameHeader{}, err
			}
			frame = f
			haveFrame = true
			pos = segEnd
		case markerSOS:
			if !haveFrame {
				return nil, frameHeader{}, newFormatErrorf(KindInvalidMarker, "SOS before SOF3")
			}
			scan, err := parseSOSSegment(strip[segStart:segEnd])
			if err != nil {
				return nil, frameHeader{}, err
			}
			raster, err := decodeScanData(strip[segEnd:len(strip)-2], frame, scan, tables)
			if err != nil {
				return nil, frameHeader{}, err
			}
			return raster, frame, nil
		default:
			// Any other marker before SOS is skipped; per §4.5 any marker
			// after SOS is end-of-scan, but that path never reaches here
			// because SOS returns directly above.
			pos = segEnd
		}
	}
}

func parseDHTSegment(seg []byte, tables map[byte]*huffmanTable) error {
	for len(seg) > 0 {
		if len(seg) < 17 {
			return newFormatErrorf(KindCorruptedData, "truncated DHT segment")
		}
		classAndID := seg[0]
		var counts [16]byte
		copy(counts[:], seg[1:17])
		n := 0
		for _, c := range counts {
			n += int(c)
		}
		if len(seg) < 17+n {
			return newFormatErrorf(KindCorruptedData, "DHT segment shorter than declared symbol count")
		}
		symbols := seg[17 : 17+n]
		table, err := newHuffmanTable(classAndID, counts, symbols)
		if err != nil {
			return err
		}
		tables[classAndID&0x0F] = table
		seg = seg[17+n:]
	}
	return nil
}

func parseSOF3Segment(seg []byte) (frameHeader, error) {
	if len(seg) < 6 {
		return frameHeader{}, newFormatErrorf(KindCorruptedData, "truncated SOF3 segment")
	}
	precision := int(seg[0])
	height := int(binary.BigEndian.Uint16(seg[1:3]))
	width := int(binary.BigEndian.Uint16(seg[3:5]))
	numComponents := int(seg[5])
	if len(seg) < 6+numComponents*3 {
		return frameHeader{}, newFormatErrorf(KindCorruptedData, "SOF3 segment shorter than declared component count")
	}
	comps := make([]frameComponent, numComponents)
	for i := 0; i < numComponents; i++ {
		b := seg[6+i*3 : 9+i*3]
		comps[i] = frameComponent{
			id:           b[0],
			hSamp:        b[1] >> 4,
			vSamp:        b[1] & 0x0F,
			quantTableID: b[2],
		}
	}
	return frameHeader{precision: precision, height: height, width: width, components: comps}, nil
}

func parseSOSSegment(seg []byte) (scanHeader, error) {
	if len(seg) < 1 {
		return scanHeader{}, newFormatErrorf(KindCorruptedData, "truncated SOS segment")
	}
	numComponents := int(seg[0])
	if len(seg) < 1+numComponents*2+3 {
		return scanHeader{}, newFormatErrorf(KindCorruptedData, "SOS segment shorter than declared component count")
	}
	comps := make([]scanComponent, numComponents)
	for i := 0; i < numComponents; i++ {
		b := seg[1+i*2 : 3+i*2]
		comps[i] = scanComponent{componentID: b[0], dcTable: b[1] >> 4}
	}
	tail := seg[1+numComponents*2:]
	return scanHeader{
		components:        comps,
		predictorSelector: int(tail[0]),
		pointTransform:    int(tail[2] & 0x0F),
	}, nil
}

// decodeScanData runs the raster decode loop of §4.5 over the entropy-coded
// bytes following SOS, selecting Huffman tables by cycling through the
// scan's declared component tables once per decoded symbol (this also
// degenerates correctly to "use the single shared table" when all of a
// file's DHT tables are bytewise identical, since cycling among copies of
// the same table has no observable effect).
func decodeScanData(entropy []byte, frame frameHeader, scan scanHeader, tables map[byte]*huffmanTable) ([]uint16, error) {
	componentCount := len(frame.components)
	if componentCount == 0 {
		return nil, newFormatErrorf(KindCorruptedData, "SOF3 declares zero components")
	}
	if len(scan.components) == 0 {
		return nil, newFormatErrorf(KindCorruptedData, "SOS declares zero components")
	}
	if frame.precision < 1 || frame.precision > 16 {
		return nil, newFormatErrorf(KindCorruptedData, "SOF3 precision %d out of range", frame.precision)
	}

	scanTables := make([]*huffmanTable, len(scan.components))
	for i, sc := range scan.components {
		t, ok := tables[sc.dcTable]
		if !ok {
			return nil, newFormatErrorf(KindCorruptedData, "SOS references undefined DHT destination %d", sc.dcTable)
		}
		scanTables[i] = t
	}

	psv := scan.predictorSelector

	width := frame.width * componentCount
	height := frame.height
	// Largest Canon sensors are on the order of 10^8 samples; anything beyond
	// that is a corrupt header, not a bigger camera.
	const maxRasterSamples = 1 << 28
	if width <= 0 || height <= 0 || width*height > maxRasterSamples {
		return nil, newFormatErrorf(KindCorruptedData, "implausible raster size %dx%d", width, height)
	}
	raster := make([]uint16, width*height)

	predictors := make([]int32, componentCount)
	initial := int32(1) << (frame.precision - 1)
	for c := range predictors {
		predictors[c] = initial
	}

	br := newBitReader(entropy)
	symbolIdx := 0

	for y := 0; y < height; y++ {
		rowStart := y * width
		prevRowStart := rowStart - width
		for x := 0; x < width; x++ {
			table := scanTables[symbolIdx%len(scanTables)]
			symbolIdx++

			s, err := table.decode(br)
			if err != nil {
				return nil, err
			}
			size := int(s)
			if size > 16 {
				return nil, newFormatErrorf(KindCorruptedData, "Huffman symbol %d exceeds 16-bit magnitude", size)
			}
			m, err := receive(br, size)
			if err != nil {
				return nil, err
			}
			delta := extend(m, size)

			var sample int32
			if x < componentCount {
				predictors[x] += delta
				sample = predictors[x]
			} else {
				left := int32(raster[rowStart+x-componentCount])
				var top, topLeft int32
				if y > 0 {
					top = int32(raster[prevRowStart+x])
					topLeft = int32(raster[prevRowStart+x-componentCount])
				}
				sample = predictLossless(psv, left, top, topLeft) + delta
			}
			raster[rowStart+x] = uint16(sample)
		}
	}

	return raster, nil
}

// predictLossless implements the 0..7 lossless-JPEG predictor table.
func predictLossless(psv int, left, top, topLeft int32) int32 {
	switch psv {
	case 0:
		return 0
	case 1:
		return left
	case 2:
		return top
	case 3:
		return topLeft
	case 4:
		return left + top - topLeft
	case 5:
		return left + ((top - topLeft) >> 1)
	case 6:
		return top + ((left - topLeft) >> 1)
	case 7:
		return (top - left) >> 1
	default:
		return 0
	}
}
