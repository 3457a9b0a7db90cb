// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package cr2decode

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

// a minimal single-component, 1-bit-Huffman-code lossless JPEG stream: SOI,
// one DHT (a single 1-bit code "0" -> symbol 0, i.e. "zero magnitude bits,
// delta 0"), SOF3 (precision 2, 1x2), SOS (psv 1 = left predictor), two
// decoded symbols (both delta 0), EOI.
func minimalLosslessStream() []byte {
	return []byte{
		0xFF, 0xD8, // SOI

		0xFF, 0xC4, 0x00, 0x14, // DHT, length 20
		0x00,                                                                   // class_and_id
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // L[1..16]
		0x00, // symbol

		0xFF, 0xC3, 0x00, 0x0B, // SOF3, length 11
		0x02,       // precision
		0x00, 0x01, // height = 1
		0x00, 0x02, // width = 2
		0x01,             // numComponents
		0x01, 0x11, 0x00, // id=1, h/v=1/1, quant=0

		0xFF, 0xDA, 0x00, 0x08, // SOS, length 8
		0x01,             // numComponents
		0x01, 0x00,       // id=1, dcTable=0
		0x01, 0x00, 0x00, // Ss=1 (psv), Se=0, Ah/Al=0

		0x00, // entropy-coded data: two 1-bit "0" symbols, padded

		0xFF, 0xD9, // EOI
	}
}

func TestDecodeLosslessJPEGMinimal(t *testing.T) {
	c := qt.New(t)

	raster, frame, err := decodeLosslessJPEG(minimalLosslessStream())
	c.Assert(err, qt.IsNil)
	c.Assert(frame.width, qt.Equals, 2)
	c.Assert(frame.height, qt.Equals, 1)
	c.Assert(frame.precision, qt.Equals, 2)
	c.Assert(len(frame.components), qt.Equals, 1)
	c.Assert(raster, qt.DeepEquals, []uint16{2, 2})
	c.Assert(frame.String(), qt.Contains, "SOF3 precision=2 size=2x1 components=1")
}

func TestParseSOSSegmentStringDump(t *testing.T) {
	c := qt.New(t)

	scan, err := parseSOSSegment([]byte{0x01, 0x01, 0x00, 0x01, 0x00, 0x00})
	c.Assert(err, qt.IsNil)
	c.Assert(scan.String(), qt.Contains, "SOS psv=1")
	c.Assert(scan.String(), qt.Contains, "component id=1 dcTable=0")
}

func TestDecodeLosslessJPEGMissingSOI(t *testing.T) {
	c := qt.New(t)

	data := minimalLosslessStream()
	data[0] = 0x00

	_, _, err := decodeLosslessJPEG(data)
	c.Assert(err, qt.IsNotNil)
	c.Assert(IsKind(err, KindInvalidMarker), qt.IsTrue)
}

func TestDecodeLosslessJPEGMissingEOI(t *testing.T) {
	c := qt.New(t)

	data := minimalLosslessStream()
	data[len(data)-1] = 0x00

	_, _, err := decodeLosslessJPEG(data)
	c.Assert(err, qt.IsNotNil)
	c.Assert(IsKind(err, KindInvalidMarker), qt.IsTrue)
}

func TestPredictLosslessTable(t *testing.T) {
	c := qt.New(t)

	c.Assert(predictLossless(0, 10, 20, 30), qt.Equals, int32(0))
	c.Assert(predictLossless(1, 10, 20, 30), qt.Equals, int32(10))
	c.Assert(predictLossless(2, 10, 20, 30), qt.Equals, int32(20))
	c.Assert(predictLossless(3, 10, 20, 30), qt.Equals, int32(30))
	c.Assert(predictLossless(4, 10, 20, 30), qt.Equals, int32(0))  // left+top-topLeft
	c.Assert(predictLossless(5, 10, 20, 30), qt.Equals, int32(5))  // left+((top-topLeft)>>1)
	c.Assert(predictLossless(6, 10, 20, 30), qt.Equals, int32(10)) // top+((left-topLeft)>>1)
	c.Assert(predictLossless(7, 10, 20, 30), qt.Equals, int32(5))  // (top-left)>>1
}

// streamWithEntropy builds a single-component, precision-2, width-8, height-1
// lossless JPEG stream whose one DHT table maps both 1-bit codes to symbol 0
// (size 0, delta 0 unconditionally, regardless of the literal bit value),
// with the given physical entropy-coded bytes.
func streamWithEntropy(entropy []byte) []byte {
	var buf []byte
	buf = append(buf, 0xFF, 0xD8) // SOI
	buf = append(buf, 0xFF, 0xC4, 0x00, 0x15, // DHT, length 21
		0x00,
		0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // L[1]=2
		0x00, 0x00, // two symbols, both size 0
	)
	buf = append(buf, 0xFF, 0xC3, 0x00, 0x0B,
		0x02, // precision
		0x00, 0x01, // height
		0x00, 0x08, // width
		0x01,
		0x01, 0x11, 0x00,
	)
	buf = append(buf, 0xFF, 0xDA, 0x00, 0x08,
		0x01,
		0x01, 0x00,
		0x00, 0x00, 0x00, // psv 0
	)
	buf = append(buf, entropy...)
	buf = append(buf, 0xFF, 0xD9)
	return buf
}

// TestDecodeLosslessJPEGFF00StuffingIsTransparent covers spec scenario 4/§8's
// bit-stuffing invariant: a physical entropy byte of 0xFF (which must always
// be followed by a stuffed 0x00) decodes identically to a plain stream of
// 0x00 bytes with no 0xFF byte involved at all. The two streams carry
// different bits; they decode alike because this table maps both 1-bit
// codes to the same symbol, so only the stuffed 0x00 being skipped matters.
func TestDecodeLosslessJPEGFF00StuffingIsTransparent(t *testing.T) {
	c := qt.New(t)

	plain, _, err := decodeLosslessJPEG(streamWithEntropy([]byte{0x00, 0x00}))
	c.Assert(err, qt.IsNil)

	stuffed, _, err := decodeLosslessJPEG(streamWithEntropy([]byte{0xFF, 0x00}))
	c.Assert(err, qt.IsNil)

	c.Assert(stuffed, qt.DeepEquals, plain)

	// precision 2 -> predictor init 2^(2-1) = 2; component_count 1, psv 0:
	// x=0 keeps the initial predictor, x>=1 predicts 0, all deltas are 0.
	c.Assert(plain, qt.DeepEquals, []uint16{2, 0, 0, 0, 0, 0, 0, 0})
}

// TestDecodeLosslessJPEGTwoTableCycling covers spec scenario 6/§8: when SOS
// declares two distinct DHT destinations, the decoder alternates between
// them on successive symbols in SOS declaration order, checked against a
// hand-computed expected raster. With two components and two tables, the
// per-symbol counter and a per-component choice select the same table for
// every sample, so this test does not tell those two rules apart.
func TestDecodeLosslessJPEGTwoTableCycling(t *testing.T) {
	c := qt.New(t)

	var buf []byte
	buf = append(buf, 0xFF, 0xD8) // SOI

	buf = append(buf, 0xFF, 0xC4, 0x00, 0x14, // DHT dest 0: one 1-bit code -> size 1
		0x00,
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x01,
	)
	buf = append(buf, 0xFF, 0xC4, 0x00, 0x14, // DHT dest 1: one 1-bit code -> size 2
		0x01,
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x02,
	)

	buf = append(buf, 0xFF, 0xC3, 0x00, 0x0E, // SOF3, 2 components, width 2, height 1
		0x04,
		0x00, 0x01,
		0x00, 0x02,
		0x02,
		0x01, 0x11, 0x00,
		0x02, 0x11, 0x00,
	)

	buf = append(buf, 0xFF, 0xDA, 0x00, 0x0A, // SOS: comp1 uses dest0, comp2 uses dest1
		0x02,
		0x01, 0x00,
		0x02, 0x10,
		0x00, 0x00, 0x00, // psv 0
	)

	// bit sequence (MSB first): code"0"+mag"1" | code"0"+mag"11" | code"0"+mag"1" | code"0"+mag"11"
	// = 0 1 | 0 1 1 | 0 1 | 0 1 1  ->  0101101011 000000 (padded) = 0x5A 0xC0
	buf = append(buf, 0x5A, 0xC0)
	buf = append(buf, 0xFF, 0xD9) // EOI

	raster, frame, err := decodeLosslessJPEG(buf)
	c.Assert(err, qt.IsNil)
	c.Assert(frame.width, qt.Equals, 2)
	c.Assert(frame.height, qt.Equals, 1)
	c.Assert(len(frame.components), qt.Equals, 2)

	// x0 (comp0): predictor P[0]=init(8) += extend(1,1)=1 -> 9
	// x1 (comp1): predictor P[1]=init(8) += extend(3,2)=3 -> 11
	// x2: psv 0 predictor 0, + extend(1,1)=1 -> 1
	// x3: psv 0 predictor 0, + extend(3,2)=3 -> 3
	c.Assert(raster, qt.DeepEquals, []uint16{9, 11, 1, 3})
}
