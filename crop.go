// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package cr2decode

// cropFrame crops a width x height sensor raster to the Bayer-aligned
// borders in s, per §4.7: borders round to even so the Bayer mosaic's 2x2
// repeat unit is preserved across the crop.
func cropFrame(sensor []uint16, width, height int, s Sensor) ([]uint16, int, int, error) {
	leftEff := s.LeftBorder + (s.LeftBorder % 2)
	topEff := s.TopBorder + (s.TopBorder % 2)
	rightEff := s.RightBorder - (s.RightBorder % 2)
	bottomEff := s.BottomBorder - (s.BottomBorder % 2)

	if leftEff < 0 || topEff < 0 || rightEff > width || bottomEff > height || rightEff < leftEff || bottomEff < topEff {
		return nil, 0, 0, newFormatErrorf(KindSmallRaw, "crop borders [%d:%d, %d:%d] exceed decoded array %dx%d", topEff, bottomEff, leftEff, rightEff, width, height)
	}

	cropWidth := rightEff - leftEff
	cropHeight := bottomEff - topEff
	out := make([]uint16, cropWidth*cropHeight)
	for row := 0; row < cropHeight; row++ {
		srcStart := (topEff+row)*width + leftEff
		copy(out[row*cropWidth:(row+1)*cropWidth], sensor[srcStart:srcStart+cropWidth])
	}
	return out, cropWidth, cropHeight, nil
}
