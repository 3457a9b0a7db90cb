// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package cr2decode

// reassembleSlices turns the decoder's flat H*W raster (row-major, slices
// still in decode order) into the true sensor image, where horizontally
// adjacent columns are the camera sensor's actual columns, per §4.6.
//
// Each slice i occupies a contiguous run of the flat raster of length
// H*S[i]; read row-major within that run, it is an (H, S[i]) block that
// belongs at sensor columns [c_i, c_i+S[i]) for every row.
func reassembleSlices(raster []uint16, height int, widths []int) ([]uint16, int, error) {
	totalWidth := 0
	for _, w := range widths {
		totalWidth += w
	}
	if len(raster) != height*totalWidth {
		return nil, 0, newFormatErrorf(KindCorruptedData, "raster length %d does not match height %d * total slice width %d", len(raster), height, totalWidth)
	}
	if len(widths) == 1 {
		return raster, totalWidth, nil
	}

	sensor := make([]uint16, height*totalWidth)
	flatPos := 0
	col := 0
	for _, w := range widths {
		for row := 0; row < height; row++ {
			src := raster[flatPos+row*w : flatPos+row*w+w]
			dst := sensor[row*totalWidth+col : row*totalWidth+col+w]
			copy(dst, src)
		}
		flatPos += height * w
		col += w
	}
	return sensor, totalWidth, nil
}
