// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package cr2decode

import (
	"context"
	"os"
)

// FITS primary-HDU header values a downstream FITS writer contracts on, per
// §6. This module never writes FITS itself; it only names the constants so
// a collaborator doesn't have to hardcode them independently.
const (
	FITSCreator = "crtwo2fits"
	FITSBitpix  = 16
	FITSNaxis   = 2
)

// maxStripBytes bounds one raw strip read. The largest CR2 raw strips are
// well under 100 MB.
const maxStripBytes = 1 << 30

// Image is a decoded sensor raster: width/height plus the unsigned 16-bit
// samples in row-major order, the shape both the native decoder and the
// external-decoder/PGM path produce.
type Image struct {
	Width  int
	Height int
	Pixels []uint16
}

// LoadOptions configures CR2Image.Load.
type LoadOptions struct {
	// IFD selects which image to decode. Only 3 (the raw strip) is
	// implemented; 1 (the embedded preview JPEG) is specified but not
	// implemented, per §4.9/§9.
	IFD int

	// FullFrame skips the Bayer-parity cropper, returning the full decoded
	// sensor array.
	FullFrame bool

	// Native forces the built-in lossless-JPEG decoder even when an
	// external decoder is configured.
	Native bool

	// StrictGeometry promotes the frame/Sensor width-or-height mismatch
	// warning to a KindCorruptedData error, per the Open Question decision
	// in DESIGN.md: spec.md leaves this a caller policy choice, this knob
	// makes that choice concrete.
	StrictGeometry bool

	// External, when set, is tried instead of the native decoder unless
	// Native is true.
	External *ExternalDecoderConfig
}

// CR2Image is the open/load/close facade over a single CR2 file, per §4.9.
type CR2Image struct {
	path string
	file *os.File
	warn Warnf

	container *Container
	closed    bool
}

// Open parses path's CR2 container: header, IFD0->EXIF->MakerNote->Sensor,
// IFD3->CR2Slice. warn receives non-fatal diagnostics (geometry mismatches,
// unusual ASCII encodings); it may be nil.
func Open(path string, warn Warnf) (*CR2Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newFormatError(KindIO, err)
	}

	c, err := openContainer(f, warn)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &CR2Image{path: path, file: f, warn: warn, container: c}, nil
}

// Version returns the CR2 format version (major + minor/10) from the
// container header, e.g. 2.0.
func (img *CR2Image) Version() (float64, error) {
	if err := img.checkOpen(); err != nil {
		return 0, err
	}
	return img.container.Version, nil
}

// Sensor returns the decoded sensor geometry.
func (img *CR2Image) Sensor() (Sensor, error) {
	if err := img.checkOpen(); err != nil {
		return Sensor{}, err
	}
	return img.container.Sensor, nil
}

// Slices returns the decoded CR2_SLICE layout.
func (img *CR2Image) Slices() (CR2Slice, error) {
	if err := img.checkOpen(); err != nil {
		return CR2Slice{}, err
	}
	return img.container.Slices, nil
}

// Exif returns the decoded EXIF sub-IFD's tags, including the raw
// (unparsed) DateTimeOriginal/DateTimeDigitized/DateTime strings: parsing
// them into a time.Time is an external concern.
func (img *CR2Image) Exif() (*Ifd, error) {
	if err := img.checkOpen(); err != nil {
		return nil, err
	}
	return img.container.EXIF, nil
}

// MakerNotes returns the decoded Canon MakerNote sub-IFD's tags.
func (img *CR2Image) MakerNotes() (*Ifd, error) {
	if err := img.checkOpen(); err != nil {
		return nil, err
	}
	return img.container.MakerNote, nil
}

// Load decodes the image named by opts.IFD (only 3, the raw strip, is
// implemented) and, unless opts.FullFrame is set, crops it to the
// Bayer-aligned sensor borders.
func (img *CR2Image) Load(ctx context.Context, opts LoadOptions) (*Image, error) {
	if err := img.checkOpen(); err != nil {
		return nil, err
	}
	if opts.IFD == 0 {
		opts.IFD = 3
	}
	if opts.IFD == 1 {
		return nil, newFormatErrorf(KindNotImplemented, "ifd=1 (embedded preview) is not implemented")
	}
	if opts.IFD != 3 {
		return nil, newFormatErrorf(KindNotImplemented, "ifd=%d is not implemented", opts.IFD)
	}

	var (
		pixels []uint16
		width  int
		height int
	)

	if opts.External != nil && !opts.Native {
		// The subprocess reads the CR2 file itself and emits the full sensor
		// image as PGM on stdout, already reassembled.
		var err error
		pixels, width, height, err = decodeExternal(ctx, *opts.External, img.path)
		if err != nil {
			return nil, err
		}
	} else {
		slices := img.container.Slices
		if slices.StripByteCount <= 0 || slices.StripByteCount > maxStripBytes {
			return nil, newFormatErrorf(KindCorruptedData, "implausible raw strip size %d", slices.StripByteCount)
		}
		strip := make([]byte, slices.StripByteCount)
		if _, err := img.file.ReadAt(strip, slices.StripOffset); err != nil {
			return nil, newFormatError(KindIO, err)
		}

		raster, frame, err := decodeLosslessJPEG(strip)
		if err != nil {
			return nil, err
		}
		componentCount := len(frame.components)
		rasterWidth := frame.width * componentCount

		if rasterWidth != img.container.Sensor.Width || frame.height != img.container.Sensor.Height {
			msg := "decoded frame size %dx%d disagrees with Sensor geometry %dx%d"
			if opts.StrictGeometry {
				return nil, newFormatErrorf(KindCorruptedData, msg, rasterWidth, frame.height, img.container.Sensor.Width, img.container.Sensor.Height)
			}
			img.warn.warn(msg, rasterWidth, frame.height, img.container.Sensor.Width, img.container.Sensor.Height)
		}

		sensorRaster, sensorWidth, err := reassembleSlices(raster, frame.height, slices.widths(rasterWidth))
		if err != nil {
			return nil, err
		}
		pixels, width, height = sensorRaster, sensorWidth, frame.height
	}

	if opts.FullFrame {
		return &Image{Width: width, Height: height, Pixels: pixels}, nil
	}

	cropped, cropWidth, cropHeight, err := cropFrame(pixels, width, height, img.container.Sensor)
	if err != nil {
		return nil, err
	}
	return &Image{Width: cropWidth, Height: cropHeight, Pixels: cropped}, nil
}

// Close releases the underlying file handle. Subsequent calls on img fail
// with KindNotOpen.
func (img *CR2Image) Close() error {
	if img.closed {
		return nil
	}
	img.closed = true
	return img.file.Close()
}

func (img *CR2Image) checkOpen() error {
	if img.closed {
		return newFormatErrorf(KindNotOpen, "CR2Image %q is closed", img.path)
	}
	return nil
}
