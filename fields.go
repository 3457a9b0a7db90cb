// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package cr2decode

// TIFF/EXIF/MakerNote tag IDs this decoder reads. Only the subset the
// container parser actually touches is kept here; the teacher's equivalent
// tables (fieldsexif.go, metadecoder_exif_fields.go) cover the full EXIF
// namespace because a general metadata decoder needs it, this one doesn't.
const (
	tagImageWidth     = 0x0100
	tagImageLength    = 0x0101
	tagStripOffset    = 0x0111
	tagStripByteCount = 0x0117
	tagDateTime       = 0x0132
	tagExifIFDPointer = 0x8769
	tagDateTimeOrig   = 0x9003
	tagDateTimeDigi   = 0x9004
	tagMakerNote      = 37500
	tagCR2Slice       = 50752
	tagSensorInfo     = 0x00e0
	tagCameraSettings = 0x0001
	tagFocusInfo      = 0x0002
	tagImageType      = 0x0006
	tagColorBalance   = 0x4001
	tagBlackLevel     = 0x4008
	tagVignettingCorr = 0x4015
)

// fieldNamesIFD0, fieldNamesEXIF and fieldNamesMakerNote are human-readable
// names for Container.String()'s per-IFD debug dump; not exhaustive, matching the
// teacher's own "best-effort name, fall back to the numeric tag" convention.
var fieldNamesIFD0 = map[uint16]string{
	tagImageWidth:     "ImageWidth",
	tagImageLength:    "ImageLength",
	tagDateTime:       "DateTime",
	tagExifIFDPointer: "ExifIFD",
}

var fieldNamesEXIF = map[uint16]string{
	tagDateTimeOrig: "DateTimeOriginal",
	tagDateTimeDigi: "DateTimeDigitized",
	tagMakerNote:    "MakerNote",
}

var fieldNamesIFD3 = map[uint16]string{
	tagStripOffset:    "StripOffset",
	tagStripByteCount: "StripByteCount",
	tagCR2Slice:       "CR2Slice",
}

var fieldNamesMakerNote = map[uint16]string{
	tagCameraSettings: "CameraSettings",
	tagFocusInfo:      "FocusInfo",
	tagImageType:      "ImageType",
	tagSensorInfo:     "SensorInfo",
	tagColorBalance:   "ColorBalance",
	tagBlackLevel:     "BlackLevel",
	tagVignettingCorr: "VignettingCorrection",
}

func fieldName(table map[uint16]string, tag uint16) string {
	if name, ok := table[tag]; ok {
		return name
	}
	return ""
}
