// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package cr2decode

import (
	"errors"
	"fmt"
)

// Kind classifies a FormatError.
type Kind int

const (
	KindNotCR2 Kind = iota
	KindUnknownEndian
	KindInvalidMarker
	KindCorruptedData
	KindUnsupportedPgm
	KindInvalidPgm
	KindSmallRaw
	KindExternalDecoder
	KindNotImplemented
	KindNotOpen
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindNotCR2:
		return "not a CR2 file"
	case KindUnknownEndian:
		return "unknown byte order"
	case KindInvalidMarker:
		return "invalid marker"
	case KindCorruptedData:
		return "corrupted data"
	case KindUnsupportedPgm:
		return "unsupported PGM"
	case KindInvalidPgm:
		return "invalid PGM"
	case KindSmallRaw:
		return "raw image smaller than requested crop"
	case KindExternalDecoder:
		return "external decoder failure"
	case KindNotImplemented:
		return "not implemented"
	case KindNotOpen:
		return "not open"
	case KindIO:
		return "io error"
	default:
		return "unknown error"
	}
}

// FormatError wraps a decoding failure with an abstract Kind so callers can
// branch on failure category with errors.Is without string matching.
type FormatError struct {
	Kind Kind
	Err  error
}

func (e *FormatError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a FormatError of the same Kind, so that
// errors.Is(err, ErrNotCR2) etc. works without exposing *FormatError itself.
func (e *FormatError) Is(target error) bool {
	t, ok := target.(*FormatError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newFormatError(kind Kind, err error) error {
	return &FormatError{Kind: kind, Err: err}
}

func newFormatErrorf(kind Kind, format string, args ...any) error {
	return &FormatError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Sentinels for errors.Is comparisons, one per Kind.
var (
	ErrNotCR2          = &FormatError{Kind: KindNotCR2}
	ErrUnknownEndian   = &FormatError{Kind: KindUnknownEndian}
	ErrInvalidMarker   = &FormatError{Kind: KindInvalidMarker}
	ErrCorruptedData   = &FormatError{Kind: KindCorruptedData}
	ErrUnsupportedPgm  = &FormatError{Kind: KindUnsupportedPgm}
	ErrInvalidPgm      = &FormatError{Kind: KindInvalidPgm}
	ErrSmallRaw        = &FormatError{Kind: KindSmallRaw}
	ErrExternalDecoder = &FormatError{Kind: KindExternalDecoder}
	ErrNotImplemented  = &FormatError{Kind: KindNotImplemented}
	ErrNotOpen         = &FormatError{Kind: KindNotOpen}
	ErrIO              = &FormatError{Kind: KindIO}
)

// IsKind reports whether err is a FormatError of the given Kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &FormatError{Kind: kind})
}

// errStop is the panic value streamReader.stop raises to unwind a parse.
var errStop = errors.New("stop")

// Warnf is a non-fatal diagnostic sink. A nil Warnf is a no-op; it is never
// called with a nil format.
type Warnf func(format string, args ...any)

func (w Warnf) warn(format string, args ...any) {
	if w == nil {
		return
	}
	w(format, args...)
}
