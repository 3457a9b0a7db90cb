// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package cr2decode

import (
	"encoding"
	"fmt"
	"strconv"
	"strings"
)

// Rat is a rational number, as used by rational-typed TIFF/EXIF tags.
type Rat[T int32 | uint32] interface {
	Num() T
	Den() T
	Float64() float64

	// String returns the string representation of the rational number.
	// If the denominator is 1, the string will be the numerator only.
	String() string
}

var (
	_ encoding.TextUnmarshaler = (*rat[int32])(nil)
	_ encoding.TextMarshaler   = rat[int32]{}
)

// rat is a rational number. It's a lightweight version of math/big.Rat.
// A zero denominator is a valid, representable state ("nan"): TIFF rationals
// may legitimately carry one, and the reader must not panic on it.
type rat[T int32 | uint32] struct {
	num T
	den T
	nan bool
}

func (r rat[T]) Num() T { return r.num }
func (r rat[T]) Den() T { return r.den }

func (r rat[T]) Float64() float64 {
	if r.nan {
		return 0
	}
	return float64(r.num) / float64(r.den)
}

func (r rat[T]) String() string {
	if r.nan {
		return "nan"
	}
	if r.den == 1 {
		return fmt.Sprintf("%d", r.num)
	}
	return fmt.Sprintf("%d/%d", r.num, r.den)
}

func (r rat[T]) Format(w fmt.State, v rune) {
	switch v {
	case 'f':
		fmt.Fprintf(w, "%f", r.Float64())
	default:
		fmt.Fprintf(w, "%s", r.String())
	}
}

func (r *rat[T]) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "nan" {
		r.nan = true
		return nil
	}
	if !strings.Contains(s, "/") {
		num, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("failed to parse %q as a rational number: %w", s, err)
		}
		r.num = T(num)
		r.den = 1
		return nil
	}
	if _, err := fmt.Sscanf(s, "%d/%d", &r.num, &r.den); err != nil {
		return fmt.Errorf("failed to parse %q as a rational number: %w", s, err)
	}
	return nil
}

func (r rat[T]) MarshalText() (text []byte, err error) {
	return []byte(r.String()), nil
}

// NewRat returns a new Rat. A zero denominator is not an error here: it maps
// to the "nan" sentinel per the TIFF rational decoding rule (numerator 0 maps
// to the integer 0 elsewhere, before NewRat is ever called).
func NewRat[T int32 | uint32](num, den T) Rat[T] {
	if den == 0 {
		return &rat[T]{nan: true}
	}

	gcd := func(a, b T) T {
		for b != 0 {
			a, b = b, a%b
		}
		return a
	}
	d := gcd(num, den)
	if d != 1 && d != 0 {
		num, den = num/d, den/d
	}

	if den < 0 {
		num, den = -num, -den
	}

	return &rat[T]{num: num, den: den}
}

// trimBytesNulls removes leading and trailing NUL bytes.
func trimBytesNulls(b []byte) []byte {
	var lo, hi int
	for lo = 0; lo < len(b) && b[lo] == 0; lo++ {
	}
	for hi = len(b) - 1; hi >= 0 && b[hi] == 0; hi-- {
	}
	if lo > hi {
		return nil
	}
	return b[lo : hi+1]
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c > 127 {
			return false
		}
	}
	return true
}
