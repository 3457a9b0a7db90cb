// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package cr2decode

import (
	"bytes"
	"testing"
)

// FuzzOpenContainer mirrors the teacher's FuzzDecodeCR2 shape
// (imagemeta_fuzz_test.go): seed with synthetic CR2 bytes this package
// already builds for its own tests, then require that arbitrary mutated
// input never makes openContainer panic.
func FuzzOpenContainer(f *testing.F) {
	f.Add(buildMinimalCR2())
	f.Add(buildFullCR2(allZeroDeltaLosslessStream()))

	f.Fuzz(func(t *testing.T, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("openContainer panicked on %d bytes: %v", len(data), r)
			}
		}()
		_, _ = openContainer(bytes.NewReader(data), nil)
	})
}

// FuzzDecodeLosslessJPEG seeds the entropy decoder with the synthetic
// streams this package already builds, requiring no panic on arbitrary
// mutated input.
func FuzzDecodeLosslessJPEG(f *testing.F) {
	f.Add(minimalLosslessStream())
	f.Add(allZeroDeltaLosslessStream())

	f.Fuzz(func(t *testing.T, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("decodeLosslessJPEG panicked on %d bytes: %v", len(data), r)
			}
		}()
		_, _, _ = decodeLosslessJPEG(data)
	})
}
