// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package cr2decode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"os/exec"
	"strconv"
	"strings"
)

// parsePGM decodes a P2 (plain text) or P5 (binary, big-endian samples) PGM
// image, per §4.8: header "P[25] width height maxval", "# ..." comments
// skipped between header tokens, exactly width*height samples follow.
func parsePGM(data []byte) ([]uint16, int, int, error) {
	r := bufio.NewReader(bytes.NewReader(data))

	magic, err := nextPGMToken(r)
	if err != nil {
		return nil, 0, 0, err
	}
	if magic != "P2" && magic != "P5" {
		return nil, 0, 0, newFormatErrorf(KindUnsupportedPgm, "unrecognized PGM magic %q", magic)
	}

	width, err := nextPGMInt(r)
	if err != nil {
		return nil, 0, 0, err
	}
	height, err := nextPGMInt(r)
	if err != nil {
		return nil, 0, 0, err
	}
	maxVal, err := nextPGMInt(r)
	if err != nil {
		return nil, 0, 0, err
	}
	if width <= 0 || height <= 0 || maxVal <= 0 {
		return nil, 0, 0, newFormatErrorf(KindInvalidPgm, "invalid PGM dimensions %dx%d maxval=%d", width, height, maxVal)
	}

	samples := make([]uint16, width*height)

	if magic == "P2" {
		for i := range samples {
			tok, err := nextPGMToken(r)
			if err != nil {
				return nil, 0, 0, newFormatErrorf(KindInvalidPgm, "truncated P2 sample data: %v", err)
			}
			v, err := strconv.Atoi(tok)
			if err != nil {
				return nil, 0, 0, newFormatErrorf(KindInvalidPgm, "non-numeric P2 sample %q", tok)
			}
			samples[i] = uint16(v)
		}
		return samples, width, height, nil
	}

	bytesPerSample := 1
	if maxVal > 255 {
		bytesPerSample = 2
	}
	raw := make([]byte, width*height*bytesPerSample)
	if _, err := readAllFromReader(r, raw); err != nil {
		return nil, 0, 0, newFormatErrorf(KindInvalidPgm, "truncated P5 sample data: %v", err)
	}
	if bytesPerSample == 1 {
		for i, b := range raw {
			samples[i] = uint16(b)
		}
	} else {
		for i := range samples {
			samples[i] = binary.BigEndian.Uint16(raw[i*2 : i*2+2])
		}
	}
	return samples, width, height, nil
}

func readAllFromReader(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// nextPGMToken reads the next whitespace-delimited token, skipping "#"
// comments that run to end of line, as PGM headers allow between any two
// header fields.
func nextPGMToken(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	inComment := false
	for {
		b, err := r.ReadByte()
		if err != nil {
			if sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
		if inComment {
			if b == '\n' {
				inComment = false
			}
			continue
		}
		if b == '#' {
			inComment = true
			continue
		}
		isSpace := b == ' ' || b == '\t' || b == '\n' || b == '\r'
		if isSpace {
			if sb.Len() > 0 {
				return sb.String(), nil
			}
			continue
		}
		sb.WriteByte(b)
	}
}

func nextPGMInt(r *bufio.Reader) (int, error) {
	tok, err := nextPGMToken(r)
	if err != nil {
		return 0, newFormatErrorf(KindInvalidPgm, "truncated PGM header: %v", err)
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, newFormatErrorf(KindInvalidPgm, "non-numeric PGM header field %q", tok)
	}
	return v, nil
}

// ExternalDecoderConfig names an external raw-to-PGM decoder: an executable
// path and a command template with {exec}/{file} placeholders, per §4.8/§6.
type ExternalDecoderConfig struct {
	Exec    string
	Command string
}

// defaultExternalDecoderCommand is the platform default named in §6 when no
// config overrides it.
const defaultExternalDecoderCommand = "dcraw -t 0 -j -4 -W -D -d -c {file}"

func (c ExternalDecoderConfig) commandLine(inputFile string) string {
	cmd := c.Command
	if cmd == "" {
		cmd = defaultExternalDecoderCommand
	}
	cmd = strings.ReplaceAll(cmd, "{exec}", c.Exec)
	cmd = strings.ReplaceAll(cmd, "{file}", inputFile)
	return cmd
}

// decodeExternal invokes the configured subprocess on inputFile and parses
// its stdout as a PGM image holding the full sensor.
func decodeExternal(ctx context.Context, cfg ExternalDecoderConfig, inputFile string) ([]uint16, int, int, error) {
	line := cfg.commandLine(inputFile)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, 0, 0, newFormatErrorf(KindExternalDecoder, "empty external decoder command")
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, 0, 0, newFormatErrorf(KindExternalDecoder, "%s: %v: %s", line, err, stderr.String())
	}

	samples, width, height, err := parsePGM(stdout.Bytes())
	if err != nil {
		return nil, 0, 0, newFormatErrorf(KindExternalDecoder, "%s: %w", line, err)
	}
	return samples, width, height, nil
}
