// Copyright 2024 The Panini-FS Authors
// This file is part of Panini-FS.
//
// Panini-FS is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Panini-FS is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Panini-FS. If not, see <http://www.gnu.org/licenses/>.

// Package decompose implements the format-aware decomposer (C4): it turns
// a byte stream into an ordered list of atoms such that concatenating the
// atom payloads reproduces the input byte-for-byte. That round-trip
// property is the decomposer's sole correctness criterion; format
// awareness exists only to improve deduplication on reinsertion.
package decompose

import (
	"encoding/binary"
	"fmt"

	"github.com/stephanedenis/panini-fs/internal/atom"
)

// Format is the detected or requested container format.
type Format int

const (
	Auto Format = iota
	PNG
	JPEG
	MP4
	RawFormat
)

var (
	pngSignature  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegSOIPrefix = []byte{0xFF, 0xD8, 0xFF}
)

// Detect inspects magic bytes and returns the format to decompose with,
// matching §4.4 exactly.
func Detect(data []byte) Format {
	if len(data) >= 8 {
		match := true
		for i, b := range pngSignature {
			if data[i] != b {
				match = false
				break
			}
		}
		if match {
			return PNG
		}
	}
	if len(data) >= 3 && data[0] == jpegSOIPrefix[0] && data[1] == jpegSOIPrefix[1] && data[2] == jpegSOIPrefix[2] {
		return JPEG
	}
	if len(data) >= 8 && string(data[4:8]) == "ftyp" {
		return MP4
	}
	return RawFormat
}

// DefaultChunkSize is the fixed Raw chunk size (§4.4), overridable via
// config.
const DefaultChunkSize = 64 * 1024

// Decomposer turns bytes into atoms for one chunk size / format pairing.
type Decomposer struct {
	ChunkSize int
}

// New returns a Decomposer using the given chunk size for Raw/fallback
// decomposition. A non-positive size falls back to DefaultChunkSize.
func New(chunkSize int) *Decomposer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Decomposer{ChunkSize: chunkSize}
}

// Decompose dispatches on hint (or on Detect(data) when hint is Auto).
// Never fails for Raw input: format-specific parse errors downgrade to Raw
// decomposition rather than erroring, per §7 ("ingestion of arbitrary
// bytes is always possible").
func (d *Decomposer) Decompose(data []byte, hint Format) []*atom.Atom {
	format := hint
	if format == Auto {
		format = Detect(data)
	}
	switch format {
	case PNG:
		if atoms, ok := d.decomposePNG(data); ok {
			return atoms
		}
		return d.decomposeRaw(data)
	case JPEG:
		return d.decomposeJPEG(data)
	case MP4:
		return d.decomposeMP4(data)
	default:
		return d.decomposeRaw(data)
	}
}

// decomposeRaw chunks data into fixed-size Raw atoms. Empty input yields
// zero atoms; the first chunk is advisorily tagged Container.
func (d *Decomposer) decomposeRaw(data []byte) []*atom.Atom {
	if len(data) == 0 {
		return nil
	}
	var atoms []*atom.Atom
	offset := 0
	for offset < len(data) {
		end := offset + d.ChunkSize
		if end > len(data) {
			end = len(data)
		}
		kind := atom.Raw
		if offset == 0 {
			kind = atom.Container
		}
		a := atom.FromBytes(data[offset:end], kind)
		a.SourceOffset = uint64(offset)
		atoms = append(atoms, a)
		offset = end
	}
	return atoms
}

// decomposePNG walks the chunk stream (length+type+data+crc) and emits one
// atom per chunk, stopping after IEND. Returns ok=false if any chunk runs
// past the end of data or bytes follow IEND, signalling the caller to fall
// back to Raw decomposition.
func (d *Decomposer) decomposePNG(data []byte) ([]*atom.Atom, bool) {
	if len(data) < 8 {
		return nil, false
	}
	var atoms []*atom.Atom

	sig := atom.FromBytes(data[0:8], atom.Container)
	sig.WithAttr("chunk_type", "signature")
	sig.SourceOffset = 0
	atoms = append(atoms, sig)

	offset := 8
	for offset < len(data) {
		if offset+8 > len(data) {
			return nil, false
		}
		chunkStart := offset
		length := binary.BigEndian.Uint32(data[offset : offset+4])
		chunkType := string(data[offset+4 : offset+8])
		dataStart := offset + 8
		dataEnd := dataStart + int(length)
		crcEnd := dataEnd + 4
		if crcEnd > len(data) {
			return nil, false
		}

		kind := chunkTypeToKind(chunkType)
		full := data[chunkStart:crcEnd]
		a := atom.FromBytes(full, kind)
		a.WithAttr("chunk_type", chunkType)
		a.WithAttr("chunk_length", fmt.Sprintf("%d", length))
		a.WithAttr("crc", fmt.Sprintf("%08x", binary.BigEndian.Uint32(data[dataEnd:crcEnd])))
		a.SourceOffset = uint64(chunkStart)
		atoms = append(atoms, a)

		offset = crcEnd
		if chunkType == "IEND" {
			break
		}
	}
	if offset < len(data) {
		return nil, false
	}
	return atoms, true
}

func chunkTypeToKind(chunkType string) atom.Kind {
	switch chunkType {
	case "IHDR", "PLTE", "tRNS":
		return atom.Metadata
	case "IDAT":
		return atom.ImageData
	case "IEND":
		return atom.Container
	default:
		return atom.Raw
	}
}

// decomposeJPEG is a conformant but simplified split: the SOI marker as one
// Container atom, the remainder as one ImageData atom. A full
// marker-by-marker parse is not required by the round-trip property.
func (d *Decomposer) decomposeJPEG(data []byte) []*atom.Atom {
	if len(data) < 2 {
		return d.decomposeRaw(data)
	}
	var atoms []*atom.Atom
	if len(data) >= 2 {
		soi := atom.FromBytes(data[0:2], atom.Container)
		soi.WithAttr("marker", "SOI")
		atoms = append(atoms, soi)
	}
	if len(data) > 2 {
		body := atom.FromBytes(data[2:], atom.ImageData)
		body.WithAttr("format", "jpeg_scan_data")
		body.SourceOffset = 2
		atoms = append(atoms, body)
	}
	return atoms
}

// decomposeMP4 is a conformant but simplified split: the entire payload as
// a single Container atom. A full box-by-box parse is not required by the
// round-trip property.
func (d *Decomposer) decomposeMP4(data []byte) []*atom.Atom {
	a := atom.FromBytes(data, atom.Container)
	a.WithAttr("format", "mp4")
	return []*atom.Atom{a}
}
