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

// Package atom defines the unit of storage: a digest-identified byte
// payload tagged with an advisory kind, corresponding to C2 of the
// specification.
package atom

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Kind is a closed tagged variant; purely advisory and never participates
// in identity. A sum type is preferred over an interface here because the
// set is fixed and the spec treats it as data, not behavior.
type Kind int

const (
	Raw Kind = iota
	Container
	VideoStream
	AudioStream
	IFrame
	PFrame
	BFrame
	Subtitle
	ImageData
	Metadata
	AudioChunk
	Compressed
)

func (k Kind) String() string {
	switch k {
	case Container:
		return "container"
	case VideoStream:
		return "video_stream"
	case AudioStream:
		return "audio_stream"
	case IFrame:
		return "i_frame"
	case PFrame:
		return "p_frame"
	case BFrame:
		return "b_frame"
	case Subtitle:
		return "subtitle"
	case ImageData:
		return "image_data"
	case Metadata:
		return "metadata"
	case AudioChunk:
		return "audio_chunk"
	case Compressed:
		return "compressed"
	default:
		return "raw"
	}
}

// Digest computes the content identity of payload: SHA-256, lowercase hex,
// no separators. Every atom digest in the system is produced by this
// function so they remain comparable across components.
func Digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Atom is the unit of storage. digest == H(payload) always; kind and attrs
// never affect equality or storage key.
type Atom struct {
	Digest    string
	Kind      Kind
	Size      uint64
	Parent    string   // digest of the composing parent atom, if any
	Children  []string // digests of atoms this one composes, if any
	Attrs     map[string]string
	RefCount  uint64
	CreatedAt time.Time
	// SourceOffset is the byte offset in the original stream this atom
	// was decomposed from. Advisory; not part of identity.
	SourceOffset uint64
}

// FromBytes constructs a fresh atom with refcount 0. Callers that insert it
// into the CAS are responsible for bumping the refcount on success.
func FromBytes(payload []byte, kind Kind) *Atom {
	return &Atom{
		Digest:    Digest(payload),
		Kind:      kind,
		Size:      uint64(len(payload)),
		Attrs:     map[string]string{},
		CreatedAt: time.Now().UTC(),
	}
}

// WithAttr sets a single advisory attribute and returns the atom for
// chaining, mirroring the teacher's setter idiom.
func (a *Atom) WithAttr(key, value string) *Atom {
	if a.Attrs == nil {
		a.Attrs = map[string]string{}
	}
	a.Attrs[key] = value
	return a
}

// Meta is the in-memory-index projection of an atom: everything the CAS
// tracks without holding the payload bytes themselves.
type Meta struct {
	Digest    string
	Kind      Kind
	Size      uint64
	RefCount  uint64
	CreatedAt time.Time
	Attrs     map[string]string
}

// ToMeta drops the payload-adjacent fields an Atom carries (Parent,
// Children, SourceOffset) that the CAS index doesn't need to persist
// per-digest.
func (a *Atom) ToMeta() Meta {
	return Meta{
		Digest:    a.Digest,
		Kind:      a.Kind,
		Size:      a.Size,
		RefCount:  a.RefCount,
		CreatedAt: a.CreatedAt,
		Attrs:     a.Attrs,
	}
}
