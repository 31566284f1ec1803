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

// Package temporal implements the temporal index (C6): concepts, versions
// forming a DAG, snapshots, and point-in-time queries over an immutable,
// copy-on-write history.
package temporal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Version is one immutable revision of a concept.
type Version struct {
	VersionID   string
	Parent      string // empty only for the first version
	Atoms       []string
	Size        uint64
	ContentHash string
	Timestamp   time.Time
	Author      string
	Message     string
	Attrs       map[string]string
}

// contentHash hashes the concatenation of atom digest *strings*, not
// payload bytes. This is a deliberate, specified quirk: cheap to compute,
// valid as a fingerprint, kept as-is for compatibility rather than
// "fixed" to hash payload bytes.
func contentHash(atoms []string) string {
	h := sha256.New()
	for _, d := range atoms {
		h.Write([]byte(d))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// newVersion constructs a Version, deriving its id from the timestamp and
// content hash: "<unix-millis>_<first-16-hex-of-content-hash>".
func newVersion(parent string, atoms []string, size uint64, author, message string, ts time.Time) *Version {
	ch := contentHash(atoms)
	id := fmt.Sprintf("%d_%s", ts.UnixMilli(), ch[:16])
	return &Version{
		VersionID:   id,
		Parent:      parent,
		Atoms:       append([]string(nil), atoms...),
		Size:        size,
		ContentHash: ch,
		Timestamp:   ts,
		Author:      author,
		Message:     message,
		Attrs:       map[string]string{},
	}
}

// Concept is a named, versioned logical object.
type Concept struct {
	ID        string
	Name      string
	Head      string
	Versions  map[string]*Version
	order     []string // version ids in insertion order, for History()
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]string
}

// NewConcept builds a fresh concept from its initial atoms. id is derived
// from the initial version's content hash:
// "concept_" + its first 16 hex chars.
func NewConcept(name string, atoms []string, size uint64, author, message string, ts time.Time) *Concept {
	v := newVersion("", atoms, size, author, message, ts)
	id := "concept_" + v.ContentHash[:16]
	return &Concept{
		ID:        id,
		Name:      name,
		Head:      v.VersionID,
		Versions:  map[string]*Version{v.VersionID: v},
		order:     []string{v.VersionID},
		CreatedAt: ts,
		UpdatedAt: ts,
		Metadata:  map[string]string{},
	}
}

// History returns every version in chronological (insertion) order.
func (c *Concept) History() []*Version {
	out := make([]*Version, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.Versions[id])
	}
	return out
}

// Snapshot is a named, immutable point-in-time capture of every concept's
// head version.
type Snapshot struct {
	ID        string
	Name      string
	Timestamp time.Time
	Bindings  map[string]string // concept_id -> version_id
	Parent    string            // empty for a full snapshot
}

func generateSnapshotID(name string, ts time.Time) string {
	h := sha256.Sum256([]byte(ts.Format(time.RFC3339Nano) + name))
	return fmt.Sprintf("snap_%s_%s", ts.Format("20060102_150405"), hex.EncodeToString(h[:])[:8])
}

// EventKind tags the variant of a TimelineEvent.
type EventKind int

const (
	ConceptCreated EventKind = iota
	ConceptModified
	SnapshotCreated
)

// TimelineEvent is one entry in the ordered mutation log.
type TimelineEvent struct {
	Kind           EventKind
	Timestamp      time.Time
	ConceptID      string
	VersionID      string
	PreviousVerID  string // ConceptModified only
	SnapshotID     string // SnapshotCreated only
	insertionOrder uint64 // tie-breaker for same-timestamp events
}

// Diff is the result of comparing two versions of a concept.
type Diff struct {
	Added     []string
	Removed   []string
	SizeDelta int64
}
