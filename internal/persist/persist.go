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

// Package persist implements the optional durability adjunct: a sqlite
// file that a caller can use to save and load a full temporal.Index across
// process restarts. The core façades never call into this package
// themselves; it exists for a higher layer (cmd/paninifs) to opt into.
package persist

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stephanedenis/panini-fs/internal/paninierr"
	"github.com/stephanedenis/panini-fs/internal/temporal"
)

const schema = `
CREATE TABLE IF NOT EXISTS concepts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	head TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	metadata TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS versions (
	version_id TEXT PRIMARY KEY,
	concept_id TEXT NOT NULL REFERENCES concepts(id),
	parent TEXT NOT NULL,
	atoms TEXT NOT NULL,
	size INTEGER NOT NULL,
	content_hash TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	author TEXT NOT NULL,
	message TEXT NOT NULL,
	attrs TEXT NOT NULL,
	seq INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	bindings TEXT NOT NULL,
	parent TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS timeline_events (
	seq INTEGER PRIMARY KEY,
	kind INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	concept_id TEXT NOT NULL,
	version_id TEXT NOT NULL,
	previous_version_id TEXT NOT NULL,
	snapshot_id TEXT NOT NULL
);
`

// Store wraps a sqlite-backed durability file for a temporal.Index.
type Store struct {
	db *sql.DB
}

// Open creates (if necessary) and opens the sqlite file at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &paninierr.IoError{Op: "open persist db", Cause: err}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &paninierr.IoError{Op: "create persist schema", Cause: err}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the store's contents with a full dump of idx, inside a
// single transaction so a reader never observes a half-written state.
func (s *Store) Save(idx *temporal.Index) error {
	concepts, snapshots, events := idx.Dump()

	tx, err := s.db.Begin()
	if err != nil {
		return &paninierr.IoError{Op: "begin tx", Cause: err}
	}
	defer tx.Rollback()

	for _, table := range []string{"timeline_events", "versions", "snapshots", "concepts"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return &paninierr.IoError{Op: "clear " + table, Cause: err}
		}
	}

	for _, c := range concepts {
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return &paninierr.IoError{Op: "marshal concept metadata", Cause: err}
		}
		if _, err := tx.Exec(
			`INSERT INTO concepts (id, name, head, created_at, updated_at, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Head, c.CreatedAt.Format(time.RFC3339Nano), c.UpdatedAt.Format(time.RFC3339Nano), metadata,
		); err != nil {
			return &paninierr.IoError{Op: "insert concept", Cause: err}
		}
		for seq, v := range c.History() {
			if err := saveVersion(tx, c.ID, seq, v); err != nil {
				return err
			}
		}
	}

	for _, snap := range snapshots {
		bindings, err := json.Marshal(snap.Bindings)
		if err != nil {
			return &paninierr.IoError{Op: "marshal snapshot bindings", Cause: err}
		}
		if _, err := tx.Exec(
			`INSERT INTO snapshots (id, name, timestamp, bindings, parent) VALUES (?, ?, ?, ?, ?)`,
			snap.ID, snap.Name, snap.Timestamp.Format(time.RFC3339Nano), bindings, snap.Parent,
		); err != nil {
			return &paninierr.IoError{Op: "insert snapshot", Cause: err}
		}
	}

	for seq, ev := range events {
		if _, err := tx.Exec(
			`INSERT INTO timeline_events (seq, kind, timestamp, concept_id, version_id, previous_version_id, snapshot_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			seq, int(ev.Kind), ev.Timestamp.Format(time.RFC3339Nano), ev.ConceptID, ev.VersionID, ev.PreviousVerID, ev.SnapshotID,
		); err != nil {
			return &paninierr.IoError{Op: "insert timeline event", Cause: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &paninierr.IoError{Op: "commit tx", Cause: err}
	}
	return nil
}

func saveVersion(tx *sql.Tx, conceptID string, seq int, v *temporal.Version) error {
	atoms, err := json.Marshal(v.Atoms)
	if err != nil {
		return &paninierr.IoError{Op: "marshal version atoms", Cause: err}
	}
	attrs, err := json.Marshal(v.Attrs)
	if err != nil {
		return &paninierr.IoError{Op: "marshal version attrs", Cause: err}
	}
	if _, err := tx.Exec(
		`INSERT INTO versions (version_id, concept_id, parent, atoms, size, content_hash, timestamp, author, message, attrs, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VersionID, conceptID, v.Parent, atoms, v.Size, v.ContentHash, v.Timestamp.Format(time.RFC3339Nano), v.Author, v.Message, attrs, seq,
	); err != nil {
		return &paninierr.IoError{Op: "insert version", Cause: err}
	}
	return nil
}

// Load rebuilds a fresh temporal.Index from the store's current contents.
func (s *Store) Load() (*temporal.Index, error) {
	idx := temporal.NewIndex()

	conceptRows, err := s.db.Query(`SELECT id, name, head, created_at, updated_at, metadata FROM concepts`)
	if err != nil {
		return nil, &paninierr.IoError{Op: "query concepts", Cause: err}
	}
	defer conceptRows.Close()

	type conceptRow struct {
		id, name, head, createdAt, updatedAt string
		metadata                             []byte
	}
	var rows []conceptRow
	for conceptRows.Next() {
		var r conceptRow
		if err := conceptRows.Scan(&r.id, &r.name, &r.head, &r.createdAt, &r.updatedAt, &r.metadata); err != nil {
			return nil, &paninierr.IoError{Op: "scan concept", Cause: err}
		}
		rows = append(rows, r)
	}

	var concepts []*temporal.Concept
	for _, r := range rows {
		versions, err := s.loadVersions(r.id)
		if err != nil {
			return nil, err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, r.createdAt)
		if err != nil {
			return nil, &paninierr.IoError{Op: "parse concept created_at", Cause: err}
		}
		updatedAt, err := time.Parse(time.RFC3339Nano, r.updatedAt)
		if err != nil {
			return nil, &paninierr.IoError{Op: "parse concept updated_at", Cause: err}
		}
		var metadata map[string]string
		if err := json.Unmarshal(r.metadata, &metadata); err != nil {
			return nil, &paninierr.IoError{Op: "unmarshal concept metadata", Cause: err}
		}
		concepts = append(concepts, temporal.RehydrateConcept(r.id, r.name, r.head, createdAt, updatedAt, metadata, versions))
	}

	snapshots, err := s.loadSnapshots()
	if err != nil {
		return nil, err
	}
	events, err := s.loadEvents()
	if err != nil {
		return nil, err
	}

	idx.Restore(concepts, snapshots, events)
	return idx, nil
}

func (s *Store) loadVersions(conceptID string) ([]*temporal.Version, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent, atoms, size, content_hash, timestamp, author, message, attrs
		 FROM versions WHERE concept_id = ? ORDER BY seq ASC`, conceptID)
	if err != nil {
		return nil, &paninierr.IoError{Op: "query versions", Cause: err}
	}
	defer rows.Close()

	var out []*temporal.Version
	for rows.Next() {
		var v temporal.Version
		var atomsJSON, attrsJSON, ts string
		if err := rows.Scan(&v.VersionID, &v.Parent, &atomsJSON, &v.Size, &v.ContentHash, &ts, &v.Author, &v.Message, &attrsJSON); err != nil {
			return nil, &paninierr.IoError{Op: "scan version", Cause: err}
		}
		if err := json.Unmarshal([]byte(atomsJSON), &v.Atoms); err != nil {
			return nil, &paninierr.IoError{Op: "unmarshal version atoms", Cause: err}
		}
		if err := json.Unmarshal([]byte(attrsJSON), &v.Attrs); err != nil {
			return nil, &paninierr.IoError{Op: "unmarshal version attrs", Cause: err}
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, &paninierr.IoError{Op: "parse version timestamp", Cause: err}
		}
		v.Timestamp = parsed
		out = append(out, &v)
	}
	return out, nil
}

func (s *Store) loadSnapshots() ([]*temporal.Snapshot, error) {
	rows, err := s.db.Query(`SELECT id, name, timestamp, bindings, parent FROM snapshots`)
	if err != nil {
		return nil, &paninierr.IoError{Op: "query snapshots", Cause: err}
	}
	defer rows.Close()

	var out []*temporal.Snapshot
	for rows.Next() {
		var snap temporal.Snapshot
		var bindingsJSON, ts string
		if err := rows.Scan(&snap.ID, &snap.Name, &ts, &bindingsJSON, &snap.Parent); err != nil {
			return nil, &paninierr.IoError{Op: "scan snapshot", Cause: err}
		}
		if err := json.Unmarshal([]byte(bindingsJSON), &snap.Bindings); err != nil {
			return nil, &paninierr.IoError{Op: "unmarshal snapshot bindings", Cause: err}
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, &paninierr.IoError{Op: "parse snapshot timestamp", Cause: err}
		}
		snap.Timestamp = parsed
		out = append(out, &snap)
	}
	return out, nil
}

func (s *Store) loadEvents() ([]temporal.TimelineEvent, error) {
	rows, err := s.db.Query(
		`SELECT kind, timestamp, concept_id, version_id, previous_version_id, snapshot_id
		 FROM timeline_events ORDER BY seq ASC`)
	if err != nil {
		return nil, &paninierr.IoError{Op: "query timeline events", Cause: err}
	}
	defer rows.Close()

	var out []temporal.TimelineEvent
	for rows.Next() {
		var ev temporal.TimelineEvent
		var kind int
		var ts string
		if err := rows.Scan(&kind, &ts, &ev.ConceptID, &ev.VersionID, &ev.PreviousVerID, &ev.SnapshotID); err != nil {
			return nil, &paninierr.IoError{Op: "scan timeline event", Cause: err}
		}
		ev.Kind = temporal.EventKind(kind)
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, &paninierr.IoError{Op: "parse timeline event timestamp", Cause: err}
		}
		ev.Timestamp = parsed
		out = append(out, ev)
	}
	return out, nil
}
