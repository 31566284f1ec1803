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

// Package mount implements the read-only POSIX projection (C7): a FUSE
// filesystem exposing the temporal index and content-addressed store at
// /concepts, /snapshots and /time. Every inode is synthesized on demand from
// the live temporal.Index rather than built once at mount time, since the
// index keeps mutating underneath the mount for as long as it's attached.
package mount

import (
	"context"
	"fmt"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/stephanedenis/panini-fs/internal/atom"
	"github.com/stephanedenis/panini-fs/internal/paninierr"
	"github.com/stephanedenis/panini-fs/internal/reconstruct"
	"github.com/stephanedenis/panini-fs/internal/temporal"
)

// Reserved inode numbers, fixed across the lifetime of a mount.
const (
	InoRoot      = 1
	InoConcepts  = 2
	InoSnapshots = 3
	InoTime      = 4

	firstDynamicIno = 5
)

const (
	dirMode     = 0o755
	fileMode    = 0o444
	symlinkMode = 0o777
)

// MetaSource is the subset of cas.CAS the mount needs to resolve an atom's
// metadata without fetching its payload.
type MetaSource interface {
	Meta(digest string) (atom.Meta, error)
}

// FS bundles everything a mounted filesystem needs to resolve its tree: the
// temporal index for concepts/snapshots/timeline, and a cached reconstructor
// for the hot read path.
type FS struct {
	idx           *temporal.Index
	meta          MetaSource
	reconstructor *reconstruct.CachedReconstructor
	log           *zap.Logger
	sessionID     uuid.UUID

	uid, gid uint32

	nextIno uint64 // atomic
}

// New builds an FS ready to be handed to Mount.
func New(idx *temporal.Index, meta MetaSource, reconstructor *reconstruct.CachedReconstructor, log *zap.Logger) *FS {
	return &FS{
		idx:           idx,
		meta:          meta,
		reconstructor: reconstructor,
		log:           log,
		sessionID:     uuid.New(),
		uid:           uint32(unix.Getuid()),
		gid:           uint32(unix.Getgid()),
		nextIno:       firstDynamicIno,
	}
}

func (f *FS) allocIno() uint64 {
	return atomic.AddUint64(&f.nextIno, 1) - 1
}

// Mount attaches the filesystem at mountpoint and returns the running FUSE
// server. Callers own the server's lifetime (Wait/Unmount).
func (f *FS) Mount(mountpoint string) (*fuse.Server, error) {
	root := &rootNode{fsys: f}
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName:         "paninifs",
			Name:           "paninifs",
			SingleThreaded: false,
			Debug:          false,
		},
	}
	server, err := fs.Mount(mountpoint, root, opts)
	if err != nil {
		return nil, &paninierr.IoError{Op: "fuse_mount", Cause: err}
	}
	f.log.Info("mounted",
		zap.String("mountpoint", mountpoint),
		zap.String("session_id", f.sessionID.String()))
	return server, nil
}

func errnoOf(err error) syscall.Errno {
	return syscall.Errno(paninierr.ToErrno(err))
}

// roNode rejects every mutating operation with EROFS. Embedded (alongside
// fs.Inode) by every directory and file node in this package.
type roNode struct{}

func (roNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, syscall.EROFS
}

func (roNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, syscall.EROFS
}

func (roNode) Unlink(ctx context.Context, name string) syscall.Errno { return syscall.EROFS }
func (roNode) Rmdir(ctx context.Context, name string) syscall.Errno  { return syscall.EROFS }

func (roNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return syscall.EROFS
}

func (roNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EROFS
}

// bindingSet resolves a point-in-time concept_id -> version_id mapping,
// shared by the live /concepts view, a /snapshots/<id> view and a
// /time/<timestamp> view alike.
type bindingSet struct {
	resolve func() (map[string]string, error)
}

func liveBindings(idx *temporal.Index) bindingSet {
	return bindingSet{resolve: func() (map[string]string, error) {
		out := make(map[string]string)
		for _, c := range idx.ListConcepts() {
			out[c.ID] = c.Head
		}
		return out, nil
	}}
}

func snapshotBindings(idx *temporal.Index, snapshotID string) bindingSet {
	return bindingSet{resolve: func() (map[string]string, error) {
		s, err := idx.GetSnapshot(snapshotID)
		if err != nil {
			return nil, err
		}
		return s.Bindings, nil
	}}
}

func timeBindings(idx *temporal.Index, at time.Time) bindingSet {
	return bindingSet{resolve: func() (map[string]string, error) {
		return idx.StateAt(at), nil
	}}
}

// rootNode is inode 1. Its three children are fixed for the life of the
// mount, so they're wired once in OnAdd rather than resolved per lookup.
type rootNode struct {
	fs.Inode
	roNode
	fsys *FS
}

var _ fs.NodeOnAdder = (*rootNode)(nil)
var _ fs.NodeGetattrer = (*rootNode)(nil)

func (r *rootNode) OnAdd(ctx context.Context) {
	concepts := &conceptSetNode{fsys: r.fsys, idx: r.fsys.idx, bindings: liveBindings(r.fsys.idx)}
	r.AddChild("concepts", r.NewInode(ctx, concepts, fs.StableAttr{Mode: fuse.S_IFDIR, Ino: InoConcepts}), false)

	snapshots := &snapshotsTopNode{fsys: r.fsys}
	r.AddChild("snapshots", r.NewInode(ctx, snapshots, fs.StableAttr{Mode: fuse.S_IFDIR, Ino: InoSnapshots}), false)

	timeDir := &timeTopNode{fsys: r.fsys}
	r.AddChild("time", r.NewInode(ctx, timeDir, fs.StableAttr{Mode: fuse.S_IFDIR, Ino: InoTime}), false)
}

func (r *rootNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Ino = InoRoot
	out.Mode = dirMode | fuse.S_IFDIR
	out.Uid, out.Gid = r.fsys.uid, r.fsys.gid
	return 0
}

// snapshotsTopNode is inode 3: one subdirectory per existing snapshot id.
type snapshotsTopNode struct {
	fs.Inode
	roNode
	fsys *FS
}

var _ fs.NodeLookuper = (*snapshotsTopNode)(nil)
var _ fs.NodeReaddirer = (*snapshotsTopNode)(nil)
var _ fs.NodeGetattrer = (*snapshotsTopNode)(nil)

func (n *snapshotsTopNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = dirMode | fuse.S_IFDIR
	out.Uid, out.Gid = n.fsys.uid, n.fsys.gid
	return 0
}

func (n *snapshotsTopNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	snaps := n.fsys.idx.ListSnapshots()
	entries := make([]fuse.DirEntry, 0, len(snaps))
	for _, s := range snaps {
		entries = append(entries, fuse.DirEntry{Name: s.ID, Mode: dirMode | fuse.S_IFDIR})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *snapshotsTopNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if child := n.GetChild(name); child != nil {
		return child, 0
	}
	if _, err := n.fsys.idx.GetSnapshot(name); err != nil {
		return nil, errnoOf(err)
	}
	child := &conceptSetNode{fsys: n.fsys, idx: n.fsys.idx, bindings: snapshotBindings(n.fsys.idx, name)}
	out.Mode = dirMode | fuse.S_IFDIR
	ino := n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFDIR, Ino: n.fsys.allocIno()})
	return n.AddChild(name, ino, true), 0
}

// timeTopNode is inode 4: parametric on an RFC3339 timestamp, so it cannot
// be enumerated — only looked up by exact name.
type timeTopNode struct {
	fs.Inode
	roNode
	fsys *FS
}

var _ fs.NodeLookuper = (*timeTopNode)(nil)
var _ fs.NodeReaddirer = (*timeTopNode)(nil)
var _ fs.NodeGetattrer = (*timeTopNode)(nil)

func (n *timeTopNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = dirMode | fuse.S_IFDIR
	out.Uid, out.Gid = n.fsys.uid, n.fsys.gid
	return 0
}

func (n *timeTopNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	// The domain of valid names is every RFC3339 instant; nothing to list.
	return fs.NewListDirStream(nil), 0
}

func (n *timeTopNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if child := n.GetChild(name); child != nil {
		return child, 0
	}
	at, err := time.Parse(time.RFC3339, name)
	if err != nil {
		return nil, syscall.EINVAL
	}
	child := &conceptSetNode{fsys: n.fsys, idx: n.fsys.idx, bindings: timeBindings(n.fsys.idx, at)}
	out.Mode = dirMode | fuse.S_IFDIR
	ino := n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFDIR, Ino: n.fsys.allocIno()})
	return n.AddChild(name, ino, true), 0
}

// conceptSetNode is a directory whose children are concept names, bound to
// a particular point in time (live head, a snapshot, or a StateAt query).
type conceptSetNode struct {
	fs.Inode
	roNode
	fsys     *FS
	idx      *temporal.Index
	bindings bindingSet
}

var _ fs.NodeLookuper = (*conceptSetNode)(nil)
var _ fs.NodeReaddirer = (*conceptSetNode)(nil)
var _ fs.NodeGetattrer = (*conceptSetNode)(nil)

func (n *conceptSetNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = dirMode | fuse.S_IFDIR
	out.Uid, out.Gid = n.fsys.uid, n.fsys.gid
	return 0
}

func (n *conceptSetNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	bindings, err := n.bindings.resolve()
	if err != nil {
		return nil, errnoOf(err)
	}
	entries := make([]fuse.DirEntry, 0, len(bindings))
	for conceptID := range bindings {
		c, err := n.idx.GetConcept(conceptID)
		if err != nil {
			continue // raced with a concurrent mutation; skip rather than fail the whole listing
		}
		entries = append(entries, fuse.DirEntry{Name: c.Name, Mode: dirMode | fuse.S_IFDIR})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *conceptSetNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if child := n.GetChild(name); child != nil {
		return child, 0
	}
	bindings, err := n.bindings.resolve()
	if err != nil {
		return nil, errnoOf(err)
	}
	for conceptID, versionID := range bindings {
		c, err := n.idx.GetConcept(conceptID)
		if err != nil || c.Name != name {
			continue
		}
		v, ok := c.Versions[versionID]
		if !ok {
			return nil, syscall.ENOENT
		}
		child := &conceptNode{fsys: n.fsys, conceptID: conceptID, version: v}
		out.Mode = dirMode | fuse.S_IFDIR
		ino := n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFDIR, Ino: n.fsys.allocIno()})
		return n.AddChild(name, ino, true), 0
	}
	return nil, syscall.ENOENT
}

// conceptNode lists the atoms of one resolved concept version as files,
// plus a "version" symlink carrying the version id as its target.
type conceptNode struct {
	fs.Inode
	roNode
	fsys      *FS
	conceptID string
	version   *temporal.Version
}

var _ fs.NodeLookuper = (*conceptNode)(nil)
var _ fs.NodeReaddirer = (*conceptNode)(nil)
var _ fs.NodeGetattrer = (*conceptNode)(nil)

const versionLinkName = "version"

func (n *conceptNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = dirMode | fuse.S_IFDIR
	out.Uid, out.Gid = n.fsys.uid, n.fsys.gid
	return 0
}

func (n *conceptNode) fileName(digest string) (string, bool) {
	m, err := n.fsys.meta.Meta(digest)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s.%s", digest[:8], m.Kind.String()), true
}

func (n *conceptNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := make([]fuse.DirEntry, 0, len(n.version.Atoms)+1)
	entries = append(entries, fuse.DirEntry{Name: versionLinkName, Mode: symlinkMode | fuse.S_IFLNK})
	for _, digest := range n.version.Atoms {
		name, ok := n.fileName(digest)
		if !ok {
			continue
		}
		entries = append(entries, fuse.DirEntry{Name: name, Mode: fileMode | fuse.S_IFREG})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *conceptNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if child := n.GetChild(name); child != nil {
		return child, 0
	}
	if name == versionLinkName {
		child := &versionLinkNode{fsys: n.fsys, target: n.version.VersionID}
		out.Mode = symlinkMode | fuse.S_IFLNK
		ino := n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFLNK, Ino: n.fsys.allocIno()})
		return n.AddChild(name, ino, true), 0
	}
	for _, digest := range n.version.Atoms {
		fileName, ok := n.fileName(digest)
		if !ok || fileName != name {
			continue
		}
		m, err := n.fsys.meta.Meta(digest)
		if err != nil {
			return nil, errnoOf(err)
		}
		child := &atomFileNode{fsys: n.fsys, digest: digest, size: m.Size}
		out.Mode = fileMode | fuse.S_IFREG
		ino := n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFREG, Ino: n.fsys.allocIno()})
		return n.AddChild(name, ino, true), 0
	}
	return nil, syscall.ENOENT
}

// versionLinkNode is a symlink whose target is an opaque version id string,
// not a resolvable filesystem path — readers are expected to treat it as
// data, the same way `readlink` on a git-style ref would be interpreted by
// a caller that understands the convention.
type versionLinkNode struct {
	fs.Inode
	roNode
	fsys   *FS
	target string
}

var _ fs.NodeReadlinker = (*versionLinkNode)(nil)
var _ fs.NodeGetattrer = (*versionLinkNode)(nil)

func (n *versionLinkNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	return []byte(n.target), 0
}

func (n *versionLinkNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = symlinkMode | fuse.S_IFLNK
	out.Size = uint64(len(n.target))
	out.Uid, out.Gid = n.fsys.uid, n.fsys.gid
	return 0
}

// atomFileNode is a read-only file backed by one atom's reconstructed
// bytes, fetched (and cached) through the reconstructor on every Read.
type atomFileNode struct {
	fs.Inode
	roNode
	fsys   *FS
	digest string
	size   uint64
}

var _ fs.NodeOpener = (*atomFileNode)(nil)
var _ fs.NodeReader = (*atomFileNode)(nil)
var _ fs.NodeGetattrer = (*atomFileNode)(nil)

func (n *atomFileNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = fileMode | fuse.S_IFREG
	out.Size = n.size
	out.Uid, out.Gid = n.fsys.uid, n.fsys.gid
	return 0
}

func (n *atomFileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *atomFileNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := n.fsys.reconstructor.FetchCached(ctx, n.digest)
	if err != nil {
		n.fsys.log.Warn("mount: read failed", zap.String("digest", n.digest), zap.Error(err))
		return nil, syscall.EIO
	}
	if off < 0 || off > int64(len(data)) {
		off = int64(len(data))
	}
	end := off + int64(len(dest))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return fuse.ReadResultData(data[off:end]), 0
}
