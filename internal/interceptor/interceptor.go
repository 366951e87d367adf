// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package interceptor implements fuselog's mutation interceptor: a
// github.com/jacobsa/fuse file system that serves every request directly
// against a real backing directory and, only after the backing syscall
// succeeds, appends the corresponding statediff.Action to the shared
// mutation log.
package interceptor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/fuselogfs/fuselog/internal/inode"
	"github.com/fuselogfs/fuselog/internal/logger"
	"github.com/fuselogfs/fuselog/internal/perms"
	"github.com/fuselogfs/fuselog/internal/statediff"
	"github.com/fuselogfs/fuselog/internal/telemetry"
)

// FS serves kernel requests against the backing directory fuselog is
// mounted on top of, logging every successful mutation to log. It embeds
// fuseutil.NotImplementedFileSystem so that any op the spec does not name
// (xattrs, mknod, ioctl, ...) replies ENOSYS instead of panicking on a
// missing method.
//
// fuselog mounts itself at the very path it reads from: cmd/fuselog chdirs
// into the backing directory before calling fuse.Mount on that same path,
// so the process's working directory keeps referencing the pre-mount
// dentry even after the FUSE mount covers it. FS relies on this: every
// backing-store path it touches is resolved relative to that retained
// working directory, never joined onto an absolute prefix — an absolute
// path would re-enter fuselog's own mount and deadlock.
type FS struct {
	fuseutil.NotImplementedFileSystem

	dirs *inode.Directory
	log  *statediff.Log

	// uid/gid are the credentials assigned to newly created files and
	// directories. github.com/jacobsa/fuse's op structs for Create/Mkdir
	// (pinned version) carry no per-request credential field — unlike the
	// RequestHeader{Uid,Gid} this library exposes on its older Request/
	// Response API — so "the requester's uid/gid" from spec §4.4 resolves to
	// the uid/gid of the process that mounted the filesystem, consistent
	// with the default_permissions mount option the kernel already enforces
	// for everything else.
	uid uint32
	gid uint32
}

// New returns an FS serving backingDir, logging mutations to log. The
// caller is responsible for chdir'ing into backingDir before mounting; New
// only checks that the directory exists.
func New(backingDir string, log *statediff.Log) (*FS, error) {
	uid, gid, err := perms.MyUserAndGroup()
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(backingDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("backing directory %q: %w", backingDir, err)
	}

	return &FS{
		dirs: inode.New(),
		log:  log,
		uid:  uid,
		gid:  gid,
	}, nil
}

// Init is a no-op; the backing directory is validated by New/main before
// mounting.
func (fs *FS) Init(ctx context.Context, op *fuseops.InitOp) error {
	return nil
}

// StatFS reports nothing interesting; fuselog does not virtualize capacity.
func (fs *FS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	return nil
}

// absPath is the identity function: relPath is already the argument every
// os.* call below needs, since it is resolved relative to the process's
// working directory rather than joined onto an absolute root. Kept as a
// named step so the resolution strategy documented on FS stays in one
// place.
func (fs *FS) absPath(relPath string) string {
	return relPath
}

func (fs *FS) relChild(parent fuseops.InodeID, name string) (string, bool) {
	parentPath, ok := fs.dirs.PathOf(uint64(parent))
	if !ok {
		return "", false
	}
	if parentPath == inode.RootPath {
		return name, true
	}
	return filepath.Join(parentPath, name), true
}

func attrsFromStat(info os.FileInfo) fuseops.InodeAttributes {
	attrs := fuseops.InodeAttributes{
		Size:  uint64(info.Size()),
		Nlink: 1,
		Mode:  info.Mode(),
		Mtime: info.ModTime(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		attrs.Nlink = uint64(stat.Nlink)
		attrs.Uid = stat.Uid
		attrs.Gid = stat.Gid
		attrs.Atime = time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
		attrs.Ctime = time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
	}
	return attrs
}

// toErrno maps a backing-filesystem error to the native errno the kernel
// expects back, per §4.4's "failures surface native error codes to the
// kernel". github.com/jacobsa/fuse has no general os.PathError-to-errno
// converter in this version, so the mapping is done by hand against the
// handful of conditions the interceptor's operations can actually hit.
func toErrno(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		telemetry.OpErrorsTotal.WithLabelValues("ENOENT").Inc()
		return fuse.ENOENT
	case os.IsExist(err):
		telemetry.OpErrorsTotal.WithLabelValues("EEXIST").Inc()
		return fuse.EEXIST
	case errors.Is(err, syscall.ENOTEMPTY):
		telemetry.OpErrorsTotal.WithLabelValues("ENOTEMPTY").Inc()
		return fuse.ENOTEMPTY
	default:
		logger.Warnf("interceptor: %v", err)
		telemetry.OpErrorsTotal.WithLabelValues("EIO").Inc()
		return fuse.EIO
	}
}

// LookUpInode stats the joined path and interns it if found.
func (fs *FS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	relPath, ok := fs.relChild(op.Parent, op.Name)
	if !ok {
		return fuse.ENOENT
	}

	info, err := os.Lstat(fs.absPath(relPath))
	if err != nil {
		return toErrno(err)
	}

	childIno := fs.dirs.Intern(relPath)
	op.Entry.Child = fuseops.InodeID(childIno)
	op.Entry.Attributes = attrsFromStat(info)
	return nil
}

// GetInodeAttributes stats the inode's path.
func (fs *FS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	relPath, ok := fs.dirs.PathOf(uint64(op.Inode))
	if !ok {
		return fuse.ENOENT
	}

	info, err := os.Lstat(fs.absPath(relPath))
	if err != nil {
		return toErrno(err)
	}

	op.Attributes = attrsFromStat(info)
	return nil
}

// SetInodeAttributes applies truncate, then chmod, then chown, in that
// order, logging each field that was actually present on the request. Chown
// runs when the op carries a Uid, a Gid, or both; a missing one keeps the
// file's current owner or group.
func (fs *FS) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	relPath, ok := fs.dirs.PathOf(uint64(op.Inode))
	if !ok {
		return fuse.ENOENT
	}
	absPath := fs.absPath(relPath)

	if op.Size != nil {
		if err := os.Truncate(absPath, int64(*op.Size)); err != nil {
			return toErrno(err)
		}
		fs.logTruncate(relPath, *op.Size)
	}

	if op.Mode != nil {
		if err := os.Chmod(absPath, *op.Mode); err != nil {
			return toErrno(err)
		}
		fs.logChmod(relPath, uint32(*op.Mode&os.ModePerm))
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return toErrno(err)
	}
	current := attrsFromStat(info)

	if op.Uid != nil || op.Gid != nil {
		uid := current.Uid
		gid := current.Gid
		if op.Uid != nil {
			uid = *op.Uid
		}
		if op.Gid != nil {
			gid = *op.Gid
		}
		if err := os.Chown(absPath, int(uid), int(gid)); err != nil {
			return toErrno(err)
		}
		fs.logChown(relPath, uid, gid)

		info, err = os.Lstat(absPath)
		if err != nil {
			return toErrno(err)
		}
		current = attrsFromStat(info)
	}

	op.Attributes = current
	return nil
}

func (fs *FS) logTruncate(relPath string, size uint64) {
	fs.log.Do(func(tx *statediff.Tx) {
		fid := tx.FIDOf(relPath)
		tx.Append(statediff.Truncate{FID: fid, Size: size})
	})
}

func (fs *FS) logChmod(relPath string, mode uint32) {
	fs.log.Do(func(tx *statediff.Tx) {
		fid := tx.FIDOf(relPath)
		tx.Append(statediff.Chmod{FID: fid, Mode: mode})
	})
}

func (fs *FS) logChown(relPath string, uid, gid uint32) {
	fs.log.Do(func(tx *statediff.Tx) {
		fid := tx.FIDOf(relPath)
		tx.Append(statediff.Chown{FID: fid, Uid: uid, Gid: gid})
	})
}

// ForgetInode does nothing: the inode directory's path mappings are removed
// only by Unlink and RmDir, and moved by Rename.
func (fs *FS) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	return nil
}
