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

package interceptor

import (
	"context"
	"os"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/fuselogfs/fuselog/internal/inode"
	"github.com/fuselogfs/fuselog/internal/statediff"
)

// MkDir creates the directory, chowns it to the mount's owner, and rolls
// the directory back on chown failure so the backing filesystem never ends
// up with a directory the log doesn't know about.
func (fs *FS) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	relPath, ok := fs.relChild(op.Parent, op.Name)
	if !ok {
		return fuse.ENOENT
	}
	absPath := fs.absPath(relPath)

	if err := os.Mkdir(absPath, op.Mode&os.ModePerm); err != nil {
		return toErrno(err)
	}

	if err := os.Chown(absPath, int(fs.uid), int(fs.gid)); err != nil {
		os.Remove(absPath)
		return toErrno(err)
	}

	childIno := fs.dirs.Intern(relPath)

	var attrErr error
	fs.log.Do(func(tx *statediff.Tx) {
		fid := tx.FIDOf(relPath)
		tx.Append(
			statediff.Mkdir{FID: fid},
			statediff.Chown{FID: fid, Uid: fs.uid, Gid: fs.gid},
		)
	})

	info, err := os.Lstat(absPath)
	if err != nil {
		attrErr = err
	}

	op.Entry.Child = fuseops.InodeID(childIno)
	if attrErr == nil {
		op.Entry.Attributes = attrsFromStat(info)
	}
	return nil
}

// RmDir removes the directory and forgets its inode mapping.
func (fs *FS) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	relPath, ok := fs.relChild(op.Parent, op.Name)
	if !ok {
		return fuse.ENOENT
	}
	absPath := fs.absPath(relPath)

	if err := os.Remove(absPath); err != nil {
		return toErrno(err)
	}

	fs.dirs.Forget(relPath)
	fs.log.Do(func(tx *statediff.Tx) {
		fid := tx.FIDOf(relPath)
		tx.Append(statediff.Rmdir{FID: fid})
	})
	return nil
}

// OpenDir succeeds for any known inode with the opaque handle 0 (ENOENT
// otherwise); fuselog keeps
// no server-side directory handle table, per §4.4's "open" contract.
func (fs *FS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	if _, ok := fs.dirs.PathOf(uint64(op.Inode)); !ok {
		return fuse.ENOENT
	}
	return nil
}

// ReadDir re-lists the backing directory on every call (no cached dirent
// stream), synthesizes "." and ".." as the first two entries, and honours
// Offset by skipping that many of the assembled entries.
func (fs *FS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	relPath, ok := fs.dirs.PathOf(uint64(op.Inode))
	if !ok {
		return fuse.ENOENT
	}

	entries, err := os.ReadDir(fs.absPath(relPath))
	if err != nil {
		return toErrno(err)
	}

	parentIno := fs.parentInode(relPath)

	dirents := make([]fuseutil.Dirent, 0, len(entries)+2)
	dirents = append(dirents,
		fuseutil.Dirent{Offset: 1, Inode: op.Inode, Name: ".", Type: fuseutil.DT_Directory},
		fuseutil.Dirent{Offset: 2, Inode: fuseops.InodeID(parentIno), Name: "..", Type: fuseutil.DT_Directory},
	)

	for _, e := range entries {
		childRel := e.Name()
		if relPath != inode.RootPath {
			childRel = relPath + "/" + e.Name()
		}
		childIno := fs.dirs.Intern(childRel)

		childType := fuseutil.DT_File
		switch {
		case e.IsDir():
			childType = fuseutil.DT_Directory
		case e.Type()&os.ModeSymlink != 0:
			childType = fuseutil.DT_Link
		}

		dirents = append(dirents, fuseutil.Dirent{
			Offset: fuseops.DirOffset(len(dirents) + 1),
			Inode:  fuseops.InodeID(childIno),
			Name:   e.Name(),
			Type:   childType,
		})
	}

	if int(op.Offset) > len(dirents) {
		return nil
	}
	dirents = dirents[op.Offset:]

	for _, d := range dirents {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], d)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *FS) parentInode(relPath string) uint64 {
	if relPath == inode.RootPath {
		return inode.RootInode
	}
	parent := parentOf(relPath)
	if ino, ok := fs.dirs.InodeOf(parent); ok {
		return ino
	}
	return fs.dirs.Intern(parent)
}

func parentOf(relPath string) string {
	for i := len(relPath) - 1; i >= 0; i-- {
		if relPath[i] == '/' {
			return relPath[:i]
		}
	}
	return inode.RootPath
}

// ReleaseDirHandle is a no-op; there is no per-handle state to release.
func (fs *FS) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	return nil
}
