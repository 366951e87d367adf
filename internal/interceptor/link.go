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

	"github.com/fuselogfs/fuselog/internal/statediff"
)

// Rename moves the backing file, moves the inode mapping so the kernel
// keeps seeing the same inode at the new path, and logs Rename{from,to}
// with both FIDs obtained via interning.
func (fs *FS) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	oldRel, ok := fs.relChild(op.OldParent, op.OldName)
	if !ok {
		return fuse.ENOENT
	}
	newRel, ok := fs.relChild(op.NewParent, op.NewName)
	if !ok {
		return fuse.ENOENT
	}

	if err := os.Rename(fs.absPath(oldRel), fs.absPath(newRel)); err != nil {
		return toErrno(err)
	}

	fs.dirs.Rename(oldRel, newRel)
	fs.log.Do(func(tx *statediff.Tx) {
		fromFID := tx.FIDOf(oldRel)
		toFID := tx.FIDOf(newRel)
		tx.Append(statediff.Rename{FromFID: fromFID, ToFID: toFID})
	})
	return nil
}

// CreateLink hard-links newRel to the same backing inode as the existing
// path, binds both paths to the same kernel inode, and logs
// Link{source,new}.
func (fs *FS) CreateLink(ctx context.Context, op *fuseops.CreateLinkOp) error {
	existingRel, ok := fs.dirs.PathOf(uint64(op.Target))
	if !ok {
		return fuse.ENOENT
	}
	newRel, ok := fs.relChild(op.Parent, op.Name)
	if !ok {
		return fuse.ENOENT
	}

	if err := os.Link(fs.absPath(existingRel), fs.absPath(newRel)); err != nil {
		return toErrno(err)
	}

	fs.dirs.Link(existingRel, newRel)
	fs.log.Do(func(tx *statediff.Tx) {
		sourceFID := tx.FIDOf(existingRel)
		newFID := tx.FIDOf(newRel)
		tx.Append(statediff.Link{SourceFID: sourceFID, NewLinkFID: newFID})
	})

	info, err := os.Lstat(fs.absPath(newRel))
	if err != nil {
		return toErrno(err)
	}
	op.Entry.Child = op.Target
	op.Entry.Attributes = attrsFromStat(info)
	return nil
}

// CreateSymlink creates the symlink, lchowns the link itself (not its
// target), and logs Symlink{link,target,uid,gid}.
func (fs *FS) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error {
	relPath, ok := fs.relChild(op.Parent, op.Name)
	if !ok {
		return fuse.ENOENT
	}
	absPath := fs.absPath(relPath)

	if err := os.Symlink(op.Target, absPath); err != nil {
		return toErrno(err)
	}

	if err := os.Lchown(absPath, int(fs.uid), int(fs.gid)); err != nil {
		os.Remove(absPath)
		return toErrno(err)
	}

	childIno := fs.dirs.Intern(relPath)
	fs.log.Do(func(tx *statediff.Tx) {
		fid := tx.FIDOf(relPath)
		tx.Append(statediff.Symlink{LinkFID: fid, Target: op.Target, Uid: fs.uid, Gid: fs.gid})
	})

	info, err := os.Lstat(absPath)
	if err != nil {
		return toErrno(err)
	}
	op.Entry.Child = fuseops.InodeID(childIno)
	op.Entry.Attributes = attrsFromStat(info)
	return nil
}

// ReadSymlink reads the link target. No log entry: reads are not
// mutations.
func (fs *FS) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	relPath, ok := fs.dirs.PathOf(uint64(op.Inode))
	if !ok {
		return fuse.ENOENT
	}

	target, err := os.Readlink(fs.absPath(relPath))
	if err != nil {
		return toErrno(err)
	}
	op.Target = target
	return nil
}
