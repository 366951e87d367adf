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

// Package inode holds the bidirectional mapping between kernel-visible
// inode numbers and relative paths within a mount, as used by the mutation
// interceptor.
package inode

import "sync"

// RootInode is the immutable inode number of the mount's backing root; it
// always maps to RootPath ("."), regardless of what the kernel ever asks
// to look up.
const RootInode uint64 = 1

// RootPath is the relative-path sentinel for the backing root.
const RootPath = "."

// Directory is a bidirectional inode<->relative-path table. Allocation is
// monotonic from 2 (inode 1 is reserved for the root) and never reuses a
// number within the directory's lifetime. A single mutex serialises all
// access, matching the spec's "concurrent access is serialised by a single
// lock" requirement.
type Directory struct {
	mu       sync.Mutex
	byInode  map[uint64]string
	byPath   map[string]uint64
	nextNode uint64
}

// New returns a Directory with only the immutable root mapping present.
func New() *Directory {
	d := &Directory{
		byInode:  map[uint64]string{RootInode: RootPath},
		byPath:   map[string]uint64{RootPath: RootInode},
		nextNode: 2,
	}
	return d
}

// PathOf looks up the relative path for inode, if any.
func (d *Directory) PathOf(ino uint64) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	path, ok := d.byInode[ino]
	return path, ok
}

// InodeOf looks up the inode bound to path, if any.
func (d *Directory) InodeOf(path string) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ino, ok := d.byPath[path]
	return ino, ok
}

// Intern returns the inode bound to path, allocating a fresh one on first
// reference.
func (d *Directory) Intern(path string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ino, ok := d.byPath[path]; ok {
		return ino
	}

	ino := d.nextNode
	d.nextNode++
	d.byPath[path] = ino
	d.byInode[ino] = path
	return ino
}

// Forget removes the bidirectional mapping for path, returning its inode
// if it was present. Used on unlink/rmdir.
func (d *Directory) Forget(path string) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ino, ok := d.byPath[path]
	if !ok {
		return 0, false
	}
	delete(d.byPath, path)
	delete(d.byInode, ino)
	return ino, true
}

// Rename atomically moves the mapping bound to oldPath so that it is bound
// to newPath instead, preserving the inode number: the kernel must
// continue to see the same inode after rename. It returns the preserved
// inode, or false if oldPath had no mapping.
func (d *Directory) Rename(oldPath, newPath string) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ino, ok := d.byPath[oldPath]
	if !ok {
		return 0, false
	}

	delete(d.byPath, oldPath)
	d.byPath[newPath] = ino
	d.byInode[ino] = newPath
	return ino, true
}

// Link binds newPath to the same inode as existingPath, for hard-link
// creation. It returns false if existingPath has no mapping.
//
// byInode keeps only one path per inode; a hard link rebinds it to
// newPath. Since both paths name the same backing-filesystem object,
// syscalls resolved through either one see identical content and
// attributes, so this does not affect correctness of getattr/read/write —
// only which of the two names a concurrent readdir of the parent would
// show as "the" path for that inode.
func (d *Directory) Link(existingPath, newPath string) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ino, ok := d.byPath[existingPath]
	if !ok {
		return 0, false
	}

	d.byPath[newPath] = ino
	d.byInode[ino] = newPath
	return ino, true
}
