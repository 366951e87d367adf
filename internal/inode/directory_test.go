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

package inode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootInodeIsImmutable(t *testing.T) {
	d := New()

	path, ok := d.PathOf(RootInode)
	require.True(t, ok)
	assert.Equal(t, RootPath, path)

	ino, ok := d.InodeOf(RootPath)
	require.True(t, ok)
	assert.Equal(t, RootInode, ino)
}

func TestInternAllocatesMonotonicallyFromTwo(t *testing.T) {
	d := New()

	a := d.Intern("a.txt")
	b := d.Intern("b.txt")
	aAgain := d.Intern("a.txt")

	assert.Equal(t, uint64(2), a)
	assert.Equal(t, uint64(3), b)
	assert.Equal(t, a, aAgain)
}

func TestForgetRemovesBidirectionalMapping(t *testing.T) {
	d := New()
	ino := d.Intern("a.txt")

	forgotten, ok := d.Forget("a.txt")
	require.True(t, ok)
	assert.Equal(t, ino, forgotten)

	_, ok = d.PathOf(ino)
	assert.False(t, ok)
	_, ok = d.InodeOf("a.txt")
	assert.False(t, ok)
}

func TestForgetUnknownPathReturnsFalse(t *testing.T) {
	d := New()
	_, ok := d.Forget("missing")
	assert.False(t, ok)
}

func TestRenamePreservesInode(t *testing.T) {
	d := New()
	ino := d.Intern("old.txt")

	moved, ok := d.Rename("old.txt", "new.txt")
	require.True(t, ok)
	assert.Equal(t, ino, moved)

	_, ok = d.PathOf(ino)
	require.True(t, ok)
	path, _ := d.PathOf(ino)
	assert.Equal(t, "new.txt", path)

	_, ok = d.InodeOf("old.txt")
	assert.False(t, ok)

	newIno, ok := d.InodeOf("new.txt")
	require.True(t, ok)
	assert.Equal(t, ino, newIno)
}

func TestLinkBindsBothPathsToSameInode(t *testing.T) {
	d := New()
	ino := d.Intern("a.txt")

	linkedIno, ok := d.Link("a.txt", "b.txt")
	require.True(t, ok)
	assert.Equal(t, ino, linkedIno)

	bIno, ok := d.InodeOf("b.txt")
	require.True(t, ok)
	assert.Equal(t, ino, bIno)
}

func TestLinkUnknownSourceReturnsFalse(t *testing.T) {
	d := New()
	_, ok := d.Link("missing", "b.txt")
	assert.False(t, ok)
}
