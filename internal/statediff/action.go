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

// Package statediff holds the mutation log's data model: a closed set of
// tagged Action variants, a per-epoch file-identifier table, and the
// process-wide Log that the interceptor appends to and the transport server
// drains.
package statediff

// ActionKind identifies one of the eleven mutation variants. Its values are
// the wire discriminants: they MUST stay in this exact order, since the tag
// byte is part of the encoded form read by independently-built appliers.
type ActionKind uint8

const (
	ActionCreate ActionKind = iota
	ActionWrite
	ActionUnlink
	ActionTruncate
	ActionRename
	ActionLink
	ActionChown
	ActionChmod
	ActionMkdir
	ActionRmdir
	ActionSymlink
)

func (k ActionKind) String() string {
	switch k {
	case ActionCreate:
		return "Create"
	case ActionWrite:
		return "Write"
	case ActionUnlink:
		return "Unlink"
	case ActionTruncate:
		return "Truncate"
	case ActionRename:
		return "Rename"
	case ActionLink:
		return "Link"
	case ActionChown:
		return "Chown"
	case ActionChmod:
		return "Chmod"
	case ActionMkdir:
		return "Mkdir"
	case ActionRmdir:
		return "Rmdir"
	case ActionSymlink:
		return "Symlink"
	default:
		return "Unknown"
	}
}

// Action is one tagged record in the log. The concrete types below are the
// complete, closed set; dispatch is always by Kind, never by further
// sub-typing.
type Action interface {
	Kind() ActionKind
}

// Create records creation of a regular file with owner and permission bits.
type Create struct {
	FID  uint64
	Uid  uint32
	Gid  uint32
	Mode uint32
}

func (Create) Kind() ActionKind { return ActionCreate }

// Write records a byte slice written at an offset.
type Write struct {
	FID    uint64
	Offset uint64
	Data   []byte
}

func (Write) Kind() ActionKind { return ActionWrite }

// Unlink records removal of a regular file or directory entry.
type Unlink struct {
	FID uint64
}

func (Unlink) Kind() ActionKind { return ActionUnlink }

// Truncate records an explicit length change.
type Truncate struct {
	FID  uint64
	Size uint64
}

func (Truncate) Kind() ActionKind { return ActionTruncate }

// Rename records a path move. Both FIDs must already exist in the FID
// table: FromFID names the source path, ToFID the freshly interned
// destination path.
type Rename struct {
	FromFID uint64
	ToFID   uint64
}

func (Rename) Kind() ActionKind { return ActionRename }

// Link records hard link creation.
type Link struct {
	SourceFID  uint64
	NewLinkFID uint64
}

func (Link) Kind() ActionKind { return ActionLink }

// Chown records an ownership change. It follows lchown semantics: it
// operates on the link itself, not its target.
type Chown struct {
	FID uint64
	Uid uint32
	Gid uint32
}

func (Chown) Kind() ActionKind { return ActionChown }

// Chmod records a permission change.
type Chmod struct {
	FID  uint64
	Mode uint32
}

func (Chmod) Kind() ActionKind { return ActionChmod }

// Mkdir records directory creation.
type Mkdir struct {
	FID uint64
}

func (Mkdir) Kind() ActionKind { return ActionMkdir }

// Rmdir records directory removal.
type Rmdir struct {
	FID uint64
}

func (Rmdir) Kind() ActionKind { return ActionRmdir }

// Symlink records symbolic link creation with owner.
type Symlink struct {
	LinkFID uint64
	Target  string
	Uid     uint32
	Gid     uint32
}

func (Symlink) Kind() ActionKind { return ActionSymlink }
