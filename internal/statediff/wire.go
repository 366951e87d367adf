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

package statediff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// Encode serialises actions and fidTable into fuselog's fixed,
// little-endian, tag-prefixed binary encoding. There is no canonical
// third-party Go port of the original's bincode framing that preserves the
// exact enum-discriminant-then-LE-fields contract, so the codec is
// hand-written over encoding/binary; see DESIGN.md.
//
// Layout:
//
//	u64 fidCount
//	fidCount * (u64 fid, u64 pathLen, pathLen bytes)
//	u64 actionCount
//	actionCount * (u8 tag, tag-specific fields)
func Encode(actions []Action, fidTable map[uint64]string) []byte {
	var buf bytes.Buffer

	fids := make([]uint64, 0, len(fidTable))
	for fid := range fidTable {
		fids = append(fids, fid)
	}
	sort.Slice(fids, func(i, j int) bool { return fids[i] < fids[j] })

	writeU64(&buf, uint64(len(fids)))
	for _, fid := range fids {
		writeU64(&buf, fid)
		writeString(&buf, fidTable[fid])
	}

	writeU64(&buf, uint64(len(actions)))
	for _, a := range actions {
		encodeAction(&buf, a)
	}

	return buf.Bytes()
}

func encodeAction(buf *bytes.Buffer, a Action) {
	buf.WriteByte(byte(a.Kind()))
	switch v := a.(type) {
	case Create:
		writeU64(buf, v.FID)
		writeU32(buf, v.Uid)
		writeU32(buf, v.Gid)
		writeU32(buf, v.Mode)
	case Write:
		writeU64(buf, v.FID)
		writeU64(buf, v.Offset)
		writeBytes(buf, v.Data)
	case Unlink:
		writeU64(buf, v.FID)
	case Truncate:
		writeU64(buf, v.FID)
		writeU64(buf, v.Size)
	case Rename:
		writeU64(buf, v.FromFID)
		writeU64(buf, v.ToFID)
	case Link:
		writeU64(buf, v.SourceFID)
		writeU64(buf, v.NewLinkFID)
	case Chown:
		writeU64(buf, v.FID)
		writeU32(buf, v.Uid)
		writeU32(buf, v.Gid)
	case Chmod:
		writeU64(buf, v.FID)
		writeU32(buf, v.Mode)
	case Mkdir:
		writeU64(buf, v.FID)
	case Rmdir:
		writeU64(buf, v.FID)
	case Symlink:
		writeU64(buf, v.LinkFID)
		writeString(buf, v.Target)
		writeU32(buf, v.Uid)
		writeU32(buf, v.Gid)
	default:
		panic(fmt.Sprintf("statediff: unknown action type %T", a))
	}
}

// Decode is the inverse of Encode. It returns an error rather than
// panicking on a truncated or malformed buffer, per §7's "log corruption on
// decode aborts with a diagnostic" policy — the abort itself is the
// caller's responsibility (the applier), not this function's.
func Decode(data []byte) (actions []Action, fidTable map[uint64]string, err error) {
	r := &reader{buf: data}

	fidCount, err := r.u64()
	if err != nil {
		return nil, nil, fmt.Errorf("statediff: decode fid count: %w", err)
	}

	fidTable = make(map[uint64]string, fidCount)
	for i := uint64(0); i < fidCount; i++ {
		fid, err := r.u64()
		if err != nil {
			return nil, nil, fmt.Errorf("statediff: decode fid: %w", err)
		}
		path, err := r.string()
		if err != nil {
			return nil, nil, fmt.Errorf("statediff: decode path for fid %d: %w", fid, err)
		}
		fidTable[fid] = path
	}

	actionCount, err := r.u64()
	if err != nil {
		return nil, nil, fmt.Errorf("statediff: decode action count: %w", err)
	}

	actions = make([]Action, 0, actionCount)
	for i := uint64(0); i < actionCount; i++ {
		a, err := decodeAction(r)
		if err != nil {
			return nil, nil, fmt.Errorf("statediff: decode action %d: %w", i, err)
		}
		actions = append(actions, a)
	}

	return actions, fidTable, nil
}

func decodeAction(r *reader) (Action, error) {
	tag, err := r.u8()
	if err != nil {
		return nil, err
	}

	switch ActionKind(tag) {
	case ActionCreate:
		fid, err := r.u64()
		if err != nil {
			return nil, err
		}
		uid, err := r.u32()
		if err != nil {
			return nil, err
		}
		gid, err := r.u32()
		if err != nil {
			return nil, err
		}
		mode, err := r.u32()
		if err != nil {
			return nil, err
		}
		return Create{FID: fid, Uid: uid, Gid: gid, Mode: mode}, nil

	case ActionWrite:
		fid, err := r.u64()
		if err != nil {
			return nil, err
		}
		offset, err := r.u64()
		if err != nil {
			return nil, err
		}
		data, err := r.bytes()
		if err != nil {
			return nil, err
		}
		return Write{FID: fid, Offset: offset, Data: data}, nil

	case ActionUnlink:
		fid, err := r.u64()
		if err != nil {
			return nil, err
		}
		return Unlink{FID: fid}, nil

	case ActionTruncate:
		fid, err := r.u64()
		if err != nil {
			return nil, err
		}
		size, err := r.u64()
		if err != nil {
			return nil, err
		}
		return Truncate{FID: fid, Size: size}, nil

	case ActionRename:
		fromFID, err := r.u64()
		if err != nil {
			return nil, err
		}
		toFID, err := r.u64()
		if err != nil {
			return nil, err
		}
		return Rename{FromFID: fromFID, ToFID: toFID}, nil

	case ActionLink:
		sourceFID, err := r.u64()
		if err != nil {
			return nil, err
		}
		newLinkFID, err := r.u64()
		if err != nil {
			return nil, err
		}
		return Link{SourceFID: sourceFID, NewLinkFID: newLinkFID}, nil

	case ActionChown:
		fid, err := r.u64()
		if err != nil {
			return nil, err
		}
		uid, err := r.u32()
		if err != nil {
			return nil, err
		}
		gid, err := r.u32()
		if err != nil {
			return nil, err
		}
		return Chown{FID: fid, Uid: uid, Gid: gid}, nil

	case ActionChmod:
		fid, err := r.u64()
		if err != nil {
			return nil, err
		}
		mode, err := r.u32()
		if err != nil {
			return nil, err
		}
		return Chmod{FID: fid, Mode: mode}, nil

	case ActionMkdir:
		fid, err := r.u64()
		if err != nil {
			return nil, err
		}
		return Mkdir{FID: fid}, nil

	case ActionRmdir:
		fid, err := r.u64()
		if err != nil {
			return nil, err
		}
		return Rmdir{FID: fid}, nil

	case ActionSymlink:
		linkFID, err := r.u64()
		if err != nil {
			return nil, err
		}
		target, err := r.string()
		if err != nil {
			return nil, err
		}
		uid, err := r.u32()
		if err != nil {
			return nil, err
		}
		gid, err := r.u32()
		if err != nil {
			return nil, err
		}
		return Symlink{LinkFID: linkFID, Target: target, Uid: uid, Gid: gid}, nil

	default:
		return nil, fmt.Errorf("statediff: unknown action tag %d", tag)
	}
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeBytes(buf *bytes.Buffer, v []byte) {
	writeU64(buf, uint64(len(v)))
	buf.Write(v)
}

func writeString(buf *bytes.Buffer, v string) {
	writeBytes(buf, []byte(v))
}

// reader reads the primitives Encode writes, from a flat byte slice.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) need(n int) error {
	if len(r.buf)-r.pos < n {
		return fmt.Errorf("statediff: truncated buffer: need %d bytes, have %d", n, len(r.buf)-r.pos)
	}
	return nil
}

func (r *reader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.u64()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return v, nil
}

func (r *reader) string() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
