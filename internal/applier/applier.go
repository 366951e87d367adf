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

// Package applier replays a fuselog state-diff against a target directory,
// reconstructing the tree the mutation interceptor observed at the moment
// its log was drained.
package applier

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fuselogfs/fuselog/internal/dictionary"
	"github.com/fuselogfs/fuselog/internal/logger"
	"github.com/fuselogfs/fuselog/internal/statediff"
	"github.com/fuselogfs/fuselog/internal/telemetry"
)

// DefaultDictionaryPath is the side-channel file a "d"-framed payload's
// dictionary is persisted to, and later "z"-framed payloads are decoded
// against; it has the same value as cfg.DefaultDictionaryPath.
const DefaultDictionaryPath = "/tmp/statediff.dict"

// Result reports the outcome of a successful Apply.
type Result struct {
	// Applied is the number of actions successfully applied.
	Applied int

	// Warnings holds non-fatal "not found" conditions encountered while
	// applying idempotent actions (Unlink, Rmdir, Chown, Chmod).
	Warnings []string
}

// ReadFramed reads one framed "get" payload from r: an 8-byte LE length
// prefix followed by the mode-byte-tagged payload itself, per §4.7. This
// repo treats the length-prefixed form as canonical — transport.Server
// always writes it — and only falls back to the legacy unprefixed form
// (reading whatever arrived before EOF, verbatim) when fewer than 8 bytes
// show up at all, since a live connection that never closes makes a true
// read-to-EOF fallback for a longer legacy frame impossible to
// distinguish from a stalled peer. See SPEC_FULL.md's O1 resolution.
func ReadFramed(r io.Reader) ([]byte, error) {
	var prefix [8]byte
	n, err := io.ReadFull(r, prefix[:])
	if err != nil {
		if n > 0 && errors.Is(err, io.ErrUnexpectedEOF) {
			return prefix[:n], nil
		}
		return nil, fmt.Errorf("applier: reading frame header: %w", err)
	}

	length := binary.LittleEndian.Uint64(prefix[:])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("applier: reading %d-byte frame: %w", length, err)
	}
	return payload, nil
}

// Decode unwraps a framed payload's mode byte(s), decompressing with
// dictPath's cached dictionary when the frame itself doesn't carry one
// ("z"), or persisting a freshly attached dictionary to dictPath before
// using it ("d"). It returns the decoded log.
func Decode(framed []byte, dictPath string) (actions []statediff.Action, fidTable map[uint64]string, err error) {
	if len(framed) == 0 {
		return nil, nil, fmt.Errorf("applier: empty payload")
	}

	raw, err := unwrap(framed, dictPath)
	if err != nil {
		return nil, nil, err
	}

	actions, fidTable, err = statediff.Decode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("applier: log corrupt: %w", err)
	}
	return actions, fidTable, nil
}

func unwrap(framed []byte, dictPath string) ([]byte, error) {
	mode := framed[0]
	body := framed[1:]

	switch mode {
	case 'n':
		return body, nil

	case 'z':
		dict, _ := os.ReadFile(dictPath)
		out, err := dictionary.Decompress(body, dict)
		if err != nil {
			return nil, fmt.Errorf("applier: decompressing payload: %w", err)
		}
		return out, nil

	case 'd':
		if len(body) < 4 {
			return nil, fmt.Errorf("applier: truncated dictionary length")
		}
		dictLen := binary.LittleEndian.Uint32(body[:4])
		body = body[4:]
		if uint64(len(body)) < uint64(dictLen) {
			return nil, fmt.Errorf("applier: truncated dictionary payload")
		}
		dict := body[:dictLen]
		rest := body[dictLen:]

		if err := os.WriteFile(dictPath, dict, 0644); err != nil {
			return nil, fmt.Errorf("applier: persisting dictionary: %w", err)
		}

		if len(rest) == 0 || rest[0] != 'z' {
			return nil, fmt.Errorf("applier: expected nested 'z' frame after dictionary")
		}
		out, err := dictionary.Decompress(rest[1:], dict)
		if err != nil {
			return nil, fmt.Errorf("applier: decompressing dictionary-framed payload: %w", err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("applier: unknown frame mode %q", mode)
	}
}

// Apply replays actions against targetRoot, creating it if missing, and
// reports how many actions were applied. Decode errors and missing FIDs
// abort immediately with no partial state beyond whatever was already
// applied; not-found conditions on Unlink/Rmdir/Chown/Chmod are warnings,
// per §7.
func Apply(targetRoot string, actions []statediff.Action, fidTable map[uint64]string) (Result, error) {
	if err := os.MkdirAll(targetRoot, 0755); err != nil {
		return Result{}, fmt.Errorf("applier: creating target root: %w", err)
	}

	var res Result
	for i, a := range actions {
		warningsBefore := len(res.Warnings)
		if err := applyOne(targetRoot, a, fidTable, &res); err != nil {
			telemetry.AppliedActionsTotal.WithLabelValues("aborted").Inc()
			return res, fmt.Errorf("applier: action %d (%s): %w", i, a.Kind(), err)
		}
		res.Applied++
		if len(res.Warnings) > warningsBefore {
			telemetry.AppliedActionsTotal.WithLabelValues("warning").Inc()
		} else {
			telemetry.AppliedActionsTotal.WithLabelValues("applied").Inc()
		}
	}
	return res, nil
}

func resolve(targetRoot string, fidTable map[uint64]string, fid uint64) (string, error) {
	relPath, ok := fidTable[fid]
	if !ok {
		return "", fmt.Errorf("unknown file ID %d", fid)
	}
	if relPath == "." {
		return targetRoot, nil
	}
	return filepath.Join(targetRoot, relPath), nil
}

func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}

func warnNotFound(res *Result, op, path string, err error) bool {
	if os.IsNotExist(err) {
		msg := fmt.Sprintf("%s: %s not found, skipping", op, path)
		logger.Warnf("applier: %s", msg)
		res.Warnings = append(res.Warnings, msg)
		return true
	}
	return false
}

func applyOne(targetRoot string, a statediff.Action, fidTable map[uint64]string, res *Result) error {
	switch v := a.(type) {
	case statediff.Create:
		path, err := resolve(targetRoot, fidTable, v.FID)
		if err != nil {
			return err
		}
		if err := ensureParent(path); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, os.FileMode(v.Mode)&os.ModePerm)
		if err != nil {
			return err
		}
		f.Close()
		if err := os.Chown(path, int(v.Uid), int(v.Gid)); err != nil && !warnNotFound(res, "create-chown", path, err) {
			return err
		}
		return nil

	case statediff.Write:
		path, err := resolve(targetRoot, fidTable, v.FID)
		if err != nil {
			return err
		}
		if err := ensureParent(path); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.WriteAt(v.Data, int64(v.Offset))
		return err

	case statediff.Truncate:
		path, err := resolve(targetRoot, fidTable, v.FID)
		if err != nil {
			return err
		}
		if err := ensureParent(path); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		defer f.Close()
		return f.Truncate(int64(v.Size))

	case statediff.Unlink:
		path, err := resolve(targetRoot, fidTable, v.FID)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !warnNotFound(res, "unlink", path, err) {
			return err
		}
		return nil

	case statediff.Rmdir:
		path, err := resolve(targetRoot, fidTable, v.FID)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !warnNotFound(res, "rmdir", path, err) {
			return err
		}
		return nil

	case statediff.Rename:
		fromPath, err := resolve(targetRoot, fidTable, v.FromFID)
		if err != nil {
			return err
		}
		toPath, err := resolve(targetRoot, fidTable, v.ToFID)
		if err != nil {
			return err
		}
		if err := ensureParent(toPath); err != nil {
			return err
		}
		return os.Rename(fromPath, toPath)

	case statediff.Link:
		sourcePath, err := resolve(targetRoot, fidTable, v.SourceFID)
		if err != nil {
			return err
		}
		newPath, err := resolve(targetRoot, fidTable, v.NewLinkFID)
		if err != nil {
			return err
		}
		if err := ensureParent(newPath); err != nil {
			return err
		}
		return os.Link(sourcePath, newPath)

	case statediff.Chown:
		path, err := resolve(targetRoot, fidTable, v.FID)
		if err != nil {
			return err
		}
		if err := os.Chown(path, int(v.Uid), int(v.Gid)); err != nil && !warnNotFound(res, "chown", path, err) {
			return err
		}
		return nil

	case statediff.Chmod:
		path, err := resolve(targetRoot, fidTable, v.FID)
		if err != nil {
			return err
		}
		if err := os.Chmod(path, os.FileMode(v.Mode)&os.ModePerm); err != nil && !warnNotFound(res, "chmod", path, err) {
			return err
		}
		return nil

	case statediff.Mkdir:
		path, err := resolve(targetRoot, fidTable, v.FID)
		if err != nil {
			return err
		}
		return os.MkdirAll(path, 0755)

	case statediff.Symlink:
		path, err := resolve(targetRoot, fidTable, v.LinkFID)
		if err != nil {
			return err
		}
		if err := ensureParent(path); err != nil {
			return err
		}
		if err := os.Symlink(v.Target, path); err != nil {
			return err
		}
		return os.Lchown(path, int(v.Uid), int(v.Gid))

	default:
		return fmt.Errorf("unknown action type %T", a)
	}
}
