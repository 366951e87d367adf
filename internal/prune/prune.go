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

// Package prune rewrites a mutation log to a semantically equivalent
// shorter sequence: collapsing repeated Chmod/Chown on the same FID to
// their latest value, and dropping every action for a FID whose entire
// lifetime (creation through removal) is contained in the log. It never
// touches the backing filesystem; it is a pure function of the log value.
package prune

import "github.com/fuselogfs/fuselog/internal/statediff"

// Prune returns a rewritten copy of actions and the FID table trimmed to
// only the FIDs the rewritten actions still reference. It is idempotent:
// pruning an already-pruned log returns it unchanged.
func Prune(actions []statediff.Action, fidTable map[uint64]string) ([]statediff.Action, map[uint64]string) {
	dropped := make([]bool, len(actions))
	lastChmod := make(map[uint64]int)
	lastChown := make(map[uint64]int)
	created := make(map[uint64]bool)
	purged := make(map[uint64]bool)

	for i, a := range actions {
		switch v := a.(type) {
		case statediff.Chmod:
			if prev, ok := lastChmod[v.FID]; ok {
				dropped[prev] = true
			}
			lastChmod[v.FID] = i

		case statediff.Chown:
			if prev, ok := lastChown[v.FID]; ok {
				dropped[prev] = true
			}
			lastChown[v.FID] = i

		case statediff.Create:
			created[v.FID] = true

		case statediff.Mkdir:
			created[v.FID] = true

		case statediff.Symlink:
			created[v.LinkFID] = true

		case statediff.Unlink:
			if created[v.FID] {
				purged[v.FID] = true
			}

		case statediff.Rmdir:
			if created[v.FID] {
				purged[v.FID] = true
			}
		}
	}

	result := make([]statediff.Action, 0, len(actions))
	for i, a := range actions {
		if dropped[i] || referencesAny(a, purged) {
			continue
		}
		result = append(result, a)
	}

	surviving := make(map[uint64]bool)
	for _, a := range result {
		for _, fid := range referencedFIDs(a) {
			surviving[fid] = true
		}
	}

	prunedTable := make(map[uint64]string, len(surviving))
	for fid := range surviving {
		if path, ok := fidTable[fid]; ok {
			prunedTable[fid] = path
		}
	}

	return result, prunedTable
}

func referencesAny(a statediff.Action, fids map[uint64]bool) bool {
	for _, fid := range referencedFIDs(a) {
		if fids[fid] {
			return true
		}
	}
	return false
}

func referencedFIDs(a statediff.Action) []uint64 {
	switch v := a.(type) {
	case statediff.Create:
		return []uint64{v.FID}
	case statediff.Write:
		return []uint64{v.FID}
	case statediff.Unlink:
		return []uint64{v.FID}
	case statediff.Truncate:
		return []uint64{v.FID}
	case statediff.Rename:
		return []uint64{v.FromFID, v.ToFID}
	case statediff.Link:
		return []uint64{v.SourceFID, v.NewLinkFID}
	case statediff.Chown:
		return []uint64{v.FID}
	case statediff.Chmod:
		return []uint64{v.FID}
	case statediff.Mkdir:
		return []uint64{v.FID}
	case statediff.Rmdir:
		return []uint64{v.FID}
	case statediff.Symlink:
		return []uint64{v.LinkFID}
	default:
		return nil
	}
}
