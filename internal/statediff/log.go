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
	"sync"

	"github.com/fuselogfs/fuselog/internal/telemetry"
)

// Log is an ordered sequence of actions plus the FID table that resolves
// the paths those actions reference. It captures deltas since the last
// drain, not a full snapshot, and is safe for concurrent use: the mutation
// interceptor appends from many FUSE op goroutines while the transport
// server drains it from its own goroutine.
type Log struct {
	mu        sync.Mutex
	actions   []Action
	fidTable  map[uint64]string
	pathToFid map[string]uint64
	nextFID   uint64
}

// NewLog returns an empty log with FID allocation starting at 1.
func NewLog() *Log {
	return &Log{
		fidTable:  make(map[uint64]string),
		pathToFid: make(map[string]uint64),
		nextFID:   1,
	}
}

// Shared is the process-wide log the interceptor appends to and the
// transport server drains. It is created at process start and persists
// until exit, per the single-mutex-gated singleton the mutation callbacks
// (invoked by the FUSE driver on its own goroutines) and the socket server
// must agree on.
var Shared = NewLog()

// Tx is a handle for appending one or more actions under a single
// acquisition of the log's mutex, so that e.g. Mkdir followed by its Chown
// land atomically next to each other in the action list.
type Tx struct {
	log *Log
}

// FIDOf interns path into a FID, returning its existing FID if the path has
// already been referenced this epoch or allocating a fresh one otherwise.
func (t *Tx) FIDOf(path string) uint64 {
	if fid, ok := t.log.pathToFid[path]; ok {
		return fid
	}
	fid := t.log.nextFID
	t.log.nextFID++
	t.log.fidTable[fid] = path
	t.log.pathToFid[path] = fid
	return fid
}

// Append adds actions to the log in order.
func (t *Tx) Append(actions ...Action) {
	t.log.actions = append(t.log.actions, actions...)
	for _, a := range actions {
		telemetry.MutationsTotal.WithLabelValues(a.Kind().String()).Inc()
	}
}

// Do runs fn with the log's mutex held, giving fn a Tx to intern paths and
// append actions atomically. Callers append only after the corresponding
// backing-filesystem syscall has already succeeded.
func (l *Log) Do(fn func(tx *Tx)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&Tx{log: l})
}

// Len reports the number of actions currently buffered.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.actions)
}

// Snapshot returns copies of the current action list and FID table without
// clearing the log.
func (l *Log) Snapshot() ([]Action, map[uint64]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.copyLocked()
}

func (l *Log) copyLocked() ([]Action, map[uint64]string) {
	actions := make([]Action, len(l.actions))
	copy(actions, l.actions)

	fidTable := make(map[uint64]string, len(l.fidTable))
	for fid, path := range l.fidTable {
		fidTable[fid] = path
	}
	return actions, fidTable
}

// Clear drops the action list and FID table and restarts FID allocation at
// 1, beginning a new epoch.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearLocked()
}

func (l *Log) clearLocked() {
	telemetry.LogDrainedActions.Observe(float64(len(l.actions)))
	l.actions = nil
	l.fidTable = make(map[uint64]string)
	l.pathToFid = make(map[string]uint64)
	l.nextFID = 1
}

// Drain returns a snapshot of the current epoch and clears the log in the
// same critical section, so no append can land between the two.
func (l *Log) Drain() ([]Action, map[uint64]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	actions, fidTable := l.copyLocked()
	l.clearLocked()
	return actions, fidTable
}

// GetAndClear runs build against a snapshot of the current epoch and, if it
// succeeds, clears the log — all under one critical section, so no action
// appended while build runs (pruning, serialising, compressing) can be
// silently dropped by the clear. If build fails, the log is left untouched:
// a compression failure must not lose data. The log mutex is released
// before GetAndClear returns; callers must perform any socket I/O
// afterward, not while still holding a reference that assumes the lock is
// held.
func (l *Log) GetAndClear(build func(actions []Action, fidTable map[uint64]string) ([]byte, error)) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	actions, fidTable := l.copyLocked()
	payload, err := build(actions, fidTable)
	if err != nil {
		return nil, err
	}
	l.clearLocked()
	return payload, nil
}
