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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIDOfAllocatesMonotonicallyFromOne(t *testing.T) {
	l := NewLog()

	var a, b, aAgain uint64
	l.Do(func(tx *Tx) {
		a = tx.FIDOf("a.txt")
		b = tx.FIDOf("b.txt")
		aAgain = tx.FIDOf("a.txt")
	})

	assert.Equal(t, uint64(1), a)
	assert.Equal(t, uint64(2), b)
	assert.Equal(t, a, aAgain, "re-interning the same path returns the same FID")
}

func TestFIDAllocationRestartsAfterClear(t *testing.T) {
	l := NewLog()

	l.Do(func(tx *Tx) { tx.FIDOf("a.txt") })
	l.Clear()

	var fid uint64
	l.Do(func(tx *Tx) { fid = tx.FIDOf("fresh.txt") })

	assert.Equal(t, uint64(1), fid)
}

func TestDrainReturnsActionsAndClearsLog(t *testing.T) {
	l := NewLog()
	l.Do(func(tx *Tx) {
		fid := tx.FIDOf("a.txt")
		tx.Append(Create{FID: fid, Uid: 1000, Gid: 1000, Mode: 0644})
	})

	actions, fidTable := l.Drain()
	require.Len(t, actions, 1)
	assert.Equal(t, "a.txt", fidTable[1])
	assert.Equal(t, 0, l.Len())

	secondActions, secondFIDTable := l.Drain()
	assert.Empty(t, secondActions)
	assert.Empty(t, secondFIDTable)
}

func TestSnapshotDoesNotClear(t *testing.T) {
	l := NewLog()
	l.Do(func(tx *Tx) {
		fid := tx.FIDOf("a.txt")
		tx.Append(Mkdir{FID: fid})
	})

	actions, _ := l.Snapshot()
	require.Len(t, actions, 1)
	assert.Equal(t, 1, l.Len(), "snapshot must not remove the buffered action")
}

func TestEveryReferencedFIDAppearsInTheTable(t *testing.T) {
	l := NewLog()
	l.Do(func(tx *Tx) {
		fid := tx.FIDOf("dir")
		tx.Append(Mkdir{FID: fid}, Chown{FID: fid, Uid: 1000, Gid: 1000})
	})

	actions, fidTable := l.Snapshot()
	for _, a := range actions {
		switch v := a.(type) {
		case Mkdir:
			_, ok := fidTable[v.FID]
			assert.True(t, ok)
		case Chown:
			_, ok := fidTable[v.FID]
			assert.True(t, ok)
		}
	}
}

func TestAppendOrderMatchesSuccessOrderUnderConcurrency(t *testing.T) {
	l := NewLog()

	const n = 50
	var wg sync.WaitGroup
	order := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Do(func(tx *Tx) {
				fid := tx.FIDOf("shared-path")
				tx.Append(Write{FID: fid, Offset: uint64(i), Data: []byte{byte(i)}})
				order <- i
			})
		}(i)
	}
	wg.Wait()
	close(order)

	actions, _ := l.Snapshot()
	require.Len(t, actions, n)

	var successOrder []int
	for i := range order {
		successOrder = append(successOrder, i)
	}
	seen := map[int]bool{}
	appendOrder := make([]int, 0, n)
	for _, a := range actions {
		w := a.(Write)
		seen[int(w.Offset)] = true
		appendOrder = append(appendOrder, int(w.Offset))
	}
	assert.Equal(t, successOrder, appendOrder, "actions must appear in the order their appends completed")
	assert.Len(t, seen, n, "every concurrently appended write must survive, none lost or duplicated")
}
