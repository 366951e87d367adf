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

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSimulatedClockFiresAfterOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sc := NewSimulatedClock(start)

	ch := sc.After(10 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before the duration elapsed")
	default:
	}

	sc.AdvanceTime(10 * time.Second)

	select {
	case fired := <-ch:
		assert.Equal(t, start.Add(10*time.Second), fired)
	default:
		t.Fatal("After did not fire once the duration elapsed")
	}
}

func TestSimulatedClockNonPositiveDurationFiresImmediately(t *testing.T) {
	sc := NewSimulatedClock(time.Now())
	ch := sc.After(0)
	select {
	case <-ch:
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

var _ Clock = RealClock{}
var _ Clock = &SimulatedClock{}
