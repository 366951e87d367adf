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

// Package dictionary implements the cooperative, sample-based zstd
// dictionary builder used for streaming-friendly compression of state-diff
// payloads, plus the dictionary-aware compress/decompress wrappers the
// transport layer calls on every "get".
package dictionary

import (
	"fmt"
	"sync"

	"github.com/DataDog/zstd"

	"github.com/fuselogfs/fuselog/internal/telemetry"
)

// Thresholds gates training on sample count, total bytes, and average
// sample size. Development mode relaxes all three so a dictionary can be
// produced from a short manual test run instead of a day of traffic.
type Thresholds struct {
	MinSamples        int
	MinTotalBytes     int
	MinBytesPerSample int
}

var devThresholds = Thresholds{MinSamples: 5, MinTotalBytes: 2 * 1024, MinBytesPerSample: 50}
var prodThresholds = Thresholds{MinSamples: 50, MinTotalBytes: 100 * 1024, MinBytesPerSample: 500}

const (
	devMaxDictSize  = 8 * 1024
	devMinDictSize  = 512
	prodMaxDictSize = 64 * 1024
	prodMinDictSize = 1024

	devMaxBufferSamples  = 20
	prodMaxBufferSamples = 200
)

// Trainer holds the training buffer and the current dictionary, if any. A
// single Trainer is shared between the component that feeds it raw
// payloads (on every "get") and the component that triggers training (on
// "train"); both are serialised behind the same mutex.
type Trainer struct {
	mu         sync.Mutex
	devMode    bool
	buffer     [][]byte
	dict       []byte
	generation uint64
	sent       uint64 // generation last handed to a peer; 0 means never
}

// NewTrainer returns an empty Trainer. devMode relaxes the training
// preconditions and target dictionary size per the thresholds above.
func NewTrainer(devMode bool) *Trainer {
	return &Trainer{devMode: devMode}
}

// AddSample records raw, pre-compression payload bytes for future
// training. The caller's slice is copied; AddSample does not retain it.
func (t *Trainer) AddSample(raw []byte) {
	if len(raw) == 0 {
		return
	}
	sample := make([]byte, len(raw))
	copy(sample, raw)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.buffer = append(t.buffer, sample)
}

// Train attempts to build a new dictionary from the buffered samples. On
// failure the existing dictionary, if any, is left untouched — training
// failure is recoverable, not fatal.
func (t *Trainer) Train() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	thresholds := prodThresholds
	if t.devMode {
		thresholds = devThresholds
	}

	sampleCount := len(t.buffer)
	if sampleCount < thresholds.MinSamples {
		telemetry.DictionaryTrainingsTotal.WithLabelValues("insufficient").Inc()
		return fmt.Errorf("dictionary: %d samples buffered, need at least %d", sampleCount, thresholds.MinSamples)
	}

	totalBytes := 0
	for _, s := range t.buffer {
		totalBytes += len(s)
	}
	if totalBytes < thresholds.MinTotalBytes {
		telemetry.DictionaryTrainingsTotal.WithLabelValues("insufficient").Inc()
		return fmt.Errorf("dictionary: %d bytes buffered, need at least %d", totalBytes, thresholds.MinTotalBytes)
	}
	if avg := totalBytes / sampleCount; avg < thresholds.MinBytesPerSample {
		telemetry.DictionaryTrainingsTotal.WithLabelValues("insufficient").Inc()
		return fmt.Errorf("dictionary: average sample size %d bytes, need at least %d", avg, thresholds.MinBytesPerSample)
	}

	dict, err := zstd.TrainFromBuffer(t.buffer, t.targetSize(totalBytes))
	if err != nil {
		telemetry.DictionaryTrainingsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("dictionary: training failed: %w", err)
	}
	telemetry.DictionaryTrainingsTotal.WithLabelValues("trained").Inc()

	t.dict = dict
	t.generation++

	maxBufferSamples := prodMaxBufferSamples
	if t.devMode {
		maxBufferSamples = devMaxBufferSamples
	}
	if len(t.buffer) > maxBufferSamples {
		keep := maxBufferSamples / 2
		trimmed := make([][]byte, keep)
		copy(trimmed, t.buffer[len(t.buffer)-keep:])
		t.buffer = trimmed
	}

	return nil
}

func (t *Trainer) targetSize(totalBytes int) int {
	if t.devMode {
		size := totalBytes / 2
		if size > devMaxDictSize {
			size = devMaxDictSize
		}
		if size < devMinDictSize {
			size = devMinDictSize
		}
		return size
	}

	size := totalBytes / 100
	if size > prodMaxDictSize {
		size = prodMaxDictSize
	}
	if tenth := totalBytes / 10; size > tenth {
		size = tenth
	}
	if size < prodMinDictSize {
		size = prodMinDictSize
	}
	return size
}

// Dictionary returns the trained dictionary bytes, or nil if none has been
// trained yet.
func (t *Trainer) Dictionary() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dict
}

// Encoded is the outcome of compressing one payload: the compressed bytes,
// and the dictionary to attach alongside it, which is non-nil exactly when
// this is the dictionary's first use since it was (re)trained.
type Encoded struct {
	Data       []byte
	Dictionary []byte
}

// Compress compresses raw with the current dictionary, if any, falling
// back to plain zstd when no dictionary has been trained. It tracks
// dictionary freshness across calls: the first Compress after a
// (re)training attaches the dictionary bytes to the result; later calls
// against the same dictionary generation omit them, since the peer
// already has a copy.
//
// The reference-counting scheme in the original implementation ("if the
// producer holds exactly one outstanding reference to the dictionary
// besides its own, this is the first emission") has no clean Go
// equivalent without reaching for weak references, so freshness is
// tracked with an explicit generation counter instead — same observable
// behavior on the wire, simpler to reason about.
func (t *Trainer) Compress(raw []byte) (Encoded, error) {
	t.mu.Lock()
	dict := t.dict
	generation := t.generation
	firstUse := dict != nil && generation != t.sent
	t.mu.Unlock()

	if dict == nil {
		data, err := zstd.Compress(nil, raw)
		if err != nil {
			return Encoded{}, fmt.Errorf("dictionary: compress: %w", err)
		}
		return Encoded{Data: data}, nil
	}

	data, err := zstd.CompressDict(nil, raw, dict)
	if err != nil {
		return Encoded{}, fmt.Errorf("dictionary: dictionary compress: %w", err)
	}

	out := Encoded{Data: data}
	if firstUse {
		out.Dictionary = dict
		t.mu.Lock()
		if t.generation == generation {
			t.sent = generation
		}
		t.mu.Unlock()
	}
	return out, nil
}

// Compress performs plain (non-dictionary) zstd compression, independent
// of any Trainer. Used when compression is requested but adaptive
// compression is not.
func Compress(raw []byte) ([]byte, error) {
	out, err := zstd.Compress(nil, raw)
	if err != nil {
		return nil, fmt.Errorf("dictionary: compress: %w", err)
	}
	return out, nil
}

// Decompress decompresses data, using dict if non-empty, else plain zstd.
func Decompress(data []byte, dict []byte) ([]byte, error) {
	if len(dict) == 0 {
		out, err := zstd.Decompress(nil, data)
		if err != nil {
			return nil, fmt.Errorf("dictionary: decompress: %w", err)
		}
		return out, nil
	}
	out, err := zstd.DecompressDict(nil, data, dict)
	if err != nil {
		return nil, fmt.Errorf("dictionary: dictionary decompress: %w", err)
	}
	return out, nil
}
