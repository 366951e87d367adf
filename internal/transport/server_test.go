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

package transport

import (
	"encoding/binary"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/fuselogfs/fuselog/internal/dictionary"
	"github.com/fuselogfs/fuselog/internal/statediff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, opts Options) (*Server, *statediff.Log, net.Conn) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "fuselog.sock")
	log := statediff.NewLog()
	trainer := dictionary.NewTrainer(true)

	srv := NewServer(socketPath, log, trainer, opts)
	require.NoError(t, srv.Listen())
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })

	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", socketPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return srv, log, conn
}

func readFrame(t *testing.T, conn net.Conn) (mode byte, payload []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	lengthBuf := make([]byte, 8)
	_, err := io.ReadFull(conn, lengthBuf)
	require.NoError(t, err)
	length := binary.LittleEndian.Uint64(lengthBuf)

	body := make([]byte, length)
	_, err = io.ReadFull(conn, body)
	require.NoError(t, err)

	return body[0], body[1:]
}

func TestGetReturnsUncompressedFrameAndClearsLog(t *testing.T) {
	_, log, conn := startTestServer(t, Options{})

	log.Do(func(tx *statediff.Tx) {
		fid := tx.FIDOf("a.txt")
		tx.Append(statediff.Create{FID: fid, Uid: 1000, Gid: 1000, Mode: 0644})
	})

	_, err := conn.Write([]byte{'g'})
	require.NoError(t, err)

	mode, payload := readFrame(t, conn)
	assert.Equal(t, byte('n'), mode)

	actions, fidTable, err := statediff.Decode(payload)
	require.NoError(t, err)
	assert.Len(t, actions, 1)
	assert.Equal(t, "a.txt", fidTable[1])

	assert.Equal(t, 0, log.Len())
}

func TestClearDropsLogWithoutResponse(t *testing.T) {
	_, log, conn := startTestServer(t, Options{})

	log.Do(func(tx *statediff.Tx) {
		fid := tx.FIDOf("a.txt")
		tx.Append(statediff.Mkdir{FID: fid})
	})

	_, err := conn.Write([]byte{'c'})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return log.Len() == 0 }, time.Second, 10*time.Millisecond)

	_, err = conn.Write([]byte{'g'})
	require.NoError(t, err)
	mode, payload := readFrame(t, conn)
	assert.Equal(t, byte('n'), mode)
	actions, _, err := statediff.Decode(payload)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestUnknownCommandIsIgnoredAndConnectionStaysOpen(t *testing.T) {
	_, log, conn := startTestServer(t, Options{})

	log.Do(func(tx *statediff.Tx) {
		tx.Append(statediff.Unlink{FID: tx.FIDOf("gone.txt")})
	})

	_, err := conn.Write([]byte{'x'})
	require.NoError(t, err)

	_, err = conn.Write([]byte{'g'})
	require.NoError(t, err)
	mode, payload := readFrame(t, conn)
	assert.Equal(t, byte('n'), mode)
	actions, _, err := statediff.Decode(payload)
	require.NoError(t, err)
	assert.Len(t, actions, 1)
}

func TestGetWithEmptyLogIsAlwaysUncompressed(t *testing.T) {
	_, _, conn := startTestServer(t, Options{Compression: true})

	_, err := conn.Write([]byte{'g'})
	require.NoError(t, err)
	mode, payload := readFrame(t, conn)
	assert.Equal(t, byte('n'), mode)
	assert.Equal(t, statediff.Encode(nil, map[uint64]string{}), payload)
}

func TestGetWithCompressionProducesZstdFrame(t *testing.T) {
	_, log, conn := startTestServer(t, Options{Compression: true})

	log.Do(func(tx *statediff.Tx) {
		tx.Append(statediff.Write{FID: tx.FIDOf("a.txt"), Offset: 0, Data: []byte("some file contents")})
	})

	_, err := conn.Write([]byte{'g'})
	require.NoError(t, err)
	mode, payload := readFrame(t, conn)
	require.Equal(t, byte('z'), mode)

	raw, err := dictionary.Decompress(payload, nil)
	require.NoError(t, err)
	actions, _, err := statediff.Decode(raw)
	require.NoError(t, err)
	assert.Len(t, actions, 1)
}

func TestGetWithAdaptiveCompressionAttachesDictionaryOnce(t *testing.T) {
	srv, log, conn := startTestServer(t, Options{Compression: true, AdaptiveCompression: true})

	pattern := []byte("the quick brown fox jumps over the lazy dog, many times over, for training. ")
	for i := 0; i < 10; i++ {
		sample := make([]byte, 0, 500)
		for len(sample) < 500 {
			sample = append(sample, pattern...)
		}
		srv.Trainer.AddSample(sample)
	}
	require.NoError(t, srv.Trainer.Train())

	log.Do(func(tx *statediff.Tx) {
		tx.Append(statediff.Write{FID: tx.FIDOf("a.txt"), Offset: 0, Data: pattern})
	})
	_, err := conn.Write([]byte{'g'})
	require.NoError(t, err)
	mode, payload := readFrame(t, conn)
	require.Equal(t, byte('d'), mode)

	dictLen := binary.LittleEndian.Uint32(payload[:4])
	dict := payload[4 : 4+dictLen]
	assert.NotEmpty(t, dict)
	require.Equal(t, byte('z'), payload[4+dictLen])

	log.Do(func(tx *statediff.Tx) {
		tx.Append(statediff.Write{FID: tx.FIDOf("b.txt"), Offset: 0, Data: pattern})
	})
	_, err = conn.Write([]byte{'g'})
	require.NoError(t, err)
	mode, _ = readFrame(t, conn)
	assert.Equal(t, byte('z'), mode, "second get after the same training generation must not resend the dictionary")
}

func TestCheckpointDoesNotWriteToSocket(t *testing.T) {
	_, _, conn := startTestServer(t, Options{})

	_, err := conn.Write([]byte{'m'})
	require.NoError(t, err)

	_, err = conn.Write([]byte{'g'})
	require.NoError(t, err)
	mode, payload := readFrame(t, conn)
	assert.Equal(t, byte('n'), mode)
	assert.Equal(t, statediff.Encode(nil, map[uint64]string{}), payload)
}
