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

// Package transport implements the one-byte-command Unix domain socket
// protocol that exposes the mutation log to the applier and other clients:
// get, clear, train, and checkpoint.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/fuselogfs/fuselog/internal/dictionary"
	"github.com/fuselogfs/fuselog/internal/logger"
	"github.com/fuselogfs/fuselog/internal/prune"
	"github.com/fuselogfs/fuselog/internal/statediff"
	"github.com/fuselogfs/fuselog/internal/telemetry"
)

// DefaultSocketPath is where the socket is created when FUSELOG_SOCKET_FILE
// is unset.
const DefaultSocketPath = "/tmp/fuselog.sock"

// SocketFileEnvVar overrides DefaultSocketPath.
const SocketFileEnvVar = "FUSELOG_SOCKET_FILE"

const checkpointMarker = "[]==========[] CHECKPOINT []==========[] "

// Options toggles the behavior of the "get" command, mirroring the
// environment variables of the same name.
type Options struct {
	Prune               bool
	Compression         bool
	AdaptiveCompression bool
}

// Server accepts connections on a Unix domain socket and serves the
// one-byte-command protocol against a shared log and dictionary trainer.
type Server struct {
	SocketPath string
	Log        *statediff.Log
	Trainer    *dictionary.Trainer
	Options    Options

	listener net.Listener
}

// NewServer returns a Server bound to socketPath (DefaultSocketPath if
// empty), serving log and using trainer for adaptive compression.
func NewServer(socketPath string, log *statediff.Log, trainer *dictionary.Trainer, opts Options) *Server {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	return &Server{SocketPath: socketPath, Log: log, Trainer: trainer, Options: opts}
}

// Listen removes any stale socket file at SocketPath and binds a new one.
func (s *Server) Listen() error {
	if err := os.RemoveAll(s.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("transport: removing stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return fmt.Errorf("transport: binding socket at %s: %w", s.SocketPath, err)
	}
	s.listener = listener
	logger.Infof("Socket listener started at %s", s.SocketPath)
	return nil
}

// Serve accepts connections and handles each to completion before
// accepting the next, per the one-connection-at-a-time contract. It
// returns when Listen's listener is closed.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("transport: accept: %w", err)
		}
		s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	logger.Infof("Socket: client connected")

	cmd := make([]byte, 1)
	for {
		if _, err := io.ReadFull(conn, cmd); err != nil {
			logger.Infof("Socket: client disconnected: %v", err)
			return
		}

		var err error
		switch cmd[0] {
		case 'g':
			telemetry.SocketCommandsTotal.WithLabelValues("get").Inc()
			err = s.handleGet(conn)
		case 'c':
			telemetry.SocketCommandsTotal.WithLabelValues("clear").Inc()
			s.handleClear()
		case 't':
			telemetry.SocketCommandsTotal.WithLabelValues("train").Inc()
			s.handleTrain()
		case 'm':
			telemetry.SocketCommandsTotal.WithLabelValues("checkpoint").Inc()
			fmt.Println(checkpointMarker)
		default:
			telemetry.SocketCommandsTotal.WithLabelValues("unknown").Inc()
			logger.Warnf("Socket: received unknown command: %c", cmd[0])
		}

		if err != nil {
			logger.Errorf("Socket: command error: %v", err)
		}
	}
}

func (s *Server) handleGet(conn net.Conn) error {
	logger.Infof("Socket: received 'get' command")

	payload, err := s.Log.GetAndClear(func(actions []statediff.Action, fidTable map[uint64]string) ([]byte, error) {
		if s.Options.Prune {
			logger.Infof("Pruning enabled; pruning statediff log")
			actions, fidTable = prune.Prune(actions, fidTable)
		}

		raw := statediff.Encode(actions, fidTable)
		return s.frame(raw, len(actions) == 0)
	})
	if err != nil {
		return err
	}

	header := lengthPrefix(uint64(len(payload)))
	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("transport: writing length prefix: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("transport: writing payload: %w", err)
	}
	logger.Infof("Socket: sent %d bytes", len(payload))
	return nil
}

// frame builds the mode-byte-prefixed payload for a "get" response:
// uncompressed ('n'), zstd ('z'), or dictionary-plus-zstd ('d'). empty
// reports whether the log being framed holds no actions.
func (s *Server) frame(raw []byte, empty bool) ([]byte, error) {
	if !s.Options.Compression || empty {
		logger.Infof("Compression disabled or log empty; sending raw data")
		payload := append([]byte{'n'}, raw...)
		telemetry.GetPayloadBytes.WithLabelValues("n").Observe(float64(len(payload)))
		return payload, nil
	}

	if !s.Options.AdaptiveCompression {
		logger.Infof("Standard zstd compression enabled")
		compressed, err := dictionary.Compress(raw)
		if err != nil {
			return nil, fmt.Errorf("transport: compressing payload: %w", err)
		}
		payload := append([]byte{'z'}, compressed...)
		telemetry.GetPayloadBytes.WithLabelValues("z").Observe(float64(len(payload)))
		return payload, nil
	}

	s.Trainer.AddSample(raw)
	encoded, err := s.Trainer.Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("transport: dictionary-compressing payload: %w", err)
	}

	if encoded.Dictionary == nil {
		payload := append([]byte{'z'}, encoded.Data...)
		telemetry.GetPayloadBytes.WithLabelValues("z").Observe(float64(len(payload)))
		return payload, nil
	}

	logger.Infof("Attaching new dictionary to payload")
	payload := make([]byte, 0, 1+4+len(encoded.Dictionary)+1+len(encoded.Data))
	payload = append(payload, 'd')
	payload = append(payload, lengthPrefix32(uint32(len(encoded.Dictionary)))...)
	payload = append(payload, encoded.Dictionary...)
	payload = append(payload, 'z')
	payload = append(payload, encoded.Data...)
	telemetry.GetPayloadBytes.WithLabelValues("d").Observe(float64(len(payload)))
	return payload, nil
}

func lengthPrefix32(n uint32) []byte {
	b := make([]byte, 4)
	for i := 0; i < 4; i++ {
		b[i] = byte(n >> (8 * i))
	}
	return b
}

func lengthPrefix(n uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(n >> (8 * i))
	}
	return b
}

func (s *Server) handleClear() {
	logger.Infof("Socket: received 'clear' command")
	s.Log.Clear()
}

func (s *Server) handleTrain() {
	logger.Infof("Socket: received 'train' command")
	if err := s.Trainer.Train(); err != nil {
		logger.Warnf("Socket: %v", err)
	}
}
