// Copyright 2024 Google LLC
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

// Command fuselog-diff is a thin client for fuselog's control socket: it
// issues a single "get", "train", or "clear" command and, for "get",
// writes the framed response payload to a file or stdout.
package main

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/fuselogfs/fuselog/internal/applier"
	"github.com/fuselogfs/fuselog/internal/transport"
	"github.com/fuselogfs/fuselog/internal/util"
)

var (
	socketPath string
	outputPath string
)

var rootCmd = &cobra.Command{
	Use:   "fuselog-diff [flags] get|train|clear",
	Short: "Issue a command against a fuselog control socket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(args[0])
	},
}

func init() {
	rootCmd.Flags().StringVar(&socketPath, "socket", "", "Control socket path (defaults to "+transport.DefaultSocketPath+" or $"+transport.SocketFileEnvVar+").")
	rootCmd.Flags().StringVar(&outputPath, "output", "", "Where to write a 'get' response (defaults to stdout).")
}

func resolveSocketPath() string {
	if socketPath != "" {
		return socketPath
	}
	if env := os.Getenv(transport.SocketFileEnvVar); env != "" {
		return env
	}
	return transport.DefaultSocketPath
}

var commandBytes = map[string]byte{
	"get":   'g',
	"train": 't',
	"clear": 'c',
}

func run(command string) error {
	cmdByte, ok := commandBytes[command]
	if !ok {
		return fmt.Errorf("unknown command %q: want get, train, or clear", command)
	}

	conn, err := net.Dial("unix", resolveSocketPath())
	if err != nil {
		return fmt.Errorf("dialing control socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{cmdByte}); err != nil {
		return fmt.Errorf("sending %q command: %w", command, err)
	}

	if command != "get" {
		return nil
	}

	framed, err := applier.ReadFramed(conn)
	if err != nil {
		return err
	}

	out := io.Writer(os.Stdout)
	if outputPath != "" {
		resolved, err := util.GetResolvedPath(outputPath)
		if err != nil {
			return fmt.Errorf("canonicalizing output path: %w", err)
		}
		f, err := os.Create(resolved)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	_, err = out.Write(framed)
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
