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

// Command fuselog-apply replays a state-diff file captured from
// fuselog-diff against a target
// directory, reconstructing the tree fuselog observed.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fuselogfs/fuselog/internal/applier"
	"github.com/fuselogfs/fuselog/internal/logger"
	"github.com/fuselogfs/fuselog/internal/util"
)

var statediffPath string

var rootCmd = &cobra.Command{
	Use:   "fuselog-apply [flags] target_directory",
	Short: "Replay a fuselog state-diff against a target directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(args[0], statediffPath)
	},
}

func init() {
	flags := pflag.NewFlagSet("fuselog-apply", pflag.ExitOnError)
	flags.StringVar(&statediffPath, "statediff", "", "Path to the framed state-diff payload to apply.")
	rootCmd.Flags().AddFlagSet(flags)
	_ = rootCmd.MarkFlagRequired("statediff")
}

func run(targetDirArg, statediffPathArg string) error {
	targetDir, err := util.GetResolvedPath(targetDirArg)
	if err != nil {
		return fmt.Errorf("canonicalizing target directory: %w", err)
	}

	statediffFile, err := util.GetResolvedPath(statediffPathArg)
	if err != nil {
		return fmt.Errorf("canonicalizing statediff path: %w", err)
	}

	framed, err := os.ReadFile(statediffFile)
	if err != nil {
		return fmt.Errorf("reading statediff file: %w", err)
	}

	actions, fidTable, err := applier.Decode(framed, applier.DefaultDictionaryPath)
	if err != nil {
		return err
	}

	result, err := applier.Apply(targetDir, actions, fidTable)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		logger.Warnf("%s", w)
	}
	logger.Infof("Applied %d actions to %s", result.Applied, targetDir)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
