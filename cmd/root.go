// Copyright 2024 Google Inc. All Rights Reserved.
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

// Package cmd wires fuselog's configuration and mount logic into a cobra
// command consumed by cmd/fuselog's main package.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fuselogfs/fuselog/cfg"
	"github.com/fuselogfs/fuselog/internal/logger"
	"github.com/fuselogfs/fuselog/internal/transport"
	"github.com/fuselogfs/fuselog/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	MountConfig   cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "fuselog [flags] backing_directory",
	Short: "Mount a backing directory through fuselog's mutation-logging overlay",
	Long: `fuselog mounts itself directly on top of backing_directory: it
chdirs into the directory, retaining access to its real contents via the
process's working directory, then mounts a FUSE file system at that same
path. Every request is served against the retained directory and, on
success, recorded as a replayable state-diff that a remote fuselog-apply
process can later apply to reconstruct the same tree.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if err := cfg.ValidateConfig(&MountConfig); err != nil {
			return err
		}

		backingDir, err := populateArgs(args)
		if err != nil {
			return err
		}

		if err := logger.Init(MountConfig.Logging); err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}

		return mountAndServe(context.Background(), backingDir, &MountConfig)
	},
}

func populateArgs(args []string) (backingDir string, err error) {
	backingDir, err = util.GetResolvedPath(args[0])
	if err != nil {
		return "", fmt.Errorf("canonicalizing backing directory: %w", err)
	}
	return backingDir, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to the config-file")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())

	for key, env := range map[string]string{
		"prune":                "FUSELOG_PRUNE",
		"compression":          "FUSELOG_COMPRESSION",
		"adaptive-compression": "ADAPTIVE_COMPRESSION",
		"adaptive-dev-mode":    "ADAPTIVE_DEV_MODE",
		"socket-file":          transport.SocketFileEnvVar,
	} {
		if err := viper.BindEnv(key, env); err != nil && bindErr == nil {
			bindErr = err
		}
	}
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&MountConfig, viper.DecodeHook(cfg.DecodeHook()))
		return
	}

	resolved, err := util.GetResolvedPath(cfgFile)
	if err != nil {
		configFileErr = fmt.Errorf("error while resolving config file path: %w", err)
		return
	}
	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("error while reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&MountConfig, viper.DecodeHook(cfg.DecodeHook()))
}
