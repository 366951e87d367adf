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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/fuselogfs/fuselog/cfg"
	"github.com/fuselogfs/fuselog/internal/clock"
	"github.com/fuselogfs/fuselog/internal/dictionary"
	"github.com/fuselogfs/fuselog/internal/interceptor"
	"github.com/fuselogfs/fuselog/internal/logger"
	"github.com/fuselogfs/fuselog/internal/mount"
	"github.com/fuselogfs/fuselog/internal/statediff"
	"github.com/fuselogfs/fuselog/internal/telemetry"
	"github.com/fuselogfs/fuselog/internal/transport"
)

// mountAndServe creates backingDir if missing, chdirs into it, starts the
// control socket, mounts fuselog on top of backingDir, and blocks until
// the mount is unmounted.
func mountAndServe(ctx context.Context, backingDir string, config *cfg.Config) error {
	if err := os.MkdirAll(backingDir, 0755); err != nil {
		return fmt.Errorf("creating backing directory: %w", err)
	}

	sessionID := uuid.NewString()
	logger.Infof("Starting fuselog session %s (backing directory %s)", sessionID, backingDir)

	// Chdir before anything else touches the backing tree: every relative
	// path fuselog resolves from here on depends on the working directory
	// still referencing the pre-mount root once fuse.Mount covers the same
	// path below.
	if err := os.Chdir(backingDir); err != nil {
		return fmt.Errorf("chdir to backing directory: %w", err)
	}

	fs, err := interceptor.New(backingDir, statediff.Shared)
	if err != nil {
		return fmt.Errorf("interceptor.New: %w", err)
	}

	trainer := dictionary.NewTrainer(config.AdaptiveDevMode)
	server := transport.NewServer(string(config.SocketFile), statediff.Shared, trainer, transport.Options{
		Prune:               config.Prune,
		Compression:         config.Compression,
		AdaptiveCompression: config.AdaptiveCompression,
	})
	if err := server.Listen(); err != nil {
		return fmt.Errorf("starting control socket: %w", err)
	}
	defer server.Close()

	go func() {
		if err := server.Serve(); err != nil {
			logger.Errorf("control socket: %v", err)
		}
	}()

	if config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		metricsServer := &http.Server{Addr: config.MetricsAddr, Handler: mux}
		go func() {
			logger.Infof("Serving metrics at %s/metrics", config.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server: %v", err)
			}
		}()
	}

	go reportLogSize(ctx, clock.RealClock{}, statediff.Shared, 30*time.Second)

	mountCfg := getFuseMountConfig(config)

	logger.Infof("Mounting file system %q at %q...", fsName, backingDir)
	mfs, err := fuse.Mount(backingDir, fuseutil.NewFileSystemServer(fs), mountCfg)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	return mfs.Join(ctx)
}

// reportLogSize logs the buffered action count on every tick of c until
// ctx is cancelled, so an operator watching logs can tell the mutation log
// is growing between "get"s without needing the metrics endpoint enabled.
func reportLogSize(ctx context.Context, c clock.Clock, log *statediff.Log, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.After(interval):
			logger.Infof("Mutation log holds %d unflushed action(s)", log.Len())
		}
	}
}

// fsName is the filesystem name identifier the kernel reports for every
// fuselog mount, per §6's External Interfaces contract.
const fsName = "fuselog"

// getFuseMountConfig builds the jacobsa/fuse mount configuration per
// SPEC_FULL.md's mount-options contract: fsname "fuselog", auto-unmount,
// allow_other, and default kernel permission checks, plus error/debug
// loggers wired to the severity threshold of the resolved config.
func getFuseMountConfig(config *cfg.Config) *fuse.MountConfig {
	parsedOptions := make(map[string]string)
	mount.ParseOptions(parsedOptions, "allow_other,default_permissions,auto_unmount")

	mountCfg := &fuse.MountConfig{
		FSName:     fsName,
		Subtype:    "fuselog",
		VolumeName: "fuselog",
		Options:    parsedOptions,
	}

	if config.Logging.Severity.Rank() <= cfg.ErrorLogSeverity.Rank() {
		mountCfg.ErrorLogger = logger.NewLegacyLogger(logger.LevelError, "fuse: ")
	}
	if config.Logging.Severity.Rank() <= cfg.TraceLogSeverity.Rank() {
		mountCfg.DebugLogger = logger.NewLegacyLogger(logger.LevelTrace, "fuse_debug: ")
	}
	return mountCfg
}
