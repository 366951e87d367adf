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

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved configuration for a fuselog mount, merged
// from defaults, a YAML config file (if any), environment variables, and
// command-line flags, in increasing order of precedence.
type Config struct {
	// Prune runs the log pruner before serialising a state-diff on "get".
	Prune bool `yaml:"prune"`

	// Compression compresses "get" payloads with zstd.
	Compression bool `yaml:"compression"`

	// AdaptiveCompression uses a trained dictionary for compression when
	// one is available. Has no effect unless Compression is also set.
	AdaptiveCompression bool `yaml:"adaptive-compression"`

	// AdaptiveDevMode relaxes the sample thresholds that gate dictionary
	// training, for exercising the adaptive path on small local repros.
	AdaptiveDevMode bool `yaml:"adaptive-dev-mode"`

	// SocketFile is the path of the Unix domain socket the daemon listens
	// on for "get"/"clear"/"train"/checkpoint commands.
	SocketFile ResolvedPath `yaml:"socket-file"`

	// MetricsAddr is the "host:port" the Prometheus metrics endpoint binds
	// to. Empty disables the metrics server.
	MetricsAddr string `yaml:"metrics-addr"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig controls the daemon's structured logger.
type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`

	// Format is either "text" or "json".
	Format string `yaml:"format"`

	// FilePath is the destination of log output. Empty means stderr.
	FilePath ResolvedPath `yaml:"file-path"`

	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

// LogRotateLoggingConfig mirrors lumberjack.Logger's knobs for the subset
// that fuselog exposes as flags.
type LogRotateLoggingConfig struct {
	MaxFileSizeMb   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

// BindFlags registers every fuselog flag and binds it to the matching
// viper key, so that flags, environment variables (via viper's env
// binding in cmd/root.go) and config-file values all resolve into the
// same Config fields.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.BoolP("prune", "", false, "Run the log pruner before serving a 'get' request.")
	if err = viper.BindPFlag("prune", flagSet.Lookup("prune")); err != nil {
		return err
	}

	flagSet.BoolP("compression", "", false, "Compress state-diff payloads with zstd.")
	if err = viper.BindPFlag("compression", flagSet.Lookup("compression")); err != nil {
		return err
	}

	flagSet.BoolP("adaptive-compression", "", false, "Use a trained dictionary for compression when one is available.")
	if err = viper.BindPFlag("adaptive-compression", flagSet.Lookup("adaptive-compression")); err != nil {
		return err
	}

	flagSet.BoolP("adaptive-dev-mode", "", false, "Relax dictionary training thresholds for local development.")
	if err = viper.BindPFlag("adaptive-dev-mode", flagSet.Lookup("adaptive-dev-mode")); err != nil {
		return err
	}

	flagSet.StringP("socket-file", "", "/tmp/fuselog.sock", "Unix domain socket path for the control protocol.")
	if err = viper.BindPFlag("socket-file", flagSet.Lookup("socket-file")); err != nil {
		return err
	}

	flagSet.StringP("metrics-addr", "", "", "Address to serve Prometheus metrics on, e.g. ':9090'. Empty disables the metrics server.")
	if err = viper.BindPFlag("metrics-addr", flagSet.Lookup("metrics-addr")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "INFO", "Logging severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "Logging output format: text or json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "Path to the log file. Empty writes to stderr.")
	if err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.IntP("log-max-size-mb", "", 512, "Maximum size in MiB of a log file before it is rotated.")
	if err = viper.BindPFlag("logging.log-rotate.max-file-size-mb", flagSet.Lookup("log-max-size-mb")); err != nil {
		return err
	}

	flagSet.IntP("log-backup-count", "", 10, "Number of rotated log files to retain. 0 retains all.")
	if err = viper.BindPFlag("logging.log-rotate.backup-file-count", flagSet.Lookup("log-backup-count")); err != nil {
		return err
	}

	flagSet.BoolP("log-compress", "", true, "Gzip rotated log files.")
	if err = viper.BindPFlag("logging.log-rotate.compress", flagSet.Lookup("log-compress")); err != nil {
		return err
	}

	return nil
}
