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

// DefaultSocketFile is the control-socket path used when neither a flag
// nor FUSELOG_SOCKET_FILE overrides it.
const DefaultSocketFile = "/tmp/fuselog.sock"

// DefaultDictionaryPath is the side-channel file where the applier keeps the
// zstd dictionary received in a "d"-framed payload and decodes later
// "z"-framed payloads against it.
const DefaultDictionaryPath = "/tmp/statediff.dict"

// GetDefaultLoggingConfig returns the default configuration that is to be used
// during application startup, before flags and environment variables have
// been parsed.
func GetDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Severity: InfoLogSeverity,
		Format:   "text",
		LogRotate: LogRotateLoggingConfig{
			BackupFileCount: 10,
			Compress:        true,
			MaxFileSizeMb:   512,
		},
	}
}
