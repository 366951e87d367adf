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

// Package mount holds the glue between fuselog's configuration and
// github.com/jacobsa/fuse's MountConfig.
package mount

import "strings"

// ParseOptions parses a single comma-separated "-o" argument (e.g.
// "allow_other,uid=1000") into m, which accumulates options across
// repeated "-o" flags. A bare option (no "=") is recorded with an empty
// value.
func ParseOptions(m map[string]string, s string) {
	for _, p := range strings.Split(s, ",") {
		if p == "" {
			continue
		}

		key, value, hasValue := strings.Cut(p, "=")
		if !hasValue {
			m[key] = ""
			continue
		}

		m[key] = value
	}
}
