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

package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOptionsSplitsKeyValuePairs(t *testing.T) {
	m := map[string]string{}
	ParseOptions(m, "uid=1000,gid=1000")

	assert.Equal(t, map[string]string{"uid": "1000", "gid": "1000"}, m)
}

func TestParseOptionsAcceptsBareOptions(t *testing.T) {
	m := map[string]string{}
	ParseOptions(m, "allow_other,default_permissions")

	assert.Equal(t, map[string]string{"allow_other": "", "default_permissions": ""}, m)
}

func TestParseOptionsAccumulatesAcrossCalls(t *testing.T) {
	m := map[string]string{}
	ParseOptions(m, "allow_other")
	ParseOptions(m, "uid=0")

	assert.Equal(t, map[string]string{"allow_other": "", "uid": "0"}, m)
}

func TestParseOptionsIgnoresEmptySegments(t *testing.T) {
	m := map[string]string{}
	ParseOptions(m, "allow_other,,uid=0")

	assert.Equal(t, map[string]string{"allow_other": "", "uid": "0"}, m)
}
