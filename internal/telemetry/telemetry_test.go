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

package telemetry

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutationsTotalIncrementsByKind(t *testing.T) {
	before := testutil.ToFloat64(MutationsTotal.WithLabelValues("Create"))
	MutationsTotal.WithLabelValues("Create").Inc()
	after := testutil.ToFloat64(MutationsTotal.WithLabelValues("Create"))
	assert.Equal(t, before+1, after)
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	SocketCommandsTotal.WithLabelValues("get").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "fuselog_socket_commands_total")
}
