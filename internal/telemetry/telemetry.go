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

// Package telemetry exposes fuselog's runtime counters as Prometheus
// metrics. It is a leaf package: statediff, transport, dictionary, and
// interceptor all call into it, but it imports none of them, so it is
// always safe to add a call site.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MutationsTotal counts every action appended to the log, by kind.
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuselog_mutations_total",
		Help: "Number of state-diff actions appended to the log, by action kind.",
	}, []string{"kind"})

	// OpErrorsTotal counts backing-filesystem errors surfaced to the
	// kernel, by the errno they were mapped to.
	OpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuselog_op_errors_total",
		Help: "Number of FUSE operations that returned a native error to the kernel, by errno.",
	}, []string{"errno"})

	// LogDrainedActions observes how many actions were present each time
	// the log was drained (by "get" or "clear").
	LogDrainedActions = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fuselog_log_drained_actions",
		Help:    "Number of actions present in the log at drain time.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	// SocketCommandsTotal counts control-socket commands handled, by
	// command name ("get", "clear", "train", "checkpoint", or "unknown").
	SocketCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuselog_socket_commands_total",
		Help: "Number of control-socket commands handled, by command.",
	}, []string{"command"})

	// GetPayloadBytes observes the size of the framed payload sent in
	// response to a "get" command, by frame mode.
	GetPayloadBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fuselog_get_payload_bytes",
		Help:    "Size in bytes of the framed payload returned by a 'get' command.",
		Buckets: prometheus.ExponentialBuckets(64, 4, 10),
	}, []string{"mode"})

	// DictionaryTrainingsTotal counts dictionary training attempts, by
	// outcome ("trained", "insufficient", or "failed").
	DictionaryTrainingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuselog_dictionary_trainings_total",
		Help: "Number of dictionary training attempts, by outcome.",
	}, []string{"outcome"})

	// AppliedActionsTotal counts actions replayed by the applier, by
	// outcome ("applied", "warning", or "aborted").
	AppliedActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuselog_applied_actions_total",
		Help: "Number of state-diff actions processed by the applier, by outcome.",
	}, []string{"outcome"})
)

// Handler returns the HTTP handler serving the default Prometheus registry
// fuselog's counters are registered against.
func Handler() http.Handler {
	return promhttp.Handler()
}
