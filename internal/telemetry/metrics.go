// Copyright 2025 Esteban Alvarez. All Rights Reserved.
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
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsEnqueuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autoresume_events_enqueued_total",
		Help: "Total rate-limit events enqueued (hook invocations plus transcript-poll fallback).",
	})
	eventsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autoresume_events_completed_total",
		Help: "Total events successfully resumed.",
	})
	eventsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autoresume_events_failed_total",
		Help: "Total events that exhausted all delivery tiers and retries.",
	})
	deliveryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoresume_delivery_attempts_total",
		Help: "Delivery attempts per tier.",
	}, []string{"tier", "outcome"})
	deliveryLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "autoresume_delivery_latency_seconds",
		Help:    "Wall-clock time from resuming to a confirmed or failed delivery.",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	})
	memoryRSSBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "autoresume_memory_rss_bytes",
		Help: "Last-sampled resident memory of the supervisor process.",
	})
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "autoresume_queue_depth",
		Help: "Number of non-terminal entries currently in the queue document.",
	})
)

func init() {
	prometheus.MustRegister(
		eventsEnqueuedTotal,
		eventsCompletedTotal,
		eventsFailedTotal,
		deliveryAttemptsTotal,
		deliveryLatencySeconds,
		memoryRSSBytes,
		queueDepth,
	)
}

// ObserveEnqueued records one enqueue (hook or transcript-poll derived).
func ObserveEnqueued() { eventsEnqueuedTotal.Inc() }

// ObserveCompleted records one successful resume.
func ObserveCompleted() { eventsCompletedTotal.Inc() }

// ObserveFailed records one event that exhausted every tier and retry.
func ObserveFailed() { eventsFailedTotal.Inc() }

// ObserveDeliveryAttempt records one tier attempt's outcome
// ("success", "unavailable", "transient_failure").
func ObserveDeliveryAttempt(tier, outcome string) {
	deliveryAttemptsTotal.WithLabelValues(tier, outcome).Inc()
}

// ObserveDeliveryLatencySeconds records the resuming-to-resolved duration.
func ObserveDeliveryLatencySeconds(seconds float64) {
	deliveryLatencySeconds.Observe(seconds)
}

// SetMemoryRSSBytes records the memory watchdog's latest sample.
func SetMemoryRSSBytes(bytes float64) { memoryRSSBytes.Set(bytes) }

// SetQueueDepth records the queue's current non-terminal entry count.
func SetQueueDepth(n float64) { queueDepth.Set(n) }

// Handler returns the promhttp handler for mounting on the optional local
// HTTP server (disabled by default per §6).
func Handler() http.Handler { return promhttp.Handler() }

// StartMetricsEndpoint starts a dedicated HTTP server serving only /metrics
// on addr, the same opt-in standalone-endpoint shape as the teacher's
// churn.Config.MetricsAddr. Returns immediately; the server runs in the
// background for the life of the process.
func StartMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
