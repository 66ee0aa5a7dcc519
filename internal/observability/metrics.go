// Package observability holds the digitizer's Prometheus metrics.
package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vrdigitizer"

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "link",
		Name:      "frames_sent_total",
		Help:      "Frames written to the consumer.",
	})
	bytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "link",
		Name:      "bytes_sent_total",
		Help:      "Frame bytes written to the consumer.",
	})
	sendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "link",
		Name:      "send_failures_total",
		Help:      "Sends that faulted the link.",
	})
	connectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "link",
		Name:      "connect_attempts_total",
		Help:      "Connection attempts, successful or not.",
	})
	connections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "link",
		Name:      "connections_total",
		Help:      "Connections established.",
	})
	feedbackReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "link",
		Name:      "feedback_received_total",
		Help:      "Feedback bytes read from the consumer.",
	})
	linkState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "link",
		Name:      "state",
		Help:      "Link state: 0 disconnected, 1 connecting, 2 connected, 3 faulted.",
	})
	roleChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "roles",
		Name:      "table_changes_total",
		Help:      "Role table rebuilds that changed a binding.",
	})
	expectedRoles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "roles",
		Name:      "expected",
		Help:      "Roles reporting in the latest frame.",
	})
	cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "cycle",
		Name:      "duration_seconds",
		Help:      "Time spent in one sampling cycle, excluding the tick sleep.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .5, 1},
	})
)

// RegisterMetrics registers every collector with the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesSent, bytesSent, sendFailures, connectAttempts, connections,
			feedbackReceived, linkState, roleChanges, expectedRoles, cycleDuration,
		)
	})
}

// Handler serves the default registry. Only processes that call
// RegisterMetrics expose the digitizer collectors through it.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFrameSent counts one written frame of n bytes.
func RecordFrameSent(n int) {
	framesSent.Inc()
	bytesSent.Add(float64(n))
}

// RecordSendFailure counts a send that faulted the link.
func RecordSendFailure() { sendFailures.Inc() }

// RecordConnectAttempt counts one dial, successful or not.
func RecordConnectAttempt() { connectAttempts.Inc() }

// RecordConnected counts an established connection.
func RecordConnected() { connections.Inc() }

// RecordFeedback counts one feedback byte read from the consumer.
func RecordFeedback() { feedbackReceived.Inc() }

// RecordRoleChange counts a role table rebuild that changed a binding.
func RecordRoleChange() { roleChanges.Inc() }

// SetLinkState publishes the numeric link.State.
func SetLinkState(s int) { linkState.Set(float64(s)) }

// SetExpectedRoles publishes the number of roles in the latest frame.
func SetExpectedRoles(n int) { expectedRoles.Set(float64(n)) }

// ObserveCycle records one cycle's duration in seconds.
func ObserveCycle(sec float64) { cycleDuration.Observe(sec) }
