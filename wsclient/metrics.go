// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package wsclient

import (
	"errors"
	"github.com/diffeo/go-moodle/wsdata"
	"github.com/prometheus/client_golang/prometheus"
	"time"
)

// Metrics counts client operations and their latency.  It is a
// prometheus.Collector; register it with a registry of your choice
// and pass it in Config.Metrics.  One Metrics may be shared by many
// clients.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates a new, unregistered set of client metrics.  The
// metric names are prefixed with namespace, e.g.
// "namespace_moodle_ws_requests_total"; namespace may be empty.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "moodle_ws",
				Name:      "requests_total",
				Help:      "Moodle web service client operations, by outcome",
			},
			[]string{"op", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "moodle_ws",
				Name:      "request_duration_seconds",
				Help:      "Time spent in Moodle web service client operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.requests.Describe(ch)
	m.duration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.requests.Collect(ch)
	m.duration.Collect(ch)
}

// observe records one operation.  It does nothing on a nil Metrics.
func (m *Metrics) observe(op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, Outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Outcome classifies an error returned from a client operation into
// one of "ok", "config", "unsupported", "transport", "parse", "auth",
// "remote", or "other".
func Outcome(err error) string {
	var (
		configErr    wsdata.ErrConfiguration
		argErr       wsdata.ErrBadArgument
		methodErr    wsdata.ErrUnsupportedMethod
		transportErr wsdata.ErrTransport
		parseErr     wsdata.ErrParse
		authErr      wsdata.ErrAuthentication
		remoteErr    wsdata.ErrRemote
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &configErr), errors.As(err, &argErr):
		return "config"
	case errors.As(err, &methodErr):
		return "unsupported"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &remoteErr):
		return "remote"
	}
	return "other"
}
