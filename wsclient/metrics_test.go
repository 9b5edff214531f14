// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package wsclient

import (
	"context"
	"errors"
	"github.com/benbjohnson/clock"
	"github.com/diffeo/go-moodle/wsdata"
	"github.com/diffeo/go-moodle/wstest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"net/http"
	"net/url"
	"testing"
	"time"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		Err     error
		Outcome string
	}{
		{nil, "ok"},
		{wsdata.ErrNoToken, "config"},
		{wsdata.ErrBadArgument{Key: "c", Type: "chan int"}, "config"},
		{wsdata.ErrUnsupportedMethod{Method: "PUT"}, "unsupported"},
		{wsdata.ErrTransport{Op: "call", StatusCode: 503}, "transport"},
		{wsdata.ErrTransport{Op: "call", Err: context.Canceled}, "transport"},
		{wsdata.ErrParse{Op: "call", Err: wsdata.ErrUnexpectedFormat}, "parse"},
		{wsdata.ErrAuthentication{ErrorCode: "invalidlogin"}, "auth"},
		{wsdata.ErrRemote{Exception: "moodle_exception"}, "remote"},
		{errors.New("surprise"), "other"},
	}
	for _, test := range tests {
		assert.Equal(t, test.Outcome, Outcome(test.Err), "%v", test.Err)
	}
}

// histogram finds the single histogram series named name in g.
func histogram(t *testing.T, g prometheus.Gatherer, name, op string) *dto.Histogram {
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("Gather() => %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "op" && label.GetValue() == op {
					return metric.GetHistogram()
				}
			}
		}
	}
	return nil
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	s := wstest.NewServer()
	defer s.Close()
	s.OnRequest = func(*http.Request) {
		mock.Add(2 * time.Second)
	}
	s.Handle("get_status", func(url.Values) (interface{}, error) {
		return "ok", nil
	})

	metrics := NewMetrics("test")
	registry := prometheus.NewPedanticRegistry()
	registry.MustRegister(metrics)

	logger, _ := logtest.NewNullLogger()
	c, err := New(Config{
		URL:     s.SiteURL(),
		Service: s.Service,
		Logger:  logger,
		Clock:   mock,
		Metrics: metrics,
	})
	if !assert.NoError(t, err) {
		return
	}

	err = c.Authenticate(ctx, Credentials{Username: s.Username, Password: s.Password})
	assert.NoError(t, err)
	_, err = c.Call(ctx, "get_status", nil, nil)
	assert.NoError(t, err)
	_, err = c.Call(ctx, "get_status", nil, nil)
	assert.NoError(t, err)
	_, err = c.Call(ctx, "missing", nil, nil)
	assert.Error(t, err)
	_, err = c.Call(ctx, "get_status", nil, &CallOptions{Method: "DELETE"})
	assert.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues("login", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requests.WithLabelValues("call", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues("call", "remote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues("call", "unsupported")))

	login := histogram(t, registry, "test_moodle_ws_request_duration_seconds", "login")
	if assert.NotNil(t, login) {
		assert.Equal(t, uint64(1), login.GetSampleCount())
		assert.Equal(t, 2.0, login.GetSampleSum())
	}

	// The rejected DELETE never reached the server, so it took
	// no time at all
	call := histogram(t, registry, "test_moodle_ws_request_duration_seconds", "call")
	if assert.NotNil(t, call) {
		assert.Equal(t, uint64(4), call.GetSampleCount())
		assert.Equal(t, 6.0, call.GetSampleSum())
	}
}

func TestMetricsOptional(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.observe("call", time.Second, nil)
	})
}
