package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"replybot/pkg/engine"
	"replybot/pkg/rule"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ engine.Observer = (*Registry)(nil)

func TestObserveResolution(t *testing.T) {
	r := NewRegistry()

	r.ObserveResolution("exact_match", 2*time.Millisecond, nil)
	r.ObserveResolution("exact_match", time.Millisecond, nil)
	r.ObserveResolution("none", time.Millisecond, rule.NewError(rule.ErrorNoRuleConfigured, "", "nothing"))
	r.ObserveResolution("none", time.Millisecond, errors.New("plain"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.resolutions.WithLabelValues("exact_match", "resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.resolutions.WithLabelValues("none", rule.ErrorNoRuleConfigured)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.resolutions.WithLabelValues("none", "unknown")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
}

func TestObserveAnomalyAndReload(t *testing.T) {
	r := NewRegistry()

	r.ObserveAnomaly(rule.ErrorPatternCompile)
	r.ObserveAnomaly(rule.ErrorPatternCompile)
	assert.Equal(t, 2.0, testutil.ToFloat64(r.anomalies.WithLabelValues(rule.ErrorPatternCompile)))

	snap := rule.NewSnapshot([]rule.Rule{
		{ID: "a", Type: rule.TypeExactMatch, Keyword: "a", Replies: []string{"x"}},
		{ID: "b", Type: rule.TypeExactMatch, Keyword: "b", Replies: []string{"x"}},
		{ID: "d", Type: rule.TypeDefault, Replies: []string{"x"}},
	}, rule.SnapshotOptions{})

	r.ObserveReload(snap, nil)
	r.ObserveReload(nil, errors.New("parse error"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.rules.WithLabelValues(string(rule.TypeExactMatch))))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.rules.WithLabelValues(string(rule.TypeWelcome))))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reloads.WithLabelValues("loaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reloads.WithLabelValues("failed")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRegistry()
	r.ObserveResolution("default", time.Millisecond, nil)

	server := httptest.NewServer(r.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `replybot_replies_resolved_total{outcome="resolved",tier="default"} 1`))
	assert.Contains(t, string(body), "go_goroutines")
}
