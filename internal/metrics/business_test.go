// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestPromhttpExposure(t *testing.T) {
	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRecordJob(t *testing.T) {
	c := jobsTotal.WithLabelValues("vp9", "finished")
	before := getCounterValue(t, c)
	RecordJob("vp9", "finished")
	assert.Equal(t, before+1, getCounterValue(t, c))
}

func TestRecordRendition(t *testing.T) {
	c := renditionsTotal.WithLabelValues("video", "av1")
	before := getCounterValue(t, c)
	RecordRendition("video", "av1", 12.5)
	assert.Equal(t, before+1, getCounterValue(t, c))
}

func TestProcTerminateCounters(t *testing.T) {
	c := procTerminateTotal.WithLabelValues("SIGTERM", "sent")
	before := getCounterValue(t, c)
	IncProcTerminate("SIGTERM", "sent")
	assert.Equal(t, before+1, getCounterValue(t, c))
}
