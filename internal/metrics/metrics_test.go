package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	base := &http.Client{Timeout: 7 * time.Second}
	client := InstrumentClient(base, "unit")
	assert.Equal(t, 7*time.Second, client.Timeout)
	assert.Nil(t, base.Transport)

	okBefore := testutil.ToFloat64(responseStatus.With(prometheus.Labels{labelKind: "unit", labelStatus: "200"}))
	notFoundBefore := testutil.ToFloat64(responseStatus.With(prometheus.Labels{labelKind: "unit", labelStatus: "404"}))
	totalBefore := testutil.ToFloat64(totalRequests.With(prometheus.Labels{labelKind: "unit"}))

	response, err := client.Get(server.URL)
	require.NoError(t, err)
	response.Body.Close()
	response, err = client.Get(server.URL + "/missing")
	require.NoError(t, err)
	response.Body.Close()

	assert.Equal(t, okBefore+1, testutil.ToFloat64(responseStatus.With(prometheus.Labels{labelKind: "unit", labelStatus: "200"})))
	assert.Equal(t, notFoundBefore+1, testutil.ToFloat64(responseStatus.With(prometheus.Labels{labelKind: "unit", labelStatus: "404"})))
	assert.Equal(t, totalBefore+2, testutil.ToFloat64(totalRequests.With(prometheus.Labels{labelKind: "unit"})))
}

func TestTransportCountsErrors(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	address := server.URL
	server.Close()

	before := testutil.ToFloat64(responseStatus.With(prometheus.Labels{labelKind: "unit-error", labelStatus: "error"}))
	_, err := InstrumentClient(nil, "unit-error").Get(address)
	require.Error(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(responseStatus.With(prometheus.Labels{labelKind: "unit-error", labelStatus: "error"})))
}

func TestObserveDecision(t *testing.T) {
	before := testutil.ToFloat64(decisions.With(prometheus.Labels{labelStatus: "GOOD", labelMethod: "CRL"}))

	ObserveDecision("GOOD", "CRL")

	assert.Equal(t, before+1, testutil.ToFloat64(decisions.With(prometheus.Labels{labelStatus: "GOOD", labelMethod: "CRL"})))
}
