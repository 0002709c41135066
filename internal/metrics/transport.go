package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(request *http.Request) (*http.Response, error) {
	return f(request)
}

// Transport times every request sent through next and counts the responses
// by status code.
func Transport(kind string, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripperFunc(func(request *http.Request) (*http.Response, error) {
		timer := prometheus.NewTimer(httpDuration.With(prometheus.Labels{
			labelKind: kind,
		}))
		defer timer.ObserveDuration()

		totalRequests.With(prometheus.Labels{
			labelKind: kind,
		}).Inc()

		response, roundTripError := next.RoundTrip(request)
		status := "error"
		if roundTripError == nil {
			status = strconv.Itoa(response.StatusCode)
		}
		responseStatus.With(prometheus.Labels{
			labelKind:   kind,
			labelStatus: status,
		}).Inc()
		return response, roundTripError
	})
}

// InstrumentClient returns a copy of client whose transport is measured
// under kind.
func InstrumentClient(client *http.Client, kind string) *http.Client {
	instrumented := &http.Client{}
	if client != nil {
		*instrumented = *client
	}
	instrumented.Transport = Transport(kind, instrumented.Transport)
	return instrumented
}
