package tadoclient

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/clambin/go-common/http/metrics"
	"github.com/clambin/go-common/http/roundtripper"
	"github.com/prometheus/client_golang/prometheus"
)

// NewMetrics creates the request metrics for outbound Tadoº API calls. Paths
// under the home endpoint are collapsed to a single label value to keep
// cardinality down.
func NewMetrics(namespace, subsystem string, labels prometheus.Labels) metrics.RequestMetrics {
	return metrics.NewRequestMetrics(metrics.Options{
		Namespace:   namespace,
		Subsystem:   subsystem,
		ConstLabels: labels,
		LabelValues: func(request *http.Request, statusCode int) (string, string, string) {
			const homePath = "/api/v2/homes"
			path := request.URL.Path
			if strings.HasPrefix(path, homePath) {
				path = homePath
			}
			return request.Method, path, strconv.Itoa(statusCode)
		},
	})
}

// WithMetrics instruments the client's transport with the given request metrics.
func WithMetrics(requestMetrics metrics.RequestMetrics) Option {
	return func(c *Client) {
		c.httpClient.Transport = roundtripper.New(
			roundtripper.WithRequestMetrics(requestMetrics),
			roundtripper.WithRoundTripper(http.DefaultTransport),
		)
	}
}
