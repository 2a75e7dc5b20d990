package metrics

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Path is where the prometheus endpoint is served.
const Path = "/debug/metrics/prometheus"

// NewHandler routes Path to the prometheus handler of the default
// registry.
func NewHandler() http.Handler {
	router := httprouter.New()
	router.Handler(http.MethodGet, Path, promhttp.Handler())
	return otelhttp.NewHandler(router, "Metrics")
}

// NewServer builds the metrics HTTP server. The caller runs and shuts it
// down.
func NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
