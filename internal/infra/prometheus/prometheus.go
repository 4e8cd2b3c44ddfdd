package prometheus

import (
	"fmt"
	"net/http"
	"time"

	"github.com/linklit/LinkLit/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 10 * time.Second
	defaultPort       = 9090
)

// Request-path counters. Deliberately coarse: no per-link analytics.
var (
	LinksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linklit_links_created_total",
		Help: "Short links successfully created.",
	})
	LinksResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linklit_links_resolved_total",
		Help: "Short links successfully resolved.",
	})
	LinksBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linklit_links_blocked_total",
		Help: "Link creations vetoed by the safety gate.",
	})
	WebhooksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linklit_webhooks_rejected_total",
		Help: "Billing webhooks rejected at signature verification.",
	})
)

// NewServer builds a basic HTTP server that exposes /metrics for Prometheus scraping.
func NewServer(cfg config.PrometheusConfig) *http.Server {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}
}
