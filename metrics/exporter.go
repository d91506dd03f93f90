package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultReadHeaderTimeout = 10 * time.Second

// Exporter serves the registered CantinaOS collectors over HTTP on its
// own registry and listener, separate from the Web Bridge's gin engine
// since metrics scraping is an operational concern, not a dashboard one.
type Exporter struct {
	addr     string
	registry *prometheus.Registry
	server   *http.Server
}

// NewExporter builds an Exporter with a fresh registry carrying every
// CantinaOS collector, listening at addr (e.g. ":9090").
func NewExporter(addr string) (*Exporter, error) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return &Exporter{addr: addr, registry: reg}, nil
}

// Start begins serving /metrics. It blocks until Shutdown is called or the
// listener fails; callers typically run it in its own goroutine.
func (e *Exporter) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	e.server = &http.Server{
		Addr:              e.addr,
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	return e.server.ListenAndServe()
}

// Shutdown gracefully stops the exporter's HTTP listener.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}
