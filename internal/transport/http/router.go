package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/handler"
)

// NewRouter wires the public endpoints. Domain routes carry their own
// middleware chains; health and metrics stay outside the auth gate.
func NewRouter(rrid *handler.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	rrid.Register(r)
	return r
}
