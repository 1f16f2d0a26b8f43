package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nordtax/espp"
)

// Server is the HTTP front of the engine.
type Server struct {
	cfg     *Config
	log     zerolog.Logger
	metrics *Metrics
	http    *http.Server
}

// NewServer wires the router. The rate provider backs runs whose bundle
// carries no inline rates.
func NewServer(cfg *Config, rates espp.RateProvider, log zerolog.Logger) *Server {
	metrics := NewMetrics()
	s := &Server{cfg: cfg, log: log, metrics: metrics}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewRouter(rates, log, metrics),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// NewRouter builds the route table; exposed for tests.
func NewRouter(rates espp.RateProvider, log zerolog.Logger, metrics *Metrics) http.Handler {
	tax := NewTaxHandler(rates, log, metrics)

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logging(log, metrics))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tax", tax.Compute)
	})
	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("listening")
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
