// Package httpapi exposes the inventory and order operations over HTTP:
// a chi router with bearer-token auth, JSON handlers and a cache-aside
// layer on catalog reads.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/cisasmendi/sistema-stock/pkg/health"
	"github.com/cisasmendi/sistema-stock/pkg/httpmiddleware"
)

// ServerConfig carries the HTTP server settings.
type ServerConfig struct {
	Addr            string
	JWTSecret       []byte
	AllowOrigins    []string
	ShutdownTimeout time.Duration
}

// Server is the HTTP front of the service.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

// NewServer builds the router and the http.Server around it. The catalog
// listing and single-product reads stay public; everything else sits
// behind the bearer-token middleware.
func NewServer(
	cfg ServerConfig,
	lg *zap.Logger,
	hlth *health.Health,
	products *ProductHandler,
	carts *CartHandler,
	orders *OrderHandler,
) *Server {
	r := chi.NewRouter()

	r.Get("/livez", hlth.LiveEndpoint)
	r.Get("/readyz", hlth.ReadyEndpoint)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Get("/products", products.list)
			r.Get("/products/{id}", products.get)
		})

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(cfg.JWTSecret))

			r.Get("/products/low-stock", products.listLowStock)
			r.Post("/products", products.create)
			r.Put("/products/{id}", products.update)
			r.Delete("/products/{id}", products.delete)
			r.Post("/products/{id}/stock", products.adjustStock)

			carts.Register(r)
			orders.Register(r)
		})
	})

	handler := httpmiddleware.Wrap(r,
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.LogRequests(),
		httpmiddleware.CORS(cfg.AllowOrigins),
	)

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           otelhttp.NewHandler(handler, "http.server"),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		shutdownTimeout: timeout,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
