package routes

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"dogxsale/gateway/middleware"
)

// Config wires the gateway's sale surface to a running sale daemon.
type Config struct {
	SaleTarget    *url.URL
	NodeAuthToken string
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
}

func New(cfg Config) (http.Handler, error) {
	bridge, err := newSaleRoutes(cfg.SaleTarget, cfg.NodeAuthToken)
	if err != nil {
		return nil, fmt.Errorf("configure sale routes: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1/sales", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware("sales"))
		}
		if obs != nil {
			sr.Use(obs.Middleware("sales"))
		}
		bridge.mountPublic(sr)
		sr.Group(func(ar chi.Router) {
			if cfg.Authenticator != nil {
				ar.Use(cfg.Authenticator.Middleware(middleware.ScopeSaleAdmin))
			}
			bridge.mountAdmin(ar)
		})
	})

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	return r, nil
}
