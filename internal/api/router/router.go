package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/b24bridge/smsbridge/internal/bindings"
	httpmiddleware "github.com/b24bridge/smsbridge/internal/http/middleware"
	"github.com/b24bridge/smsbridge/internal/messaging"
	"github.com/b24bridge/smsbridge/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	CallbackHandler    *messaging.Handler
	BindingsHandler    *bindings.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// CallbackRateLimit is requests/sec per source IP for the SMS
	// callback; zero disables limiting.
	CallbackRateLimit float64
	CallbackRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", cfg.CallbackHandler.HealthCheck)
		public.Route("/callback", func(r chi.Router) {
			if cfg.CallbackRateLimit > 0 {
				r.Use(httpmiddleware.RateLimit(cfg.CallbackRateLimit, cfg.CallbackRateBurst))
			}
			r.Post("/sms", cfg.CallbackHandler.Callback)
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.BindingsHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Get("/bindings", cfg.BindingsHandler.Bindings)
			admin.Post("/bindings", cfg.BindingsHandler.Bindings)
		})
	}

	return r
}
