package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/inboxforge/warmline/internal/health"
	"github.com/inboxforge/warmline/internal/tracking"
)

// SetupRoutes configures all routes and middleware. Tracking endpoints
// live at the root because their URLs are baked into already-delivered
// mail; everything else sits under /api.
func SetupRoutes(h *Handlers, trk *tracking.Handler, hlth *health.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// CORS for the local dashboard; external traffic terminates at the
	// reverse proxy.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost", "http://localhost:3000", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(newRateLimiter().Middleware)

	r.Get("/", h.HandleRoot)

	// Health checks (never rate limited)
	r.Mount("/health", hlth.Routes())

	// Tracking pixel and bounce webhook
	r.Get("/track/open/{emailID}", trk.HandleOpen)
	r.Post("/webhooks/bounce", trk.HandleBounceWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.CreateAccount)
			r.Get("/", h.ListAccounts)
			r.Get("/{accountID}", h.GetAccount)
			r.Patch("/{accountID}", h.UpdateAccount)
			r.Delete("/{accountID}", h.DeleteAccount)
			r.Post("/{accountID}/check-domain", h.CheckAccountDomain)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.CreateCampaign)
			r.Get("/", h.ListCampaigns)
			r.Get("/{campaignID}", h.GetCampaign)
			r.Patch("/{campaignID}/status", h.UpdateCampaignStatus)
			r.Post("/{campaignID}/process", h.ProcessCampaign)
			r.Delete("/{campaignID}", h.DeleteCampaign)
			r.Get("/{campaignID}/sender-stats", h.CampaignSenderStats)
			r.Get("/{campaignID}/receiver-stats", h.CampaignReceiverStats)
		})

		r.Route("/metrics", func(r chi.Router) {
			r.Get("/system", h.SystemMetrics)
			r.Get("/daily", h.DailyMetrics)
			r.Get("/accounts/{accountID}", h.AccountMetrics)
		})

		r.Route("/keys", func(r chi.Router) {
			r.Get("/", h.ListKeys)
			r.Post("/{keyID}/reset", h.ResetKey)
		})
	})

	return r
}
