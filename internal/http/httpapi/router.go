package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"soundforge/internal/http/handlers"
	"soundforge/internal/middleware"
)

// NewRouter assembles the API surface. The transport stays thin: every
// route delegates straight to the generation service.
func NewRouter(app *handlers.App, rateLimitPerMin int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer, chimw.Logger)

	// Health probes stay outside the rate limit.
	r.Get("/api/v1/healthz", app.Health)
	r.Get("/api/v1/healthz/ready", app.Ready)
	r.Get("/api/v1/healthz/live", app.Live)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(rateLimitPerMin, time.Minute))

		r.Post("/api/v1/generate", app.Generate)
		r.Post("/api/v1/generate/batch", app.GenerateBatch)

		r.Route("/api/v1/jobs", func(r chi.Router) {
			r.Get("/{job_id}", app.JobStatus)
			r.Delete("/{job_id}", app.CancelJob)
		})

		r.Get("/api/v1/queue/stats", app.QueueStats)
		r.Get("/api/v1/files/{filename}", app.DownloadFile)
	})

	return r
}
