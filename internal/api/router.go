package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tutorcore/internal/tutor"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced on everything but
// /health. sseHandler, if non-nil, is mounted at GET /events inside the auth
// group.
func NewRouter(svc *tutor.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		r.Post("/retrieve", h.Retrieve)
		r.Get("/graph", h.Graph)
		r.Post("/vault/sync", h.SyncVault)

		r.Post("/practice", h.RecordPractice)
		r.Post("/error-flags", h.FlagError)

		r.Get("/curriculum", h.GetCurriculum)
		r.Put("/curriculum", h.PutCurriculum)

		r.Route("/users/{user}", func(r chi.Router) {
			r.Get("/mastery", h.ListMastery)
			r.Get("/mastery/{skill}", h.GetMastery)
			r.Get("/skills", h.Statuses)
			r.Get("/skills/{skill}/status", h.SkillStatus)
			r.Get("/skills/{skill}/why-locked", h.WhyLocked)
			r.Get("/skills/{skill}/metrics", h.Metrics)
			r.Get("/skills/{skill}/trajectory", h.Trajectory)
		})

		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	return r
}
