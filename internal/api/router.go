package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notelog/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes.
	r.Post("/notes", h.AddNote)
	r.Get("/notes/{id}", h.FetchNote)
	r.Patch("/notes/{id}/tags", h.EditTags)

	// Search and tags.
	r.Get("/search", h.Search)
	r.Get("/tags", h.ListTags)

	// SSE endpoint (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
