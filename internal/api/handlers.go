package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notelog/internal/apperr"
	"github.com/starford/notelog/internal/index"
	"github.com/starford/notelog/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// AddNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddNoteRequest	true	"Note to create"
//	@Success		201		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req AddNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	note, err := h.svc.AddNote(r.Context(), req.Content, req.Tags)
	if err != nil {
		writeServiceError(w, "add note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// FetchNote handles GET /api/notes/{id}.
//
//	@Summary		Fetch a note by id or unique id prefix
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id or prefix (at least 2 characters)"
//	@Success		200	{object}	Note
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) FetchNote(w http.ResponseWriter, r *http.Request) {
	idPrefix := chi.URLParam(r, "id")
	note, err := h.svc.FetchNote(r.Context(), idPrefix)
	if err != nil {
		writeServiceError(w, "fetch note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// EditTags handles PATCH /api/notes/{id}/tags.
//
//	@Summary		Add and remove tags on a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Note id or prefix"
//	@Param			body	body		EditTagsRequest	true	"Tags to add and remove"
//	@Success		200		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/tags [patch]
func (h *Handler) EditTags(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	idPrefix := chi.URLParam(r, "id")
	var req EditTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Add) == 0 && len(req.Remove) == 0 {
		writeError(w, http.StatusBadRequest, "nothing to do: neither add nor remove given")
		return
	}

	note, err := h.svc.EditTags(r.Context(), idPrefix, req.Add, req.Remove)
	if err != nil {
		writeServiceError(w, "edit tags", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	false	"Search query"
//	@Param			limit	query		int		false	"Max results (default 10, capped at 25, 0 = count only)"
//	@Param			before	query		string	false	"Created at or before (RFC 3339 or YYYY-MM-DD)"
//	@Param			after	query		string	false	"Created at or after (RFC 3339 or YYYY-MM-DD)"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := index.Query{Text: params.Get("q"), Limit: index.DefaultSearchLimit}

	if s := params.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		q.Limit = limit
	}
	var err error
	if q.Before, err = parseTimeParam(params.Get("before")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.After, err = parseTimeParam(params.Get("after")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.SearchNotes(r.Context(), q)
	if err != nil {
		writeServiceError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListTags handles GET /api/tags.
//
//	@Summary		List tags in use with usage counts
//	@Tags			tags
//	@Produce		json
//	@Success		200	{object}	TagListResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.ListTags(r.Context())
	if err != nil {
		writeServiceError(w, "list tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagListResponse{Tags: counts})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	if amb, ok := apperr.IsAmbiguous(err); ok {
		writeError(w, http.StatusConflict, amb.Error())
		return
	}
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, apperr.ErrInvalidTag),
		errors.Is(err, apperr.ErrInvalidQuery),
		errors.Is(err, apperr.ErrMalformedNote):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseTimeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil, errors.New("invalid timestamp, use RFC 3339 or YYYY-MM-DD")
		}
	}
	return &t, nil
}
